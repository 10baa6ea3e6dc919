// Package shared defines the contract between pyast-rag and external
// embedding plugins.
package shared

import (
	"net/rpc"

	"github.com/hashicorp/go-plugin"
)

// Handshake keeps plugins built against a different protocol from starting.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "PYAST_RAG_PLUGIN",
	MagicCookieValue: "pyast-rag-embedding-v1",
}

// PluginType identifies the type of plugin.
type PluginType string

// PluginTypeEmbedding is the only plugin kind the host dispenses.
const PluginTypeEmbedding PluginType = "embedding"

// PluginMap is the map of plugins we can dispense.
var PluginMap = map[string]plugin.Plugin{
	string(PluginTypeEmbedding): &EmbeddingPlugin{},
}

// EmbeddingProvider is implemented by plugin binaries. It mirrors
// provider.EmbeddingProvider without contexts, which do not cross net/rpc.
type EmbeddingProvider interface {
	Name() string
	Embed(texts []string) ([][]float32, error)
	Dimensions() int
	MaxBatchSize() int
	Warmup() error
	Close() error
}

// EmbeddingPlugin is the plugin.Plugin implementation for embedding providers.
type EmbeddingPlugin struct {
	Impl EmbeddingProvider
}

func (p *EmbeddingPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &EmbeddingRPCServer{Impl: p.Impl}, nil
}

func (p *EmbeddingPlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &EmbeddingRPCClient{client: c}, nil
}

// Serve runs impl as a plugin process. It does not return.
func Serve(impl EmbeddingProvider) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]plugin.Plugin{
			string(PluginTypeEmbedding): &EmbeddingPlugin{Impl: impl},
		},
	})
}
