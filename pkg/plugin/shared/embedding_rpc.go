package shared

import (
	"net/rpc"
	"sync"
)

// Info describes a plugin provider. It is fetched once per client.
type Info struct {
	Name         string
	Dimensions   int
	MaxBatchSize int
}

// EmbedArgs are the arguments for the Embed RPC call.
type EmbedArgs struct {
	Texts []string
}

// EmbedReply is the reply for the Embed RPC call. Provider errors travel in
// Error so they are not confused with transport failures.
type EmbedReply struct {
	Embeddings [][]float32
	Error      string
}

// EmbeddingRPCClient is the host side of an embedding plugin.
type EmbeddingRPCClient struct {
	client *rpc.Client

	infoOnce sync.Once
	info     Info
	infoErr  error
}

func (c *EmbeddingRPCClient) describe() Info {
	c.infoOnce.Do(func() {
		c.infoErr = c.client.Call("Plugin.Info", new(interface{}), &c.info)
	})
	return c.info
}

// Name returns the provider name, or "" when the plugin cannot be reached.
func (c *EmbeddingRPCClient) Name() string {
	return c.describe().Name
}

// Dimensions returns the embedding dimensions.
func (c *EmbeddingRPCClient) Dimensions() int {
	return c.describe().Dimensions
}

// MaxBatchSize returns the maximum batch size, at least 1.
func (c *EmbeddingRPCClient) MaxBatchSize() int {
	return max(c.describe().MaxBatchSize, 1)
}

// Embed generates embeddings for the given texts.
func (c *EmbeddingRPCClient) Embed(texts []string) ([][]float32, error) {
	var reply EmbedReply
	if err := c.client.Call("Plugin.Embed", &EmbedArgs{Texts: texts}, &reply); err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, &PluginError{Message: reply.Error}
	}
	return reply.Embeddings, nil
}

// Warmup warms up the provider.
func (c *EmbeddingRPCClient) Warmup() error {
	return c.callErr("Plugin.Warmup")
}

// Close closes the provider.
func (c *EmbeddingRPCClient) Close() error {
	return c.callErr("Plugin.Close")
}

func (c *EmbeddingRPCClient) callErr(method string) error {
	var msg string
	if err := c.client.Call(method, new(interface{}), &msg); err != nil {
		return err
	}
	if msg != "" {
		return &PluginError{Message: msg}
	}
	return nil
}

// EmbeddingRPCServer is the plugin side of the connection.
type EmbeddingRPCServer struct {
	Impl EmbeddingProvider
}

// Info reports the provider's name and limits.
func (s *EmbeddingRPCServer) Info(_ interface{}, resp *Info) error {
	*resp = Info{
		Name:         s.Impl.Name(),
		Dimensions:   s.Impl.Dimensions(),
		MaxBatchSize: s.Impl.MaxBatchSize(),
	}
	return nil
}

// Embed generates embeddings for the given texts.
func (s *EmbeddingRPCServer) Embed(args *EmbedArgs, resp *EmbedReply) error {
	embeddings, err := s.Impl.Embed(args.Texts)
	if err != nil {
		resp.Error = err.Error()
		return nil
	}
	resp.Embeddings = embeddings
	return nil
}

// Warmup warms up the provider.
func (s *EmbeddingRPCServer) Warmup(_ interface{}, resp *string) error {
	if err := s.Impl.Warmup(); err != nil {
		*resp = err.Error()
	}
	return nil
}

// Close closes the provider.
func (s *EmbeddingRPCServer) Close(_ interface{}, resp *string) error {
	if err := s.Impl.Close(); err != nil {
		*resp = err.Error()
	}
	return nil
}

// PluginError is an error reported by the plugin's provider.
type PluginError struct {
	Message string
}

func (e *PluginError) Error() string {
	return "plugin: " + e.Message
}
