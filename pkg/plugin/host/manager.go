// Package host loads external embedding plugins with go-plugin.
package host

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	"github.com/spetr/pyast-rag/pkg/plugin/shared"
	"github.com/spetr/pyast-rag/pkg/types"
)

// Manager starts and tracks plugin processes found in one directory.
type Manager struct {
	pluginsDir string
	logger     hclog.Logger

	mu      sync.Mutex
	plugins map[string]*LoadedPlugin
}

// LoadedPlugin is a running plugin process.
type LoadedPlugin struct {
	Name      string
	Path      string
	Client    *plugin.Client
	Embedding shared.EmbeddingProvider
}

// NewManager creates a manager for pluginsDir. logLevel is an hclog level
// name for the plugin processes' own output ("warn" when empty).
func NewManager(pluginsDir, logLevel string) *Manager {
	level := hclog.LevelFromString(logLevel)
	if level == hclog.NoLevel {
		level = hclog.Warn
	}
	return &Manager{
		pluginsDir: pluginsDir,
		plugins:    make(map[string]*LoadedPlugin),
		logger: hclog.New(&hclog.LoggerOptions{
			Name:   "plugins",
			Level:  level,
			Output: os.Stderr,
		}),
	}
}

// Discover lists executable files in the plugins directory, sorted.
func (m *Manager) Discover() ([]string, error) {
	entries, err := os.ReadDir(m.pluginsDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read plugins directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Mode()&0111 != 0 {
			names = append(names, entry.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// LoadEmbedding starts the named plugin, or returns it if already running.
func (m *Manager) LoadEmbedding(name string) (*LoadedPlugin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.plugins[name]; ok {
		return p, nil
	}

	path := filepath.Join(m.pluginsDir, name)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("plugin %s: %w", name, types.ErrProviderNotAvailable)
	}

	slog.Info("loading plugin", "name", name, "path", path)

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  shared.Handshake,
		Plugins:          shared.PluginMap,
		Cmd:              exec.Command(path),
		Logger:           m.logger,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to connect to plugin %s: %w", name, err)
	}

	raw, err := rpcClient.Dispense(string(shared.PluginTypeEmbedding))
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense plugin %s: %w", name, err)
	}

	emb, ok := raw.(shared.EmbeddingProvider)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("plugin %s does not implement an embedding provider", name)
	}

	loaded := &LoadedPlugin{Name: name, Path: path, Client: client, Embedding: emb}
	m.plugins[name] = loaded
	slog.Info("plugin loaded", "name", name, "provider", emb.Name(), "dimensions", emb.Dimensions())
	return loaded, nil
}

// Unload closes the provider and stops the plugin process.
func (m *Manager) Unload(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.plugins[name]; ok {
		m.stop(p)
		delete(m.plugins, name)
	}
}

func (m *Manager) stop(p *LoadedPlugin) {
	if err := p.Embedding.Close(); err != nil {
		slog.Debug("plugin close failed", "name", p.Name, "error", err)
	}
	p.Client.Kill()
	slog.Debug("plugin unloaded", "name", p.Name)
}
