package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spetr/pyast-rag/internal/config"
	"github.com/spetr/pyast-rag/pkg/provider"
	"github.com/spetr/pyast-rag/pkg/types"
)

// project bundles the configuration and providers of one project root.
type project struct {
	root      string
	cfg       *config.Config
	store     provider.VectorStore
	embedding provider.EmbeddingProvider // nil when not requested
	chunker   provider.ChunkingStrategy
}

// loadConfig resolves the project root and loads its validated config.
func loadConfig() (string, *config.Config, error) {
	root, err := filepath.Abs(projectDir)
	if err != nil {
		return "", nil, fmt.Errorf("invalid project path: %w", err)
	}

	cfg, warnings, err := config.Load(root)
	if err != nil {
		return "", nil, err
	}
	applyLogging(cfg)
	for _, w := range warnings {
		slog.Warn(w)
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return "", nil, errors.Join(errs...)
	}
	return root, cfg, nil
}

// openProject loads the config, creates the providers and opens the index.
// With needEmbedding false no embedding provider is created.
func openProject(needEmbedding bool) (*project, error) {
	root, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	p := &project{root: root, cfg: cfg}

	reg := provider.DefaultRegistry
	p.chunker, err = reg.CreateChunking(cfg.Chunking.Strategy, provider.ChunkingConfig{
		Strategy:     cfg.Chunking.Strategy,
		ParseTimeout: cfg.Limits.FileTimeout,
	})
	if err != nil {
		return nil, err
	}

	p.store, err = reg.CreateVectorStore(cfg.VectorStore.Provider)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := p.store.Init(config.IndexDBPath(root)); err != nil {
		p.store = nil
		p.Close()
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	if needEmbedding {
		p.embedding, err = newEmbedding(root, cfg)
		if err != nil {
			p.Close()
			return nil, err
		}
	}

	slog.Debug("opened project",
		"root", root,
		"embedding", cfg.Embedding.Provider+"/"+cfg.Embedding.Model,
		"store", cfg.VectorStore.Provider,
	)
	return p, nil
}

// newEmbedding creates the configured embedding provider.
func newEmbedding(root string, cfg *config.Config) (provider.EmbeddingProvider, error) {
	return provider.DefaultRegistry.CreateEmbedding(cfg.Embedding.Provider, provider.EmbeddingConfig{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		Endpoint:  cfg.Embedding.Endpoint,
		APIKey:    cfg.Embedding.APIKey,
		BatchSize: cfg.Embedding.BatchSize,
		Plugin:    cfg.Embedding.Plugin,
		PluginDir: cfg.PluginDir(root),
		LogLevel:  cfg.Plugins.LogLevel,
	})
}

// requireIndex fails when nothing was indexed yet.
func (p *project) requireIndex() error {
	meta, err := p.store.GetMetadata()
	if err != nil {
		return err
	}
	if meta == nil {
		return fmt.Errorf("%w: run 'pyast-rag index' first", types.ErrIndexNotFound)
	}
	return nil
}

// Close releases every opened provider.
func (p *project) Close() {
	if p.embedding != nil {
		if err := p.embedding.Close(); err != nil {
			slog.Warn("failed to close embedding provider", "error", err)
		}
	}
	if p.store != nil {
		if err := p.store.Close(); err != nil {
			slog.Warn("failed to close index", "error", err)
		}
	}
	if p.chunker != nil {
		p.chunker.Close()
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
