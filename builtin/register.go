// Package builtin registers all built-in providers with the default registry.
package builtin

import (
	"fmt"

	tsChunker "github.com/spetr/pyast-rag/builtin/chunking/treesitter"
	ollamaEmbed "github.com/spetr/pyast-rag/builtin/embedding/ollama"
	openaiEmbed "github.com/spetr/pyast-rag/builtin/embedding/openai"
	"github.com/spetr/pyast-rag/builtin/vectorstore/sqlitevec"
	"github.com/spetr/pyast-rag/pkg/plugin/host"
	"github.com/spetr/pyast-rag/pkg/provider"
	"github.com/spetr/pyast-rag/pkg/types"
)

func init() {
	provider.RegisterEmbedding("ollama", func(cfg provider.EmbeddingConfig) (provider.EmbeddingProvider, error) {
		return ollamaEmbed.New(ollamaEmbed.Config{
			Endpoint:  cfg.Endpoint,
			Model:     cfg.Model,
			BatchSize: cfg.BatchSize,
		}), nil
	})

	provider.RegisterEmbedding("openai", func(cfg provider.EmbeddingConfig) (provider.EmbeddingProvider, error) {
		return openaiEmbed.New(openaiEmbed.Config{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.Endpoint,
			Model:     cfg.Model,
			BatchSize: cfg.BatchSize,
		}), nil
	})

	provider.RegisterEmbedding("plugin", func(cfg provider.EmbeddingConfig) (provider.EmbeddingProvider, error) {
		if cfg.Plugin == "" {
			return nil, fmt.Errorf("%w: embedding.plugin must name a plugin binary", types.ErrInvalidConfig)
		}
		return host.OpenEmbedding(cfg.PluginDir, cfg.Plugin, cfg.LogLevel)
	})

	provider.RegisterChunking("treesitter", func(cfg provider.ChunkingConfig) (provider.ChunkingStrategy, error) {
		return tsChunker.New(tsChunker.Config{
			ParseTimeout: cfg.ParseTimeout,
		}), nil
	})

	provider.RegisterVectorStore("sqlitevec", func() (provider.VectorStore, error) {
		return sqlitevec.New(), nil
	})
}
