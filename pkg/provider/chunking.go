package provider

import (
	"context"
	"time"

	"github.com/spetr/pyast-rag/pkg/types"
)

// ChunkingStrategy splits source files into chunks.
type ChunkingStrategy interface {
	// Name returns the strategy name (e.g., "treesitter").
	Name() string

	// Chunk splits a source file into chunks.
	Chunk(file *types.SourceFile) ([]*types.Chunk, error)

	// ChunkContext is Chunk with cancellation. The returned collection
	// also carries the definitions that could not be chunked.
	ChunkContext(ctx context.Context, file *types.SourceFile) (*types.ChunkCollection, error)

	// SupportedLanguages returns languages this strategy supports.
	SupportedLanguages() []string

	// SupportsLanguage checks if a language is supported.
	SupportsLanguage(lang string) bool

	// Close releases any resources.
	Close() error
}

// ChunkingConfig contains configuration for chunking strategies.
type ChunkingConfig struct {
	Strategy     string        // "treesitter"
	ParseTimeout time.Duration // Per-file parse bound, zero for none
}
