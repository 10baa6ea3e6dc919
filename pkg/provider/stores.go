package provider

import (
	"context"

	"github.com/spetr/pyast-rag/pkg/types"
)

// ChunkStore handles chunk storage operations.
type ChunkStore interface {
	// StoreChunks stores chunks with their embeddings.
	StoreChunks(chunks []*types.ChunkWithEmbedding) error

	// GetChunk retrieves a chunk by ID.
	GetChunk(id string) (*types.Chunk, error)

	// FindChunksByName returns chunks whose name matches exactly.
	FindChunksByName(name string, limit int) ([]*types.Chunk, error)

	// DeleteChunksByFile removes all chunks for a file.
	DeleteChunksByFile(filePath string) error
}

// Searcher handles search operations.
type Searcher interface {
	// Search performs vector, BM25 or hybrid search.
	Search(ctx context.Context, req *types.SearchRequest) ([]*types.SearchResult, error)
}

// MetadataStore handles index metadata.
type MetadataStore interface {
	// GetMetadata returns index metadata.
	GetMetadata() (*types.IndexMetadata, error)

	// SetMetadata stores index metadata.
	SetMetadata(meta *types.IndexMetadata) error

	// GetStats returns store statistics.
	GetStats() (*types.StoreStats, error)
}

// FileCache handles file hash caching for incremental indexing.
type FileCache interface {
	// GetFileHash returns the cached hash for a file.
	GetFileHash(filePath string) (string, error)

	// SetFileHash stores the hash for a file.
	SetFileHash(filePath, hash, configHash string) error

	// GetAllFileHashes returns all cached file hashes.
	GetAllFileHashes() (map[string]string, error)

	// DeleteFileCache removes file from cache.
	DeleteFileCache(filePath string) error
}

// Store is a minimal interface for basic store operations.
type Store interface {
	// Name returns the store name (e.g., "sqlitevec").
	Name() string

	// Init initializes the store at the given path.
	Init(path string) error

	// Close releases resources and closes connections.
	Close() error
}

// Maintainer provides maintenance operations for the store.
type Maintainer interface {
	// RebuildFTS rebuilds the FTS index from the source table.
	RebuildFTS() error

	// CheckFTSHealth verifies that the FTS index is in sync with the source table.
	CheckFTSHealth() error
}
