package provider

// VectorStore stores and searches chunk embeddings.
// It composes the smaller store interfaces; callers should depend on the
// smallest one they need.
type VectorStore interface {
	Store
	ChunkStore
	Searcher
	MetadataStore
	FileCache
}

// VectorStoreConfig contains configuration for vector stores.
type VectorStoreConfig struct {
	Provider string // "sqlitevec"
	Path     string // Path to database file
}
