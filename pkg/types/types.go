// Package types contains shared data types used across the pyast-rag project.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// LanguagePython is the only language the chunker understands.
const LanguagePython = "python"

// SourceFile represents a source code file to be chunked.
type SourceFile struct {
	Path     string // Path or logical identifier of the file
	Content  []byte // File content, as read
	Language string // Always "python" for indexed files
	Hash     string // SHA256 hash for incremental indexing
}

// ComputeHash calculates SHA256 hash of the file content.
func (f *SourceFile) ComputeHash() string {
	h := sha256.Sum256(f.Content)
	return hex.EncodeToString(h[:])
}

// ChunkType is the node type of a chunk.
type ChunkType string

const (
	ChunkTypeFunction ChunkType = "function"
	ChunkTypeClass    ChunkType = "class"
	ChunkTypeMethod   ChunkType = "method"
)

// Valid reports whether t is one of the known chunk types.
func (t ChunkType) Valid() bool {
	switch t {
	case ChunkTypeFunction, ChunkTypeClass, ChunkTypeMethod:
		return true
	}
	return false
}

// Chunk is one function, method or class definition with its metadata.
// Chunks are not modified after the chunker returns them.
type Chunk struct {
	ID           string    // Unique ID: {filepath}:{startline}:{hash[:8]}
	FilePath     string    // Path to source file
	Language     string    // Programming language
	Content      string    // Source text of the definition, decorators included
	ChunkType    ChunkType // function, class or method
	Name         string    // Declared identifier
	ParentName   string    // Nearest enclosing class, empty at top level
	StartLine    int       // First line (1-based, first decorator if any)
	EndLine      int       // Last line of the body (1-based, inclusive)
	Dependencies []string  // Sorted set of referenced identifiers
	Hash         string    // SHA256 of content
}

// GenerateID creates a unique ID for the chunk.
func (c *Chunk) GenerateID() string {
	h := sha256.Sum256([]byte(c.Content))
	hashPrefix := hex.EncodeToString(h[:4])
	return c.FilePath + ":" + strconv.Itoa(c.StartLine) + ":" + hashPrefix
}

// LineRange returns the inclusive 1-based line span of the chunk.
func (c *Chunk) LineRange() (start, end int) {
	return c.StartLine, c.EndLine
}

// HasDependency reports whether name is in the chunk's dependency set.
func (c *Chunk) HasDependency(name string) bool {
	for _, d := range c.Dependencies {
		if d == name {
			return true
		}
	}
	return false
}

// SkippedNode records a definition-like node the walker could not turn
// into a chunk.
type SkippedNode struct {
	Kind   string `json:"kind"`   // Syntax node type
	Line   int    `json:"line"`   // 1-based line of the node
	Reason string `json:"reason"` // Why it was skipped
}

// ChunkCollection is the document-ordered result of chunking one file.
type ChunkCollection struct {
	FilePath string
	Chunks   []*Chunk
	Skipped  []SkippedNode
}

// Len returns the number of chunks in the collection.
func (c *ChunkCollection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Chunks)
}

// ChunkWithEmbedding is a Chunk with its vector embedding.
type ChunkWithEmbedding struct {
	Chunk     *Chunk
	Embedding []float32
}

// SearchMode represents the type of search to perform.
type SearchMode string

const (
	SearchModeVector SearchMode = "vector"
	SearchModeBM25   SearchMode = "bm25"
	SearchModeHybrid SearchMode = "hybrid"
)

// SearchFilters contains filters for search queries.
type SearchFilters struct {
	ChunkTypes []ChunkType // Filter by node type
	FilePaths  []string    // Glob patterns for file paths
}

// SearchRequest represents a search query.
type SearchRequest struct {
	Query    string    // Text query (for BM25)
	QueryVec []float32 // Query embedding (for vector search)
	Limit    int       // Max results to return
	Filters  *SearchFilters
	Mode     SearchMode // vector, bm25, hybrid

	// Hybrid search weights
	VectorWeight float32 // Default 0.7
	BM25Weight   float32 // Default 0.3

	// IncludeRelated resolves each hit's dependencies to stored chunks.
	IncludeRelated bool
	RelatedLimit   int // Max related chunks per hit (default 3)
}

// SearchResult represents a single search result.
type SearchResult struct {
	Chunk       *Chunk
	Score       float32  // Final score
	VectorScore float32  // For debugging
	BM25Score   float32  // For debugging
	Related     []*Chunk // Chunks named by this chunk's dependencies
}

// StoreStats contains statistics about the index.
type StoreStats struct {
	TotalChunks  int
	ChunksByType map[ChunkType]int
	IndexedFiles int
	LastIndexed  time.Time
	DBSizeBytes  int64
}

// IndexMetadata contains metadata about the index.
type IndexMetadata struct {
	SchemaVersion int       // For detecting incompatible changes
	CreatedAt     time.Time // When index was created
	LastUpdated   time.Time // Last update time
	ToolVersion   string    // Version of pyast-rag
	ConfigHash    string    // Hash of configuration

	// Provider info
	EmbeddingProvider   string // "ollama"
	EmbeddingModel      string // "nomic-embed-text"
	EmbeddingDimensions int    // 768
	ChunkingStrategy    string // "treesitter"

	// Stats
	Stats StoreStats
}

// IndexProgress represents the current state of indexing.
type IndexProgress struct {
	Phase           string // "scanning", "chunking", "embedding", "storing"
	TotalFiles      int
	ProcessedFiles  int
	TotalChunks     int
	ProcessedChunks int
	CurrentFile     string
	Error           error // Non-fatal error (e.g., cannot parse file)
}

// FileFailure is a file the indexer could not chunk.
type FileFailure struct {
	Path   string
	Reason string
}

// IndexReport summarizes one indexing run.
type IndexReport struct {
	ScannedFiles int
	ChangedFiles int
	IndexedFiles int
	Chunks       int
	SkippedNodes int
	Failed       []FileFailure
	DeletedFiles int
	Duration     time.Duration
}
