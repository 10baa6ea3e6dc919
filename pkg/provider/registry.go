package provider

import (
	"fmt"
	"slices"
	"sync"

	"github.com/spetr/pyast-rag/pkg/types"
)

// EmbeddingFactory creates an EmbeddingProvider from configuration.
type EmbeddingFactory func(config EmbeddingConfig) (EmbeddingProvider, error)

// ChunkingFactory creates a ChunkingStrategy from configuration.
type ChunkingFactory func(config ChunkingConfig) (ChunkingStrategy, error)

// VectorStoreFactory creates a VectorStore.
type VectorStoreFactory func() (VectorStore, error)

// factories is a named set of constructors of one provider kind.
type factories[F any] struct {
	kind string
	m    map[string]F
}

func newFactories[F any](kind string) factories[F] {
	return factories[F]{kind: kind, m: make(map[string]F)}
}

func (f factories[F]) get(name string) (F, error) {
	factory, ok := f.m[name]
	if !ok {
		var zero F
		return zero, fmt.Errorf("unknown %s %q (available: %v): %w", f.kind, name, f.names(), types.ErrProviderNotAvailable)
	}
	return factory, nil
}

func (f factories[F]) names() []string {
	names := make([]string, 0, len(f.m))
	for name := range f.m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Registry holds factories for all provider types.
type Registry struct {
	mu sync.RWMutex

	embedding   factories[EmbeddingFactory]
	chunking    factories[ChunkingFactory]
	vectorStore factories[VectorStoreFactory]
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		embedding:   newFactories[EmbeddingFactory]("embedding provider"),
		chunking:    newFactories[ChunkingFactory]("chunking strategy"),
		vectorStore: newFactories[VectorStoreFactory]("vector store"),
	}
}

// RegisterEmbedding registers an embedding provider factory.
func (r *Registry) RegisterEmbedding(name string, factory EmbeddingFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embedding.m[name] = factory
}

// RegisterChunking registers a chunking strategy factory.
func (r *Registry) RegisterChunking(name string, factory ChunkingFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunking.m[name] = factory
}

// RegisterVectorStore registers a vector store factory.
func (r *Registry) RegisterVectorStore(name string, factory VectorStoreFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vectorStore.m[name] = factory
}

// CreateEmbedding creates an embedding provider by name.
func (r *Registry) CreateEmbedding(name string, config EmbeddingConfig) (EmbeddingProvider, error) {
	r.mu.RLock()
	factory, err := r.embedding.get(name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return factory(config)
}

// CreateChunking creates a chunking strategy by name.
func (r *Registry) CreateChunking(name string, config ChunkingConfig) (ChunkingStrategy, error) {
	r.mu.RLock()
	factory, err := r.chunking.get(name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return factory(config)
}

// CreateVectorStore creates a vector store by name.
func (r *Registry) CreateVectorStore(name string) (VectorStore, error) {
	r.mu.RLock()
	factory, err := r.vectorStore.get(name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return factory()
}

// ListEmbeddings returns all registered embedding provider names, sorted.
func (r *Registry) ListEmbeddings() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.embedding.names()
}

// ListChunkings returns all registered chunking strategy names, sorted.
func (r *Registry) ListChunkings() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.chunking.names()
}

// ListVectorStores returns all registered vector store names, sorted.
func (r *Registry) ListVectorStores() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.vectorStore.names()
}

// HasEmbedding checks if an embedding provider is registered.
func (r *Registry) HasEmbedding(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.embedding.m[name]
	return ok
}

// HasChunking checks if a chunking strategy is registered.
func (r *Registry) HasChunking(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.chunking.m[name]
	return ok
}

// DefaultRegistry is the global default registry.
var DefaultRegistry = NewRegistry()

// RegisterEmbedding registers an embedding provider in the default registry.
func RegisterEmbedding(name string, factory EmbeddingFactory) {
	DefaultRegistry.RegisterEmbedding(name, factory)
}

// RegisterChunking registers a chunking strategy in the default registry.
func RegisterChunking(name string, factory ChunkingFactory) {
	DefaultRegistry.RegisterChunking(name, factory)
}

// RegisterVectorStore registers a vector store in the default registry.
func RegisterVectorStore(name string, factory VectorStoreFactory) {
	DefaultRegistry.RegisterVectorStore(name, factory)
}
