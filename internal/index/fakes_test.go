package index

import (
	"context"
	"fmt"
	"sync"

	"github.com/spetr/pyast-rag/pkg/types"
)

// memStore is an in-memory provider.VectorStore.
type memStore struct {
	mu     sync.Mutex
	chunks map[string]*types.ChunkWithEmbedding
	hashes map[string]string
	meta   *types.IndexMetadata
}

func newMemStore() *memStore {
	return &memStore{
		chunks: make(map[string]*types.ChunkWithEmbedding),
		hashes: make(map[string]string),
	}
}

func (s *memStore) Name() string      { return "mem" }
func (s *memStore) Init(string) error { return nil }
func (s *memStore) Close() error      { return nil }

func (s *memStore) StoreChunks(chunks []*types.ChunkWithEmbedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		s.chunks[c.Chunk.ID] = c
	}
	return nil
}

func (s *memStore) GetChunk(id string) (*types.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chunks[id]
	if !ok {
		return nil, fmt.Errorf("chunk %s: %w", id, types.ErrNotFound)
	}
	return c.Chunk, nil
}

func (s *memStore) FindChunksByName(name string, limit int) ([]*types.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*types.Chunk{}
	for _, c := range s.chunks {
		if c.Chunk.Name == name && len(out) < limit {
			out = append(out, c.Chunk)
		}
	}
	return out, nil
}

func (s *memStore) DeleteChunksByFile(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.chunks {
		if c.Chunk.FilePath == path {
			delete(s.chunks, id)
		}
	}
	return nil
}

func (s *memStore) Search(context.Context, *types.SearchRequest) ([]*types.SearchResult, error) {
	return nil, nil
}

func (s *memStore) GetMetadata() (*types.IndexMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta, nil
}

func (s *memStore) SetMetadata(meta *types.IndexMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = meta
	return nil
}

func (s *memStore) GetStats() (*types.StoreStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &types.StoreStats{ChunksByType: map[types.ChunkType]int{}, IndexedFiles: len(s.hashes)}
	for _, c := range s.chunks {
		stats.TotalChunks++
		stats.ChunksByType[c.Chunk.ChunkType]++
	}
	return stats, nil
}

func (s *memStore) GetFileHash(path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hashes[path], nil
}

func (s *memStore) SetFileHash(path, hash, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[path] = hash
	return nil
}

func (s *memStore) GetAllFileHashes() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.hashes))
	for k, v := range s.hashes {
		out[k] = v
	}
	return out, nil
}

func (s *memStore) DeleteFileCache(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hashes, path)
	return nil
}

func (s *memStore) names() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string)
	for _, c := range s.chunks {
		out[c.Chunk.Name] = c.Chunk.FilePath
	}
	return out
}

// fakeEmbedder returns a 2-dimensional vector per text.
type fakeEmbedder struct {
	mu      sync.Mutex
	batch   int
	calls   int
	texts   []string
	failErr error
}

func (e *fakeEmbedder) Name() string                 { return "fake" }
func (e *fakeEmbedder) Dimensions() int              { return 2 }
func (e *fakeEmbedder) MaxBatchSize() int            { return e.batch }
func (e *fakeEmbedder) Warmup(context.Context) error { return nil }
func (e *fakeEmbedder) Close() error                 { return nil }

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failErr != nil {
		return nil, e.failErr
	}
	e.calls++
	e.texts = append(e.texts, texts...)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}
