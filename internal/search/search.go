// Package search answers code queries against the chunk index.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spetr/pyast-rag/pkg/provider"
	"github.com/spetr/pyast-rag/pkg/types"
)

// Store is the part of the vector store the engine reads from.
type Store interface {
	provider.Searcher
	provider.ChunkStore
}

// Engine handles search operations.
type Engine struct {
	store     Store
	embedding provider.EmbeddingProvider // nil allows bm25 only
}

// Config contains search engine configuration.
type Config struct {
	Store     Store
	Embedding provider.EmbeddingProvider
}

// New creates a new search engine.
func New(cfg Config) *Engine {
	return &Engine{
		store:     cfg.Store,
		embedding: cfg.Embedding,
	}
}

// Search performs a search with the given request. The request is not
// modified. With IncludeRelated every hit carries up to RelatedLimit other
// chunks whose names appear in its dependencies.
func (e *Engine) Search(ctx context.Context, req *types.SearchRequest) ([]*types.SearchResult, error) {
	r := *req
	r.Query = strings.TrimSpace(r.Query)
	if r.Limit <= 0 {
		r.Limit = 10
	}
	if r.Mode == "" {
		r.Mode = types.SearchModeHybrid
	}
	if r.VectorWeight == 0 && r.BM25Weight == 0 {
		r.VectorWeight = 0.7
		r.BM25Weight = 0.3
	}
	if r.RelatedLimit <= 0 {
		r.RelatedLimit = 3
	}

	switch r.Mode {
	case types.SearchModeVector, types.SearchModeBM25, types.SearchModeHybrid:
	default:
		return nil, fmt.Errorf("%w: unknown search mode %q", types.ErrSearchFailed, r.Mode)
	}
	if r.Query == "" && len(r.QueryVec) == 0 {
		return nil, fmt.Errorf("%w: empty query", types.ErrSearchFailed)
	}

	if r.Mode != types.SearchModeBM25 && len(r.QueryVec) == 0 {
		vec, err := e.embedQuery(ctx, r.Query)
		if err != nil {
			return nil, err
		}
		r.QueryVec = vec
	}

	results, err := e.store.Search(ctx, &r)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if len(results) > r.Limit {
		results = results[:r.Limit]
	}

	if r.IncludeRelated {
		for _, res := range results {
			res.Related = e.related(res.Chunk, r.RelatedLimit)
		}
	}
	return results, nil
}

func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if e.embedding == nil {
		return nil, fmt.Errorf("%w: no embedding provider for vector search", types.ErrSearchFailed)
	}
	vecs, err := e.embedding.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: got %d query vectors", types.ErrEmbeddingFailed, len(vecs))
	}
	return vecs[0], nil
}

// related resolves dependency names of c to stored definitions. A dotted
// dependency such as "self.repo.save" resolves by its last segment.
func (e *Engine) related(c *types.Chunk, limit int) []*types.Chunk {
	out := []*types.Chunk{}
	seen := map[string]bool{c.ID: true}
	tried := map[string]bool{}

	for _, dep := range c.Dependencies {
		if len(out) >= limit {
			break
		}
		name := LastSegment(dep)
		if name == "" || tried[name] {
			continue
		}
		tried[name] = true

		found, err := e.store.FindChunksByName(name, limit+1)
		if err != nil {
			slog.Warn("failed to resolve dependency", "name", name, "error", err)
			continue
		}
		for _, rc := range found {
			if seen[rc.ID] {
				continue
			}
			seen[rc.ID] = true
			out = append(out, rc)
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}

// LastSegment returns the identifier after the last dot of a dotted name.
func LastSegment(dep string) string {
	if i := strings.LastIndexByte(dep, '.'); i >= 0 {
		return dep[i+1:]
	}
	return dep
}
