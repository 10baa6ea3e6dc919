package host

import (
	"context"
	"fmt"

	"github.com/spetr/pyast-rag/pkg/plugin/shared"
	"github.com/spetr/pyast-rag/pkg/provider"
	"github.com/spetr/pyast-rag/pkg/types"
)

// EmbeddingAdapter exposes a plugin as a provider.EmbeddingProvider.
type EmbeddingAdapter struct {
	plugin  shared.EmbeddingProvider
	release func()
}

// NewEmbeddingAdapter wraps p. release, if set, replaces closing p on
// Close; it usually closes p and stops the plugin process.
func NewEmbeddingAdapter(p shared.EmbeddingProvider, release func()) *EmbeddingAdapter {
	return &EmbeddingAdapter{plugin: p, release: release}
}

// OpenEmbedding loads the named plugin from dir and wraps it. Closing the
// adapter stops the plugin process.
func OpenEmbedding(dir, name, logLevel string) (*EmbeddingAdapter, error) {
	m := NewManager(dir, logLevel)
	loaded, err := m.LoadEmbedding(name)
	if err != nil {
		return nil, err
	}
	return &EmbeddingAdapter{
		plugin:  loaded.Embedding,
		release: func() { m.Unload(name) },
	}, nil
}

// Name returns the provider name.
func (a *EmbeddingAdapter) Name() string {
	return a.plugin.Name()
}

// Embed calls the plugin. net/rpc has no cancellation, so a cancelled
// context returns at once and the call finishes in the background.
func (a *EmbeddingAdapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type result struct {
		vecs [][]float32
		err  error
	}
	done := make(chan result, 1)
	go func() {
		vecs, err := a.plugin.Embed(texts)
		done <- result{vecs, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrEmbeddingFailed, r.err)
		}
		if len(r.vecs) != len(texts) {
			return nil, fmt.Errorf("%w: plugin returned %d embeddings for %d inputs",
				types.ErrEmbeddingFailed, len(r.vecs), len(texts))
		}
		return r.vecs, nil
	}
}

// Dimensions returns the embedding dimensions.
func (a *EmbeddingAdapter) Dimensions() int {
	return a.plugin.Dimensions()
}

// MaxBatchSize returns the maximum batch size.
func (a *EmbeddingAdapter) MaxBatchSize() int {
	return a.plugin.MaxBatchSize()
}

// Warmup warms up the provider.
func (a *EmbeddingAdapter) Warmup(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.plugin.Warmup()
}

// Close closes the provider and releases the plugin process.
func (a *EmbeddingAdapter) Close() error {
	if a.release != nil {
		a.release()
		return nil
	}
	return a.plugin.Close()
}

var _ provider.EmbeddingProvider = (*EmbeddingAdapter)(nil)
