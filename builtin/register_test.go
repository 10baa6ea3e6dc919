package builtin

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/spetr/pyast-rag/pkg/provider"
	"github.com/spetr/pyast-rag/pkg/types"
)

func TestBuiltinsRegistered(t *testing.T) {
	r := provider.DefaultRegistry
	if diff := cmp.Diff([]string{"ollama", "openai", "plugin"}, r.ListEmbeddings()); diff != "" {
		t.Errorf("embeddings mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"treesitter"}, r.ListChunkings()); diff != "" {
		t.Errorf("chunkings mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"sqlitevec"}, r.ListVectorStores()); diff != "" {
		t.Errorf("vector stores mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateBuiltins(t *testing.T) {
	r := provider.DefaultRegistry

	chunker, err := r.CreateChunking("treesitter", provider.ChunkingConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if !chunker.SupportsLanguage("python") {
		t.Error("treesitter chunker does not support python")
	}

	emb, err := r.CreateEmbedding("ollama", provider.EmbeddingConfig{Model: "nomic-embed-text"})
	if err != nil {
		t.Fatal(err)
	}
	if emb.Name() != "ollama" {
		t.Errorf("Name() = %q", emb.Name())
	}

	_, err = r.CreateEmbedding("plugin", provider.EmbeddingConfig{})
	if !errors.Is(err, types.ErrInvalidConfig) {
		t.Errorf("plugin without name: error = %v, want ErrInvalidConfig", err)
	}
}
