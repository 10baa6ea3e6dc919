package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spetr/pyast-rag/pkg/types"
)

func TestEmbed(t *testing.T) {
	var batches [][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("model = %q, want test-model", req.Model)
		}
		batches = append(batches, req.Input)

		var resp embedResponse
		for _, in := range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{float32(len(in)), 0, 0, 1})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := New(Config{Endpoint: srv.URL, Model: "test-model", BatchSize: 2})
	got, err := p.Embed(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(batches) != 2 || len(batches[0]) != 2 || len(batches[1]) != 1 {
		t.Errorf("batches = %v, want sizes [2 1]", batches)
	}
	if len(got) != 3 || got[2][0] != 3 {
		t.Errorf("embeddings = %v", got)
	}
	if p.Dimensions() != 4 {
		t.Errorf("Dimensions() = %d, want 4", p.Dimensions())
	}
}

func TestEmbedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := New(Config{Endpoint: srv.URL})
	_, err := p.Embed(context.Background(), []string{"x"})
	if !errors.Is(err, types.ErrEmbeddingFailed) {
		t.Errorf("Embed() error = %v, want ErrEmbeddingFailed", err)
	}
}

func TestEmbedCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1}}})
	}))
	defer srv.Close()

	p := New(Config{Endpoint: srv.URL})
	if _, err := p.Embed(context.Background(), []string{"x", "y"}); err == nil {
		t.Error("Embed() error = nil, want count mismatch")
	}
}

func TestAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/show" {
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := New(Config{Endpoint: srv.URL, Model: "missing"})
	if err := p.Available(context.Background()); err == nil {
		t.Error("Available() error = nil for missing model")
	}
}

func TestDefaults(t *testing.T) {
	p := New(Config{})
	if p.Name() != "ollama" || p.MaxBatchSize() != DefaultBatchSize || p.Dimensions() != DefaultDimensions {
		t.Errorf("defaults = %s/%d/%d", p.Name(), p.MaxBatchSize(), p.Dimensions())
	}
}
