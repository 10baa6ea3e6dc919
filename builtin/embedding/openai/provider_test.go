package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spetr/pyast-rag/pkg/types"
)

func newTestServer(t *testing.T, status int) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		var data []item
		// Answer in reverse order to check index handling.
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{"embedding", []float32{float32(len(req.Input[i])), 1, 0}, i})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "test"})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestEmbedBatches(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK)
	p := New(Config{APIKey: "test", BaseURL: srv.URL + "/v1", Model: "custom-model", BatchSize: 2})

	got, err := p.Embed(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if *calls != 2 {
		t.Errorf("server called %d times, want 2", *calls)
	}
	for i, want := range []float32{1, 2, 3} {
		if got[i][0] != want {
			t.Errorf("embedding %d = %v, want first value %v", i, got[i], want)
		}
	}
	if p.Dimensions() != 3 {
		t.Errorf("Dimensions() = %d, want 3 learned from response", p.Dimensions())
	}
}

func TestEmbedError(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusInternalServerError)
	p := New(Config{APIKey: "test", BaseURL: srv.URL + "/v1"})

	_, err := p.Embed(context.Background(), []string{"x"})
	if !errors.Is(err, types.ErrEmbeddingFailed) {
		t.Errorf("Embed() error = %v, want ErrEmbeddingFailed", err)
	}
}

func TestKnownModelDimensions(t *testing.T) {
	p := New(Config{APIKey: "test", Model: "text-embedding-3-large"})
	if p.Dimensions() != 3072 {
		t.Errorf("Dimensions() = %d, want 3072", p.Dimensions())
	}
	if p.MaxBatchSize() != DefaultBatchSize {
		t.Errorf("MaxBatchSize() = %d, want %d", p.MaxBatchSize(), DefaultBatchSize)
	}
}
