package host

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/spetr/pyast-rag/pkg/types"
)

type stubPlugin struct {
	vecs   [][]float32
	err    error
	closed bool
}

func (s *stubPlugin) Name() string                        { return "stub" }
func (s *stubPlugin) Embed([]string) ([][]float32, error) { return s.vecs, s.err }
func (s *stubPlugin) Dimensions() int                     { return 2 }
func (s *stubPlugin) MaxBatchSize() int                   { return 8 }
func (s *stubPlugin) Warmup() error                       { return nil }

func (s *stubPlugin) Close() error {
	s.closed = true
	return nil
}

func TestAdapterEmbed(t *testing.T) {
	stub := &stubPlugin{vecs: [][]float32{{1, 2}}}
	released := false
	a := NewEmbeddingAdapter(stub, func() { released = true })

	got, err := a.Embed(context.Background(), []string{"x"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if diff := cmp.Diff([][]float32{{1, 2}}, got); diff != "" {
		t.Errorf("Embed() mismatch (-want +got):\n%s", diff)
	}

	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if !released {
		t.Error("Close() did not release the plugin")
	}
}

func TestAdapterCloseWithoutRelease(t *testing.T) {
	stub := &stubPlugin{}
	if err := NewEmbeddingAdapter(stub, nil).Close(); err != nil {
		t.Fatal(err)
	}
	if !stub.closed {
		t.Error("Close() did not close the plugin")
	}
}

func TestAdapterEmbedErrors(t *testing.T) {
	tests := []struct {
		name string
		stub *stubPlugin
		in   []string
	}{
		{"plugin error", &stubPlugin{err: errors.New("boom")}, []string{"x"}},
		{"count mismatch", &stubPlugin{vecs: [][]float32{{1, 2}}}, []string{"x", "y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEmbeddingAdapter(tt.stub, nil).Embed(context.Background(), tt.in)
			if !errors.Is(err, types.ErrEmbeddingFailed) {
				t.Errorf("Embed() error = %v, want ErrEmbeddingFailed", err)
			}
		})
	}
}

func TestAdapterCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEmbeddingAdapter(&stubPlugin{}, nil).Embed(ctx, []string{"x"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Embed() error = %v, want context.Canceled", err)
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for name, mode := range map[string]os.FileMode{"b-embed": 0755, "a-embed": 0700, "README": 0644} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"), mode); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}

	got, err := NewManager(dir, "").Discover()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a-embed", "b-embed"}, got); diff != "" {
		t.Errorf("Discover() mismatch (-want +got):\n%s", diff)
	}

	missing, err := NewManager(filepath.Join(dir, "nope"), "").Discover()
	if err != nil || missing != nil {
		t.Errorf("Discover(missing dir) = %v, %v", missing, err)
	}
}

func TestLoadMissingPlugin(t *testing.T) {
	_, err := NewManager(t.TempDir(), "debug").LoadEmbedding("ghost")
	if !errors.Is(err, types.ErrProviderNotAvailable) {
		t.Errorf("LoadEmbedding() error = %v, want ErrProviderNotAvailable", err)
	}
}
