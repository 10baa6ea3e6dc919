package index

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/go-cmp/cmp"
)

func newTestWatcher(t *testing.T, idx *Indexer, onFlush func(changed, removed []string)) *Watcher {
	t.Helper()
	w, err := NewWatcher(WatcherConfig{Indexer: idx, DebounceTime: time.Second, OnFlush: onFlush})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestWatcherHandleEvent(t *testing.T) {
	root := testProject(t)
	idx := newTestIndexer(t, root, testConfig(), newMemStore(), &fakeEmbedder{batch: 8})
	w := newTestWatcher(t, idx, nil)

	events := []fsnotify.Event{
		{Name: filepath.Join(root, "pkg", "db.py"), Op: fsnotify.Write},
		{Name: filepath.Join(root, "gone.py"), Op: fsnotify.Remove},
		{Name: filepath.Join(root, "notes.txt"), Op: fsnotify.Write},
		{Name: filepath.Join(root, ".venv", "lib.py"), Op: fsnotify.Write},
		{Name: filepath.Join(root, "pkg", "views.py"), Op: fsnotify.Chmod},
	}
	for _, e := range events {
		w.handleEvent(e)
	}

	got := w.due(time.Now().Add(time.Hour))
	slices.Sort(got)
	want := []string{"gone.py", "pkg/db.py"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pending mismatch (-want +got):\n%s", diff)
	}
}

func TestWatcherDebounce(t *testing.T) {
	root := testProject(t)
	idx := newTestIndexer(t, root, testConfig(), newMemStore(), &fakeEmbedder{batch: 8})
	w := newTestWatcher(t, idx, nil)

	now := time.Now()
	w.pending["pkg/db.py"] = now

	if got := w.due(now.Add(500 * time.Millisecond)); len(got) != 0 {
		t.Errorf("due() before debounce = %v, want none", got)
	}
	if got := w.due(now.Add(time.Second)); len(got) != 1 {
		t.Errorf("due() after debounce = %v, want pkg/db.py", got)
	}
	if len(w.pending) != 0 {
		t.Errorf("pending not drained: %v", w.pending)
	}
}

func TestWatcherFlush(t *testing.T) {
	root := testProject(t)
	store := newMemStore()
	idx := newTestIndexer(t, root, testConfig(), store, &fakeEmbedder{batch: 8})
	if _, err := idx.Index(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	var changed, removed []string
	w := newTestWatcher(t, idx, func(c, r []string) { changed, removed = c, r })

	writeFiles(t, root, map[string]string{"pkg/views.py": "def home():\n    return 1\n"})
	if err := os.Remove(filepath.Join(root, "pkg", "db.py")); err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	w.pending["pkg/views.py"] = now
	w.pending["pkg/db.py"] = now

	w.flush(context.Background(), now.Add(2*time.Second))

	if diff := cmp.Diff([]string{"pkg/views.py"}, changed); diff != "" {
		t.Errorf("changed mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"pkg/db.py"}, removed); diff != "" {
		t.Errorf("removed mismatch (-want +got):\n%s", diff)
	}
	want := map[string]string{"home": "pkg/views.py"}
	if diff := cmp.Diff(want, store.names()); diff != "" {
		t.Errorf("stored chunks mismatch (-want +got):\n%s", diff)
	}
}
