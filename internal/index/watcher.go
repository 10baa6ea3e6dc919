package index

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-indexes Python files as they change on disk.
type Watcher struct {
	indexer    *Indexer
	projectDir string
	watcher    *fsnotify.Watcher

	pendingMu    sync.Mutex
	pending      map[string]time.Time
	debounceTime time.Duration
	onFlush      func(changed, removed []string)
}

// WatcherConfig contains watcher configuration.
type WatcherConfig struct {
	Indexer      *Indexer
	DebounceTime time.Duration // Default: 500ms

	// OnFlush, if set, is called after each debounced batch.
	OnFlush func(changed, removed []string)
}

// NewWatcher creates a new file watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounce := cfg.DebounceTime
	if debounce == 0 {
		debounce = 500 * time.Millisecond
	}

	return &Watcher{
		indexer:      cfg.Indexer,
		projectDir:   cfg.Indexer.projectDir,
		watcher:      fw,
		pending:      make(map[string]time.Time),
		debounceTime: debounce,
		onFlush:      cfg.OnFlush,
	}, nil
}

// Watch blocks until ctx is cancelled, re-indexing files that stay
// unchanged for the debounce period.
func (w *Watcher) Watch(ctx context.Context) error {
	if err := w.addDirs(w.projectDir); err != nil {
		return err
	}
	slog.Info("watching for file changes", "dir", w.projectDir)

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping watcher")
			return w.watcher.Close()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "error", err)
		}
	}
}

// addDirs watches root and every directory below it that is not skipped.
func (w *Watcher) addDirs(root string) error {
	m := w.indexer.matcher
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.projectDir, path)
		if err != nil {
			return nil
		}
		if m.skipDir(filepath.ToSlash(rel), d.Name()) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			slog.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addDirs(event.Name); err != nil {
				slog.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	rel, ok := w.indexer.relPath(event.Name)
	if !ok || hiddenPath(rel) || !w.indexer.matcher.Match(rel) {
		return
	}

	w.pendingMu.Lock()
	w.pending[rel] = time.Now()
	w.pendingMu.Unlock()

	slog.Debug("file changed", "path", rel, "op", event.Op.String())
}

func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.flush(ctx, now)
		}
	}
}

// due removes and returns the pending paths that settled before now.
func (w *Watcher) due(now time.Time) []string {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	var ready []string
	for path, changedAt := range w.pending {
		if now.Sub(changedAt) >= w.debounceTime {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	return ready
}

// flush re-indexes settled files and drops the ones that are gone.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	ready := w.due(now)
	if len(ready) == 0 {
		return
	}

	var changed, removed []string
	for _, rel := range ready {
		_, err := os.Stat(filepath.Join(w.projectDir, filepath.FromSlash(rel)))
		if errors.Is(err, fs.ErrNotExist) {
			removed = append(removed, rel)
		} else {
			changed = append(changed, rel)
		}
	}

	if len(removed) > 0 {
		if err := w.indexer.RemoveFiles(removed); err != nil {
			slog.Warn("failed to remove files from index", "error", err)
		}
	}
	if len(changed) > 0 {
		report, err := w.indexer.IndexFiles(ctx, changed)
		switch {
		case err != nil:
			slog.Warn("re-indexing failed", "error", err)
		default:
			slog.Info("re-indexed changed files",
				"files", report.IndexedFiles, "chunks", report.Chunks, "failed", len(report.Failed))
		}
	}

	if w.onFlush != nil {
		w.onFlush(changed, removed)
	}
}

// Close closes the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
