// Package index scans a project for Python files, chunks them in parallel
// and stores the embedded chunks.
package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spetr/pyast-rag/internal/config"
	"github.com/spetr/pyast-rag/pkg/provider"
	"github.com/spetr/pyast-rag/pkg/types"
)

// SchemaVersion is recorded in the index metadata.
const SchemaVersion = 1

// Indexer builds and updates the chunk index of one project.
type Indexer struct {
	config      *config.Config
	store       provider.VectorStore
	embedding   provider.EmbeddingProvider
	chunker     provider.ChunkingStrategy
	matcher     *Matcher
	projectDir  string
	configHash  string
	toolVersion string

	progressMu sync.Mutex
	progress   types.IndexProgress
	onProgress func(types.IndexProgress)
}

// Config contains indexer configuration.
type Config struct {
	ProjectDir  string
	Config      *config.Config
	Store       provider.VectorStore
	Embedding   provider.EmbeddingProvider
	Chunker     provider.ChunkingStrategy
	OnProgress  func(types.IndexProgress)
	ToolVersion string
}

// New creates a new indexer.
func New(cfg Config) *Indexer {
	return &Indexer{
		config:      cfg.Config,
		store:       cfg.Store,
		embedding:   cfg.Embedding,
		chunker:     cfg.Chunker,
		matcher:     NewMatcher(cfg.Config.Index),
		projectDir:  cfg.ProjectDir,
		configHash:  cfg.Config.Hash(),
		toolVersion: cfg.ToolVersion,
		onProgress:  cfg.OnProgress,
	}
}

// Matcher returns the include/exclude matcher the indexer uses.
func (idx *Indexer) Matcher() *Matcher {
	return idx.matcher
}

// Index scans the project and indexes new and changed files. Files that
// disappeared are dropped from the index. With force every file is
// re-chunked and re-embedded. A file that cannot be read or parsed is
// recorded in the report and does not stop the run.
func (idx *Indexer) Index(ctx context.Context, force bool) (*types.IndexReport, error) {
	start := time.Now()
	if t := idx.config.Limits.Timeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	idx.setProgress(func(p *types.IndexProgress) { *p = types.IndexProgress{Phase: "scanning"} })

	paths, complete, err := scan(ctx, idx.projectDir, idx.config)
	if err != nil {
		return nil, fmt.Errorf("failed to scan files: %w", err)
	}
	slog.Info("scanned files", "total", len(paths), "complete", complete)

	meta, err := idx.store.GetMetadata()
	if err != nil {
		return nil, fmt.Errorf("failed to read index metadata: %w", err)
	}
	if meta != nil && meta.ConfigHash != idx.configHash && !force {
		slog.Warn("index configuration changed, re-indexing all files")
		force = true
	}

	report := &types.IndexReport{ScannedFiles: len(paths), Failed: []types.FileFailure{}}

	if complete {
		deleted, err := idx.removeMissing(paths)
		if err != nil {
			return nil, err
		}
		report.DeletedFiles = deleted
	}

	if err := idx.process(ctx, paths, force, report); err != nil {
		return report, err
	}

	if err := idx.writeMetadata(meta); err != nil {
		return report, err
	}

	report.Duration = time.Since(start)
	slog.Info("indexing complete",
		"scanned", report.ScannedFiles,
		"indexed", report.IndexedFiles,
		"chunks", report.Chunks,
		"skipped_nodes", report.SkippedNodes,
		"failed", len(report.Failed),
		"deleted", report.DeletedFiles,
		"duration", report.Duration.Round(time.Millisecond),
	)
	return report, nil
}

// IndexFiles re-indexes the given files if their content changed. Paths
// may be absolute or relative to the project; unmatched paths are ignored.
func (idx *Indexer) IndexFiles(ctx context.Context, paths []string) (*types.IndexReport, error) {
	start := time.Now()
	report := &types.IndexReport{Failed: []types.FileFailure{}}

	var rels []string
	for _, p := range paths {
		rel, ok := idx.relPath(p)
		if ok && idx.matcher.Match(rel) {
			rels = append(rels, rel)
		}
	}
	report.ScannedFiles = len(rels)
	if len(rels) == 0 {
		return report, nil
	}

	if err := idx.process(ctx, rels, false, report); err != nil {
		return report, err
	}

	meta, err := idx.store.GetMetadata()
	if err != nil {
		return report, err
	}
	if err := idx.writeMetadata(meta); err != nil {
		return report, err
	}
	report.Duration = time.Since(start)
	return report, nil
}

// RemoveFiles drops the chunks and cache entries of the given files.
func (idx *Indexer) RemoveFiles(paths []string) error {
	var errs []error
	for _, p := range paths {
		rel, ok := idx.relPath(p)
		if !ok {
			continue
		}
		if err := idx.removeFile(rel); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (idx *Indexer) removeFile(rel string) error {
	if err := idx.store.DeleteChunksByFile(rel); err != nil {
		return fmt.Errorf("delete chunks of %s: %w", rel, err)
	}
	if err := idx.store.DeleteFileCache(rel); err != nil {
		return fmt.Errorf("delete cache of %s: %w", rel, err)
	}
	slog.Info("removed file from index", "file", rel)
	return nil
}

// removeMissing drops cached files that are no longer in the scan.
func (idx *Indexer) removeMissing(paths []string) (int, error) {
	cached, err := idx.store.GetAllFileHashes()
	if err != nil {
		return 0, fmt.Errorf("failed to read file cache: %w", err)
	}
	present := make(map[string]bool, len(paths))
	for _, p := range paths {
		present[p] = true
	}

	deleted := 0
	for path := range cached {
		if present[path] {
			continue
		}
		if err := idx.removeFile(path); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// relPath converts p to a slash-separated project-relative path.
func (idx *Indexer) relPath(p string) (string, bool) {
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(idx.projectDir, p)
		if err != nil || strings.HasPrefix(rel, "..") {
			return "", false
		}
		p = rel
	}
	return filepath.ToSlash(filepath.Clean(p)), true
}

// fileResult is the outcome of chunking one file.
type fileResult struct {
	file    *types.SourceFile
	chunks  []*types.Chunk
	skipped int
	err     error
}

// process reads, chunks, embeds and stores the given relative paths.
func (idx *Indexer) process(ctx context.Context, rels []string, force bool, report *types.IndexReport) error {
	files := idx.readChanged(rels, force, report)
	report.ChangedFiles = len(files)
	if len(files) == 0 {
		slog.Info("no files need indexing")
		return nil
	}

	idx.setProgress(func(p *types.IndexProgress) {
		p.Phase = "chunking"
		p.TotalFiles = len(files)
		p.ProcessedFiles = 0
	})

	results, err := idx.chunkFiles(ctx, files)
	if err != nil {
		return err
	}

	var (
		ok     []fileResult
		chunks []*types.Chunk
	)
	for _, r := range results {
		if r.err != nil {
			slog.Warn("skipping file", "file", r.file.Path, "error", r.err)
			report.Failed = append(report.Failed, types.FileFailure{Path: r.file.Path, Reason: r.err.Error()})
			continue
		}
		report.SkippedNodes += r.skipped
		ok = append(ok, r)
		chunks = append(chunks, r.chunks...)
	}

	vectors, err := idx.embedChunks(ctx, chunks)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("embedding failed: %w", err)
	}

	idx.setProgress(func(p *types.IndexProgress) { p.Phase = "storing" })

	next := 0
	for _, r := range ok {
		batch := make([]*types.ChunkWithEmbedding, len(r.chunks))
		for i, c := range r.chunks {
			batch[i] = &types.ChunkWithEmbedding{Chunk: c, Embedding: vectors[next]}
			next++
		}

		if err := idx.store.DeleteChunksByFile(r.file.Path); err != nil {
			return fmt.Errorf("delete old chunks of %s: %w", r.file.Path, err)
		}
		if err := idx.store.StoreChunks(batch); err != nil {
			return fmt.Errorf("store chunks of %s: %w", r.file.Path, err)
		}
		if err := idx.store.SetFileHash(r.file.Path, r.file.Hash, idx.configHash); err != nil {
			slog.Warn("failed to cache file hash", "file", r.file.Path, "error", err)
		}
		report.IndexedFiles++
		report.Chunks += len(r.chunks)
	}
	return nil
}

// readChanged loads the files whose content differs from the cache.
func (idx *Indexer) readChanged(rels []string, force bool, report *types.IndexReport) []*types.SourceFile {
	maxSize := idx.config.Limits.MaxFileSizeBytes()

	var files []*types.SourceFile
	for _, rel := range rels {
		full := filepath.Join(idx.projectDir, filepath.FromSlash(rel))
		info, err := os.Stat(full)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			report.Failed = append(report.Failed, types.FileFailure{Path: rel, Reason: err.Error()})
			continue
		}
		if maxSize > 0 && info.Size() > maxSize {
			slog.Debug("skipping large file", "file", rel, "size", info.Size(), "max", maxSize)
			continue
		}

		content, err := os.ReadFile(full)
		if err != nil {
			report.Failed = append(report.Failed, types.FileFailure{Path: rel, Reason: err.Error()})
			continue
		}

		file := &types.SourceFile{Path: rel, Content: content, Language: types.LanguagePython}
		file.Hash = file.ComputeHash()

		if !force {
			cached, err := idx.store.GetFileHash(rel)
			if err != nil {
				slog.Warn("failed to get cached hash", "file", rel, "error", err)
			} else if cached == file.Hash {
				continue
			}
		}
		files = append(files, file)
	}
	return files
}

// chunkFiles chunks files on a bounded worker pool. Per-file errors are
// returned in the results; only cancellation of ctx fails the call.
func (idx *Indexer) chunkFiles(ctx context.Context, files []*types.SourceFile) ([]fileResult, error) {
	workers := idx.config.Limits.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			fctx := gctx
			if t := idx.config.Limits.FileTimeout; t > 0 {
				var cancel context.CancelFunc
				fctx, cancel = context.WithTimeout(gctx, t)
				defer cancel()
			}

			coll, err := idx.chunker.ChunkContext(fctx, file)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}

			results[i] = fileResult{file: file, err: err}
			if err == nil {
				results[i].chunks = coll.Chunks
				results[i].skipped = len(coll.Skipped)
			}

			idx.setProgress(func(p *types.IndexProgress) {
				p.ProcessedFiles++
				p.CurrentFile = file.Path
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// embedChunks embeds chunk contents in provider-sized batches and returns
// one vector per chunk, in order.
func (idx *Indexer) embedChunks(ctx context.Context, chunks []*types.Chunk) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	batchSize := max(idx.embedding.MaxBatchSize(), 1)
	idx.setProgress(func(p *types.IndexProgress) {
		p.Phase = "embedding"
		p.TotalChunks = len(chunks)
		p.ProcessedChunks = 0
	})

	vectors := make([][]float32, 0, len(chunks))
	for i := 0; i < len(chunks); i += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(i+batchSize, len(chunks))

		texts := make([]string, end-i)
		for j, c := range chunks[i:end] {
			texts[j] = EmbeddingText(c, idx.config.Limits.MaxEmbedChars)
		}

		batch, err := idx.embedding.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", i/batchSize, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("batch %d: %w: got %d vectors for %d texts",
				i/batchSize, types.ErrEmbeddingFailed, len(batch), len(texts))
		}
		vectors = append(vectors, batch...)

		idx.setProgress(func(p *types.IndexProgress) { p.ProcessedChunks = end })
	}
	return vectors, nil
}

// EmbeddingText is the text embedded for a chunk: its content, cut to
// maxChars bytes on a rune boundary when maxChars is positive.
func EmbeddingText(c *types.Chunk, maxChars int) string {
	text := c.Content
	if maxChars > 0 && len(text) > maxChars {
		text = strings.ToValidUTF8(text[:maxChars], "")
	}
	return text
}

func (idx *Indexer) writeMetadata(prev *types.IndexMetadata) error {
	stats, err := idx.store.GetStats()
	if err != nil {
		return fmt.Errorf("failed to read store stats: %w", err)
	}

	now := time.Now()
	meta := &types.IndexMetadata{
		SchemaVersion:       SchemaVersion,
		CreatedAt:           now,
		LastUpdated:         now,
		ToolVersion:         idx.toolVersion,
		ConfigHash:          idx.configHash,
		EmbeddingProvider:   idx.embedding.Name(),
		EmbeddingModel:      idx.config.Embedding.Model,
		EmbeddingDimensions: idx.embedding.Dimensions(),
		ChunkingStrategy:    idx.chunker.Name(),
		Stats:               *stats,
	}
	if prev != nil && !prev.CreatedAt.IsZero() {
		meta.CreatedAt = prev.CreatedAt
	}

	if err := idx.store.SetMetadata(meta); err != nil {
		return fmt.Errorf("failed to store metadata: %w", err)
	}
	return nil
}

func (idx *Indexer) setProgress(update func(*types.IndexProgress)) {
	idx.progressMu.Lock()
	defer idx.progressMu.Unlock()

	update(&idx.progress)
	if idx.onProgress != nil {
		idx.onProgress(idx.progress)
	}
}

// Progress returns the latest progress snapshot.
func (idx *Indexer) Progress() types.IndexProgress {
	idx.progressMu.Lock()
	defer idx.progressMu.Unlock()
	return idx.progress
}
