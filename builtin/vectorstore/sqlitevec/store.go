// Package sqlitevec implements VectorStore using sqlite-vec for vector search
// and FTS5 for BM25 full-text search.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/bmatcuk/doublestar/v4"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/spetr/pyast-rag/pkg/provider"
	"github.com/spetr/pyast-rag/pkg/types"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

// driverName is go-sqlite3 with the path_match function registered on every
// connection.
const driverName = "sqlite3_pyast"

var (
	// sqlite-vec Auto() and driver registration must happen exactly once,
	// before any db connection is opened.
	initOnce sync.Once
)

// SchemaVersion is incremented when schema changes require reindexing.
const SchemaVersion = 1

const dimensionsKey = "vector_dimensions"

// chunkColumns is the column list scanned by scanChunk.
const chunkColumns = `c.id, c.file_path, c.language, c.content, c.node_type,
	c.name, c.parent_name, c.start_line, c.end_line, c.dependencies, c.hash`

// Store implements the VectorStore interface using sqlite-vec.
type Store struct {
	db         *sql.DB
	path       string
	dimensions int
	enableFTS  bool
}

// New creates a new sqlite-vec store.
func New() *Store {
	return &Store{
		enableFTS: true,
	}
}

// Name returns the store name.
func (s *Store) Name() string {
	return "sqlitevec"
}

func registerDriver() {
	sqlite_vec.Auto()
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("path_match", pathMatch, true)
		},
	})
}

// pathMatch reports whether path matches the doublestar pattern. A pattern
// without a slash also matches against the base name.
func pathMatch(pattern, path string) bool {
	if ok, _ := doublestar.Match(pattern, path); ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		ok, _ := doublestar.Match(pattern, filepath.Base(path))
		return ok
	}
	return false
}

// Init initializes the store at the given path.
func (s *Store) Init(path string) error {
	s.path = path
	initOnce.Do(registerDriver)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// WAL for concurrent readers, busy_timeout to wait for locks instead of failing
	db, err := sql.Open(driverName, path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db

	if _, err := db.Exec("SELECT vec_version()"); err != nil {
		return fmt.Errorf("sqlite-vec extension not available: %w", err)
	}

	if err := s.createSchema(); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	dims, err := s.storedDimensions()
	if err != nil {
		return err
	}
	s.dimensions = dims

	if err := s.CheckFTSHealth(); err != nil {
		slog.Warn("FTS index unhealthy, rebuilding", "error", err)
		if rebuildErr := s.RebuildFTS(); rebuildErr != nil {
			// Vector search still works without FTS.
			slog.Error("failed to rebuild FTS index", "error", rebuildErr)
		} else {
			slog.Info("FTS index rebuilt successfully")
		}
	}

	return nil
}

func (s *Store) createSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			file_path TEXT NOT NULL,
			language TEXT NOT NULL,
			content TEXT NOT NULL,
			node_type TEXT NOT NULL,
			name TEXT NOT NULL,
			parent_name TEXT,
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,
			dependencies TEXT NOT NULL DEFAULT '[]',
			hash TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_file_path ON chunks(file_path)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_name ON chunks(name)`,
		`CREATE TABLE IF NOT EXISTS file_cache (
			file_path TEXT PRIMARY KEY,
			file_hash TEXT NOT NULL,
			config_hash TEXT NOT NULL,
			indexed_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	if s.enableFTS {
		// The dependencies column holds a JSON array; unicode61 drops the
		// punctuation so dotted names are searchable by segment.
		stmts = append(stmts,
			`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
				id,
				content,
				name,
				dependencies,
				content='chunks',
				content_rowid='rowid',
				tokenize='porter unicode61'
			)`,
			`CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
				INSERT INTO chunks_fts(rowid, id, content, name, dependencies)
				VALUES (new.rowid, new.id, new.content, new.name, new.dependencies);
			END`,
			`CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
				INSERT INTO chunks_fts(chunks_fts, rowid, id, content, name, dependencies)
				VALUES ('delete', old.rowid, old.id, old.content, old.name, old.dependencies);
			END`,
			`CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
				INSERT INTO chunks_fts(chunks_fts, rowid, id, content, name, dependencies)
				VALUES ('delete', old.rowid, old.id, old.content, old.name, old.dependencies);
				INSERT INTO chunks_fts(rowid, id, content, name, dependencies)
				VALUES (new.rowid, new.id, new.content, new.name, new.dependencies);
			END`,
		)
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) storedDimensions() (int, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", dimensionsKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(value)
}

// ensureVectorTable creates the vector table for the given dimensions. A
// dimension change drops the old table, since its vectors are unusable.
func (s *Store) ensureVectorTable(dimensions int) error {
	if s.dimensions == dimensions {
		return nil
	}

	if s.dimensions != 0 {
		slog.Warn("embedding dimensions changed, dropping vectors", "old", s.dimensions, "new", dimensions)
		if _, err := s.db.Exec("DROP TABLE IF EXISTS chunk_embeddings"); err != nil {
			return err
		}
	}

	_, err := s.db.Exec(fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS chunk_embeddings USING vec0(
			chunk_id TEXT PRIMARY KEY,
			embedding float[%d]
		)
	`, dimensions))
	if err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}

	_, err = s.db.Exec(`INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)`,
		dimensionsKey, strconv.Itoa(dimensions))
	if err != nil {
		return err
	}
	s.dimensions = dimensions
	return nil
}

// Close releases resources and closes connections.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StoreChunks upserts chunks with their embeddings in one transaction.
func (s *Store) StoreChunks(chunks []*types.ChunkWithEmbedding) error {
	if len(chunks) == 0 {
		return nil
	}

	if len(chunks[0].Embedding) > 0 {
		if err := s.ensureVectorTable(len(chunks[0].Embedding)); err != nil {
			return fmt.Errorf("%w: %v", types.ErrStoreFailed, err)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	chunkStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO chunks
		(id, file_path, language, content, node_type, name, parent_name, start_line, end_line, dependencies, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer chunkStmt.Close()

	// vec0 has no upsert, so replace is delete then insert.
	var delStmt, embStmt *sql.Stmt
	if s.dimensions > 0 {
		if delStmt, err = tx.Prepare(`DELETE FROM chunk_embeddings WHERE chunk_id = ?`); err != nil {
			return err
		}
		defer delStmt.Close()
		if embStmt, err = tx.Prepare(`INSERT INTO chunk_embeddings (chunk_id, embedding) VALUES (?, ?)`); err != nil {
			return err
		}
		defer embStmt.Close()
	}

	for _, cwe := range chunks {
		c := cwe.Chunk
		deps, err := json.Marshal(c.Record().Dependencies)
		if err != nil {
			return err
		}

		_, err = chunkStmt.Exec(
			c.ID, c.FilePath, c.Language, c.Content,
			string(c.ChunkType), c.Name, c.ParentName,
			c.StartLine, c.EndLine, string(deps), c.Hash,
		)
		if err != nil {
			return fmt.Errorf("%w: chunk %s: %v", types.ErrStoreFailed, c.ID, err)
		}

		if len(cwe.Embedding) == 0 || embStmt == nil {
			continue
		}
		if len(cwe.Embedding) != s.dimensions {
			return fmt.Errorf("%w: chunk %s has %d dimensions, index has %d",
				types.ErrStoreFailed, c.ID, len(cwe.Embedding), s.dimensions)
		}
		if _, err := delStmt.Exec(c.ID); err != nil {
			return err
		}
		if _, err := embStmt.Exec(c.ID, floatsToBytes(cwe.Embedding)); err != nil {
			return fmt.Errorf("%w: embedding for %s: %v", types.ErrStoreFailed, c.ID, err)
		}
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanChunk reads chunkColumns plus any extra trailing columns.
func scanChunk(row rowScanner, extra ...any) (*types.Chunk, error) {
	var (
		chunk      types.Chunk
		nodeType   string
		parentName sql.NullString
		deps       string
	)
	dest := append([]any{
		&chunk.ID, &chunk.FilePath, &chunk.Language, &chunk.Content, &nodeType,
		&chunk.Name, &parentName, &chunk.StartLine, &chunk.EndLine, &deps, &chunk.Hash,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	chunk.ChunkType = types.ChunkType(nodeType)
	chunk.ParentName = parentName.String
	chunk.Dependencies = []string{}
	if deps != "" {
		if err := json.Unmarshal([]byte(deps), &chunk.Dependencies); err != nil {
			return nil, fmt.Errorf("chunk %s: bad dependencies column: %w", chunk.ID, err)
		}
	}
	return &chunk, nil
}

// GetChunk retrieves a chunk by ID.
func (s *Store) GetChunk(id string) (*types.Chunk, error) {
	row := s.db.QueryRow(`SELECT `+chunkColumns+` FROM chunks c WHERE c.id = ?`, id)
	chunk, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chunk %s: %w", id, types.ErrNotFound)
	}
	return chunk, err
}

// FindChunksByName returns chunks whose name matches exactly, in file and
// line order.
func (s *Store) FindChunksByName(name string, limit int) ([]*types.Chunk, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT `+chunkColumns+` FROM chunks c
		WHERE c.name = ?
		ORDER BY c.file_path, c.start_line
		LIMIT ?
	`, name, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chunks := []*types.Chunk{}
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// DeleteChunksByFile removes all chunks for a file.
func (s *Store) DeleteChunksByFile(filePath string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if s.dimensions > 0 {
		_, err = tx.Exec(`
			DELETE FROM chunk_embeddings
			WHERE chunk_id IN (SELECT id FROM chunks WHERE file_path = ?)
		`, filePath)
		if err != nil {
			return err
		}
	}

	// FTS is updated by trigger
	if _, err := tx.Exec("DELETE FROM chunks WHERE file_path = ?", filePath); err != nil {
		return err
	}

	return tx.Commit()
}

// Search runs vector, BM25 or hybrid search. Unknown modes fall back to hybrid.
func (s *Store) Search(ctx context.Context, req *types.SearchRequest) ([]*types.SearchResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	switch req.Mode {
	case types.SearchModeVector:
		return s.vectorSearch(ctx, req, limit)
	case types.SearchModeBM25:
		return s.bm25Search(ctx, req, limit)
	default:
		return s.hybridSearch(ctx, req, limit)
	}
}

// filterClause renders the request filters as SQL conditions on alias c.
func filterClause(f *types.SearchFilters) (string, []any) {
	if f == nil {
		return "", nil
	}
	var (
		clauses []string
		args    []any
	)
	if len(f.ChunkTypes) > 0 {
		placeholders := make([]string, len(f.ChunkTypes))
		for i, ct := range f.ChunkTypes {
			placeholders[i] = "?"
			args = append(args, string(ct))
		}
		clauses = append(clauses, "c.node_type IN ("+strings.Join(placeholders, ",")+")")
	}
	if len(f.FilePaths) > 0 {
		matches := make([]string, len(f.FilePaths))
		for i, pattern := range f.FilePaths {
			matches[i] = "path_match(?, c.file_path)"
			args = append(args, pattern)
		}
		clauses = append(clauses, "("+strings.Join(matches, " OR ")+")")
	}
	return strings.Join(clauses, " AND "), args
}

func (s *Store) vectorSearch(ctx context.Context, req *types.SearchRequest, limit int) ([]*types.SearchResult, error) {
	if len(req.QueryVec) == 0 {
		return nil, fmt.Errorf("%w: query vector is required for vector search", types.ErrSearchFailed)
	}
	if s.dimensions == 0 {
		return []*types.SearchResult{}, nil
	}
	if len(req.QueryVec) != s.dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			types.ErrSearchFailed, len(req.QueryVec), s.dimensions)
	}

	query := `
		SELECT ` + chunkColumns + `, vec_distance_cosine(ce.embedding, ?) AS distance
		FROM chunk_embeddings ce
		JOIN chunks c ON ce.chunk_id = c.id
	`
	args := []any{floatsToBytes(req.QueryVec)}
	if where, fargs := filterClause(req.Filters); where != "" {
		query += " WHERE " + where
		args = append(args, fargs...)
	}
	query += " ORDER BY distance ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: vector: %v", types.ErrSearchFailed, err)
	}
	defer rows.Close()

	results := []*types.SearchResult{}
	for rows.Next() {
		var distance float64
		chunk, err := scanChunk(rows, &distance)
		if err != nil {
			return nil, err
		}
		// cosine distance to similarity
		score := float32(1.0 - distance)
		results = append(results, &types.SearchResult{
			Chunk:       chunk,
			Score:       score,
			VectorScore: score,
		})
	}
	return results, rows.Err()
}

func (s *Store) bm25Search(ctx context.Context, req *types.SearchRequest, limit int) ([]*types.SearchResult, error) {
	match := ftsQuery(req.Query)
	if match == "" {
		return nil, fmt.Errorf("%w: query text is required for BM25 search", types.ErrSearchFailed)
	}

	query := `
		SELECT ` + chunkColumns + `, bm25(chunks_fts) AS bm25_score
		FROM chunks_fts fts
		JOIN chunks c ON fts.rowid = c.rowid
		WHERE chunks_fts MATCH ?
	`
	args := []any{match}
	if where, fargs := filterClause(req.Filters); where != "" {
		query += " AND " + where
		args = append(args, fargs...)
	}
	query += " ORDER BY bm25_score LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: bm25: %v", types.ErrSearchFailed, err)
	}
	defer rows.Close()

	results := []*types.SearchResult{}
	for rows.Next() {
		var raw float64
		chunk, err := scanChunk(rows, &raw)
		if err != nil {
			return nil, err
		}
		// bm25() is negative and lower is better; map to (0,1), higher is better
		score := float32(math.Abs(raw) / (1.0 + math.Abs(raw)))
		results = append(results, &types.SearchResult{
			Chunk:     chunk,
			Score:     score,
			BM25Score: score,
		})
	}
	return results, rows.Err()
}

// hybridSearch merges vector and BM25 candidates with weighted scores.
func (s *Store) hybridSearch(ctx context.Context, req *types.SearchRequest, limit int) ([]*types.SearchResult, error) {
	candidates := limit * 3

	vectorWeight, bm25Weight := req.VectorWeight, req.BM25Weight
	if vectorWeight == 0 && bm25Weight == 0 {
		vectorWeight, bm25Weight = 0.7, 0.3
	}

	merged := make(map[string]*types.SearchResult)
	if len(req.QueryVec) > 0 {
		results, err := s.vectorSearch(ctx, req, candidates)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			merged[r.Chunk.ID] = &types.SearchResult{Chunk: r.Chunk, VectorScore: r.VectorScore}
		}
	}

	if ftsQuery(req.Query) != "" {
		results, err := s.bm25Search(ctx, req, candidates)
		if err != nil {
			if len(merged) == 0 {
				return nil, err
			}
			// FTS may be missing; keep the vector candidates.
			slog.Debug("bm25 leg of hybrid search failed", "error", err)
		}
		for _, r := range results {
			if m, ok := merged[r.Chunk.ID]; ok {
				m.BM25Score = r.BM25Score
				continue
			}
			merged[r.Chunk.ID] = &types.SearchResult{Chunk: r.Chunk, BM25Score: r.BM25Score}
		}
	}

	results := make([]*types.SearchResult, 0, len(merged))
	for _, r := range merged {
		r.Score = r.VectorScore*vectorWeight + r.BM25Score*bm25Weight
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// GetMetadata returns index metadata, or nil when nothing was indexed yet.
func (s *Store) GetMetadata() (*types.IndexMetadata, error) {
	var jsonData string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = 'index_metadata'").Scan(&jsonData)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var meta types.IndexMetadata
	if err := json.Unmarshal([]byte(jsonData), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// SetMetadata stores index metadata.
func (s *Store) SetMetadata(meta *types.IndexMetadata) error {
	jsonData, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO metadata (key, value) VALUES ('index_metadata', ?)
	`, string(jsonData))
	return err
}

// GetStats returns store statistics.
func (s *Store) GetStats() (*types.StoreStats, error) {
	stats := &types.StoreStats{ChunksByType: make(map[types.ChunkType]int)}

	rows, err := s.db.Query("SELECT node_type, COUNT(*) FROM chunks GROUP BY node_type")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var (
			nodeType string
			n        int
		)
		if err := rows.Scan(&nodeType, &n); err != nil {
			rows.Close()
			return nil, err
		}
		stats.ChunksByType[types.ChunkType(nodeType)] = n
		stats.TotalChunks += n
	}
	rows.Close()

	if err := s.db.QueryRow("SELECT COUNT(*) FROM file_cache").Scan(&stats.IndexedFiles); err != nil {
		return nil, err
	}

	if info, err := os.Stat(s.path); err == nil {
		stats.DBSizeBytes = info.Size()
	}

	if meta, err := s.GetMetadata(); err == nil && meta != nil {
		stats.LastIndexed = meta.LastUpdated
	}

	return stats, nil
}

// GetFileHash returns the cached hash for a file, or "" when not cached.
func (s *Store) GetFileHash(filePath string) (string, error) {
	var hash string
	err := s.db.QueryRow("SELECT file_hash FROM file_cache WHERE file_path = ?", filePath).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

// SetFileHash stores the hash for a file.
func (s *Store) SetFileHash(filePath, hash, configHash string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO file_cache (file_path, file_hash, config_hash, indexed_at)
		VALUES (?, ?, ?, ?)
	`, filePath, hash, configHash, time.Now())
	return err
}

// GetAllFileHashes returns all cached file hashes.
func (s *Store) GetAllFileHashes() (map[string]string, error) {
	rows, err := s.db.Query("SELECT file_path, file_hash FROM file_cache")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, err
		}
		hashes[path] = hash
	}
	return hashes, rows.Err()
}

// DeleteFileCache removes file from cache.
func (s *Store) DeleteFileCache(filePath string) error {
	_, err := s.db.Exec("DELETE FROM file_cache WHERE file_path = ?", filePath)
	return err
}

// floatsToBytes packs a float32 slice little-endian for sqlite-vec.
func floatsToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		bits := math.Float32bits(f)
		buf[i*4] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf
}

// ftsQuery turns free text into an FTS5 query: every identifier-like token
// is quoted and the tokens are OR-ed so natural-language questions match.
func ftsQuery(text string) string {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	if len(tokens) == 0 {
		return ""
	}
	for i, tok := range tokens {
		tokens[i] = `"` + tok + `"`
	}
	return strings.Join(tokens, " OR ")
}

// CheckFTSHealth verifies that the FTS index is in sync with the chunks table.
func (s *Store) CheckFTSHealth() error {
	if !s.enableFTS {
		return nil
	}

	var exists int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='chunks_fts'
	`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check FTS table existence: %w", err)
	}
	if exists == 0 {
		return nil
	}

	// Orphaned FTS rows make this join fail.
	_, err = s.db.Exec(`
		SELECT c.id FROM chunks_fts fts
		JOIN chunks c ON fts.rowid = c.rowid
		LIMIT 1
	`)
	if err != nil {
		return fmt.Errorf("FTS index corrupted: %w", err)
	}
	return nil
}

// RebuildFTS rebuilds the FTS index from the chunks table.
func (s *Store) RebuildFTS() error {
	if !s.enableFTS {
		return nil
	}
	if _, err := s.db.Exec(`INSERT INTO chunks_fts(chunks_fts) VALUES('rebuild')`); err != nil {
		return fmt.Errorf("failed to rebuild FTS index: %w", err)
	}
	return nil
}

var (
	_ provider.VectorStore = (*Store)(nil)
	_ provider.Maintainer  = (*Store)(nil)
)
