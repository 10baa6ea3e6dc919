// Package mcp implements the MCP server for Python code retrieval.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/spetr/pyast-rag/builtin/chunking/treesitter"
	"github.com/spetr/pyast-rag/internal/config"
	"github.com/spetr/pyast-rag/internal/index"
	"github.com/spetr/pyast-rag/internal/search"
	"github.com/spetr/pyast-rag/pkg/provider"
	"github.com/spetr/pyast-rag/pkg/types"
)

// Server implements the MCP server.
type Server struct {
	mcpServer  *server.MCPServer
	projectDir string
	config     *config.Config
	store      provider.VectorStore
	embedding  provider.EmbeddingProvider
	chunker    provider.ChunkingStrategy
	search     *search.Engine
	version    string

	// indexMu serializes index_codebase calls.
	indexMu sync.Mutex
}

// Config contains server configuration.
type Config struct {
	ProjectDir string
	Config     *config.Config
	Store      provider.VectorStore
	Embedding  provider.EmbeddingProvider
	Chunker    provider.ChunkingStrategy
	Version    string
}

// New creates a new MCP server.
func New(cfg Config) *Server {
	s := &Server{
		projectDir: cfg.ProjectDir,
		config:     cfg.Config,
		store:      cfg.Store,
		embedding:  cfg.Embedding,
		chunker:    cfg.Chunker,
		version:    cfg.Version,
		search: search.New(search.Config{
			Store:     cfg.Store,
			Embedding: cfg.Embedding,
		}),
	}

	s.mcpServer = server.NewMCPServer(
		"pyast-rag",
		cfg.Version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("chunk_source",
		mcp.WithDescription("Split Python source into function, method and class chunks with their dependencies"),
		mcp.WithString("source", mcp.Required(), mcp.Description("Python source text")),
		mcp.WithString("file_path", mcp.Description("Path recorded in the chunks (default <source>)")),
	), s.handleChunkSource)

	s.mcpServer.AddTool(mcp.NewTool("index_codebase",
		mcp.WithDescription("Index the project's Python files for search"),
		mcp.WithBoolean("force", mcp.Description("Re-index every file, ignoring the hash cache")),
	), s.handleIndexCodebase)

	s.mcpServer.AddTool(mcp.NewTool("search_code",
		mcp.WithDescription("Search indexed Python definitions by meaning or keywords"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default from config)")),
		mcp.WithString("mode", mcp.Description("Search mode: vector, bm25, hybrid (default from config)")),
		mcp.WithString("node_type", mcp.Description("Only return function, method or class chunks")),
		mcp.WithBoolean("include_related", mcp.Description("Attach chunks named by each hit's dependencies")),
	), s.handleSearchCode)

	s.mcpServer.AddTool(mcp.NewTool("get_chunk",
		mcp.WithDescription("Get a stored chunk by ID"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Chunk ID")),
	), s.handleGetChunk)

	s.mcpServer.AddTool(mcp.NewTool("get_status",
		mcp.WithDescription("Get index metadata and statistics"),
	), s.handleGetStatus)
}

// ServeStdio serves MCP over stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func records(chunks []*types.Chunk) []types.ChunkRecord {
	out := make([]types.ChunkRecord, len(chunks))
	for i, c := range chunks {
		out[i] = c.Record()
	}
	return out
}

func (s *Server) handleChunkSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source := req.GetString("source", "")
	path := req.GetString("file_path", "")

	col, err := s.chunker.ChunkContext(ctx, &types.SourceFile{
		Path:     path,
		Content:  []byte(source),
		Language: types.LanguagePython,
	})
	if err != nil {
		var se *treesitter.SyntaxError
		if errors.As(err, &se) {
			return mcp.NewToolResultError(fmt.Sprintf("syntax error at line %d, column %d: %s", se.Line, se.Column, se.Msg)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("chunking failed: %v", err)), nil
	}

	skipped := col.Skipped
	if skipped == nil {
		skipped = []types.SkippedNode{}
	}
	return jsonResult(map[string]any{
		"chunks":  records(col.Chunks),
		"skipped": skipped,
	})
}

func (s *Server) handleIndexCodebase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.indexMu.TryLock() {
		return mcp.NewToolResultError("indexing is already in progress"), nil
	}
	defer s.indexMu.Unlock()

	force := req.GetBool("force", false)
	slog.Info("starting indexing", "force", force)

	indexer := index.New(index.Config{
		ProjectDir:  s.projectDir,
		Config:      s.config,
		Store:       s.store,
		Embedding:   s.embedding,
		Chunker:     s.chunker,
		ToolVersion: s.version,
		OnProgress: func(p types.IndexProgress) {
			slog.Debug("progress", "phase", p.Phase, "files", p.ProcessedFiles, "chunks", p.ProcessedChunks)
		},
	})

	report, err := indexer.Index(ctx, force)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("indexing failed: %v", err)), nil
	}

	failed := make([]map[string]string, len(report.Failed))
	for i, f := range report.Failed {
		failed[i] = map[string]string{"file": f.Path, "reason": f.Reason}
	}
	return jsonResult(map[string]any{
		"scanned_files": report.ScannedFiles,
		"indexed_files": report.IndexedFiles,
		"deleted_files": report.DeletedFiles,
		"chunks":        report.Chunks,
		"skipped_nodes": report.SkippedNodes,
		"failed":        failed,
		"duration":      report.Duration.String(),
	})
}

func (s *Server) handleSearchCode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	sc := s.config.Search
	searchReq := &types.SearchRequest{
		Query:          query,
		Limit:          req.GetInt("limit", sc.DefaultLimit),
		Mode:           types.SearchMode(req.GetString("mode", sc.Mode)),
		VectorWeight:   sc.VectorWeight,
		BM25Weight:     sc.BM25Weight,
		IncludeRelated: req.GetBool("include_related", sc.IncludeRelated),
		RelatedLimit:   sc.RelatedLimit,
	}
	if nt := req.GetString("node_type", ""); nt != "" {
		t := types.ChunkType(nt)
		if !t.Valid() {
			return mcp.NewToolResultError(fmt.Sprintf("unknown node_type %q (want function, method or class)", nt)), nil
		}
		searchReq.Filters = &types.SearchFilters{ChunkTypes: []types.ChunkType{t}}
	}

	results, err := s.search.Search(ctx, searchReq)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	formatted := make([]map[string]any, 0, len(results))
	for _, r := range results {
		entry := map[string]any{
			"chunk": r.Chunk.Record(),
			"score": r.Score,
		}
		if searchReq.IncludeRelated {
			entry["related"] = records(r.Related)
		}
		formatted = append(formatted, entry)
	}
	return jsonResult(formatted)
}

func (s *Server) handleGetChunk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("id is required"), nil
	}

	chunk, err := s.store.GetChunk(id)
	if errors.Is(err, types.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("chunk %q not found", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get chunk: %v", err)), nil
	}
	return jsonResult(chunk.Record())
}

func (s *Server) handleGetStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.store.GetStats()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get stats: %v", err)), nil
	}

	byType := make(map[string]int, len(stats.ChunksByType))
	for t, n := range stats.ChunksByType {
		byType[string(t)] = n
	}
	result := map[string]any{
		"indexed_files":  stats.IndexedFiles,
		"total_chunks":   stats.TotalChunks,
		"chunks_by_type": byType,
		"db_size":        FormatBytes(stats.DBSizeBytes),
	}

	meta, err := s.store.GetMetadata()
	if err != nil {
		slog.Warn("failed to read index metadata", "error", err)
	}
	if meta != nil {
		result["last_updated"] = meta.LastUpdated.Format("2006-01-02 15:04:05")
		result["embedding_provider"] = meta.EmbeddingProvider
		result["embedding_model"] = meta.EmbeddingModel
		result["embedding_dimensions"] = meta.EmbeddingDimensions
		result["chunking_strategy"] = meta.ChunkingStrategy
		result["tool_version"] = meta.ToolVersion
	} else {
		result["indexed"] = false
	}
	return jsonResult(result)
}

// FormatBytes formats bytes to human readable string.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
