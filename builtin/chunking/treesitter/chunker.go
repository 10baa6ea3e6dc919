// Package treesitter implements syntax-aware chunking of Python source using
// Tree-sitter. Each function, method and class definition becomes one chunk;
// a class is emitted with its whole body and its methods are emitted again
// on their own.
package treesitter

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/spetr/pyast-rag/pkg/provider"
	"github.com/spetr/pyast-rag/pkg/types"
)

// Config contains configuration for Tree-sitter chunking.
type Config struct {
	// ParseTimeout bounds the parse of a single file. Zero means no limit.
	ParseTimeout time.Duration
}

// Chunker implements provider.ChunkingStrategy for Python. It holds no
// per-file state and is safe for concurrent use.
type Chunker struct {
	config Config
}

// New creates a new Tree-sitter chunker.
func New(cfg Config) *Chunker {
	return &Chunker{config: cfg}
}

// Name returns the strategy name.
func (c *Chunker) Name() string {
	return "treesitter"
}

// Chunk splits a Python file into definition chunks.
func (c *Chunker) Chunk(file *types.SourceFile) ([]*types.Chunk, error) {
	col, err := c.ChunkContext(context.Background(), file)
	if err != nil {
		return nil, err
	}
	return col.Chunks, nil
}

// ChunkContext is like Chunk but honors ctx and the configured parse timeout,
// and reports definitions that were skipped.
func (c *Chunker) ChunkContext(ctx context.Context, file *types.SourceFile) (*types.ChunkCollection, error) {
	if c.config.ParseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ParseTimeout)
		defer cancel()
	}
	return ParseSourceContext(ctx, file.Content, file.Path)
}

// SupportedLanguages returns languages supported by this chunker.
func (c *Chunker) SupportedLanguages() []string {
	return []string{types.LanguagePython}
}

// SupportsLanguage checks if a language is supported.
func (c *Chunker) SupportsLanguage(lang string) bool {
	return lang == types.LanguagePython || lang == "py"
}

// Close releases any resources.
func (c *Chunker) Close() error {
	return nil
}

// ParseSource chunks one Python source text. Empty or whitespace-only input
// yields no chunks and no error. Invalid syntax is returned as a
// *SyntaxError and no chunks are produced.
func ParseSource(source []byte, filePath string) ([]*types.Chunk, error) {
	col, err := ParseSourceContext(context.Background(), source, filePath)
	if err != nil {
		return nil, err
	}
	return col.Chunks, nil
}

// ParseSourceContext is ParseSource with cancellation. The collection also
// lists definition nodes that could not be chunked.
func ParseSourceContext(ctx context.Context, source []byte, filePath string) (*types.ChunkCollection, error) {
	col := &types.ChunkCollection{
		FilePath: filePath,
		Chunks:   []*types.Chunk{},
	}

	text, err := normalize(filePath, source)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(text)) == 0 {
		return col, nil
	}

	tree, err := parse(ctx, filePath, text)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	w := &walker{src: text}
	for def := range w.walk(tree.RootNode()) {
		col.Chunks = append(col.Chunks, buildChunk(def, text, filePath))
	}
	col.Skipped = w.skipped
	return col, nil
}

// CheckStandalone reports whether chunk content parses on its own once
// dedented. It returns nil for a complete definition.
func CheckStandalone(ctx context.Context, content string) error {
	tree, err := parse(ctx, "", []byte(Dedent(content)))
	if err != nil {
		return err
	}
	tree.Close()
	return nil
}

// IsSyntaxError reports whether err is a Python syntax error.
func IsSyntaxError(err error) bool {
	var se *SyntaxError
	return errors.As(err, &se)
}

var _ provider.ChunkingStrategy = (*Chunker)(nil)
