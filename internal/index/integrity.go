package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spetr/pyast-rag/builtin/chunking/treesitter"
	"github.com/spetr/pyast-rag/internal/config"
	"github.com/spetr/pyast-rag/pkg/provider"
	"github.com/spetr/pyast-rag/pkg/types"
)

// FixedChunkSize is the window of a naive fixed-size splitter. Definitions
// longer than this would be cut apart by one.
const FixedChunkSize = 800

// IntegrityReport measures how well chunking keeps definitions whole.
type IntegrityReport struct {
	Files        int
	Failed       []types.FileFailure
	Chunks       int
	ChunksByType map[types.ChunkType]int
	SkippedNodes int

	// Standalone counts chunks that parse on their own once dedented.
	Standalone int

	// MetadataFields sums the populated metadata fields of all chunks.
	MetadataFields int

	// Oversized counts functions and methods longer than FixedChunkSize.
	Oversized int
}

// AvgMetadataFields returns the mean number of populated metadata fields.
func (r *IntegrityReport) AvgMetadataFields() float64 {
	if r.Chunks == 0 {
		return 0
	}
	return float64(r.MetadataFields) / float64(r.Chunks)
}

// Integrity chunks every indexable file below root without touching the
// index and checks that each chunk is a complete definition.
func Integrity(ctx context.Context, root string, cfg *config.Config, chunker provider.ChunkingStrategy) (*IntegrityReport, error) {
	paths, _, err := scan(ctx, root, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to scan files: %w", err)
	}

	r := &IntegrityReport{
		Files:        len(paths),
		Failed:       []types.FileFailure{},
		ChunksByType: make(map[types.ChunkType]int),
	}
	for _, rel := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			r.Failed = append(r.Failed, types.FileFailure{Path: rel, Reason: err.Error()})
			continue
		}
		col, err := chunker.ChunkContext(ctx, &types.SourceFile{Path: rel, Content: content, Language: types.LanguagePython})
		if err != nil {
			r.Failed = append(r.Failed, types.FileFailure{Path: rel, Reason: err.Error()})
			continue
		}

		r.SkippedNodes += len(col.Skipped)
		for _, c := range col.Chunks {
			r.Chunks++
			r.ChunksByType[c.ChunkType]++
			r.MetadataFields += metadataFields(c)
			if treesitter.CheckStandalone(ctx, c.Content) == nil {
				r.Standalone++
			}
			if c.ChunkType != types.ChunkTypeClass && len(c.Content) > FixedChunkSize {
				r.Oversized++
			}
		}
	}
	return r, nil
}

// metadataFields counts the non-empty metadata fields of c.
func metadataFields(c *types.Chunk) int {
	n := 0
	for _, set := range []bool{
		c.FilePath != "",
		c.ChunkType != "",
		c.Name != "",
		c.ParentName != "",
		c.StartLine > 0 && c.EndLine >= c.StartLine,
		len(c.Dependencies) > 0,
	} {
		if set {
			n++
		}
	}
	return n
}
