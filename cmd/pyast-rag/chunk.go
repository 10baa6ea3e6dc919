package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/spetr/pyast-rag/builtin/chunking/treesitter"
	"github.com/spetr/pyast-rag/internal/index"
	"github.com/spetr/pyast-rag/pkg/types"
)

var chunkCmd = &cobra.Command{
	Use:   "chunk <file>",
	Short: "Show the chunks of one Python file",
	Long: `Split one Python file into function, method and class chunks and print
them with their dependencies. Exits non-zero on a syntax error.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return runChunk(cmd.Context(), args[0], asJSON)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats [path]",
	Short: "Report chunk integrity for the project",
	Long: `Chunk every indexable file without touching the index and report how
many chunks parse on their own, how much metadata they carry and which
files fail to parse. The path defaults to the project root.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			projectDir = args[0]
		}
		return runStats()
	},
}

func init() {
	chunkCmd.Flags().Bool("json", false, "print chunk records as JSON")
}

func runChunk(ctx context.Context, path string, asJSON bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	col, err := treesitter.ParseSourceContext(ctx, content, filepath.ToSlash(path))
	if err != nil {
		return err
	}

	if asJSON {
		recs := make([]types.ChunkRecord, len(col.Chunks))
		for i, c := range col.Chunks {
			recs[i] = c.Record()
		}
		skipped := col.Skipped
		if skipped == nil {
			skipped = []types.SkippedNode{}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"chunks": recs, "skipped": skipped})
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LINES\tTYPE\tNAME\tCLASS\tDEPENDENCIES")
	for _, c := range col.Chunks {
		fmt.Fprintf(tw, "%d-%d\t%s\t%s\t%s\t%s\n",
			c.StartLine, c.EndLine, c.ChunkType, c.Name, c.ParentName, strings.Join(c.Dependencies, ", "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d chunks\n", len(col.Chunks))
	for _, s := range col.Skipped {
		fmt.Printf("skipped %s at line %d: %s\n", s.Kind, s.Line, s.Reason)
	}
	return nil
}

func runStats() error {
	root, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	chunker := treesitter.New(treesitter.Config{ParseTimeout: cfg.Limits.FileTimeout})
	defer chunker.Close()

	r, err := index.Integrity(ctx, root, cfg, chunker)
	if err != nil {
		return err
	}

	fmt.Println("=== Chunk Integrity ===")
	fmt.Printf("Files scanned:        %d\n", r.Files)
	fmt.Printf("Chunks:               %d\n", r.Chunks)
	kinds := make([]string, 0, len(r.ChunksByType))
	for t := range r.ChunksByType {
		kinds = append(kinds, string(t))
	}
	slices.Sort(kinds)
	for _, k := range kinds {
		fmt.Printf("  %-18s  %d\n", k, r.ChunksByType[types.ChunkType(k)])
	}
	if r.Chunks > 0 {
		fmt.Printf("Standalone parse:     %d/%d (%.1f%%)\n", r.Standalone, r.Chunks, 100*float64(r.Standalone)/float64(r.Chunks))
	}
	fmt.Printf("Avg metadata fields:  %.2f\n", r.AvgMetadataFields())
	fmt.Printf("Functions > %d chars: %d (kept whole)\n", index.FixedChunkSize, r.Oversized)
	fmt.Printf("Skipped nodes:        %d\n", r.SkippedNodes)

	if len(r.Failed) > 0 {
		fmt.Printf("\nFiles failing to parse (%d):\n", len(r.Failed))
		for _, f := range r.Failed {
			fmt.Printf("  %s: %s\n", f.Path, f.Reason)
		}
	}
	return nil
}
