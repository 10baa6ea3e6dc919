package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/spetr/pyast-rag/internal/config"
	"github.com/spetr/pyast-rag/internal/index"
	"github.com/spetr/pyast-rag/pkg/types"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration",
	Long:  `Write .pyast-rag/config.yaml with default settings under the project root.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		root, err := filepath.Abs(projectDir)
		if err != nil {
			return err
		}
		path := config.ConfigPath(root)
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
		}

		if err := config.Save(root, config.DefaultConfig()); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Printf("Created config at %s\n", path)
		return nil
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the project's Python files",
	Long: `Chunk, embed and store every changed Python file of the project.
Files whose content is unchanged since the last run are skipped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		quiet, _ := cmd.Flags().GetBool("quiet")
		return runIndex(force, quiet)
	},
}

func init() {
	initCmd.Flags().Bool("force", false, "overwrite an existing config")

	indexCmd.Flags().BoolP("force", "f", false, "re-index all files")
	indexCmd.Flags().BoolP("quiet", "q", false, "no progress bar")
}

func runIndex(force, quiet bool) error {
	p, err := openProject(true)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if err := p.embedding.Warmup(ctx); err != nil {
		slog.Warn("embedding warmup failed", "error", err)
	}

	progress := &phaseBar{quiet: quiet}
	indexer := index.New(index.Config{
		ProjectDir:  p.root,
		Config:      p.cfg,
		Store:       p.store,
		Embedding:   p.embedding,
		Chunker:     p.chunker,
		OnProgress:  progress.update,
		ToolVersion: version,
	})

	report, err := indexer.Index(ctx, force)
	progress.finish()
	if err != nil {
		if ctx.Err() != nil {
			fmt.Println("Indexing interrupted. Finished files are saved; run again to resume.")
			return nil
		}
		return fmt.Errorf("indexing failed: %w", err)
	}

	printReport(report)
	return nil
}

func printReport(r *types.IndexReport) {
	fmt.Println("Indexing complete!")
	fmt.Printf("Scanned files:  %d\n", r.ScannedFiles)
	fmt.Printf("Indexed files:  %d\n", r.IndexedFiles)
	fmt.Printf("Chunks stored:  %d\n", r.Chunks)
	if r.DeletedFiles > 0 {
		fmt.Printf("Removed files:  %d\n", r.DeletedFiles)
	}
	if r.SkippedNodes > 0 {
		fmt.Printf("Skipped nodes:  %d\n", r.SkippedNodes)
	}
	fmt.Printf("Duration:       %s\n", r.Duration.Round(time.Millisecond))

	if len(r.Failed) > 0 {
		fmt.Printf("\nFailed files (%d):\n", len(r.Failed))
		for _, f := range r.Failed {
			fmt.Printf("  %s: %s\n", f.Path, f.Reason)
		}
	}
}

// phaseBar renders one progress bar per indexing phase. The indexer calls
// update sequentially.
type phaseBar struct {
	quiet bool
	phase string
	bar   *progressbar.ProgressBar
}

func (b *phaseBar) update(p types.IndexProgress) {
	if b.quiet {
		return
	}

	total, done := p.TotalFiles, p.ProcessedFiles
	if p.Phase == "embedding" {
		total, done = p.TotalChunks, p.ProcessedChunks
	}
	if p.Phase == "scanning" || p.Phase == "storing" || total == 0 {
		b.finish()
		b.phase = p.Phase
		return
	}

	if p.Phase != b.phase || b.bar == nil {
		b.finish()
		b.phase = p.Phase
		b.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowBytes(false),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%-9s[reset]", p.Phase)),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(os.Stderr)
			}),
		)
	}
	b.bar.Set(done)
}

func (b *phaseBar) finish() {
	if b.bar != nil {
		b.bar.Finish()
		b.bar = nil
	}
}
