package main

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/spetr/pyast-rag/internal/index"
	"github.com/spetr/pyast-rag/internal/mcp"
	"github.com/spetr/pyast-rag/pkg/plugin/host"
	"github.com/spetr/pyast-rag/pkg/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus()
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-index Python files as they change",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		debounce, _ := cmd.Flags().GetDuration("debounce")
		initial, _ := cmd.Flags().GetBool("index")
		return runWatch(debounce, initial)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List embedding plugins in the plugins directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlugins()
	},
}

func init() {
	watchCmd.Flags().Duration("debounce", 500*time.Millisecond, "quiet period before a changed file is re-indexed")
	watchCmd.Flags().Bool("index", true, "run an incremental index before watching")
}

func runStatus() error {
	p, err := openProject(false)
	if err != nil {
		return err
	}
	defer p.Close()

	meta, err := p.store.GetMetadata()
	if err != nil {
		return err
	}
	if meta == nil {
		fmt.Println("No index found. Run 'pyast-rag index' to create one.")
		return nil
	}
	stats, err := p.store.GetStats()
	if err != nil {
		return err
	}

	fmt.Println("=== Index Status ===")
	fmt.Printf("Indexed files: %d\n", stats.IndexedFiles)
	fmt.Printf("Total chunks:  %d\n", stats.TotalChunks)
	for _, t := range []types.ChunkType{types.ChunkTypeFunction, types.ChunkTypeMethod, types.ChunkTypeClass} {
		fmt.Printf("  %-11s  %d\n", t, stats.ChunksByType[t])
	}
	fmt.Printf("Database size: %s\n", mcp.FormatBytes(stats.DBSizeBytes))
	fmt.Printf("Last updated:  %s\n", meta.LastUpdated.Format("2006-01-02 15:04:05"))

	fmt.Println("\n=== Index Configuration ===")
	fmt.Printf("Embedding:  %s/%s (%d dims)\n", meta.EmbeddingProvider, meta.EmbeddingModel, meta.EmbeddingDimensions)
	fmt.Printf("Chunking:   %s\n", meta.ChunkingStrategy)
	fmt.Printf("Tool:       %s\n", meta.ToolVersion)
	if meta.ConfigHash != p.cfg.Hash() {
		fmt.Println("\nConfiguration changed since the last run; the next index run re-indexes everything.")
	}
	return nil
}

func runWatch(debounce time.Duration, initial bool) error {
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

	indexer := index.New(index.Config{
		ProjectDir:  p.root,
		Config:      p.cfg,
		Store:       p.store,
		Embedding:   p.embedding,
		Chunker:     p.chunker,
		ToolVersion: version,
	})
	if initial {
		report, err := indexer.Index(ctx, false)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("initial indexing failed: %w", err)
		}
		fmt.Printf("Index up to date: %d files re-indexed, %d chunks\n", report.IndexedFiles, report.Chunks)
	}

	watcher, err := index.NewWatcher(index.WatcherConfig{
		Indexer:      indexer,
		DebounceTime: debounce,
		OnFlush: func(changed, removed []string) {
			for _, f := range changed {
				fmt.Printf("[watch] re-indexed %s\n", f)
			}
			for _, f := range removed {
				fmt.Printf("[watch] removed %s\n", f)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	fmt.Printf("Watching %s for changes (press Ctrl+C to stop)\n", p.root)
	if err := watcher.Watch(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runServe() error {
	p, err := openProject(true)
	if err != nil {
		return err
	}
	defer p.Close()

	slog.Info("starting MCP server", "project", p.root)
	srv := mcp.New(mcp.Config{
		ProjectDir: p.root,
		Config:     p.cfg,
		Store:      p.store,
		Embedding:  p.embedding,
		Chunker:    p.chunker,
		Version:    version,
	})
	return srv.ServeStdio()
}

func runPlugins() error {
	root, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := cfg.PluginDir(root)

	manager := host.NewManager(dir, cfg.Plugins.LogLevel)
	available, err := manager.Discover()
	if err != nil {
		return err
	}

	fmt.Printf("Plugins directory: %s\n\n", dir)
	if len(available) == 0 {
		fmt.Println("No plugins found.")
		fmt.Println("Build an embedding plugin, copy the binary into the directory above and")
		fmt.Println("set embedding.provider: plugin and embedding.plugin: <name> in the config.")
		return nil
	}
	for _, name := range available {
		marker := " "
		if cfg.Embedding.Provider == "plugin" && cfg.Embedding.Plugin == name {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, name)
	}
	if cfg.Embedding.Provider == "plugin" && !slices.Contains(available, cfg.Embedding.Plugin) {
		fmt.Printf("\nConfigured plugin %q is not installed.\n", cfg.Embedding.Plugin)
	}
	return nil
}
