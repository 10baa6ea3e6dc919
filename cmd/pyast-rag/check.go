package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spetr/pyast-rag/internal/config"
	"github.com/spetr/pyast-rag/internal/wizard"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check configuration and providers",
	Long: `Validate the project configuration, probe the embedding provider with a
short snippet and report whether the LLM and index are ready.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return runCheck(asJSON)
	},
}

func init() {
	checkCmd.Flags().Bool("json", false, "print the report as JSON")
}

func runCheck(asJSON bool) error {
	root, err := filepath.Abs(projectDir)
	if err != nil {
		return fmt.Errorf("invalid project path: %w", err)
	}
	// Not loadConfig: validation errors belong in the report.
	cfg, warnings, err := config.Load(root)
	if err != nil {
		return err
	}
	applyLogging(cfg)
	for _, w := range warnings {
		slog.Warn(w)
	}

	ctx, cancel := signalContext()
	defer cancel()

	embed, err := newEmbedding(root, cfg)
	if err != nil {
		slog.Warn("failed to create embedding provider", "error", err)
		embed = nil
	}
	if embed != nil {
		defer embed.Close()
	}

	report := wizard.New(root, cfg).Run(ctx, embed)

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		for _, c := range report.Checks {
			fmt.Printf("[%-7s] %-18s %s\n", c.Status, c.Name, c.Message)
		}
	}
	if !report.Valid {
		return errors.New("configuration check failed")
	}
	return nil
}
