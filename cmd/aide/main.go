// Package main provides the CLI entry point for the aide reactive
// assistant backend.
//
// aide classifies inbound messages, drafts responses through an LLM
// provider, learns from user feedback, and acts with per-platform
// autonomy limits. A reactive behavior engine runs scheduled and
// event-driven behaviors against shared context.
//
// Start the server:
//
//	aide serve --config aide.yaml
//
// Configuration can reference environment variables:
//
//   - AIDE_CONFIG: path to the configuration file
//   - ANTHROPIC_API_KEY: Anthropic API key
//   - OPENAI_API_KEY: OpenAI API key
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "aide",
		Short: "aide - reactive personal assistant backend",
		Long: `aide is a reactive assistant backend: it classifies inbound messages,
drafts responses, learns from feedback and acts within per-platform
autonomy limits.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
	)
	return rootCmd
}
