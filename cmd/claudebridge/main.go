// Package main provides the CLI entry point for claudebridge, which connects
// Slack threads to Claude CLI sessions.
//
// # Basic Usage
//
// Start the bridge:
//
//	claudebridge serve --config claudebridge.yaml
//
// Run a single turn without Slack:
//
//	claudebridge ask "summarize the README"
//	claudebridge ask --session 3f2c... "and now the tests"
//
// Check a configuration file:
//
//	claudebridge config validate --config claudebridge.yaml
//
// # Environment Variables
//
//   - CLAUDEBRIDGE_CONFIG: Path to configuration file
//   - SLACK_BOT_TOKEN: Slack bot OAuth token (xoxb-)
//   - SLACK_APP_TOKEN: Slack app-level token for Socket Mode (xapp-)
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// This is separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "claudebridge",
		Short: "claudebridge - Slack threads backed by Claude CLI sessions",
		Long: `claudebridge listens for Slack mentions over Socket Mode and answers each
one by running the Claude CLI. Replies in a thread resume the same CLI
session, so the conversation keeps its context.`,
		Version:      versionString(),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildAskCmd(),
		buildConfigCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

func versionString() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}
