// Command leadqualifier runs the conversational lead-qualification
// service: it ingests inbound WhatsApp webhooks, drives each lead through
// the qualification dialogue via an LLM-backed agent, schedules meetings
// against a calendar, and exposes an operator dashboard over WebSocket and
// a thin REST facade.
//
// Start the server:
//
//	leadqualifier serve --config leadqualifier.yaml
//
// Manage database migrations:
//
//	leadqualifier migrate up
//	leadqualifier migrate status
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "leadqualifier",
		Short:        "Conversational lead-qualification service",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.AddCommand(buildServeCmd(), buildMigrateCmd(), buildDashboardCmd())
	return root
}

func resolveConfigPath(path string) string {
	if path == "" {
		if env := os.Getenv("LEADQUALIFIER_CONFIG"); env != "" {
			return env
		}
		return "leadqualifier.yaml"
	}
	return path
}
