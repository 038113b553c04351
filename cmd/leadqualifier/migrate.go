package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tdxcore/leadqualifier/internal/config"
	"github.com/tdxcore/leadqualifier/internal/store"
)

func buildMigrateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the relational store schema",
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")

	cmd.AddCommand(buildMigrateUpCmd(&configPath), buildMigrateDownCmd(&configPath), buildMigrateStatusCmd(&configPath))
	return cmd
}

func buildMigrateUpCmd(configPath *string) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateUp(resolveConfigPath(*configPath), steps)
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "Number of migrations to apply (0 = all pending)")
	return cmd
}

func buildMigrateDownCmd(configPath *string) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateDown(resolveConfigPath(*configPath), steps)
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back (0 = all)")
	return cmd
}

func buildMigrateStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateStatus(resolveConfigPath(*configPath))
		},
	}
}

func openMigrationDB(cfg *config.Config) (*sql.DB, error) {
	if cfg.Store.URL == "" {
		return nil, fmt.Errorf("store.url is required")
	}
	db, err := sql.Open("postgres", cfg.Store.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func runMigrateUp(configPath string, steps int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openMigrationDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	migrator, err := store.NewMigrator(db)
	if err != nil {
		return err
	}
	defer migrator.Close()

	applied, err := migrator.Up(steps)
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	if !applied {
		slog.Info("no pending migrations")
		return nil
	}
	slog.Info("migrations applied")
	return nil
}

func runMigrateDown(configPath string, steps int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openMigrationDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	migrator, err := store.NewMigrator(db)
	if err != nil {
		return err
	}
	defer migrator.Close()

	rolledBack, err := migrator.Down(steps)
	if err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	if !rolledBack {
		slog.Info("no migrations to roll back")
		return nil
	}
	slog.Info("migrations rolled back")
	return nil
}

func runMigrateStatus(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openMigrationDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	migrator, err := store.NewMigrator(db)
	if err != nil {
		return err
	}
	defer migrator.Close()

	ver, dirty, err := migrator.Version()
	if err != nil {
		return fmt.Errorf("migrate status: %w", err)
	}
	slog.Info("schema status", "version", ver, "dirty", dirty)
	return nil
}
