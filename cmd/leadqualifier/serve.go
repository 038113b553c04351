package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/tdxcore/leadqualifier/internal/agent"
	"github.com/tdxcore/leadqualifier/internal/auth"
	"github.com/tdxcore/leadqualifier/internal/calendar"
	"github.com/tdxcore/leadqualifier/internal/config"
	"github.com/tdxcore/leadqualifier/internal/dashboard"
	"github.com/tdxcore/leadqualifier/internal/gateway"
	"github.com/tdxcore/leadqualifier/internal/messaging"
	"github.com/tdxcore/leadqualifier/internal/orchestrator"
	"github.com/tdxcore/leadqualifier/internal/store"
	"github.com/tdxcore/leadqualifier/internal/webhook"
)

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the lead-qualification service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting lead-qualification service", "version", version, "commit", commit, "config", configPath)

	st, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("closing store", "error", err)
		}
	}()

	calClient, err := calendar.New(cfg.Calendar)
	if err != nil {
		return fmt.Errorf("build calendar client: %w", err)
	}
	msgClient := messaging.New(cfg.Messaging)

	loc, err := time.LoadLocation(cfg.Calendar.Timezone)
	if err != nil {
		loc = time.UTC
	}

	metrics := dashboard.NewMetrics()
	dashSvc := dashboard.New(st, metrics, loc, slog.Default())

	verifier := auth.NewVerifier(cfg.Gateway.JWTSecret)
	hub, rest := gateway.New(st, calClient, msgClient, dashSvc, loc, cfg.Gateway, verifier, slog.Default())

	provider, err := agent.NewAnthropicProvider(cfg.Agent)
	if err != nil {
		return fmt.Errorf("build agent provider: %w", err)
	}
	runtime := agent.NewRuntime(provider, cfg.Agent.Model)

	orch := orchestrator.New(st, calClient, msgClient, runtime, hub, cfg.Agent, slog.Default())
	orch.SetMetrics(metrics)

	webhookHandler := webhook.New(msgClient, st, orch, cfg.Messaging.WebhookVerifyToken, slog.Default())

	mux := http.NewServeMux()
	mux.Handle("/webhook", webhookHandler)
	mux.Handle("/ws", hub)
	rest.Routes(mux)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(fmt.Sprintf("@every %s", cfg.Qualification.SweepInterval), func() {
		n, err := orch.Sweep(context.Background(), cfg.Qualification.AbandonAfter)
		if err != nil {
			slog.Error("qualification sweep failed", "error", err)
			return
		}
		if n > 0 {
			slog.Info("qualification sweep abandoned idle leads", "count", n)
		}
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
