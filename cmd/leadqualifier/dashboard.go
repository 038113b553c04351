package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tdxcore/leadqualifier/internal/config"
	"github.com/tdxcore/leadqualifier/internal/dashboard"
	"github.com/tdxcore/leadqualifier/internal/store"
)

func buildDashboardCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Print the C9 aggregations to stdout for ops debugging",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd.Context(), resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file")
	return cmd
}

// dashboardReport is the stdout snapshot printed by `leadqualifier
// dashboard`: the same read-model the gateway's WS surface exposes,
// collected once and rendered as indented JSON rather than streamed.
type dashboardReport struct {
	Stats            *dashboard.Stats            `json:"stats"`
	ConversionFunnel *dashboard.ConversionFunnel `json:"conversion_funnel"`
	LeadPipeline     map[string]int              `json:"lead_pipeline"`
}

func runDashboard(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	loc, err := time.LoadLocation(cfg.Calendar.Timezone)
	if err != nil {
		loc = time.UTC
	}
	svc := dashboard.New(st, dashboard.NewMetrics(), loc, nil)

	stats, err := svc.DashboardStats(ctx)
	if err != nil {
		return fmt.Errorf("dashboard stats: %w", err)
	}
	funnel, err := svc.ConversionFunnel(ctx)
	if err != nil {
		return fmt.Errorf("conversion funnel: %w", err)
	}
	pipeline, err := svc.LeadPipeline(ctx)
	if err != nil {
		return fmt.Errorf("lead pipeline: %w", err)
	}

	byStep := make(map[string]int, len(pipeline))
	for step, count := range pipeline {
		byStep[string(step)] = count
	}

	report := dashboardReport{Stats: stats, ConversionFunnel: funnel, LeadPipeline: byStep}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
