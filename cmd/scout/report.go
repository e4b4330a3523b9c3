package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/FranksOps/scout/internal/report"
	"github.com/FranksOps/scout/internal/storage"
)

func reportCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize the search audit log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, v)
		},
	}
	cmd.Flags().String("format", "text", "Output format: text or json")
	cmd.Flags().Duration("since", 0, "Only include searches newer than this (e.g. 24h)")
	cmd.Flags().String("query", "", "Only include searches for this exact query")
	cmd.Flags().Int("limit", 0, "Maximum number of records to read (0 for all)")
	cmd.Flags().String("backend", "", "Storage backend (overrides storage.backend)")
	cmd.Flags().String("dsn", "", "Storage DSN (overrides storage.dsn)")
	_ = v.BindPFlag("storage.backend", cmd.Flags().Lookup("backend"))
	_ = v.BindPFlag("storage.dsn", cmd.Flags().Lookup("dsn"))
	return cmd
}

func runReport(cmd *cobra.Command, v *viper.Viper) error {
	cfg, _, err := loadConfig(cmd, v)
	if err != nil {
		return err
	}
	if cfg.Storage.Backend == "" {
		return fmt.Errorf("report: no storage backend configured")
	}

	ctx := cmd.Context()
	store, err := openBackend(ctx, cfg.Storage.Backend, cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	var filter storage.Filter
	filter.Query, _ = cmd.Flags().GetString("query")
	filter.Limit, _ = cmd.Flags().GetInt("limit")
	if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
		t := time.Now().Add(-since)
		filter.Since = &t
	}

	records, err := store.Query(ctx, filter)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	summary := report.GenerateSummary(records)

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "json":
		return report.WriteJSON(cmd.OutOrStdout(), summary)
	case "text":
		return report.WriteText(cmd.OutOrStdout(), summary)
	default:
		return fmt.Errorf("report: unknown format %q", format)
	}
}
