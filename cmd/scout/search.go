package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/FranksOps/scout/internal/server"
	"github.com/FranksOps/scout/internal/storage"
	"github.com/FranksOps/scout/internal/stream"
)

func searchCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run one search and print its event stream",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, v, strings.Join(args, " "))
		},
	}
	cmd.Flags().Duration("timeout", 0, "Overall search deadline (defaults to server.request_timeout)")
	return cmd
}

func runSearch(cmd *cobra.Command, v *viper.Viper, query string) error {
	cfg, logger, err := loadConfig(cmd, v)
	if err != nil {
		return err
	}
	start := time.Now()

	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		timeout = cfg.Server.RequestTimeout
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, exec, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	store, err := openBackend(ctx, cfg.Storage.Backend, cfg.Storage.DSN)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	query = strings.TrimSpace(query)
	rec := storage.NewRecord(query, "cli")
	save := func() {
		if store == nil {
			return
		}
		rec.Duration = time.Since(start)
		saveCtx, saveCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer saveCancel()
		if err := store.Save(saveCtx, rec); err != nil {
			logger.Error("save search record", "id", rec.ID, "err", err)
		}
	}

	em := stream.New(cmd.OutOrStdout(), stream.Config{Logger: logger})
	em.Open()
	if query == "" {
		em.Warn(stream.Warn{Reason: server.ReasonEmptyQuery})
		em.Done()
		rec.Targets = []string{}
		rec.Error = server.ReasonEmptyQuery
		save()
		return nil
	}
	em.StartHeartbeat(ctx, cfg.Search.Heartbeat)

	targets := newBuilder(cfg).Build(query)
	for _, t := range targets {
		rec.Targets = append(rec.Targets, t.URL)
	}
	out := exec.Run(ctx, targets, em)
	em.Done()

	rec.Found = out.Found
	rec.Target = out.Target
	rec.Provider = out.Provider
	rec.Attempts = out.Attempts
	rec.Warnings = out.Warnings
	if out.Canceled {
		rec.Error = "canceled"
	}
	save()
	return nil
}
