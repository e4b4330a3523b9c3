package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/scout/internal/server"
)

const sweepInterval = time.Minute

func serveCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the live search API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, v)
		},
	}
	cmd.Flags().String("addr", "", "Listen address")
	cmd.Flags().Bool("trust-forwarded", false, "Identify callers by the first X-Forwarded-For hop")
	_ = v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	_ = v.BindPFlag("server.trust_forwarded", cmd.Flags().Lookup("trust-forwarded"))
	return cmd
}

func runServe(cmd *cobra.Command, v *viper.Viper) error {
	cfg, logger, err := loadConfig(cmd, v)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rot, exec, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}

	store, err := openBackend(ctx, cfg.Storage.Backend, cfg.Storage.DSN)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		logger.Info("audit log enabled", "backend", cfg.Storage.Backend)
	}

	admitter, sweeper, closeAdmitter, err := buildAdmitter(ctx, cfg.RateLimit, logger)
	if err != nil {
		return err
	}
	defer closeAdmitter()

	srv := server.New(server.Config{
		Addr:           cfg.Server.Addr,
		TrustForwarded: cfg.Server.TrustForwarded,
		RequestTimeout: cfg.Server.RequestTimeout,
		Heartbeat:      cfg.Search.Heartbeat,
		RetryAfter:     cfg.RateLimit.RetryAfter(),
		Logger:         logger,
	}, server.Deps{
		Builder:  newBuilder(cfg),
		Executor: exec,
		Rotator:  rot,
		Admitter: admitter,
		Store:    store,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if sweeper != nil {
		g.Go(func() error {
			err := sweeper.Run(gctx, sweepInterval)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}
