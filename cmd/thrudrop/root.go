package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sheerbytes/thrudrop/internal/adminhttp"
	"github.com/sheerbytes/thrudrop/internal/artifact"
	"github.com/sheerbytes/thrudrop/internal/config"
	"github.com/sheerbytes/thrudrop/internal/logging"
	"github.com/sheerbytes/thrudrop/internal/metrics"
	"github.com/sheerbytes/thrudrop/internal/observe"
	"github.com/sheerbytes/thrudrop/internal/server"
	"github.com/sheerbytes/thrudrop/internal/termio"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
)

const usage = "usage: thrudrop <port> <targetDirectory>"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thrudrop <port> <targetDirectory>",
		Short: "Receive resumable file uploads over TCP",
		Long: `thrudrop listens on <port> and stores uploaded files in <targetDirectory>.

A client may send any number of files over one connection. Partially
received files are resumed from their current length, and every completed
file is verified against the byte-sum checksum the client declared.

Operator settings come from the environment:
  THRUDROP_WORKERS           worker pool size (default 5)
  THRUDROP_LOG_LEVEL         debug, info, warn, error (default info)
  THRUDROP_LOG_FORMAT        text or json (default text)
  THRUDROP_SHUTDOWN_TIMEOUT  grace period for in-flight transfers (default 30s)
  THRUDROP_ADMIN_ADDR        serve /health, /metrics and /events on this address`,
		Version:       fmt.Sprintf("%s (%s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				fmt.Fprintln(termio.Stderr(), usage)
				return fmt.Errorf("%w: expected 2 arguments, got %d", config.ErrUsage, len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.ParseServerConfig(args)
			if err != nil {
				if errors.Is(err, config.ErrUsage) {
					err = fmt.Errorf("%s: %w", usage, err)
				}
				fmt.Fprintln(termio.Stderr(), err)
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		fmt.Fprintln(termio.Stderr(), usage)
		return err
	})
	cmd.SetOut(termio.Stdout())
	cmd.SetErr(termio.Stderr())
	return cmd
}

func run(ctx context.Context, cfg config.ServerConfig) error {
	logger := logging.NewWithOptions("thrudrop", logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	hub := observe.NewHub()
	m := metrics.New()
	sink := observe.Multi(observe.NewLogSink(logger), m, hub)

	srv := server.New(server.Config{
		Addr:            cfg.Addr(),
		Workers:         cfg.Workers,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, artifact.NewStore(cfg.TargetDir), sink, logger)
	if err := srv.Listen(); err != nil {
		logger.Error("cannot start server", "error", err)
		return err
	}
	m.RegisterQueue(srv.QueueLen)
	m.RegisterWorkers(srv.Workers(), srv.Busy)

	logger.Info("thrudrop starting",
		"version", Version,
		"dir", cfg.TargetDir,
		"addr", srv.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := srv.Serve(gctx)
		if errors.Is(err, server.ErrShutdownTimeout) {
			logger.Warn("shutdown forced", "error", err)
			return nil
		}
		return err
	})
	if cfg.AdminAddr != "" {
		router := adminhttp.NewRouter(adminhttp.Options{
			Status:   srv,
			Gatherer: m.Registry(),
			Hub:      hub,
			Logger:   logger,
		})
		g.Go(func() error {
			return adminhttp.Serve(gctx, cfg.AdminAddr, router, logger)
		})
	}

	err := g.Wait()
	if err != nil {
		logger.Error("server stopped", "error", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}
