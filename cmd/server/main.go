package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"workspace-terminal/internal/config"
	"workspace-terminal/internal/logging"
	"workspace-terminal/internal/policy"
	"workspace-terminal/internal/realtime"
	"workspace-terminal/internal/session"
	"workspace-terminal/internal/shell"
	"workspace-terminal/internal/terminal"
	"workspace-terminal/internal/tracing"
	"workspace-terminal/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		cfgFile   string
		port      int
		workspace string
	)

	cmd := &cobra.Command{
		Use:     "workspace-terminal",
		Short:   "Serve a sandboxed per-session shell over HTTP and WebSocket",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.Path(cfgFile))
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if workspace != "" {
				if cfg.Workspace.Root, err = filepath.Abs(workspace); err != nil {
					return err
				}
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.SilenceUsage = true
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (default: $"+config.PathEnv+")")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	cmd.Flags().StringVar(&workspace, "workspace", "", "workspace root (overrides workspace.root)")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.Init("workspace-terminal", version, cfg.Tracing.Output)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdownTracing(sctx); err != nil {
				logger.Warn("tracing_shutdown_failed", "error", err)
			}
		}()
	}

	store := session.NewStore(cfg.Workspace.Root, session.Options{
		MaxSessions: cfg.Sessions.MaxSessions,
		IdleTTL:     cfg.Sessions.IdleTTL,
		HistorySize: cfg.Sessions.HistorySize,
		Logger:      logger,
	})

	dispatcher := shell.NewDispatcher(cfg.Workspace.Root)
	dispatcher.Timeout = cfg.Exec.Timeout
	dispatcher.MaxOutput = cfg.Exec.MaxOutputBytes
	dispatcher.Shell = cfg.Exec.Shell
	if cfg.Exec.Term != "" {
		dispatcher.Term = cfg.Exec.Term
	}

	service := terminal.New(store, policy.New(cfg.Policy), dispatcher, logger)
	rtServer := realtime.New(service, cfg.Server.StaticDir, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           rtServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server_started", "addr", httpServer.Addr, "workspace", cfg.Workspace.Root, "version", version)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting_down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(sctx)
	})

	g.Go(func() error {
		return store.Run(gctx, cfg.Sessions.SweepInterval)
	})

	if cfg.Watcher.Enabled {
		fileWatch := watcher.New(cfg.Workspace.Root, store, rtServer.OnSessionsReset, logger)
		g.Go(func() error {
			if err := fileWatch.Run(gctx); err != nil {
				// The service stays usable without the watcher.
				logger.Warn("watcher_stopped", "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}
