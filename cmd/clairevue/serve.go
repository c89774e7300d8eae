package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nugget/clairevue/internal/api"
	"github.com/nugget/clairevue/internal/buildinfo"
	"github.com/nugget/clairevue/internal/events"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cmd.OutOrStdout(), opts.configPath)
		},
	}
}

// runServe is the main server entry point. It loads configuration,
// wires the cache, providers and orchestrator, starts the API server,
// and blocks until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(stdout, cfg)
	logger.Info("starting ClaireVue", "version", buildinfo.String(), "config", cfgPath)

	// --- Signal handling and graceful shutdown ---
	// NotifyContext wraps the parent context so that SIGINT/SIGTERM
	// cancellation flows through the same ctx used by all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bus := events.New()

	st, err := buildStack(cfg, bus, logger)
	if err != nil {
		return err
	}
	defer st.store.Close()

	connMgr := watchDependencies(ctx, cfg, st, bus, logger)
	defer connMgr.Stop()

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, st.orch, logger)
	server.SetHealth(connMgr)
	server.SetEvents(bus)
	server.SetCORSOrigins(cfg.Listen.CORSOrigins)

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	// Start blocks until the server is shut down (via context
	// cancellation or fatal error).
	if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("ClaireVue stopped")
	return nil
}
