package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/blueberrycongee/reasoncache"
)

const shutdownTimeout = 60 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with metrics and config hot reload",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, port, cmd)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override server.port")
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, port int, cmd *cobra.Command) error {
	rt, err := opts.bootstrap(ctx, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		rt.close(closeCtx)
	}()

	cfg := rt.configs.Get()
	logger := rt.logger
	logger.Info("starting reasoncache", "version", reasoncache.Version)

	rt.configs.OnChange(rt.engine.ApplyConfig)
	if err := rt.configs.Watch(ctx); err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	}
	rt.engine.Prober().Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("/", rt.engine.Handler())
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.Handler())
	}

	if port == 0 {
		port = cfg.Server.Port
	}
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
	return nil
}
