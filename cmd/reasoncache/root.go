package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/blueberrycongee/reasoncache"
	"github.com/blueberrycongee/reasoncache/internal/config"
	"github.com/blueberrycongee/reasoncache/internal/observability"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "reasoncache",
		Short:         "Hierarchical reasoning with a semantic result cache",
		Long:          `reasoncache reasons about structured records at several abstraction layers and caches results by key, context and text similarity.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML configuration file (defaults apply when empty)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCmd(opts),
		newReasonCmd(opts),
		newMCPCmd(opts),
		newTokenCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig returns a file-backed manager when a path is given and a
// static manager over the defaults otherwise.
func (o *rootOptions) loadConfig(logger *slog.Logger) (*config.Manager, error) {
	if o.configPath == "" {
		return config.NewStaticManager(config.DefaultConfig())
	}
	return config.NewManager(o.configPath, logger)
}

func (o *rootOptions) newLogger(cfg *config.Config, out io.Writer, logs *observability.LoggerProvider) *slog.Logger {
	level := cfg.Logging.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	parsed := observability.ParseLevel(level)
	return observability.NewLogger(observability.LoggerConfig{
		Level:      parsed,
		Output:     out,
		JSONFormat: cfg.Logging.Format == "json",
		Export:     logs.Handler(parsed),
	}, observability.NewRedactor())
}

// app bundles what every command needs.
type app struct {
	logger  *slog.Logger
	configs *config.Manager
	engine  *reasoncache.Engine
	tracing *observability.TracerProvider
	meters  *observability.MeterProvider
	logs    *observability.LoggerProvider
}

// telemetry starts the OTLP pipelines enabled in cfg. Exporter types were
// checked by config validation.
func telemetry(ctx context.Context, cfg *config.Config) (*observability.TracerProvider, *observability.MeterProvider, *observability.LoggerProvider, error) {
	exporter := func(s string) observability.ExporterType {
		t, _ := observability.ParseExporterType(s)
		return t
	}
	service := cfg.Tracing.ServiceName

	logs, err := observability.InitLogs(ctx, observability.LogsConfig{
		Enabled:        cfg.OTel.Logs.Enabled,
		Endpoint:       cfg.OTel.Logs.Endpoint,
		ExporterType:   exporter(cfg.OTel.Logs.Exporter),
		ServiceName:    service,
		ServiceVersion: reasoncache.Version,
		Insecure:       cfg.OTel.Logs.Insecure,
		Headers:        cfg.OTel.Logs.Headers,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("otel logs: %w", err)
	}
	meters, err := observability.InitMetrics(ctx, observability.MetricsConfig{
		Enabled:        cfg.OTel.Metrics.Enabled,
		Endpoint:       cfg.OTel.Metrics.Endpoint,
		ExporterType:   exporter(cfg.OTel.Metrics.Exporter),
		ServiceName:    service,
		ServiceVersion: reasoncache.Version,
		Insecure:       cfg.OTel.Metrics.Insecure,
		Headers:        cfg.OTel.Metrics.Headers,
		ExportInterval: cfg.OTel.Metrics.Interval,
	})
	if err != nil {
		_ = logs.Shutdown(ctx)
		return nil, nil, nil, fmt.Errorf("otel metrics: %w", err)
	}
	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:        cfg.Tracing.Enabled,
		Endpoint:       cfg.Tracing.Endpoint,
		ExporterType:   exporter(cfg.Tracing.Exporter),
		ServiceName:    service,
		ServiceVersion: reasoncache.Version,
		SampleRate:     cfg.Tracing.SampleRate,
		Insecure:       cfg.Tracing.Insecure,
		Headers:        cfg.Tracing.Headers,
	})
	if err != nil {
		_ = meters.Shutdown(ctx)
		_ = logs.Shutdown(ctx)
		return nil, nil, nil, fmt.Errorf("tracing: %w", err)
	}
	return tp, meters, logs, nil
}

// bootstrap loads configuration, sets up logging and tracing, and builds
// the engine. Logs go to logOut so stdout stays free for command output.
func (o *rootOptions) bootstrap(ctx context.Context, logOut io.Writer) (*app, error) {
	bootLogger := slog.New(slog.NewTextHandler(logOut, nil))
	configs, err := o.loadConfig(bootLogger)
	if err != nil {
		return nil, err
	}
	cfg := configs.Get()

	tp, meters, logs, err := telemetry(ctx, cfg)
	if err != nil {
		_ = configs.Close()
		return nil, err
	}
	r := &app{
		logger:  o.newLogger(cfg, logOut, logs),
		configs: configs,
		tracing: tp,
		meters:  meters,
		logs:    logs,
	}

	r.engine, err = reasoncache.New(ctx,
		reasoncache.WithConfigManager(configs),
		reasoncache.WithLogger(r.logger),
		reasoncache.WithTracer(tp.Tracer()),
		reasoncache.WithMeterProvider(meters),
	)
	if err != nil {
		r.shutdownTelemetry(ctx)
		_ = configs.Close()
		return nil, err
	}
	return r, nil
}

func (r *app) close(ctx context.Context) {
	if err := r.engine.Close(ctx); err != nil {
		r.logger.Error("engine close failed", "error", err)
	}
	r.shutdownTelemetry(ctx)
	_ = r.configs.Close()
}

func (r *app) shutdownTelemetry(ctx context.Context) {
	if err := r.tracing.Shutdown(ctx); err != nil {
		r.logger.Warn("tracing shutdown failed", "error", err)
	}
	if err := r.meters.Shutdown(ctx); err != nil {
		r.logger.Warn("otel metrics shutdown failed", "error", err)
	}
	// Logs go last so the warnings above are still exported.
	_ = r.logs.Shutdown(ctx)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "reasoncache", reasoncache.Version)
		},
	}
}
