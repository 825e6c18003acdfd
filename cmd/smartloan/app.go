package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"smartloan/internal/blob"
	"smartloan/internal/catalog"
	"smartloan/internal/config"
	"smartloan/internal/core"
	"smartloan/internal/export"
	"smartloan/internal/logging"
	"smartloan/pkg/domain"
)

// app is the wired service plus the host-side handles the commands need.
type app struct {
	cfg      *config.Config
	svc      *core.Service
	logger   *zap.Logger
	archiver *export.Archiver

	metricsHandler http.Handler
	tracerProvider trace.TracerProvider
	shutdown       []func(context.Context) error
}

func loadCatalog(cfg *config.Config) (domain.Catalog, error) {
	if cfg.Catalog == "" {
		return catalog.Default()
	}
	return catalog.Load(cfg.Catalog)
}

// openApp loads configuration and builds the service with its session store,
// archive, metrics and tracing.
func openApp(ctx context.Context, opts *rootOptions, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	cat, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	store, err := core.OpenSessionStore(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s session store: %w", cfg.Storage.Driver, err)
	}
	svcOpts := []core.ServiceOption{
		core.WithLogger(logging.NewAdapter(logger)),
		core.WithSessionStore(store),
		core.WithAuditRetention(cfg.Audit.Retention),
	}

	blobs, err := blob.Open(ctx, cfg.Archive)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if a.archiver, err = export.NewArchiver(blobs); err != nil {
		_ = store.Close()
		return nil, err
	}
	svcOpts = append(svcOpts, core.WithExporter(a.archiver))

	switch cfg.Metrics.Driver {
	case "prometheus":
		reg := prometheus.NewRegistry()
		svcOpts = append(svcOpts, core.WithMetricsRecorder(core.NewPrometheusMetricsRecorder(reg)))
		a.metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	case "expvar":
		svcOpts = append(svcOpts, core.WithMetricsRecorder(core.NewExpvarMetricsRecorder("smartloan")))
		a.metricsHandler = expvar.Handler()
	}

	switch cfg.Tracing.Driver {
	case "json":
		svcOpts = append(svcOpts, core.WithTracer(core.NewJSONTracer(stderr)))
	case "otel":
		exp, err := stdouttrace.New(stdouttrace.WithWriter(stderr))
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
		a.tracerProvider = tp
		a.shutdown = append(a.shutdown, tp.Shutdown)
		svcOpts = append(svcOpts, core.WithTracer(core.NewOTelTracer(tp)))
	}

	svc, err := core.NewService(cat, svcOpts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.svc = svc
	return a, nil
}

func (a *app) close(ctx context.Context) error {
	err := a.svc.Close(ctx)
	for _, fn := range a.shutdown {
		err = errors.Join(err, fn(ctx))
	}
	_ = a.logger.Sync()
	return err
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(context.Context, *app) error) (err error) {
	ctx := commandContext(cmd)
	a, err := openApp(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.close(context.WithoutCancel(ctx))) }()
	return fn(ctx, a)
}
