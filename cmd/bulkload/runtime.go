package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hugolhafner/go-bulkload/internal/config"
	"github.com/hugolhafner/go-bulkload/logger"
	bulkotel "github.com/hugolhafner/go-bulkload/otel"
	"github.com/hugolhafner/go-bulkload/plugins/zaplogger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// runtime is what every command needs once its configuration is resolved.
type runtime struct {
	cfg      config.Config
	zap      *zap.Logger
	logger   logger.Logger
	tel      *bulkotel.Telemetry
	registry *prometheus.Registry

	shutdown []func(context.Context) error
}

// bindConfig registers the config flags on cmd and resolves them before the
// command runs.
func bindConfig(cmd *cobra.Command, cfg *config.Config) {
	cfg.RegisterFlags(cmd.Flags())
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if err := config.Resolve(viper.New(), cmd.Flags()); err != nil {
			return err
		}
		return cfg.Validate()
	}
}

func newRuntime(cfg config.Config, stderr io.Writer) (*runtime, error) {
	zl, err := newZapLogger(cfg.LogLevel, cfg.LogFormat, stderr)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:    cfg,
		zap:    zl,
		logger: zaplogger.New(zl),
		tel:    bulkotel.Noop(),
	}

	if cfg.MetricsAddr == "" {
		return rt, nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	tp := sdktrace.NewTracerProvider()

	tel, err := bulkotel.NewTelemetry(tp, mp, propagation.TraceContext{})
	if err != nil {
		return nil, err
	}

	rt.tel = tel
	rt.registry = reg
	rt.shutdown = append(rt.shutdown, mp.Shutdown, tp.Shutdown)
	return rt, nil
}

func (rt *runtime) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	for _, fn := range rt.shutdown {
		errs = append(errs, fn(ctx))
	}
	// syncing stderr fails on some platforms, ignore it
	_ = rt.zap.Sync()
	return errors.Join(errs...)
}

// serveMetrics serves the registry on addr until ctx is done.
func (rt *runtime) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{Registry: rt.registry}))

	srv := &http.Server{
		Addr:              rt.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	rt.logger.Info("Serving metrics", "addr", rt.cfg.MetricsAddr)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newZapLogger(level, format string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	var encoder zapcore.Encoder
	switch format {
	case "json":
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), zap.NewAtomicLevelAt(lvl))
	return zap.New(core), nil
}
