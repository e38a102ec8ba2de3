// Package telemetry installs the OpenTelemetry providers used by the import
// engine. Telemetry is off by default and the global providers stay no-ops.
//
// When enabled, spans and metrics go to stdout (telemetry.stdout) and metrics
// additionally to an OTLP/HTTP collector (telemetry.otlp_endpoint). Enabled
// with neither exporter configured falls back to stdout.
package telemetry

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/sells-group/leadsync/internal/config"
)

var (
	mu          sync.Mutex
	shutdownFns []func(context.Context) error
)

// stdout is where the stdout exporters write. Tests swap it.
var stdout io.Writer = os.Stderr

// Init configures the global providers from cfg.
func Init(ctx context.Context, cfg config.TelemetryConfig, version string) error {
	if !cfg.Enabled {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}

	name := cfg.ServiceName
	if name == "" {
		name = "leadsync"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(name),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithHost(),
	)
	if err != nil {
		return eris.Wrap(err, "telemetry: resource")
	}

	useStdout := cfg.Stdout || cfg.OTLPEndpoint == ""

	tp, err := buildTraceProvider(res, useStdout)
	if err != nil {
		return eris.Wrap(err, "telemetry: trace provider")
	}
	mp, err := buildMeterProvider(ctx, res, useStdout, cfg.OTLPEndpoint)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return eris.Wrap(err, "telemetry: meter provider")
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	mu.Lock()
	shutdownFns = append(shutdownFns, tp.Shutdown, mp.Shutdown)
	mu.Unlock()

	zap.L().Info("telemetry: enabled",
		zap.String("service", name),
		zap.Bool("stdout", useStdout),
		zap.String("otlp_endpoint", cfg.OTLPEndpoint),
	)
	return nil
}

func buildTraceProvider(res *resource.Resource, useStdout bool) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	if useStdout {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(stdout))
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func buildMeterProvider(ctx context.Context, res *resource.Resource, useStdout bool, endpoint string) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if useStdout {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(stdout))
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(15*time.Second)),
		))
	}

	if endpoint != "" {
		exp, err := otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
		if err != nil {
			return nil, eris.Wrap(err, "otlp metric exporter")
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(30*time.Second)),
		))
	}

	return sdkmetric.NewMeterProvider(opts...), nil
}

// Shutdown flushes and stops the providers installed by Init.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	fns := shutdownFns
	shutdownFns = nil
	mu.Unlock()

	var first error
	for _, fn := range fns {
		if err := fn(ctx); err != nil && first == nil {
			first = eris.Wrap(err, "telemetry: shutdown")
		}
	}
	return first
}
