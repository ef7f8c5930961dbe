// Package otelx installs the global tracer provider and propagators.
package otelx

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/keithlinneman/platform-demo/internal/xerrors"
)

type Options struct {
	Enabled  bool
	Endpoint string // OTLP gRPC collector, host:port
	Insecure bool
	Sample   float64 // parent-based ratio, 0..1
	Service  string
	Version  string

	// Exporter replaces the OTLP exporter when set.
	Exporter sdktrace.SpanExporter
}

func setPropagator() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
}

// Init installs a tracer provider and returns its shutdown func.
// Disabled still installs an SDK provider with no exporter so spans carry
// valid IDs for log and exemplar correlation.
func Init(ctx context.Context, o Options) (func(context.Context) error, error) {
	setPropagator()
	if !o.Enabled {
		otel.SetTracerProvider(sdktrace.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	exp := o.Exporter
	if exp == nil {
		if o.Endpoint == "" {
			return nil, xerrors.New("otlp endpoint is required when tracing is enabled")
		}
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(o.Endpoint)}
		if o.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		// the collector is node-local; don't block startup on it
		dialCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		var err error
		if exp, err = otlptracegrpc.New(dialCtx, opts...); err != nil {
			return nil, xerrors.Wrapf(err, "create otlp exporter for %s", o.Endpoint)
		}
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(o.Service),
			semconv.ServiceVersionKey.String(o.Version),
		),
	)
	if err != nil {
		// partial resources are still usable
		res = resource.Default()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(o.Sample))),
		sdktrace.WithBatcher(exp,
			sdktrace.WithMaxQueueSize(2048),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
