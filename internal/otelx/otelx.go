// Package otelx installs the process-wide tracer provider and propagator.
package otelx

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/keithlinneman/linnemanlabs-vhost/internal/xerrors"
)

const (
	dialTimeout   = 3 * time.Second
	exportTimeout = 10 * time.Second
)

type Options struct {
	Enabled bool
	// Endpoint is the collector's gRPC host:port.
	Endpoint string
	Insecure bool
	// Headers are sent with every export, e.g. a collector auth token.
	Headers map[string]string
	// Sample is the ratio of new root traces kept. Incoming sampled parents
	// are always honored.
	Sample float64

	Service   string
	Component string
	Version   string
	// Attributes are added to the resource, e.g. the web root served.
	Attributes map[string]string
}

// Tracing is the installed provider. Shutdown flushes pending spans.
type Tracing struct {
	provider trace.TracerProvider
	shutdown func(context.Context) error
}

func (t *Tracing) TracerProvider() trace.TracerProvider { return t.provider }

func (t *Tracing) Shutdown(ctx context.Context) error { return t.shutdown(ctx) }

// Init installs a global tracer provider. When tracing is disabled the
// provider is a no-op, so spans are never recording and request handlers
// skip their per-stage spans entirely.
func Init(ctx context.Context, o Options) (*Tracing, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	if !o.Enabled {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return &Tracing{provider: tp, shutdown: func(context.Context) error { return nil }}, nil
	}

	if o.Endpoint == "" {
		return nil, xerrors.New("otlp endpoint is required when tracing is enabled")
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(o.Endpoint),
		otlptracegrpc.WithTimeout(exportTimeout),
	}
	if o.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(o.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(o.Headers))
	}

	// the exporter connects lazily, bound setup anyway so a bad endpoint
	// cannot hold up startup
	dialCtx, dialCancel := context.WithTimeout(ctx, dialTimeout)
	defer dialCancel()
	exp, err := otlptracegrpc.New(dialCtx, opts...)
	if err != nil {
		return nil, xerrors.Wrapf(err, "create otlp exporter for endpoint=%v", o.Endpoint)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(
			sdktrace.TraceIDRatioBased(o.Sample),
		)),
		sdktrace.WithBatcher(exp,
			sdktrace.WithMaxQueueSize(2048),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(newResource(ctx, o)),
	)
	otel.SetTracerProvider(tp)

	return &Tracing{provider: tp, shutdown: tp.Shutdown}, nil
}

// newResource never fails: detector errors only drop the detected fields.
func newResource(ctx context.Context, o Options) *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(serviceName(o.Service, o.Component)),
		semconv.ServiceVersionKey.String(o.Version),
	}
	for k, v := range o.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	res, _ := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithHost(),
		resource.WithAttributes(attrs...),
	)
	if res == nil {
		res = resource.NewSchemaless(attrs...)
	}
	return res
}

func serviceName(service, component string) string {
	switch {
	case service == "":
		return component
	case component == "":
		return service
	}
	return service + "." + component
}
