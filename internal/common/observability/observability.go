package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Options configures New.
type Options struct {
	ServiceName string
	// SampleRatio is the fraction of root spans recorded (0..1).
	SampleRatio float64
	// Registerer receives the OpenTelemetry Prometheus collector. Nil means
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// SpanExporter, when set, receives finished spans in batches.
	SpanExporter sdktrace.SpanExporter
}

type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	propagator     propagation.TextMapPropagator
	forwardCounter otelmetric.Int64Counter
	forwardLatency otelmetric.Float64Histogram
}

func New(opts Options) (*Observability, error) {
	exporterOpts := []otelprom.Option{}
	if opts.Registerer != nil {
		exporterOpts = append(exporterOpts, otelprom.WithRegisterer(opts.Registerer))
	}
	exporter, err := otelprom.New(exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(meterProvider)
	meter := meterProvider.Meter(opts.ServiceName)

	forwardCounter, err := meter.Int64Counter(
		"gateway.forwards",
		otelmetric.WithDescription("Number of requests forwarded to the backend"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create forward counter: %w", err)
	}

	forwardLatency, err := meter.Float64Histogram(
		"gateway.forward.duration",
		otelmetric.WithDescription("Backend round trip duration"),
		otelmetric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create forward histogram: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRatio))),
	}
	if opts.SpanExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(opts.SpanExporter))
	}
	tracerProvider := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tracerProvider)

	propagator := propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
	otel.SetTextMapPropagator(propagator)

	return &Observability{
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer(opts.ServiceName),
		propagator:     propagator,
		forwardCounter: forwardCounter,
		forwardLatency: forwardLatency,
	}, nil
}

// NewNoop returns an Observability that records nothing.
func NewNoop() *Observability {
	return &Observability{
		tracer:     noop.NewTracerProvider().Tracer("noop"),
		propagator: propagation.TraceContext{},
	}
}

// StartSpan starts a client span for an outbound call.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// Inject writes the trace context of ctx into outbound request headers.
func (o *Observability) Inject(ctx context.Context, header http.Header) {
	o.propagator.Inject(ctx, propagation.HeaderCarrier(header))
}

// Extract reads an inbound trace context.
func (o *Observability) Extract(ctx context.Context, header http.Header) context.Context {
	return o.propagator.Extract(ctx, propagation.HeaderCarrier(header))
}

func (o *Observability) RecordForward(ctx context.Context, route string, status int, duration time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	if o.forwardCounter != nil {
		o.forwardCounter.Add(ctx, 1, attrs)
	}
	if o.forwardLatency != nil {
		o.forwardLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) Shutdown(ctx context.Context) error {
	var firstErr error
	if o.tracerProvider != nil {
		if err := o.tracerProvider.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if o.meterProvider != nil {
		if err := o.meterProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
