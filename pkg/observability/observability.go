// Package observability provides OpenTelemetry tracing and RED metrics
// (rate, errors, duration) for formula calculations, plus a counter of
// risk classifications by level.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "assetrisk.formula"

// Metric names.
const (
	MetricCalculations    = "assetrisk.calculations.total"
	MetricErrors          = "assetrisk.calculation.errors.total"
	MetricDuration        = "assetrisk.calculation.duration"
	MetricActive          = "assetrisk.calculations.active"
	MetricClassifications = "assetrisk.classifications.total"
)

// Calculations take microseconds; the buckets start well below 1ms.
var durationBuckets = []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1}

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string        // gRPC, e.g. "localhost:4317"
	SampleRate     float64       // 0.0 to 1.0
	BatchTimeout   time.Duration // span batching window
	ExportInterval time.Duration // metric push period
	Enabled        bool
	Insecure       bool // plaintext gRPC, dev only
}

// DefaultConfig returns defaults for a local collector.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "assetrisk",
		ServiceVersion: "0.0.0-dev",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		ExportInterval: 15 * time.Second,
		Enabled:        true,
	}
}

// Provider owns the trace and metric providers and the calculation
// instruments. The zero-instrument provider returned for a disabled
// config records nothing.
type Provider struct {
	config  *Config
	tracers *sdktrace.TracerProvider
	meters  *sdkmetric.MeterProvider
	tracer  trace.Tracer
	logger  *slog.Logger

	calculations    metric.Int64Counter
	failures        metric.Int64Counter
	latency         metric.Float64Histogram
	inFlight        metric.Int64UpDownCounter
	classifications metric.Int64Counter
}

func newProvider(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig()
	}
	return &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}
}

// New builds a provider that exports spans and metrics to an OTLP gRPC
// collector and installs it as the global otel provider.
func New(ctx context.Context, config *Config) (*Provider, error) {
	p := newProvider(config)
	if !p.config.Enabled {
		p.logger.InfoContext(ctx, "observability disabled")
		return p, nil
	}

	res, err := p.resource()
	if err != nil {
		return nil, err
	}
	if err := p.exportToCollector(ctx, res); err != nil {
		return nil, err
	}

	otel.SetTracerProvider(p.tracers)
	otel.SetMeterProvider(p.meters)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if err := p.instrument(); err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "observability initialized",
		"service", p.config.ServiceName,
		"environment", p.config.Environment,
		"endpoint", p.config.OTLPEndpoint,
		"sample_rate", p.config.SampleRate,
	)
	return p, nil
}

// NewWithReader builds a provider that records metrics into reader and
// keeps spans in process. Global providers are left untouched.
func NewWithReader(config *Config, reader sdkmetric.Reader) (*Provider, error) {
	p := newProvider(config)
	res, err := p.resource()
	if err != nil {
		return nil, err
	}

	p.tracers = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(p.sampler()),
	)
	p.meters = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	if err := p.instrument(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) resource() (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(p.config.ServiceName),
			semconv.ServiceVersion(p.config.ServiceVersion),
			semconv.DeploymentEnvironmentName(p.config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observability resource: %w", err)
	}
	return res, nil
}

func (p *Provider) sampler() sdktrace.Sampler {
	switch {
	case p.config.SampleRate >= 1.0:
		return sdktrace.AlwaysSample()
	case p.config.SampleRate <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(p.config.SampleRate))
	}
}

// exportToCollector wires both providers to OTLP gRPC exporters.
func (p *Provider) exportToCollector(ctx context.Context, res *resource.Resource) error {
	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	spans, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return fmt.Errorf("trace exporter: %w", err)
	}
	points, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return fmt.Errorf("metric exporter: %w", err)
	}

	interval := p.config.ExportInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	p.tracers = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(spans, sdktrace.WithBatchTimeout(p.config.BatchTimeout)),
		sdktrace.WithSampler(p.sampler()),
	)
	p.meters = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(points, sdkmetric.WithInterval(interval))),
	)
	return nil
}

// instrument creates the tracer and the calculation instruments.
func (p *Provider) instrument() error {
	p.tracer = p.tracers.Tracer(instrumentationName,
		trace.WithInstrumentationVersion(p.config.ServiceVersion))
	meter := p.meters.Meter(instrumentationName,
		metric.WithInstrumentationVersion(p.config.ServiceVersion))

	var errs []error
	var err error
	p.calculations, err = meter.Int64Counter(MetricCalculations,
		metric.WithDescription("Formula calculations started"),
		metric.WithUnit("{calculation}"))
	errs = append(errs, err)

	p.failures, err = meter.Int64Counter(MetricErrors,
		metric.WithDescription("Calculations that ended in a formula error"),
		metric.WithUnit("{error}"))
	errs = append(errs, err)

	p.latency, err = meter.Float64Histogram(MetricDuration,
		metric.WithDescription("Calculation duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...))
	errs = append(errs, err)

	p.inFlight, err = meter.Int64UpDownCounter(MetricActive,
		metric.WithDescription("Calculations currently in flight"),
		metric.WithUnit("{calculation}"))
	errs = append(errs, err)

	p.classifications, err = meter.Int64Counter(MetricClassifications,
		metric.WithDescription("Damage factor results by risk level"),
		metric.WithUnit("{result}"))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("calculation instruments: %w", err)
	}
	return nil
}

// Shutdown flushes pending spans and metrics.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tracers != nil {
		errs = append(errs, p.tracers.Shutdown(ctx))
	}
	if p.meters != nil {
		errs = append(errs, p.meters.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// Tracer returns the provider's tracer, or the global one when disabled.
func (p *Provider) Tracer() trace.Tracer {
	if p.tracer == nil {
		return otel.Tracer(instrumentationName)
	}
	return p.tracer
}

// StartSpan starts a span on the provider's tracer.
func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, name, opts...)
}

// RecordCalculation counts one calculation.
func (p *Provider) RecordCalculation(ctx context.Context, attrs ...attribute.KeyValue) {
	if p.calculations != nil {
		p.calculations.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordError counts one failed calculation, labelled by error code when
// the error carries one.
func (p *Provider) RecordError(ctx context.Context, err error, attrs ...attribute.KeyValue) {
	if p.failures != nil {
		labelled := append(append([]attribute.KeyValue(nil), attrs...), AttrErrorCode.String(errorCode(err)))
		p.failures.Add(ctx, 1, metric.WithAttributes(labelled...))
	}
}

// RecordDuration records how long a calculation took.
func (p *Provider) RecordDuration(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	if p.latency != nil {
		p.latency.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
	}
}

// RecordRiskLevel counts one classified damage factor.
func (p *Provider) RecordRiskLevel(ctx context.Context, level string, attrs ...attribute.KeyValue) {
	if p.classifications != nil {
		labelled := append(append([]attribute.KeyValue(nil), attrs...), AttrRiskLevel.String(level))
		p.classifications.Add(ctx, 1, metric.WithAttributes(labelled...))
	}
}

// TrackOperation opens a span and counts a calculation. The returned
// func closes both and must be called exactly once with the outcome.
func (p *Provider) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := p.StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)

	if p.inFlight != nil {
		p.inFlight.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	p.RecordCalculation(ctx, attrs...)

	return ctx, func(err error) {
		if p.inFlight != nil {
			p.inFlight.Add(ctx, -1, metric.WithAttributes(attrs...))
		}
		p.RecordDuration(ctx, time.Since(start), attrs...)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, errorCode(err))
			p.RecordError(ctx, err, attrs...)
		}
		span.End()
	}
}
