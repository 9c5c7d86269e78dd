// Package observability provides OpenTelemetry tracing and metrics for
// validation runs: a span per campaign and per segment, verdict counters and
// a campaign duration histogram.
package observability

import (
	"context"
	"fmt"
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
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Mindburn-Labs/briefcheck/pkg/verdict"
)

const instrumentationName = "github.com/Mindburn-Labs/briefcheck"

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string // e.g., "localhost:4317" for gRPC
	Enabled        bool
	Insecure       bool
	BatchTimeout   time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "briefcheck",
		ServiceVersion: "1.0.0",
		OTLPEndpoint:   "localhost:4317",
		Insecure:       true,
		BatchTimeout:   5 * time.Second,
	}
}

// Provider owns the tracer and the run instruments. A disabled provider
// hands out no-op instruments, so callers never check for nil.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *zap.Logger

	verdicts        metric.Int64Counter
	segmentFailures metric.Int64Counter
	campaignSeconds metric.Float64Histogram
}

// New creates a provider exporting over OTLP gRPC when config.Enabled.
func New(ctx context.Context, config *Config, logger *zap.Logger) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Provider{config: config, logger: logger.Named("observability")}

	if !config.Enabled {
		p.tracer = otel.Tracer(instrumentationName)
		p.meter = otel.Meter(instrumentationName)
		p.logger.Debug("observability disabled")
		return p, p.initInstruments()
	}

	res, err := newResource(config)
	if err != nil {
		return nil, err
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(config.OTLPEndpoint)}
	if config.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter, sdktrace.WithBatchTimeout(config.BatchTimeout)),
	)
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetMeterProvider(p.meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	p.tracer = p.tracerProvider.Tracer(instrumentationName, trace.WithInstrumentationVersion(config.ServiceVersion))
	p.meter = p.meterProvider.Meter(instrumentationName, metric.WithInstrumentationVersion(config.ServiceVersion))
	if err := p.initInstruments(); err != nil {
		return nil, fmt.Errorf("failed to init instruments: %w", err)
	}

	p.logger.Info("observability initialized",
		zap.String("service", config.ServiceName),
		zap.String("endpoint", config.OTLPEndpoint),
		zap.Bool("insecure", config.Insecure),
	)
	return p, nil
}

// NewWithProviders builds a provider over caller-owned SDK providers. Tests
// use it with a manual metric reader and an in-memory span exporter.
func NewWithProviders(tp *sdktrace.TracerProvider, mp *sdkmetric.MeterProvider, logger *zap.Logger) (*Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Provider{
		config: DefaultConfig(),
		tracer: tp.Tracer(instrumentationName),
		meter:  mp.Meter(instrumentationName),
		logger: logger.Named("observability"),
	}
	return p, p.initInstruments()
}

func newResource(config *Config) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

func (p *Provider) initInstruments() error {
	var err error
	p.verdicts, err = p.meter.Int64Counter("briefcheck.verdicts",
		metric.WithDescription("Verdicts emitted, by category and status"),
		metric.WithUnit("{verdict}"),
	)
	if err != nil {
		return err
	}
	p.segmentFailures, err = p.meter.Int64Counter("briefcheck.segment.failures",
		metric.WithDescription("Segments omitted after a structural failure"),
		metric.WithUnit("{segment}"),
	)
	if err != nil {
		return err
	}
	p.campaignSeconds, err = p.meter.Float64Histogram("briefcheck.campaign.duration",
		metric.WithDescription("Campaign validation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	return err
}

// Shutdown flushes and stops the exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.Error("failed to shutdown trace provider", zap.Error(err))
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.Error("failed to shutdown metric provider", zap.Error(err))
		}
	}
	return nil
}

// RecordVerdict counts one verdict.
func (p *Provider) RecordVerdict(ctx context.Context, category string, status verdict.Status) {
	p.verdicts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", category),
		attribute.String("status", string(status)),
	))
}

// StartCampaign opens the campaign span. The returned func ends the span and
// records the campaign duration.
func (p *Provider) StartCampaign(ctx context.Context, runID, campaignID string) (context.Context, func(error)) {
	start := time.Now()
	attrs := []attribute.KeyValue{
		attribute.String("run_id", runID),
		attribute.String("campaign", campaignID),
	}
	ctx, span := p.tracer.Start(ctx, "campaign.validate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	return ctx, func(err error) {
		p.campaignSeconds.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("campaign", campaignID)))
		end(span, err)
	}
}

// StartSegment opens a segment span. The returned func ends it; a non-nil
// error also counts a segment failure.
func (p *Provider) StartSegment(ctx context.Context, campaignID string, segmentID int64) (context.Context, func(error)) {
	ctx, span := p.tracer.Start(ctx, "segment.validate",
		trace.WithAttributes(
			attribute.String("campaign", campaignID),
			attribute.Int64("segment", segmentID),
		),
	)
	return ctx, func(err error) {
		if err != nil {
			p.segmentFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("campaign", campaignID)))
		}
		end(span, err)
	}
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
