// =============================================================================
// SceneFlow OpenTelemetry
// =============================================================================
// Owns the span, event and attribute vocabulary of a run, the run-level OTel
// instruments, and SDK setup. Providers are only created when telemetry is
// enabled; otherwise the global noop providers stay in place.
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
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
)

// InstrumentationName is the tracer and meter name used across SceneFlow.
const InstrumentationName = "github.com/BaSui01/sceneflow"

// Span and event names recorded by the distributor.
const (
	SpanRun       = "sceneflow.run"
	SpanSubmit    = "sceneflow.submit"
	EventDownload = "download"
)

// Attribute keys shared by spans, events, instruments and the resource.
const (
	RunIDKey         = attribute.Key("sceneflow.run_id")
	ScenesKey        = attribute.Key("sceneflow.scenes")
	SceneIndexKey    = attribute.Key("sceneflow.scene_index")
	CopyIndexKey     = attribute.Key("sceneflow.copy_index")
	AccountIDKey     = attribute.Key("sceneflow.account_id")
	AccountsKey      = attribute.Key("sceneflow.accounts")
	AccountSourceKey = attribute.Key("sceneflow.account_source")
	OutputDirKey     = attribute.Key("sceneflow.output_dir")
	ModelsKey        = attribute.Key("sceneflow.models")
	OperationsKey    = attribute.Key("sceneflow.operations")
	AttemptsKey      = attribute.Key("sceneflow.attempts")
	BytesKey         = attribute.Key("sceneflow.bytes")
	OKKey            = attribute.Key("sceneflow.ok")
	SucceededKey     = attribute.Key("sceneflow.succeeded")
	FailedKey        = attribute.Key("sceneflow.failed")
	OutcomeKey       = attribute.Key("sceneflow.outcome")
)

// Run-level instrument names.
const (
	RunDurationMetric  = "sceneflow.run.duration"
	SceneOutcomeMetric = "sceneflow.scene.outcomes"
)

// runDurationBuckets 以秒为单位，覆盖单场景到全局超时（默认 30 分钟）的区间
var runDurationBuckets = []float64{15, 30, 60, 120, 300, 600, 1200, 1800, 3600}

// Config 遥测导出配置
type Config struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
	SampleRate   float64
}

// RunInfo describes the batch this process runs. It is attached to the
// resource so every exported span and metric carries it.
type RunInfo struct {
	Version       string
	AccountSource string
	Accounts      int
	Scenes        int
	OutputDir     string
	Models        []string
}

// Providers holds the OTel SDK TracerProvider and MeterProvider.
// When telemetry is disabled, both fields are nil and Shutdown is a no-op.
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Init initializes the OTel SDK for one run. When cfg.Enabled is false it
// returns noop Providers without connecting to any external service.
func Init(ctx context.Context, cfg Config, info RunInfo, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Info("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}

	res, err := newResource(ctx, cfg, info)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg.SampleRate)),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
		sdkmetric.WithView(Views()...),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", cfg.ServiceName),
		zap.Float64("sample_rate", cfg.SampleRate),
		zap.Int("accounts", info.Accounts),
		zap.Int("scenes", info.Scenes),
	)
	return &Providers{tp: tp, mp: mp}, nil
}

func newResource(ctx context.Context, cfg Config, info RunInfo) (*resource.Resource, error) {
	version := info.Version
	if version == "" {
		version = "dev"
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(version),
		semconv.ServiceInstanceIDKey.String(uuid.NewString()),
		AccountsKey.Int(info.Accounts),
		ScenesKey.Int(info.Scenes),
	}
	if info.AccountSource != "" {
		attrs = append(attrs, AccountSourceKey.String(info.AccountSource))
	}
	if info.OutputDir != "" {
		attrs = append(attrs, OutputDirKey.String(info.OutputDir))
	}
	if len(info.Models) > 0 {
		attrs = append(attrs, ModelsKey.StringSlice(info.Models))
	}

	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}
	return res, nil
}

// newSampler keeps the caller's sampling decision and samples root spans by ratio.
func newSampler(rate float64) sdktrace.Sampler {
	if rate >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

// Views returns the metric views SceneFlow instruments need.
func Views() []sdkmetric.View {
	return []sdkmetric.View{
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: RunDurationMetric},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: runDurationBuckets,
			}},
		),
	}
}

// Shutdown flushes pending spans/metrics and closes exporters.
// Safe to call on noop Providers (nil tp/mp).
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Tracer returns the SceneFlow tracer from the current global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// Meter returns the SceneFlow meter from the current global provider.
func Meter() metric.Meter {
	return otel.Meter(InstrumentationName)
}

// =============================================================================
// Run instruments
// =============================================================================

// RunRecorder records one data point per finished run. A nil recorder is a no-op.
type RunRecorder struct {
	duration metric.Float64Histogram
	outcomes metric.Int64Counter
}

// NewRunRecorder creates the run instruments on m.
func NewRunRecorder(m metric.Meter) (*RunRecorder, error) {
	duration, err := m.Float64Histogram(RunDurationMetric,
		metric.WithUnit("s"),
		metric.WithDescription("Wall time of a scene batch run"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", RunDurationMetric, err)
	}
	outcomes, err := m.Int64Counter(SceneOutcomeMetric,
		metric.WithDescription("Scenes finished per run, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", SceneOutcomeMetric, err)
	}
	return &RunRecorder{duration: duration, outcomes: outcomes}, nil
}

// Record adds the outcome of one run.
func (r *RunRecorder) Record(ctx context.Context, succeeded, failed int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(OKKey.Bool(failed == 0)))
	if succeeded > 0 {
		r.outcomes.Add(ctx, int64(succeeded), metric.WithAttributes(OutcomeKey.String("succeeded")))
	}
	if failed > 0 {
		r.outcomes.Add(ctx, int64(failed), metric.WithAttributes(OutcomeKey.String("failed")))
	}
}
