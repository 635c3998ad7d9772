package observe

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// DefaultServiceName is reported when ProviderConfig.ServiceName is empty.
const DefaultServiceName = "tartil"

// Resource attribute keys describing how an instance is wired.
const (
	AttrASRProvider      = attribute.Key("tartil.asr.provider")
	AttrFeaturesProvider = attribute.Key("tartil.features.provider")
	AttrHistoryBackend   = attribute.Key("tartil.history.backend")
)

// ProviderConfig configures [InitProvider].
type ProviderConfig struct {
	ServiceName    string
	ServiceVersion string

	// Attributes are added to the telemetry resource, typically the
	// Attr*Provider and AttrHistoryBackend keys.
	Attributes []attribute.KeyValue

	// SampleRatio is the share of new root traces sampled. Values outside
	// (0, 1) sample every trace. Child spans follow their parent.
	SampleRatio float64

	// TraceExporter receives finished spans in batches. Without one, spans
	// still carry correlation IDs but go nowhere.
	TraceExporter sdktrace.SpanExporter
}

func (c ProviderConfig) sampler() sdktrace.Sampler {
	if c.SampleRatio <= 0 || c.SampleRatio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRatio))
}

func (c ProviderConfig) resource() (*resource.Resource, error) {
	name := c.ServiceName
	if name == "" {
		name = DefaultServiceName
	}
	attrs := append([]attribute.KeyValue{
		semconv.ServiceName(name),
		semconv.ServiceVersion(c.ServiceVersion),
	}, c.Attributes...)
	return resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
}

// InitProvider installs global meter and tracer providers plus the W3C
// trace-context propagator. Metrics are exposed through the Prometheus
// default registry, which the server serves on /metrics.
//
// The returned function flushes pending spans and releases both providers.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	res, err := cfg.resource()
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	exporter, err := promexporter.New()
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(exporter))

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res), sdktrace.WithSampler(cfg.sampler())}
	if cfg.TraceExporter != nil {
		opts = append(opts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(opts...)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
