// Package observe instruments tartil with OpenTelemetry.
//
// [Metrics] holds every instrument the analysis pipeline, the collaborator
// fallbacks, the history store and the HTTP layer record to.
// [InitProvider] installs the global providers and bridges metrics to the
// Prometheus registry served on /metrics. [StartSpan], [Fail] and [Logger]
// tie analysis spans to log lines through the correlation ID, and
// [Middleware] opens the server span of every request. Tests build their
// own Metrics with [NewMetrics] over a ManualReader.
package observe

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/tartil/pkg/types"
)

// Report statuses used with [Metrics.RecordReport].
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// AnalysisDuration tracks the end-to-end latency of one analysis.
	AnalysisDuration metric.Float64Histogram

	// AlignmentDuration tracks DTW latency.
	AlignmentDuration metric.Float64Histogram

	// CollaboratorDuration tracks ASR and feature-extraction latency. Use with
	// attribute:
	//   attribute.String("collaborator", ...)
	CollaboratorDuration metric.Float64Histogram

	// --- Counters ---

	// Reports counts finished analyses. Use with attribute:
	//   attribute.String("status", ...) (see StatusOK and friends)
	Reports metric.Int64Counter

	// Violations counts scored Tajweed violations. Use with attributes:
	//   attribute.String("category", ...), attribute.String("severity", ...)
	Violations metric.Int64Counter

	// CollaboratorRequests counts collaborator calls. Use with attributes:
	//   attribute.String("collaborator", ...), attribute.String("status", ...)
	CollaboratorRequests metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with
	// attributes:
	//   attribute.String("breaker", ...), attribute.String("state", ...)
	BreakerTransitions metric.Int64Counter

	// HistoryWrites counts attempts to store an analysis. Use with
	// attribute:
	//   attribute.String("status", ...) (StatusOK or StatusError)
	HistoryWrites metric.Int64Counter

	// --- Error counters ---

	// CollaboratorErrors counts failed collaborator calls. Use with attribute:
	//   attribute.String("collaborator", ...)
	CollaboratorErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveAnalyses tracks the number of analyses in flight.
	ActiveAnalyses metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Local
// analysis finishes in milliseconds; collaborator calls take seconds.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(scopeName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.AnalysisDuration, err = m.Float64Histogram("tartil.analysis.duration",
		metric.WithDescription("Latency of one recitation analysis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AlignmentDuration, err = m.Float64Histogram("tartil.alignment.duration",
		metric.WithDescription("Latency of DTW sequence alignment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CollaboratorDuration, err = m.Float64Histogram("tartil.collaborator.duration",
		metric.WithDescription("Latency of external collaborator calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Reports, err = m.Int64Counter("tartil.reports",
		metric.WithDescription("Total analyses by status."),
	); err != nil {
		return nil, err
	}
	if met.Violations, err = m.Int64Counter("tartil.tajweed.violations",
		metric.WithDescription("Total scored Tajweed violations by category and severity."),
	); err != nil {
		return nil, err
	}
	if met.CollaboratorRequests, err = m.Int64Counter("tartil.collaborator.requests",
		metric.WithDescription("Total collaborator requests by collaborator and status."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("tartil.breaker.transitions",
		metric.WithDescription("Total circuit breaker state changes by breaker and new state."),
	); err != nil {
		return nil, err
	}

	if met.HistoryWrites, err = m.Int64Counter("tartil.history.writes",
		metric.WithDescription("Total attempts to store an analysis by status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.CollaboratorErrors, err = m.Int64Counter("tartil.collaborator.errors",
		metric.WithDescription("Total collaborator errors by collaborator."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveAnalyses, err = m.Int64UpDownCounter("tartil.active_analyses",
		metric.WithDescription("Number of analyses in flight."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("tartil.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var defaultMetrics = sync.OnceValue(func() *Metrics {
	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		panic("observe: create default metrics: " + err.Error())
	}
	return m
})

// DefaultMetrics returns the process-wide [Metrics], built on first use
// from the global meter provider. Call it after [InitProvider] so the
// instruments reach the Prometheus exporter.
func DefaultMetrics() *Metrics { return defaultMetrics() }

// RecordReport records one finished analysis with the given status.
func (m *Metrics) RecordReport(ctx context.Context, status string) {
	m.Reports.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordViolation records one scored Tajweed violation.
func (m *Metrics) RecordViolation(ctx context.Context, category, severity string) {
	m.Violations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("category", category),
			attribute.String("severity", severity),
		),
	)
}

// RecordCollaboratorRequest records a collaborator request counter increment
// with the standard attribute set.
func (m *Metrics) RecordCollaboratorRequest(ctx context.Context, collaborator, status string) {
	m.CollaboratorRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("collaborator", collaborator),
			attribute.String("status", status),
		),
	)
}

// RecordCollaboratorError records a collaborator error counter increment.
func (m *Metrics) RecordCollaboratorError(ctx context.Context, collaborator string) {
	m.CollaboratorErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("collaborator", collaborator)),
	)
}

// RecordBreakerTransition records a circuit breaker entering state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", breaker),
			attribute.String("state", state),
		),
	)
}

// RecordHistoryWrite records the outcome of storing one analysis.
func (m *Metrics) RecordHistoryWrite(ctx context.Context, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	m.HistoryWrites.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordCollaboratorCall records the latency and outcome of one
// collaborator call. Errors the caller caused count as failed requests but
// not as collaborator errors.
func (m *Metrics) RecordCollaboratorCall(ctx context.Context, collaborator string, elapsed time.Duration, err error) {
	m.CollaboratorDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("collaborator", collaborator)))
	status := StatusOK
	if err != nil {
		status = StatusError
		if !callerCaused(err) {
			m.RecordCollaboratorError(ctx, collaborator)
		}
	}
	m.RecordCollaboratorRequest(ctx, collaborator, status)
}

func callerCaused(err error) bool {
	return errors.Is(err, types.ErrInput) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
