package observe

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/tartil/pkg/types"
)

const scopeName = "github.com/MrWong99/tartil"

// Span attribute keys recorded by the analysis pipeline.
const (
	AttrAnalysisID   = attribute.Key("analysis.id")
	AttrOverall      = attribute.Key("analysis.overall")
	AttrDegraded     = attribute.Key("analysis.degraded")
	AttrViolations   = attribute.Key("analysis.violations")
	AttrReferences   = attribute.Key("analysis.references")
	AttrBestIndex    = attribute.Key("analysis.best_index")
	AttrCollaborator = attribute.Key("analysis.collaborator")
)

// Tracer returns the tracer of the globally registered provider.
func Tracer() trace.Tracer {
	return otel.Tracer(scopeName)
}

// StartSpan starts an internal span carrying attrs. End it with span.End.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// Fail records err on span. Rejected input is recorded as an event only;
// the span status turns to Error for everything else, so trace backends
// count server faults and not bad requests.
func Fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	if errors.Is(err, types.ErrInput) || errors.Is(err, context.Canceled) {
		return
	}
	span.SetStatus(codes.Error, err.Error())
}

// CorrelationID returns the trace ID of the span in ctx as 32 hex digits,
// or "" without one. Responses echo it in X-Correlation-ID and every log
// line of a request carries it.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with the correlation_id and span_id of
// the span in ctx attached.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("correlation_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
