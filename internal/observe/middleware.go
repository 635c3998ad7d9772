package observe

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// CorrelationHeader carries the correlation ID of every response.
const CorrelationHeader = "X-Correlation-ID"

// unmatchedRoute labels requests no route pattern matched.
const unmatchedRoute = "unmatched"

// responseWriter remembers the status written by the handler.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the wrapped writer to [http.ResponseController].
func (w *responseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Middleware traces, times and logs every request. It continues an
// incoming W3C trace when a traceparent header is present, echoes the
// correlation ID in [CorrelationHeader], and labels spans and the
// HTTPRequestDuration histogram by the matched route pattern so analysis
// and rule IDs in paths do not explode cardinality. 5xx responses mark the
// span as failed.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := Tracer().Start(ctx, r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			cid := CorrelationID(ctx)
			if cid != "" {
				w.Header().Set(CorrelationHeader, cid)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			r = r.WithContext(ctx)
			next.ServeHTTP(rw, r)
			elapsed := time.Since(start)

			route := r.Pattern
			if route == "" {
				route = unmatchedRoute
			} else {
				span.SetName(route)
				span.SetAttributes(semconv.HTTPRoute(route))
			}
			span.SetAttributes(semconv.HTTPResponseStatusCode(rw.status))
			if rw.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rw.status))
			}

			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("route", route),
				attribute.String("status", statusClass(rw.status)),
			))

			slog.LogAttrs(ctx, logLevelFor(r.URL.Path, rw.status), "request completed",
				slog.String("correlation_id", cid),
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.status),
				slog.Duration("duration", elapsed),
			)
		})
	}
}

// statusClass maps a status code to "2xx", "4xx" and so on.
func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

// quietPaths are polled by orchestrators and scrapers.
var quietPaths = map[string]bool{"/healthz": true, "/readyz": true, "/metrics": true}

func logLevelFor(path string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelWarn
	case quietPaths[path]:
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
