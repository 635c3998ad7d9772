package observe

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// instrumented wraps a mux serving GET /v1/rules/{id} (200), GET /boom
// (502) and nothing else in the middleware, with in-memory telemetry.
func instrumented(t *testing.T) (http.Handler, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/rules/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Correlation", CorrelationID(r.Context()))
	})
	mux.HandleFunc("GET /boom", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	return Middleware(m)(mux), reader, exp
}

func serve(h http.Handler, path string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func spanAttr(s sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, a := range s.Attributes() {
		if a.Key == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestMiddleware_CorrelationHeader(t *testing.T) {
	h, _, _ := instrumented(t)

	rec := serve(h, "/v1/rules/ikhfa")
	seen := rec.Header().Get("X-Seen-Correlation")
	if len(seen) != 32 {
		t.Fatalf("handler saw correlation ID %q, want 32 hex digits", seen)
	}
	if got := rec.Header().Get(CorrelationHeader); got != seen {
		t.Errorf("%s = %q, handler saw %q", CorrelationHeader, got, seen)
	}

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	rec = serve(h, "/v1/rules/ikhfa", "traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	if got := rec.Header().Get(CorrelationHeader); got != traceID {
		t.Errorf("continued trace: %s = %q, want %q", CorrelationHeader, got, traceID)
	}
}

func TestMiddleware_Spans(t *testing.T) {
	h, _, exp := instrumented(t)

	tests := []struct {
		path       string
		wantName   string
		wantStatus int64
		wantError  bool
	}{
		{"/v1/rules/madd_lazim", "GET /v1/rules/{id}", http.StatusOK, false},
		{"/boom", "GET /boom", http.StatusBadGateway, true},
		{"/nowhere", http.MethodGet, http.StatusNotFound, false},
	}
	for _, tt := range tests {
		exp.Reset()
		serve(h, tt.path)

		spans := exp.GetSpans().Snapshots()
		if len(spans) != 1 {
			t.Fatalf("%s: %d spans recorded, want 1", tt.path, len(spans))
		}
		s := spans[0]
		if s.Name() != tt.wantName {
			t.Errorf("%s: span name = %q, want %q", tt.path, s.Name(), tt.wantName)
		}
		if v, ok := spanAttr(s, "http.response.status_code"); !ok || v.AsInt64() != tt.wantStatus {
			t.Errorf("%s: status attribute = %v, want %d", tt.path, v.AsInt64(), tt.wantStatus)
		}
		if got := s.Status().Code == codes.Error; got != tt.wantError {
			t.Errorf("%s: span error = %v, want %v", tt.path, got, tt.wantError)
		}
	}
}

func TestMiddleware_DurationByRoute(t *testing.T) {
	h, reader, _ := instrumented(t)

	serve(h, "/v1/rules/ikhfa")
	serve(h, "/v1/rules/idgham")
	serve(h, "/boom")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "tartil.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric data is %T, want a histogram", met.Data)
	}

	counts := map[string]uint64{}
	for _, dp := range hist.DataPoints {
		if _, ok := dp.Attributes.Value("path"); ok {
			t.Error("raw path must not be a metric attribute")
		}
		route, _ := dp.Attributes.Value("route")
		status, _ := dp.Attributes.Value("status")
		counts[route.AsString()+" "+status.AsString()] += dp.Count
	}
	want := map[string]uint64{
		"GET /v1/rules/{id} 2xx": 2,
		"GET /boom 5xx":          1,
	}
	for k, n := range want {
		if counts[k] != n {
			t.Errorf("samples for %q = %d, want %d (all: %v)", k, counts[k], n, counts)
		}
	}
}

func TestStatusClassAndLogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		path   string
		status int
		class  string
		level  slog.Level
	}{
		{"/v1/analyze", 200, "2xx", slog.LevelInfo},
		{"/v1/analyze", 400, "4xx", slog.LevelInfo},
		{"/v1/analyze", 502, "5xx", slog.LevelWarn},
		{"/healthz", 200, "2xx", slog.LevelDebug},
		{"/readyz", 503, "5xx", slog.LevelWarn},
	}
	for _, tt := range tests {
		if got := statusClass(tt.status); got != tt.class {
			t.Errorf("statusClass(%d) = %q, want %q", tt.status, got, tt.class)
		}
		if got := logLevelFor(tt.path, tt.status); got != tt.level {
			t.Errorf("logLevelFor(%q, %d) = %v, want %v", tt.path, tt.status, got, tt.level)
		}
	}
}
