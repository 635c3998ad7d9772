package observe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/MrWong99/tartil/pkg/types"
)

// recordSpans installs an in-memory tracer provider for the test.
func recordSpans(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs redirects the default logger to a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestStartSpan_Attributes(t *testing.T) {
	exp := recordSpans(t)

	ctx, span := StartSpan(context.Background(), "analysis.AnalyzeBestOf", AttrReferences.Int(3))
	cid := CorrelationID(ctx)
	span.End()

	if len(cid) != 32 || strings.Trim(cid, "0123456789abcdef") != "" {
		t.Errorf("correlation ID = %q, want 32 lowercase hex digits", cid)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "analysis.AnalyzeBestOf" {
		t.Fatalf("spans = %+v", spans)
	}
	var refs int64 = -1
	for _, a := range spans[0].Attributes {
		if a.Key == AttrReferences {
			refs = a.Value.AsInt64()
		}
	}
	if refs != 3 {
		t.Errorf("%s = %d, want 3", AttrReferences, refs)
	}
}

func TestCorrelationID(t *testing.T) {
	recordSpans(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("without a span: %q, want empty", got)
	}

	parent, root := StartSpan(context.Background(), "root")
	defer root.End()
	child, span := StartSpan(parent, "child")
	defer span.End()
	if CorrelationID(child) != CorrelationID(parent) {
		t.Error("child span must share the correlation ID of its trace")
	}

	seen := map[string]bool{}
	for range 50 {
		ctx, s := StartSpan(context.Background(), "independent")
		cid := CorrelationID(ctx)
		s.End()
		if seen[cid] {
			t.Fatalf("duplicate correlation ID %s", cid)
		}
		seen[cid] = true
	}
}

func TestFail(t *testing.T) {
	exp := recordSpans(t)

	tests := []struct {
		name      string
		err       error
		wantError bool
		wantEvent bool
	}{
		{"nil", nil, false, false},
		{"input", fmt.Errorf("analysis: %w", types.NewInputError("dtw", "empty sequence")), false, true},
		{"cancelled", context.Canceled, false, true},
		{"fault", errors.New("whisper: connection refused"), true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp.Reset()
			_, span := StartSpan(context.Background(), "op")
			Fail(span, tt.err)
			span.End()

			s := exp.GetSpans()[0]
			if got := s.Status.Code == codes.Error; got != tt.wantError {
				t.Errorf("error status = %v, want %v", got, tt.wantError)
			}
			if got := len(s.Events) > 0; got != tt.wantEvent {
				t.Errorf("recorded event = %v, want %v", got, tt.wantEvent)
			}
		})
	}
}

func TestLogger(t *testing.T) {
	recordSpans(t)
	buf := captureLogs(t)

	Logger(context.Background()).Info("outside")
	if strings.Contains(buf.String(), "correlation_id") {
		t.Errorf("log without a span carries a correlation ID: %s", buf)
	}

	buf.Reset()
	ctx, span := StartSpan(context.Background(), "analysis.Analyze")
	defer span.End()
	Logger(ctx).Info("inside")
	out := buf.String()
	if !strings.Contains(out, "correlation_id="+CorrelationID(ctx)) || !strings.Contains(out, "span_id=") {
		t.Errorf("log inside a span = %s", out)
	}
}
