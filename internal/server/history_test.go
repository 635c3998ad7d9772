package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/uuid"

	"github.com/MrWong99/tartil/internal/analysis"
	"github.com/MrWong99/tartil/internal/history"
	"github.com/MrWong99/tartil/internal/server"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func TestHistory_DisabledWithoutStore(t *testing.T) {
	t.Parallel()
	h := newHandler(t, server.Config{})
	for _, path := range []string{"/v1/history", "/v1/progress?text=x"} {
		if rec := get(t, h, path); rec.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, rec.Code)
		}
	}
}

func TestHistory_StoresAnalyses(t *testing.T) {
	t.Parallel()

	store := history.NewMemoryStore(0)
	h := newHandler(t, server.Config{History: store, HistoryDimensions: 2})

	first := postJSON(t, h, "/v1/analyze", analysis.Request{Recitation: recitation(), Reference: reference(1, 2, 3)})
	if first.Code != http.StatusOK {
		t.Fatalf("analyze: status %d: %s", first.Code, first.Body.String())
	}
	firstID := decodeBody[reportBody](t, first).ID

	best := postJSON(t, h, "/v1/analyze/best-of", server.BestOfRequest{
		Recitation: recitation(),
		References: []analysis.Reference{reference(9, 9, 9), reference(1, 2, 3)},
	})
	if best.Code != http.StatusOK {
		t.Fatalf("best-of: status %d: %s", best.Code, best.Body.String())
	}

	list := get(t, h, "/v1/history?text="+url.QueryEscape(verse))
	if list.Code != http.StatusOK {
		t.Fatalf("history: status %d", list.Code)
	}
	records := decodeBody[[]history.Record](t, list)
	if len(records) != 2 {
		t.Fatalf("history returned %d records, want 2", len(records))
	}
	for _, r := range records {
		if len(r.Centroid) != 2 || r.Centroid[0] != 2 {
			t.Errorf("centroid = %v, want the mean of the recitation features", r.Centroid)
		}
	}

	one := get(t, h, "/v1/history/"+firstID)
	if one.Code != http.StatusOK {
		t.Fatalf("record: status %d", one.Code)
	}
	if got := decodeBody[history.Record](t, one); got.ID.String() != firstID || got.Report == nil {
		t.Errorf("record = %+v", got)
	}

	similar := get(t, h, "/v1/history/"+firstID+"/similar?k=3")
	if similar.Code != http.StatusOK {
		t.Fatalf("similar: status %d", similar.Code)
	}
	if matches := decodeBody[[]history.Match](t, similar); len(matches) != 1 || matches[0].Distance > 1e-6 {
		t.Errorf("similar = %+v, want the other identical recitation", matches)
	}

	progress := get(t, h, "/v1/progress?text="+url.QueryEscape(verse))
	if progress.Code != http.StatusOK {
		t.Fatalf("progress: status %d", progress.Code)
	}
	if p := decodeBody[history.Progress](t, progress); p.Attempts != 2 || p.Best < 0.999 {
		t.Errorf("progress = %+v", p)
	}
}

func TestHistory_BadRequests(t *testing.T) {
	t.Parallel()

	h := newHandler(t, server.Config{History: history.NewMemoryStore(0)})
	tests := []struct {
		path string
		want int
	}{
		{"/v1/history?limit=0", http.StatusBadRequest},
		{"/v1/history?limit=many", http.StatusBadRequest},
		{"/v1/history?after=yesterday", http.StatusBadRequest},
		{"/v1/history?before=2026-01-01", http.StatusBadRequest},
		{"/v1/history?after=2026-01-01T00:00:00Z", http.StatusOK},
		{"/v1/history/not-a-uuid", http.StatusBadRequest},
		{"/v1/history/" + uuid.NewString(), http.StatusNotFound},
		{"/v1/history/" + uuid.NewString() + "/similar", http.StatusNotFound},
		{"/v1/history/" + uuid.NewString() + "/similar?k=1000", http.StatusBadRequest},
		{"/v1/progress", http.StatusBadRequest},
		{"/v1/progress?text=unknown", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if rec := get(t, h, tt.path); rec.Code != tt.want {
				t.Errorf("GET %s = %d, want %d: %s", tt.path, rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

// failingStore fails to save and to list.
type failingStore struct{ history.MemoryStore }

var errDown = errors.New("database down")

func (*failingStore) Save(context.Context, history.Record) error { return errDown }
func (*failingStore) List(context.Context, history.ListOptions) ([]history.Record, error) {
	return nil, errDown
}

func TestHistory_StoreFailures(t *testing.T) {
	t.Parallel()

	h := newHandler(t, server.Config{History: &failingStore{}})

	// A failed save does not fail the analysis.
	rec := postJSON(t, h, "/v1/analyze", analysis.Request{Recitation: recitation(), Reference: reference(1, 2, 3)})
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze: status %d: %s", rec.Code, rec.Body.String())
	}

	list := get(t, h, "/v1/history")
	if list.Code != http.StatusInternalServerError {
		t.Errorf("history with a failing store = %d, want 500", list.Code)
	}
	if body := decodeBody[server.ErrorResponse](t, list); body.Error == errDown.Error() {
		t.Error("store errors must not leak to clients")
	}
}
