package remote_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/tartil/pkg/provider/features"
	"github.com/MrWong99/tartil/pkg/provider/features/remote"
	"github.com/MrWong99/tartil/pkg/types"
)

const fullResponse = `{
  "frames": [[1, 2], [3, 4], [5, 6]],
  "frame_times": [0, 0.01, 0.02],
  "prosody": {"average_pitch": 180, "speech_rate": 3.5},
  "signals": {
    "segments": [{"position": 3, "start": 0.5, "end": 1.25}],
    "count_duration": 0.25,
    "echo": {"9": true},
    "weights": {"14": "heavy"},
    "clarity": {"0": 0.8},
    "pitch": [180, 181]
  }
}`

// captured is what the server saw of one request.
type captured struct {
	auth   string
	values map[string][]string
}

// newServer serves body on POST /v1/extract and sends each request's form
// values and auth header on the returned channel.
func newServer(t *testing.T, status int, body string) (*httptest.Server, <-chan captured) {
	t.Helper()
	reqs := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/extract" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		select {
		case reqs <- captured{auth: r.Header.Get("Authorization"), values: r.MultipartForm.Value}:
		default:
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, reqs
}

func recording() types.Audio {
	return types.Audio{PCM: make([]byte, 3200), SampleRate: 16000, Channels: 1}
}

func TestNew_EmptyBaseURL(t *testing.T) {
	t.Parallel()
	if _, err := remote.New(""); err == nil {
		t.Fatal("expected error for empty baseURL")
	}
}

func TestExtract_FullResponse(t *testing.T) {
	t.Parallel()

	srv, reqs := newServer(t, http.StatusOK, fullResponse)
	e, err := remote.New(srv.URL, remote.WithAPIKey("k"), remote.WithFeatureSet("mfcc13"))
	if err != nil {
		t.Fatal(err)
	}

	af, err := e.Extract(context.Background(), recording(), features.Options{ReferenceText: "بِسْمِ"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	r := <-reqs
	if got := r.auth; got != "Bearer k" {
		t.Errorf("Authorization = %q", got)
	}
	if got := r.values["reference_text"]; len(got) != 1 || got[0] != "بِسْمِ" {
		t.Errorf("reference_text = %v", got)
	}
	if got := r.values["feature_set"]; len(got) != 1 || got[0] != "mfcc13" {
		t.Errorf("feature_set = %v", got)
	}

	if af.Features.Len() != 3 || af.Features.Timestamps[2] != 20*time.Millisecond {
		t.Errorf("features = %+v", af.Features)
	}
	if af.Prosody.AveragePitch == nil || *af.Prosody.AveragePitch != 180 || af.Prosody.Duration != nil {
		t.Errorf("prosody = %+v", af.Prosody)
	}
	sig := af.Signals
	if sig == nil {
		t.Fatal("Signals = nil")
	}
	if c, ok := sig.CountsAt(3); !ok || c != 3 {
		t.Errorf("CountsAt(3) = %v, %v, want 3 counts", c, ok)
	}
	if !sig.Echo[9] || sig.Weights[14] != types.WeightHeavy || sig.Clarity[0] != 0.8 || len(sig.Pitch) != 2 {
		t.Errorf("signals = %+v", sig)
	}
}

func TestExtract_WithoutSignals(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t, http.StatusOK, `{"frames": [[0]], "prosody": {}}`)
	e, _ := remote.New(srv.URL + "/")
	af, err := e.Extract(context.Background(), recording(), features.Options{})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if af.Signals != nil {
		t.Errorf("Signals = %+v, want nil", af.Signals)
	}
	if len(af.Prosody.Features()) != 0 {
		t.Errorf("prosody = %+v, want empty", af.Prosody)
	}
}

func TestExtract_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"http error", http.StatusServiceUnavailable, "overloaded", "HTTP 503: overloaded"},
		{"malformed json", http.StatusOK, "{", "parse JSON"},
		{"frame times mismatch", http.StatusOK, `{"frames": [[0],[1]], "frame_times": [0]}`, "1 frame times for 2 frames"},
		{"unknown weight", http.StatusOK, `{"signals": {"weights": {"2": "medium"}}}`, `unknown weight "medium"`},
		{"clarity range", http.StatusOK, `{"signals": {"clarity": {"2": 1.5}}}`, "outside [0,1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv, _ := newServer(t, tt.status, tt.body)
			e, _ := remote.New(srv.URL)
			_, err := e.Extract(context.Background(), recording(), features.Options{})
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("got %v, want error containing %q", err, tt.wantMsg)
			}
		})
	}
}
