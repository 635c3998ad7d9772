package resilience_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/tartil/internal/resilience"
	"github.com/MrWong99/tartil/pkg/provider/asr"
	asrmock "github.com/MrWong99/tartil/pkg/provider/asr/mock"
	"github.com/MrWong99/tartil/pkg/provider/features"
	featuresmock "github.com/MrWong99/tartil/pkg/provider/features/mock"
	"github.com/MrWong99/tartil/pkg/types"
)

var errBackend = errors.New("backend down")

func recording() types.Audio {
	return types.Audio{PCM: make([]byte, 320), SampleRate: 16000, Channels: 1}
}

func TestASRFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		primaryErr    error
		wantText      string
		wantErr       error
		wantSecondary int
	}{
		{name: "primary succeeds", wantText: "primary"},
		{name: "primary fails", primaryErr: errBackend, wantText: "secondary", wantSecondary: 1},
		{name: "input error is not retried", primaryErr: asr.ErrEmptyAudio, wantErr: types.ErrInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			primary := &asrmock.Provider{
				Transcript:    types.Transcript{Text: "primary"},
				TranscribeErr: tt.primaryErr,
			}
			secondary := &asrmock.Provider{Transcript: types.Transcript{Text: "secondary"}}

			fb := resilience.NewASRFallback(primary, "whisper", resilience.FallbackConfig{})
			fb.AddFallback("openai", secondary)

			tr, err := fb.Transcribe(context.Background(), recording(), asr.Options{Language: "ar"})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Transcribe: %v", err)
			}
			if tr.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", tr.Text, tt.wantText)
			}
			if got := secondary.CallCount(); got != tt.wantSecondary {
				t.Errorf("secondary calls = %d, want %d", got, tt.wantSecondary)
			}
			if primary.CallCount() != 1 {
				t.Errorf("primary calls = %d, want 1", primary.CallCount())
			}
			if got := primary.TranscribeCalls[0].Opts.Language; got != "ar" {
				t.Errorf("primary language = %q, want ar", got)
			}
		})
	}
}

func TestASRFallback_AllFail(t *testing.T) {
	t.Parallel()

	fb := resilience.NewASRFallback(&asrmock.Provider{TranscribeErr: errBackend}, "whisper", resilience.FallbackConfig{})
	_, err := fb.Transcribe(context.Background(), recording(), asr.Options{})
	if !errors.Is(err, resilience.ErrAllFailed) || !errors.Is(err, errBackend) {
		t.Fatalf("err = %v, want ErrAllFailed wrapping errBackend", err)
	}
	if fb.Group().Name() != "asr" {
		t.Errorf("group name = %q, want asr", fb.Group().Name())
	}
}

func TestFeaturesFallback(t *testing.T) {
	t.Parallel()

	want := types.AcousticFeatures{Features: types.FeatureSequence{Vectors: [][]float64{{1}}}}
	primary := &featuresmock.Extractor{ExtractErr: errBackend}
	secondary := &featuresmock.Extractor{Features: want}

	fb := resilience.NewFeaturesFallback(primary, "remote", resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{MaxFailures: 1},
	})
	fb.AddFallback("backup", secondary)

	for i := 0; i < 3; i++ {
		af, err := fb.Extract(context.Background(), recording(), features.Options{ReferenceText: "بِسْمِ"})
		if err != nil {
			t.Fatalf("Extract #%d: %v", i, err)
		}
		if af.Features.Len() != 1 {
			t.Fatalf("Extract #%d: features = %+v", i, af.Features)
		}
	}
	// The primary's breaker opened after its first failure.
	if got := primary.CallCount(); got != 1 {
		t.Errorf("primary calls = %d, want 1", got)
	}
	if got := secondary.CallCount(); got != 3 {
		t.Errorf("secondary calls = %d, want 3", got)
	}
	if got := fb.Group().Breakers()[0].State(); got != resilience.StateOpen {
		t.Errorf("primary breaker = %v, want open", got)
	}
}
