package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/tartil/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr []string
	}{
		{
			name:    "invalid log level",
			yaml:    "server:\n  log_level: verbose\n",
			wantErr: []string{"log_level"},
		},
		{
			name:    "tls without key",
			yaml:    "server:\n  tls:\n    cert_file: cert.pem\n",
			wantErr: []string{"cert_file and key_file"},
		},
		{
			name:    "sample ratio above one",
			yaml:    "server:\n  trace_sample_ratio: 1.5\n",
			wantErr: []string{"trace_sample_ratio"},
		},
		{
			name:    "negative analysis limits",
			yaml:    "analysis:\n  max_references: -1\n  max_concurrency: -2\n  timeout: -5s\n",
			wantErr: []string{"max_references", "max_concurrency", "analysis.timeout"},
		},
		{
			name:    "unknown category",
			yaml:    "tajweed:\n  categories: [elongation, tarqiq]\n",
			wantErr: []string{"tajweed.categories[1]"},
		},
		{
			name:    "duplicate category",
			yaml:    "tajweed:\n  categories: [echoing, echoing]\n",
			wantErr: []string{"duplicate"},
		},
		{
			name:    "negative count duration",
			yaml:    "tajweed:\n  count_duration: -1s\n",
			wantErr: []string{"count_duration"},
		},
		{
			name:    "postgres history without dsn",
			yaml:    "history:\n  backend: postgres\n",
			wantErr: []string{"postgres_dsn"},
		},
		{
			name:    "unknown history backend",
			yaml:    "history:\n  backend: redis\n  dimensions: -1\n",
			wantErr: []string{"history.backend", "dimensions"},
		},
		{
			name:    "whisper without base_url",
			yaml:    "providers:\n  asr:\n    name: whisper\n",
			wantErr: []string{"providers.asr", "requires base_url"},
		},
		{
			name:    "remote features without base_url",
			yaml:    "providers:\n  features:\n    name: remote\n",
			wantErr: []string{"providers.features", "requires base_url"},
		},
		{
			name:    "fallback without name",
			yaml:    "providers:\n  asr:\n    name: openai\n  asr_fallbacks:\n    - model: whisper-1\n",
			wantErr: []string{"providers.asr_fallbacks[0].name is required"},
		},
		{
			name:    "fallbacks without primary",
			yaml:    "providers:\n  features_fallbacks:\n    - name: remote\n      base_url: http://x\n",
			wantErr: []string{"features_fallbacks requires providers.features"},
		},
		{
			name:    "negative resilience",
			yaml:    "resilience:\n  max_failures: -1\n",
			wantErr: []string{"resilience"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error should mention %q, got: %v", want, err)
				}
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
tajweed:
  count_duration: -1s
resilience:
  half_open_max: -3
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"log_level", "count_duration", "resilience"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidate_UnknownProviderNameIsWarningOnly(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  asr:
    name: custom-asr
    base_url: http://localhost:1234
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unknown provider names should only warn, got: %v", err)
	}
}

func TestValidate_DisabledTajweedIgnoresCategories(t *testing.T) {
	t.Parallel()
	yaml := `
tajweed:
  enabled: false
  categories: [elongation]
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Tajweed.IsEnabled() {
		t.Error("tajweed should be disabled")
	}
	eng, err := cfg.Tajweed.Engine()
	if err != nil || eng != nil {
		t.Errorf("Engine() = %v, %v; want nil, nil", eng, err)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error(`"trace" should be invalid`)
	}
}
