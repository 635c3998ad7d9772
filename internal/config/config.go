// Package config provides the configuration schema, loader, and collaborator
// registry for the tartil recitation analysis server.
package config

import "time"

// LogLevel controls log verbosity for the tartil server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for tartil.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Tajweed    TajweedConfig    `yaml:"tajweed"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Resilience ResilienceConfig `yaml:"resilience"`
	History    HistoryConfig    `yaml:"history"`
}

// ServerConfig holds network and logging settings for the tartil server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// TraceSampleRatio is the share of new traces that are sampled, in
	// [0, 1]. Traces continued from a sampled caller are always kept.
	// Zero samples every trace.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// AnalysisConfig bounds the work done per analysis. Zero values select the
// analyzer's defaults.
type AnalysisConfig struct {
	// MaxSequenceLength rejects feature sequences with more frames.
	MaxSequenceLength int `yaml:"max_sequence_length"`

	// MaxReferences is the largest best-of-N reference set accepted.
	MaxReferences int `yaml:"max_references"`

	// MaxConcurrency bounds the references compared at once.
	MaxConcurrency int `yaml:"max_concurrency"`

	// Timeout bounds the local part of one analysis (e.g. "30s").
	Timeout time.Duration `yaml:"timeout"`

	// Language is the ISO-639-1 hint passed to speech recognition.
	Language string `yaml:"language"`

	// FoldDiacritics compares transcript words with the reference after
	// removing diacritics.
	FoldDiacritics bool `yaml:"fold_diacritics"`
}

// TajweedConfig selects the rule catalog and the categories checked.
type TajweedConfig struct {
	// Enabled turns rule checking on. Defaults to true when omitted.
	Enabled *bool `yaml:"enabled"`

	// CatalogPath loads the rule catalog from a YAML file instead of the
	// built-in one.
	CatalogPath string `yaml:"catalog_path"`

	// Categories restricts checking to the named categories. Empty checks
	// all of them.
	Categories []string `yaml:"categories"`

	// CountDuration is the default length of one rhythmic count, used when
	// the audio signals do not carry one.
	CountDuration time.Duration `yaml:"count_duration"`
}

// IsEnabled reports whether rule checking is on.
func (t TajweedConfig) IsEnabled() bool { return t.Enabled == nil || *t.Enabled }

// ProvidersConfig declares the external collaborators. Each entry selects a
// named provider registered in the [Registry]; fallbacks are tried in order
// when the primary fails.
type ProvidersConfig struct {
	ASR               ProviderEntry   `yaml:"asr"`
	ASRFallbacks      []ProviderEntry `yaml:"asr_fallbacks"`
	Features          ProviderEntry   `yaml:"features"`
	FeaturesFallbacks []ProviderEntry `yaml:"features_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "whisper", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "whisper-1").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// ResilienceConfig tunes the circuit breaker guarding every collaborator
// backend. Zero values select the breaker's defaults.
type ResilienceConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// History backends accepted by [HistoryConfig.Backend].
const (
	HistoryNone     = ""
	HistoryMemory   = "memory"
	HistoryPostgres = "postgres"
)

// DefaultHistoryDimensions is the centroid length used when
// [HistoryConfig.Dimensions] is zero. It matches 13-coefficient MFCCs.
const DefaultHistoryDimensions = 13

// HistoryConfig selects where finished analyses are stored. With no backend
// nothing is stored and the history endpoints are not served.
type HistoryConfig struct {
	// Backend is "", "memory" or "postgres".
	Backend string `yaml:"backend"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`

	// Dimensions is the length of the stored feature centroids.
	Dimensions int `yaml:"dimensions"`

	// MaxRecords bounds the memory backend.
	MaxRecords int `yaml:"max_records"`
}

// CentroidDimensions returns Dimensions or its default.
func (h HistoryConfig) CentroidDimensions() int {
	if h.Dimensions > 0 {
		return h.Dimensions
	}
	return DefaultHistoryDimensions
}
