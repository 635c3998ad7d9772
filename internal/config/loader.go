package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/tartil/internal/tajweed"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"asr":      {"whisper", "whisper-native", "openai"},
	"features": {"remote"},
}

// requiresBaseURL lists the providers that cannot run without a base_url.
var requiresBaseURL = map[string]bool{
	"asr/whisper":     true,
	"features/remote": true,
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
// An empty document yields the zero [Config].
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if r := cfg.Server.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("server.trace_sample_ratio %v is outside [0, 1]", r))
	}

	// Analysis
	a := cfg.Analysis
	for _, f := range []struct {
		name  string
		value int
	}{
		{"max_sequence_length", a.MaxSequenceLength},
		{"max_references", a.MaxReferences},
		{"max_concurrency", a.MaxConcurrency},
	} {
		if f.value < 0 {
			errs = append(errs, fmt.Errorf("analysis.%s %d must not be negative", f.name, f.value))
		}
	}
	if a.Timeout < 0 {
		errs = append(errs, fmt.Errorf("analysis.timeout %s must not be negative", a.Timeout))
	}
	if a.MaxReferences > 0 && a.MaxConcurrency > a.MaxReferences {
		slog.Warn("analysis.max_concurrency exceeds analysis.max_references; the extra slots are never used",
			"max_concurrency", a.MaxConcurrency,
			"max_references", a.MaxReferences,
		)
	}

	// Tajweed
	seen := make(map[string]bool, len(cfg.Tajweed.Categories))
	for i, name := range cfg.Tajweed.Categories {
		if _, err := tajweed.ParseCategory(name); err != nil {
			errs = append(errs, fmt.Errorf("tajweed.categories[%d]: %w", i, err))
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("tajweed.categories[%d] %q is a duplicate", i, name))
		}
		seen[name] = true
	}
	if cfg.Tajweed.CountDuration < 0 {
		errs = append(errs, fmt.Errorf("tajweed.count_duration %s must not be negative", cfg.Tajweed.CountDuration))
	}
	if !cfg.Tajweed.IsEnabled() && (cfg.Tajweed.CatalogPath != "" || len(cfg.Tajweed.Categories) > 0) {
		slog.Warn("tajweed is disabled; catalog_path and categories are ignored")
	}

	// Providers
	errs = append(errs, validateEntry("asr", "providers.asr", cfg.Providers.ASR)...)
	for i, e := range cfg.Providers.ASRFallbacks {
		errs = append(errs, validateFallback("asr", fmt.Sprintf("providers.asr_fallbacks[%d]", i), e)...)
	}
	errs = append(errs, validateEntry("features", "providers.features", cfg.Providers.Features)...)
	for i, e := range cfg.Providers.FeaturesFallbacks {
		errs = append(errs, validateFallback("features", fmt.Sprintf("providers.features_fallbacks[%d]", i), e)...)
	}
	if cfg.Providers.ASR.Name == "" && len(cfg.Providers.ASRFallbacks) > 0 {
		errs = append(errs, errors.New("providers.asr_fallbacks requires providers.asr"))
	}
	if cfg.Providers.Features.Name == "" && len(cfg.Providers.FeaturesFallbacks) > 0 {
		errs = append(errs, errors.New("providers.features_fallbacks requires providers.features"))
	}

	// Provider availability warnings
	if cfg.Providers.ASR.Name == "" {
		slog.Warn("no ASR provider configured; audio analyses will be scored without the phoneme term")
	}
	if cfg.Providers.Features.Name == "" {
		slog.Warn("no feature extractor configured; audio analyses will be scored without the acoustic and prosody terms")
	}

	// Resilience
	r := cfg.Resilience
	if r.MaxFailures < 0 || r.HalfOpenMax < 0 || r.ResetTimeout < 0 {
		errs = append(errs, errors.New("resilience: max_failures, reset_timeout and half_open_max must not be negative"))
	}

	// History
	h := cfg.History
	switch h.Backend {
	case HistoryNone, HistoryMemory:
		if h.PostgresDSN != "" {
			slog.Warn("history.postgres_dsn is ignored unless history.backend is postgres")
		}
	case HistoryPostgres:
		if h.PostgresDSN == "" {
			errs = append(errs, errors.New("history.backend postgres requires postgres_dsn"))
		}
	default:
		errs = append(errs, fmt.Errorf("history.backend %q is invalid; valid values: memory, postgres", h.Backend))
	}
	if h.Dimensions < 0 || h.MaxRecords < 0 {
		errs = append(errs, errors.New("history: dimensions and max_records must not be negative"))
	}

	return errors.Join(errs...)
}

// validateEntry checks a primary provider entry, which may be left empty.
func validateEntry(kind, path string, e ProviderEntry) []error {
	if e.Name == "" {
		return nil
	}
	validateProviderName(kind, e.Name)
	if requiresBaseURL[kind+"/"+e.Name] && e.BaseURL == "" {
		return []error{fmt.Errorf("%s: provider %q requires base_url", path, e.Name)}
	}
	return nil
}

// validateFallback checks a fallback entry, which must name a provider.
func validateFallback(kind, path string, e ProviderEntry) []error {
	if e.Name == "" {
		return []error{fmt.Errorf("%s.name is required", path)}
	}
	return validateEntry(kind, path, e)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// Engine builds the rule engine the section describes. It returns nil, nil
// when rule checking is disabled.
func (t TajweedConfig) Engine() (*tajweed.Engine, error) {
	if !t.IsEnabled() {
		return nil, nil
	}
	catalog := tajweed.DefaultCatalog()
	if t.CatalogPath != "" {
		c, err := tajweed.LoadCatalogFile(t.CatalogPath)
		if err != nil {
			return nil, fmt.Errorf("config: tajweed catalog: %w", err)
		}
		catalog = c
	}
	var opts []tajweed.Option
	if len(t.Categories) > 0 {
		cats := make([]tajweed.Category, 0, len(t.Categories))
		for _, name := range t.Categories {
			c, err := tajweed.ParseCategory(name)
			if err != nil {
				return nil, fmt.Errorf("config: %w", err)
			}
			cats = append(cats, c)
		}
		opts = append(opts, tajweed.WithCategories(cats...))
	}
	if t.CountDuration > 0 {
		opts = append(opts, tajweed.WithCountDuration(t.CountDuration))
	}
	return tajweed.NewEngine(catalog, opts...), nil
}
