package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrWong99/tartil/internal/analysis"
	"github.com/MrWong99/tartil/internal/config"
	"github.com/MrWong99/tartil/internal/health"
	"github.com/MrWong99/tartil/internal/observe"
	"github.com/MrWong99/tartil/internal/resilience"
	"github.com/MrWong99/tartil/internal/tajweed"
	"github.com/MrWong99/tartil/pkg/provider/asr"
	oaasr "github.com/MrWong99/tartil/pkg/provider/asr/openai"
	"github.com/MrWong99/tartil/pkg/provider/asr/whisper"
	"github.com/MrWong99/tartil/pkg/provider/features"
	"github.com/MrWong99/tartil/pkg/provider/features/remote"
)

// ── Provider wiring ───────────────────────────────────────────────────────────

// optionalProviders are registered by files behind build tags.
var optionalProviders []func(*config.Registry)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the implementation packages.
//
// Recognised options: "language" (asr), "organization" (openai),
// "feature_set" (remote) and "timeout" (all, a duration string).
func registerBuiltinProviders(reg *config.Registry) {
	// ── ASR ───────────────────────────────────────────────────────────────────

	reg.RegisterASR("whisper", func(entry config.ProviderEntry) (asr.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		timeout, err := optDuration(entry.Options, "timeout")
		if err != nil {
			return nil, err
		}
		if timeout > 0 {
			opts = append(opts, whisper.WithHTTPClient(&http.Client{Timeout: timeout}))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterASR("openai", func(entry config.ProviderEntry) (asr.Provider, error) {
		var opts []oaasr.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaasr.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oaasr.WithOrganization(org))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, oaasr.WithLanguage(lang))
		}
		timeout, err := optDuration(entry.Options, "timeout")
		if err != nil {
			return nil, err
		}
		if timeout > 0 {
			opts = append(opts, oaasr.WithTimeout(timeout))
		}
		return oaasr.New(entry.APIKey, entry.Model, opts...)
	})

	// ── Features ──────────────────────────────────────────────────────────────

	reg.RegisterFeatures("remote", func(entry config.ProviderEntry) (features.Extractor, error) {
		var opts []remote.Option
		if entry.APIKey != "" {
			opts = append(opts, remote.WithAPIKey(entry.APIKey))
		}
		if set := optString(entry.Options, "feature_set"); set != "" {
			opts = append(opts, remote.WithFeatureSet(set))
		}
		timeout, err := optDuration(entry.Options, "timeout")
		if err != nil {
			return nil, err
		}
		if timeout > 0 {
			opts = append(opts, remote.WithHTTPClient(&http.Client{Timeout: timeout}))
		}
		return remote.New(entry.BaseURL, opts...)
	})

	for _, register := range optionalProviders {
		register(reg)
	}

	for kind, names := range reg.Names() {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// collaborators is the result of [buildCollaborators]. Nil fields mean the
// collaborator is not configured.
type collaborators struct {
	ASR      *resilience.ASRFallback
	Features *resilience.FeaturesFallback
}

// groups returns the configured fallback groups for readiness checks.
func (c collaborators) groups() []health.Group {
	var out []health.Group
	if c.ASR != nil {
		out = append(out, c.ASR.Group())
	}
	if c.Features != nil {
		out = append(out, c.Features.Group())
	}
	return out
}

// buildCollaborators instantiates the configured providers and wraps each
// kind in a fallback group whose breakers report their transitions to m.
func buildCollaborators(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (collaborators, error) {
	fbCfg := resilience.FallbackConfig{CircuitBreaker: resilience.CircuitBreakerConfig{
		MaxFailures:  cfg.Resilience.MaxFailures,
		ResetTimeout: cfg.Resilience.ResetTimeout,
		HalfOpenMax:  cfg.Resilience.HalfOpenMax,
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("circuit breaker state changed", "breaker", name, "from", from, "to", to)
			m.RecordBreakerTransition(context.Background(), name, to.String())
		},
	}}

	var out collaborators
	if entry := cfg.Providers.ASR; entry.Name != "" {
		p, err := reg.CreateASR(entry)
		if err != nil {
			return collaborators{}, fmt.Errorf("create asr provider %q: %w", entry.Name, err)
		}
		out.ASR = resilience.NewASRFallback(p, entry.Name, fbCfg)
		slog.Info("provider created", "kind", "asr", "name", entry.Name)
		for _, fb := range cfg.Providers.ASRFallbacks {
			p, err := reg.CreateASR(fb)
			if err != nil {
				return collaborators{}, fmt.Errorf("create asr fallback %q: %w", fb.Name, err)
			}
			out.ASR.AddFallback(fb.Name, p)
			slog.Info("fallback provider created", "kind", "asr", "name", fb.Name)
		}
	}
	if entry := cfg.Providers.Features; entry.Name != "" {
		e, err := reg.CreateFeatures(entry)
		if err != nil {
			return collaborators{}, fmt.Errorf("create features provider %q: %w", entry.Name, err)
		}
		out.Features = resilience.NewFeaturesFallback(e, entry.Name, fbCfg)
		slog.Info("provider created", "kind", "features", "name", entry.Name)
		for _, fb := range cfg.Providers.FeaturesFallbacks {
			e, err := reg.CreateFeatures(fb)
			if err != nil {
				return collaborators{}, fmt.Errorf("create features fallback %q: %w", fb.Name, err)
			}
			out.Features.AddFallback(fb.Name, e)
			slog.Info("fallback provider created", "kind", "features", "name", fb.Name)
		}
	}
	return out, nil
}

// newAnalyzer builds the analyzer described by cfg around engine and the
// given collaborators.
func newAnalyzer(cfg *config.Config, engine *tajweed.Engine, c collaborators, m *observe.Metrics) *analysis.Analyzer {
	a := cfg.Analysis
	opts := []analysis.Option{
		analysis.WithMetrics(m),
		analysis.WithFolding(a.FoldDiacritics),
		analysis.WithMaxSequenceLength(a.MaxSequenceLength),
	}
	if a.Timeout > 0 {
		opts = append(opts, analysis.WithTimeout(a.Timeout))
	}
	if a.MaxConcurrency > 0 {
		opts = append(opts, analysis.WithMaxConcurrency(a.MaxConcurrency))
	}
	if a.MaxReferences > 0 {
		opts = append(opts, analysis.WithMaxReferences(a.MaxReferences))
	}
	if a.Language != "" {
		opts = append(opts, analysis.WithLanguage(a.Language))
	}
	// A nil *ASRFallback stored in the interface would not read as "not
	// configured", so only set the ones that exist.
	if c.ASR != nil {
		opts = append(opts, analysis.WithASR(c.ASR))
	}
	if c.Features != nil {
		opts = append(opts, analysis.WithFeatureExtractor(c.Features))
	}
	return analysis.New(engine, opts...)
}

// setup loads everything a command needs from cfg.
func setup(cfg *config.Config, m *observe.Metrics) (*analysis.Analyzer, collaborators, error) {
	engine, err := cfg.Tajweed.Engine()
	if err != nil {
		return nil, collaborators{}, err
	}
	if engine == nil {
		slog.Info("tajweed rule checking disabled")
	}
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	c, err := buildCollaborators(cfg, reg, m)
	if err != nil {
		return nil, collaborators{}, err
	}
	return newAnalyzer(cfg, engine, c, m), c, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// optDuration parses a duration string from a provider Options map. A
// missing key yields zero.
func optDuration(opts map[string]any, key string) (time.Duration, error) {
	s := optString(opts, key)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("option %q: %w", key, err)
	}
	if d < 0 {
		return 0, errors.New("option " + key + " must not be negative")
	}
	return d, nil
}
