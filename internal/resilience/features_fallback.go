package resilience

import (
	"context"

	"github.com/MrWong99/tartil/pkg/provider/features"
	"github.com/MrWong99/tartil/pkg/types"
)

// Compile-time interface assertion.
var _ features.Extractor = (*FeaturesFallback)(nil)

// FeaturesFallback implements [features.Extractor] by trying a primary
// extraction service and falling back to alternates when it fails.
type FeaturesFallback struct {
	group *FallbackGroup[features.Extractor]
}

// NewFeaturesFallback creates a [FeaturesFallback] with the given primary
// extractor.
func NewFeaturesFallback(primary features.Extractor, primaryName string, cfg FallbackConfig) *FeaturesFallback {
	return &FeaturesFallback{
		group: NewFallbackGroup("features", primary, primaryName, cfg),
	}
}

// AddFallback registers an additional extractor as a fallback.
func (f *FeaturesFallback) AddFallback(name string, e features.Extractor) {
	f.group.AddFallback(name, e)
}

// Group exposes the underlying group for health checks and metrics.
func (f *FeaturesFallback) Group() *FallbackGroup[features.Extractor] { return f.group }

// Extract tries each extractor in order until one succeeds.
func (f *FeaturesFallback) Extract(ctx context.Context, a types.Audio, opts features.Options) (types.AcousticFeatures, error) {
	return Call(ctx, f.group, func(ctx context.Context, e features.Extractor) (types.AcousticFeatures, error) {
		return e.Extract(ctx, a, opts)
	})
}
