package resilience

import (
	"context"

	"github.com/MrWong99/tartil/pkg/provider/asr"
	"github.com/MrWong99/tartil/pkg/types"
)

// Compile-time interface assertion.
var _ asr.Provider = (*ASRFallback)(nil)

// ASRFallback implements [asr.Provider] by trying a primary recogniser and
// falling back to alternates when it fails.
type ASRFallback struct {
	group *FallbackGroup[asr.Provider]
}

// NewASRFallback creates an [ASRFallback] with the given primary provider.
func NewASRFallback(primary asr.Provider, primaryName string, cfg FallbackConfig) *ASRFallback {
	return &ASRFallback{
		group: NewFallbackGroup("asr", primary, primaryName, cfg),
	}
}

// AddFallback registers an additional ASR provider as a fallback.
func (f *ASRFallback) AddFallback(name string, p asr.Provider) {
	f.group.AddFallback(name, p)
}

// Group exposes the underlying group for health checks and metrics.
func (f *ASRFallback) Group() *FallbackGroup[asr.Provider] { return f.group }

// Transcribe tries each provider in order until one returns a transcript.
func (f *ASRFallback) Transcribe(ctx context.Context, a types.Audio, opts asr.Options) (types.Transcript, error) {
	return Call(ctx, f.group, func(ctx context.Context, p asr.Provider) (types.Transcript, error) {
		return p.Transcribe(ctx, a, opts)
	})
}
