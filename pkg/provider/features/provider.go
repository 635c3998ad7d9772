// Package features defines the Extractor interface for acoustic feature
// extraction backends.
//
// An extractor turns a recording into the frame-level feature vectors used
// for sequence alignment, a prosody summary, and optionally the per-letter
// timing, echo, weight and clarity evidence used by the tajweed checks.
// Letter-level evidence is keyed by rune positions in the reference text,
// which is why the text travels with the request.
//
// Implementations must be safe for concurrent use.
package features

import (
	"context"

	"github.com/MrWong99/tartil/pkg/types"
)

// Options carries per-request extraction hints.
type Options struct {
	// ReferenceText is the fully vowelled text the recording recites. When
	// empty, extractors return no letter-level signals.
	ReferenceText string
}

// Extractor is the abstraction over any feature-extraction backend.
type Extractor interface {
	// Extract computes the acoustic features of audio.
	//
	// Returns an error if the backend cannot be reached, rejects the
	// request, or returns a malformed response.
	Extract(ctx context.Context, audio types.Audio, opts Options) (types.AcousticFeatures, error)
}
