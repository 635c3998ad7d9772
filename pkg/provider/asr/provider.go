// Package asr defines the Provider interface for speech recognition
// backends.
//
// An ASR provider turns one complete recording into a [types.Transcript]
// with per-word timestamps and confidences when the backend reports them.
// Recitations are analysed after the fact, so the interface is a single
// batch call rather than a streaming session.
//
// Implementations must be safe for concurrent use.
package asr

import (
	"context"
	"fmt"

	"github.com/MrWong99/tartil/pkg/types"
)

// ErrEmptyAudio is returned when Transcribe is called without PCM data. It
// matches [types.ErrInput].
var ErrEmptyAudio = fmt.Errorf("asr: empty audio: %w", types.ErrInput)

// Options carries per-request recognition hints.
type Options struct {
	// Language is the ISO-639-1 code to recognise (e.g. "ar"). Empty lets
	// the provider auto-detect, if supported.
	Language string

	// Prompt primes the recogniser, typically with the expected verse
	// without diacritics.
	Prompt string
}

// Provider is the abstraction over any ASR backend.
type Provider interface {
	// Transcribe recognises the speech in audio. Audio is 16-bit PCM in any
	// format; providers convert it as needed.
	//
	// Returns an error if the backend cannot be reached, rejects the
	// request, or returns a malformed response.
	Transcribe(ctx context.Context, audio types.Audio, opts Options) (types.Transcript, error)
}
