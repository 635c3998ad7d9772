// Package mock provides a test double for the asr.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Transcript: types.Transcript{Text: "بسم الله"}}
//	tr, _ := p.Transcribe(ctx, recording, asr.Options{})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/tartil/pkg/provider/asr"
	"github.com/MrWong99/tartil/pkg/types"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Audio is the recording passed to Transcribe.
	Audio types.Audio
	// Opts are the options passed to Transcribe.
	Opts asr.Options
}

// Provider is a mock implementation of asr.Provider.
type Provider struct {
	mu sync.Mutex

	// Transcript is returned by every successful Transcribe call.
	Transcript types.Transcript

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns Transcript, TranscribeErr. It
// honours context cancellation like a real backend.
func (p *Provider) Transcribe(ctx context.Context, a types.Audio, opts asr.Options) (types.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Audio: a, Opts: opts})
	if err := ctx.Err(); err != nil {
		return types.Transcript{}, err
	}
	if p.TranscribeErr != nil {
		return types.Transcript{}, p.TranscribeErr
	}
	return p.Transcript, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements asr.Provider at compile time.
var _ asr.Provider = (*Provider)(nil)
