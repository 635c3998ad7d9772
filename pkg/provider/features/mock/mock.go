// Package mock provides a test double for the features.Extractor interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/tartil/pkg/provider/features"
	"github.com/MrWong99/tartil/pkg/types"
)

// ExtractCall records a single invocation of Extractor.Extract.
type ExtractCall struct {
	Audio types.Audio
	Opts  features.Options
}

// Extractor is a mock implementation of features.Extractor.
type Extractor struct {
	mu sync.Mutex

	// Features is returned by every successful Extract call.
	Features types.AcousticFeatures

	// ExtractErr, if non-nil, is returned as the error from Extract.
	ExtractErr error

	// ExtractCalls records every call to Extract.
	ExtractCalls []ExtractCall
}

// Extract records the call and returns Features, ExtractErr.
func (e *Extractor) Extract(ctx context.Context, a types.Audio, opts features.Options) (types.AcousticFeatures, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ExtractCalls = append(e.ExtractCalls, ExtractCall{Audio: a, Opts: opts})
	if err := ctx.Err(); err != nil {
		return types.AcousticFeatures{}, err
	}
	if e.ExtractErr != nil {
		return types.AcousticFeatures{}, e.ExtractErr
	}
	return e.Features, nil
}

// CallCount returns the number of Extract calls. Thread-safe.
func (e *Extractor) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ExtractCalls)
}

// Ensure Extractor implements features.Extractor at compile time.
var _ features.Extractor = (*Extractor)(nil)
