package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/tartil/internal/observe"
	"github.com/MrWong99/tartil/internal/resilience"
	"github.com/MrWong99/tartil/internal/scoring"
	"github.com/MrWong99/tartil/internal/transcript"
	"github.com/MrWong99/tartil/pkg/provider/asr"
	"github.com/MrWong99/tartil/pkg/provider/features"
	"github.com/MrWong99/tartil/pkg/types"
)

// Collaborator names as they appear in errors, metrics and degradation
// notes.
const (
	CollaboratorASR      = "speech recognition"
	CollaboratorFeatures = "feature extraction"
)

// ErrNotConfigured is the cause recorded when a collaborator is needed but
// none was configured.
var ErrNotConfigured = errors.New("not configured")

// CollaboratorError reports that an external collaborator failed. Analyses
// record it as a degradation instead of failing.
type CollaboratorError struct {
	Collaborator string
	Err          error
}

// Error implements [error].
func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("analysis: %s: %v", e.Collaborator, e.Err)
}

// Unwrap returns the collaborator's error.
func (e *CollaboratorError) Unwrap() error { return e.Err }

// termsOf returns the score terms that depend on collaborator.
func termsOf(collaborator string) []scoring.Term {
	switch collaborator {
	case CollaboratorASR:
		return []scoring.Term{scoring.TermPhoneme}
	case CollaboratorFeatures:
		return []scoring.Term{scoring.TermAcoustic, scoring.TermProsody}
	}
	return nil
}

// Degradation converts e into the note fusion needs to leave out the terms
// the collaborator would have fed.
func (e *CollaboratorError) Degradation() scoring.Degradation {
	reason := "unavailable"
	switch {
	case errors.Is(e.Err, ErrNotConfigured):
		reason = "not configured"
	case errors.Is(e.Err, resilience.ErrAllFailed), errors.Is(e.Err, resilience.ErrCircuitOpen):
		reason = "all backends failed"
	}
	return scoring.Degradation{
		Collaborator: e.Collaborator,
		Terms:        termsOf(e.Collaborator),
		Reason:       reason,
	}
}

// Capture runs the collaborators on audio concurrently and returns the
// recitation they describe. referenceText primes the recogniser and the
// extractor's timing segmentation.
//
// A collaborator that fails (or is not configured) is recorded in the
// returned recitation's Degraded list and in failures; the error result is
// reserved for caller errors such as empty audio or a cancelled context.
func (a *Analyzer) Capture(ctx context.Context, audio types.Audio, referenceText string) (rec Recitation, failures []*CollaboratorError, err error) {
	if len(audio.PCM) == 0 {
		return Recitation{}, nil, asr.ErrEmptyAudio
	}
	ctx, span := observe.StartSpan(ctx, "analysis.Capture")
	defer span.End()

	var (
		tr      types.Transcript
		af      types.AcousticFeatures
		asrErr  error
		featErr error
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		tr, asrErr = a.transcribe(egCtx, audio, referenceText)
		return callerError(asrErr)
	})
	eg.Go(func() error {
		af, featErr = a.extract(egCtx, audio, referenceText)
		return callerError(featErr)
	})
	if err = eg.Wait(); err != nil {
		observe.Fail(span, err)
		return Recitation{}, nil, err
	}

	rec = Recitation{Transcript: tr, Features: af.Features, Prosody: af.Prosody, Signals: af.Signals}
	for _, f := range []struct {
		name string
		err  error
	}{{CollaboratorASR, asrErr}, {CollaboratorFeatures, featErr}} {
		if f.err == nil {
			continue
		}
		ce := &CollaboratorError{Collaborator: f.name, Err: f.err}
		failures = append(failures, ce)
		rec.Degraded = append(rec.Degraded, ce.Degradation())
		span.AddEvent("collaborator failed", trace.WithAttributes(observe.AttrCollaborator.String(f.name)))
		observe.Logger(ctx).Warn("collaborator failed, degrading analysis",
			"collaborator", f.name, "err", f.err)
	}
	if tr.Confidence == 0 && asrErr == nil && len(tr.Words) > 0 {
		rec.Transcript.Confidence = meanWordConfidence(tr.Words)
	}
	return rec, failures, nil
}

// callerError returns err when it must abort the capture.
func callerError(err error) error {
	if err != nil && resilience.IsCallerError(err) {
		return err
	}
	return nil
}

func (a *Analyzer) transcribe(ctx context.Context, audio types.Audio, referenceText string) (types.Transcript, error) {
	if a.asr == nil {
		return types.Transcript{}, ErrNotConfigured
	}
	opts := asr.Options{Language: a.language, Prompt: transcript.Fold(referenceText)}
	var tr types.Transcript
	err := a.observeCall(ctx, CollaboratorASR, func() error {
		var err error
		tr, err = a.asr.Transcribe(ctx, audio, opts)
		return err
	})
	return tr, err
}

func (a *Analyzer) extract(ctx context.Context, audio types.Audio, referenceText string) (types.AcousticFeatures, error) {
	if a.features == nil {
		return types.AcousticFeatures{}, ErrNotConfigured
	}
	var af types.AcousticFeatures
	err := a.observeCall(ctx, CollaboratorFeatures, func() error {
		var err error
		af, err = a.features.Extract(ctx, audio, features.Options{ReferenceText: referenceText})
		return err
	})
	return af, err
}

// observeCall runs fn and records its latency and outcome.
func (a *Analyzer) observeCall(ctx context.Context, collaborator string, fn func() error) error {
	start := time.Now()
	err := fn()
	a.metrics.RecordCollaboratorCall(ctx, collaborator, time.Since(start), err)
	return err
}

// meanWordConfidence averages the reported word confidences, ignoring
// unreported (zero) ones.
func meanWordConfidence(words []types.WordDetail) float64 {
	var sum float64
	var n int
	for _, w := range words {
		if w.Confidence > 0 {
			sum += min(w.Confidence, 1)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// AnalyzeAudio captures audio with the collaborators and scores it against
// ref. A failed collaborator degrades the report; see [Analyzer.Capture].
func (a *Analyzer) AnalyzeAudio(ctx context.Context, audio types.Audio, ref Reference) (*Result, error) {
	rec, _, err := a.Capture(ctx, audio, ref.Text)
	if err != nil {
		return nil, fmt.Errorf("analysis: capture recitation: %w", err)
	}
	return a.Analyze(ctx, Request{Recitation: rec, Reference: ref})
}

// PrepareReference extracts the features of a reference recording. Unlike
// [Analyzer.Capture] a failure is returned: a reference without features
// cannot be compared against.
func (a *Analyzer) PrepareReference(ctx context.Context, audio types.Audio, text string) (Reference, error) {
	if text == "" {
		return Reference{}, types.NewInputError(component, "reference text is empty")
	}
	if len(audio.PCM) == 0 {
		return Reference{}, asr.ErrEmptyAudio
	}
	af, err := a.extract(ctx, audio, text)
	if err != nil {
		return Reference{}, &CollaboratorError{Collaborator: CollaboratorFeatures, Err: err}
	}
	return Reference{Text: text, Features: af.Features, Prosody: af.Prosody}, nil
}
