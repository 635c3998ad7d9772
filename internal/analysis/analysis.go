// Package analysis orchestrates one recitation analysis.
//
// An [Analyzer] runs the four independent components (DTW sequence
// alignment, the Tajweed rule engine, the prosody comparator and the word
// aligner with its phoneme scorer) concurrently and hands their results to
// score fusion. [Analyzer.AnalyzeBestOf] scores one recitation against
// several references and keeps the best match; [Analyzer.AnalyzeAudio]
// first obtains the transcript and acoustic features from the external
// collaborators, degrading the report instead of failing when one of them
// is unavailable.
//
// The Tajweed engine can be swapped at runtime with [Analyzer.SetEngine];
// every analysis uses the engine that was current when it started.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/tartil/internal/acoustic"
	"github.com/MrWong99/tartil/internal/observe"
	"github.com/MrWong99/tartil/internal/phoneme"
	"github.com/MrWong99/tartil/internal/prosody"
	"github.com/MrWong99/tartil/internal/scoring"
	"github.com/MrWong99/tartil/internal/tajweed"
	"github.com/MrWong99/tartil/internal/transcript"
	"github.com/MrWong99/tartil/pkg/provider/asr"
	"github.com/MrWong99/tartil/pkg/provider/features"
	"github.com/MrWong99/tartil/pkg/types"
)

const component = "analysis"

// Defaults applied by [New].
const (
	DefaultTimeout        = 30 * time.Second
	DefaultMaxConcurrency = 4
	DefaultMaxReferences  = 16
	DefaultLanguage       = "ar"
)

// Reference is one canonical rendition of the verse being recited.
type Reference struct {
	// Text is the fully vowelled reference text. Rule positions index its
	// runes.
	Text string `json:"text"`

	Features types.FeatureSequence `json:"features"`
	Prosody  types.ProsodySummary  `json:"prosody"`
}

// Recitation is what is known about the user's recording.
type Recitation struct {
	Transcript types.Transcript      `json:"transcript"`
	Features   types.FeatureSequence `json:"features"`
	Prosody    types.ProsodySummary  `json:"prosody"`
	Signals    *types.AudioSignals   `json:"signals,omitempty"`

	// Degraded lists the collaborators that could not contribute. Their
	// score terms are left out of the overall score.
	Degraded []scoring.Degradation `json:"degraded,omitempty"`
}

// Request pairs a recitation with the reference it is scored against.
type Request struct {
	Recitation Recitation `json:"recitation"`
	Reference  Reference  `json:"reference"`
}

// Result is one finished analysis.
type Result struct {
	ID     uuid.UUID       `json:"id"`
	Report *scoring.Report `json:"report"`
}

// Option is a functional option for configuring an [Analyzer].
type Option func(*Analyzer)

// WithMaxSequenceLength bounds the number of feature frames per sequence.
// Zero disables the bound.
func WithMaxSequenceLength(n int) Option {
	return func(a *Analyzer) { a.maxSequenceLength = n }
}

// WithFolding makes the word aligner compare words without diacritics.
func WithFolding(enabled bool) Option {
	return func(a *Analyzer) { a.fold = enabled }
}

// WithTimeout bounds the local part of every analysis. Zero disables the
// bound. Defaults to [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(a *Analyzer) { a.timeout = d }
}

// WithMaxConcurrency bounds the references compared at once by
// [Analyzer.AnalyzeBestOf]. Defaults to [DefaultMaxConcurrency].
func WithMaxConcurrency(n int) Option {
	return func(a *Analyzer) { a.maxConcurrency = n }
}

// WithMaxReferences bounds the references accepted by
// [Analyzer.AnalyzeBestOf]. Defaults to [DefaultMaxReferences].
func WithMaxReferences(n int) Option {
	return func(a *Analyzer) { a.maxReferences = n }
}

// WithLanguage sets the language hint passed to the ASR collaborator.
// Defaults to [DefaultLanguage].
func WithLanguage(lang string) Option {
	return func(a *Analyzer) { a.language = lang }
}

// WithASR sets the speech recognition collaborator used by
// [Analyzer.AnalyzeAudio].
func WithASR(p asr.Provider) Option {
	return func(a *Analyzer) { a.asr = p }
}

// WithFeatureExtractor sets the feature-extraction collaborator used by
// [Analyzer.AnalyzeAudio] and [Analyzer.PrepareReference].
func WithFeatureExtractor(e features.Extractor) Option {
	return func(a *Analyzer) { a.features = e }
}

// WithMetrics records instrumentation on m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// Analyzer runs recitation analyses. It is safe for concurrent use.
type Analyzer struct {
	engine atomic.Pointer[tajweed.Engine]

	dtw   *acoustic.Aligner
	words *transcript.Aligner

	asr      asr.Provider
	features features.Extractor
	metrics  *observe.Metrics

	maxSequenceLength int
	fold              bool
	timeout           time.Duration
	maxConcurrency    int
	maxReferences     int
	language          string
}

// New returns an [Analyzer] checking Tajweed with engine.
func New(engine *tajweed.Engine, opts ...Option) *Analyzer {
	a := &Analyzer{
		timeout:        DefaultTimeout,
		maxConcurrency: DefaultMaxConcurrency,
		maxReferences:  DefaultMaxReferences,
		language:       DefaultLanguage,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.maxConcurrency <= 0 {
		a.maxConcurrency = DefaultMaxConcurrency
	}
	a.dtw = acoustic.New(acoustic.WithMaxLength(a.maxSequenceLength))
	a.words = transcript.New(transcript.WithFolding(a.fold))
	a.engine.Store(engine)
	return a
}

// Engine returns the Tajweed engine new analyses use.
func (a *Analyzer) Engine() *tajweed.Engine { return a.engine.Load() }

// SetEngine replaces the Tajweed engine. Analyses already running keep the
// engine they started with.
func (a *Analyzer) SetEngine(e *tajweed.Engine) { a.engine.Store(e) }

// Analyze scores req.Recitation against req.Reference.
//
// Malformed input (an empty reference text, numbers outside their range)
// yields an error matching [types.ErrInput]. Feature sequences that cannot
// be aligned (inconsistent dimensions, non-finite values, a sequence above
// the configured bound) only leave the acoustic term out of the report.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	return a.analyze(ctx, req)
}

func (a *Analyzer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

// leafResults collects the outputs of the concurrently running components.
type leafResults struct {
	distance float64
	acoustic *scoring.Degradation // set when the features could not be aligned
	findings []tajweed.Violation
	prosody  map[string]float64
	words    []transcript.WordAlignment
	phonemes map[string]float64
}

func (a *Analyzer) analyze(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "analysis.Analyze")
	defer span.End()

	a.metrics.ActiveAnalyses.Add(ctx, 1)
	defer a.metrics.ActiveAnalyses.Add(ctx, -1)

	res, err := a.run(ctx, req)
	a.metrics.AnalysisDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		observe.Fail(span, err)
		a.metrics.RecordReport(ctx, observe.StatusError)
		return nil, err
	}

	status := observe.StatusOK
	if res.Report.IsDegraded() {
		status = observe.StatusDegraded
	}
	a.metrics.RecordReport(ctx, status)
	for _, v := range res.Report.Violations() {
		a.metrics.RecordViolation(ctx, v.Category.String(), string(v.Severity))
	}
	span.SetAttributes(
		observe.AttrAnalysisID.String(res.ID.String()),
		observe.AttrOverall.Float64(res.Report.Overall()),
		observe.AttrViolations.Int(len(res.Report.Violations())),
		observe.AttrDegraded.Bool(res.Report.IsDegraded()),
	)
	observe.Logger(ctx).Debug("analysis finished",
		"id", res.ID,
		"overall", res.Report.Overall(),
		"confidence", res.Report.Confidence(),
		"violations", len(res.Report.Violations()),
		"degraded", res.Report.IsDegraded(),
		"duration", time.Since(start),
	)
	return res, nil
}

func (a *Analyzer) run(ctx context.Context, req Request) (*Result, error) {
	ref, rec := req.Reference, req.Recitation
	if ref.Text == "" {
		return nil, types.NewInputError(component, "reference text is empty")
	}
	engine := a.engine.Load()

	var out leafResults
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		start := time.Now()
		d, err := a.dtw.Distance(egCtx, rec.Features, ref.Features)
		a.metrics.AlignmentDuration.Record(egCtx, time.Since(start).Seconds())
		switch {
		case errors.Is(err, types.ErrInput):
			out.acoustic = &scoring.Degradation{
				Terms:  []scoring.Term{scoring.TermAcoustic},
				Reason: "unusable feature vectors",
			}
			observe.Logger(egCtx).Warn("acoustic term skipped", "err", err)
			return nil
		case err != nil:
			return fmt.Errorf("analysis: align features: %w", err)
		}
		out.distance = d
		return nil
	})

	eg.Go(func() error {
		if engine != nil {
			out.findings = engine.Check(ref.Text, rec.Signals)
		}
		return egCtx.Err()
	})

	eg.Go(func() error {
		out.prosody = prosody.Compare(rec.Prosody, ref.Prosody)
		return nil
	})

	eg.Go(func() error {
		words, err := a.words.Align(rec.Transcript.Text, ref.Text, rec.Transcript.Words)
		if err != nil {
			return fmt.Errorf("analysis: align words: %w", err)
		}
		out.words = words
		out.phonemes = phoneme.Score(rec.Transcript.Text, ref.Text)
		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	conf := rec.Transcript.Confidence
	if conf == 0 {
		conf = scoring.DefaultConfidence
	}
	degraded := rec.Degraded
	if out.acoustic != nil && !drops(degraded, scoring.TermAcoustic) {
		degraded = append(slices.Clone(degraded), *out.acoustic)
	}
	report, err := scoring.Fuse(scoring.Inputs{
		DTWDistance:         out.distance,
		PhonemeScores:       out.phonemes,
		ProsodySimilarities: out.prosody,
		Findings:            out.findings,
		Words:               out.words,
		Confidence:          conf,
		Degraded:            degraded,
	})
	if err != nil {
		return nil, fmt.Errorf("analysis: fuse scores: %w", err)
	}
	return &Result{ID: uuid.New(), Report: report}, nil
}

// drops reports whether any of degraded already leaves term out.
func drops(degraded []scoring.Degradation, term scoring.Term) bool {
	for _, d := range degraded {
		if slices.Contains(d.Terms, term) {
			return true
		}
	}
	return false
}

// Best is the outcome of [Analyzer.AnalyzeBestOf].
type Best struct {
	// Index is the position of the winning reference.
	Index int `json:"index"`

	// Scores holds the overall score against every reference, in input
	// order.
	Scores []float64 `json:"scores"`

	Result *Result `json:"result"`
}

// AnalyzeBestOf scores rec against every reference concurrently, bounded by
// the configured concurrency, and returns the highest overall score. Ties
// go to the lowest index. Any failed comparison fails the whole call.
func (a *Analyzer) AnalyzeBestOf(ctx context.Context, rec Recitation, refs []Reference) (*Best, error) {
	if len(refs) == 0 {
		return nil, types.NewInputError(component, "no references given")
	}
	if a.maxReferences > 0 && len(refs) > a.maxReferences {
		return nil, types.NewInputError(component, "%d references exceed limit %d", len(refs), a.maxReferences)
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	ctx, span := observe.StartSpan(ctx, "analysis.AnalyzeBestOf", observe.AttrReferences.Int(len(refs)))
	defer span.End()

	results := make([]*Result, len(refs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(a.maxConcurrency)
	for i, ref := range refs {
		eg.Go(func() error {
			res, err := a.analyze(egCtx, Request{Recitation: rec, Reference: ref})
			if err != nil {
				return fmt.Errorf("analysis: reference %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		observe.Fail(span, err)
		return nil, err
	}

	best := &Best{Scores: make([]float64, len(results))}
	for i, res := range results {
		best.Scores[i] = res.Report.Overall()
		if i == 0 || best.Scores[i] > best.Scores[best.Index] {
			best.Index = i
		}
	}
	best.Result = results[best.Index]
	span.SetAttributes(observe.AttrBestIndex.Int(best.Index))
	return best, nil
}
