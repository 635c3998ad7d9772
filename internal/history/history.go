// Package history stores finished analyses so a reciter's progress on a
// passage can be followed over time.
//
// Every record keeps the full report together with a feature centroid: the
// per-dimension mean of the recitation's feature vectors. Centroids let a
// store find earlier recitations that sounded alike, independent of the text
// recited.
//
// Every implementation must be safe for concurrent use.
package history

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/tartil/internal/scoring"
	"github.com/MrWong99/tartil/pkg/types"
)

// ErrNotFound is returned when no record has the requested ID.
var ErrNotFound = errors.New("history: record not found")

// DefaultListLimit caps [Store.List] when [ListOptions.Limit] is zero.
const DefaultListLimit = 50

// Record is one stored analysis.
type Record struct {
	ID uuid.UUID `json:"id"`

	// ReferenceText is the passage the recitation was scored against.
	ReferenceText string `json:"referenceText"`

	Overall    float64 `json:"overall"`
	Confidence float64 `json:"confidence"`

	Report *scoring.Report `json:"report"`

	// Centroid is the mean recitation feature vector, padded with zeros or
	// truncated to the store's dimension. Nil when no features were analysed.
	Centroid []float32 `json:"centroid,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// ListOptions filters [Store.List]. All non-zero fields are applied as AND
// conditions.
type ListOptions struct {
	// ReferenceText restricts the listing to one passage.
	ReferenceText string

	// After and Before bound CreatedAt (both exclusive).
	After  time.Time
	Before time.Time

	// Limit caps the number of records returned. Zero selects
	// [DefaultListLimit].
	Limit int
}

// Match is a record returned by a similarity search.
type Match struct {
	Record

	// Distance is the cosine distance between the centroids, 0 for
	// identical directions.
	Distance float64 `json:"distance"`
}

// Store persists analysis records.
type Store interface {
	// Save stores r. Saving an ID twice replaces the earlier record.
	Save(ctx context.Context, r Record) error

	// Get returns the record with the given ID or [ErrNotFound].
	Get(ctx context.Context, id uuid.UUID) (Record, error)

	// List returns matching records, newest first.
	List(ctx context.Context, opts ListOptions) ([]Record, error)

	// Similar returns up to topK other records whose centroids are closest
	// to the centroid of record id, nearest first. It returns [ErrNotFound]
	// when id is unknown and an empty slice when the record has no centroid.
	Similar(ctx context.Context, id uuid.UUID, topK int) ([]Match, error)

	// Progress summarises every record of one passage.
	Progress(ctx context.Context, referenceText string) (Progress, error)
}

// NewRecord builds a record for a finished analysis.
func NewRecord(id uuid.UUID, referenceText string, report *scoring.Report, features types.FeatureSequence, dims int) Record {
	r := Record{
		ID:            id,
		ReferenceText: referenceText,
		Report:        report,
		Centroid:      Centroid(features, dims),
		CreatedAt:     time.Now().UTC(),
	}
	if report != nil {
		r.Overall = report.Overall()
		r.Confidence = report.Confidence()
	}
	return r
}

// Centroid averages the feature vectors dimension by dimension. The result
// has exactly dims entries: shorter vectors contribute zeros, extra
// dimensions are dropped. It returns nil for an empty sequence or dims < 1.
func Centroid(seq types.FeatureSequence, dims int) []float32 {
	if dims < 1 || len(seq.Vectors) == 0 {
		return nil
	}
	sum := make([]float64, dims)
	for _, v := range seq.Vectors {
		for i := 0; i < dims && i < len(v); i++ {
			sum[i] += v[i]
		}
	}
	out := make([]float32, dims)
	n := float64(len(seq.Vectors))
	for i, s := range sum {
		out[i] = float32(s / n)
	}
	return out
}

// Progress summarises a reciter's records on one passage.
type Progress struct {
	ReferenceText string `json:"referenceText"`

	// Attempts is the number of records summarised.
	Attempts int `json:"attempts"`

	Average float64 `json:"average"`
	Best    float64 `json:"best"`
	Latest  float64 `json:"latest"`

	// Trend is the latest score minus the first one. Positive means
	// improvement.
	Trend float64 `json:"trend"`

	// FrequentRules counts rule violations across the records, most
	// frequent first.
	FrequentRules []RuleCount `json:"frequentRules"`

	LastAttempt time.Time `json:"lastAttempt,omitzero"`
}

// RuleCount is one entry of [Progress.FrequentRules].
type RuleCount struct {
	RuleID string `json:"ruleId"`
	Count  int    `json:"count"`
}

// Summarize computes the progress over records, which may be in any order.
func Summarize(referenceText string, records []Record) Progress {
	p := Progress{ReferenceText: referenceText, Attempts: len(records), FrequentRules: []RuleCount{}}
	if len(records) == 0 {
		return p
	}

	sorted := slices.Clone(records)
	slices.SortFunc(sorted, func(a, b Record) int { return newestFirst(b, a) })

	counts := make(map[string]int)
	var total float64
	for _, r := range sorted {
		total += r.Overall
		p.Best = max(p.Best, r.Overall)
		if r.Report == nil {
			continue
		}
		for _, v := range r.Report.Violations() {
			counts[v.RuleID]++
		}
	}
	first, last := sorted[0], sorted[len(sorted)-1]
	p.Average = total / float64(len(sorted))
	p.Latest = last.Overall
	p.Trend = last.Overall - first.Overall
	p.LastAttempt = last.CreatedAt

	for id, n := range counts {
		p.FrequentRules = append(p.FrequentRules, RuleCount{RuleID: id, Count: n})
	}
	slices.SortFunc(p.FrequentRules, func(a, b RuleCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.RuleID, b.RuleID)
	})
	return p
}

// newestFirst orders records by creation time, newest first, and then by
// ID, the order the postgres store returns them in.
func newestFirst(a, b Record) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return compareIDs(a.ID, b.ID)
}

func compareIDs(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) }
