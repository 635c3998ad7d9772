package history

import (
	"cmp"
	"context"
	"math"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// DefaultMaxRecords bounds a [MemoryStore] created with a non-positive limit.
const DefaultMaxRecords = 10000

// MemoryStore is an in-process [Store]. When full, saving a new record
// evicts the oldest one. Records are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	max     int
	order   []uuid.UUID // oldest first
	records map[uuid.UUID]Record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store holding at most maxRecords records.
func NewMemoryStore(maxRecords int) *MemoryStore {
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	return &MemoryStore{max: maxRecords, records: make(map[uuid.UUID]Record)}
}

// Save implements [Store].
func (m *MemoryStore) Save(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[r.ID]; ok {
		m.order = slices.DeleteFunc(m.order, func(id uuid.UUID) bool { return id == r.ID })
	}
	evict := len(m.order) - m.max + 1
	if evict > 0 {
		for _, id := range m.order[:evict] {
			delete(m.records, id)
		}
		m.order = m.order[evict:]
	}
	if cap(m.order) > 2*m.max {
		m.order = append(make([]uuid.UUID, 0, m.max), m.order...)
	}
	m.order = append(m.order, r.ID)
	m.records[r.ID] = r
	return nil
}

// Get implements [Store].
func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r, nil
}

// List implements [Store].
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list(opts), nil
}

func (m *MemoryStore) list(opts ListOptions) []Record {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	out := []Record{}
	for _, r := range m.records {
		if opts.ReferenceText != "" && r.ReferenceText != opts.ReferenceText {
			continue
		}
		if !opts.After.IsZero() && !r.CreatedAt.After(opts.After) {
			continue
		}
		if !opts.Before.IsZero() && !r.CreatedAt.Before(opts.Before) {
			continue
		}
		out = append(out, r)
	}
	slices.SortFunc(out, newestFirst)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Similar implements [Store].
func (m *MemoryStore) Similar(_ context.Context, id uuid.UUID, topK int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	target, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := []Match{}
	if target.Centroid == nil || topK <= 0 {
		return out, nil
	}
	for _, r := range m.records {
		if r.ID == id || len(r.Centroid) != len(target.Centroid) {
			continue
		}
		out = append(out, Match{Record: r, Distance: CosineDistance(target.Centroid, r.Centroid)})
	}
	slices.SortFunc(out, func(a, b Match) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// Progress implements [Store].
func (m *MemoryStore) Progress(_ context.Context, referenceText string) (Progress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var records []Record
	for _, r := range m.records {
		if r.ReferenceText == referenceText {
			records = append(records, r)
		}
	}
	return Summarize(referenceText, records), nil
}

// CosineDistance returns 1 minus the cosine similarity of a and b, the
// distance pgvector's <=> operator computes. A zero vector is at distance 1
// from everything.
func CosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range min(len(a), len(b)) {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
