// Package postgres provides a PostgreSQL-backed [history.Store].
//
// Reports are kept as JSONB, their rule violations are flattened into a
// separate table for aggregation, and feature centroids live in a pgvector
// column with an HNSW index for similarity search. The pgvector extension
// must be available in the target database; [Migrate] installs it via
// CREATE EXTENSION IF NOT EXISTS.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/tartil/internal/history"
	"github.com/MrWong99/tartil/internal/scoring"
	"github.com/MrWong99/tartil/internal/tajweed"
)

var _ history.Store = (*Store)(nil)

// Store is a [history.Store] backed by a single [pgxpool.Pool].
// All operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
	dims int
}

// NewStore connects to the database at dsn, registers pgvector types on
// every connection, and runs [Migrate].
//
// dims must match the centroid length produced by [history.Centroid].
func NewStore(ctx context.Context, dsn string, dims int) (*Store, error) {
	if dims < 1 {
		return nil, fmt.Errorf("postgres store: dimensions must be positive, got %d", dims)
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool, dims); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool, dims: dims}, nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close releases all connections held by the pool.
func (s *Store) Close() { s.pool.Close() }

// Save implements [history.Store]. The record and its violations are
// written in one transaction.
func (s *Store) Save(ctx context.Context, r history.Record) error {
	if r.Centroid != nil && len(r.Centroid) != s.dims {
		return fmt.Errorf("history store: centroid has %d dimensions, want %d", len(r.Centroid), s.dims)
	}
	report, err := json.Marshal(r.Report)
	if err != nil {
		return fmt.Errorf("history store: encode report: %w", err)
	}
	var centroid any
	if r.Centroid != nil {
		centroid = pgvector.NewVector(r.Centroid)
	}
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("history store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const upsert = `
		INSERT INTO analyses
		    (id, reference_text, overall, confidence, report, centroid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
		    reference_text = EXCLUDED.reference_text,
		    overall        = EXCLUDED.overall,
		    confidence     = EXCLUDED.confidence,
		    report         = EXCLUDED.report,
		    centroid       = EXCLUDED.centroid,
		    created_at     = EXCLUDED.created_at`
	id := r.ID.String()
	if _, err := tx.Exec(ctx, upsert, id, r.ReferenceText, r.Overall, r.Confidence, report, centroid, createdAt); err != nil {
		return fmt.Errorf("history store: save: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM analysis_violations WHERE analysis_id = $1`, id); err != nil {
		return fmt.Errorf("history store: clear violations: %w", err)
	}
	var violations []tajweed.Violation
	if r.Report != nil {
		violations = r.Report.Violations()
	}
	if len(violations) > 0 {
		rows := make([][]any, 0, len(violations))
		for _, v := range violations {
			rows = append(rows, []any{id, v.RuleID, v.Category.String(), string(v.Severity), v.Position, v.Start.Nanoseconds(), v.End.Nanoseconds()})
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"analysis_violations"},
			[]string{"analysis_id", "rule_id", "category", "severity", "position", "start_ns", "end_ns"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("history store: save violations: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("history store: commit: %w", err)
	}
	return nil
}

const recordColumns = `id, reference_text, overall, confidence, report, centroid, created_at`

// Get implements [history.Store].
func (s *Store) Get(ctx context.Context, id uuid.UUID) (history.Record, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+recordColumns+` FROM analyses WHERE id = $1`, id.String())
	if err != nil {
		return history.Record{}, fmt.Errorf("history store: get: %w", err)
	}
	r, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if errors.Is(err, pgx.ErrNoRows) {
		return history.Record{}, history.ErrNotFound
	}
	if err != nil {
		return history.Record{}, fmt.Errorf("history store: get: %w", err)
	}
	return r, nil
}

// List implements [history.Store].
func (s *Store) List(ctx context.Context, opts history.ListOptions) ([]history.Record, error) {
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if opts.ReferenceText != "" {
		conditions = append(conditions, "reference_text = "+next(opts.ReferenceText))
	}
	if !opts.After.IsZero() {
		conditions = append(conditions, "created_at > "+next(opts.After))
	}
	if !opts.Before.IsZero() {
		conditions = append(conditions, "created_at < "+next(opts.Before))
	}
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, "\n  AND ")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = history.DefaultListLimit
	}

	q := fmt.Sprintf(`
		SELECT %s
		FROM   analyses
		%s
		ORDER  BY created_at DESC, id
		LIMIT  %s`, recordColumns, whereClause, next(limit))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history store: list: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("history store: scan rows: %w", err)
	}
	if out == nil {
		out = []history.Record{}
	}
	return out, nil
}

// Similar implements [history.Store]. Distances are pgvector cosine
// distances.
func (s *Store) Similar(ctx context.Context, id uuid.UUID, topK int) ([]history.Match, error) {
	var hasCentroid bool
	err := s.pool.QueryRow(ctx, `SELECT centroid IS NOT NULL FROM analyses WHERE id = $1`, id.String()).Scan(&hasCentroid)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, history.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("history store: similar: %w", err)
	}
	if !hasCentroid || topK <= 0 {
		return []history.Match{}, nil
	}

	const q = `
		SELECT a.id, a.reference_text, a.overall, a.confidence, a.report, a.centroid, a.created_at,
		       a.centroid <=> t.centroid AS distance
		FROM   analyses a, analyses t
		WHERE  t.id = $1
		  AND  a.id <> t.id
		  AND  a.centroid IS NOT NULL
		ORDER  BY distance, a.id
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, id.String(), topK)
	if err != nil {
		return nil, fmt.Errorf("history store: similar: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (history.Match, error) {
		var m history.Match
		r, err := scanRecordWith(row, &m.Distance)
		m.Record = r
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("history store: scan rows: %w", err)
	}
	if out == nil {
		out = []history.Match{}
	}
	return out, nil
}

// Progress implements [history.Store]. Scores are aggregated from the
// analyses table and rule counts from the flattened violations.
func (s *Store) Progress(ctx context.Context, referenceText string) (history.Progress, error) {
	p := history.Progress{ReferenceText: referenceText, FrequentRules: []history.RuleCount{}}

	const summary = `
		SELECT count(*),
		       coalesce(avg(overall), 0),
		       coalesce(max(overall), 0),
		       coalesce((array_agg(overall ORDER BY created_at DESC, id))[1], 0),
		       coalesce((array_agg(overall ORDER BY created_at ASC, id DESC))[1], 0),
		       max(created_at)
		FROM   analyses
		WHERE  reference_text = $1`

	var (
		first float64
		last  *time.Time
	)
	err := s.pool.QueryRow(ctx, summary, referenceText).Scan(&p.Attempts, &p.Average, &p.Best, &p.Latest, &first, &last)
	if err != nil {
		return history.Progress{}, fmt.Errorf("history store: progress: %w", err)
	}
	if p.Attempts == 0 {
		return p, nil
	}
	p.Trend = p.Latest - first
	if last != nil {
		p.LastAttempt = last.UTC()
	}

	const rules = `
		SELECT v.rule_id, count(*)
		FROM   analysis_violations v
		JOIN   analyses a ON a.id = v.analysis_id
		WHERE  a.reference_text = $1
		GROUP  BY v.rule_id
		ORDER  BY count(*) DESC, v.rule_id`

	rows, err := s.pool.Query(ctx, rules, referenceText)
	if err != nil {
		return history.Progress{}, fmt.Errorf("history store: rule counts: %w", err)
	}
	counts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (history.RuleCount, error) {
		var rc history.RuleCount
		err := row.Scan(&rc.RuleID, &rc.Count)
		return rc, err
	})
	if err != nil {
		return history.Progress{}, fmt.Errorf("history store: scan rule counts: %w", err)
	}
	if counts != nil {
		p.FrequentRules = counts
	}
	return p, nil
}

func scanRecord(row pgx.CollectableRow) (history.Record, error) {
	return scanRecordWith(row)
}

// scanRecordWith scans the record columns followed by extra destinations.
func scanRecordWith(row pgx.CollectableRow, extra ...any) (history.Record, error) {
	var (
		r        history.Record
		id       string
		report   []byte
		centroid *pgvector.Vector
	)
	dest := append([]any{&id, &r.ReferenceText, &r.Overall, &r.Confidence, &report, &centroid, &r.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return history.Record{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return history.Record{}, fmt.Errorf("parse id %q: %w", id, err)
	}
	r.ID = parsed
	if len(report) > 0 && string(report) != "null" {
		r.Report = new(scoring.Report)
		if err := json.Unmarshal(report, r.Report); err != nil {
			return history.Record{}, fmt.Errorf("decode report %s: %w", id, err)
		}
	}
	if centroid != nil {
		r.Centroid = centroid.Slice()
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}
