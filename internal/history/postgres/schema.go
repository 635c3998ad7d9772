package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlAnalyses returns the DDL with the centroid dimension substituted.
// The vector dimension is baked into the column type at schema creation time.
func ddlAnalyses(dims int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS analyses (
    id              TEXT         PRIMARY KEY,
    reference_text  TEXT         NOT NULL,
    overall         DOUBLE PRECISION NOT NULL,
    confidence      DOUBLE PRECISION NOT NULL,
    report          JSONB        NOT NULL DEFAULT '{}',
    centroid        vector(%d),
    created_at      TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_analyses_reference_created
    ON analyses (reference_text, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_analyses_centroid
    ON analyses USING hnsw (centroid vector_cosine_ops);
`, dims)
}

const ddlViolations = `
CREATE TABLE IF NOT EXISTS analysis_violations (
    analysis_id  TEXT     NOT NULL REFERENCES analyses (id) ON DELETE CASCADE,
    rule_id      TEXT     NOT NULL,
    category     TEXT     NOT NULL,
    severity     TEXT     NOT NULL DEFAULT '',
    position     INTEGER  NOT NULL,
    start_ns     BIGINT   NOT NULL DEFAULT 0,
    end_ns       BIGINT   NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_analysis_violations_analysis
    ON analysis_violations (analysis_id);

CREATE INDEX IF NOT EXISTS idx_analysis_violations_rule
    ON analysis_violations (rule_id);
`

// Migrate creates or ensures all required tables and extensions exist. It
// is idempotent and safe to call on every start.
//
// dims must match the feature extractor's vector length (e.g. 13 for
// MFCC13). Changing it after the first migration requires a manual schema
// update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dims int) error {
	for _, stmt := range []string{ddlAnalyses(dims), ddlViolations} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
