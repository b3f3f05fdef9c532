package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS files (
	id TEXT PRIMARY KEY,
	site_id TEXT NOT NULL,
	name TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	uploaded_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_site ON files(site_id);

CREATE TABLE IF NOT EXISTS questionnaire_templates (
	id TEXT PRIMARY KEY,
	sponsor TEXT NOT NULL,
	name TEXT NOT NULL,
	version INTEGER NOT NULL DEFAULT 1,
	fields JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	site_id TEXT NOT NULL,
	template_id TEXT NOT NULL,
	status TEXT NOT NULL,
	autofill_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
	review_time_minutes DOUBLE PRECISION NOT NULL DEFAULT 0,
	cycle_time_delta_weeks DOUBLE PRECISION NOT NULL DEFAULT 0,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_runs_site ON runs(site_id, status);

CREATE TABLE IF NOT EXISTS answers (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	field_id TEXT NOT NULL,
	position INTEGER NOT NULL DEFAULT 0,
	field_label TEXT NOT NULL,
	value TEXT NOT NULL DEFAULT '',
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	evidence_links JSONB NOT NULL DEFAULT '[]'::jsonb,
	review_status TEXT NOT NULL,
	failure_reason TEXT NOT NULL DEFAULT '',
	reviewer_comments TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, field_id)
);

CREATE TABLE IF NOT EXISTS answer_memory (
	site_id TEXT NOT NULL,
	question_hash TEXT NOT NULL,
	question_text TEXT NOT NULL,
	answer_value TEXT NOT NULL,
	evidence_file_id TEXT NOT NULL DEFAULT '',
	evidence_page INTEGER NOT NULL DEFAULT 0,
	evidence_span_start INTEGER NOT NULL DEFAULT 0,
	evidence_span_end INTEGER NOT NULL DEFAULT 0,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	version BIGINT NOT NULL DEFAULT 1,
	last_updated TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (site_id, question_hash)
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
