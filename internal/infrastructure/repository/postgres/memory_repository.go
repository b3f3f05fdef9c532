package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/realvibe/site-copilot/internal/core/domain"
)

type MemoryRepository struct {
	db *sql.DB
}

func NewMemoryRepository(db *sql.DB) *MemoryRepository {
	return &MemoryRepository{db: db}
}

// Lookup returns nil without error when the site holds no entry for the
// fingerprint; a memory miss is the normal cold-start case.
func (r *MemoryRepository) Lookup(ctx context.Context, siteID, questionHash string) (*domain.MemoryEntry, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT site_id, question_hash, question_text, answer_value,
	evidence_file_id, evidence_page, evidence_span_start, evidence_span_end,
	confidence, version, last_updated
FROM answer_memory
WHERE site_id = $1 AND question_hash = $2
`, siteID, questionHash)

	var entry domain.MemoryEntry
	err := row.Scan(
		&entry.SiteID, &entry.QuestionHash, &entry.QuestionText, &entry.AnswerValue,
		&entry.Evidence.FileID, &entry.Evidence.Page, &entry.Evidence.SpanStart, &entry.Evidence.SpanEnd,
		&entry.Confidence, &entry.Version, &entry.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan memory entry: %w", err)
	}
	return &entry, nil
}

// Upsert commits the entry if and only if the stored version still matches
// expectedVersion (0 means the writer observed no row). A failed condition
// returns domain.ErrMemoryConflict so the caller can re-read and retry once.
func (r *MemoryRepository) Upsert(ctx context.Context, entry *domain.MemoryEntry, expectedVersion int64) error {
	if entry.LastUpdated.IsZero() {
		entry.LastUpdated = time.Now().UTC()
	}

	if expectedVersion == 0 {
		result, err := r.db.ExecContext(ctx, `
INSERT INTO answer_memory (
	site_id, question_hash, question_text, answer_value,
	evidence_file_id, evidence_page, evidence_span_start, evidence_span_end,
	confidence, version, last_updated
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,1,$10)
ON CONFLICT (site_id, question_hash) DO NOTHING
`,
			entry.SiteID, entry.QuestionHash, entry.QuestionText, entry.AnswerValue,
			entry.Evidence.FileID, entry.Evidence.Page, entry.Evidence.SpanStart, entry.Evidence.SpanEnd,
			entry.Confidence, entry.LastUpdated,
		)
		if err != nil {
			return fmt.Errorf("insert memory entry: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert memory entry rows affected: %w", err)
		}
		if affected == 0 {
			return domain.WrapError(domain.ErrMemoryConflict, "insert memory entry", errors.New("row already exists"))
		}
		entry.Version = 1
		return nil
	}

	result, err := r.db.ExecContext(ctx, `
UPDATE answer_memory
SET question_text = $4, answer_value = $5,
	evidence_file_id = $6, evidence_page = $7,
	evidence_span_start = $8, evidence_span_end = $9,
	confidence = $10, version = version + 1, last_updated = $11
WHERE site_id = $1 AND question_hash = $2 AND version = $3
`,
		entry.SiteID, entry.QuestionHash, expectedVersion,
		entry.QuestionText, entry.AnswerValue,
		entry.Evidence.FileID, entry.Evidence.Page,
		entry.Evidence.SpanStart, entry.Evidence.SpanEnd,
		entry.Confidence, entry.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("update memory entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update memory entry rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrMemoryConflict, "update memory entry", errors.New("version moved"))
	}
	entry.Version = expectedVersion + 1
	return nil
}
