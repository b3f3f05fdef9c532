package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/realvibe/site-copilot/internal/core/domain"
)

type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) CreateRun(ctx context.Context, run *domain.Run) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO runs (id, site_id, template_id, status, autofill_percentage, review_time_minutes, cycle_time_delta_weeks, started_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		run.ID, run.SiteID, run.TemplateID, string(run.Status),
		run.AutofillPercentage, run.ReviewTimeMinutes, run.CycleTimeDeltaWeeks, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r *RunRepository) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, site_id, template_id, status, autofill_percentage, review_time_minutes, cycle_time_delta_weeks, started_at, finished_at
FROM runs
WHERE id = $1
`, id)

	var run domain.Run
	var status string
	var finishedAt sql.NullTime
	err := row.Scan(
		&run.ID, &run.SiteID, &run.TemplateID, &status,
		&run.AutofillPercentage, &run.ReviewTimeMinutes, &run.CycleTimeDeltaWeeks,
		&run.StartedAt, &finishedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrRunNotFound, "get run", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.Status = domain.RunStatus(status)
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	return &run, nil
}

func (r *RunRepository) FinishRun(ctx context.Context, id string, status domain.RunStatus, autofillPct float64) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE runs
SET status = $2, autofill_percentage = $3, finished_at = $4
WHERE id = $1
`, id, string(status), autofillPct, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return requireRunAffected(result, id)
}

func (r *RunRepository) SubmitReview(ctx context.Context, id string, reviewMinutes float64) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE runs
SET review_time_minutes = $2
WHERE id = $1
`, id, reviewMinutes)
	if err != nil {
		return fmt.Errorf("submit review: %w", err)
	}
	return requireRunAffected(result, id)
}

// SaveAnswer is idempotent per (run, field): re-recording the same field
// replaces the row instead of duplicating it.
func (r *RunRepository) SaveAnswer(ctx context.Context, answer *domain.Answer) error {
	links, err := json.Marshal(evidenceLinksOrEmpty(answer.EvidenceLinks))
	if err != nil {
		return fmt.Errorf("marshal evidence links: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO answers (
	run_id, field_id, position, field_label, value, confidence,
	evidence_links, review_status, failure_reason, reviewer_comments, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (run_id, field_id) DO UPDATE SET
	position = EXCLUDED.position,
	field_label = EXCLUDED.field_label,
	value = EXCLUDED.value,
	confidence = EXCLUDED.confidence,
	evidence_links = EXCLUDED.evidence_links,
	review_status = EXCLUDED.review_status,
	failure_reason = EXCLUDED.failure_reason,
	updated_at = EXCLUDED.updated_at
`,
		answer.RunID, answer.FieldID, answer.Position, answer.FieldLabel, answer.Value, answer.Confidence,
		links, string(answer.ReviewStatus), string(answer.FailureReason), answer.ReviewerComments,
		answer.CreatedAt, answer.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}

func (r *RunRepository) GetAnswer(ctx context.Context, runID, fieldID string) (*domain.Answer, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT run_id, field_id, position, field_label, value, confidence,
	evidence_links, review_status, failure_reason, reviewer_comments, created_at, updated_at
FROM answers
WHERE run_id = $1 AND field_id = $2
`, runID, fieldID)

	answer, err := scanAnswer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrAnswerNotFound, "get answer", fmt.Errorf("run=%s field=%s", runID, fieldID))
		}
		return nil, err
	}
	return answer, nil
}

func (r *RunRepository) UpdateAnswerReview(ctx context.Context, runID, fieldID string, edit domain.AnswerEdit) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE answers
SET review_status = $3,
	value = COALESCE($4, value),
	reviewer_comments = COALESCE($5, reviewer_comments),
	updated_at = $6
WHERE run_id = $1 AND field_id = $2
`, runID, fieldID, string(edit.ReviewStatus), edit.Value, edit.Comments, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update answer review: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update answer review rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrAnswerNotFound, "update answer review", fmt.Errorf("run=%s field=%s", runID, fieldID))
	}
	return nil
}

func (r *RunRepository) ListAnswers(ctx context.Context, runID string) ([]domain.Answer, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT run_id, field_id, position, field_label, value, confidence,
	evidence_links, review_status, failure_reason, reviewer_comments, created_at, updated_at
FROM answers
WHERE run_id = $1
ORDER BY position ASC, field_id ASC
`, runID)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Answer, 0, 16)
	for rows.Next() {
		answer, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *answer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return out, nil
}

func (r *RunRepository) SiteMetrics(ctx context.Context, siteID string) (*domain.SiteMetrics, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT COUNT(*),
	COALESCE(AVG(autofill_percentage), 0),
	COALESCE(AVG(review_time_minutes), 0),
	COALESCE(AVG(cycle_time_delta_weeks), 0)
FROM runs
WHERE site_id = $1 AND status = $2
`, siteID, string(domain.RunCompleted))

	metrics := domain.SiteMetrics{SiteID: siteID}
	err := row.Scan(
		&metrics.CompletedRuns,
		&metrics.AvgAutofillPercentage,
		&metrics.AvgReviewTimeMinutes,
		&metrics.AvgCycleTimeDeltaWeeks,
	)
	if err != nil {
		return nil, fmt.Errorf("scan site metrics: %w", err)
	}
	return &metrics, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnswer(row rowScanner) (*domain.Answer, error) {
	var answer domain.Answer
	var linksRaw []byte
	var status, reason string
	err := row.Scan(
		&answer.RunID, &answer.FieldID, &answer.Position, &answer.FieldLabel,
		&answer.Value, &answer.Confidence, &linksRaw, &status, &reason,
		&answer.ReviewerComments, &answer.CreatedAt, &answer.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(linksRaw, &answer.EvidenceLinks); err != nil {
		return nil, fmt.Errorf("unmarshal evidence links: %w", err)
	}
	answer.ReviewStatus = domain.ReviewStatus(status)
	answer.FailureReason = domain.FailureReason(reason)
	return &answer, nil
}

func evidenceLinksOrEmpty(links []domain.EvidenceLink) []domain.EvidenceLink {
	if links == nil {
		return []domain.EvidenceLink{}
	}
	return links
}

func requireRunAffected(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrRunNotFound, "update run", fmt.Errorf("id=%s", id))
	}
	return nil
}
