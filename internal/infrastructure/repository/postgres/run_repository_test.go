package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/realvibe/site-copilot/internal/core/domain"
)

func TestRunRepositoryGetRunNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewRunRepository(db)
	mock.ExpectQuery("FROM runs").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = repo.GetRun(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrRunNotFound) {
		t.Fatalf("expected run not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRunRepositoryGetRunScansNullFinishedAt(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewRunRepository(db)
	rows := sqlmock.NewRows([]string{
		"id", "site_id", "template_id", "status",
		"autofill_percentage", "review_time_minutes", "cycle_time_delta_weeks",
		"started_at", "finished_at",
	}).AddRow("run-1", "site-1", "tpl-1", "in_progress", 0.0, 0.0, 0.0, time.Now(), nil)

	mock.ExpectQuery("FROM runs").
		WithArgs("run-1").
		WillReturnRows(rows)

	run, err := repo.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != domain.RunInProgress {
		t.Fatalf("unexpected status %s", run.Status)
	}
	if !run.FinishedAt.IsZero() {
		t.Fatalf("expected zero finished_at, got %v", run.FinishedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRunRepositoryFinishRunNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewRunRepository(db)
	mock.ExpectExec("UPDATE runs").
		WithArgs("missing", "completed", 75.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.FinishRun(context.Background(), "missing", domain.RunCompleted, 75)
	if !domain.IsKind(err, domain.ErrRunNotFound) {
		t.Fatalf("expected run not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRunRepositorySaveAnswerMarshalsEvidenceLinks(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewRunRepository(db)
	mock.ExpectExec("INSERT INTO answers").
		WithArgs("run-1", "beds", 0, "Number of beds?", "220", 0.8,
			[]byte(`[{"file_id":"file-1","page":4,"span_start":10,"span_end":44}]`),
			"accepted", "", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	answer := &domain.Answer{
		RunID:        "run-1",
		FieldID:      "beds",
		FieldLabel:   "Number of beds?",
		Value:        "220",
		Confidence:   0.8,
		ReviewStatus: domain.ReviewAccepted,
		EvidenceLinks: []domain.EvidenceLink{
			{FileID: "file-1", Page: 4, SpanStart: 10, SpanEnd: 44},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := repo.SaveAnswer(context.Background(), answer); err != nil {
		t.Fatalf("SaveAnswer() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRunRepositoryUpdateAnswerReviewNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewRunRepository(db)
	mock.ExpectExec("UPDATE answers").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.UpdateAnswerReview(context.Background(), "run-1", "missing", domain.AnswerEdit{ReviewStatus: domain.ReviewAccepted})
	if !domain.IsKind(err, domain.ErrAnswerNotFound) {
		t.Fatalf("expected answer not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRunRepositoryListAnswersUnmarshalsLinks(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewRunRepository(db)
	rows := sqlmock.NewRows([]string{
		"run_id", "field_id", "position", "field_label", "value", "confidence",
		"evidence_links", "review_status", "failure_reason", "reviewer_comments",
		"created_at", "updated_at",
	}).
		AddRow("run-1", "beds", 0, "Number of beds?", "220", 0.8,
			[]byte(`[{"file_id":"file-1","page":4,"span_start":10,"span_end":44}]`),
			"accepted", "", "", time.Now(), time.Now()).
		AddRow("run-1", "freezer", 1, "Freezer on site?", "", 0.0,
			[]byte(`[]`), "needs_review", "no_evidence", "", time.Now(), time.Now())

	mock.ExpectQuery("FROM answers").
		WithArgs("run-1").
		WillReturnRows(rows)

	answers, err := repo.ListAnswers(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("ListAnswers() error = %v", err)
	}
	if len(answers) != 2 {
		t.Fatalf("expected 2 answers, got %d", len(answers))
	}
	if len(answers[0].EvidenceLinks) != 1 || answers[0].EvidenceLinks[0].Page != 4 {
		t.Fatalf("unexpected evidence links %+v", answers[0].EvidenceLinks)
	}
	if answers[1].FailureReason != domain.ReasonNoEvidence {
		t.Fatalf("unexpected failure reason %s", answers[1].FailureReason)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRunRepositorySiteMetricsAggregatesCompletedRuns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewRunRepository(db)
	rows := sqlmock.NewRows([]string{"count", "avg_autofill", "avg_review", "avg_cycle"}).
		AddRow(4, 62.5, 18.0, -1.5)

	mock.ExpectQuery("FROM runs").
		WithArgs("site-1", "completed").
		WillReturnRows(rows)

	metrics, err := repo.SiteMetrics(context.Background(), "site-1")
	if err != nil {
		t.Fatalf("SiteMetrics() error = %v", err)
	}
	if metrics.CompletedRuns != 4 || metrics.AvgAutofillPercentage != 62.5 {
		t.Fatalf("unexpected metrics %+v", metrics)
	}
	if metrics.AvgCycleTimeDeltaWeeks != -1.5 {
		t.Fatalf("unexpected cycle delta %v", metrics.AvgCycleTimeDeltaWeeks)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
