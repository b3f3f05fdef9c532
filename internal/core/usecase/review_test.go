package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/realvibe/site-copilot/internal/core/domain"
)

func reviewFixture(t *testing.T) (*ReviewUseCase, *fakeRunRepo, *domain.Run) {
	t.Helper()
	repo := newFakeRunRepo()
	run := &domain.Run{
		ID:         "run-1",
		SiteID:     "site-1",
		TemplateID: "tpl-1",
		Status:     domain.RunCompleted,
		StartedAt:  time.Now().UTC(),
	}
	if err := repo.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("seed run: %v", err)
	}
	answer := &domain.Answer{
		RunID:        "run-1",
		FieldID:      "beds",
		FieldLabel:   "Number of beds?",
		Value:        "220",
		Confidence:   0.8,
		ReviewStatus: domain.ReviewAccepted,
	}
	if err := repo.SaveAnswer(context.Background(), answer); err != nil {
		t.Fatalf("seed answer: %v", err)
	}
	return NewReviewUseCase(repo), repo, run
}

func TestReviewReturnsRunWithAnswers(t *testing.T) {
	uc, _, _ := reviewFixture(t)

	run, answers, err := uc.Review(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if run.ID != "run-1" {
		t.Fatalf("unexpected run %s", run.ID)
	}
	if len(answers) != 1 || answers[0].FieldID != "beds" {
		t.Fatalf("expected the seeded answer, got %v", answers)
	}

	if _, _, err := uc.Review(context.Background(), "missing"); !domain.IsKind(err, domain.ErrRunNotFound) {
		t.Fatalf("expected run not found, got %v", err)
	}
}

func TestEditAnswerValidation(t *testing.T) {
	uc, _, _ := reviewFixture(t)

	_, err := uc.EditAnswer(context.Background(), "run-1", "beds", domain.AnswerEdit{ReviewStatus: "approved"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("unknown status must be rejected, got %v", err)
	}

	_, err = uc.EditAnswer(context.Background(), "run-1", "beds", domain.AnswerEdit{ReviewStatus: domain.ReviewEdited})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("edited without a value must be rejected, got %v", err)
	}

	_, err = uc.EditAnswer(context.Background(), "run-1", "missing", domain.AnswerEdit{ReviewStatus: domain.ReviewAccepted})
	if !domain.IsKind(err, domain.ErrAnswerNotFound) {
		t.Fatalf("expected answer not found, got %v", err)
	}
}

func TestEditAnswerAppliesValueAndComments(t *testing.T) {
	uc, repo, _ := reviewFixture(t)

	value := "230"
	comments := "corrected against the 2025 bed census"
	answer, err := uc.EditAnswer(context.Background(), "run-1", "beds", domain.AnswerEdit{
		ReviewStatus: domain.ReviewEdited,
		Value:        &value,
		Comments:     &comments,
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if answer.ReviewStatus != domain.ReviewEdited || answer.Value != "230" {
		t.Fatalf("expected edited/230, got %s %q", answer.ReviewStatus, answer.Value)
	}
	if answer.ReviewerComments != comments {
		t.Fatalf("expected comments applied, got %q", answer.ReviewerComments)
	}

	// A status flip without a value leaves the stored value untouched.
	answer, err = uc.EditAnswer(context.Background(), "run-1", "beds", domain.AnswerEdit{ReviewStatus: domain.ReviewAccepted})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if answer.Value != "230" {
		t.Fatalf("status-only edit must keep the value, got %q", answer.Value)
	}
	stored := repo.answer(t, "run-1", "beds")
	if stored.ReviewStatus != domain.ReviewAccepted {
		t.Fatalf("expected accepted persisted, got %s", stored.ReviewStatus)
	}
}

func TestSubmitRequiresTerminalRun(t *testing.T) {
	uc, repo, run := reviewFixture(t)

	if _, err := uc.Submit(context.Background(), run.ID, -1); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("negative minutes must be rejected, got %v", err)
	}

	repo.mu.Lock()
	repo.runs[run.ID].Status = domain.RunInProgress
	repo.mu.Unlock()
	if _, err := uc.Submit(context.Background(), run.ID, 12); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("in-progress run must be rejected, got %v", err)
	}

	repo.mu.Lock()
	repo.runs[run.ID].Status = domain.RunCompleted
	repo.mu.Unlock()
	submitted, err := uc.Submit(context.Background(), run.ID, 12)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitted.ReviewTimeMinutes != 12 {
		t.Fatalf("expected 12 review minutes recorded, got %v", submitted.ReviewTimeMinutes)
	}
}

func TestSiteMetricsPassthrough(t *testing.T) {
	uc, _, _ := reviewFixture(t)

	metrics, err := uc.SiteMetrics(context.Background(), "site-1")
	if err != nil {
		t.Fatalf("site metrics: %v", err)
	}
	if metrics.SiteID != "site-1" {
		t.Fatalf("unexpected site %s", metrics.SiteID)
	}
}
