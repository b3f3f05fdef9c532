package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/realvibe/site-copilot/internal/core/domain"
	"github.com/realvibe/site-copilot/internal/core/ports"
)

// ReviewUseCase serves the review UI boundary: the complete answer list for
// a run, reviewer edits, and final submission. Answers are never deleted,
// only superseded by a new run.
type ReviewUseCase struct {
	runs ports.RunRepository
}

func NewReviewUseCase(runs ports.RunRepository) *ReviewUseCase {
	return &ReviewUseCase{runs: runs}
}

// Review returns the run with its ordered answers. Every field the run
// processed appears with an explicit status; nothing is silently omitted.
func (uc *ReviewUseCase) Review(ctx context.Context, runID string) (*domain.Run, []domain.Answer, error) {
	run, err := uc.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("load run: %w", err)
	}
	answers, err := uc.runs.ListAnswers(ctx, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("list answers: %w", err)
	}
	return run, answers, nil
}

func (uc *ReviewUseCase) EditAnswer(ctx context.Context, runID, fieldID string, edit domain.AnswerEdit) (*domain.Answer, error) {
	switch edit.ReviewStatus {
	case domain.ReviewAccepted, domain.ReviewEdited, domain.ReviewNeedsReview:
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "edit answer", fmt.Errorf("unknown review status %q", edit.ReviewStatus))
	}
	if edit.ReviewStatus == domain.ReviewEdited && (edit.Value == nil || *edit.Value == "") {
		return nil, domain.WrapError(domain.ErrInvalidInput, "edit answer", errors.New("edited status requires a value"))
	}

	if err := uc.runs.UpdateAnswerReview(ctx, runID, fieldID, edit); err != nil {
		return nil, fmt.Errorf("update answer review: %w", err)
	}
	answer, err := uc.runs.GetAnswer(ctx, runID, fieldID)
	if err != nil {
		return nil, fmt.Errorf("reload answer: %w", err)
	}
	return answer, nil
}

// Submit finalizes the review session. The run must already be terminal;
// submission records review effort, it does not re-open the pipeline.
func (uc *ReviewUseCase) Submit(ctx context.Context, runID string, reviewMinutes float64) (*domain.Run, error) {
	if reviewMinutes < 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit review", errors.New("review_time_minutes must be non-negative"))
	}

	run, err := uc.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	if run.Status == domain.RunInProgress {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit review", errors.New("run is still in progress"))
	}

	if err := uc.runs.SubmitReview(ctx, runID, reviewMinutes); err != nil {
		return nil, fmt.Errorf("submit review: %w", err)
	}
	run, err = uc.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("reload run: %w", err)
	}
	return run, nil
}

// SiteMetrics aggregates completed runs for the dashboard.
func (uc *ReviewUseCase) SiteMetrics(ctx context.Context, siteID string) (*domain.SiteMetrics, error) {
	metrics, err := uc.runs.SiteMetrics(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("site metrics: %w", err)
	}
	return metrics, nil
}
