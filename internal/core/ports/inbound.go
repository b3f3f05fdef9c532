package ports

import (
	"context"

	"github.com/realvibe/site-copilot/internal/core/domain"
)

// RunStarter is the inbound contract for starting an autofill run.
type RunStarter interface {
	Start(ctx context.Context, siteID, templateID string) (*domain.Run, error)
}

// RunExecutor drives one run through the resolution pipeline. Invoked by
// the worker when a run request arrives on the queue.
type RunExecutor interface {
	Execute(ctx context.Context, runID string) error
}

// ReviewService is the inbound contract consumed by the review UI.
type ReviewService interface {
	Review(ctx context.Context, runID string) (*domain.Run, []domain.Answer, error)
	EditAnswer(ctx context.Context, runID, fieldID string, edit domain.AnswerEdit) (*domain.Answer, error)
	Submit(ctx context.Context, runID string, reviewMinutes float64) (*domain.Run, error)
}

// SiteMetricsReader aggregates run outcomes per site.
type SiteMetricsReader interface {
	SiteMetrics(ctx context.Context, siteID string) (*domain.SiteMetrics, error)
}
