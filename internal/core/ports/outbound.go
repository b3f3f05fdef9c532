package ports

import (
	"context"

	"github.com/realvibe/site-copilot/internal/core/domain"
)

// RunRepository persists runs and their answers.
type RunRepository interface {
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, id string) (*domain.Run, error)
	FinishRun(ctx context.Context, id string, status domain.RunStatus, autofillPct float64) error
	SubmitReview(ctx context.Context, id string, reviewMinutes float64) error

	SaveAnswer(ctx context.Context, answer *domain.Answer) error
	GetAnswer(ctx context.Context, runID, fieldID string) (*domain.Answer, error)
	UpdateAnswerReview(ctx context.Context, runID, fieldID string, edit domain.AnswerEdit) error
	ListAnswers(ctx context.Context, runID string) ([]domain.Answer, error)

	SiteMetrics(ctx context.Context, siteID string) (*domain.SiteMetrics, error)
}

// TemplateRepository reads questionnaire templates.
type TemplateRepository interface {
	CreateTemplate(ctx context.Context, tpl *domain.Template) error
	GetTemplate(ctx context.Context, id string) (*domain.Template, error)
}

// MemoryStore persists the per-site answer memory. Upsert is conditional on
// the version the writer last observed (0 for a fresh key) and returns
// domain.ErrMemoryConflict when a concurrent writer got there first.
type MemoryStore interface {
	Lookup(ctx context.Context, siteID, questionHash string) (*domain.MemoryEntry, error)
	Upsert(ctx context.Context, entry *domain.MemoryEntry, expectedVersion int64) error
}

// MemoryCache serves stale-but-recent memory snapshots in front of the
// durable store. A nil miss is not an error.
type MemoryCache interface {
	Get(ctx context.Context, siteID, questionHash string) (*domain.MemoryEntry, error)
	Set(ctx context.Context, entry *domain.MemoryEntry) error
	Invalidate(ctx context.Context, siteID, questionHash string) error
}

// Embedder builds the query vector for a normalized question.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ChunkIndex searches the site's chunk corpus. Both searches take site id
// as a hard filter, never a ranking signal.
type ChunkIndex interface {
	SearchVector(ctx context.Context, siteID string, queryVector []float32, limit int) ([]domain.RetrievedChunk, error)
	SearchLexical(ctx context.Context, siteID, queryText string, limit int) ([]domain.RetrievedChunk, error)
}

// RunQueue hands run requests from the api process to the pipeline worker.
type RunQueue interface {
	PublishRunRequested(ctx context.Context, runID string) error
	SubscribeRunRequested(ctx context.Context, handler func(context.Context, string) error) error
}
