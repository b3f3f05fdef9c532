package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/realvibe/site-copilot/internal/core/domain"
	"github.com/realvibe/site-copilot/internal/core/ports"
)

type OrchestratorConfig struct {
	Workers      int
	TopK         int
	StageTimeout time.Duration
}

func (c OrchestratorConfig) normalize() OrchestratorConfig {
	out := c
	if out.Workers <= 0 {
		out.Workers = 4
	}
	if out.TopK <= 0 {
		out.TopK = 5
	}
	if out.StageTimeout <= 0 {
		out.StageTimeout = 15 * time.Second
	}
	return out
}

// PipelineMetrics receives pipeline outcomes. The worker binary plugs in
// the prometheus implementation; tests run with the noop.
type PipelineMetrics interface {
	FieldResolved(status domain.ReviewStatus, reason domain.FailureReason, memoryHit bool, duration time.Duration)
	RunFinished(status domain.RunStatus, autofillPct float64, duration time.Duration)
}

type noopPipelineMetrics struct{}

func (noopPipelineMetrics) FieldResolved(domain.ReviewStatus, domain.FailureReason, bool, time.Duration) {
}
func (noopPipelineMetrics) RunFinished(domain.RunStatus, float64, time.Duration) {}

// RunOrchestrator drives each template field through the resolution
// pipeline: mapped → retrieved → evidenced → scored → recorded. Fields run
// concurrently on a bounded pool; one field's failure never aborts the run.
type RunOrchestrator struct {
	runs      ports.RunRepository
	templates ports.TemplateRepository
	queue     ports.RunQueue
	mapper    *FieldMapper
	retriever *HybridRetriever
	evidencer *Evidencer
	memory    ports.MemoryStore
	cache     ports.MemoryCache

	scoring ScoringConfig
	cfg     OrchestratorConfig
	metrics PipelineMetrics
	logger  *slog.Logger

	// memoryLocks serializes answer-memory upserts per (site, fingerprint):
	// at most one writer commits a row for a key at a time.
	memoryLocks keyedMutex
}

func NewRunOrchestrator(
	runs ports.RunRepository,
	templates ports.TemplateRepository,
	queue ports.RunQueue,
	mapper *FieldMapper,
	retriever *HybridRetriever,
	evidencer *Evidencer,
	memory ports.MemoryStore,
	cache ports.MemoryCache,
	scoring ScoringConfig,
	cfg OrchestratorConfig,
	metrics PipelineMetrics,
	logger *slog.Logger,
) *RunOrchestrator {
	if metrics == nil {
		metrics = noopPipelineMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RunOrchestrator{
		runs:      runs,
		templates: templates,
		queue:     queue,
		mapper:    mapper,
		retriever: retriever,
		evidencer: evidencer,
		memory:    memory,
		cache:     cache,
		scoring:   scoring.normalize(),
		cfg:       cfg.normalize(),
		metrics:   metrics,
		logger:    logger,
	}
}

// Start creates the run row and hands it to the pipeline worker.
func (o *RunOrchestrator) Start(ctx context.Context, siteID, templateID string) (*domain.Run, error) {
	if strings.TrimSpace(siteID) == "" || strings.TrimSpace(templateID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "start run", errors.New("site_id and template_id are required"))
	}
	if _, err := o.templates.GetTemplate(ctx, templateID); err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}

	run := &domain.Run{
		ID:         uuid.NewString(),
		SiteID:     siteID,
		TemplateID: templateID,
		Status:     domain.RunInProgress,
		StartedAt:  time.Now().UTC(),
	}
	if err := o.runs.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	if err := o.queue.PublishRunRequested(ctx, run.ID); err != nil {
		if failErr := o.runs.FinishRun(ctx, run.ID, domain.RunFailed, 0); failErr != nil {
			o.logger.Error("run_fail_mark_failed", "run_id", run.ID, "error", failErr)
		}
		return nil, fmt.Errorf("publish run request: %w", err)
	}
	return run, nil
}

type fieldOutcome struct {
	answer   domain.Answer
	saveErr  error
	canceled bool
}

// Execute resolves every field of the run's template. Only run-row storage
// failures surface as run-level errors; everything else degrades to a
// per-field needs_review or failed outcome.
func (o *RunOrchestrator) Execute(ctx context.Context, runID string) error {
	started := time.Now()

	run, err := o.runs.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	if run.Status != domain.RunInProgress {
		// Queue redelivery of an already-terminal run.
		o.logger.Warn("run_already_terminal", "run_id", runID, "status", run.Status)
		return nil
	}

	tpl, err := o.templates.GetTemplate(ctx, run.TemplateID)
	if err != nil {
		o.finishRun(ctx, run, domain.RunFailed, 0, started)
		return fmt.Errorf("load template: %w", err)
	}

	outcomes := make([]fieldOutcome, len(tpl.Fields))
	sem := make(chan struct{}, o.cfg.Workers)
	var wg sync.WaitGroup
	for i, field := range tpl.Fields {
		wg.Add(1)
		go func(i int, field domain.TemplateField) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = o.resolveField(ctx, run, field, i)
		}(i, field)
	}
	wg.Wait()

	accepted := 0
	var storageErr error
	canceled := false
	for _, outcome := range outcomes {
		if outcome.saveErr != nil && storageErr == nil {
			storageErr = outcome.saveErr
		}
		if outcome.canceled {
			canceled = true
		}
		if outcome.answer.ReviewStatus == domain.ReviewAccepted {
			accepted++
		}
	}

	autofillPct := 0.0
	if len(tpl.Fields) > 0 {
		autofillPct = float64(accepted) / float64(len(tpl.Fields)) * 100
	}

	if storageErr != nil {
		o.finishRun(ctx, run, domain.RunFailed, autofillPct, started)
		return fmt.Errorf("persist answers: %w", storageErr)
	}
	if canceled {
		o.finishRun(ctx, run, domain.RunFailed, autofillPct, started)
		return ctx.Err()
	}

	o.finishRun(ctx, run, domain.RunCompleted, autofillPct, started)
	o.logger.Info("run_completed",
		"run_id", run.ID,
		"site_id", run.SiteID,
		"fields", len(tpl.Fields),
		"accepted", accepted,
		"autofill_pct", autofillPct,
	)
	return nil
}

// finishRun persists the terminal run state even when the caller's context
// is already canceled; a terminal status must never be lost to the abort.
func (o *RunOrchestrator) finishRun(ctx context.Context, run *domain.Run, status domain.RunStatus, autofillPct float64, started time.Time) {
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.runs.FinishRun(persistCtx, run.ID, status, autofillPct); err != nil {
		o.logger.Error("run_finish_persist_failed", "run_id", run.ID, "status", status, "error", err)
	}
	o.metrics.RunFinished(status, autofillPct, time.Since(started))
}

func (o *RunOrchestrator) resolveField(ctx context.Context, run *domain.Run, field domain.TemplateField, position int) fieldOutcome {
	started := time.Now()
	answer := domain.Answer{
		RunID:      run.ID,
		FieldID:    field.ID,
		FieldLabel: field.Label,
		Position:   position,
	}

	state, memoryHit := o.advanceField(ctx, run, field, &answer)
	o.logger.Debug("field_resolved",
		"run_id", run.ID,
		"field_id", field.ID,
		"state", state,
		"status", answer.ReviewStatus,
		"reason", answer.FailureReason,
	)

	outcome := fieldOutcome{answer: answer, canceled: state == domain.FieldFailed && ctx.Err() != nil}
	if outcome.canceled {
		// Do not commit a partial write for an aborted run.
		return outcome
	}

	if err := o.saveAnswer(ctx, &answer); err != nil {
		outcome.saveErr = err
		return outcome
	}
	o.metrics.FieldResolved(answer.ReviewStatus, answer.FailureReason, memoryHit, time.Since(started))
	return outcome
}

// advanceField walks one field through the stage sequence and fills the
// answer in place. The returned state is the terminal per-field state.
func (o *RunOrchestrator) advanceField(ctx context.Context, run *domain.Run, field domain.TemplateField, answer *domain.Answer) (domain.FieldState, bool) {
	if ctx.Err() != nil {
		return domain.FieldFailed, false
	}

	// pending → mapped
	req, err := o.mapper.Resolve(ctx, run.SiteID, field)
	if err != nil {
		answer.ReviewStatus = domain.ReviewNeedsReview
		answer.FailureReason = domain.ReasonMalformedField
		return domain.FieldFailed, false
	}
	memoryHit := req.Memory != nil

	// Memory reuse short-circuits retrieval: the stored entry is treated
	// as authoritative and the gate still applies to its confidence.
	if req.Reuse {
		answer.Value = req.Memory.AnswerValue
		answer.Confidence = req.Memory.Confidence
		answer.EvidenceLinks = []domain.EvidenceLink{req.Memory.Evidence}
		answer.ReviewStatus = Gate(req.Memory.Confidence, o.scoring)
		if answer.ReviewStatus == domain.ReviewNeedsReview {
			answer.FailureReason = domain.ReasonLowConfidence
		}
		return domain.FieldRecorded, true
	}

	// mapped → retrieved
	candidates, err := o.retrieveStage(ctx, run.SiteID, req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.FieldFailed, memoryHit
		}
		answer.ReviewStatus = domain.ReviewNeedsReview
		answer.FailureReason = classifyRetrievalFailure(err)
		o.logger.Warn("field_retrieval_failed",
			"run_id", run.ID,
			"field_id", field.ID,
			"reason", answer.FailureReason,
			"error", err,
		)
		return domain.FieldRetrieved, memoryHit
	}
	if ctx.Err() != nil {
		return domain.FieldFailed, memoryHit
	}

	// retrieved → evidenced
	evidence := o.evidencer.Extract(field, candidates)
	if evidence == nil {
		answer.ReviewStatus = domain.ReviewNeedsReview
		answer.FailureReason = domain.ReasonNoEvidence
		return domain.FieldEvidenced, memoryHit
	}
	if ctx.Err() != nil {
		return domain.FieldFailed, memoryHit
	}

	// evidenced → scored
	agreement := req.Memory != nil && NormalizeQuestion(req.Memory.AnswerValue) == NormalizeQuestion(evidence.Value)
	confidence := Score(ScoreInput{
		FusedScore:      evidence.FusedScore,
		MemoryAgreement: agreement,
		SpanLength:      evidence.SpanEnd - evidence.SpanStart,
		AnswerType:      field.AnswerType,
	}, o.scoring)

	answer.Value = evidence.Value
	answer.Confidence = confidence
	answer.EvidenceLinks = []domain.EvidenceLink{evidence.Link()}
	answer.ReviewStatus = Gate(confidence, o.scoring)
	if answer.ReviewStatus == domain.ReviewNeedsReview {
		answer.FailureReason = domain.ReasonLowConfidence
		return domain.FieldScored, memoryHit
	}
	if ctx.Err() != nil {
		return domain.FieldFailed, memoryHit
	}

	// scored → recorded
	o.recordMemory(ctx, run.SiteID, req, answer.Value, *evidence, confidence)
	return domain.FieldRecorded, memoryHit
}

func (o *RunOrchestrator) retrieveStage(ctx context.Context, siteID string, req *ResolutionRequest) ([]domain.RetrievedChunk, error) {
	stageCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	defer cancel()
	return o.retriever.Search(stageCtx, siteID, req.Query, o.cfg.TopK)
}

func (o *RunOrchestrator) saveAnswer(ctx context.Context, answer *domain.Answer) error {
	now := time.Now().UTC()
	answer.CreatedAt = now
	answer.UpdatedAt = now
	saveCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	defer cancel()
	if err := o.runs.SaveAnswer(saveCtx, answer); err != nil {
		return fmt.Errorf("save answer field=%s: %w", answer.FieldID, err)
	}
	return nil
}

// recordMemory upserts the accepted value as the site's canonical answer.
// Last write wins with full provenance replacement; a persistent conflict
// leaves the answer accepted but skips the durable reuse entry.
func (o *RunOrchestrator) recordMemory(ctx context.Context, siteID string, req *ResolutionRequest, value string, evidence domain.Evidence, confidence float64) {
	key := siteID + "/" + req.Fingerprint
	o.memoryLocks.Lock(key)
	defer o.memoryLocks.Unlock(key)

	upsertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.StageTimeout)
	defer cancel()

	expected := int64(0)
	if current, err := o.memory.Lookup(upsertCtx, siteID, req.Fingerprint); err == nil && current != nil {
		expected = current.Version
	}

	entry := &domain.MemoryEntry{
		SiteID:       siteID,
		QuestionHash: req.Fingerprint,
		QuestionText: req.NormalizedQuestion,
		AnswerValue:  value,
		Evidence:     evidence.Link(),
		Confidence:   confidence,
		LastUpdated:  time.Now().UTC(),
	}

	err := o.memory.Upsert(upsertCtx, entry, expected)
	if domain.IsKind(err, domain.ErrMemoryConflict) {
		// One retry with re-read; a second conflict is an operator follow-up.
		current, lookupErr := o.memory.Lookup(upsertCtx, siteID, req.Fingerprint)
		if lookupErr == nil && current != nil {
			err = o.memory.Upsert(upsertCtx, entry, current.Version)
		}
	}
	if err != nil {
		o.logger.Warn("memory_upsert_conflict",
			"site_id", siteID,
			"question_hash", req.Fingerprint,
			"error", err,
		)
		return
	}

	if o.cache != nil {
		if err := o.cache.Invalidate(upsertCtx, siteID, req.Fingerprint); err != nil {
			o.logger.Warn("memory_cache_invalidate_failed", "site_id", siteID, "error", err)
		}
	}
}

func classifyRetrievalFailure(err error) domain.FailureReason {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ReasonTimeout
	}
	return domain.ReasonRetrievalUnavailable
}

// keyedMutex serializes work per string key. Entries are retained for the
// process lifetime; the key space is bounded by the site's question count.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) Lock(key string) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	k.mu.Unlock()
	lock.Lock()
}

func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	lock := k.locks[key]
	k.mu.Unlock()
	lock.Unlock()
}
