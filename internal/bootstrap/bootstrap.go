package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/realvibe/site-copilot/internal/config"
	"github.com/realvibe/site-copilot/internal/core/usecase"
	"github.com/realvibe/site-copilot/internal/infrastructure/cache/redis"
	"github.com/realvibe/site-copilot/internal/infrastructure/llm/ollama"
	"github.com/realvibe/site-copilot/internal/infrastructure/queue/nats"
	"github.com/realvibe/site-copilot/internal/infrastructure/repository/postgres"
	"github.com/realvibe/site-copilot/internal/infrastructure/resilience"
	"github.com/realvibe/site-copilot/internal/infrastructure/vector/qdrant"
)

// App wires infrastructure into the use cases both binaries share. The api
// process serves the run and review endpoints; the worker subscribes to the
// run queue and executes the pipeline.
type App struct {
	Config config.Config

	Queue        *nats.Queue
	Runs         *postgres.RunRepository
	Templates    *postgres.TemplateRepository
	Orchestrator *usecase.RunOrchestrator
	Review       *usecase.ReviewUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, metrics usecase.PipelineMetrics, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	runs := postgres.NewRunRepository(db)
	templates := postgres.NewTemplateRepository(db)
	memory := postgres.NewMemoryRepository(db)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		QueueGroup: cfg.NATSQueueGroup,
		Logger:     logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init run queue: %w", err)
	}

	memoryCache, err := redis.NewMemoryCache(
		cfg.RedisAddr,
		cfg.RedisPassword,
		cfg.RedisDB,
		time.Duration(cfg.MemoryCacheTTLSeconds)*time.Second,
	)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init memory cache: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig(), logger)
	embedder := ollama.New(cfg.OllamaURL, cfg.OllamaEmbedModel, ollama.Options{
		RequestsPerSecond:  cfg.OllamaRequestsPerSecond,
		Burst:              cfg.OllamaBurst,
		ResilienceExecutor: executor,
	})
	index := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, executor)

	p := cfg.Pipeline
	retriever := usecase.NewHybridRetriever(embedder, index, usecase.RetrievalConfig{
		LexicalWeight: p.LexicalWeight,
		VectorWeight:  p.VectorWeight,
		Candidates:    p.Candidates,
	})
	evidencer := usecase.NewEvidencer(usecase.EvidenceConfig{
		MinFusedScore: p.MinFusedScore,
	})
	mapper := usecase.NewFieldMapper(memory, memoryCache, p.ReuseThreshold, logger)
	scoring := usecase.ScoringConfig{
		ReviewThreshold:  p.ReviewThreshold,
		ReuseThreshold:   p.ReuseThreshold,
		AgreementBonus:   p.AgreementBonus,
		ShortSpanPenalty: p.ShortSpanPenalty,
	}

	orchestrator := usecase.NewRunOrchestrator(
		runs,
		templates,
		queue,
		mapper,
		retriever,
		evidencer,
		memory,
		memoryCache,
		scoring,
		usecase.OrchestratorConfig{
			Workers:      p.Workers,
			TopK:         p.TopK,
			StageTimeout: time.Duration(p.StageTimeoutSeconds) * time.Second,
		},
		metrics,
		logger,
	)
	review := usecase.NewReviewUseCase(runs)

	return &App{
		Config: cfg,

		Queue:        queue,
		Runs:         runs,
		Templates:    templates,
		Orchestrator: orchestrator,
		Review:       review,

		closeFn: func() {
			queue.Close()
			_ = memoryCache.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
