package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/realvibe/site-copilot/internal/bootstrap"
	"github.com/realvibe/site-copilot/internal/config"
	"github.com/realvibe/site-copilot/internal/observability/logging"
	"github.com/realvibe/site-copilot/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipelineMetrics := metrics.NewPipelineMetrics("worker")
	app, err := bootstrap.New(ctx, cfg, pipelineMetrics, logger)
	if err != nil {
		logger.Error("bootstrap error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: pipelineMetrics.Handler(),
	}
	go func() {
		logger.Info("worker metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	runTimeout := time.Duration(cfg.RunTimeoutSeconds) * time.Second
	logger.Info("worker subscribed", "subject", cfg.NATSSubject, "queue_group", cfg.NATSQueueGroup)
	err = app.Queue.SubscribeRunRequested(ctx, func(handlerCtx context.Context, runID string) error {
		pipelineMetrics.StartRun()
		defer pipelineMetrics.EndRun()

		runCtx, cancel := context.WithTimeout(handlerCtx, runTimeout)
		defer cancel()

		if run, err := app.Runs.GetRun(runCtx, runID); err == nil {
			pipelineMetrics.ObserveQueueLag(time.Since(run.StartedAt))
		}
		return app.Orchestrator.Execute(runCtx, runID)
	})
	if err != nil {
		logger.Error("worker subscribe error", "error", err)
		os.Exit(1)
	}
}
