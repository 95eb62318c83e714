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

	"github.com/kirillkom/intake-triage/internal/bootstrap"
	"github.com/kirillkom/intake-triage/internal/config"
	"github.com/kirillkom/intake-triage/internal/core/domain"
	"github.com/kirillkom/intake-triage/internal/core/ports"
	"github.com/kirillkom/intake-triage/internal/core/usecase"
	"github.com/kirillkom/intake-triage/internal/observability/logging"
	"github.com/kirillkom/intake-triage/internal/observability/metrics"
)

const jobTimeout = 5 * time.Minute

type jobProcessor interface {
	ProcessJob(ctx context.Context, jobID string) (*domain.ProcessingJob, error)
}

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Logger:          logger,
		Escalation:      workerMetrics,
		Stages:          workerMetrics,
		IO:              workerMetrics,
		ObserveQueueLag: workerMetrics.ObserveQueueLag,
	})
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := startMetricsServer(cfg.WorkerMetricsPort, workerMetrics, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	handler := newJobHandler(app.Jobs, app.Queue, workerMetrics, cfg.JobRetryBackoff, logger)
	logger.Info("worker subscribed", "subject", cfg.NATSSubject, "queue_group", cfg.NATSQueueGroup)
	if err := app.Queue.SubscribeJobReady(ctx, handler); err != nil {
		logger.Error("worker subscribe error", "error", err)
		os.Exit(1)
	}
}

func startMetricsServer(port string, m *metrics.WorkerMetrics, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker metrics listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker metrics server error", "error", err)
		}
	}()
	return server
}

// newJobHandler processes one job-ready event. A job left waiting for a
// retry is republished after backoff without blocking the subscription.
func newJobHandler(
	jobs jobProcessor,
	queue ports.JobQueue,
	m *metrics.WorkerMetrics,
	backoff time.Duration,
	logger *slog.Logger,
) func(context.Context, string) error {
	return func(ctx context.Context, jobID string) error {
		processCtx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()

		m.StartJob()
		started := time.Now()
		job, err := jobs.ProcessJob(processCtx, jobID)
		m.FinishJob(time.Since(started), job, err)
		if err != nil {
			return err
		}
		if !usecase.AwaitingRetry(job) {
			return nil
		}

		logger.Info("requeueing job for retry",
			"job_id", job.ID,
			"stage", job.Stage,
			"attempt", job.Attempt,
			"backoff", backoff,
		)
		// The handler context ends with this message; the republish must not.
		publishCtx := context.WithoutCancel(ctx)
		stage := job.Stage
		time.AfterFunc(backoff, func() {
			if err := queue.PublishJobReady(publishCtx, job.ID); err != nil {
				logger.Error("requeue job failed", "job_id", job.ID, "error", err)
				return
			}
			m.RecordRetryRequeued(stage)
		})
		return nil
	}
}
