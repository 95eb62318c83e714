package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/intake-triage/internal/core/domain"
	"github.com/kirillkom/intake-triage/internal/observability/metrics"
)

type processorFake struct {
	job *domain.ProcessingJob
	err error
}

func (f processorFake) ProcessJob(context.Context, string) (*domain.ProcessingJob, error) {
	return f.job, f.err
}

type queueFake struct {
	mu        sync.Mutex
	published []string
	done      chan struct{}
}

func (q *queueFake) PublishJobReady(_ context.Context, jobID string) error {
	q.mu.Lock()
	q.published = append(q.published, jobID)
	q.mu.Unlock()
	if q.done != nil {
		close(q.done)
	}
	return nil
}

func (q *queueFake) SubscribeJobReady(context.Context, func(context.Context, string) error) error {
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJobHandlerRequeuesRetryingJob(t *testing.T) {
	job := &domain.ProcessingJob{
		ID:      "job-1",
		Status:  domain.JobStatusInProgress,
		Stage:   domain.StageRisk,
		Attempt: 2,
		Errors:  []domain.JobError{{Stage: domain.StageRisk, Attempt: 1, Code: domain.CodeTemporary}},
	}
	queue := &queueFake{done: make(chan struct{})}
	handler := newJobHandler(processorFake{job: job}, queue, metrics.NewWorkerMetrics("test"), time.Millisecond, discardLogger())

	if err := handler(context.Background(), "job-1"); err != nil {
		t.Fatalf("handler() error = %v", err)
	}
	select {
	case <-queue.done:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for requeue")
	}
	if len(queue.published) != 1 || queue.published[0] != "job-1" {
		t.Fatalf("unexpected publishes: %v", queue.published)
	}
}

func TestJobHandlerDoesNotRequeueCompletedJob(t *testing.T) {
	job := &domain.ProcessingJob{
		ID:      "job-1",
		Status:  domain.JobStatusCompleted,
		Stage:   domain.StageCompleted,
		Attempt: 1,
		Errors:  []domain.JobError{{Stage: domain.StageRisk, Attempt: 1}},
	}
	queue := &queueFake{}
	handler := newJobHandler(processorFake{job: job}, queue, metrics.NewWorkerMetrics("test"), time.Millisecond, discardLogger())

	if err := handler(context.Background(), "job-1"); err != nil {
		t.Fatalf("handler() error = %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	queue.mu.Lock()
	defer queue.mu.Unlock()
	if len(queue.published) != 0 {
		t.Fatalf("expected no requeue, got %v", queue.published)
	}
}

func TestJobHandlerReturnsProcessingError(t *testing.T) {
	want := errors.New("store not ready")
	handler := newJobHandler(processorFake{err: want}, &queueFake{}, metrics.NewWorkerMetrics("test"), time.Millisecond, discardLogger())
	if err := handler(context.Background(), "job-1"); !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}
