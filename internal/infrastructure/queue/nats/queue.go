package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/intake-triage/internal/core/domain"
	"github.com/kirillkom/intake-triage/internal/infrastructure/resilience"
)

const defaultQueueGroup = "triage-workers"

// jobReadyEvent is the wire payload of a job-ready message.
type jobReadyEvent struct {
	JobID       string    `json:"job_id"`
	PublishedAt time.Time `json:"published_at"`
}

type Queue struct {
	conn       *nats.Conn
	subject    string
	queueGroup string
	executor   *resilience.Executor
	logger     *slog.Logger
	observeLag func(time.Duration)
	now        func() time.Time
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	QueueGroup           string
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
	// ObserveLag receives publish-to-consume delay of each enveloped event.
	ObserveLag func(time.Duration)
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	group := strings.TrimSpace(options.QueueGroup)
	if group == "" {
		group = defaultQueueGroup
	}

	conn, err := nats.Connect(
		url,
		nats.Name("intake-triage"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:       conn,
		subject:    subject,
		queueGroup: group,
		executor:   options.ResilienceExecutor,
		logger:     logger,
		observeLag: options.ObserveLag,
		now:        time.Now,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishJobReady(ctx context.Context, jobID string) error {
	payload, err := encodeJobReady(jobReadyEvent{JobID: jobID, PublishedAt: q.now().UTC()})
	if err != nil {
		return err
	}

	err = q.executor.Execute(ctx, "queue.publish_job_ready", func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}, classifyNATSError)
	return wrapTemporaryIfNeeded(err)
}

// SubscribeJobReady blocks until ctx is done, then drains the subscription so
// in-flight handlers finish.
func (q *Queue) SubscribeJobReady(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, q.queueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		event, err := decodeJobReady(msg.Data)
		if err != nil {
			q.logger.Warn("dropping malformed job-ready message", "subject", msg.Subject, "error", err)
			return
		}
		if q.observeLag != nil && !event.PublishedAt.IsZero() {
			q.observeLag(q.now().Sub(event.PublishedAt))
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, event.JobID); err != nil {
			q.logger.Error("job-ready handler failed", "job_id", event.JobID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func encodeJobReady(event jobReadyEvent) ([]byte, error) {
	if strings.TrimSpace(event.JobID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "nats.encode_job_ready", errors.New("job id is required"))
	}
	out, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode job-ready event: %w", err)
	}
	return out, nil
}

// decodeJobReady also accepts a bare job id so events published by older
// producers are still consumed.
func decodeJobReady(data []byte) (jobReadyEvent, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return jobReadyEvent{}, errors.New("empty payload")
	}
	if !strings.HasPrefix(trimmed, "{") {
		return jobReadyEvent{JobID: trimmed}, nil
	}
	var event jobReadyEvent
	if err := json.Unmarshal([]byte(trimmed), &event); err != nil {
		return jobReadyEvent{}, fmt.Errorf("decode job-ready event: %w", err)
	}
	if strings.TrimSpace(event.JobID) == "" {
		return jobReadyEvent{}, errors.New("job id missing")
	}
	return event, nil
}
