package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/acdrainwiz/drainwiz/internal/platform/metrics"
	"github.com/acdrainwiz/drainwiz/internal/platform/otel"
	"github.com/acdrainwiz/drainwiz/internal/services/orders"
	"github.com/acdrainwiz/drainwiz/internal/services/orders/storage"
	workerdomain "github.com/acdrainwiz/drainwiz/internal/services/worker/domain"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultConsumer      = "worker-orders"
	defaultPollInterval  = 2 * time.Second
	defaultBatchSize     = 10
	defaultLeaseTTL      = 30 * time.Second
	defaultMaxAttempts   = 8
	defaultRetryBackoff  = 5 * time.Second
	defaultRetryMaxDelay = 5 * time.Minute
)

// Config controls outbox polling and retry behavior.
type Config struct {
	Consumer      string
	PollInterval  time.Duration
	BatchSize     int
	LeaseTTL      time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
}

func (c Config) normalized() Config {
	c.Consumer = strings.TrimSpace(c.Consumer)
	if c.Consumer == "" {
		c.Consumer = defaultConsumer
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaultLeaseTTL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = defaultRetryMaxDelay
	}
	if c.RetryMaxDelay < c.RetryBackoff {
		c.RetryMaxDelay = c.RetryBackoff
	}
	return c
}

// Attempt describes one processed event.
type Attempt struct {
	EventID      string
	EventType    string
	OrderID      string
	Outcome      storage.Outcome
	AttemptCount int
	Error        string
	Duration     time.Duration
	CreatedAt    time.Time
}

// AttemptRecorder stores attempt history. Failures are logged, never
// propagated into the ack path.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, attempt Attempt) error
}

// Loop leases outbox events and dispatches them to handlers.
type Loop struct {
	outbox   storage.OutboxStore
	attempts AttemptRecorder
	handlers map[string]workerdomain.EventHandler
	cfg      Config
	log      *logrus.Entry
	clock    func() time.Time
}

// New builds a worker loop.
func New(outbox storage.OutboxStore, attempts AttemptRecorder, handlers map[string]workerdomain.EventHandler, cfg Config, log *logrus.Entry) *Loop {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	cfg = cfg.normalized()
	return &Loop{
		outbox:   outbox,
		attempts: attempts,
		handlers: handlers,
		cfg:      cfg,
		log:      log.WithField("consumer", cfg.Consumer),
		clock:    time.Now,
	}
}

// Run polls until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	if l == nil || l.outbox == nil {
		return fmt.Errorf("worker outbox store is not configured")
	}
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := l.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.log.WithError(err).Warn("outbox poll failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce leases one batch and processes it, returning how many events
// were acknowledged.
func (l *Loop) RunOnce(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	events, err := l.outbox.LeaseOutboxEvents(ctx, l.cfg.Consumer, l.cfg.BatchSize, l.clock().UTC(), l.cfg.LeaseTTL)
	if err != nil {
		return 0, fmt.Errorf("lease outbox events: %w", err)
	}
	acked := 0
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return acked, err
		}
		if err := l.process(ctx, event); err != nil {
			l.log.WithError(err).WithField("event_id", event.ID).Warn("ack outbox event")
			continue
		}
		acked++
	}
	return acked, nil
}

func (l *Loop) process(ctx context.Context, event storage.OutboxEvent) error {
	ctx, span := otel.Tracer("worker").Start(ctx, "worker.handle")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.id", event.ID),
		attribute.String("event.type", event.EventType),
	)

	started := l.clock()
	attempt := event.AttemptCount + 1
	var handleErr error
	handler, ok := l.handlers[event.EventType]
	if !ok || handler == nil {
		handleErr = workerdomain.Permanent(fmt.Errorf("no handler for event type %q", event.EventType))
	} else {
		handleErr = handler.Handle(ctx, event)
	}
	duration := l.clock().Sub(started)

	outcome, nextAttemptAt := l.decide(handleErr, attempt)
	lastError := ""
	if handleErr != nil {
		lastError = handleErr.Error()
		span.RecordError(handleErr)
		span.SetStatus(codes.Error, lastError)
	}

	entry := l.log.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.EventType,
		"attempt":    attempt,
		"outcome":    string(outcome),
	})
	switch outcome {
	case storage.OutcomeSucceeded:
		entry.Info("outbox event processed")
	case storage.OutcomeRetry:
		entry.WithError(handleErr).WithField("next_attempt_at", nextAttemptAt).Warn("outbox event will retry")
	default:
		entry.WithError(handleErr).Error("outbox event dead-lettered")
	}
	metrics.OutboxEvents.WithLabelValues(event.EventType, string(outcome)).Inc()

	if err := l.outbox.AckOutboxEvent(ctx, event.ID, l.cfg.Consumer, outcome, nextAttemptAt, lastError); err != nil {
		return err
	}
	if l.attempts != nil {
		if err := l.attempts.RecordAttempt(ctx, Attempt{
			EventID:      event.ID,
			EventType:    event.EventType,
			OrderID:      eventOrderID(event),
			Outcome:      outcome,
			AttemptCount: attempt,
			Error:        lastError,
			Duration:     duration,
			CreatedAt:    l.clock().UTC(),
		}); err != nil {
			entry.WithError(err).Warn("record worker attempt")
		}
	}
	return nil
}

// eventOrderID is best effort; a payload the handler rejected still gets an
// attempt row, just without an order.
func eventOrderID(event storage.OutboxEvent) string {
	payload, err := orders.DecodeEventPayload(event.PayloadJSON)
	if err != nil {
		return ""
	}
	return payload.OrderID
}

func (l *Loop) decide(err error, attempt int) (storage.Outcome, time.Time) {
	switch {
	case err == nil:
		return storage.OutcomeSucceeded, time.Time{}
	case workerdomain.IsPermanent(err):
		return storage.OutcomeDead, time.Time{}
	case attempt >= l.cfg.MaxAttempts:
		return storage.OutcomeDead, time.Time{}
	}
	return storage.OutcomeRetry, l.clock().UTC().Add(retryDelay(l.cfg.RetryBackoff, l.cfg.RetryMaxDelay, attempt))
}

// retryDelay doubles base per prior attempt, capped at maxDelay.
func retryDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay || delay <= 0 {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}
