// Package storage defines the persistence contracts for orders and the
// order event outbox.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/acdrainwiz/drainwiz/internal/services/orders"
)

// ErrNotFound is returned when a record does not exist or a conditional
// update matched nothing.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists is returned on a unique constraint conflict.
var ErrAlreadyExists = errors.New("record already exists")

// OutboxStatus is an outbox event's processing state.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusLeased    OutboxStatus = "leased"
	OutboxStatusSucceeded OutboxStatus = "succeeded"
	OutboxStatusDead      OutboxStatus = "dead"
)

// ParseOutboxStatus validates a status filter. Empty means any.
func ParseOutboxStatus(value string) (OutboxStatus, bool) {
	switch status := OutboxStatus(value); status {
	case "", OutboxStatusPending, OutboxStatusLeased, OutboxStatusSucceeded, OutboxStatusDead:
		return status, true
	default:
		return "", false
	}
}

// Outcome is the result a worker reports when acknowledging an event.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeRetry     Outcome = "retry"
	OutcomeDead      Outcome = "dead"
)

// OutboxEvent is one durable side effect waiting to run.
type OutboxEvent struct {
	ID             string
	EventType      string
	PayloadJSON    string
	DedupeKey      string
	Status         OutboxStatus
	AttemptCount   int
	NextAttemptAt  time.Time
	LeaseOwner     string
	LeaseExpiresAt *time.Time
	LastError      string
	ProcessedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OrderStore persists orders and processed webhook ids.
type OrderStore interface {
	CreateOrderWithOutbox(ctx context.Context, order orders.Order, events []OutboxEvent) error
	GetOrder(ctx context.Context, id string) (orders.Order, error)
	GetOrderByPaymentIntent(ctx context.Context, paymentIntentID string) (orders.Order, error)
	ListOrders(ctx context.Context, limit int) ([]orders.Order, error)
	MarkFulfillmentSubmitted(ctx context.Context, id string, shipStationOrderID int64, at time.Time) error
	MarkRefunded(ctx context.Context, paymentIntentID string, at time.Time) error
	RecordWebhookEvent(ctx context.Context, eventID, eventType string, at time.Time) (alreadySeen bool, err error)
}

// OutboxStore leases and acknowledges outbox events.
type OutboxStore interface {
	EnqueueOutboxEvent(ctx context.Context, event OutboxEvent) error
	GetOutboxEvent(ctx context.Context, id string) (OutboxEvent, error)
	LeaseOutboxEvents(ctx context.Context, consumer string, limit int, now time.Time, leaseTTL time.Duration) ([]OutboxEvent, error)
	AckOutboxEvent(ctx context.Context, id, consumer string, outcome Outcome, nextAttemptAt time.Time, lastError string) error
	ListOutboxEvents(ctx context.Context, status OutboxStatus, limit int) ([]OutboxEvent, error)
	RetryOutboxEvent(ctx context.Context, id string, now time.Time) error
}
