// Package storage defines the worker's delivery attempt history.
package storage

import (
	"context"
	"time"
)

// AttemptRecord is one outbox delivery outcome as seen by the worker.
type AttemptRecord struct {
	ID           int64
	EventID      string
	EventType    string
	OrderID      string
	Consumer     string
	Outcome      string
	AttemptCount int
	LastError    string
	Duration     time.Duration
	CreatedAt    time.Time
}

// AttemptFilter narrows ListAttempts. Empty fields match everything.
type AttemptFilter struct {
	EventID string
	OrderID string
}

// OutcomeCount is the number of attempts per event type and outcome.
type OutcomeCount struct {
	EventType string
	Outcome   string
	Count     int
	// MaxDuration is the slowest attempt in the group.
	MaxDuration time.Duration
}

// AttemptStore persists worker processing attempts.
type AttemptStore interface {
	RecordAttempt(ctx context.Context, attempt AttemptRecord) error
	// ListAttempts returns newest attempts first.
	ListAttempts(ctx context.Context, filter AttemptFilter, limit int) ([]AttemptRecord, error)
	// SummarizeOutcomes groups attempts recorded at or after since.
	SummarizeOutcomes(ctx context.Context, since time.Time) ([]OutcomeCount, error)
}
