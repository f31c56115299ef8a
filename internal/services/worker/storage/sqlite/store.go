// Package sqlite stores worker attempt history in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sqlitemigrate "github.com/acdrainwiz/drainwiz/internal/platform/storage/sqlitemigrate"
	"github.com/acdrainwiz/drainwiz/internal/services/worker/storage"
	"github.com/acdrainwiz/drainwiz/internal/services/worker/storage/sqlite/migrations"
)

// Store keeps one row per processed outbox delivery.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.AttemptStore = (*Store)(nil)

// Open opens the worker database and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	sqlDB, err := sqlitemigrate.Open(ctx, path, migrations.FS, "")
	if err != nil {
		return nil, err
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// RecordAttempt appends one delivery outcome.
func (s *Store) RecordAttempt(ctx context.Context, attempt storage.AttemptRecord) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	attempt.EventID = strings.TrimSpace(attempt.EventID)
	attempt.EventType = strings.TrimSpace(attempt.EventType)
	attempt.OrderID = strings.TrimSpace(attempt.OrderID)
	attempt.Consumer = strings.TrimSpace(attempt.Consumer)
	attempt.Outcome = strings.TrimSpace(attempt.Outcome)
	attempt.LastError = strings.TrimSpace(attempt.LastError)
	switch {
	case attempt.EventID == "":
		return fmt.Errorf("event id is required")
	case attempt.EventType == "":
		return fmt.Errorf("event type is required")
	case attempt.Consumer == "":
		return fmt.Errorf("consumer is required")
	case attempt.Outcome == "":
		return fmt.Errorf("outcome is required")
	case attempt.Duration < 0:
		return fmt.Errorf("duration must not be negative")
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO worker_attempts (
	event_id, event_type, order_id, consumer, outcome, attempt_count, last_error, duration_ms, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		attempt.EventID,
		attempt.EventType,
		attempt.OrderID,
		attempt.Consumer,
		attempt.Outcome,
		attempt.AttemptCount,
		attempt.LastError,
		attempt.Duration.Milliseconds(),
		sqlitemigrate.ToMillis(attempt.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// ListAttempts returns attempts newest first, optionally for one event or
// one order.
func (s *Store) ListAttempts(ctx context.Context, filter storage.AttemptFilter, limit int) ([]storage.AttemptRecord, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	eventID := strings.TrimSpace(filter.EventID)
	orderID := strings.TrimSpace(filter.OrderID)

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, event_id, event_type, order_id, consumer, outcome, attempt_count, last_error, duration_ms, created_at
FROM worker_attempts
WHERE (? = '' OR event_id = ?) AND (? = '' OR order_id = ?)
ORDER BY created_at DESC, id DESC
LIMIT ?
`, eventID, eventID, orderID, orderID, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var records []storage.AttemptRecord
	for rows.Next() {
		var (
			record     storage.AttemptRecord
			durationMS int64
			createdAt  int64
		)
		if err := rows.Scan(
			&record.ID,
			&record.EventID,
			&record.EventType,
			&record.OrderID,
			&record.Consumer,
			&record.Outcome,
			&record.AttemptCount,
			&record.LastError,
			&durationMS,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		record.Duration = time.Duration(durationMS) * time.Millisecond
		record.CreatedAt = sqlitemigrate.FromMillis(createdAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return records, nil
}

// SummarizeOutcomes counts attempts since the given time, grouped by event
// type and outcome and ordered by both.
func (s *Store) SummarizeOutcomes(ctx context.Context, since time.Time) ([]storage.OutcomeCount, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT event_type, outcome, COUNT(*), MAX(duration_ms)
FROM worker_attempts
WHERE created_at >= ?
GROUP BY event_type, outcome
ORDER BY event_type, outcome
`, sqlitemigrate.ToMillis(since))
	if err != nil {
		return nil, fmt.Errorf("summarize attempts: %w", err)
	}
	defer rows.Close()

	var counts []storage.OutcomeCount
	for rows.Next() {
		var (
			count storage.OutcomeCount
			maxMS int64
		)
		if err := rows.Scan(&count.EventType, &count.Outcome, &count.Count, &maxMS); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		count.MaxDuration = time.Duration(maxMS) * time.Millisecond
		counts = append(counts, count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcome counts: %w", err)
	}
	return counts, nil
}
