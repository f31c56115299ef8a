package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlitemigrate "github.com/acdrainwiz/drainwiz/internal/platform/storage/sqlitemigrate"
	"github.com/acdrainwiz/drainwiz/internal/services/orders/storage"
)

const outboxColumns = `
	id,
	event_type,
	payload_json,
	dedupe_key,
	status,
	attempt_count,
	next_attempt_at,
	lease_owner,
	lease_expires_at,
	last_error,
	processed_at,
	created_at,
	updated_at`

type execContexter interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// EnqueueOutboxEvent stores one pending event. An event whose dedupe key
// already exists is ignored.
func (s *Store) EnqueueOutboxEvent(ctx context.Context, event storage.OutboxEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return enqueueOutboxEvent(ctx, s.sqlDB, event)
}

func enqueueOutboxEvent(ctx context.Context, exec execContexter, event storage.OutboxEvent) error {
	event.ID = strings.TrimSpace(event.ID)
	event.EventType = strings.TrimSpace(event.EventType)
	event.DedupeKey = strings.TrimSpace(event.DedupeKey)
	if event.ID == "" {
		return fmt.Errorf("event id is required")
	}
	if event.EventType == "" {
		return fmt.Errorf("event type is required")
	}
	if event.DedupeKey == "" {
		return fmt.Errorf("dedupe key is required")
	}
	if strings.TrimSpace(event.PayloadJSON) == "" {
		event.PayloadJSON = "{}"
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = event.CreatedAt
	}
	if event.NextAttemptAt.IsZero() {
		event.NextAttemptAt = event.CreatedAt
	}

	_, err := exec.ExecContext(ctx, `
INSERT INTO order_outbox (
	id, event_type, payload_json, dedupe_key, status, attempt_count,
	next_attempt_at, lease_owner, lease_expires_at, last_error, processed_at,
	created_at, updated_at
) VALUES (?, ?, ?, ?, ?, 0, ?, '', NULL, '', NULL, ?, ?)
ON CONFLICT(dedupe_key) DO NOTHING
`,
		event.ID,
		event.EventType,
		event.PayloadJSON,
		event.DedupeKey,
		storage.OutboxStatusPending,
		toMillis(event.NextAttemptAt),
		toMillis(event.CreatedAt),
		toMillis(event.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("enqueue outbox event %s: %w", event.ID, err)
	}
	return nil
}

// GetOutboxEvent returns one outbox event by id.
func (s *Store) GetOutboxEvent(ctx context.Context, id string) (storage.OutboxEvent, error) {
	if err := ctx.Err(); err != nil {
		return storage.OutboxEvent{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.OutboxEvent{}, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.OutboxEvent{}, fmt.Errorf("event id is required")
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+outboxColumns+` FROM order_outbox WHERE id = ?`, id)
	event, err := scanOutboxEvent(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.OutboxEvent{}, storage.ErrNotFound
		}
		return storage.OutboxEvent{}, fmt.Errorf("get outbox event: %w", err)
	}
	return event, nil
}

// LeaseOutboxEvents leases due events for one consumer. Pending events whose
// next attempt has arrived and leased events whose lease expired are both
// eligible.
func (s *Store) LeaseOutboxEvents(ctx context.Context, consumer string, limit int, now time.Time, leaseTTL time.Duration) ([]storage.OutboxEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return nil, fmt.Errorf("consumer is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	if leaseTTL <= 0 {
		return nil, fmt.Errorf("lease ttl must be greater than zero")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	now = now.UTC()
	leaseExpiresAt := now.Add(leaseTTL)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("start lease transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const dueClause = `(
	(status = ? AND next_attempt_at <= ?)
	OR
	(status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?)
)`
	rows, err := tx.QueryContext(ctx, `
SELECT id
FROM order_outbox
WHERE `+dueClause+`
ORDER BY next_attempt_at ASC, created_at ASC, id ASC
LIMIT ?
`,
		storage.OutboxStatusPending, toMillis(now),
		storage.OutboxStatusLeased, toMillis(now),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select lease candidates: %w", err)
	}
	candidateIDs := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if scanErr := rows.Scan(&id); scanErr != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan lease candidate: %w", scanErr)
		}
		candidateIDs = append(candidateIDs, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate lease candidates: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close lease candidates: %w", err)
	}

	leased := make([]storage.OutboxEvent, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		result, updateErr := tx.ExecContext(ctx, `
UPDATE order_outbox
SET status = ?, lease_owner = ?, lease_expires_at = ?, updated_at = ?
WHERE id = ? AND `+dueClause,
			storage.OutboxStatusLeased,
			consumer,
			toMillis(leaseExpiresAt),
			toMillis(now),
			id,
			storage.OutboxStatusPending, toMillis(now),
			storage.OutboxStatusLeased, toMillis(now),
		)
		if updateErr != nil {
			return nil, fmt.Errorf("lease outbox event %s: %w", id, updateErr)
		}
		rowsAffected, rowsErr := result.RowsAffected()
		if rowsErr != nil {
			return nil, fmt.Errorf("lease rows affected for %s: %w", id, rowsErr)
		}
		if rowsAffected == 0 {
			continue
		}
		row := tx.QueryRowContext(ctx, `SELECT `+outboxColumns+` FROM order_outbox WHERE id = ?`, id)
		event, scanErr := scanOutboxEvent(row.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan leased outbox event %s: %w", id, scanErr)
		}
		leased = append(leased, event)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit lease transaction: %w", err)
	}
	return leased, nil
}

// AckOutboxEvent records the outcome of one leased event. Only the current
// lease owner may acknowledge; anyone else gets storage.ErrNotFound.
func (s *Store) AckOutboxEvent(ctx context.Context, id, consumer string, outcome storage.Outcome, nextAttemptAt time.Time, lastError string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	consumer = strings.TrimSpace(consumer)
	lastError = strings.TrimSpace(lastError)
	if id == "" {
		return fmt.Errorf("event id is required")
	}
	if consumer == "" {
		return fmt.Errorf("consumer is required")
	}
	now := time.Now().UTC()

	var (
		result sql.Result
		err    error
	)
	switch outcome {
	case storage.OutcomeSucceeded:
		result, err = s.sqlDB.ExecContext(ctx, `
UPDATE order_outbox
SET
	status = ?,
	attempt_count = attempt_count + 1,
	lease_owner = '',
	lease_expires_at = NULL,
	last_error = '',
	processed_at = ?,
	updated_at = ?
WHERE id = ? AND status = ? AND lease_owner = ?
`,
			storage.OutboxStatusSucceeded, toMillis(now), toMillis(now),
			id, storage.OutboxStatusLeased, consumer,
		)
	case storage.OutcomeRetry:
		if nextAttemptAt.IsZero() {
			return fmt.Errorf("next attempt at is required")
		}
		result, err = s.sqlDB.ExecContext(ctx, `
UPDATE order_outbox
SET
	status = ?,
	attempt_count = attempt_count + 1,
	next_attempt_at = ?,
	lease_owner = '',
	lease_expires_at = NULL,
	last_error = ?,
	processed_at = NULL,
	updated_at = ?
WHERE id = ? AND status = ? AND lease_owner = ?
`,
			storage.OutboxStatusPending, toMillis(nextAttemptAt), lastError, toMillis(now),
			id, storage.OutboxStatusLeased, consumer,
		)
	case storage.OutcomeDead:
		result, err = s.sqlDB.ExecContext(ctx, `
UPDATE order_outbox
SET
	status = ?,
	attempt_count = attempt_count + 1,
	lease_owner = '',
	lease_expires_at = NULL,
	last_error = ?,
	processed_at = ?,
	updated_at = ?
WHERE id = ? AND status = ? AND lease_owner = ?
`,
			storage.OutboxStatusDead, lastError, toMillis(now), toMillis(now),
			id, storage.OutboxStatusLeased, consumer,
		)
	default:
		return fmt.Errorf("unknown outcome %q", outcome)
	}
	if err != nil {
		return fmt.Errorf("ack outbox event %s as %s: %w", id, outcome, err)
	}
	return requireOneRow(result, "ack outbox event")
}

// ListOutboxEvents returns events newest first, optionally filtered by status.
func (s *Store) ListOutboxEvents(ctx context.Context, status storage.OutboxStatus, limit int) ([]storage.OutboxEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+outboxColumns+`
FROM order_outbox
WHERE (? = '' OR status = ?)
ORDER BY created_at DESC, id DESC
LIMIT ?
`, string(status), string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list outbox events: %w", err)
	}
	defer rows.Close()

	events := make([]storage.OutboxEvent, 0, limit)
	for rows.Next() {
		event, err := scanOutboxEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox events: %w", err)
	}
	return events, nil
}

// RetryOutboxEvent moves a dead event back to pending, due immediately.
// Events in any other state return storage.ErrNotFound.
func (s *Store) RetryOutboxEvent(ctx context.Context, id string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("event id is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE order_outbox
SET
	status = ?,
	attempt_count = 0,
	next_attempt_at = ?,
	processed_at = NULL,
	updated_at = ?
WHERE id = ? AND status = ?
`,
		storage.OutboxStatusPending, toMillis(now), toMillis(now),
		id, storage.OutboxStatusDead,
	)
	if err != nil {
		return fmt.Errorf("retry outbox event: %w", err)
	}
	return requireOneRow(result, "retry outbox event")
}

func scanOutboxEvent(scan rowScanner) (storage.OutboxEvent, error) {
	var (
		event          storage.OutboxEvent
		status         string
		nextAttemptAt  int64
		leaseExpiresAt sql.NullInt64
		processedAt    sql.NullInt64
		createdAt      int64
		updatedAt      int64
	)
	if err := scan(
		&event.ID,
		&event.EventType,
		&event.PayloadJSON,
		&event.DedupeKey,
		&status,
		&event.AttemptCount,
		&nextAttemptAt,
		&event.LeaseOwner,
		&leaseExpiresAt,
		&event.LastError,
		&processedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.OutboxEvent{}, err
	}
	event.Status = storage.OutboxStatus(status)
	event.NextAttemptAt = fromMillis(nextAttemptAt)
	event.LeaseExpiresAt = sqlitemigrate.FromNullMillis(leaseExpiresAt)
	event.ProcessedAt = sqlitemigrate.FromNullMillis(processedAt)
	event.CreatedAt = fromMillis(createdAt)
	event.UpdatedAt = fromMillis(updatedAt)
	return event, nil
}
