package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/acdrainwiz/drainwiz/internal/services/orders"
	"github.com/acdrainwiz/drainwiz/internal/services/orders/storage"
)

const orderColumns = `
	id,
	payment_intent_id,
	checkout_id,
	email,
	tier,
	contractor_id,
	lines_json,
	subtotal_cents,
	shipping_cents,
	adjustment_cents,
	total_cents,
	currency,
	service_level,
	ship_to_json,
	status,
	shipstation_order_id,
	created_at,
	updated_at`

// CreateOrderWithOutbox inserts an order and its outbox events in one
// transaction. A second order for the same payment intent returns
// storage.ErrAlreadyExists.
func (s *Store) CreateOrderWithOutbox(ctx context.Context, order orders.Order, events []storage.OutboxEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if err := order.Validate(); err != nil {
		return err
	}
	linesJSON, err := json.Marshal(order.Lines)
	if err != nil {
		return fmt.Errorf("encode order lines: %w", err)
	}
	shipToJSON, err := json.Marshal(order.ShipTo)
	if err != nil {
		return fmt.Errorf("encode ship to: %w", err)
	}
	if order.Status == "" {
		order.Status = orders.StatusPaid
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start order transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
INSERT INTO orders (`+orderColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		order.ID,
		order.PaymentIntentID,
		order.CheckoutID,
		order.Email,
		order.Tier,
		order.ContractorID,
		string(linesJSON),
		order.SubtotalCents,
		order.ShippingCents,
		order.AdjustmentCents,
		order.TotalCents,
		order.Currency,
		order.ServiceLevel,
		string(shipToJSON),
		string(order.Status),
		order.ShipStationOrderID,
		toMillis(order.CreatedAt),
		toMillis(order.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("insert order: %w", err)
	}
	for _, event := range events {
		if err := enqueueOutboxEvent(ctx, tx, event); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order transaction: %w", err)
	}
	return nil
}

// GetOrder returns one order by id.
func (s *Store) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	return s.getOrderWhere(ctx, "id", id)
}

// GetOrderByPaymentIntent returns the order created for a payment intent.
func (s *Store) GetOrderByPaymentIntent(ctx context.Context, paymentIntentID string) (orders.Order, error) {
	return s.getOrderWhere(ctx, "payment_intent_id", paymentIntentID)
}

func (s *Store) getOrderWhere(ctx context.Context, column, value string) (orders.Order, error) {
	if err := ctx.Err(); err != nil {
		return orders.Order{}, err
	}
	if s == nil || s.sqlDB == nil {
		return orders.Order{}, fmt.Errorf("storage is not configured")
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return orders.Order{}, fmt.Errorf("%s is required", column)
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+column+` = ?`, value)
	order, err := scanOrder(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return orders.Order{}, storage.ErrNotFound
		}
		return orders.Order{}, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// ListOrders returns the newest orders first.
func (s *Store) ListOrders(ctx context.Context, limit int) ([]orders.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	out := make([]orders.Order, 0, limit)
	for rows.Next() {
		order, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return out, nil
}

// MarkFulfillmentSubmitted records the ShipStation order id on a paid order.
// Re-submitting an already submitted order with the same id is a no-op.
func (s *Store) MarkFulfillmentSubmitted(ctx context.Context, id string, shipStationOrderID int64, at time.Time) error {
	current, err := s.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == orders.StatusFulfillmentSubmitted && current.ShipStationOrderID == shipStationOrderID {
		return nil
	}
	if !orders.CanTransition(current.Status, orders.StatusFulfillmentSubmitted) {
		return orders.TransitionError(id, current.Status, orders.StatusFulfillmentSubmitted)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE orders
SET status = ?, shipstation_order_id = ?, updated_at = ?
WHERE id = ? AND status = ?
`,
		string(orders.StatusFulfillmentSubmitted),
		shipStationOrderID,
		toMillis(at),
		current.ID,
		string(orders.StatusPaid),
	)
	if err != nil {
		return fmt.Errorf("mark fulfillment submitted: %w", err)
	}
	return requireOneRow(result, "mark fulfillment submitted")
}

// MarkRefunded marks the order for a payment intent as refunded. Refunding
// twice is a no-op.
func (s *Store) MarkRefunded(ctx context.Context, paymentIntentID string, at time.Time) error {
	current, err := s.GetOrderByPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return err
	}
	if current.Status == orders.StatusRefunded {
		return nil
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE orders
SET status = ?, updated_at = ?
WHERE id = ? AND status <> ?
`,
		string(orders.StatusRefunded),
		toMillis(at),
		current.ID,
		string(orders.StatusRefunded),
	)
	if err != nil {
		return fmt.Errorf("mark refunded: %w", err)
	}
	return requireOneRow(result, "mark refunded")
}

// RecordWebhookEvent stores a processed webhook id and reports whether it
// had been seen before.
func (s *Store) RecordWebhookEvent(ctx context.Context, eventID, eventType string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return false, fmt.Errorf("event id is required")
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	result, err := s.sqlDB.ExecContext(ctx, `
INSERT OR IGNORE INTO webhook_events (event_id, event_type, received_at)
VALUES (?, ?, ?)
`, eventID, strings.TrimSpace(eventType), toMillis(at))
	if err != nil {
		return false, fmt.Errorf("record webhook event: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record webhook event rows affected: %w", err)
	}
	return inserted == 0, nil
}

// ForgetWebhookEvent removes a recorded webhook id so a failed delivery can
// be processed again when the sender retries.
func (s *Store) ForgetWebhookEvent(ctx context.Context, eventID string) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM webhook_events WHERE event_id = ?`, strings.TrimSpace(eventID)); err != nil {
		return fmt.Errorf("forget webhook event: %w", err)
	}
	return nil
}

type rowScanner func(dest ...any) error

func scanOrder(scan rowScanner) (orders.Order, error) {
	var (
		order      orders.Order
		linesJSON  string
		shipToJSON string
		status     string
		createdAt  int64
		updatedAt  int64
	)
	if err := scan(
		&order.ID,
		&order.PaymentIntentID,
		&order.CheckoutID,
		&order.Email,
		&order.Tier,
		&order.ContractorID,
		&linesJSON,
		&order.SubtotalCents,
		&order.ShippingCents,
		&order.AdjustmentCents,
		&order.TotalCents,
		&order.Currency,
		&order.ServiceLevel,
		&shipToJSON,
		&status,
		&order.ShipStationOrderID,
		&createdAt,
		&updatedAt,
	); err != nil {
		return orders.Order{}, err
	}
	if err := json.Unmarshal([]byte(linesJSON), &order.Lines); err != nil {
		return orders.Order{}, fmt.Errorf("decode order lines: %w", err)
	}
	if err := json.Unmarshal([]byte(shipToJSON), &order.ShipTo); err != nil {
		return orders.Order{}, fmt.Errorf("decode ship to: %w", err)
	}
	order.Status = orders.Status(status)
	order.CreatedAt = fromMillis(createdAt)
	order.UpdatedAt = fromMillis(updatedAt)
	return order, nil
}

func requireOneRow(result sql.Result, op string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
