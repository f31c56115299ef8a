// Package orders models paid storefront orders and the events that drive
// their fulfillment.
package orders

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
	"github.com/acdrainwiz/drainwiz/internal/services/payments"
)

// Status is an order's lifecycle state.
type Status string

const (
	StatusPaid                 Status = "paid"
	StatusFulfillmentSubmitted Status = "fulfillment_submitted"
	StatusRefunded             Status = "refunded"
)

// Outbox event types emitted for a new order.
const (
	EventFulfillmentRequested = "order.fulfillment_requested"
	EventConfirmationEmail    = "order.confirmation_email"
)

// Line is one purchased product.
type Line struct {
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitCents int64  `json:"unit_cents"`
	WeightOz  int    `json:"weight_oz"`
}

// TotalCents is quantity times unit price.
func (l Line) TotalCents() int64 {
	return int64(l.Quantity) * l.UnitCents
}

// Order is a paid order.
type Order struct {
	ID                 string           `json:"id"`
	PaymentIntentID    string           `json:"payment_intent_id"`
	CheckoutID         string           `json:"checkout_id"`
	Email              string           `json:"email"`
	Tier               string           `json:"tier"`
	ContractorID       string           `json:"contractor_id,omitempty"`
	Lines              []Line           `json:"lines"`
	SubtotalCents      int64            `json:"subtotal_cents"`
	ShippingCents      int64            `json:"shipping_cents"`
	AdjustmentCents    int64            `json:"adjustment_cents,omitempty"`
	TotalCents         int64            `json:"total_cents"`
	Currency           string           `json:"currency"`
	ServiceLevel       string           `json:"service_level"`
	ShipTo             payments.Address `json:"ship_to"`
	Status             Status           `json:"status"`
	ShipStationOrderID int64            `json:"shipstation_order_id,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// WeightOz sums line weights.
func (o Order) WeightOz() int {
	total := 0
	for _, line := range o.Lines {
		total += line.WeightOz * line.Quantity
	}
	return total
}

// Validate checks that totals agree with the lines.
func (o Order) Validate() error {
	if strings.TrimSpace(o.ID) == "" {
		return fmt.Errorf("order id is required")
	}
	if strings.TrimSpace(o.PaymentIntentID) == "" {
		return fmt.Errorf("payment intent id is required")
	}
	if len(o.Lines) == 0 {
		return fmt.Errorf("order %s has no lines", o.ID)
	}
	var subtotal int64
	for _, line := range o.Lines {
		if line.Quantity <= 0 {
			return fmt.Errorf("order %s line %s has quantity %d", o.ID, line.SKU, line.Quantity)
		}
		subtotal += line.TotalCents()
	}
	if subtotal != o.SubtotalCents {
		return fmt.Errorf("order %s subtotal %d does not match lines %d", o.ID, o.SubtotalCents, subtotal)
	}
	if o.SubtotalCents+o.ShippingCents+o.AdjustmentCents != o.TotalCents {
		return fmt.Errorf("order %s total %d does not match subtotal, shipping and adjustment", o.ID, o.TotalCents)
	}
	return nil
}

// CanTransition reports whether an order may move from one status to another.
// Refunds are accepted from any state; fulfillment only follows payment.
func CanTransition(from, to Status) bool {
	switch to {
	case StatusRefunded:
		return from != StatusRefunded
	case StatusFulfillmentSubmitted:
		return from == StatusPaid
	default:
		return false
	}
}

// TransitionError reports a rejected status change.
func TransitionError(id string, from, to Status) error {
	return apperrors.WithMetadata(apperrors.CodeStatusTransition, "order status change not allowed", map[string]string{
		"order_id": id,
		"from":     string(from),
		"to":       string(to),
	})
}

// EventPayload is the body of every order outbox event.
type EventPayload struct {
	OrderID string `json:"order_id"`
}

// EncodeEventPayload renders the payload stored with an outbox event.
func EncodeEventPayload(orderID string) string {
	data, _ := json.Marshal(EventPayload{OrderID: orderID})
	return string(data)
}

// DecodeEventPayload parses an outbox payload.
func DecodeEventPayload(raw string) (EventPayload, error) {
	var payload EventPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return EventPayload{}, fmt.Errorf("decode order event payload: %w", err)
	}
	if strings.TrimSpace(payload.OrderID) == "" {
		return EventPayload{}, fmt.Errorf("order event payload has no order id")
	}
	return payload, nil
}

// DedupeKey identifies one event type for one order.
func DedupeKey(eventType, orderID string) string {
	return eventType + ":order:" + orderID + ":v1"
}
