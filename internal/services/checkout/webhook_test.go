package checkout

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/acdrainwiz/drainwiz/internal/platform/logging"
	"github.com/acdrainwiz/drainwiz/internal/services/catalog"
	"github.com/acdrainwiz/drainwiz/internal/services/orders"
	"github.com/acdrainwiz/drainwiz/internal/services/orders/storage"
	"github.com/acdrainwiz/drainwiz/internal/services/orders/storage/sqlite"
	"github.com/acdrainwiz/drainwiz/internal/services/payments"
)

func openOrderStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "orders.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestWebhooks(store OrderStore) *Webhooks {
	h := NewWebhooks(store, catalog.Default(), logging.Discard())
	h.clock = func() time.Time { return time.Date(2026, 6, 2, 15, 0, 0, 0, time.UTC) }
	n := 0
	h.newID = func(prefix string) string {
		n++
		return fmt.Sprintf("%s_%d", prefix, n)
	}
	return h
}

func succeeded(eventID string) payments.Event {
	return payments.Event{
		ID:   eventID,
		Type: payments.EventIntentSucceeded,
		Intent: &payments.Intent{
			ID:          "pi_1",
			Status:      "succeeded",
			AmountCents: 2*3999 + 595,
			Currency:    "usd",
			Email:       "pat@example.com",
			Shipping:    payments.Address{Name: "Pat", Line1: "1 Main St", City: "Miami", State: "FL", PostalCode: "33101", Country: "US"},
			Metadata: payments.Metadata{
				CheckoutID:    "chk_1",
				Items:         []payments.LineRef{{PriceID: "price_adw_mini_retail", Quantity: 2}},
				ShippingCents: 595,
				ServiceLevel:  "ground",
				Tier:          "retail",
			},
		},
	}
}

func TestWebhookCreatesOrderWithOutbox(t *testing.T) {
	store := openOrderStore(t)
	h := newTestWebhooks(store)
	ctx := context.Background()

	result, err := h.Handle(ctx, succeeded("evt_stripe_1"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result != ResultProcessed {
		t.Fatalf("result = %q, want processed", result)
	}

	order, err := store.GetOrderByPaymentIntent(ctx, "pi_1")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.ID != "ord_1" || order.Status != orders.StatusPaid || order.Currency != "USD" {
		t.Fatalf("order = %+v", order)
	}
	if order.SubtotalCents != 7998 || order.TotalCents != 8593 || len(order.Lines) != 1 || order.Lines[0].WeightOz != 8 {
		t.Fatalf("order totals = %+v", order)
	}

	events, err := store.ListOutboxEvents(ctx, storage.OutboxStatusPending, 10)
	if err != nil {
		t.Fatalf("list outbox: %v", err)
	}
	types := map[string]bool{}
	for _, event := range events {
		types[event.EventType] = true
		if payload, err := orders.DecodeEventPayload(event.PayloadJSON); err != nil || payload.OrderID != "ord_1" {
			t.Fatalf("payload = %q (%v)", event.PayloadJSON, err)
		}
	}
	if len(events) != 2 || !types[orders.EventFulfillmentRequested] || !types[orders.EventConfirmationEmail] {
		t.Fatalf("outbox events = %+v", events)
	}
}

const discontinuedCatalog = `
products:
  - sku: ADW-MINI
    slug: drain-wiz-mini
    name: AC Drain Wiz Mini
    retail_cents: 3999
    contractor_cents: 2999
    weight_oz: 8
    discontinued: true
    prices:
      retail: price_adw_mini_retail
      contractor: price_adw_mini_contractor
`

func TestWebhookOrderForDiscontinuedProduct(t *testing.T) {
	cat, err := catalog.Parse([]byte(discontinuedCatalog))
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	store := openOrderStore(t)
	h := newTestWebhooks(store)
	h.catalog = cat
	ctx := context.Background()

	result, err := h.Handle(ctx, succeeded("evt_discontinued"))
	if err != nil || result != ResultProcessed {
		t.Fatalf("result = %q, %v; want processed", result, err)
	}
	order, err := store.GetOrderByPaymentIntent(ctx, "pi_1")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if len(order.Lines) != 1 || order.Lines[0].SKU != "ADW-MINI" || order.Lines[0].UnitCents != 3999 {
		t.Fatalf("lines = %+v", order.Lines)
	}
	if order.TotalCents != 8593 || order.AdjustmentCents != 0 {
		t.Fatalf("totals = %+v", order)
	}
}

func TestWebhookRecordsAmountCharged(t *testing.T) {
	store := openOrderStore(t)
	h := newTestWebhooks(store)
	ctx := context.Background()

	// Charged at an older, lower price.
	event := succeeded("evt_old_price")
	event.Intent.AmountCents = 2*3499 + 595
	if result, err := h.Handle(ctx, event); err != nil || result != ResultProcessed {
		t.Fatalf("result = %q, %v; want processed", result, err)
	}
	order, err := store.GetOrderByPaymentIntent(ctx, "pi_1")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.TotalCents != 7593 || order.SubtotalCents != 7998 || order.AdjustmentCents != -1000 {
		t.Fatalf("totals = subtotal %d adjustment %d total %d", order.SubtotalCents, order.AdjustmentCents, order.TotalCents)
	}
}

func TestWebhookDuplicates(t *testing.T) {
	store := openOrderStore(t)
	h := newTestWebhooks(store)
	ctx := context.Background()

	if _, err := h.Handle(ctx, succeeded("evt_a")); err != nil {
		t.Fatalf("first: %v", err)
	}
	result, err := h.Handle(ctx, succeeded("evt_a"))
	if err != nil || result != ResultDuplicate {
		t.Fatalf("same event = %q, %v; want duplicate", result, err)
	}
	// A different event for the same intent must not create a second order.
	result, err = h.Handle(ctx, succeeded("evt_b"))
	if err != nil || result != ResultDuplicate {
		t.Fatalf("same intent = %q, %v; want duplicate", result, err)
	}
	list, err := store.ListOrders(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("orders = %d, want 1", len(list))
	}
}

func TestWebhookUnknownPriceIsForgotten(t *testing.T) {
	store := openOrderStore(t)
	h := newTestWebhooks(store)
	ctx := context.Background()

	event := succeeded("evt_bad")
	event.Intent.Metadata.Items = []payments.LineRef{{PriceID: "price_gone", Quantity: 1}}
	if result, err := h.Handle(ctx, event); err == nil || result != ResultFailed {
		t.Fatalf("result = %q, %v; want failure", result, err)
	}
	// The event id was released, so a corrected retry is processed.
	event.Intent.Metadata.Items = []payments.LineRef{{PriceID: "price_adw_mini_retail", Quantity: 1}}
	if result, err := h.Handle(ctx, event); err != nil || result != ResultProcessed {
		t.Fatalf("retry = %q, %v; want processed", result, err)
	}
}

func TestWebhookRefund(t *testing.T) {
	store := openOrderStore(t)
	h := newTestWebhooks(store)
	ctx := context.Background()

	if _, err := h.Handle(ctx, succeeded("evt_pay")); err != nil {
		t.Fatalf("pay: %v", err)
	}
	refund := payments.Event{
		ID:     "evt_refund",
		Type:   payments.EventChargeRefunded,
		Refund: &payments.Refund{ChargeID: "ch_1", PaymentIntentID: "pi_1", AmountRefunded: 8593, FullyRefunded: true},
	}
	if result, err := h.Handle(ctx, refund); err != nil || result != ResultProcessed {
		t.Fatalf("refund = %q, %v", result, err)
	}
	order, err := store.GetOrderByPaymentIntent(ctx, "pi_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if order.Status != orders.StatusRefunded {
		t.Fatalf("status = %q, want refunded", order.Status)
	}

	unknown := payments.Event{
		ID:     "evt_refund_other",
		Type:   payments.EventChargeRefunded,
		Refund: &payments.Refund{PaymentIntentID: "pi_other", FullyRefunded: true},
	}
	if result, err := h.Handle(ctx, unknown); err != nil || result != ResultIgnored {
		t.Fatalf("unknown refund = %q, %v", result, err)
	}
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	h := newTestWebhooks(openOrderStore(t))
	result, err := h.Handle(context.Background(), payments.Event{ID: "evt_x", Type: "customer.created"})
	if err != nil || result != ResultIgnored {
		t.Fatalf("result = %q, %v", result, err)
	}
}

type failingStore struct {
	OrderStore
}

func (failingStore) RecordWebhookEvent(context.Context, string, string, time.Time) (bool, error) {
	return false, errors.New("disk full")
}

func TestWebhookRecordFailure(t *testing.T) {
	h := newTestWebhooks(failingStore{})
	if result, err := h.Handle(context.Background(), succeeded("evt")); err == nil || result != ResultFailed {
		t.Fatalf("result = %q, %v", result, err)
	}
}
