package fulfillment

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/acdrainwiz/drainwiz/internal/platform/logging"
	"github.com/acdrainwiz/drainwiz/internal/services/email"
	"github.com/acdrainwiz/drainwiz/internal/services/fulfillment/shipstation"
	"github.com/acdrainwiz/drainwiz/internal/services/orders"
	"github.com/acdrainwiz/drainwiz/internal/services/orders/storage"
	"github.com/acdrainwiz/drainwiz/internal/services/payments"
	workerdomain "github.com/acdrainwiz/drainwiz/internal/services/worker/domain"
	"github.com/google/go-cmp/cmp"
)

type fakeOrders struct {
	orders    map[string]orders.Order
	marked    map[string]int64
	markErr   error
	getErr    error
	markCalls int
}

func (f *fakeOrders) GetOrder(_ context.Context, id string) (orders.Order, error) {
	if f.getErr != nil {
		return orders.Order{}, f.getErr
	}
	order, ok := f.orders[id]
	if !ok {
		return orders.Order{}, storage.ErrNotFound
	}
	return order, nil
}

func (f *fakeOrders) MarkFulfillmentSubmitted(_ context.Context, id string, ssID int64, _ time.Time) error {
	f.markCalls++
	if f.markErr != nil {
		return f.markErr
	}
	if f.marked == nil {
		f.marked = map[string]int64{}
	}
	f.marked[id] = ssID
	return nil
}

type fakeShipStation struct {
	got   []shipstation.Order
	err   error
	newID int64
}

func (f *fakeShipStation) CreateOrder(_ context.Context, order shipstation.Order) (shipstation.CreatedOrder, error) {
	f.got = append(f.got, order)
	if f.err != nil {
		return shipstation.CreatedOrder{}, f.err
	}
	return shipstation.CreatedOrder{OrderID: f.newID, OrderKey: order.OrderKey}, nil
}

type fakeSender struct {
	sent []email.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg email.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return "msg-1", nil
}

func sampleOrder() orders.Order {
	return orders.Order{
		ID:              "ord_1",
		PaymentIntentID: "pi_123",
		Email:           "pat@example.com",
		Tier:            "homeowner",
		Lines: []orders.Line{
			{SKU: "ACDW-MINI", Name: "AC Drain Wiz Mini", Quantity: 2, UnitCents: 9999, WeightOz: 8},
			{SKU: "ACDW-SENSOR", Name: "Drain Sensor", Quantity: 1, UnitCents: 4999, WeightOz: 4},
		},
		SubtotalCents: 24997,
		ShippingCents: 0,
		TotalCents:    24997,
		Currency:      "usd",
		ServiceLevel:  "ground",
		ShipTo: payments.Address{
			Name: "Pat Doe", Line1: "1 Main St", City: "Tampa", State: "FL", PostalCode: "33602", Country: "US",
		},
		Status:    orders.StatusPaid,
		CreatedAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func event(eventType, orderID string) storage.OutboxEvent {
	return storage.OutboxEvent{ID: "evt-1", EventType: eventType, PayloadJSON: orders.EncodeEventPayload(orderID)}
}

func TestSubmitterSubmitsAndMarks(t *testing.T) {
	store := &fakeOrders{orders: map[string]orders.Order{"ord_1": sampleOrder()}}
	ss := &fakeShipStation{newID: 777}
	s := &Submitter{Orders: store, ShipStation: ss, Log: logging.Discard()}

	if err := s.Handle(context.Background(), event(orders.EventFulfillmentRequested, "ord_1")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(ss.got) != 1 {
		t.Fatalf("create calls = %d, want 1", len(ss.got))
	}
	got := ss.got[0]
	if got.OrderKey != "ord_1" || got.OrderNumber != "ord_1" {
		t.Fatalf("order key/number = %q/%q", got.OrderKey, got.OrderNumber)
	}
	if got.Weight.Value != 20 {
		t.Fatalf("weight = %v, want 20", got.Weight.Value)
	}
	if got.Items[0].UnitPrice.StringFixed(2) != "99.99" {
		t.Fatalf("unit price = %s", got.Items[0].UnitPrice.StringFixed(2))
	}
	if got.AmountPaid.StringFixed(2) != "249.97" {
		t.Fatalf("amount paid = %s", got.AmountPaid.StringFixed(2))
	}
	if diff := cmp.Diff(map[string]int64{"ord_1": 777}, store.marked); diff != "" {
		t.Fatalf("marked mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitterSkipsSubmittedAndRefunded(t *testing.T) {
	for _, status := range []orders.Status{orders.StatusFulfillmentSubmitted, orders.StatusRefunded} {
		t.Run(string(status), func(t *testing.T) {
			order := sampleOrder()
			order.Status = status
			store := &fakeOrders{orders: map[string]orders.Order{"ord_1": order}}
			ss := &fakeShipStation{}
			s := &Submitter{Orders: store, ShipStation: ss, Log: logging.Discard()}
			if err := s.Handle(context.Background(), event(orders.EventFulfillmentRequested, "ord_1")); err != nil {
				t.Fatalf("handle: %v", err)
			}
			if len(ss.got) != 0 || store.markCalls != 0 {
				t.Fatalf("expected no side effects, got %d creates %d marks", len(ss.got), store.markCalls)
			}
		})
	}
}

func TestSubmitterErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		event         storage.OutboxEvent
		ssErr         error
		wantPermanent bool
	}{
		{name: "bad payload", event: storage.OutboxEvent{ID: "e", PayloadJSON: "{"}, wantPermanent: true},
		{name: "missing order", event: event(orders.EventFulfillmentRequested, "ord_missing"), wantPermanent: true},
		{name: "upstream outage", event: event(orders.EventFulfillmentRequested, "ord_1"), ssErr: errors.New("connection refused"), wantPermanent: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeOrders{orders: map[string]orders.Order{"ord_1": sampleOrder()}}
			s := &Submitter{Orders: store, ShipStation: &fakeShipStation{err: tt.ssErr}, Log: logging.Discard()}
			err := s.Handle(context.Background(), tt.event)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := workerdomain.IsPermanent(err); got != tt.wantPermanent {
				t.Fatalf("IsPermanent = %v, want %v (%v)", got, tt.wantPermanent, err)
			}
		})
	}
}

func TestConfirmerSendsEmail(t *testing.T) {
	store := &fakeOrders{orders: map[string]orders.Order{"ord_1": sampleOrder()}}
	sender := &fakeSender{}
	c := &Confirmer{Orders: store, Sender: sender, Log: logging.Discard()}

	if err := c.Handle(context.Background(), event(orders.EventConfirmationEmail, "ord_1")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(sender.sent))
	}
	msg := sender.sent[0]
	if diff := cmp.Diff([]string{"pat@example.com"}, msg.To); diff != "" {
		t.Fatalf("to mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(msg.Subject, "ord_1") {
		t.Fatalf("subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.Text, "$249.97") {
		t.Fatalf("text missing total: %q", msg.Text)
	}
}

func TestConfirmerRetriesSendFailure(t *testing.T) {
	store := &fakeOrders{orders: map[string]orders.Order{"ord_1": sampleOrder()}}
	c := &Confirmer{Orders: store, Sender: &fakeSender{err: errors.New("timeout")}}

	err := c.Handle(context.Background(), event(orders.EventConfirmationEmail, "ord_1"))
	if err == nil || workerdomain.IsPermanent(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestConfirmationTemplate(t *testing.T) {
	order := sampleOrder()
	order.ShipTo.Line2 = "Unit 4"
	tpl := Confirmation(order)
	want := []string{"Pat Doe", "1 Main St", "Unit 4", "Tampa, FL 33602"}
	if diff := cmp.Diff(want, tpl.ShipTo); diff != "" {
		t.Fatalf("ship to mismatch (-want +got):\n%s", diff)
	}
	if tpl.Lines[0].Total != "$199.98" || tpl.Total != "$249.97" {
		t.Fatalf("totals = %q %q", tpl.Lines[0].Total, tpl.Total)
	}
}
