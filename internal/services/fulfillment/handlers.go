// Package fulfillment turns paid orders into ShipStation orders and
// customer confirmation emails. Both run as outbox event handlers.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/acdrainwiz/drainwiz/internal/platform/money"
	"github.com/acdrainwiz/drainwiz/internal/services/email"
	"github.com/acdrainwiz/drainwiz/internal/services/fulfillment/shipstation"
	"github.com/acdrainwiz/drainwiz/internal/services/orders"
	"github.com/acdrainwiz/drainwiz/internal/services/orders/storage"
	workerdomain "github.com/acdrainwiz/drainwiz/internal/services/worker/domain"
	"github.com/sirupsen/logrus"
)

// OrderStore is the slice of order persistence the handlers need.
type OrderStore interface {
	GetOrder(ctx context.Context, id string) (orders.Order, error)
	MarkFulfillmentSubmitted(ctx context.Context, id string, shipStationOrderID int64, at time.Time) error
}

// OrderCreator submits orders to the shipping platform.
type OrderCreator interface {
	CreateOrder(ctx context.Context, order shipstation.Order) (shipstation.CreatedOrder, error)
}

// Submitter handles order.fulfillment_requested.
type Submitter struct {
	Orders      OrderStore
	ShipStation OrderCreator
	Log         *logrus.Entry
	Clock       func() time.Time
}

// Handle submits the order named in the event and records the
// ShipStation order id.
func (s *Submitter) Handle(ctx context.Context, event storage.OutboxEvent) error {
	if s == nil || s.Orders == nil || s.ShipStation == nil {
		return workerdomain.Permanent(fmt.Errorf("fulfillment submitter is not configured"))
	}
	order, err := loadOrder(ctx, s.Orders, event)
	if err != nil {
		return err
	}
	switch order.Status {
	case orders.StatusRefunded:
		s.logger().WithField("order_id", order.ID).Info("skipping fulfillment for refunded order")
		return nil
	case orders.StatusFulfillmentSubmitted:
		return nil
	}

	created, err := s.ShipStation.CreateOrder(ctx, ShipStationOrder(order))
	if err != nil {
		return fmt.Errorf("submit order %s: %w", order.ID, err)
	}
	now := time.Now
	if s.Clock != nil {
		now = s.Clock
	}
	if err := s.Orders.MarkFulfillmentSubmitted(ctx, order.ID, created.OrderID, now().UTC()); err != nil {
		return fmt.Errorf("mark order %s submitted: %w", order.ID, err)
	}
	s.logger().WithFields(logrus.Fields{
		"order_id":             order.ID,
		"shipstation_order_id": created.OrderID,
	}).Info("order submitted for fulfillment")
	return nil
}

func (s *Submitter) logger() *logrus.Entry {
	if s.Log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return s.Log
}

// ShipStationOrder maps an order to a createorder body. The order id is
// the order key so resubmission updates rather than duplicates.
func ShipStationOrder(order orders.Order) shipstation.Order {
	address := shipstation.Address{
		Name:        order.ShipTo.Name,
		Street1:     order.ShipTo.Line1,
		Street2:     order.ShipTo.Line2,
		City:        order.ShipTo.City,
		State:       order.ShipTo.State,
		PostalCode:  order.ShipTo.PostalCode,
		Country:     order.ShipTo.Country,
		Phone:       order.ShipTo.Phone,
		Residential: true,
	}
	items := make([]shipstation.OrderItem, 0, len(order.Lines))
	for i, line := range order.Lines {
		items = append(items, shipstation.OrderItem{
			LineItemKey: fmt.Sprintf("%s-%d", order.ID, i+1),
			SKU:         line.SKU,
			Name:        line.Name,
			Quantity:    line.Quantity,
			UnitPrice:   shipstation.Cents(line.UnitCents),
			Weight:      shipstation.Ounces(line.WeightOz),
		})
	}
	created := order.CreatedAt.UTC().Format(time.RFC3339)
	return shipstation.Order{
		OrderNumber:              order.ID,
		OrderKey:                 order.ID,
		OrderDate:                created,
		PaymentDate:              created,
		OrderStatus:              "awaiting_shipment",
		CustomerEmail:            order.Email,
		BillTo:                   address,
		ShipTo:                   address,
		Items:                    items,
		AmountPaid:               shipstation.Cents(order.TotalCents),
		ShippingAmount:           shipstation.Cents(order.ShippingCents),
		RequestedShippingService: order.ServiceLevel,
		Weight:                   shipstation.Ounces(order.WeightOz()),
		AdvancedOptions: shipstation.AdvancedOptions{
			CustomField1: order.PaymentIntentID,
			CustomField2: order.Tier,
			Source:       "acdrainwiz.com",
		},
	}
}

// Confirmer handles order.confirmation_email.
type Confirmer struct {
	Orders OrderStore
	Sender email.Sender
	Log    *logrus.Entry
}

// Handle renders and sends the order confirmation.
func (c *Confirmer) Handle(ctx context.Context, event storage.OutboxEvent) error {
	if c == nil || c.Orders == nil || c.Sender == nil {
		return workerdomain.Permanent(fmt.Errorf("order confirmer is not configured"))
	}
	order, err := loadOrder(ctx, c.Orders, event)
	if err != nil {
		return err
	}
	if strings.TrimSpace(order.Email) == "" {
		return workerdomain.Permanent(fmt.Errorf("order %s has no email", order.ID))
	}
	msg, err := email.Compose(ctx, []string{order.Email}, Confirmation(order))
	if err != nil {
		return workerdomain.Permanent(err)
	}
	id, err := c.Sender.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("send confirmation for %s: %w", order.ID, err)
	}
	if c.Log != nil {
		c.Log.WithFields(logrus.Fields{"order_id": order.ID, "message_id": id}).Info("order confirmation sent")
	}
	return nil
}

// Confirmation builds the confirmation email template for order.
func Confirmation(order orders.Order) email.OrderConfirmation {
	currency := order.Currency
	if currency == "" {
		currency = "USD"
	}
	lines := make([]email.OrderLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, email.OrderLine{
			Name:     line.Name,
			Quantity: line.Quantity,
			Total:    money.Format(line.TotalCents(), currency),
		})
	}
	shipTo := []string{order.ShipTo.Name, order.ShipTo.Line1}
	if order.ShipTo.Line2 != "" {
		shipTo = append(shipTo, order.ShipTo.Line2)
	}
	shipTo = append(shipTo, fmt.Sprintf("%s, %s %s", order.ShipTo.City, order.ShipTo.State, order.ShipTo.PostalCode))
	return email.OrderConfirmation{
		OrderID:      order.ID,
		CustomerName: order.ShipTo.Name,
		Lines:        lines,
		Subtotal:     money.Format(order.SubtotalCents, currency),
		Shipping:     money.Format(order.ShippingCents, currency),
		Total:        money.Format(order.TotalCents, currency),
		ServiceLevel: order.ServiceLevel,
		ShipTo:       shipTo,
	}
}

func loadOrder(ctx context.Context, store OrderStore, event storage.OutboxEvent) (orders.Order, error) {
	payload, err := orders.DecodeEventPayload(event.PayloadJSON)
	if err != nil {
		return orders.Order{}, workerdomain.Permanent(err)
	}
	order, err := store.GetOrder(ctx, payload.OrderID)
	if errors.Is(err, storage.ErrNotFound) {
		return orders.Order{}, workerdomain.Permanent(fmt.Errorf("order %s not found", payload.OrderID))
	}
	if err != nil {
		return orders.Order{}, fmt.Errorf("load order %s: %w", payload.OrderID, err)
	}
	return order, nil
}
