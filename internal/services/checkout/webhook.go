package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
	"github.com/acdrainwiz/drainwiz/internal/platform/id"
	"github.com/acdrainwiz/drainwiz/internal/platform/metrics"
	"github.com/acdrainwiz/drainwiz/internal/services/catalog"
	"github.com/acdrainwiz/drainwiz/internal/services/orders"
	"github.com/acdrainwiz/drainwiz/internal/services/orders/storage"
	"github.com/acdrainwiz/drainwiz/internal/services/payments"
	"github.com/sirupsen/logrus"
)

// Webhook handling results.
const (
	ResultProcessed = "processed"
	ResultDuplicate = "duplicate"
	ResultIgnored   = "ignored"
	ResultFailed    = "failed"
)

// OrderStore is the order persistence the webhook handler needs.
type OrderStore interface {
	RecordWebhookEvent(ctx context.Context, eventID, eventType string, at time.Time) (bool, error)
	ForgetWebhookEvent(ctx context.Context, eventID string) error
	CreateOrderWithOutbox(ctx context.Context, order orders.Order, events []storage.OutboxEvent) error
	GetOrderByPaymentIntent(ctx context.Context, paymentIntentID string) (orders.Order, error)
	MarkRefunded(ctx context.Context, paymentIntentID string, at time.Time) error
}

// Webhooks turns verified payment events into order changes.
type Webhooks struct {
	store   OrderStore
	catalog *catalog.Catalog
	log     *logrus.Entry
	clock   func() time.Time
	newID   func(prefix string) string
}

// NewWebhooks builds the webhook handler.
func NewWebhooks(store OrderStore, cat *catalog.Catalog, log *logrus.Entry) *Webhooks {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Webhooks{store: store, catalog: cat, log: log, clock: time.Now, newID: id.New}
}

// Handle applies event once. A failed event is forgotten so the
// processor's retry is handled again.
func (h *Webhooks) Handle(ctx context.Context, event payments.Event) (string, error) {
	now := h.clock().UTC()
	log := h.log.WithFields(logrus.Fields{"event_id": event.ID, "event_type": event.Type})

	seen, err := h.store.RecordWebhookEvent(ctx, event.ID, event.Type, now)
	if err != nil {
		return h.count(event.Type, ResultFailed), fmt.Errorf("record webhook event: %w", err)
	}
	if seen {
		log.Debug("duplicate webhook event")
		return h.count(event.Type, ResultDuplicate), nil
	}

	result, err := h.apply(ctx, event, now, log)
	if err != nil {
		if forgetErr := h.store.ForgetWebhookEvent(ctx, event.ID); forgetErr != nil {
			log.WithError(forgetErr).Error("forget failed webhook event")
		}
		log.WithError(err).Error("webhook event failed")
		return h.count(event.Type, ResultFailed), err
	}
	return h.count(event.Type, result), nil
}

func (h *Webhooks) count(eventType, result string) string {
	metrics.WebhookEvents.WithLabelValues(eventType, result).Inc()
	return result
}

func (h *Webhooks) apply(ctx context.Context, event payments.Event, now time.Time, log *logrus.Entry) (string, error) {
	switch event.Type {
	case payments.EventIntentSucceeded:
		if event.Intent == nil {
			return "", apperrors.New(apperrors.CodeInvalidArgument, "event has no payment intent")
		}
		return h.createOrder(ctx, *event.Intent, now, log)
	case payments.EventIntentFailed:
		fields := logrus.Fields{"failure": event.FailureMessage}
		if event.Intent != nil {
			fields["payment_intent_id"] = event.Intent.ID
		}
		log.WithFields(fields).Warn("payment failed")
		return ResultProcessed, nil
	case payments.EventChargeRefunded:
		if event.Refund == nil || event.Refund.PaymentIntentID == "" {
			return ResultIgnored, nil
		}
		if !event.Refund.FullyRefunded {
			log.WithField("amount_refunded", event.Refund.AmountRefunded).Info("partial refund recorded upstream only")
			return ResultIgnored, nil
		}
		err := h.store.MarkRefunded(ctx, event.Refund.PaymentIntentID, now)
		if errors.Is(err, storage.ErrNotFound) {
			log.WithField("payment_intent_id", event.Refund.PaymentIntentID).Warn("refund for unknown or already refunded order")
			return ResultIgnored, nil
		}
		if err != nil {
			return "", fmt.Errorf("mark refunded: %w", err)
		}
		log.WithField("payment_intent_id", event.Refund.PaymentIntentID).Info("order refunded")
		return ResultProcessed, nil
	default:
		return ResultIgnored, nil
	}
}

func (h *Webhooks) createOrder(ctx context.Context, intent payments.Intent, now time.Time, log *logrus.Entry) (string, error) {
	if _, err := h.store.GetOrderByPaymentIntent(ctx, intent.ID); err == nil {
		return ResultDuplicate, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("lookup order: %w", err)
	}

	order, err := OrderFromIntent(h.catalog, intent)
	if err != nil {
		return "", err
	}
	order.ID = h.newID("ord")
	order.CreatedAt = now
	order.UpdatedAt = now
	if order.AdjustmentCents != 0 {
		log.WithFields(logrus.Fields{
			"payment_intent_id": intent.ID,
			"amount_cents":      order.TotalCents,
			"adjustment_cents":  order.AdjustmentCents,
		}).Warn("paid amount differs from current catalog prices")
	}

	events := make([]storage.OutboxEvent, 0, 2)
	for _, eventType := range []string{orders.EventFulfillmentRequested, orders.EventConfirmationEmail} {
		events = append(events, storage.OutboxEvent{
			ID:            h.newID("evt"),
			EventType:     eventType,
			PayloadJSON:   orders.EncodeEventPayload(order.ID),
			DedupeKey:     orders.DedupeKey(eventType, order.ID),
			Status:        storage.OutboxStatusPending,
			NextAttemptAt: now,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	if err := h.store.CreateOrderWithOutbox(ctx, order, events); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return ResultDuplicate, nil
		}
		return "", fmt.Errorf("create order: %w", err)
	}
	metrics.OrdersCreated.Inc()
	log.WithFields(logrus.Fields{
		"order_id":          order.ID,
		"payment_intent_id": intent.ID,
		"total_cents":       order.TotalCents,
	}).Info("order created")
	return ResultProcessed, nil
}

// OrderFromIntent rebuilds an order from a paid intent's metadata. Price
// ids are resolved through the SKU mapping and lines carry the catalog's
// list price for the mapped tier, discontinued or not. The total is the
// amount charged; any difference from the lines is kept as an adjustment.
func OrderFromIntent(cat *catalog.Catalog, intent payments.Intent) (orders.Order, error) {
	meta := intent.Metadata
	if len(meta.Items) == 0 {
		return orders.Order{}, apperrors.New(apperrors.CodeInvalidArgument, "payment intent has no items")
	}
	order := orders.Order{
		PaymentIntentID: intent.ID,
		CheckoutID:      meta.CheckoutID,
		Email:           intent.Email,
		Tier:            meta.Tier,
		ContractorID:    meta.ContractorID,
		ShippingCents:   meta.ShippingCents,
		Currency:        strings.ToUpper(intent.Currency),
		ServiceLevel:    meta.ServiceLevel,
		ShipTo:          intent.Shipping,
		Status:          orders.StatusPaid,
	}
	if order.Tier == "" {
		order.Tier = string(catalog.TierRetail)
	}
	for _, ref := range meta.Items {
		mapping, err := cat.ResolvePriceID(ref.PriceID)
		if err != nil {
			return orders.Order{}, err
		}
		product, err := cat.Product(mapping.SKU)
		if err != nil {
			return orders.Order{}, err
		}
		unit, ok := product.ListPriceCents(mapping.Tier)
		if !ok {
			return orders.Order{}, apperrors.WithMetadata(apperrors.CodeUnknownPrice, "price id has no catalog price", map[string]string{"price_id": ref.PriceID})
		}
		line := orders.Line{
			SKU:       product.SKU,
			Name:      product.Name,
			Quantity:  ref.Quantity,
			UnitCents: unit,
			WeightOz:  product.WeightOz,
		}
		order.Lines = append(order.Lines, line)
		order.SubtotalCents += line.TotalCents()
	}
	order.TotalCents = order.SubtotalCents + order.ShippingCents
	if intent.AmountCents > 0 && intent.AmountCents != order.TotalCents {
		order.AdjustmentCents = intent.AmountCents - order.TotalCents
		order.TotalCents = intent.AmountCents
	}
	return order, nil
}
