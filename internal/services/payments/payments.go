// Package payments wraps the card processor used at checkout. Prices are
// always computed server-side; the processor only sees the final amount and
// a compact description of the cart in metadata.
package payments

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
)

// Webhook event types handled by the storefront.
const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
	EventChargeRefunded  = "charge.refunded"
)

// Metadata keys stored on every payment intent.
const (
	MetaCheckoutID    = "checkout_id"
	MetaItems         = "items"
	MetaShippingCents = "shipping_cents"
	MetaServiceLevel  = "service_level"
	MetaTier          = "tier"
	MetaContractorID  = "contractor_id"
)

// maxMetadataValue is the processor's limit on one metadata value.
const maxMetadataValue = 500

// Address is a shipping address.
type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// LineRef is one cart line as recorded on the intent.
type LineRef struct {
	PriceID  string
	Quantity int
}

// Metadata is the typed view of an intent's metadata.
type Metadata struct {
	CheckoutID    string
	Items         []LineRef
	ShippingCents int64
	ServiceLevel  string
	Tier          string
	ContractorID  string
}

// IntentRequest asks the processor for a new payment intent.
type IntentRequest struct {
	IdempotencyKey string
	AmountCents    int64
	Currency       string
	Email          string
	Description    string
	Shipping       Address
	Metadata       Metadata
}

// Intent is a payment intent as seen by the storefront.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	AmountCents  int64
	Currency     string
	Email        string
	Shipping     Address
	Metadata     Metadata
	CreatedAt    time.Time
}

// Event is a verified webhook event.
type Event struct {
	ID      string
	Type    string
	Created time.Time
	// Intent is set for payment_intent.* events.
	Intent *Intent
	// FailureMessage is set for payment_intent.payment_failed.
	FailureMessage string
	// Refund is set for charge.refunded.
	Refund *Refund
}

// Refund describes a refunded charge.
type Refund struct {
	ChargeID        string
	PaymentIntentID string
	AmountRefunded  int64
	FullyRefunded   bool
}

// Gateway is the payment processor surface the storefront depends on.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	GetIntent(ctx context.Context, id string) (Intent, error)
	ParseWebhook(payload []byte, signature string) (Event, error)
}

// EncodeItems renders cart lines as "price_id:qty,price_id:qty".
func EncodeItems(items []LineRef) (string, error) {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		priceID := strings.TrimSpace(item.PriceID)
		if priceID == "" || strings.ContainsAny(priceID, ":,") {
			return "", fmt.Errorf("invalid price id %q", item.PriceID)
		}
		if item.Quantity <= 0 {
			return "", fmt.Errorf("invalid quantity %d for %s", item.Quantity, priceID)
		}
		parts = append(parts, priceID+":"+strconv.Itoa(item.Quantity))
	}
	encoded := strings.Join(parts, ",")
	if len(encoded) > maxMetadataValue {
		return "", apperrors.New(apperrors.CodeInvalidArgument, "cart has too many distinct items")
	}
	return encoded, nil
}

// DecodeItems parses the output of EncodeItems.
func DecodeItems(value string) ([]LineRef, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("items metadata is empty")
	}
	parts := strings.Split(value, ",")
	items := make([]LineRef, 0, len(parts))
	for _, part := range parts {
		priceID, qty, ok := strings.Cut(part, ":")
		if !ok || strings.TrimSpace(priceID) == "" {
			return nil, fmt.Errorf("malformed item %q", part)
		}
		n, err := strconv.Atoi(qty)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("malformed quantity in %q", part)
		}
		items = append(items, LineRef{PriceID: strings.TrimSpace(priceID), Quantity: n})
	}
	return items, nil
}

// Map renders metadata as processor key/value pairs.
func (m Metadata) Map() (map[string]string, error) {
	items, err := EncodeItems(m.Items)
	if err != nil {
		return nil, err
	}
	out := map[string]string{
		MetaCheckoutID:    m.CheckoutID,
		MetaItems:         items,
		MetaShippingCents: strconv.FormatInt(m.ShippingCents, 10),
		MetaServiceLevel:  m.ServiceLevel,
		MetaTier:          m.Tier,
	}
	if m.ContractorID != "" {
		out[MetaContractorID] = m.ContractorID
	}
	return out, nil
}

// ParseMetadata reads metadata written by Map.
func ParseMetadata(values map[string]string) (Metadata, error) {
	items, err := DecodeItems(values[MetaItems])
	if err != nil {
		return Metadata{}, err
	}
	var shipping int64
	if raw := values[MetaShippingCents]; raw != "" {
		shipping, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || shipping < 0 {
			return Metadata{}, fmt.Errorf("malformed shipping_cents %q", raw)
		}
	}
	return Metadata{
		CheckoutID:    values[MetaCheckoutID],
		Items:         items,
		ShippingCents: shipping,
		ServiceLevel:  values[MetaServiceLevel],
		Tier:          values[MetaTier],
		ContractorID:  values[MetaContractorID],
	}, nil
}
