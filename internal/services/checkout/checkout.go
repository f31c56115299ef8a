// Package checkout prices carts server-side, creates payment intents and
// turns successful payments into orders.
package checkout

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
	"github.com/acdrainwiz/drainwiz/internal/platform/money"
	"github.com/acdrainwiz/drainwiz/internal/services/catalog"
	"github.com/acdrainwiz/drainwiz/internal/services/payments"
	"github.com/acdrainwiz/drainwiz/internal/services/shipping"
	"github.com/sirupsen/logrus"
)

// Quoter prices shipping.
type Quoter interface {
	Quote(ctx context.Context, req shipping.QuoteRequest) (shipping.Quote, error)
}

// Cart is what the customer wants to buy and where it goes.
type Cart struct {
	Items        []shipping.Item
	Destination  shipping.Destination
	ServiceLevel shipping.ServiceLevel
	Tier         catalog.Tier
}

// Line is a priced cart line.
type Line struct {
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	PriceID      string `json:"-"`
	Quantity     int    `json:"quantity"`
	UnitCents    int64  `json:"unit_cents"`
	TotalCents   int64  `json:"total_cents"`
	UnitDisplay  string `json:"unit_display"`
	TotalDisplay string `json:"total_display"`
}

// Priced is a fully priced cart.
type Priced struct {
	Tier            catalog.Tier   `json:"tier"`
	Lines           []Line         `json:"lines"`
	SubtotalCents   int64          `json:"subtotal_cents"`
	ShippingCents   int64          `json:"shipping_cents"`
	TotalCents      int64          `json:"total_cents"`
	Currency        string         `json:"currency"`
	SubtotalDisplay string         `json:"subtotal_display"`
	ShippingDisplay string         `json:"shipping_display"`
	TotalDisplay    string         `json:"total_display"`
	Shipping        shipping.Quote `json:"shipping"`
}

// Service prices carts and opens payment intents.
type Service struct {
	catalog  *catalog.Catalog
	shipping Quoter
	gateway  payments.Gateway
	log      *logrus.Entry
}

// NewService builds a checkout service. gateway may be nil, in which case
// only quoting works.
func NewService(cat *catalog.Catalog, quoter Quoter, gateway payments.Gateway, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{catalog: cat, shipping: quoter, gateway: gateway, log: log}
}

// Quote prices cart. Prices always come from the catalog.
func (s *Service) Quote(ctx context.Context, cart Cart) (Priced, error) {
	tier := cart.Tier
	if tier == "" {
		tier = catalog.TierRetail
	}
	items, err := shipping.MergeItems(cart.Items)
	if err != nil {
		return Priced{}, err
	}

	priced := Priced{Tier: tier, Currency: money.DefaultCurrency.String()}
	for _, item := range items {
		product, err := s.catalog.Product(item.SKU)
		if err != nil {
			return Priced{}, err
		}
		unit, err := s.catalog.Price(product.SKU, tier)
		if err != nil {
			return Priced{}, err
		}
		priceID, err := s.catalog.PriceID(product.SKU, tier)
		if err != nil {
			return Priced{}, err
		}
		total := unit * int64(item.Quantity)
		priced.Lines = append(priced.Lines, Line{
			SKU:          product.SKU,
			Name:         product.Name,
			PriceID:      priceID,
			Quantity:     item.Quantity,
			UnitCents:    unit,
			TotalCents:   total,
			UnitDisplay:  money.Format(unit, priced.Currency),
			TotalDisplay: money.Format(total, priced.Currency),
		})
		priced.SubtotalCents += total
	}

	quote, err := s.shipping.Quote(ctx, shipping.QuoteRequest{
		Destination:   cart.Destination,
		Items:         items,
		ServiceLevel:  cart.ServiceLevel,
		SubtotalCents: priced.SubtotalCents,
	})
	if err != nil {
		return Priced{}, err
	}
	priced.Shipping = quote
	priced.ShippingCents = quote.AmountCents
	priced.TotalCents = priced.SubtotalCents + priced.ShippingCents
	priced.SubtotalDisplay = money.Format(priced.SubtotalCents, priced.Currency)
	priced.ShippingDisplay = money.Format(priced.ShippingCents, priced.Currency)
	priced.TotalDisplay = money.Format(priced.TotalCents, priced.Currency)
	return priced, nil
}

// IntentRequest starts payment for a cart.
type IntentRequest struct {
	CheckoutID   string
	Email        string
	Cart         Cart
	ShipTo       payments.Address
	ContractorID string
}

// Intent is what the browser needs to confirm payment.
type Intent struct {
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
	Priced
}

// CreateIntent prices the cart and opens a payment intent. CheckoutID is
// the idempotency key, so a retried submit returns the same intent.
func (s *Service) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if s.gateway == nil {
		return Intent{}, apperrors.New(apperrors.CodeUpstream, "payments are not configured")
	}
	req.Cart.Destination = shipping.Destination{
		Country:    req.ShipTo.Country,
		State:      req.ShipTo.State,
		PostalCode: req.ShipTo.PostalCode,
	}
	priced, err := s.Quote(ctx, req.Cart)
	if err != nil {
		return Intent{}, err
	}

	refs := make([]payments.LineRef, 0, len(priced.Lines))
	names := make([]string, 0, len(priced.Lines))
	for _, line := range priced.Lines {
		refs = append(refs, payments.LineRef{PriceID: line.PriceID, Quantity: line.Quantity})
		names = append(names, fmt.Sprintf("%s x%d", line.Name, line.Quantity))
	}
	contractorID := ""
	if priced.Tier == catalog.TierContractor {
		contractorID = req.ContractorID
	}
	intent, err := s.gateway.CreateIntent(ctx, payments.IntentRequest{
		IdempotencyKey: "checkout-" + req.CheckoutID,
		AmountCents:    priced.TotalCents,
		Currency:       strings.ToLower(priced.Currency),
		Email:          req.Email,
		Description:    "AC Drain Wiz: " + strings.Join(names, ", "),
		Shipping:       req.ShipTo,
		Metadata: payments.Metadata{
			CheckoutID:    req.CheckoutID,
			Items:         refs,
			ShippingCents: priced.ShippingCents,
			ServiceLevel:  string(priced.Shipping.ServiceLevel),
			Tier:          string(priced.Tier),
			ContractorID:  contractorID,
		},
	})
	if err != nil {
		return Intent{}, err
	}
	s.log.WithFields(logrus.Fields{
		"checkout_id":       req.CheckoutID,
		"payment_intent_id": intent.ID,
		"amount_cents":      priced.TotalCents,
		"tier":              string(priced.Tier),
	}).Info("payment intent created")
	return Intent{PaymentIntentID: intent.ID, ClientSecret: intent.ClientSecret, Priced: priced}, nil
}
