package storefront

import (
	"errors"
	"io"
	"net/http"
	"time"

	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
	"github.com/acdrainwiz/drainwiz/internal/platform/httpx"
	"github.com/acdrainwiz/drainwiz/internal/platform/money"
	"github.com/acdrainwiz/drainwiz/internal/services/catalog"
	"github.com/acdrainwiz/drainwiz/internal/services/checkout"
	"github.com/acdrainwiz/drainwiz/internal/services/orders/storage"
	"github.com/acdrainwiz/drainwiz/internal/services/payments"
	"github.com/acdrainwiz/drainwiz/internal/services/shipping"
	"github.com/samber/lo"
)

// maxWebhookBytes bounds Stripe webhook payloads.
const maxWebhookBytes = 256 << 10

type cartItemBody struct {
	SKU      string `json:"sku" validate:"required,max=40"`
	Quantity int    `json:"quantity" validate:"min=1,max=100"`
}

type destinationBody struct {
	Country    string `json:"country" validate:"omitempty,len=2"`
	State      string `json:"state" validate:"max=3"`
	PostalCode string `json:"postal_code" validate:"required,max=10"`
}

type quoteBody struct {
	Items        []cartItemBody  `json:"items" validate:"required,min=1,max=25,dive"`
	Destination  destinationBody `json:"destination"`
	ServiceLevel string          `json:"service_level" validate:"omitempty,oneof=ground expedited"`
}

type addressBody struct {
	Name       string `json:"name" validate:"required,max=120"`
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2" validate:"max=200"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state" validate:"max=3"`
	PostalCode string `json:"postal_code" validate:"required,max=10"`
	Country    string `json:"country" validate:"omitempty,len=2"`
	Phone      string `json:"phone" validate:"max=40"`
}

type intentBody struct {
	CheckoutID   string         `json:"checkout_id" validate:"required,uuid"`
	Email        string         `json:"email" validate:"required,email,max=254"`
	Items        []cartItemBody `json:"items" validate:"required,min=1,max=25,dive"`
	Shipping     addressBody    `json:"shipping"`
	ServiceLevel string         `json:"service_level" validate:"omitempty,oneof=ground expedited"`
}

func cartItems(items []cartItemBody) []shipping.Item {
	return lo.Map(items, func(item cartItemBody, _ int) shipping.Item {
		return shipping.Item{SKU: item.SKU, Quantity: item.Quantity}
	})
}

func (h *handler) quoteCart(w http.ResponseWriter, r *http.Request) (checkout.Priced, bool) {
	var body quoteBody
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return checkout.Priced{}, false
	}
	level, err := shipping.ParseServiceLevel(body.ServiceLevel)
	if err != nil {
		h.writeError(w, r, err)
		return checkout.Priced{}, false
	}
	tier, _ := h.tier(r)
	priced, err := h.Checkout.Quote(r.Context(), checkout.Cart{
		Items: cartItems(body.Items),
		Destination: shipping.Destination{
			Country:    body.Destination.Country,
			State:      body.Destination.State,
			PostalCode: body.Destination.PostalCode,
		},
		ServiceLevel: level,
		Tier:         tier,
	})
	if err != nil {
		h.writeError(w, r, err)
		return checkout.Priced{}, false
	}
	return priced, true
}

func (h *handler) handleShippingQuote(w http.ResponseWriter, r *http.Request) {
	priced, ok := h.quoteCart(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"quote":          priced.Shipping,
		"amount_display": priced.ShippingDisplay,
		"subtotal_cents": priced.SubtotalCents,
	})
}

func (h *handler) handleCheckoutQuote(w http.ResponseWriter, r *http.Request) {
	priced, ok := h.quoteCart(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, r, http.StatusOK, priced)
}

func (h *handler) handleCheckoutIntent(w http.ResponseWriter, r *http.Request) {
	var body intentBody
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	level, err := shipping.ParseServiceLevel(body.ServiceLevel)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	tier, contractor := h.tier(r)
	intent, err := h.Checkout.CreateIntent(r.Context(), checkout.IntentRequest{
		CheckoutID: body.CheckoutID,
		Email:      body.Email,
		Cart: checkout.Cart{
			Items:        cartItems(body.Items),
			ServiceLevel: level,
			Tier:         tier,
		},
		ShipTo: payments.Address{
			Name:       body.Shipping.Name,
			Line1:      body.Shipping.Line1,
			Line2:      body.Shipping.Line2,
			City:       body.Shipping.City,
			State:      body.Shipping.State,
			PostalCode: body.Shipping.PostalCode,
			Country:    lo.CoalesceOrEmpty(body.Shipping.Country, "US"),
			Phone:      body.Shipping.Phone,
		},
		ContractorID: contractor.ID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, intent)
}

type orderStatusView struct {
	OrderID         string    `json:"order_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	Status          string    `json:"status"`
	Tier            string    `json:"tier"`
	Lines           []string  `json:"lines"`
	TotalCents      int64     `json:"total_cents"`
	TotalDisplay    string    `json:"total_display"`
	CreatedAt       time.Time `json:"created_at"`
}

// handleOrderStatus reports 404 until the payment webhook has recorded the
// order, which the confirmation page polls for.
func (h *handler) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	order, err := h.Orders.GetOrderByPaymentIntent(r.Context(), r.PathValue("payment_intent_id"))
	if errors.Is(err, storage.ErrNotFound) {
		h.writeError(w, r, apperrors.New(apperrors.CodeNotFound, "order not recorded yet"))
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	lines := make([]string, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, line.Name)
	}
	h.writeJSON(w, r, http.StatusOK, orderStatusView{
		OrderID:         order.ID,
		PaymentIntentID: order.PaymentIntentID,
		Status:          string(order.Status),
		Tier:            lo.CoalesceOrEmpty(order.Tier, string(catalog.TierRetail)),
		Lines:           lines,
		TotalCents:      order.TotalCents,
		TotalDisplay:    money.Format(order.TotalCents, order.Currency),
		CreatedAt:       order.CreatedAt,
	})
}

// handleStripeWebhook answers 5xx only when processing failed, so Stripe
// retries the delivery.
func (h *handler) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.Payments == nil {
		h.writeError(w, r, apperrors.New(apperrors.CodeUpstream, "payments are not configured"))
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		h.writeError(w, r, apperrors.Wrap(apperrors.CodeInvalidArgument, "read webhook body", err))
		return
	}
	event, err := h.Payments.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.requestLog(r).WithError(err).Warn("webhook rejected")
		h.writeError(w, r, err)
		return
	}
	result, err := h.Webhooks.Handle(r.Context(), event)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": result})
}
