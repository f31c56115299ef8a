package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
	"github.com/acdrainwiz/drainwiz/internal/platform/otel"
	"github.com/acdrainwiz/drainwiz/internal/platform/timeouts"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds Stripe credentials.
type Config struct {
	SecretKey      string `env:"DRAINWIZ_STRIPE_SECRET_KEY"`
	PublishableKey string `env:"DRAINWIZ_STRIPE_PUBLISHABLE_KEY"`
	WebhookSecret  string `env:"DRAINWIZ_STRIPE_WEBHOOK_SECRET"`
	// APIBase overrides the API host, for tests and stripe-mock.
	APIBase string `env:"DRAINWIZ_STRIPE_API_BASE"`
}

// Enabled reports whether checkout can create intents.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.SecretKey) != ""
}

// Stripe implements Gateway over Stripe Payment Intents.
type Stripe struct {
	intents       paymentintent.Client
	webhookSecret string
}

// NewStripe builds a Stripe gateway. A nil httpClient uses a client with
// the upstream timeout.
func NewStripe(cfg Config, httpClient *http.Client) *Stripe {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeouts.Upstream}
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
		MaxNetworkRetries: stripe.Int64(2),
	}
	if base := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/"); base != "" {
		backendCfg.URL = stripe.String(base)
		backendCfg.MaxNetworkRetries = stripe.Int64(0)
	}
	return &Stripe{
		intents: paymentintent.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Key: cfg.SecretKey,
		},
		webhookSecret: cfg.WebhookSecret,
	}
}

// CreateIntent creates a payment intent with automatic payment methods.
func (s *Stripe) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	ctx, span := otel.Tracer("payments").Start(ctx, "stripe.CreateIntent")
	defer span.End()
	span.SetAttributes(attribute.Int64("payments.amount_cents", req.AmountCents))

	if req.AmountCents <= 0 {
		return Intent{}, apperrors.New(apperrors.CodeInvalidArgument, "amount must be positive")
	}
	metadata, err := req.Metadata.Map()
	if err != nil {
		return Intent{}, err
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Shipping: &stripe.ShippingDetailsParams{
			Name: stripe.String(req.Shipping.Name),
			Address: &stripe.AddressParams{
				Line1:      stripe.String(req.Shipping.Line1),
				City:       stripe.String(req.Shipping.City),
				State:      stripe.String(req.Shipping.State),
				PostalCode: stripe.String(req.Shipping.PostalCode),
				Country:    stripe.String(req.Shipping.Country),
			},
		},
	}
	if req.Shipping.Line2 != "" {
		params.Shipping.Address.Line2 = stripe.String(req.Shipping.Line2)
	}
	if req.Shipping.Phone != "" {
		params.Shipping.Phone = stripe.String(req.Shipping.Phone)
	}
	if req.Email != "" {
		params.ReceiptEmail = stripe.String(req.Email)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	for key, value := range metadata {
		params.AddMetadata(key, value)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := s.intents.New(params)
	if err != nil {
		return Intent{}, stripeError("create payment intent", err)
	}
	span.SetAttributes(attribute.String("payments.intent_id", pi.ID))
	return intentFromStripe(pi)
}

// GetIntent fetches one payment intent.
func (s *Stripe) GetIntent(ctx context.Context, id string) (Intent, error) {
	ctx, span := otel.Tracer("payments").Start(ctx, "stripe.GetIntent")
	defer span.End()

	id = strings.TrimSpace(id)
	if !strings.HasPrefix(id, "pi_") {
		return Intent{}, apperrors.New(apperrors.CodeInvalidArgument, "invalid payment intent id")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.intents.Get(id, params)
	if err != nil {
		return Intent{}, stripeError("get payment intent", err)
	}
	return intentFromStripe(pi)
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event.
// Unknown event types come back with only ID and Type set.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (Event, error) {
	if strings.TrimSpace(s.webhookSecret) == "" {
		return Event{}, apperrors.New(apperrors.CodeUpstream, "webhook secret is not configured")
	}
	if strings.TrimSpace(signature) == "" {
		return Event{}, apperrors.New(apperrors.CodeWebhookSignature, "missing signature")
	}
	raw, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, apperrors.Wrap(apperrors.CodeWebhookSignature, "verify webhook", err)
	}
	return decodeEvent(raw)
}

func decodeEvent(raw stripe.Event) (Event, error) {
	event := Event{
		ID:      raw.ID,
		Type:    string(raw.Type),
		Created: time.Unix(raw.Created, 0).UTC(),
	}
	if raw.Data == nil {
		return event, nil
	}
	switch event.Type {
	case EventIntentSucceeded, EventIntentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw.Data.Raw, &pi); err != nil {
			return Event{}, apperrors.Wrap(apperrors.CodeInvalidArgument, "decode payment intent", err)
		}
		intent, err := intentFromStripe(&pi)
		if err != nil && event.Type == EventIntentSucceeded {
			return Event{}, apperrors.Wrap(apperrors.CodeInvalidArgument, "payment intent metadata", err)
		}
		event.Intent = &intent
		if pi.LastPaymentError != nil {
			event.FailureMessage = pi.LastPaymentError.Msg
		}
	case EventChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(raw.Data.Raw, &charge); err != nil {
			return Event{}, apperrors.Wrap(apperrors.CodeInvalidArgument, "decode charge", err)
		}
		refund := &Refund{
			ChargeID:       charge.ID,
			AmountRefunded: charge.AmountRefunded,
			FullyRefunded:  charge.Refunded,
		}
		if charge.PaymentIntent != nil {
			refund.PaymentIntentID = charge.PaymentIntent.ID
		}
		event.Refund = refund
	}
	return event, nil
}

// intentFromStripe converts a Stripe intent. Metadata errors are returned
// alongside the partially converted intent.
func intentFromStripe(pi *stripe.PaymentIntent) (Intent, error) {
	intent := Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
		Email:        pi.ReceiptEmail,
		CreatedAt:    time.Unix(pi.Created, 0).UTC(),
	}
	if pi.Shipping != nil {
		intent.Shipping.Name = pi.Shipping.Name
		intent.Shipping.Phone = pi.Shipping.Phone
		if a := pi.Shipping.Address; a != nil {
			intent.Shipping.Line1 = a.Line1
			intent.Shipping.Line2 = a.Line2
			intent.Shipping.City = a.City
			intent.Shipping.State = a.State
			intent.Shipping.PostalCode = a.PostalCode
			intent.Shipping.Country = a.Country
		}
	}
	metadata, err := ParseMetadata(pi.Metadata)
	if err != nil {
		return intent, fmt.Errorf("intent %s: %w", pi.ID, err)
	}
	intent.Metadata = metadata
	return intent, nil
}

func stripeError(op string, err error) error {
	var serr *stripe.Error
	if errors.As(err, &serr) {
		switch serr.Type {
		case stripe.ErrorTypeCard:
			return apperrors.Wrap(apperrors.CodePaymentFailed, op, err)
		case stripe.ErrorTypeInvalidRequest:
			if serr.HTTPStatusCode == http.StatusNotFound {
				return apperrors.Wrap(apperrors.CodeNotFound, op, err)
			}
			return apperrors.Wrap(apperrors.CodeInvalidArgument, op, err)
		}
	}
	return apperrors.Wrap(apperrors.CodeUpstream, op, err)
}
