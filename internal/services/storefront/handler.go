package storefront

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/acdrainwiz/drainwiz/internal/platform/assets/imagecdn"
	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
	"github.com/acdrainwiz/drainwiz/internal/platform/httpx"
	"github.com/acdrainwiz/drainwiz/internal/platform/metrics"
	"github.com/acdrainwiz/drainwiz/internal/platform/sessioncookie"
	"github.com/acdrainwiz/drainwiz/internal/services/account"
	accountservice "github.com/acdrainwiz/drainwiz/internal/services/account/service"
	"github.com/acdrainwiz/drainwiz/internal/services/botdefense"
	"github.com/acdrainwiz/drainwiz/internal/services/catalog"
	"github.com/acdrainwiz/drainwiz/internal/services/checkout"
	"github.com/acdrainwiz/drainwiz/internal/services/forms"
	"github.com/acdrainwiz/drainwiz/internal/services/orders"
	"github.com/acdrainwiz/drainwiz/internal/services/payments"
	"github.com/sirupsen/logrus"
)

//go:embed static
var assetsFS embed.FS

// OrderReader looks up orders recorded by the payment webhook.
type OrderReader interface {
	GetOrderByPaymentIntent(ctx context.Context, paymentIntentID string) (orders.Order, error)
}

// Dependencies are the services behind the storefront routes. Payments may
// be nil, in which case checkout intents and webhooks answer with an
// upstream error.
type Dependencies struct {
	Catalog  *catalog.Catalog
	Checkout *checkout.Service
	Webhooks *checkout.Webhooks
	Payments payments.Gateway
	Orders   OrderReader
	Forms    *forms.Service
	Bots     *botdefense.Pipeline
	Accounts *accountservice.Service
	CDN      imagecdn.CDN
	Proxies  httpx.ProxyPolicy
	Log      *logrus.Entry
}

type handler struct {
	Dependencies
	log *logrus.Entry
}

// NewHandler assembles the storefront routes behind the shared middleware.
func NewHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.Catalog == nil:
		return nil, errors.New("catalog is required")
	case deps.Checkout == nil || deps.Webhooks == nil:
		return nil, errors.New("checkout services are required")
	case deps.Orders == nil:
		return nil, errors.New("order reader is required")
	case deps.Forms == nil || deps.Bots == nil:
		return nil, errors.New("form services are required")
	case deps.Accounts == nil:
		return nil, errors.New("account service is required")
	}
	log := deps.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	h := &handler{Dependencies: deps, log: log}

	staticFS, err := fs.Sub(assetsFS, "static")
	if err != nil {
		return nil, fmt.Errorf("resolve static assets: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/products", h.handleProducts)
	mux.HandleFunc("GET /api/products/{sku}", h.handleProduct)
	mux.HandleFunc("GET /api/products/{sku}/setup", h.handleSetup)
	mux.HandleFunc("POST /api/shipping/quote", h.handleShippingQuote)

	mux.HandleFunc("POST /api/checkout/quote", h.handleCheckoutQuote)
	mux.HandleFunc("POST /api/checkout/intent", h.handleCheckoutIntent)
	mux.HandleFunc("GET /api/orders/{payment_intent_id}", h.handleOrderStatus)
	mux.HandleFunc("POST /api/webhooks/stripe", h.handleStripeWebhook)

	mux.HandleFunc("GET /api/forms/{form}/token", h.handleFormToken)
	mux.HandleFunc("POST /api/forms/{form}", h.handleFormSubmit)

	mux.HandleFunc("POST /api/account/signup", h.handleSignup)
	mux.HandleFunc("POST /api/account/magic-link", h.handleMagicLinkRequest)
	mux.HandleFunc("GET /api/account/me", h.handleMe)
	mux.HandleFunc("POST /api/account/passkeys/register/begin", h.handlePasskeyRegisterBegin)
	mux.HandleFunc("POST /api/account/passkeys/register/finish", h.handlePasskeyRegisterFinish)
	mux.HandleFunc("POST /api/account/passkeys/login/begin", h.handlePasskeyLoginBegin)
	mux.HandleFunc("POST /api/account/passkeys/login/finish", h.handlePasskeyLoginFinish)
	mux.HandleFunc("GET /auth/magic", h.handleMagicLink)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)

	return httpx.Chain(mux,
		httpx.RecoverPanic(log),
		httpx.RequestID(),
		httpx.Observe(log),
	), nil
}

// contractor returns the signed-in contractor, if any. A stale or
// suspended session is treated as anonymous.
func (h *handler) contractor(r *http.Request) (account.Contractor, bool) {
	token, ok := sessioncookie.Read(r)
	if !ok {
		return account.Contractor{}, false
	}
	contractor, err := h.Accounts.Authenticate(r.Context(), token)
	if err != nil {
		return account.Contractor{}, false
	}
	return contractor, true
}

// tier is contractor only for an approved, signed-in contractor.
func (h *handler) tier(r *http.Request) (catalog.Tier, account.Contractor) {
	contractor, ok := h.contractor(r)
	if ok && contractor.Approved() {
		return catalog.TierContractor, contractor
	}
	return catalog.TierRetail, account.Contractor{}
}

func (h *handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	if err := httpx.WriteJSON(w, status, payload); err != nil {
		h.requestLog(r).WithError(err).Warn("write response")
	}
}

// writeError logs server-side failures before writing the envelope.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if apperrors.HTTPStatus(err) >= http.StatusInternalServerError {
		h.requestLog(r).WithError(err).Error("request failed")
	}
	httpx.WriteError(w, err)
}

func (h *handler) requestLog(r *http.Request) *logrus.Entry {
	return h.log.WithFields(logrus.Fields{
		"request_id": r.Header.Get(httpx.RequestIDHeader),
		"path":       r.URL.Path,
	})
}
