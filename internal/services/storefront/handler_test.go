package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/acdrainwiz/drainwiz/internal/platform/assets/imagecdn"
	"github.com/acdrainwiz/drainwiz/internal/platform/blob"
	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
	"github.com/acdrainwiz/drainwiz/internal/platform/logging"
	"github.com/acdrainwiz/drainwiz/internal/platform/sessioncookie"
	"github.com/acdrainwiz/drainwiz/internal/services/account"
	"github.com/acdrainwiz/drainwiz/internal/services/account/magiclink"
	accountservice "github.com/acdrainwiz/drainwiz/internal/services/account/service"
	accountsqlite "github.com/acdrainwiz/drainwiz/internal/services/account/storage/sqlite"
	"github.com/acdrainwiz/drainwiz/internal/services/botdefense"
	"github.com/acdrainwiz/drainwiz/internal/services/catalog"
	"github.com/acdrainwiz/drainwiz/internal/services/checkout"
	"github.com/acdrainwiz/drainwiz/internal/services/email"
	"github.com/acdrainwiz/drainwiz/internal/services/forms"
	formssqlite "github.com/acdrainwiz/drainwiz/internal/services/forms/storage/sqlite"
	orderssqlite "github.com/acdrainwiz/drainwiz/internal/services/orders/storage/sqlite"
	"github.com/acdrainwiz/drainwiz/internal/services/payments"
	"github.com/acdrainwiz/drainwiz/internal/services/shipping"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []email.Message
}

func (s *recordingSender) Send(_ context.Context, msg email.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return "msg", nil
}

func (s *recordingSender) last(template string) (email.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sent) - 1; i >= 0; i-- {
		if s.sent[i].Template == template {
			return s.sent[i], true
		}
	}
	return email.Message{}, false
}

type fakeGateway struct {
	event    payments.Event
	parseErr error
}

func (g *fakeGateway) CreateIntent(_ context.Context, req payments.IntentRequest) (payments.Intent, error) {
	return payments.Intent{
		ID:           "pi_test",
		ClientSecret: "pi_test_secret_abc",
		AmountCents:  req.AmountCents,
		Currency:     req.Currency,
		Metadata:     req.Metadata,
	}, nil
}

func (g *fakeGateway) GetIntent(context.Context, string) (payments.Intent, error) {
	return payments.Intent{}, errors.New("not implemented")
}

func (g *fakeGateway) ParseWebhook(_ []byte, signature string) (payments.Event, error) {
	if signature == "" {
		return payments.Event{}, apperrors.New(apperrors.CodeWebhookSignature, "missing signature")
	}
	return g.event, g.parseErr
}

type fixture struct {
	handler  http.Handler
	gateway  *fakeGateway
	sender   *recordingSender
	accounts *accountservice.Service
	mu       sync.Mutex
	now      time.Time
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	log := logging.Discard()
	f := &fixture{
		gateway: &fakeGateway{},
		sender:  &recordingSender{},
		now:     time.Date(2026, 6, 2, 15, 0, 0, 0, time.UTC),
	}

	cat := catalog.Default()
	orderStore, err := orderssqlite.Open(ctx, filepath.Join(dir, "orders.db"))
	if err != nil {
		t.Fatalf("open orders: %v", err)
	}
	t.Cleanup(func() { _ = orderStore.Close() })
	formStore, err := formssqlite.Open(ctx, filepath.Join(dir, "forms.db"))
	if err != nil {
		t.Fatalf("open forms: %v", err)
	}
	t.Cleanup(func() { _ = formStore.Close() })
	accountStore, err := accountsqlite.Open(ctx, filepath.Join(dir, "accounts.db"))
	if err != nil {
		t.Fatalf("open accounts: %v", err)
	}
	t.Cleanup(func() { _ = accountStore.Close() })
	blobs, err := blob.NewLocal(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("blob: %v", err)
	}

	bots, err := botdefense.New(botdefense.Config{}, log, botdefense.WithClock(f.clock))
	if err != nil {
		t.Fatalf("botdefense: %v", err)
	}
	sessions, err := account.NewSessions("0123456789abcdef0123456789abcdef", time.Hour)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	f.accounts = accountservice.New(accountStore, f.sender, sessions, accountservice.Config{
		MagicLink: magiclink.Config{BaseURL: "https://acdrainwiz.com/auth/magic", TTL: 15 * time.Minute},
		SalesTo:   "sales@acdrainwiz.com",
	}, log)

	handler, err := NewHandler(Dependencies{
		Catalog:  cat,
		Checkout: checkout.NewService(cat, shipping.NewCalculator(cat, shipping.Options{Logger: log}), f.gateway, log),
		Webhooks: checkout.NewWebhooks(orderStore, cat, log),
		Payments: f.gateway,
		Orders:   orderStore,
		Forms:    forms.NewService(bots, formStore, blobs, f.sender, "sales@acdrainwiz.com", log),
		Bots:     bots,
		Accounts: f.accounts,
		CDN:      imagecdn.New("https://cdn.example.com/drainwiz"),
		Log:      log,
	})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	f.handler = handler
	return f
}

func (f *fixture) do(t *testing.T, method, target string, body string, headers map[string]string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.RemoteAddr = "203.0.113.7:51000"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}](t, rec).Error.Code
}

func TestHealthzAndStatic(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	rec := f.do(t, http.MethodGet, "/static/storefront.css", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), ".page") {
		t.Fatalf("static = %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}
	if rec := f.do(t, http.MethodGet, "/metrics", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
}

type productList struct {
	Tier     string        `json:"tier"`
	Products []productView `json:"products"`
}

func skus(list productList) []string {
	out := make([]string, 0, len(list.Products))
	for _, p := range list.Products {
		out = append(out, p.SKU)
	}
	return out
}

func TestProductsRetail(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/products", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	list := decode[productList](t, rec)
	if list.Tier != "retail" {
		t.Fatalf("tier = %q", list.Tier)
	}
	for _, p := range list.Products {
		if p.SKU == "ADW-MINI-10" {
			t.Fatal("contractor-only product listed for retail")
		}
		if p.SKU == "ADW-MINI" && (p.PriceDisplay != "$39.99" || p.ThumbURL == "") {
			t.Fatalf("mini = %+v", p)
		}
	}

	rec = f.do(t, http.MethodGet, "/api/products?q=sensor", "", nil)
	for _, sku := range skus(decode[productList](t, rec)) {
		if sku != "ADW-SENSOR" && sku != "ADW-COMBO" {
			t.Fatalf("search returned %s", sku)
		}
	}
}

func TestProductLookup(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/products/drain-wiz-mini", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("slug lookup = %d", rec.Code)
	}
	if got := decode[productView](t, rec); got.SKU != "ADW-MINI" || got.Description == "" {
		t.Fatalf("product = %+v", got)
	}
	if rec := f.do(t, http.MethodGet, "/api/products/ADW-MINI-10", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("hidden product = %d, want 404", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/products/NOPE", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown product = %d, want 404", rec.Code)
	}
}

func TestSetupSteps(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/products/ADW-SENSOR/setup?completed=power-off", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	progress := decode[catalog.SetupProgress](t, rec)
	var ids []string
	for _, step := range progress.Available {
		ids = append(ids, step.ID)
	}
	if strings.Join(ids, ",") != "mount-sensor,wire" {
		t.Fatalf("available = %v", ids)
	}
}

const cartJSON = `{"items":[{"sku":"ADW-MINI","quantity":2}],"destination":{"country":"US","state":"FL","postal_code":"33101"}}`

func TestCheckoutQuote(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/checkout/quote", cartJSON, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
	}
	priced := decode[checkout.Priced](t, rec)
	if priced.SubtotalCents != 7998 || priced.ShippingCents != 595 || priced.TotalCents != 8593 {
		t.Fatalf("priced = %+v", priced)
	}

	rec = f.do(t, http.MethodPost, "/api/shipping/quote", cartJSON, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"amount_display":"$5.95"`) {
		t.Fatalf("shipping quote = %d %s", rec.Code, rec.Body.String())
	}
}

func TestCheckoutQuoteRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{name: "zero quantity", body: `{"items":[{"sku":"ADW-MINI","quantity":0}],"destination":{"state":"FL","postal_code":"33101"}}`, status: http.StatusUnprocessableEntity, code: "VALIDATION_FAILED"},
		{name: "unknown field", body: `{"items":[],"price":1}`, status: http.StatusBadRequest, code: "INVALID_ARGUMENT"},
		{name: "contractor only", body: `{"items":[{"sku":"ADW-MINI-10","quantity":1}],"destination":{"state":"FL","postal_code":"33101"}}`, status: http.StatusConflict, code: "PRODUCT_UNAVAILABLE"},
		{name: "unserved", body: `{"items":[{"sku":"ADW-MINI","quantity":1}],"destination":{"country":"MX","postal_code":"01000"}}`, status: http.StatusBadRequest, code: "SHIPPING_DESTINATION_UNSUPPORTED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/checkout/quote", tt.body, nil)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			if got := errorCode(t, rec); got != tt.code {
				t.Fatalf("code = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestCheckoutIntent(t *testing.T) {
	f := newFixture(t)
	body := `{"checkout_id":"8f14e45f-ceea-467a-9575-6b3f1c2d9a10","email":"pat@example.com",` +
		`"items":[{"sku":"ADW-MINI","quantity":1}],` +
		`"shipping":{"name":"Pat","line1":"1 Main St","city":"Miami","state":"FL","postal_code":"33101"}}`
	rec := f.do(t, http.MethodPost, "/api/checkout/intent", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
	}
	intent := decode[checkout.Intent](t, rec)
	if intent.ClientSecret != "pi_test_secret_abc" || intent.TotalCents != 3999+595 {
		t.Fatalf("intent = %+v", intent)
	}
}

func TestWebhookRecordsOrder(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodGet, "/api/orders/pi_1", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("before webhook = %d, want 404", rec.Code)
	}

	f.gateway.event = payments.Event{
		ID:   "evt_1",
		Type: payments.EventIntentSucceeded,
		Intent: &payments.Intent{
			ID:          "pi_1",
			AmountCents: 3999 + 595,
			Currency:    "usd",
			Email:       "pat@example.com",
			Shipping:    payments.Address{Name: "Pat", Line1: "1 Main St", City: "Miami", State: "FL", PostalCode: "33101", Country: "US"},
			Metadata: payments.Metadata{
				CheckoutID:    "chk_1",
				Items:         []payments.LineRef{{PriceID: "price_adw_mini_retail", Quantity: 1}},
				ShippingCents: 595,
				ServiceLevel:  "ground",
				Tier:          "retail",
			},
		},
	}
	sig := map[string]string{"Stripe-Signature": "t=1,v1=abc"}
	rec := f.do(t, http.MethodPost, "/api/webhooks/stripe", `{"id":"evt_1"}`, sig)
	if rec.Code != http.StatusOK || decode[map[string]string](t, rec)["status"] != "processed" {
		t.Fatalf("webhook = %d %s", rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodPost, "/api/webhooks/stripe", `{"id":"evt_1"}`, sig)
	if decode[map[string]string](t, rec)["status"] != "duplicate" {
		t.Fatalf("redelivery = %s", rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/orders/pi_1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("order status = %d", rec.Code)
	}
	view := decode[orderStatusView](t, rec)
	if view.Status != "paid" || view.TotalDisplay != "$45.94" {
		t.Fatalf("order = %+v", view)
	}
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/webhooks/stripe", `{}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func (f *fixture) formToken(t *testing.T, form string) string {
	t.Helper()
	rec := f.do(t, http.MethodGet, "/api/forms/"+form+"/token", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("token = %d %s", rec.Code, rec.Body.String())
	}
	out := decode[struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expires_in"`
	}](t, rec)
	if out.Token == "" || out.ExpiresIn != 3600 {
		t.Fatalf("token response = %+v", out)
	}
	f.advance(10 * time.Second)
	return out.Token
}

func TestFormSubmissionJSON(t *testing.T) {
	f := newFixture(t)
	token := f.formToken(t, "contact")
	body := `{"csrf_token":"` + token + `","interactions":12,"fields":{"name":"Pat","email":"pat@example.com","message":"My drain line keeps clogging."}}`
	rec := f.do(t, http.MethodPost, "/api/forms/contact", body, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
	}
	if decode[map[string]string](t, rec)["id"] == "" {
		t.Fatal("missing submission id")
	}
	if _, ok := f.sender.last(email.TemplateFormNotification); !ok {
		t.Fatal("sales was not notified")
	}

	// The token is single use.
	rec = f.do(t, http.MethodPost, "/api/forms/contact", body, nil)
	if rec.Code != http.StatusUnprocessableEntity || errorCode(t, rec) != "SUBMISSION_REJECTED" {
		t.Fatalf("replay = %d %s", rec.Code, rec.Body.String())
	}
}

func TestFormSubmissionURLEncoded(t *testing.T) {
	f := newFixture(t)
	token := f.formToken(t, "warranty")
	values := url.Values{
		"csrf_token":   {token},
		"interactions": {"5"},
		"name":         {"Pat"},
		"email":        {"pat@example.com"},
		"product":      {"AC Drain Wiz Mini"},
		"issue":        {"Cap cracked after a year."},
	}
	rec := f.do(t, http.MethodPost, "/api/forms/warranty", values.Encode(), map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
	}
}

func TestFormSubmissionRejections(t *testing.T) {
	f := newFixture(t)
	token := f.formToken(t, "contact")
	honeypot := `{"csrf_token":"` + token + `","interactions":3,"fields":{"name":"Bot","email":"bot@example.com","message":"hi","website":"http://spam.example"}}`
	if rec := f.do(t, http.MethodPost, "/api/forms/contact", honeypot, nil); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("honeypot = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/forms/nope/token", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown form token = %d", rec.Code)
	}
}

var magicTokenPattern = regexp.MustCompile(`token=([A-Za-z0-9_-]+)`)

func TestContractorSignInFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token := f.formToken(t, account.SignupForm)
	signup := `{"email":"jo@coolair.com","name":"Jo Tech","company":"Cool Air LLC","state":"FL",` +
		`"license_number":"CAC1812345","csrf_token":"` + token + `","interactions":20}`
	rec := f.do(t, http.MethodPost, "/api/account/signup", signup, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("signup = %d %s", rec.Code, rec.Body.String())
	}
	created := decode[map[string]string](t, rec)
	if created["status"] != "pending" {
		t.Fatalf("signup response = %v", created)
	}
	if _, err := f.accounts.SetStatus(ctx, created["id"], account.StatusApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}

	rec = f.do(t, http.MethodPost, "/api/account/magic-link", `{"email":"JO@coolair.com"}`, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("magic link = %d", rec.Code)
	}
	f.accounts.Wait()
	msg, ok := f.sender.last(email.TemplateMagicLink)
	if !ok {
		t.Fatal("magic link email not sent")
	}
	match := magicTokenPattern.FindStringSubmatch(msg.Text)
	if match == nil {
		t.Fatalf("no token in %q", msg.Text)
	}

	rec = f.do(t, http.MethodGet, "/auth/magic?token="+match[1], "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Welcome back, Jo Tech") {
		t.Fatalf("landing = %d %s", rec.Code, rec.Body.String())
	}
	var session *http.Cookie
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == sessioncookie.Name {
			session = cookie
		}
	}
	if session == nil || !session.HttpOnly || session.Secure {
		t.Fatalf("session cookie = %+v", session)
	}

	rec = f.do(t, http.MethodGet, "/api/account/me", "", nil, session)
	if rec.Code != http.StatusOK {
		t.Fatalf("me = %d", rec.Code)
	}
	if me := decode[meView](t, rec); me.Tier != catalog.TierContractor || me.Contractor.Email != "jo@coolair.com" {
		t.Fatalf("me = %+v", me)
	}

	rec = f.do(t, http.MethodGet, "/api/products", "", nil, session)
	list := decode[productList](t, rec)
	if list.Tier != "contractor" || !strings.Contains(strings.Join(skus(list), ","), "ADW-MINI-10") {
		t.Fatalf("contractor products = %v", skus(list))
	}

	// The link is single use.
	rec = f.do(t, http.MethodGet, "/auth/magic?token="+match[1], "", nil)
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), "not valid") {
		t.Fatalf("reused link = %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, "/auth/logout", "", nil, session)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout = %d", rec.Code)
	}
	cleared := rec.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge >= 0 {
		t.Fatalf("logout cookies = %+v", cleared)
	}
}

func TestSignupRejectsBots(t *testing.T) {
	f := newFixture(t)
	signup := `{"email":"jo@coolair.com","name":"Jo","company":"Cool Air","state":"FL","license_number":"CAC1812345","interactions":2}`
	rec := f.do(t, http.MethodPost, "/api/account/signup", signup, nil)
	if rec.Code != http.StatusUnprocessableEntity || errorCode(t, rec) != "SUBMISSION_REJECTED" {
		t.Fatalf("signup without token = %d %s", rec.Code, rec.Body.String())
	}
}

func TestInvalidSignupsEarnReputationStrikes(t *testing.T) {
	f := newFixture(t)
	junk := `{"email":"not-an-email","website":"http://spam.example","interactions":0}`
	for i := 0; i < 3; i++ {
		rec := f.do(t, http.MethodPost, "/api/account/signup", junk, nil)
		if rec.Code != http.StatusUnprocessableEntity || errorCode(t, rec) != "SUBMISSION_REJECTED" {
			t.Fatalf("junk signup %d = %d %s", i, rec.Code, rec.Body.String())
		}
	}

	token := f.formToken(t, account.SignupForm)
	signup := `{"email":"jo@coolair.com","name":"Jo Tech","company":"Cool Air LLC","state":"FL",` +
		`"license_number":"CAC1812345","csrf_token":"` + token + `","interactions":20}`
	rec := f.do(t, http.MethodPost, "/api/account/signup", signup, nil)
	if rec.Code != http.StatusUnprocessableEntity || errorCode(t, rec) != "SUBMISSION_REJECTED" {
		t.Fatalf("signup after strikes = %d %s", rec.Code, rec.Body.String())
	}
}

func TestSignupValidatesAfterBotChecks(t *testing.T) {
	f := newFixture(t)
	token := f.formToken(t, account.SignupForm)
	signup := `{"email":"jo@coolair.com","name":"Jo Tech","company":"Cool Air LLC","state":"Florida",` +
		`"license_number":"CAC1812345","csrf_token":"` + token + `","interactions":20}`
	rec := f.do(t, http.MethodPost, "/api/account/signup", signup, nil)
	if errorCode(t, rec) != "VALIDATION_FAILED" {
		t.Fatalf("signup with bad state = %d %s", rec.Code, rec.Body.String())
	}
}

func TestMagicLinkRequestDoesNotRevealAccounts(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/account/magic-link", `{"email":"nobody@example.com"}`, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	f.accounts.Wait()
	if _, ok := f.sender.last(email.TemplateMagicLink); ok {
		t.Fatal("magic link sent to unknown address")
	}
}

func TestAccountRoutesRequireSession(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodGet, "/api/account/me", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("me = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/account/passkeys/register/begin", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("register begin = %d", rec.Code)
	}
	garbage := &http.Cookie{Name: sessioncookie.Name, Value: "not-a-jwt"}
	if rec := f.do(t, http.MethodGet, "/api/account/me", "", nil, garbage); rec.Code != http.StatusUnauthorized {
		t.Fatalf("me with garbage = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/auth/magic", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("empty magic token = %d", rec.Code)
	}
}

func TestPasskeyLoginBegin(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/account/passkeys/login/begin", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
	}
	ceremony := decode[accountservice.Ceremony](t, rec)
	if ceremony.SessionID == "" || len(ceremony.Options) == 0 {
		t.Fatalf("ceremony = %+v", ceremony)
	}
}
