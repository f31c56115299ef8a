package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"

	"github.com/acdrainwiz/drainwiz/internal/platform/errors"
	"github.com/acdrainwiz/drainwiz/internal/platform/logging"
)

func TestChainAppliesMiddlewareInOrder(t *testing.T) {
	t.Parallel()

	called := ""
	mw1 := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called += "1"
			next.ServeHTTP(w, r)
		})
	}
	mw2 := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called += "2"
			next.ServeHTTP(w, r)
		})
	}

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called += "h"
		w.WriteHeader(http.StatusNoContent)
	}), mw1, nil, mw2)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNoContent)
	}
	if called != "12h" {
		t.Fatalf("call order = %q, want %q", called, "12h")
	}
}

func TestMethodNotAllowedWritesAllowHeaderAndStatus(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	MethodNotAllowed(http.MethodPost).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/checkout/intent", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusMethodNotAllowed)
	}
	if got := rr.Header().Get("Allow"); got != http.MethodPost {
		t.Fatalf("Allow = %q, want %q", got, http.MethodPost)
	}
}

func TestRequestIDAddsHeaderWhenMissing(t *testing.T) {
	t.Parallel()

	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" {
		t.Fatal("expected request id in context")
	}
	if got := rr.Header().Get(RequestIDHeader); got != seen {
		t.Fatalf("%s = %q, want %q", RequestIDHeader, got, seen)
	}
}

func TestRequestIDKeepsIncomingHeader(t *testing.T) {
	t.Parallel()

	h := RequestID()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get(RequestIDHeader); got != "req-123" {
		t.Fatalf("%s = %q, want %q", RequestIDHeader, got, "req-123")
	}
}

func TestRecoverPanicReturnsJSON500(t *testing.T) {
	t.Parallel()

	h := RecoverPanic(logging.Discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	if strings.Contains(rr.Body.String(), "boom") {
		t.Fatalf("panic value leaked into body: %q", rr.Body.String())
	}
}

func TestObserveRecordsStatus(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/products/{sku}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := Observe(logging.Discard())(mux)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/products/ADW-MINI", nil))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusTeapot)
	}
}

func TestWriteErrorUsesEnvelope(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	WriteError(rr, errors.WithMetadata(errors.CodeValidation, "internal detail", map[string]string{"email": "required"}))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnprocessableEntity)
	}
	var body ErrorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Code != string(errors.CodeValidation) {
		t.Fatalf("code = %q, want %q", body.Error.Code, errors.CodeValidation)
	}
	if body.Error.Fields["email"] != "required" {
		t.Fatalf("fields = %v, want email", body.Error.Fields)
	}
	if strings.Contains(rr.Body.String(), "internal detail") {
		t.Fatal("internal message leaked")
	}
}

type decodeTarget struct {
	Email string `json:"email" validate:"required,email"`
	Items []struct {
		SKU      string `json:"sku" validate:"required"`
		Quantity int    `json:"quantity" validate:"min=1,max=100"`
	} `json:"items" validate:"required,min=1,dive"`
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		body      string
		wantCode  errors.Code
		wantField string
	}{
		{name: "valid", body: `{"email":"a@example.com","items":[{"sku":"ADW-MINI","quantity":1}]}`},
		{name: "malformed", body: `{"email":`, wantCode: errors.CodeInvalidArgument},
		{name: "unknown field", body: `{"email":"a@example.com","price":1}`, wantCode: errors.CodeInvalidArgument},
		{name: "trailing data", body: `{"email":"a@example.com","items":[{"sku":"x","quantity":1}]} {}`, wantCode: errors.CodeInvalidArgument},
		{name: "bad email", body: `{"email":"nope","items":[{"sku":"x","quantity":1}]}`, wantCode: errors.CodeValidation, wantField: "email"},
		{name: "nested quantity", body: `{"email":"a@example.com","items":[{"sku":"x","quantity":0}]}`, wantCode: errors.CodeValidation, wantField: "items[0].quantity"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var dst decodeTarget
			err := DecodeJSON(httptest.NewRecorder(), req, &dst)
			if tc.wantCode == "" {
				if err != nil {
					t.Fatalf("decode: %v", err)
				}
				return
			}
			if got := errors.GetCode(err); got != tc.wantCode {
				t.Fatalf("code = %q, want %q (err %v)", got, tc.wantCode, err)
			}
			if tc.wantField != "" {
				if _, ok := errors.Fields(err)[tc.wantField]; !ok {
					t.Fatalf("fields = %v, want key %q", errors.Fields(err), tc.wantField)
				}
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	proxies, err := ParseProxies([]string{"10.0.0.0/8", "127.0.0.1"})
	if err != nil {
		t.Fatalf("parse proxies: %v", err)
	}
	policy := ProxyPolicy{TrustedProxies: proxies}

	tests := []struct {
		name      string
		remote    string
		forwarded string
		want      string
	}{
		{name: "direct", remote: "203.0.113.9:5000", want: "203.0.113.9"},
		{name: "untrusted peer ignores header", remote: "203.0.113.9:5000", forwarded: "198.51.100.1", want: "203.0.113.9"},
		{name: "trusted proxy", remote: "10.1.2.3:443", forwarded: "198.51.100.1, 10.1.2.3", want: "198.51.100.1"},
		{name: "trusted loopback bad header", remote: "127.0.0.1:80", forwarded: "garbage", want: "127.0.0.1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if got := policy.ClientIP(req); got != netip.MustParseAddr(tc.want) {
				t.Fatalf("ClientIP() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsHTTPSHonorsTrustedProxyOnly(t *testing.T) {
	t.Parallel()

	proxies, _ := ParseProxies([]string{"10.0.0.0/8"})
	policy := ProxyPolicy{TrustedProxies: proxies}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:1000"
	req.Header.Set("X-Forwarded-Proto", "https")
	if !policy.IsHTTPS(req) {
		t.Fatal("expected trusted proxy https")
	}
	req.RemoteAddr = "203.0.113.9:1000"
	if policy.IsHTTPS(req) {
		t.Fatal("expected untrusted header to be ignored")
	}
}
