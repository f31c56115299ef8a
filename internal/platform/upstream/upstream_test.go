package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

var fastRetry = RetryPolicy{MaxTries: 3, MinWait: time.Millisecond, MaxWait: 5 * time.Millisecond}

func TestDoJSONRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		user, pass, _ := r.BasicAuth()
		if user != "key" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["name"]})
	}))
	defer srv.Close()

	c := New("test", srv.URL, WithRetryPolicy(fastRetry), WithBasicAuth("key", "secret"))
	var out map[string]string
	if err := c.DoJSON(context.Background(), http.MethodPost, "/things", map[string]string{"name": "mini"}, &out); err != nil {
		t.Fatalf("DoJSON: %v", err)
	}
	if out["echo"] != "mini" {
		t.Fatalf("echo = %q, want mini", out["echo"])
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestDoJSONDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"bad sku"}`))
	}))
	defer srv.Close()

	c := New("test", srv.URL, WithRetryPolicy(fastRetry), WithBearer("tok"))
	err := c.DoJSON(context.Background(), http.MethodPost, "/x", map[string]int{"a": 1}, nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusBadRequest || statusErr.Retryable() {
		t.Fatalf("status error = %+v", statusErr)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestDoJSONGivesUpAfterMaxTries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New("test", srv.URL, WithRetryPolicy(fastRetry))
	err := c.DoJSON(context.Background(), http.MethodGet, "/x", nil, nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("err = %v, want 429 status error", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestDoFormSendsBearerAndForm(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
			t.Errorf("content type = %q", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"secret": r.PostForm.Get("secret")})
	}))
	defer srv.Close()

	c := New("recaptcha", srv.URL, WithRetryPolicy(fastRetry))
	var out map[string]string
	if err := c.DoForm(context.Background(), "/verify", "secret=s3&response=tok", &out); err != nil {
		t.Fatalf("DoForm: %v", err)
	}
	if out["secret"] != "s3" {
		t.Fatalf("secret = %q", out["secret"])
	}
}
