package email

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/acdrainwiz/drainwiz/internal/platform/logging"
	"github.com/acdrainwiz/drainwiz/internal/platform/upstream"
	"github.com/google/go-cmp/cmp"
)

var fastRetry = upstream.WithRetryPolicy(upstream.RetryPolicy{MaxTries: 3, MinWait: time.Millisecond, MaxWait: 2 * time.Millisecond})

func TestResendSendPostsMessage(t *testing.T) {
	t.Parallel()

	var got resendRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/emails" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"id":"re_123"}`))
	}))
	defer server.Close()

	sender := NewSender(Config{APIKey: "re_key", BaseURL: server.URL, From: "Drain Wiz <orders@example.com>", ReplyTo: "help@example.com"}, logging.Discard(), fastRetry)
	id, err := sender.Send(context.Background(), Message{
		To:       []string{"buyer@example.com"},
		Subject:  "Hello",
		HTML:     "<p>Hi</p>",
		Text:     "Hi",
		Template: TemplateOrderConfirmation,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "re_123" {
		t.Fatalf("id = %q, want re_123", id)
	}
	if auth != "Bearer re_key" {
		t.Fatalf("authorization = %q", auth)
	}
	want := resendRequest{
		From:    "Drain Wiz <orders@example.com>",
		To:      []string{"buyer@example.com"},
		Subject: "Hello",
		HTML:    "<p>Hi</p>",
		Text:    "Hi",
		ReplyTo: "help@example.com",
		Tags:    []resendTag{{Name: "template", Value: TemplateOrderConfirmation}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestResendRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":"re_ok"}`))
	}))
	defer server.Close()

	sender := NewResend(Config{APIKey: "re_key", BaseURL: server.URL, From: "orders@example.com"}, fastRetry)
	id, err := sender.Send(context.Background(), Message{To: []string{"a@example.com"}, Subject: "s", Text: "t"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "re_ok" || calls.Load() != 3 {
		t.Fatalf("id = %q after %d calls", id, calls.Load())
	}
}

func TestResendDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid from"}`))
	}))
	defer server.Close()

	sender := NewResend(Config{APIKey: "re_key", BaseURL: server.URL}, fastRetry)
	_, err := sender.Send(context.Background(), Message{To: []string{"a@example.com"}, Subject: "s", Text: "t"})
	var statusErr *upstream.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("err = %v, want 422 status error", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestLogSenderAndValidation(t *testing.T) {
	t.Parallel()

	sender := NewSender(Config{}, logging.Discard())
	if _, ok := sender.(*LogSender); !ok {
		t.Fatalf("sender = %T, want *LogSender", sender)
	}
	id, err := sender.Send(context.Background(), Message{To: []string{"a@example.com"}, Subject: "s", Text: "t"})
	if err != nil || !strings.HasPrefix(id, "log_") {
		t.Fatalf("Send = %q, %v", id, err)
	}

	bad := []Message{
		{Subject: "s", Text: "t"},
		{To: []string{"nobody"}, Subject: "s", Text: "t"},
		{To: []string{"a@example.com"}, Text: "t"},
		{To: []string{"a@example.com"}, Subject: "s"},
	}
	for _, msg := range bad {
		if _, err := sender.Send(context.Background(), msg); err == nil {
			t.Fatalf("Send(%+v) expected error", msg)
		}
	}
}

func TestComposeOrderConfirmation(t *testing.T) {
	t.Parallel()

	msg, err := Compose(context.Background(), []string{"buyer@example.com"}, OrderConfirmation{
		OrderID:      "ord_1",
		CustomerName: "Dana <b>Buyer</b>",
		Lines:        []OrderLine{{Name: "AC Drain Wiz Mini", Quantity: 2, Total: "$79.98"}},
		Subtotal:     "$79.98",
		Shipping:     "$5.95",
		Total:        "$85.93",
		ServiceLevel: "ground",
		ShipTo:       []string{"Dana Buyer", "1 Main St", "Tampa, FL 33602"},
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if msg.Subject != "Your AC Drain Wiz order ord_1" || msg.Template != TemplateOrderConfirmation {
		t.Fatalf("msg = %+v", msg)
	}
	for _, want := range []string{"<!doctype html>", "AC Drain Wiz Mini", "$85.93", "Tampa, FL 33602"} {
		if !strings.Contains(msg.HTML, want) {
			t.Fatalf("html missing %q:\n%s", want, msg.HTML)
		}
	}
	if strings.Contains(msg.HTML, "<b>") {
		t.Fatalf("html not escaped:\n%s", msg.HTML)
	}
	if !strings.Contains(msg.Text, "Total: $85.93") || !strings.Contains(msg.Text, "Hi Dana,") {
		t.Fatalf("text = %q", msg.Text)
	}
}

func TestComposeMagicLinkSanitizesURL(t *testing.T) {
	t.Parallel()

	msg, err := Compose(context.Background(), []string{"c@example.com"}, MagicLink{Name: "Chris", URL: "https://acdrainwiz.com/auth/magic?token=abc", TTL: 15 * time.Minute})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if !strings.Contains(msg.HTML, `href="https://acdrainwiz.com/auth/magic?token=abc"`) {
		t.Fatalf("html missing link:\n%s", msg.HTML)
	}
	if !strings.Contains(msg.Text, "expires in 15 minutes") {
		t.Fatalf("text = %q", msg.Text)
	}

	evil, err := Compose(context.Background(), []string{"c@example.com"}, MagicLink{Name: "Chris", URL: "javascript:alert(1)", TTL: time.Minute})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if strings.Contains(evil.HTML, "javascript:") {
		t.Fatalf("unsafe url rendered:\n%s", evil.HTML)
	}
}

func TestComposeFormNotificationAndApplication(t *testing.T) {
	t.Parallel()

	msg, err := Compose(context.Background(), []string{"sales@example.com"}, FormNotification{
		Form:         "contact",
		Title:        "Contact",
		SubmissionID: "sub_1",
		Fields:       []Field{{Label: "Email", Value: "a@example.com"}, {Label: "Message", Value: "Line one\nLine two"}},
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if msg.Subject != "New Contact submission" || !strings.Contains(msg.Text, "Message: Line one\nLine two") {
		t.Fatalf("msg = %+v", msg)
	}

	app, err := Compose(context.Background(), []string{"c@example.com"}, ApplicationReceived{Name: "", Company: "Cool Air LLC"})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if !strings.Contains(app.Text, "Hi there,") || !strings.Contains(app.HTML, "Cool Air LLC") {
		t.Fatalf("app = %+v", app)
	}
}
