package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/acdrainwiz/drainwiz/internal/platform/logging"
	"github.com/acdrainwiz/drainwiz/internal/services/orders/storage"
	orderssqlite "github.com/acdrainwiz/drainwiz/internal/services/orders/storage/sqlite"
	workerdomain "github.com/acdrainwiz/drainwiz/internal/services/worker/domain"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openOrderStore(t *testing.T) *orderssqlite.Store {
	t.Helper()
	store, err := orderssqlite.Open(context.Background(), filepath.Join(t.TempDir(), "orders.db"))
	if err != nil {
		t.Fatalf("open orders store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close orders store: %v", err)
		}
	})
	return store
}

func enqueue(t *testing.T, store storage.OutboxStore, id, eventType string) {
	t.Helper()
	if err := store.EnqueueOutboxEvent(context.Background(), storage.OutboxEvent{
		ID:          id,
		EventType:   eventType,
		PayloadJSON: `{"order_id":"ord_1"}`,
		DedupeKey:   eventType + ":" + id,
	}); err != nil {
		t.Fatalf("enqueue %s: %v", id, err)
	}
}

type recordedAttempts struct {
	attempts []Attempt
}

func (r *recordedAttempts) RecordAttempt(_ context.Context, attempt Attempt) error {
	r.attempts = append(r.attempts, attempt)
	return nil
}

func TestConfigNormalized(t *testing.T) {
	cfg := Config{RetryBackoff: time.Minute, RetryMaxDelay: time.Second}.normalized()
	if cfg.Consumer != defaultConsumer || cfg.BatchSize != defaultBatchSize || cfg.MaxAttempts != defaultMaxAttempts {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.RetryMaxDelay != time.Minute {
		t.Fatalf("retry max delay = %v, want it raised to the backoff", cfg.RetryMaxDelay)
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 5 * time.Second},
		{attempt: 1, want: 5 * time.Second},
		{attempt: 2, want: 10 * time.Second},
		{attempt: 4, want: 40 * time.Second},
		{attempt: 10, want: time.Minute},
		{attempt: 200, want: time.Minute},
	}
	for _, tt := range tests {
		if got := retryDelay(5*time.Second, time.Minute, tt.attempt); got != tt.want {
			t.Fatalf("retryDelay(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRunOnceAcksOutcomes(t *testing.T) {
	store := openOrderStore(t)
	enqueue(t, store, "evt-ok", "order.fulfillment_requested")
	enqueue(t, store, "evt-flaky", "order.confirmation_email")
	enqueue(t, store, "evt-bad", "order.bad_payload")
	enqueue(t, store, "evt-unknown", "order.unknown")

	handlers := map[string]workerdomain.EventHandler{
		"order.fulfillment_requested": workerdomain.EventHandlerFunc(func(context.Context, storage.OutboxEvent) error {
			return nil
		}),
		"order.confirmation_email": workerdomain.EventHandlerFunc(func(context.Context, storage.OutboxEvent) error {
			return errors.New("resend timeout")
		}),
		"order.bad_payload": workerdomain.EventHandlerFunc(func(context.Context, storage.OutboxEvent) error {
			return workerdomain.Permanent(errors.New("decode payload"))
		}),
	}
	recorder := &recordedAttempts{}
	loop := New(store, recorder, handlers, Config{Consumer: "worker-test", RetryBackoff: time.Minute, RetryMaxDelay: time.Hour}, logging.Discard())

	acked, err := loop.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if acked != 4 {
		t.Fatalf("acked = %d, want 4", acked)
	}

	want := map[string]storage.OutboxStatus{
		"evt-ok":      storage.OutboxStatusSucceeded,
		"evt-flaky":   storage.OutboxStatusPending,
		"evt-bad":     storage.OutboxStatusDead,
		"evt-unknown": storage.OutboxStatusDead,
	}
	for id, status := range want {
		event, err := store.GetOutboxEvent(context.Background(), id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if event.Status != status {
			t.Fatalf("%s status = %q, want %q", id, event.Status, status)
		}
		if event.AttemptCount != 1 {
			t.Fatalf("%s attempt count = %d, want 1", id, event.AttemptCount)
		}
	}

	flaky, _ := store.GetOutboxEvent(context.Background(), "evt-flaky")
	if flaky.LastError != "resend timeout" {
		t.Fatalf("last error = %q", flaky.LastError)
	}
	if !flaky.NextAttemptAt.After(time.Now()) {
		t.Fatalf("next attempt at %v should be in the future", flaky.NextAttemptAt)
	}
	if len(recorder.attempts) != 4 {
		t.Fatalf("recorded attempts = %d, want 4", len(recorder.attempts))
	}
	for _, attempt := range recorder.attempts {
		if attempt.OrderID != "ord_1" {
			t.Fatalf("attempt %s order id = %q, want ord_1", attempt.EventID, attempt.OrderID)
		}
	}
}

func TestRunOnceDeadLettersAfterMaxAttempts(t *testing.T) {
	store := openOrderStore(t)
	enqueue(t, store, "evt-1", "order.confirmation_email")

	calls := 0
	handlers := map[string]workerdomain.EventHandler{
		"order.confirmation_email": workerdomain.EventHandlerFunc(func(context.Context, storage.OutboxEvent) error {
			calls++
			return errors.New("still down")
		}),
	}
	loop := New(store, nil, handlers, Config{Consumer: "worker-test", MaxAttempts: 2, RetryBackoff: time.Second}, logging.Discard())
	base := time.Now()
	loop.clock = func() time.Time { return base }

	for i := 0; i < 2; i++ {
		if _, err := loop.RunOnce(context.Background()); err != nil {
			t.Fatalf("run once %d: %v", i, err)
		}
		base = base.Add(time.Hour)
	}

	event, err := store.GetOutboxEvent(context.Background(), "evt-1")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if event.Status != storage.OutboxStatusDead || event.AttemptCount != 2 {
		t.Fatalf("event = %s attempts %d, want dead after 2", event.Status, event.AttemptCount)
	}
	if calls != 2 {
		t.Fatalf("handler calls = %d, want 2", calls)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	store := openOrderStore(t)
	loop := New(store, nil, nil, Config{Consumer: "worker-test", PollInterval: 10 * time.Millisecond}, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- loop.Run(ctx)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after cancel")
	}
}
