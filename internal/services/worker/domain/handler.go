package domain

import (
	"context"

	"github.com/acdrainwiz/drainwiz/internal/services/orders/storage"
)

// EventHandler processes one leased outbox event.
type EventHandler interface {
	Handle(ctx context.Context, event storage.OutboxEvent) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(context.Context, storage.OutboxEvent) error

// Handle calls f.
func (f EventHandlerFunc) Handle(ctx context.Context, event storage.OutboxEvent) error {
	return f(ctx, event)
}
