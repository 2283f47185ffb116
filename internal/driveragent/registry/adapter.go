package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rideline-io/rideline/internal/driveragent/core"
)

// TypedHandlerFunc handles the decoded payload of an event.
type TypedHandlerFunc[T any] func(ctx context.Context, msg T) error

// JSON adapts a typed handler. Payloads that do not decode into T are reported as handler errors.
func JSON[T any](handler TypedHandlerFunc[T]) Handler {
	return func(ctx context.Context, ev core.Event) error {
		var msg T
		if err := json.Unmarshal(ev.Payload, &msg); err != nil {
			return fmt.Errorf("decode %s payload: %w", ev.Name, err)
		}
		return handler(ctx, msg)
	}
}

// Func adapts a handler that only needs the raw payload.
func Func(handler func(ctx context.Context, payload json.RawMessage) error) Handler {
	return func(ctx context.Context, ev core.Event) error {
		return handler(ctx, ev.Payload)
	}
}
