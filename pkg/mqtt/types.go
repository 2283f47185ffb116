package mqtt

import (
	"context"
)

// MessageHandler receives the payload of one PUBLISH matching a subscribed filter.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Client is the event channel contract used by the driver transport.
type Client interface {
	// Start dials the broker in the background and keeps reconnecting until Disconnect.
	Start(ctx context.Context) error

	// Disconnect sends DISCONNECT and stops reconnecting. The will is not published.
	Disconnect(ctx context.Context)

	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// Subscribe routes filter to handler. Filters registered before Start or while
	// offline are sent with the next CONNACK, as are all filters after a reconnect.
	Subscribe(ctx context.Context, filter string, qos int, handler MessageHandler) error

	Unsubscribe(ctx context.Context, filter string) error

	// AwaitConnection blocks until the first CONNACK or ctx ends.
	AwaitConnection(ctx context.Context) error

	IsConnected() bool
}
