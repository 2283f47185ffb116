package core

import (
	"context"
	"encoding/json"
	"time"
)

// Disconnect reasons reported by transports.
const (
	ReasonClientDisconnect = "io client disconnect"
	ReasonServerDisconnect = "io server disconnect"
	ReasonTransportClose   = "transport close"
	ReasonTransportError   = "transport error"
	ReasonPingTimeout      = "ping timeout"
	ReasonParseError       = "parse error"
)

// Intentional reports whether a disconnect was initiated by either peer on purpose.
// Only unintentional disconnects are retried automatically.
func Intentional(reason string) bool {
	return reason == ReasonClientDisconnect || reason == ReasonServerDisconnect
}

// Handshake carries the identity and client metadata sent when a transport connects.
type Handshake struct {
	DriverID string
	Role     string
	Platform string
	Version  string
	Token    string

	// ConnectTimeout bounds one connection handshake. Zero leaves the transport default.
	ConnectTimeout time.Duration
}

// Listener receives callbacks from a Transport. Callbacks may arrive on any goroutine.
type Listener interface {
	OnConnect()
	OnDisconnect(reason string)
	OnConnectError(err error)
	OnEvent(name string, payload json.RawMessage)
}

// Transport is a persistent bidirectional event channel.
type Transport interface {
	// Open starts connecting. It is non-blocking; the outcome is reported through the Listener.
	Open(ctx context.Context) error

	// Reconnect re-dials the same endpoint with the same handshake.
	Reconnect(ctx context.Context) error

	// Close tears the channel down. It is safe to call more than once.
	Close() error

	// Emit writes a single named event.
	Emit(ctx context.Context, event string, payload any) error

	// Connected reports whether the channel is currently usable.
	Connected() bool
}

// TransportFactory builds a transport for a handshake. It fails only for invalid configuration.
type TransportFactory func(h Handshake, l Listener) (Transport, error)
