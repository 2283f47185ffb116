package core

import (
	"errors"
	"fmt"
)

// ErrCommandDropped is reported when a command is emitted while the channel is not connected.
var ErrCommandDropped = errors.New("command dropped: not connected")

// ConfigurationError is a fatal setup error, e.g. a malformed endpoint.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid connection configuration: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IdentityError reports that no driver identity could be derived from the token supplier.
type IdentityError struct {
	Err error
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("resolve driver identity: %v", e.Err)
}

func (e *IdentityError) Unwrap() error { return e.Err }

// ConnectionError is a transport-level failure. It is handled by the reconnection policy
// and never returned to callers.
type ConnectionError struct {
	Reason string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return "connection lost: " + e.Reason
	}
	return fmt.Sprintf("connection lost: %s: %v", e.Reason, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ServerRejection is an explicit error event pushed by the server.
type ServerRejection struct {
	Kind    EventKind
	Event   string
	Message string
	RideID  string
}

func (e *ServerRejection) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server rejected request (%s)", e.Event)
	}
	return fmt.Sprintf("server rejected request (%s): %s", e.Event, e.Message)
}
