package core

import (
	"encoding/json"
	"strings"
)

// RideRef is the common shape of ride-scoped inbound payloads.
type RideRef struct {
	RideID string `json:"rideId"`
	Status string `json:"status,omitempty"`
}

// ErrorPayload is the body of server error events.
type ErrorPayload struct {
	RideID  string `json:"rideId,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Rejection decodes payload as a ServerRejection. Unknown shapes keep the raw text as message.
func Rejection(kind EventKind, event string, payload json.RawMessage) *ServerRejection {
	r := &ServerRejection{Kind: kind, Event: event}
	var p ErrorPayload
	if err := json.Unmarshal(payload, &p); err == nil {
		r.RideID = p.RideID
		r.Message = p.Message
		if r.Message == "" {
			r.Message = p.Error
		}
		return r
	}
	var s string
	if err := json.Unmarshal(payload, &s); err == nil {
		r.Message = s
		return r
	}
	r.Message = strings.TrimSpace(string(payload))
	return r
}
