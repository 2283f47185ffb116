package core

import "encoding/json"

// EventKind is the closed set of inbound event categories a subscriber can register for.
type EventKind string

const (
	KindRideRequest               EventKind = "RideRequest"
	KindRideTaken                 EventKind = "RideTaken"
	KindRideResponseError         EventKind = "RideResponseError"
	KindRideResponseConfirmed     EventKind = "RideResponseConfirmed"
	KindRideAcceptedWithDetails   EventKind = "RideAcceptedWithDetails"
	KindRideStatusUpdate          EventKind = "RideStatusUpdate"
	KindRideStarted               EventKind = "RideStarted"
	KindDriverStatusReset         EventKind = "DriverStatusReset"
	KindDriverCancellationSuccess EventKind = "DriverCancellationSuccess"
	KindDriverCancellationError   EventKind = "DriverCancellationError"
	KindDriverLocationUpdate      EventKind = "DriverLocationUpdate"
	KindConnectionChange          EventKind = "ConnectionChange"
	KindOtpSent                   EventKind = "OtpSent"
	KindOtpError                  EventKind = "OtpError"
	KindMpinVerified              EventKind = "MpinVerified"
	KindChatMessage               EventKind = "ChatMessage"
	KindChatHistory               EventKind = "ChatHistory"
	KindTypingIndicator           EventKind = "TypingIndicator"
	KindMessagesRead              EventKind = "MessagesRead"
	KindChatMessageSent           EventKind = "ChatMessageSent"
	KindChatMessageError          EventKind = "ChatMessageError"
	KindChatHistoryError          EventKind = "ChatHistoryError"
)

// Kinds lists every EventKind in declaration order.
var Kinds = []EventKind{
	KindRideRequest, KindRideTaken, KindRideResponseError, KindRideResponseConfirmed,
	KindRideAcceptedWithDetails, KindRideStatusUpdate, KindRideStarted, KindDriverStatusReset,
	KindDriverCancellationSuccess, KindDriverCancellationError, KindDriverLocationUpdate,
	KindConnectionChange, KindOtpSent, KindOtpError, KindMpinVerified, KindChatMessage,
	KindChatHistory, KindTypingIndicator, KindMessagesRead, KindChatMessageSent,
	KindChatMessageError, KindChatHistoryError,
}

// Rejection reports whether events of this kind are explicit server-side rejections.
func (k EventKind) Rejection() bool {
	switch k {
	case KindRideResponseError, KindDriverCancellationError, KindOtpError,
		KindChatMessageError, KindChatHistoryError:
		return true
	}
	return false
}

// Inbound wire event names (server -> driver).
const (
	EventNewRideRequest            = "new_ride_request"
	EventActiveRideRequests        = "active_ride_requests"
	EventDriverStatusReset         = "driver_status_reset"
	EventRideTaken                 = "ride_taken"
	EventRideAcceptError           = "ride_accept_error"
	EventRideRejectConfirmed       = "ride_reject_confirmed"
	EventRideAcceptedWithDetails   = "ride_accepted_with_details"
	EventRideStatusUpdated         = "ride_status_updated"
	EventRideCancelled             = "ride_cancelled"
	EventRideStarted               = "ride_started"
	EventOtpSent                   = "otp_sent"
	EventOtpError                  = "otp_error"
	EventMpinVerified              = "mpin_verified"
	EventDriverCancellationSuccess = "driver_cancellation_success"
	EventDriverCancellationError   = "driver_cancellation_error"
	EventDriverLocationUpdate      = "driver_location_update"
	EventReceiveChatMessage        = "receive_chat_message"
	EventChatHistory               = "chat_history"
	EventTypingIndicator           = "typing_indicator"
	EventMessagesRead              = "messages_read"
	EventChatMessageSent           = "chat_message_sent"
	EventChatMessageError          = "chat_message_error"
	EventChatHistoryError          = "chat_history_error"

	// Legacy aliases still sent by older servers.
	EventRideResponseError     = "ride_response_error"
	EventRideResponseConfirmed = "ride_response_confirmed"
	EventRideStatusUpdate      = "ride_status_update"

	// Connection lifecycle.
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"
	EventReconnect    = "reconnect"
)

// Route describes how an inbound wire event reaches the registry.
type Route struct {
	Kind EventKind
	// Bulk means the payload is an array whose elements are dispatched one by one.
	Bulk bool
	// Legacy marks an alias kept for older server versions.
	Legacy bool
}

// Routes maps every inbound wire event name to its registry slot.
var Routes = map[string]Route{
	EventNewRideRequest:            {Kind: KindRideRequest},
	EventActiveRideRequests:        {Kind: KindRideRequest, Bulk: true},
	EventDriverStatusReset:         {Kind: KindDriverStatusReset},
	EventRideTaken:                 {Kind: KindRideTaken},
	EventRideAcceptError:           {Kind: KindRideResponseError},
	EventRideResponseError:         {Kind: KindRideResponseError, Legacy: true},
	EventRideRejectConfirmed:       {Kind: KindRideResponseConfirmed},
	EventRideResponseConfirmed:     {Kind: KindRideResponseConfirmed, Legacy: true},
	EventRideAcceptedWithDetails:   {Kind: KindRideAcceptedWithDetails},
	EventRideStatusUpdated:         {Kind: KindRideStatusUpdate},
	EventRideCancelled:             {Kind: KindRideStatusUpdate},
	EventRideStatusUpdate:          {Kind: KindRideStatusUpdate, Legacy: true},
	EventRideStarted:               {Kind: KindRideStarted},
	EventOtpSent:                   {Kind: KindOtpSent},
	EventOtpError:                  {Kind: KindOtpError},
	EventMpinVerified:              {Kind: KindMpinVerified},
	EventDriverCancellationSuccess: {Kind: KindDriverCancellationSuccess},
	EventDriverCancellationError:   {Kind: KindDriverCancellationError},
	EventDriverLocationUpdate:      {Kind: KindDriverLocationUpdate},
	EventReceiveChatMessage:        {Kind: KindChatMessage},
	EventChatHistory:               {Kind: KindChatHistory},
	EventTypingIndicator:           {Kind: KindTypingIndicator},
	EventMessagesRead:              {Kind: KindMessagesRead},
	EventChatMessageSent:           {Kind: KindChatMessageSent},
	EventChatMessageError:          {Kind: KindChatMessageError},
	EventChatHistoryError:          {Kind: KindChatHistoryError},
}

// Event is a single inbound delivery handed to a subscriber.
type Event struct {
	Kind EventKind
	// Name is the wire event name the payload arrived under.
	Name    string
	Payload json.RawMessage
}

// ConnectionChange is the payload of KindConnectionChange events.
type ConnectionChange struct {
	Connected bool   `json:"connected"`
	Reason    string `json:"reason,omitempty"`
	// Reconnected is set when the connection came back after a previous one was lost.
	Reconnected bool `json:"reconnected,omitempty"`
}
