package core

// CommandKind is the closed set of outbound commands.
type CommandKind string

const (
	CommandAcceptRide         CommandKind = "accept_ride"
	CommandRejectRide         CommandKind = "reject_ride"
	CommandLocationUpdate     CommandKind = "driver_location"
	CommandDriverArrived      CommandKind = "driver_arrived"
	CommandStartRide          CommandKind = "start_ride"
	CommandRideStatusUpdate   CommandKind = "ride_status_update"
	CommandDriverStatus       CommandKind = "driver_status"
	CommandCompleteRide       CommandKind = "complete_ride"
	CommandCancelRide         CommandKind = "driver_cancel_ride"
	CommandSendOtp            CommandKind = "send_otp"
	CommandTestEvent          CommandKind = "test_event"
	CommandChatMessage        CommandKind = "send_chat_message"
	CommandChatHistoryRequest CommandKind = "get_chat_history"
	CommandMarkMessagesRead   CommandKind = "mark_messages_read"
	CommandTypingStart        CommandKind = "typing_start"
	CommandTypingStop         CommandKind = "typing_stop"
)

// String returns the wire event name.
func (c CommandKind) String() string {
	return string(c)
}
