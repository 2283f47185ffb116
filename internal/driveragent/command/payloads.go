package command

// Driver availability reported by driver_status.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// SenderDriver is the sender, requester and reader type of every chat command this agent sends.
const SenderDriver = "driver"

// AcceptRide is the payload of accept_ride.
type AcceptRide struct {
	RideID           string `json:"rideId"`
	DriverID         string `json:"driverId"`
	DriverName       string `json:"driverName"`
	DriverPhone      string `json:"driverPhone"`
	EstimatedArrival string `json:"estimatedArrival"`
}

// RideAction is the payload shared by reject_ride, driver_arrived, start_ride and complete_ride.
type RideAction struct {
	RideID   string `json:"rideId"`
	DriverID string `json:"driverId"`
}

// Location is the payload of driver_location. UserID is the rider being served, if any.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	UserID    string  `json:"userId"`
	DriverID  string  `json:"driverId"`
}

// RideStatus is the payload of ride_status_update.
type RideStatus struct {
	RideID  string `json:"rideId"`
	Status  string `json:"status"`
	UserID  string `json:"userId"`
	Message string `json:"message,omitempty"`
}

// DriverStatus is the payload of driver_status.
type DriverStatus struct {
	DriverID string `json:"driverId"`
	Status   string `json:"status"`
}

// CancelRide is the payload of driver_cancel_ride.
type CancelRide struct {
	RideID   string `json:"rideId"`
	DriverID string `json:"driverId"`
	Reason   string `json:"reason"`
}

// SendOtp is the payload of send_otp.
type SendOtp struct {
	RideID   string `json:"rideId"`
	DriverID string `json:"driverId"`
	OTP      string `json:"otp"`
}

// ChatMessage is the payload of send_chat_message.
type ChatMessage struct {
	RideID     string `json:"rideId"`
	SenderID   string `json:"senderId"`
	SenderType string `json:"senderType"`
	Message    string `json:"message"`
}

// ChatHistoryRequest is the payload of get_chat_history.
type ChatHistoryRequest struct {
	RideID        string `json:"rideId"`
	RequesterID   string `json:"requesterId"`
	RequesterType string `json:"requesterType"`
}

// MarkMessagesRead is the payload of mark_messages_read.
type MarkMessagesRead struct {
	RideID     string `json:"rideId"`
	ReaderID   string `json:"readerId"`
	ReaderType string `json:"readerType"`
}

// Typing is the payload of typing_start and typing_stop.
type Typing struct {
	RideID     string `json:"rideId"`
	SenderID   string `json:"senderId"`
	SenderType string `json:"senderType"`
}
