package options

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/pflag"
)

// Supported event channel transports.
const (
	TransportSocketIO = "socketio"
	TransportMQTT     = "mqtt"
)

// DefaultSocketURL is used when neither a flag nor RIDELINE_SOCKET_URL is set.
const DefaultSocketURL = "https://api.rideline.app"

var _ IOptions = (*SocketOptions)(nil)

// SocketOptions contains configuration for the driver's real-time event channel.
type SocketOptions struct {
	// URL is the base URL of the real-time server. The Socket.IO path is appended to it.
	URL string `json:"url" mapstructure:"url"`

	// Path is the Socket.IO endpoint path.
	Path string `json:"path" mapstructure:"path"`

	// Transport selects the event channel: socketio or mqtt.
	Transport string `json:"transport" mapstructure:"transport"`

	// Environment is development or production. Production uses the longer retry profile.
	Environment string `json:"environment" mapstructure:"environment"`

	// Version is the app version reported in the handshake.
	Version string `json:"version" mapstructure:"version"`

	// SettleInterval is how long connect sequences wait before verifying the connection.
	SettleInterval time.Duration `json:"settle-interval" mapstructure:"settle-interval"`

	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration `json:"write-timeout" mapstructure:"write-timeout"`
}

// NewSocketOptions creates a SocketOptions object with default parameters.
func NewSocketOptions() *SocketOptions {
	u := DefaultSocketURL
	if v := os.Getenv("RIDELINE_SOCKET_URL"); v != "" {
		u = v
	}
	return &SocketOptions{
		URL:            u,
		Path:           "/socket.io/",
		Transport:      TransportSocketIO,
		Environment:    "development",
		Version:        "1.0.0",
		SettleInterval: time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *SocketOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if u, err := url.Parse(o.URL); err != nil {
		errors = append(errors, fmt.Errorf("--socket.url: %w", err))
	} else if u.Host == "" {
		errors = append(errors, fmt.Errorf("--socket.url %q has no host", o.URL))
	}

	switch o.Transport {
	case TransportSocketIO, TransportMQTT:
	default:
		errors = append(errors, fmt.Errorf("--socket.transport must be %q or %q, got %q", TransportSocketIO, TransportMQTT, o.Transport))
	}

	switch o.Environment {
	case "development", "production":
	default:
		errors = append(errors, fmt.Errorf("--socket.environment must be development or production, got %q", o.Environment))
	}

	if o.SettleInterval <= 0 {
		errors = append(errors, fmt.Errorf("--socket.settle-interval must be positive"))
	}

	return errors
}

// AddFlags adds flags related to the event channel to the specified FlagSet.
func (o *SocketOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.URL, join(prefixes, "socket.url"), o.URL, "Base URL of the real-time server. Defaults to $RIDELINE_SOCKET_URL when set.")
	fs.StringVar(&o.Path, join(prefixes, "socket.path"), o.Path, "Socket.IO endpoint path.")
	fs.StringVar(&o.Transport, join(prefixes, "socket.transport"), o.Transport, "Event channel transport, one of socketio or mqtt.")
	fs.StringVar(&o.Environment, join(prefixes, "socket.environment"), o.Environment, "Build environment, one of development or production.")
	fs.StringVar(&o.Version, join(prefixes, "socket.version"), o.Version, "App version reported in the connection handshake.")
	fs.DurationVar(&o.SettleInterval, join(prefixes, "socket.settle-interval"), o.SettleInterval, "Wait before verifying a freshly opened connection.")
	fs.DurationVar(&o.WriteTimeout, join(prefixes, "socket.write-timeout"), o.WriteTimeout, "Timeout for a single outbound frame.")
}
