package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*ReconnectOptions)(nil)

// ReconnectOptions holds the reconnection policy of the event channel.
type ReconnectOptions struct {
	// MaxAttempts is the number of scheduled reconnects before giving up.
	MaxAttempts int `json:"max-attempts" mapstructure:"max-attempts"`

	// BaseDelay is multiplied by the attempt number to get the delay before each reconnect.
	BaseDelay time.Duration `json:"base-delay" mapstructure:"base-delay"`

	// ConnectTimeout bounds a single handshake.
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`

	// ProductionMultiplier scales MaxAttempts and ConnectTimeout in production.
	ProductionMultiplier int `json:"production-multiplier" mapstructure:"production-multiplier"`
}

// NewReconnectOptions creates a ReconnectOptions object with default parameters.
func NewReconnectOptions() *ReconnectOptions {
	return &ReconnectOptions{
		MaxAttempts:          5,
		BaseDelay:            time.Second,
		ConnectTimeout:       10 * time.Second,
		ProductionMultiplier: 2,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *ReconnectOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.MaxAttempts < 0 {
		errors = append(errors, fmt.Errorf("--reconnect.max-attempts cannot be negative"))
	}
	if o.BaseDelay <= 0 {
		errors = append(errors, fmt.Errorf("--reconnect.base-delay must be positive"))
	}
	if o.ConnectTimeout <= 0 {
		errors = append(errors, fmt.Errorf("--reconnect.connect-timeout must be positive"))
	}
	if o.ProductionMultiplier < 1 {
		errors = append(errors, fmt.Errorf("--reconnect.production-multiplier must be at least 1"))
	}

	return errors
}

// AddFlags adds flags for ReconnectOptions to the specified FlagSet.
func (o *ReconnectOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.MaxAttempts, join(prefixes, "reconnect.max-attempts"), o.MaxAttempts, "Maximum number of automatic reconnect attempts.")
	fs.DurationVar(&o.BaseDelay, join(prefixes, "reconnect.base-delay"), o.BaseDelay, "Base reconnect delay, multiplied by the attempt number.")
	fs.DurationVar(&o.ConnectTimeout, join(prefixes, "reconnect.connect-timeout"), o.ConnectTimeout, "Timeout for a single connection handshake.")
	fs.IntVar(&o.ProductionMultiplier, join(prefixes, "reconnect.production-multiplier"), o.ProductionMultiplier, "Factor applied to attempts and timeout in production.")
}
