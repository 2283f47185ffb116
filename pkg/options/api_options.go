package options

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*APIOptions)(nil)

// APIOptions configures the REST client.
type APIOptions struct {
	// BaseURL of the REST API. Empty means the socket URL is reused.
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// Timeout for a single request.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NewAPIOptions creates an APIOptions object with default parameters.
func NewAPIOptions() *APIOptions {
	return &APIOptions{
		Timeout: 15 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *APIOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.BaseURL != "" {
		if _, err := url.ParseRequestURI(o.BaseURL); err != nil {
			errors = append(errors, fmt.Errorf("--api.base-url: %w", err))
		}
	}
	if o.Timeout <= 0 {
		errors = append(errors, fmt.Errorf("--api.timeout must be positive"))
	}

	return errors
}

// AddFlags adds flags for APIOptions to the specified FlagSet.
func (o *APIOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.BaseURL, join(prefixes, "api.base-url"), o.BaseURL, "Base URL of the REST API. Defaults to the socket URL.")
	fs.DurationVar(&o.Timeout, join(prefixes, "api.timeout"), o.Timeout, "Timeout for REST requests.")
}
