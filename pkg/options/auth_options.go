package options

import (
	"github.com/spf13/pflag"
)

var _ IOptions = (*AuthOptions)(nil)

// AuthOptions tells the agent where to find the driver's bearer token.
type AuthOptions struct {
	// Token is a literal bearer token. Prefer TokenFile outside of development.
	Token string `json:"token" mapstructure:"token"`

	// TokenFile is re-read on every connect so a refreshed token is picked up.
	TokenFile string `json:"token-file" mapstructure:"token-file"`

	// TokenEnv names an environment variable holding the token.
	TokenEnv string `json:"token-env" mapstructure:"token-env"`

	// DriverID is used only when the token carries no usable driver identity.
	DriverID string `json:"driver-id" mapstructure:"driver-id"`
}

// NewAuthOptions creates an AuthOptions object with default parameters.
func NewAuthOptions() *AuthOptions {
	return &AuthOptions{
		TokenEnv: "RIDELINE_TOKEN",
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *AuthOptions) Validate() []error {
	// A missing token is not a startup error; it blocks connecting and is reported then.
	return nil
}

// AddFlags adds flags for AuthOptions to the specified FlagSet.
func (o *AuthOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Token, join(prefixes, "auth.token"), o.Token, "Driver bearer token.")
	fs.StringVar(&o.TokenFile, join(prefixes, "auth.token-file"), o.TokenFile, "File containing the driver bearer token, re-read on every connect.")
	fs.StringVar(&o.TokenEnv, join(prefixes, "auth.token-env"), o.TokenEnv, "Environment variable containing the driver bearer token.")
	fs.StringVar(&o.DriverID, join(prefixes, "auth.driver-id"), o.DriverID, "Fallback driver ID when the token has no usable identity.")
}
