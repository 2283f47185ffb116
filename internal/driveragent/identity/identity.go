// Package identity derives the driver identity carried in the connection handshake.
package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rideline-io/rideline/internal/driveragent/core"
)

// RoleDriver is the only role allowed to open a driver channel.
const RoleDriver = "driver"

var (
	// ErrNoToken means the provider had no token to give. It blocks connecting.
	ErrNoToken = errors.New("no authentication token")
	// ErrNoSubject means the token decoded but carried no usable identifier.
	ErrNoSubject = errors.New("token has no driver identifier")
	// ErrWrongRole means the token belongs to someone other than a driver.
	ErrWrongRole = errors.New("token role is not driver")
)

// Identity is the driver identity sent in a handshake.
type Identity struct {
	DriverID string
	Role     string
	// Token is the bearer token the identity was derived from.
	Token string
}

// TokenProvider yields a bearer token on demand.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenProvider.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Claims is the subset of the auth server's access token this client reads.
type Claims struct {
	ID       string `json:"id,omitempty"`
	UserID   string `json:"userId,omitempty"`
	DriverID string `json:"driverId,omitempty"`
	Role     string `json:"role,omitempty"`
	jwtlib.RegisteredClaims
}

var _ jwtlib.Claims = (*Claims)(nil)

// subject picks the most specific identifier the token carries.
func (c *Claims) subject() string {
	for _, v := range []string{c.DriverID, c.ID, c.UserID, c.Subject} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Resolver decodes driver tokens. The signature is not verified: the client holds no key
// and the server verifies the token again on CONNECT.
type Resolver struct {
	parser *jwtlib.Parser
}

// NewResolver returns a Resolver.
func NewResolver() *Resolver {
	return &Resolver{parser: jwtlib.NewParser()}
}

// Resolve fetches a token and derives the identity from its claims.
// When the token was present but unusable, the returned Identity still carries it in Token
// so that a Fallback can reuse it.
func (r *Resolver) Resolve(ctx context.Context, tp TokenProvider) (Identity, error) {
	if tp == nil {
		return Identity{}, &core.IdentityError{Err: ErrNoToken}
	}
	raw, err := tp.Token(ctx)
	if err != nil {
		return Identity{}, &core.IdentityError{Err: fmt.Errorf("%w: %v", ErrNoToken, err)}
	}
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Bearer "))
	if raw == "" {
		return Identity{}, &core.IdentityError{Err: ErrNoToken}
	}

	partial := Identity{Token: raw}

	claims := &Claims{}
	if _, _, err := r.parser.ParseUnverified(raw, claims); err != nil {
		return partial, &core.IdentityError{Err: fmt.Errorf("decode token: %w", err)}
	}

	role := strings.ToLower(strings.TrimSpace(claims.Role))
	if role != "" && role != RoleDriver {
		return partial, &core.IdentityError{Err: fmt.Errorf("%w: %q", ErrWrongRole, claims.Role)}
	}
	id := claims.subject()
	if id == "" {
		return partial, &core.IdentityError{Err: ErrNoSubject}
	}

	return Identity{DriverID: id, Role: RoleDriver, Token: raw}, nil
}

// Fallback is a caller policy applied when Resolve fails with a recoverable IdentityError.
// It returns the identity to use and whether one was available.
type Fallback func(ctx context.Context, token string, err error) (Identity, bool)

// StaticDriverID is a Fallback that uses a configured driver ID while a token is still present.
// A missing token or a non-driver token is never recovered.
func StaticDriverID(driverID string) Fallback {
	return func(ctx context.Context, token string, err error) (Identity, bool) {
		if driverID == "" || token == "" || errors.Is(err, ErrNoToken) || errors.Is(err, ErrWrongRole) {
			return Identity{}, false
		}
		return Identity{DriverID: driverID, Role: RoleDriver, Token: token}, true
	}
}

// StaticToken always returns the same token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrNoToken
	}
	return string(t), nil
}

// FileToken reads the token from a file on every call so that refreshed tokens are picked up.
type FileToken string

func (f FileToken) Token(context.Context) (string, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	if t := strings.TrimSpace(string(data)); t != "" {
		return t, nil
	}
	return "", ErrNoToken
}

// EnvToken reads the token from the named environment variable.
type EnvToken string

func (e EnvToken) Token(context.Context) (string, error) {
	if t := strings.TrimSpace(os.Getenv(string(e))); t != "" {
		return t, nil
	}
	return "", ErrNoToken
}

// FirstOf returns the first token any provider yields.
func FirstOf(providers ...TokenProvider) TokenProvider {
	return TokenFunc(func(ctx context.Context) (string, error) {
		var errs []error
		for _, p := range providers {
			if p == nil {
				continue
			}
			t, err := p.Token(ctx)
			if err == nil && t != "" {
				return t, nil
			}
			if err != nil && !errors.Is(err, ErrNoToken) {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			return "", errors.Join(append([]error{ErrNoToken}, errs...)...)
		}
		return "", ErrNoToken
	})
}
