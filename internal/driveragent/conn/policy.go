package conn

import (
	"time"

	"github.com/rideline-io/rideline/internal/driveragent/core"
)

// Policy is the reconnection policy. It is configuration, not state.
type Policy struct {
	// MaxAttempts caps the automatic reconnects after an unexpected disconnect.
	MaxAttempts int
	// BaseDelay is multiplied by the attempt number: the n-th reconnect waits n*BaseDelay.
	BaseDelay time.Duration
	// ConnectTimeout bounds a single transport handshake.
	ConnectTimeout time.Duration
	// ProductionMultiplier scales MaxAttempts and ConnectTimeout in production builds.
	ProductionMultiplier int
}

// DefaultPolicy returns the development profile.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:          5,
		BaseDelay:            time.Second,
		ConnectTimeout:       10 * time.Second,
		ProductionMultiplier: 2,
	}
}

// For returns the policy tuned for env.
func (p Policy) For(env core.Environment) Policy {
	if env != core.EnvProduction || p.ProductionMultiplier <= 1 {
		return p
	}
	p.MaxAttempts *= p.ProductionMultiplier
	p.ConnectTimeout *= time.Duration(p.ProductionMultiplier)
	return p
}

// Delay returns the wait before the given 1-based reconnect attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay * time.Duration(attempt)
}
