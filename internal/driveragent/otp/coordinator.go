// Package otp coordinates the ride-start handshake: the rider's OTP is verified over REST,
// announced on the event channel, and the ride is started once the server confirms it.
package otp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/rideline-io/rideline/internal/driveragent/command"
	"github.com/rideline-io/rideline/internal/driveragent/core"
	"github.com/rideline-io/rideline/internal/driveragent/registry"
	"github.com/rideline-io/rideline/pkg/log"
)

// DefaultFallbackAfter is how long Verify waits for ride_started before starting the ride itself.
const DefaultFallbackAfter = 10 * time.Second

// Outcome is the result of a Verify call.
type Outcome int

const (
	// OutcomeRejected means the OTP was not accepted and the ride was not started.
	OutcomeRejected Outcome = iota
	// OutcomeStarted means the server confirmed the start with ride_started.
	OutcomeStarted
	// OutcomeFallback means no confirmation arrived in time and start_ride was emitted.
	OutcomeFallback
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStarted:
		return "started"
	case OutcomeFallback:
		return "fallback"
	default:
		return "rejected"
	}
}

// Verifier checks an OTP over REST.
type Verifier interface {
	VerifyOTP(ctx context.Context, rideID, otp string) error
}

// Request identifies the ride being started.
type Request struct {
	RideID   string
	DriverID string
	OTP      string
}

// Coordinator runs the OTP handshake. Verify calls for the same process are serialized since
// they share the RideStarted slot.
type Coordinator struct {
	verifier Verifier
	registry *registry.Registry
	emitter  *command.Emitter
	clock    clock.Clock
	after    time.Duration

	mu sync.Mutex
}

// NewCoordinator returns a Coordinator. A nil verifier skips the REST step; a nil clock
// uses the real clock; a zero after uses DefaultFallbackAfter.
func NewCoordinator(v Verifier, reg *registry.Registry, e *command.Emitter, c clock.Clock, after time.Duration) *Coordinator {
	if c == nil {
		c = clock.RealClock{}
	}
	if after <= 0 {
		after = DefaultFallbackAfter
	}
	return &Coordinator{verifier: v, registry: reg, emitter: e, clock: c, after: after}
}

// Verify runs the handshake for req and reports how the ride was started.
func (c *Coordinator) Verify(ctx context.Context, req Request) (Outcome, error) {
	if req.RideID == "" || req.OTP == "" {
		return OutcomeRejected, errors.New("ride id and otp are required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.verifier != nil {
		if err := c.verifier.VerifyOTP(ctx, req.RideID, req.OTP); err != nil {
			log.Warn("OTP rejected", "rideID", req.RideID, "error", err.Error())
			return OutcomeRejected, fmt.Errorf("verify otp: %w", err)
		}
	}

	started := make(chan struct{})
	var once sync.Once
	release := c.registry.Claim(core.KindRideStarted, registry.JSON(func(_ context.Context, ref core.RideRef) error {
		if ref.RideID == "" || ref.RideID == req.RideID {
			once.Do(func() { close(started) })
		}
		return nil
	}))
	defer release()

	if err := c.emitter.SendOtp(ctx, command.SendOtp{RideID: req.RideID, DriverID: req.DriverID, OTP: req.OTP}); err != nil {
		return OutcomeRejected, err
	}

	timer := c.clock.NewTimer(c.after)
	defer timer.Stop()

	select {
	case <-started:
		log.Info("Ride started", "rideID", req.RideID)
		return OutcomeStarted, nil
	case <-timer.C():
		log.Warn("No ride_started confirmation, starting ride directly", "rideID", req.RideID, "after", c.after)
		if err := c.emitter.StartRide(ctx, command.RideAction{RideID: req.RideID, DriverID: req.DriverID}); err != nil {
			return OutcomeFallback, err
		}
		return OutcomeFallback, nil
	case <-ctx.Done():
		return OutcomeRejected, ctx.Err()
	}
}
