// Package driveragent wires the driver's real-time connection, command emitter and ride
// coordinators into a long-running agent.
package driveragent

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rideline-io/rideline/internal/driveragent/api"
	"github.com/rideline-io/rideline/internal/driveragent/command"
	"github.com/rideline-io/rideline/internal/driveragent/conn"
	"github.com/rideline-io/rideline/internal/driveragent/core"
	"github.com/rideline-io/rideline/internal/driveragent/identity"
	"github.com/rideline-io/rideline/internal/driveragent/otp"
	"github.com/rideline-io/rideline/internal/driveragent/registry"
	httpserver "github.com/rideline-io/rideline/internal/driveragent/server/http"
	"github.com/rideline-io/rideline/pkg/log"
)

const outboxTTL = 30 * time.Second

type Agent struct {
	manager *conn.Manager
	emitter *command.Emitter
	outbox  *command.Outbox
	api     *api.Client
	otp     *otp.Coordinator
	tokens  identity.TokenProvider
	http    *httpserver.Server
}

func (a *Agent) Manager() *conn.Manager         { return a.manager }
func (a *Agent) Emitter() *command.Emitter      { return a.emitter }
func (a *Agent) API() *api.Client               { return a.api }
func (a *Agent) OTP() *otp.Coordinator          { return a.otp }
func (a *Agent) Tokens() identity.TokenProvider { return a.tokens }

// Run connects the driver and keeps the channel up until ctx ends.
func (a *Agent) Run(ctx context.Context) error {
	log.Info("Starting rideline driver agent")
	a.subscribe()

	g, ctx := errgroup.WithContext(ctx)

	if a.http != nil {
		g.Go(func() error {
			return a.http.Start(ctx)
		})
	}

	g.Go(func() error {
		err := a.manager.Bootstrap(ctx, a.tokens)
		var ce *core.ConfigurationError
		var ie *core.IdentityError
		if errors.As(err, &ce) || errors.As(err, &ie) {
			return err
		}
		if err != nil && !errors.Is(err, conn.ErrSuperseded) && ctx.Err() == nil {
			log.Error(err, "Bootstrap ended without a connection")
		}
		return nil
	})

	if a.outbox != nil {
		g.Go(func() error {
			t := time.NewTicker(outboxTTL / 2)
			defer t.Stop()
			for {
				select {
				case <-t.C:
					a.outbox.Expire(outboxTTL)
				case <-ctx.Done():
					return nil
				}
			}
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Info("Agent shutting down...")
		a.goOffline()
		return nil
	})

	err := g.Wait()
	_ = log.Sync()
	return err
}

// subscribe installs the agent's own handlers. Embedding apps replace them through the registry.
func (a *Agent) subscribe() {
	reg := a.manager.Registry()

	reg.Subscribe(core.KindConnectionChange, registry.JSON(func(ctx context.Context, cc core.ConnectionChange) error {
		if !cc.Connected {
			log.Info("Driver offline", "reason", cc.Reason)
			return nil
		}
		return a.announce(ctx, command.StatusOnline)
	}))

	reg.Subscribe(core.KindDriverStatusReset, func(ctx context.Context, _ core.Event) error {
		log.Info("Server reset the driver status, announcing again")
		return a.announce(ctx, command.StatusOnline)
	})

	reg.Subscribe(core.KindRideRequest, registry.JSON(func(_ context.Context, r core.RideRef) error {
		log.Info("Ride request received", "rideID", r.RideID)
		return nil
	}))

	reg.Subscribe(core.KindRideStatusUpdate, registry.JSON(func(_ context.Context, r core.RideRef) error {
		log.Info("Ride status changed", "rideID", r.RideID, "status", r.Status)
		return nil
	}))
}

func (a *Agent) announce(ctx context.Context, status string) error {
	id, ok := a.manager.Identity()
	if !ok {
		return nil
	}
	return a.emitter.SetDriverStatus(ctx, command.DriverStatus{DriverID: id.DriverID, Status: status})
}

func (a *Agent) goOffline() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.announce(ctx, command.StatusOffline); err != nil {
		log.Warn("Failed to announce offline status", "error", err.Error())
	}
	a.manager.Disconnect()
}

func (a *Agent) ready() (bool, string) {
	if st := a.manager.State(); st != core.StateConnected {
		return false, "event channel " + string(st)
	}
	return true, ""
}

// logAlerter reports server rejections in the log. A UI replaces it with a user-visible alert.
type logAlerter struct{}

func (logAlerter) Alert(_ context.Context, r *core.ServerRejection) {
	log.Warn("Server rejected a driver action", "kind", r.Kind, "event", r.Event, "rideID", r.RideID, "message", r.Message)
}
