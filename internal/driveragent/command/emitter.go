// Package command serializes driver commands onto the real-time channel.
//
// Commands are fire-and-forget. A command issued while the channel is not Connected is
// dropped with a warning; nothing is queued or retried.
package command

import (
	"context"
	"errors"

	"github.com/rideline-io/rideline/internal/driveragent/core"
	"github.com/rideline-io/rideline/pkg/log"
)

// Sender writes one event to the channel. *conn.Manager implements it.
type Sender interface {
	Emit(ctx context.Context, event string, payload any) error
}

// Emitter has one method per outbound command.
type Emitter struct {
	sender Sender
	outbox *Outbox
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithOutbox records correlated commands in o.
func WithOutbox(o *Outbox) Option {
	return func(e *Emitter) { e.outbox = o }
}

// NewEmitter returns an Emitter writing through s.
func NewEmitter(s Sender, opts ...Option) *Emitter {
	e := &Emitter{sender: s}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Emitter) AcceptRide(ctx context.Context, p AcceptRide) error {
	return e.send(ctx, core.CommandAcceptRide, p.RideID, p)
}

func (e *Emitter) RejectRide(ctx context.Context, p RideAction) error {
	return e.send(ctx, core.CommandRejectRide, p.RideID, p)
}

// UpdateLocation reports the driver position. It is sent often, so drops are logged at debug level.
func (e *Emitter) UpdateLocation(ctx context.Context, p Location) error {
	err := e.sender.Emit(ctx, core.CommandLocationUpdate.String(), p)
	if errors.Is(err, core.ErrCommandDropped) {
		log.Debug("Location update dropped", "driverID", p.DriverID)
		return nil
	}
	return err
}

func (e *Emitter) DriverArrived(ctx context.Context, p RideAction) error {
	return e.send(ctx, core.CommandDriverArrived, p.RideID, p)
}

func (e *Emitter) StartRide(ctx context.Context, p RideAction) error {
	return e.send(ctx, core.CommandStartRide, p.RideID, p)
}

func (e *Emitter) UpdateRideStatus(ctx context.Context, p RideStatus) error {
	return e.send(ctx, core.CommandRideStatusUpdate, p.RideID, p)
}

func (e *Emitter) SetDriverStatus(ctx context.Context, p DriverStatus) error {
	return e.send(ctx, core.CommandDriverStatus, "", p)
}

func (e *Emitter) CompleteRide(ctx context.Context, p RideAction) error {
	return e.send(ctx, core.CommandCompleteRide, p.RideID, p)
}

func (e *Emitter) CancelRide(ctx context.Context, p CancelRide) error {
	return e.send(ctx, core.CommandCancelRide, p.RideID, p)
}

func (e *Emitter) SendOtp(ctx context.Context, p SendOtp) error {
	return e.send(ctx, core.CommandSendOtp, p.RideID, p)
}

// TestEvent sends an arbitrary diagnostic payload.
func (e *Emitter) TestEvent(ctx context.Context, payload map[string]any) error {
	return e.send(ctx, core.CommandTestEvent, "", payload)
}

func (e *Emitter) SendChatMessage(ctx context.Context, p ChatMessage) error {
	return e.send(ctx, core.CommandChatMessage, p.RideID, p)
}

func (e *Emitter) RequestChatHistory(ctx context.Context, p ChatHistoryRequest) error {
	return e.send(ctx, core.CommandChatHistoryRequest, p.RideID, p)
}

func (e *Emitter) MarkMessagesRead(ctx context.Context, p MarkMessagesRead) error {
	return e.send(ctx, core.CommandMarkMessagesRead, p.RideID, p)
}

func (e *Emitter) TypingStart(ctx context.Context, p Typing) error {
	return e.send(ctx, core.CommandTypingStart, p.RideID, p)
}

func (e *Emitter) TypingStop(ctx context.Context, p Typing) error {
	return e.send(ctx, core.CommandTypingStop, p.RideID, p)
}

func (e *Emitter) send(ctx context.Context, kind core.CommandKind, rideID string, payload any) error {
	err := e.sender.Emit(ctx, kind.String(), payload)
	switch {
	case errors.Is(err, core.ErrCommandDropped):
		log.Warn("Command dropped, channel not connected", "command", kind, "rideID", rideID)
		return nil
	case err != nil:
		log.Error(err, "Failed to send command", "command", kind, "rideID", rideID)
		return err
	}

	if e.outbox != nil {
		e.outbox.Record(kind, rideID)
	}
	return nil
}
