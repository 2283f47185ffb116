package command

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/rideline-io/rideline/internal/driveragent/core"
	"github.com/rideline-io/rideline/internal/pkg/metrics"
	"github.com/rideline-io/rideline/pkg/log"
)

// Entry is a command awaiting the server's answer.
type Entry struct {
	ID      string
	Command core.CommandKind
	RideID  string
	SentAt  time.Time
}

// Resolution is reported when the server answers a recorded command.
type Resolution struct {
	Entry
	Event    string
	Rejected bool
	Latency  time.Duration
}

type ack struct {
	command  core.CommandKind
	rejected bool
}

// acks maps inbound events to the command they answer.
var acks = map[string]ack{
	core.EventRideAcceptedWithDetails:   {command: core.CommandAcceptRide},
	core.EventRideAcceptError:           {command: core.CommandAcceptRide, rejected: true},
	core.EventRideResponseError:         {command: core.CommandAcceptRide, rejected: true},
	core.EventDriverCancellationSuccess: {command: core.CommandCancelRide},
	core.EventDriverCancellationError:   {command: core.CommandCancelRide, rejected: true},
	core.EventOtpSent:                   {command: core.CommandSendOtp},
	core.EventRideStarted:               {command: core.CommandSendOtp},
	core.EventOtpError:                  {command: core.CommandSendOtp, rejected: true},
	core.EventChatMessageSent:           {command: core.CommandChatMessage},
	core.EventChatMessageError:          {command: core.CommandChatMessage, rejected: true},
}

// Outbox correlates accept, cancel, OTP and chat commands with the events that answer them.
// Entries are keyed by a client-generated id; the wire payloads are unchanged.
type Outbox struct {
	clock     clock.PassiveClock
	onResolve func(Resolution)

	mu      sync.Mutex
	pending map[string]Entry
}

// NewOutbox returns an empty Outbox. onResolve may be nil.
func NewOutbox(c clock.PassiveClock, onResolve func(Resolution)) *Outbox {
	if c == nil {
		c = clock.RealClock{}
	}
	return &Outbox{clock: c, onResolve: onResolve, pending: make(map[string]Entry)}
}

// Tracked reports whether commands of kind are correlated.
func Tracked(kind core.CommandKind) bool {
	for _, a := range acks {
		if a.command == kind {
			return true
		}
	}
	return false
}

// Record stores a sent command and returns its correlation id, or "" when kind is not tracked.
func (o *Outbox) Record(kind core.CommandKind, rideID string) string {
	if !Tracked(kind) {
		return ""
	}
	e := Entry{ID: uuid.NewString(), Command: kind, RideID: rideID, SentAt: o.clock.Now()}

	o.mu.Lock()
	o.pending[e.ID] = e
	n := len(o.pending)
	o.mu.Unlock()

	metrics.OutboxPending.Set(float64(n))
	log.Debug("Awaiting acknowledgement", "id", e.ID, "command", kind, "rideID", rideID)
	return e.ID
}

// Observe resolves the oldest pending entry answered by the inbound event name.
// Its signature matches the manager's inbound observers.
func (o *Outbox) Observe(_ context.Context, name string, payload json.RawMessage) {
	a, ok := acks[name]
	if !ok {
		return
	}
	var ref core.RideRef
	_ = json.Unmarshal(payload, &ref)

	o.mu.Lock()
	var match *Entry
	for _, e := range o.pending {
		if e.Command != a.command {
			continue
		}
		if ref.RideID != "" && e.RideID != "" && e.RideID != ref.RideID {
			continue
		}
		if match == nil || e.SentAt.Before(match.SentAt) {
			match = &e
		}
	}
	if match != nil {
		delete(o.pending, match.ID)
	}
	n := len(o.pending)
	o.mu.Unlock()

	if match == nil {
		return
	}
	metrics.OutboxPending.Set(float64(n))

	r := Resolution{Entry: *match, Event: name, Rejected: a.rejected, Latency: o.clock.Since(match.SentAt)}
	result := metrics.ResultAcked
	if r.Rejected {
		result = metrics.ResultRejected
	}
	metrics.OutboxResolvedTotal.WithLabelValues(r.Command.String(), result).Inc()
	log.Debug("Command answered", "id", r.ID, "command", r.Command, "event", name, "latency", r.Latency)

	if o.onResolve != nil {
		o.onResolve(r)
	}
}

// Pending returns the unanswered entries, oldest first.
func (o *Outbox) Pending() []Entry {
	o.mu.Lock()
	out := make([]Entry, 0, len(o.pending))
	for _, e := range o.pending {
		out = append(out, e)
	}
	o.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out
}

// Expire drops entries older than ttl and returns them.
func (o *Outbox) Expire(ttl time.Duration) []Entry {
	now := o.clock.Now()

	o.mu.Lock()
	var expired []Entry
	for id, e := range o.pending {
		if now.Sub(e.SentAt) >= ttl {
			expired = append(expired, e)
			delete(o.pending, id)
		}
	}
	n := len(o.pending)
	o.mu.Unlock()

	metrics.OutboxPending.Set(float64(n))
	for _, e := range expired {
		metrics.OutboxResolvedTotal.WithLabelValues(e.Command.String(), metrics.ResultExpired).Inc()
		log.Warn("Command never answered", "id", e.ID, "command", e.Command, "rideID", e.RideID)
	}
	return expired
}
