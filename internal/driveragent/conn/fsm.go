package conn

import (
	"context"

	"github.com/looplab/fsm"

	"github.com/rideline-io/rideline/internal/driveragent/core"
	"github.com/rideline-io/rideline/internal/pkg/metrics"
	fsmutil "github.com/rideline-io/rideline/internal/pkg/util/fsm"
	"github.com/rideline-io/rideline/pkg/log"
)

const (
	// eventDial starts opening a transport.
	eventDial = "dial"
	// eventUp marks the handshake as complete.
	eventUp = "up"
	// eventLost schedules an automatic reconnect.
	eventLost = "lost"
	// eventExhaust gives up after MaxAttempts.
	eventExhaust = "exhaust"
	// eventDown is an explicit or server-initiated disconnect.
	eventDown = "down"
)

var (
	stDisconnected     = string(core.StateDisconnected)
	stConnecting       = string(core.StateConnecting)
	stConnected        = string(core.StateConnected)
	stReconnectPending = string(core.StateReconnectPending)
	stFailed           = string(core.StateFailed)
)

type stateMachine struct {
	*fsm.FSM
}

// newStateMachine builds the connection FSM. guardUp vetoes eventUp when it returns an error.
func newStateMachine(guardUp func() error) *stateMachine {
	events := fsm.Events{
		{Name: eventDial, Src: []string{stDisconnected, stReconnectPending, stFailed, stConnecting}, Dst: stConnecting},
		// Failed is left only through an explicit dial.
		{Name: eventUp, Src: []string{stConnecting, stReconnectPending}, Dst: stConnected},
		{Name: eventLost, Src: []string{stConnecting, stConnected, stReconnectPending}, Dst: stReconnectPending},
		{Name: eventExhaust, Src: []string{stConnecting, stConnected, stReconnectPending}, Dst: stFailed},
		{Name: eventDown, Src: []string{stDisconnected, stConnecting, stConnected, stReconnectPending, stFailed}, Dst: stDisconnected},
	}

	callbacks := fsm.Callbacks{
		"before_" + eventUp: fsmutil.WrapEvent(func(_ context.Context, e *fsm.Event) error {
			if err := guardUp(); err != nil {
				e.Cancel(err)
			}
			return nil
		}),
		"enter_state": fsmutil.WrapEvent(func(_ context.Context, e *fsm.Event) error {
			metrics.StateTransitionsTotal.WithLabelValues(e.Src, e.Dst).Inc()
			if e.Dst == stConnected {
				metrics.ConnectionStatus.Set(1)
			} else {
				metrics.ConnectionStatus.Set(0)
			}
			log.Debug("Connection state changed", "from", e.Src, "to", e.Dst, "event", e.Event)
			return nil
		}),
	}

	return &stateMachine{FSM: fsm.NewFSM(stDisconnected, events, callbacks)}
}

// fire applies event and reports whether the state changed.
func (s *stateMachine) fire(ctx context.Context, event string) bool {
	err := s.Event(ctx, event)
	if fsmutil.IsRealError(err) {
		log.Debug("Ignored connection event", "event", event, "state", s.Current(), "reason", err.Error())
	}
	return err == nil
}

func (s *stateMachine) state() core.State {
	return core.State(s.Current())
}
