package conn

import (
	"context"
	"encoding/json"

	"github.com/rideline-io/rideline/internal/driveragent/core"
	"github.com/rideline-io/rideline/internal/pkg/metrics"
	"github.com/rideline-io/rideline/pkg/log"
)

// binding ties transport callbacks to the transport instance they came from.
// Callbacks of a transport that is no longer current are dropped.
type binding struct {
	m  *Manager
	id uint64
}

var _ core.Listener = (*binding)(nil)

func (b *binding) OnConnect()                 { b.m.handleConnect(b.id) }
func (b *binding) OnDisconnect(reason string) { b.m.handleDisconnect(b.id, reason) }
func (b *binding) OnConnectError(err error)   { b.m.handleConnectError(b.id, err) }
func (b *binding) OnEvent(name string, payload json.RawMessage) {
	b.m.handleEvent(b.id, name, payload)
}

func (m *Manager) handleConnect(id uint64) {
	ctx := context.Background()

	m.mu.Lock()
	if id != m.binding {
		m.mu.Unlock()
		return
	}
	if m.sm.state() == core.StateConnected {
		m.mu.Unlock()
		return
	}
	if st := m.sm.state(); !m.sm.fire(ctx, eventUp) {
		m.mu.Unlock()
		log.Warn("Ignoring transport connect", "state", st)
		return
	}
	m.attempts = 0
	m.stopReconnectLocked()
	m.markConnectedLocked()
	reconnected := m.everConnected
	m.everConnected = true
	driverID := m.identity.DriverID
	m.mu.Unlock()

	name := core.EventConnect
	if reconnected {
		name = core.EventReconnect
		log.Info("Reconnected to ride server", "driverID", driverID)
	} else {
		log.Info("Connected to ride server", "driverID", driverID)
	}
	m.dispatchChange(ctx, name, core.ConnectionChange{Connected: true, Reconnected: reconnected})
}

func (m *Manager) handleDisconnect(id uint64, reason string) {
	ctx := context.Background()

	m.mu.Lock()
	if id != m.binding {
		m.mu.Unlock()
		return
	}
	m.resetConnectedLocked()

	if core.Intentional(reason) {
		m.sm.fire(ctx, eventDown)
		m.stopReconnectLocked()
		m.mu.Unlock()
		log.Info("Ride server closed the connection", "reason", reason)
		m.dispatchChange(ctx, core.EventDisconnect, core.ConnectionChange{Reason: reason})
		return
	}

	m.scheduleReconnectLocked(ctx, reason)
	m.mu.Unlock()

	log.Warn("Connection lost", "reason", reason)
	m.dispatchChange(ctx, core.EventDisconnect, core.ConnectionChange{Reason: reason})
}

func (m *Manager) handleConnectError(id uint64, err error) {
	ctx := context.Background()

	m.mu.Lock()
	if id != m.binding {
		m.mu.Unlock()
		return
	}
	st := m.sm.state()
	if st != core.StateConnecting && st != core.StateReconnectPending {
		m.mu.Unlock()
		return
	}
	m.scheduleReconnectLocked(ctx, err.Error())
	m.mu.Unlock()

	cerr := &core.ConnectionError{Reason: core.EventConnectError, Err: err}
	log.Warn("Connection attempt failed", "error", cerr.Error())
	m.dispatchChange(ctx, core.EventConnectError, core.ConnectionChange{Reason: err.Error()})
}

// scheduleReconnectLocked applies the linear backoff, or gives up once attempts are exhausted.
func (m *Manager) scheduleReconnectLocked(ctx context.Context, reason string) {
	m.stopReconnectLocked()

	if m.attempts >= m.policy.MaxAttempts {
		m.sm.fire(ctx, eventExhaust)
		log.Warn("Giving up reconnecting", "attempts", m.attempts, "reason", reason)
		return
	}

	m.attempts++
	attempt := m.attempts
	delay := m.policy.Delay(attempt)
	gen, id := m.generation, m.binding
	m.sm.fire(ctx, eventLost)
	// The clock may run AfterFunc callbacks under its own lock; hop to a goroutine.
	m.reconnectTimer = m.clock.AfterFunc(delay, func() { go m.fireReconnect(gen, id, attempt) })

	metrics.ReconnectAttemptsTotal.Inc()
	log.Info("Scheduled reconnect", "attempt", attempt, "maxAttempts", m.policy.MaxAttempts, "delay", delay)
}

func (m *Manager) fireReconnect(gen, id uint64, attempt int) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	ctx := context.Background()

	m.mu.Lock()
	if gen != m.generation || id != m.binding || m.sm.state() != core.StateReconnectPending {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	t := m.transport
	m.sm.fire(ctx, eventDial)
	m.mu.Unlock()

	log.Debug("Reconnecting", "attempt", attempt)
	if err := t.Reconnect(ctx); err != nil {
		go m.handleConnectError(id, err)
	}
}

func (m *Manager) dispatchChange(ctx context.Context, name string, cc core.ConnectionChange) {
	payload, _ := json.Marshal(cc)
	m.registry.Dispatch(ctx, core.Event{Kind: core.KindConnectionChange, Name: name, Payload: payload})
}
