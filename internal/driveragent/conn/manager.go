// Package conn owns the driver's real-time connection: its lifecycle state, automatic
// reconnection, and the connect sequences used on app start and on demand.
package conn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/rideline-io/rideline/internal/driveragent/core"
	"github.com/rideline-io/rideline/internal/driveragent/identity"
	"github.com/rideline-io/rideline/internal/driveragent/registry"
	"github.com/rideline-io/rideline/internal/pkg/metrics"
	"github.com/rideline-io/rideline/pkg/log"
)

// ErrSuperseded is returned by a connect sequence after a newer explicit operation started.
var ErrSuperseded = errors.New("connect sequence superseded by a newer operation")

var errNoIdentity = errors.New("connected without a resolved identity")

// Alerter surfaces server rejections to the user-visible layer.
type Alerter interface {
	Alert(ctx context.Context, r *core.ServerRejection)
}

// AlerterFunc adapts a function to Alerter.
type AlerterFunc func(ctx context.Context, r *core.ServerRejection)

func (f AlerterFunc) Alert(ctx context.Context, r *core.ServerRejection) { f(ctx, r) }

// Observer sees every inbound wire event after it was dispatched.
type Observer func(ctx context.Context, name string, payload json.RawMessage)

// Config holds the collaborators and tuning of a Manager.
type Config struct {
	Policy      Policy
	Environment core.Environment
	// Version is reported in the handshake.
	Version string
	// SettleInterval is the wait before a fresh connection is verified. Default is 1s.
	SettleInterval time.Duration
	// BootstrapWindows are the waits of the production cold-start attempts. Default is 5s, 4s.
	BootstrapWindows []time.Duration

	Factory  core.TransportFactory
	Resolver *identity.Resolver
	Fallback identity.Fallback
	Registry *registry.Registry
	Alerter  Alerter
	Clock    clock.WithDelayedExecution

	// LegacyAliases routes the legacy event names to their slots.
	LegacyAliases bool
}

// Manager is the connection context object. Create one per process and share it.
type Manager struct {
	policy   Policy
	env      core.Environment
	version  string
	settle   time.Duration
	windows  []time.Duration
	factory  core.TransportFactory
	resolver *identity.Resolver
	fallback identity.Fallback
	registry *registry.Registry
	alerter  Alerter
	clock    clock.WithDelayedExecution
	legacy   bool

	// opMu serializes transport replacement so that at most one transport is ever live.
	opMu sync.Mutex

	mu              sync.Mutex
	sm              *stateMachine
	transport       core.Transport
	binding         uint64
	identity        *identity.Identity
	attempts        int
	generation      uint64
	everConnected   bool
	connected       chan struct{}
	connectedClosed bool
	reconnectTimer  clock.Timer
	observers       []Observer
}

// New returns a Manager in the Disconnected state.
func New(cfg Config) (*Manager, error) {
	if cfg.Factory == nil {
		return nil, &core.ConfigurationError{Err: errors.New("transport factory is required")}
	}
	if cfg.Environment == "" {
		cfg.Environment = core.EnvDevelopment
	}
	if cfg.Policy == (Policy{}) {
		cfg.Policy = DefaultPolicy()
	}
	if cfg.SettleInterval <= 0 {
		cfg.SettleInterval = time.Second
	}
	if len(cfg.BootstrapWindows) == 0 {
		cfg.BootstrapWindows = []time.Duration{5 * time.Second, 4 * time.Second}
	}
	if cfg.Resolver == nil {
		cfg.Resolver = identity.NewResolver()
	}
	if cfg.Registry == nil {
		cfg.Registry = registry.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}

	m := &Manager{
		policy:    cfg.Policy.For(cfg.Environment),
		env:       cfg.Environment,
		version:   cfg.Version,
		settle:    cfg.SettleInterval,
		windows:   cfg.BootstrapWindows,
		factory:   cfg.Factory,
		resolver:  cfg.Resolver,
		fallback:  cfg.Fallback,
		registry:  cfg.Registry,
		alerter:   cfg.Alerter,
		clock:     cfg.Clock,
		legacy:    cfg.LegacyAliases,
		connected: make(chan struct{}),
	}
	m.sm = newStateMachine(func() error {
		if m.identity == nil {
			return errNoIdentity
		}
		return nil
	})
	return m, nil
}

// State returns the current connection state.
func (m *Manager) State() core.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sm.state()
}

// Identity returns the identity of the current handshake.
func (m *Manager) Identity() (identity.Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity == nil {
		return identity.Identity{}, false
	}
	return *m.identity, true
}

// Registry returns the event registry inbound events are dispatched to.
func (m *Manager) Registry() *registry.Registry {
	return m.registry
}

// Policy returns the effective reconnection policy.
func (m *Manager) Policy() Policy {
	return m.policy
}

// AddObserver registers fn for every inbound event.
func (m *Manager) AddObserver(fn Observer) {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

// Connect opens a transport for id. It is a no-op when already Connected.
// Only a rejected transport configuration is returned; connection failures go to the
// reconnection policy and the ConnectionChange slot.
func (m *Manager) Connect(ctx context.Context, id identity.Identity) error {
	gen := m.begin()
	return m.connect(ctx, id, gen)
}

// Disconnect tears the transport down and keeps the subscriptions.
func (m *Manager) Disconnect() {
	m.begin()

	m.opMu.Lock()
	m.mu.Lock()
	wasConnected := m.sm.state() == core.StateConnected
	old := m.detachLocked()
	m.sm.fire(context.Background(), eventDown)
	m.identity = nil
	m.attempts = 0
	m.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	m.opMu.Unlock()

	log.Info("Disconnected from ride server")
	if wasConnected {
		m.dispatchChange(context.Background(), core.EventDisconnect, core.ConnectionChange{Reason: core.ReasonClientDisconnect})
	}
}

// Emit writes a command if and only if the channel is Connected at the time of the call.
// Otherwise it returns core.ErrCommandDropped without touching the transport.
func (m *Manager) Emit(ctx context.Context, event string, payload any) error {
	m.mu.Lock()
	t := m.transport
	st := m.sm.state()
	m.mu.Unlock()

	if st != core.StateConnected || t == nil || !t.Connected() {
		metrics.CommandsTotal.WithLabelValues(event, metrics.ResultDropped).Inc()
		return fmt.Errorf("%w (state %s)", core.ErrCommandDropped, st)
	}

	start := time.Now()
	err := t.Emit(ctx, event, payload)
	metrics.CommandLatency.WithLabelValues(event).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CommandsTotal.WithLabelValues(event, metrics.ResultFailed).Inc()
		return fmt.Errorf("emit %s: %w", event, err)
	}
	metrics.CommandsTotal.WithLabelValues(event, metrics.ResultSent).Inc()
	return nil
}

// begin starts a new explicit sequence. Older sequences see a stale generation and stop.
func (m *Manager) begin() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	return m.generation
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation == gen
}

func (m *Manager) connect(ctx context.Context, id identity.Identity, gen uint64) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return ErrSuperseded
	}
	if m.sm.state() == core.StateConnected {
		m.mu.Unlock()
		return nil
	}
	old := m.detachLocked()
	m.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	m.mu.Lock()
	m.binding++
	b := &binding{m: m, id: m.binding}
	m.mu.Unlock()

	t, err := m.factory(core.Handshake{
		DriverID: id.DriverID,
		Role:     id.Role,
		Platform: m.env.Platform(),
		Version:  m.version,
		Token:    id.Token,

		ConnectTimeout: m.policy.ConnectTimeout,
	}, b)
	if err != nil {
		var ce *core.ConfigurationError
		if !errors.As(err, &ce) {
			err = &core.ConfigurationError{Err: err}
		}
		// The old transport and any pending reconnect are gone.
		m.mu.Lock()
		if m.binding == b.id {
			m.sm.fire(ctx, eventDown)
			m.attempts = 0
		}
		m.mu.Unlock()
		log.Error(err, "Transport rejected its configuration")
		return err
	}

	m.mu.Lock()
	if m.binding != b.id {
		m.mu.Unlock()
		_ = t.Close()
		return ErrSuperseded
	}
	m.transport = t
	m.identity = &id
	m.attempts = 0
	m.sm.fire(ctx, eventDial)
	m.mu.Unlock()

	log.Info("Connecting to ride server", "driverID", id.DriverID, "platform", m.env.Platform(), "attempts", m.policy.MaxAttempts)
	if err := t.Open(ctx); err != nil {
		b.OnConnectError(err)
	}
	return nil
}

// teardown closes the transport as part of a connect sequence. The identity is kept.
func (m *Manager) teardown() {
	m.opMu.Lock()
	m.mu.Lock()
	wasConnected := m.sm.state() == core.StateConnected
	old := m.detachLocked()
	m.sm.fire(context.Background(), eventDown)
	m.attempts = 0
	m.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	m.opMu.Unlock()

	if wasConnected {
		m.dispatchChange(context.Background(), core.EventDisconnect, core.ConnectionChange{Reason: core.ReasonClientDisconnect})
	}
}

// detachLocked unbinds the live transport so that its callbacks are ignored, and returns it.
func (m *Manager) detachLocked() core.Transport {
	t := m.transport
	m.transport = nil
	m.binding++
	m.stopReconnectLocked()
	m.resetConnectedLocked()
	return t
}

func (m *Manager) stopReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *Manager) resetConnectedLocked() {
	if m.connectedClosed {
		m.connected = make(chan struct{})
		m.connectedClosed = false
	}
}

func (m *Manager) markConnectedLocked() {
	if !m.connectedClosed {
		close(m.connected)
		m.connectedClosed = true
	}
}

// resolve derives the identity for a token-driven operation, applying the fallback policy.
func (m *Manager) resolve(ctx context.Context, tp identity.TokenProvider) (identity.Identity, error) {
	id, err := m.resolver.Resolve(ctx, tp)
	if err == nil {
		return id, nil
	}
	if m.fallback != nil {
		if fid, ok := m.fallback(ctx, id.Token, err); ok {
			log.Warn("Using fallback driver identity", "driverID", fid.DriverID, "reason", err.Error())
			return fid, nil
		}
	}
	log.Error(err, "Unable to resolve driver identity")
	return identity.Identity{}, err
}

// awaitConnected waits up to d for the Connected state. It reports ErrSuperseded when a
// newer sequence started meanwhile.
func (m *Manager) awaitConnected(ctx context.Context, gen uint64, d time.Duration) (bool, error) {
	m.mu.Lock()
	ch := m.connected
	m.mu.Unlock()

	t := m.clock.NewTimer(d)
	defer t.Stop()

	select {
	case <-ch:
	case <-t.C():
	case <-ctx.Done():
		return false, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		return false, ErrSuperseded
	}
	return m.sm.state() == core.StateConnected, nil
}

// sleep waits d unless ctx ends or a newer sequence starts.
func (m *Manager) sleep(ctx context.Context, gen uint64, d time.Duration) error {
	t := m.clock.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C():
	case <-ctx.Done():
		return ctx.Err()
	}
	if !m.current(gen) {
		return ErrSuperseded
	}
	return nil
}
