package conn

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	testingclock "k8s.io/utils/clock/testing"

	"github.com/rideline-io/rideline/internal/driveragent/core"
	"github.com/rideline-io/rideline/internal/driveragent/identity"
	"github.com/rideline-io/rideline/internal/driveragent/registry"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

type write struct {
	event   string
	payload any
}

type fakeTransport struct {
	f *fakeFactory
	h core.Handshake
	l core.Listener

	mu         sync.Mutex
	connected  bool
	opened     bool
	closed     bool
	reconnects int
	writes     []write
}

func (t *fakeTransport) Open(context.Context) error {
	t.mu.Lock()
	t.opened = true
	auto := t.f.autoConnect
	t.mu.Unlock()
	if auto {
		t.up()
	}
	return nil
}

func (t *fakeTransport) Reconnect(context.Context) error {
	t.mu.Lock()
	t.reconnects++
	t.mu.Unlock()
	t.f.reconnected <- t
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	was := t.connected
	t.connected = false
	t.closed = true
	t.mu.Unlock()
	if was {
		t.l.OnDisconnect(core.ReasonClientDisconnect)
	}
	return nil
}

func (t *fakeTransport) Emit(_ context.Context, event string, payload any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes = append(t.writes, write{event, payload})
	return nil
}

func (t *fakeTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// up completes the handshake.
func (t *fakeTransport) up() {
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	t.l.OnConnect()
}

// drop simulates a lost connection.
func (t *fakeTransport) drop(reason string) {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	t.l.OnDisconnect(reason)
}

func (t *fakeTransport) event(name, payload string) {
	t.l.OnEvent(name, json.RawMessage(payload))
}

func (t *fakeTransport) writeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.writes)
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) reconnectCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reconnects
}

type fakeFactory struct {
	mu          sync.Mutex
	autoConnect bool
	err         error
	transports  []*fakeTransport
	reconnected chan *fakeTransport
}

func newFakeFactory(autoConnect bool) *fakeFactory {
	return &fakeFactory{autoConnect: autoConnect, reconnected: make(chan *fakeTransport, 16)}
}

func (f *fakeFactory) build(h core.Handshake, l core.Listener) (core.Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	t := &fakeTransport{f: f, h: h, l: l}
	f.transports = append(f.transports, t)
	return t, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transports)
}

func (f *fakeFactory) last() *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.transports) == 0 {
		return nil
	}
	return f.transports[len(f.transports)-1]
}

// live counts transports that were opened and not closed.
func (f *fakeFactory) live() int {
	f.mu.Lock()
	ts := append([]*fakeTransport(nil), f.transports...)
	f.mu.Unlock()
	n := 0
	for _, t := range ts {
		t.mu.Lock()
		if t.opened && !t.closed {
			n++
		}
		t.mu.Unlock()
	}
	return n
}

type harness struct {
	m       *Manager
	factory *fakeFactory
	clock   *testingclock.FakeClock
	reg     *registry.Registry

	mu      sync.Mutex
	changes []core.ConnectionChange
}

func newHarness(t *testing.T, autoConnect bool, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{
		factory: newFakeFactory(autoConnect),
		clock:   testingclock.NewFakeClock(time.Unix(1700000000, 0)),
		reg:     registry.New(),
	}
	cfg := Config{
		Policy:        Policy{MaxAttempts: 5, BaseDelay: time.Second, ConnectTimeout: 10 * time.Second, ProductionMultiplier: 2},
		Environment:   core.EnvDevelopment,
		Version:       "1.2.3",
		Factory:       h.factory.build,
		Registry:      h.reg,
		Clock:         h.clock,
		LegacyAliases: true,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.m = m
	h.reg.Subscribe(core.KindConnectionChange, registry.JSON(func(_ context.Context, cc core.ConnectionChange) error {
		h.mu.Lock()
		h.changes = append(h.changes, cc)
		h.mu.Unlock()
		return nil
	}))
	return h
}

func (h *harness) connectionChanges() []core.ConnectionChange {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]core.ConnectionChange(nil), h.changes...)
}

func (h *harness) connect(t *testing.T, driverID string) *fakeTransport {
	t.Helper()
	if err := h.m.Connect(context.Background(), identity.Identity{DriverID: driverID, Role: identity.RoleDriver, Token: "tok"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return h.factory.last()
}

// waitFor polls cond until it holds.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func driverToken(t *testing.T, claims jwtlib.MapClaims) identity.TokenProvider {
	t.Helper()
	s, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	return identity.StaticToken(s)
}

var errRefused = errors.New("connection refused")
