package conn

import (
	"context"
	"errors"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"

	"github.com/rideline-io/rideline/internal/driveragent/core"
	"github.com/rideline-io/rideline/internal/driveragent/identity"
)

func TestConnectHandshake(t *testing.T) {
	h := newHarness(t, true, nil)
	tr := h.connect(t, "D1")

	want := core.Handshake{DriverID: "D1", Role: "driver", Platform: "dev", Version: "1.2.3", Token: "tok", ConnectTimeout: 10 * time.Second}
	if diff := cmp.Diff(want, tr.h); diff != "" {
		t.Errorf("handshake mismatch (-want +got):\n%s", diff)
	}
	if st := h.m.State(); st != core.StateConnected {
		t.Fatalf("state = %s, want connected", st)
	}
	if id, ok := h.m.Identity(); !ok || id.DriverID != "D1" {
		t.Errorf("identity = %+v, %v", id, ok)
	}
	if diff := cmp.Diff([]core.ConnectionChange{{Connected: true}}, h.connectionChanges()); diff != "" {
		t.Errorf("connection changes (-want +got):\n%s", diff)
	}
}

func TestConnectIsNoopWhenConnected(t *testing.T) {
	h := newHarness(t, true, nil)
	h.connect(t, "D1")
	h.connect(t, "D1")
	if n := h.factory.count(); n != 1 {
		t.Errorf("transports created = %d, want 1", n)
	}
}

func TestProductionPlatform(t *testing.T) {
	h := newHarness(t, true, func(c *Config) { c.Environment = core.EnvProduction })
	tr := h.connect(t, "D1")
	if tr.h.Platform != "android-apk" {
		t.Errorf("platform = %q, want android-apk", tr.h.Platform)
	}
	if got := h.m.Policy().MaxAttempts; got != 10 {
		t.Errorf("production MaxAttempts = %d, want 10", got)
	}
	if tr.h.ConnectTimeout != 20*time.Second {
		t.Errorf("handshake ConnectTimeout = %s, want the production 20s", tr.h.ConnectTimeout)
	}
}

func TestAtMostOneLiveTransport(t *testing.T) {
	h := newHarness(t, false, nil)
	id := identity.Identity{DriverID: "D1", Role: identity.RoleDriver}
	ctx := context.Background()

	steps := []func(){
		func() { _ = h.m.Connect(ctx, id) },
		func() { _ = h.m.Connect(ctx, id) },
		func() { h.m.Disconnect() },
		func() { h.m.Disconnect() },
		func() { _ = h.m.Connect(ctx, id) },
		func() { h.factory.last().up() },
		func() { _ = h.m.Connect(ctx, id) },
		func() { h.factory.last().drop(core.ReasonTransportClose) },
		func() { _ = h.m.Connect(ctx, id) },
		func() { h.m.Disconnect() },
	}
	for i, step := range steps {
		step()
		if n := h.factory.live(); n > 1 {
			t.Fatalf("after step %d: %d live transports", i, n)
		}
	}
	if n := h.factory.live(); n != 0 {
		t.Errorf("after final disconnect: %d live transports", n)
	}
}

func TestConnectConfigurationError(t *testing.T) {
	h := newHarness(t, true, nil)
	h.factory.err = errors.New("malformed endpoint")

	err := h.m.Connect(context.Background(), identity.Identity{DriverID: "D1", Role: identity.RoleDriver})
	var ce *core.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConfigurationError", err)
	}
	if st := h.m.State(); st != core.StateDisconnected {
		t.Errorf("state = %s, want disconnected", st)
	}
}

func TestConfigurationErrorLeavesReconnectPending(t *testing.T) {
	h := newHarness(t, true, nil)
	tr := h.connect(t, "D1")
	tr.drop(core.ReasonTransportClose)
	if st := h.m.State(); st != core.StateReconnectPending {
		t.Fatalf("state = %s, want reconnect_pending", st)
	}

	h.factory.mu.Lock()
	h.factory.err = errors.New("malformed endpoint")
	h.factory.mu.Unlock()

	err := h.m.Connect(context.Background(), identity.Identity{DriverID: "D1", Role: identity.RoleDriver})
	var ce *core.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConfigurationError", err)
	}
	if st := h.m.State(); st != core.StateDisconnected {
		t.Errorf("state = %s, want disconnected", st)
	}
	if h.clock.HasWaiters() {
		t.Error("the pending reconnect must be cancelled")
	}
	if !tr.isClosed() {
		t.Error("the old transport must be closed")
	}
}

func TestNewRequiresFactory(t *testing.T) {
	_, err := New(Config{})
	var ce *core.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConfigurationError", err)
	}
}

func TestReconnectLinearBackoffThenGiveUp(t *testing.T) {
	h := newHarness(t, true, nil)
	tr := h.connect(t, "D1")

	tr.drop(core.ReasonTransportClose)
	if st := h.m.State(); st != core.StateReconnectPending {
		t.Fatalf("state = %s, want reconnect_pending", st)
	}

	for attempt := 1; attempt <= 5; attempt++ {
		delay := time.Duration(attempt) * time.Second
		if !h.clock.HasWaiters() {
			t.Fatalf("attempt %d: no reconnect scheduled", attempt)
		}
		h.clock.Step(delay - time.Millisecond)
		if n := tr.reconnectCount(); n != attempt-1 {
			t.Fatalf("attempt %d fired early: %d reconnects after %v", attempt, n, delay-time.Millisecond)
		}
		h.clock.Step(time.Millisecond)
		waitFor(t, "scheduled reconnect", func() bool { return tr.reconnectCount() == attempt })

		tr.l.OnConnectError(errRefused)
	}

	if st := h.m.State(); st != core.StateFailed {
		t.Fatalf("state = %s, want failed", st)
	}
	if h.clock.HasWaiters() {
		t.Error("no reconnect may be scheduled after giving up")
	}
	h.clock.Step(time.Hour)
	time.Sleep(10 * time.Millisecond)
	if n := tr.reconnectCount(); n != 5 {
		t.Errorf("reconnects = %d, want exactly 5", n)
	}

	// A transport that recovers on its own after exhaustion is ignored.
	tr.up()
	if st := h.m.State(); st != core.StateFailed {
		t.Errorf("state after a late connect = %s, want failed", st)
	}

	for _, cc := range h.connectionChanges()[1:] {
		if cc.Connected {
			t.Errorf("unexpected connected change %+v", cc)
		}
	}
}

func TestSuccessfulReconnectResetsAttempts(t *testing.T) {
	h := newHarness(t, true, nil)
	tr := h.connect(t, "D1")

	tr.drop(core.ReasonPingTimeout)
	h.clock.Step(time.Second)
	waitFor(t, "first reconnect", func() bool { return tr.reconnectCount() == 1 })
	tr.l.OnConnectError(errRefused)
	h.clock.Step(2 * time.Second)
	waitFor(t, "second reconnect", func() bool { return tr.reconnectCount() == 2 })

	tr.up()
	if st := h.m.State(); st != core.StateConnected {
		t.Fatalf("state = %s, want connected", st)
	}
	changes := h.connectionChanges()
	if last := changes[len(changes)-1]; !last.Connected || !last.Reconnected {
		t.Errorf("last change = %+v, want a reconnect", last)
	}

	// Counter is back at zero: the next loss waits one base delay again.
	tr.drop(core.ReasonTransportError)
	h.clock.Step(time.Second)
	waitFor(t, "reconnect after reset", func() bool { return tr.reconnectCount() == 3 })
}

func TestServerDisconnectIsNotRetried(t *testing.T) {
	h := newHarness(t, true, nil)
	tr := h.connect(t, "D1")

	tr.drop(core.ReasonServerDisconnect)
	if st := h.m.State(); st != core.StateDisconnected {
		t.Errorf("state = %s, want disconnected", st)
	}
	if h.clock.HasWaiters() {
		t.Error("server disconnect must not schedule a reconnect")
	}
	changes := h.connectionChanges()
	if last := changes[len(changes)-1]; last.Connected || last.Reason != core.ReasonServerDisconnect {
		t.Errorf("last change = %+v", last)
	}
}

func TestConnectErrorWhileConnecting(t *testing.T) {
	h := newHarness(t, false, nil)
	tr := h.connect(t, "D1")

	tr.l.OnConnectError(errRefused)
	if st := h.m.State(); st != core.StateReconnectPending {
		t.Fatalf("state = %s, want reconnect_pending", st)
	}
	h.clock.Step(time.Second)
	waitFor(t, "reconnect", func() bool { return tr.reconnectCount() == 1 })
}

func TestStaleTransportCallbacksIgnored(t *testing.T) {
	h := newHarness(t, false, nil)
	old := h.connect(t, "D1")
	h.m.Disconnect()
	cur := h.connect(t, "D2")

	var rides int
	h.reg.Subscribe(core.KindRideTaken, func(context.Context, core.Event) error { rides++; return nil })

	old.up()
	if st := h.m.State(); st != core.StateConnecting {
		t.Errorf("stale OnConnect changed state to %s", st)
	}
	old.event(core.EventRideTaken, `{"rideId":"R1"}`)
	old.drop(core.ReasonTransportClose)
	if rides != 0 || h.clock.HasWaiters() {
		t.Errorf("stale callbacks had effects: rides=%d waiters=%v", rides, h.clock.HasWaiters())
	}

	cur.up()
	cur.event(core.EventRideTaken, `{"rideId":"R1"}`)
	if rides != 1 {
		t.Errorf("rides = %d, want 1", rides)
	}
}

func TestDisconnectKeepsSubscriptions(t *testing.T) {
	h := newHarness(t, true, nil)
	h.connect(t, "D1")
	h.reg.Subscribe(core.KindChatMessage, func(context.Context, core.Event) error { return nil })

	h.m.Disconnect()
	if st := h.m.State(); st != core.StateDisconnected {
		t.Errorf("state = %s", st)
	}
	if _, ok := h.m.Identity(); ok {
		t.Error("identity should be discarded on disconnect")
	}
	if !h.reg.Subscribed(core.KindChatMessage) {
		t.Error("subscriptions must survive disconnect")
	}
	changes := h.connectionChanges()
	if last := changes[len(changes)-1]; last.Connected || last.Reason != core.ReasonClientDisconnect {
		t.Errorf("last change = %+v", last)
	}
}

func TestEmitRequiresConnected(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()

	if err := h.m.Emit(ctx, "accept_ride", nil); !errors.Is(err, core.ErrCommandDropped) {
		t.Errorf("emit while disconnected: err = %v", err)
	}

	tr := h.connect(t, "D1")
	if err := h.m.Emit(ctx, "accept_ride", nil); !errors.Is(err, core.ErrCommandDropped) {
		t.Errorf("emit while connecting: err = %v", err)
	}
	tr.l.OnConnectError(errRefused)
	if err := h.m.Emit(ctx, "accept_ride", nil); !errors.Is(err, core.ErrCommandDropped) {
		t.Errorf("emit while reconnect pending: err = %v", err)
	}
	if n := tr.writeCount(); n != 0 {
		t.Fatalf("transport writes = %d, want 0", n)
	}

	tr.up()
	if err := h.m.Emit(ctx, "accept_ride", map[string]string{"rideId": "R1"}); err != nil {
		t.Fatalf("emit while connected: %v", err)
	}
	if n := tr.writeCount(); n != 1 {
		t.Errorf("transport writes = %d, want 1", n)
	}
}

func TestPolicy(t *testing.T) {
	p := DefaultPolicy()
	if got := p.Delay(3); got != 3*time.Second {
		t.Errorf("Delay(3) = %v", got)
	}
	prod := p.For(core.EnvProduction)
	if prod.MaxAttempts != 10 || prod.ConnectTimeout != 20*time.Second || prod.BaseDelay != time.Second {
		t.Errorf("production policy = %+v", prod)
	}
	if dev := p.For(core.EnvDevelopment); dev != p {
		t.Errorf("development policy changed: %+v", dev)
	}
}

func TestFallbackIdentity(t *testing.T) {
	h := newHarness(t, true, func(c *Config) { c.Fallback = identity.StaticDriverID("D7") })

	st, err := h.m.EnsureConnected(context.Background(), driverToken(t, jwtlib.MapClaims{"role": "driver"}))
	if err != nil || st != core.StateConnected {
		t.Fatalf("EnsureConnected = %s, %v", st, err)
	}
	if got := h.factory.last().h.DriverID; got != "D7" {
		t.Errorf("driver id = %q, want fallback D7", got)
	}
}
