package conn

import (
	"context"
	"errors"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rideline-io/rideline/internal/driveragent/core"
)

type result[T any] struct {
	v   T
	err error
}

// advance steps the fake clock by d once a timer is waiting on it.
func (h *harness) advance(t *testing.T, d time.Duration) {
	t.Helper()
	waitFor(t, "a pending timer", h.clock.HasWaiters)
	h.clock.Step(d)
}

func TestEnsureConnectedIdempotent(t *testing.T) {
	h := newHarness(t, true, nil)
	tp := driverToken(t, jwtlib.MapClaims{"driverId": "D1", "role": "Driver"})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		st, err := h.m.EnsureConnected(ctx, tp)
		if err != nil || st != core.StateConnected {
			t.Fatalf("call %d: EnsureConnected = %s, %v", i, st, err)
		}
	}
	if n := h.factory.count(); n != 1 {
		t.Errorf("transports created = %d, want 1", n)
	}
}

func TestEnsureConnectedRetriesOnce(t *testing.T) {
	h := newHarness(t, false, nil)
	tp := driverToken(t, jwtlib.MapClaims{"driverId": "D1"})

	done := make(chan result[core.State], 1)
	go func() {
		st, err := h.m.EnsureConnected(context.Background(), tp)
		done <- result[core.State]{st, err}
	}()

	h.advance(t, time.Second)
	waitFor(t, "second transport", func() bool { return h.factory.count() == 2 })
	h.advance(t, time.Second)

	r := <-done
	if r.err != nil {
		t.Fatalf("EnsureConnected: %v", r.err)
	}
	if r.v != core.StateConnecting {
		t.Errorf("state = %s, want connecting", r.v)
	}
	if n := h.factory.live(); n != 1 {
		t.Errorf("live transports = %d, want 1", n)
	}
}

func TestEnsureConnectedIdentityError(t *testing.T) {
	h := newHarness(t, true, nil)

	_, err := h.m.EnsureConnected(context.Background(), driverToken(t, jwtlib.MapClaims{"id": "D1", "role": "rider"}))
	var ie *core.IdentityError
	if !errors.As(err, &ie) {
		t.Fatalf("err = %v, want IdentityError", err)
	}
	if n := h.factory.count(); n != 0 {
		t.Errorf("transports created = %d, want 0", n)
	}
}

func TestForceReconnectTearsDown(t *testing.T) {
	h := newHarness(t, true, nil)
	tp := driverToken(t, jwtlib.MapClaims{"driverId": "D1"})
	first := h.connect(t, "D1")

	done := make(chan error, 1)
	go func() { done <- h.m.ForceReconnect(context.Background(), tp) }()

	waitFor(t, "teardown", first.isClosed)
	h.advance(t, time.Second)

	if err := <-done; err != nil {
		t.Fatalf("ForceReconnect: %v", err)
	}
	if n := h.factory.count(); n != 2 {
		t.Errorf("transports created = %d, want 2", n)
	}
	if st := h.m.State(); st != core.StateConnected {
		t.Errorf("state = %s", st)
	}
	changes := h.connectionChanges()
	if last := changes[len(changes)-1]; !last.Connected || !last.Reconnected {
		t.Errorf("last change = %+v, want reconnected", last)
	}
}

func TestBootstrapDevelopmentUsesEnsure(t *testing.T) {
	h := newHarness(t, true, nil)
	h.connect(t, "D1")

	if err := h.m.Bootstrap(context.Background(), driverToken(t, jwtlib.MapClaims{"driverId": "D1"})); err != nil {
		t.Fatal(err)
	}
	if n := h.factory.count(); n != 1 {
		t.Errorf("transports created = %d, want 1", n)
	}
}

func TestBootstrapProductionWindows(t *testing.T) {
	h := newHarness(t, false, func(c *Config) { c.Environment = core.EnvProduction })
	tp := driverToken(t, jwtlib.MapClaims{"driverId": "D1"})

	done := make(chan error, 1)
	go func() { done <- h.m.Bootstrap(context.Background(), tp) }()

	// First window.
	waitFor(t, "first transport", func() bool { return h.factory.count() == 1 })
	h.advance(t, 5*time.Second)
	// Second window after a teardown.
	waitFor(t, "second transport", func() bool { return h.factory.count() == 2 })
	h.advance(t, 4*time.Second)
	// Forced reconnect: settle, then connect and verify.
	h.advance(t, time.Second)
	waitFor(t, "forced transport", func() bool { return h.factory.count() == 3 })
	h.factory.last().up()

	if err := <-done; err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if n := h.factory.live(); n != 1 {
		t.Errorf("live transports = %d, want 1", n)
	}
	if st := h.m.State(); st != core.StateConnected {
		t.Errorf("state = %s", st)
	}
}

func TestBootstrapSupersededByDisconnect(t *testing.T) {
	h := newHarness(t, false, func(c *Config) { c.Environment = core.EnvProduction })
	tp := driverToken(t, jwtlib.MapClaims{"driverId": "D1"})

	done := make(chan error, 1)
	go func() { done <- h.m.Bootstrap(context.Background(), tp) }()

	waitFor(t, "first transport", func() bool { return h.factory.count() == 1 })
	waitFor(t, "window timer", h.clock.HasWaiters)
	h.m.Disconnect()
	h.clock.Step(5 * time.Second)

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("Bootstrap err = %v, want ErrSuperseded", err)
	}
	if n := h.factory.count(); n != 1 {
		t.Errorf("transports created = %d, want 1", n)
	}
	if n := h.factory.live(); n != 0 {
		t.Errorf("live transports = %d, want 0", n)
	}
}

func TestSequenceHonorsContext(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := h.m.EnsureConnected(ctx, driverToken(t, jwtlib.MapClaims{"driverId": "D1"}))
		done <- err
	}()
	waitFor(t, "settle timer", h.clock.HasWaiters)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
