package otp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	testingclock "k8s.io/utils/clock/testing"

	"github.com/rideline-io/rideline/internal/driveragent/command"
	"github.com/rideline-io/rideline/internal/driveragent/core"
	"github.com/rideline-io/rideline/internal/driveragent/registry"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Emit(_ context.Context, event string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type verifier struct{ err error }

func (v verifier) VerifyOTP(context.Context, string, string) error { return v.err }

type fixture struct {
	c     *Coordinator
	reg   *registry.Registry
	rec   *recorder
	clock *testingclock.FakeClock
}

func newFixture(v Verifier) *fixture {
	f := &fixture{reg: registry.New(), rec: &recorder{}, clock: testingclock.NewFakeClock(time.Unix(1700000000, 0))}
	f.c = NewCoordinator(v, f.reg, command.NewEmitter(f.rec), f.clock, 0)
	return f
}

func (f *fixture) verify(req Request) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		o, _ := f.c.Verify(context.Background(), req)
		out <- o
	}()
	return out
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func started(rideID string) core.Event {
	return core.Event{Kind: core.KindRideStarted, Name: core.EventRideStarted, Payload: json.RawMessage(`{"rideId":"` + rideID + `"}`)}
}

func TestRideStartedBeforeFallback(t *testing.T) {
	f := newFixture(verifier{})
	out := f.verify(Request{RideID: "R1", DriverID: "D1", OTP: "4821"})

	waitUntil(t, f.clock.HasWaiters)
	f.reg.Dispatch(context.Background(), started("R2"))
	f.clock.Step(9 * time.Second)
	f.reg.Dispatch(context.Background(), started("R1"))

	if o := <-out; o != OutcomeStarted {
		t.Fatalf("outcome = %s, want started", o)
	}
	f.clock.Step(time.Minute)
	if got := f.rec.sent(); len(got) != 1 || got[0] != "send_otp" {
		t.Errorf("sent = %v, want only send_otp", got)
	}
	if f.reg.Subscribed(core.KindRideStarted) {
		t.Error("RideStarted slot must be released")
	}
}

func TestFallbackStartsRideOnce(t *testing.T) {
	f := newFixture(nil)
	out := f.verify(Request{RideID: "R1", DriverID: "D1", OTP: "4821"})

	waitUntil(t, f.clock.HasWaiters)
	f.clock.Step(10 * time.Second)

	if o := <-out; o != OutcomeFallback {
		t.Fatalf("outcome = %s, want fallback", o)
	}
	f.reg.Dispatch(context.Background(), started("R1"))
	f.clock.Step(time.Minute)

	want := []string{"send_otp", "start_ride"}
	got := f.rec.sent()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("sent = %v, want %v", got, want)
	}
}

func TestRejectedOTP(t *testing.T) {
	bad := errors.New("invalid otp")
	f := newFixture(verifier{err: bad})

	o, err := f.c.Verify(context.Background(), Request{RideID: "R1", DriverID: "D1", OTP: "0000"})
	if o != OutcomeRejected || !errors.Is(err, bad) {
		t.Fatalf("Verify = %s, %v", o, err)
	}
	if got := f.rec.sent(); len(got) != 0 {
		t.Errorf("sent = %v, want nothing", got)
	}
	if f.reg.Subscribed(core.KindRideStarted) {
		t.Error("rejected OTP must not hold the RideStarted slot")
	}
}

func TestVerifyRequiresRideAndOTP(t *testing.T) {
	f := newFixture(nil)
	if _, err := f.c.Verify(context.Background(), Request{RideID: "R1"}); err == nil {
		t.Error("missing otp should fail")
	}
}

func TestVerifyCanceled(t *testing.T) {
	f := newFixture(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.c.Verify(ctx, Request{RideID: "R1", DriverID: "D1", OTP: "1"})
		done <- err
	}()
	waitUntil(t, f.clock.HasWaiters)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

func TestVerifyKeepsLaterRideStartedSubscriber(t *testing.T) {
	f := newFixture(verifier{})
	out := f.verify(Request{RideID: "R1", DriverID: "D1", OTP: "4821"})
	waitUntil(t, f.clock.HasWaiters)

	var screen int
	f.reg.Subscribe(core.KindRideStarted, func(context.Context, core.Event) error { screen++; return nil })
	f.clock.Step(10 * time.Second)
	if o := <-out; o != OutcomeFallback {
		t.Fatalf("outcome = %s, want fallback", o)
	}

	if !f.reg.Subscribed(core.KindRideStarted) {
		t.Fatal("Verify cleared a subscriber it did not install")
	}
	f.reg.Dispatch(context.Background(), started("R1"))
	if screen != 1 {
		t.Errorf("screen handler calls = %d, want 1", screen)
	}
}
