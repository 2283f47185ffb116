package conn

import (
	"context"
	"time"

	"github.com/rideline-io/rideline/internal/driveragent/core"
	"github.com/rideline-io/rideline/internal/driveragent/identity"
	"github.com/rideline-io/rideline/pkg/log"
)

// EnsureConnected returns at once when Connected. Otherwise it resolves the identity,
// connects, and verifies after the settle interval, retrying resolve+connect once.
// Failing to verify is not an error; the resulting state is returned.
func (m *Manager) EnsureConnected(ctx context.Context, tp identity.TokenProvider) (core.State, error) {
	if st := m.State(); st == core.StateConnected {
		return st, nil
	}
	gen := m.begin()
	return m.ensureConnected(ctx, tp, gen)
}

func (m *Manager) ensureConnected(ctx context.Context, tp identity.TokenProvider, gen uint64) (core.State, error) {
	for try := 1; try <= 2; try++ {
		ok, err := m.attempt(ctx, tp, gen, m.settle)
		if err != nil {
			return m.State(), err
		}
		if ok {
			return core.StateConnected, nil
		}
		log.Debug("Connection not verified after settle interval", "try", try)
	}
	return m.State(), nil
}

// ForceReconnect drops the current transport even when Connected, then reconnects.
// Production builds get one extra verification retry.
func (m *Manager) ForceReconnect(ctx context.Context, tp identity.TokenProvider) error {
	gen := m.begin()
	return m.forceReconnect(ctx, tp, gen)
}

func (m *Manager) forceReconnect(ctx context.Context, tp identity.TokenProvider, gen uint64) error {
	log.Info("Forcing reconnect")
	m.teardown()

	if err := m.sleep(ctx, gen, m.settle); err != nil {
		return err
	}

	tries := 1
	if m.env == core.EnvProduction {
		tries = 2
	}
	for try := 1; try <= tries; try++ {
		ok, err := m.attempt(ctx, tp, gen, m.settle)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		log.Warn("Forced reconnect not verified", "try", try, "state", m.State())
	}
	return nil
}

// Bootstrap is the production cold-start sequence: one attempt per bootstrap window with a
// teardown in between, then ForceReconnect. Development builds use EnsureConnected.
func (m *Manager) Bootstrap(ctx context.Context, tp identity.TokenProvider) error {
	if m.env != core.EnvProduction {
		_, err := m.EnsureConnected(ctx, tp)
		return err
	}

	gen := m.begin()
	for i, window := range m.windows {
		if i > 0 {
			m.teardown()
		}
		ok, err := m.attempt(ctx, tp, gen, window)
		if err != nil {
			return err
		}
		if ok {
			log.Info("Bootstrap connected", "attempt", i+1)
			return nil
		}
		log.Warn("Bootstrap attempt not connected", "attempt", i+1, "window", window)
	}
	return m.forceReconnect(ctx, tp, gen)
}

// attempt resolves, connects and waits up to window for the Connected state.
func (m *Manager) attempt(ctx context.Context, tp identity.TokenProvider, gen uint64, window time.Duration) (bool, error) {
	id, err := m.resolve(ctx, tp)
	if err != nil {
		return false, err
	}
	if err := m.connect(ctx, id, gen); err != nil {
		return false, err
	}
	return m.awaitConnected(ctx, gen, window)
}
