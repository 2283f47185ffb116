package conn

import (
	"context"
	"encoding/json"

	"github.com/rideline-io/rideline/internal/driveragent/core"
	"github.com/rideline-io/rideline/pkg/log"
)

// handleEvent routes one inbound wire event to the registry.
func (m *Manager) handleEvent(id uint64, name string, payload json.RawMessage) {
	m.mu.Lock()
	if id != m.binding {
		m.mu.Unlock()
		return
	}
	observers := m.observers
	m.mu.Unlock()

	ctx := context.Background()
	m.route(ctx, name, payload)

	for _, o := range observers {
		o(ctx, name, payload)
	}
}

func (m *Manager) route(ctx context.Context, name string, payload json.RawMessage) {
	r, ok := core.Routes[name]
	if !ok {
		log.Debug("Unrouted server event", "event", name)
		return
	}
	if r.Legacy && !m.legacy {
		log.Debug("Dropping legacy event alias", "event", name)
		return
	}

	if r.Bulk {
		var items []json.RawMessage
		if err := json.Unmarshal(payload, &items); err == nil {
			for _, item := range items {
				m.registry.Dispatch(ctx, core.Event{Kind: r.Kind, Name: name, Payload: item})
			}
			return
		}
		log.Warn("Bulk event payload is not an array, dispatching as one", "event", name)
	}

	m.registry.Dispatch(ctx, core.Event{Kind: r.Kind, Name: name, Payload: payload})

	if r.Kind.Rejection() && m.alerter != nil {
		m.alerter.Alert(ctx, core.Rejection(r.Kind, name, payload))
	}
}
