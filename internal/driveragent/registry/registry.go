// Package registry routes inbound server events to at most one subscriber per kind.
package registry

import (
	"context"
	"sync"

	"github.com/rideline-io/rideline/internal/driveragent/core"
	"github.com/rideline-io/rideline/internal/pkg/metrics"
	"github.com/rideline-io/rideline/pkg/log"
)

// Handler consumes one inbound event. Returned errors are logged, never propagated.
type Handler func(ctx context.Context, ev core.Event) error

// Registry maps each EventKind to a single Handler. The last Subscribe for a kind wins.
type Registry struct {
	mu    sync.RWMutex
	slots map[core.EventKind]slot
	seq   uint64
}

// slot is one installed handler. id tells successive subscriptions of a kind apart.
type slot struct {
	h  Handler
	id uint64
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{slots: make(map[core.EventKind]slot)}
}

// Subscribe installs h for kind and reports whether it replaced a previous subscriber.
// A nil h clears the slot.
func (r *Registry) Subscribe(kind core.EventKind, h Handler) (replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	replaced, _ = r.installLocked(kind, h)
	return replaced
}

// Claim installs h for kind like Subscribe and returns a release func. Release clears the
// slot only while it still holds h, so a subscriber that replaced h in the meantime stays.
func (r *Registry) Claim(kind core.EventKind, h Handler) (release func()) {
	r.mu.Lock()
	_, id := r.installLocked(kind, h)
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if s, ok := r.slots[kind]; ok && s.id == id {
			delete(r.slots, kind)
		}
	}
}

func (r *Registry) installLocked(kind core.EventKind, h Handler) (replaced bool, id uint64) {
	_, replaced = r.slots[kind]
	if h == nil {
		delete(r.slots, kind)
		return replaced, 0
	}
	r.seq++
	r.slots[kind] = slot{h: h, id: r.seq}
	if replaced {
		log.Debug("Replaced event subscriber", "kind", kind)
	}
	return replaced, r.seq
}

// Unsubscribe clears the slot for kind.
func (r *Registry) Unsubscribe(kind core.EventKind) {
	r.mu.Lock()
	delete(r.slots, kind)
	r.mu.Unlock()
}

// UnsubscribeAll clears every slot. Used on logout.
func (r *Registry) UnsubscribeAll() {
	r.mu.Lock()
	clear(r.slots)
	r.mu.Unlock()
}

// Subscribed reports whether kind has a subscriber.
func (r *Registry) Subscribed(kind core.EventKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.slots[kind]
	return ok
}

// Dispatch calls the subscriber for ev.Kind synchronously. It is a no-op when there is none.
// It reports whether a subscriber was called.
func (r *Registry) Dispatch(ctx context.Context, ev core.Event) bool {
	r.mu.RLock()
	h := r.slots[ev.Kind].h
	r.mu.RUnlock()

	if h == nil {
		metrics.EventsTotal.WithLabelValues(string(ev.Kind), metrics.ResultUnhandled).Inc()
		return false
	}

	if err := h(ctx, ev); err != nil {
		metrics.EventsTotal.WithLabelValues(string(ev.Kind), metrics.ResultFailed).Inc()
		log.Error(err, "Event handler failed", "kind", ev.Kind, "event", ev.Name)
		return true
	}
	metrics.EventsTotal.WithLabelValues(string(ev.Kind), metrics.ResultDispatched).Inc()
	return true
}
