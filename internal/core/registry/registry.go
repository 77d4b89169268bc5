// Package registry owns the set of currently active timeline providers.
package registry

import (
	"fmt"
	"io"
	"sync"

	"github.com/rvoll/timelinehub/internal/core/bus"
	"github.com/rvoll/timelinehub/internal/core/model"
	"github.com/rvoll/timelinehub/internal/util"
)

// entry is one active registration. The done channel stops the change
// forwarding goroutine; it is closed exactly once, when the entry leaves
// the map.
type entry struct {
	provider model.Provider
	done     chan struct{}
}

// Registry holds providers keyed by id. At most one registration is active
// per id; registering a duplicate disposes the previous one first.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	bus     *bus.Bus
}

// Registration is the revocable handle returned by Register. Revoking it
// removes the provider and emits a membership "removed" event; it never
// emits a content event on its own.
type Registration struct {
	revoke func()
	once   sync.Once
}

// Revoke removes the registration. Safe to call more than once; only the
// first call has any effect, and it is a no-op if the provider was already
// replaced or unregistered.
func (r *Registration) Revoke() {
	r.once.Do(r.revoke)
}

// New creates a registry publishing membership and forwarded content events
// on b.
func New(b *bus.Bus) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		bus:     b,
	}
}

// Register inserts or replaces the provider by id and emits one membership
// "added" event. If the provider notifies changes, the registry subscribes
// and forwards its events, stamped with the provider id, onto the content
// channel for the lifetime of the registration.
func (r *Registry) Register(p model.Provider) *Registration {
	id := p.ID()

	r.mu.Lock()
	if prev, ok := r.entries[id]; ok {
		r.removeLocked(id, prev)
		util.LogDebugf("registry: replaced provider %s", id)
	}
	e := &entry{provider: p, done: make(chan struct{})}
	r.entries[id] = e
	r.mu.Unlock()

	if notifier, ok := p.(model.ChangeNotifier); ok {
		go r.forward(id, notifier, e.done)
	}

	r.bus.PublishMembership(bus.MembershipEvent{Added: []string{id}})
	util.LogDebugf("registry: registered provider %s", id)

	return &Registration{revoke: func() { r.Unregister(id) }}
}

// Unregister removes the provider and its change subscription, emitting one
// membership "removed" event. Unknown ids are a silent no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.removeLocked(id, e)
	r.mu.Unlock()

	r.bus.PublishMembership(bus.MembershipEvent{Removed: []string{id}})
	util.LogDebugf("registry: unregistered provider %s", id)
}

// removeLocked detaches an entry: stops its forwarding goroutine and runs
// the provider's teardown. Teardown failures are swallowed so a misbehaving
// provider cannot block its replacement.
func (r *Registry) removeLocked(id string, e *entry) {
	delete(r.entries, id)
	close(e.done)
	dispose(id, e.provider)
}

func dispose(id string, p model.Provider) {
	closer, ok := p.(io.Closer)
	if !ok {
		return
	}
	defer func() {
		if v := recover(); v != nil {
			util.LogWarnf("registry: provider %s panicked during teardown: %v", id, v)
		}
	}()
	if err := closer.Close(); err != nil {
		util.LogWarnf("registry: provider %s teardown failed: %v", id, err)
	}
}

// forward pumps provider-originated change events onto the content channel
// until the registration ends or the provider closes its channel.
func (r *Registry) forward(id string, notifier model.ChangeNotifier, done <-chan struct{}) {
	changes := notifier.Changes()
	for {
		select {
		case <-done:
			return
		case ev, ok := <-changes:
			if !ok {
				return
			}
			// The registration may have ended while we were blocked on the
			// channel; a replaced provider must not keep delivering.
			select {
			case <-done:
				return
			default:
			}
			r.bus.PublishContent(bus.ContentEvent{
				Source: id,
				URI:    ev.URI,
				Reset:  ev.Reset,
			})
		}
	}
}

// Provider returns the active provider for id, if any.
func (r *Registry) Provider(id string) (model.Provider, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.provider, true
}

// Sources returns a snapshot of all registered providers. Order is
// unspecified; callers must not assume insertion order survives
// registrations and removals.
func (r *Registry) Sources() []model.SourceInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.SourceInfo, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, model.SourceInfo{ID: e.provider.ID(), Label: e.provider.Label()})
	}
	return out
}

// ProvidersFor returns the ids of registered providers whose scheme set
// covers the URI.
func (r *Registry) ProvidersFor(uri string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for id, e := range r.entries {
		if model.SchemeMatches(e.provider.Schemes(), uri) {
			out = append(out, id)
		}
	}
	return out
}

// String implements fmt.Stringer for debug logging.
func (r *Registry) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("registry(%d providers)", len(r.entries))
}
