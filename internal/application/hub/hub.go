// Package hub wires the registry, router, aggregate store, and
// notification bus into the consumer-facing timeline aggregation API.
package hub

import (
	"context"

	"github.com/rvoll/timelinehub/internal/core/bus"
	"github.com/rvoll/timelinehub/internal/core/model"
	"github.com/rvoll/timelinehub/internal/core/registry"
	"github.com/rvoll/timelinehub/internal/core/router"
	"github.com/rvoll/timelinehub/internal/core/store"
)

// Hub owns the aggregation core. External collaborators interact only
// through it: registrations, read-only snapshots, and event subscriptions.
type Hub struct {
	bus      *bus.Bus
	registry *registry.Registry
	store    *store.Store

	membershipSub *bus.Subscription
}

// Option configures a Hub.
type Option func(*config)

type config struct {
	pageSize int
}

// WithPageSize sets the per-fetch item limit used by LoadPage.
func WithPageSize(n int) Option {
	return func(c *config) { c.pageSize = n }
}

// New assembles a hub. Aggregates owned by a provider are destroyed
// automatically when that provider is unregistered.
func New(opts ...Option) *Hub {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	b := bus.New()
	reg := registry.New(b)
	rt := router.New(reg)

	var storeOpts []store.Option
	if cfg.pageSize > 0 {
		storeOpts = append(storeOpts, store.WithPageSize(cfg.pageSize))
	}
	st := store.New(rt, reg, b, storeOpts...)

	h := &Hub{bus: b, registry: reg, store: st}
	h.membershipSub = b.OnMembership(func(ev bus.MembershipEvent) {
		for _, id := range ev.Removed {
			st.DropSource(id)
		}
	})
	return h
}

// RegisterProvider adds or replaces a provider. The returned handle revokes
// the registration.
func (h *Hub) RegisterProvider(p model.Provider) *registry.Registration {
	return h.registry.Register(p)
}

// UnregisterProvider removes a provider by id; unknown ids are a no-op.
func (h *Hub) UnregisterProvider(id string) {
	h.registry.Unregister(id)
}

// ListSources snapshots the currently registered providers.
func (h *Hub) ListSources() []model.SourceInfo {
	return h.registry.Sources()
}

// LoadTimeline fans a request for uri out to every matching provider and
// returns the dispatched provider ids without waiting for any fetch.
func (h *Hub) LoadTimeline(ctx context.Context, uri string, reset bool) []string {
	return h.store.LoadTimeline(ctx, uri, reset)
}

// LoadPage fetches and merges one more page from a single provider.
func (h *Hub) LoadPage(ctx context.Context, source, uri string, reset bool) (*store.Snapshot, error) {
	return h.store.LoadPage(ctx, source, uri, reset)
}

// Timeline returns the merged, descending-timestamp view of uri across all
// providers, plus a per-source "has more" flag.
func (h *Hub) Timeline(uri string) ([]model.Item, map[string]bool) {
	return h.store.Timeline(uri)
}

// Snapshot returns a copy of one provider's aggregate for uri.
func (h *Hub) Snapshot(source, uri string) (*store.Snapshot, bool) {
	return h.store.Snapshot(source, uri)
}

// Drop forgets all accumulated state for a resource, e.g. when the
// consumer's focus moves away from it.
func (h *Hub) Drop(uri string) {
	h.store.Drop(uri)
}

// OnMembershipChange subscribes to provider added/removed events.
func (h *Hub) OnMembershipChange(fn func(bus.MembershipEvent)) *bus.Subscription {
	return h.bus.OnMembership(fn)
}

// OnTimelineChange subscribes to timeline content events: provider
// notifications and completed refresh fan-outs.
func (h *Hub) OnTimelineChange(fn func(bus.ContentEvent)) *bus.Subscription {
	return h.bus.OnContent(fn)
}

// Close unregisters every provider and detaches internal subscriptions.
func (h *Hub) Close() {
	for _, src := range h.registry.Sources() {
		h.registry.Unregister(src.ID)
	}
	h.membershipSub.Cancel()
}
