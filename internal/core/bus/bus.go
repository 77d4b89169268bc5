// Package bus carries the two notification streams consumers observe:
// provider membership changes and timeline content changes. It is a
// message-passing boundary only; no aggregation logic lives here.
package bus

import "sync"

// MembershipEvent reports providers entering or leaving the registry.
type MembershipEvent struct {
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

// ContentEvent signals that a provider's timeline for a resource changed.
type ContentEvent struct {
	Source string `json:"source"`
	// URI may be empty, meaning "the resource the consumer currently cares
	// about, whatever it is".
	URI   string `json:"uri,omitempty"`
	Reset bool   `json:"reset"`
}

// Subscription is a revocable handle to one subscriber. Cancel detaches the
// subscriber; it is safe to call more than once.
type Subscription struct {
	cancel func()
	once   sync.Once
}

// Cancel removes the subscription. Events emitted after Cancel returns are
// no longer delivered.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// Bus fans events out to all subscribers present at emission time. Delivery
// is synchronous and ordered per emitter; there is no replay for late
// subscribers.
type Bus struct {
	mu         sync.Mutex
	nextID     int
	membership map[int]func(MembershipEvent)
	content    map[int]func(ContentEvent)
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		membership: make(map[int]func(MembershipEvent)),
		content:    make(map[int]func(ContentEvent)),
	}
}

// OnMembership registers a handler for provider membership events.
func (b *Bus) OnMembership(fn func(MembershipEvent)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.membership[id] = fn
	return &Subscription{cancel: func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.membership, id)
	}}
}

// OnContent registers a handler for timeline content events.
func (b *Bus) OnContent(fn func(ContentEvent)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.content[id] = fn
	return &Subscription{cancel: func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.content, id)
	}}
}

// PublishMembership delivers ev to every current membership subscriber.
func (b *Bus) PublishMembership(ev MembershipEvent) {
	for _, fn := range b.membershipSnapshot() {
		fn(ev)
	}
}

// PublishContent delivers ev to every current content subscriber.
func (b *Bus) PublishContent(ev ContentEvent) {
	for _, fn := range b.contentSnapshot() {
		fn(ev)
	}
}

// Handlers are invoked outside the lock so a handler may subscribe or
// cancel without deadlocking. Snapshots are taken in registration order.
func (b *Bus) membershipSnapshot() []func(MembershipEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]func(MembershipEvent), 0, len(b.membership))
	for id := 0; id < b.nextID; id++ {
		if fn, ok := b.membership[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func (b *Bus) contentSnapshot() []func(ContentEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]func(ContentEvent), 0, len(b.content))
	for id := 0; id < b.nextID; id++ {
		if fn, ok := b.content[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}
