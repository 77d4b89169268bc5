package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishMembership(t *testing.T) {
	b := New()

	var got []MembershipEvent
	b.OnMembership(func(ev MembershipEvent) {
		got = append(got, ev)
	})

	b.PublishMembership(MembershipEvent{Added: []string{"git"}})
	b.PublishMembership(MembershipEvent{Removed: []string{"git"}})

	assert.Len(t, got, 2)
	assert.Equal(t, []string{"git"}, got[0].Added)
	assert.Equal(t, []string{"git"}, got[1].Removed)
}

func TestPublishContentFanOut(t *testing.T) {
	b := New()

	count1, count2 := 0, 0
	b.OnContent(func(ContentEvent) { count1++ })
	b.OnContent(func(ContentEvent) { count2++ })

	b.PublishContent(ContentEvent{Source: "feed", URI: "file:///tmp"})

	assert.Equal(t, 1, count1)
	assert.Equal(t, 1, count2)
}

func TestCancelStopsDelivery(t *testing.T) {
	b := New()

	count := 0
	sub := b.OnContent(func(ContentEvent) { count++ })

	b.PublishContent(ContentEvent{Source: "a"})
	sub.Cancel()
	b.PublishContent(ContentEvent{Source: "a"})

	assert.Equal(t, 1, count)

	// Cancel is idempotent
	sub.Cancel()
}

func TestNoReplayForLateSubscribers(t *testing.T) {
	b := New()

	b.PublishContent(ContentEvent{Source: "early"})

	var got []ContentEvent
	b.OnContent(func(ev ContentEvent) { got = append(got, ev) })

	assert.Empty(t, got, "subscribers must not receive events emitted before they attached")
}

func TestOrderedPerEmitter(t *testing.T) {
	b := New()

	var sources []string
	b.OnContent(func(ev ContentEvent) { sources = append(sources, ev.Source) })

	for _, s := range []string{"a", "b", "c", "d"} {
		b.PublishContent(ContentEvent{Source: s})
	}

	assert.Equal(t, []string{"a", "b", "c", "d"}, sources)
}

func TestSubscribeDuringPublish(t *testing.T) {
	b := New()

	// A handler that subscribes another handler must not deadlock.
	b.OnContent(func(ContentEvent) {
		b.OnContent(func(ContentEvent) {})
	})

	assert.NotPanics(t, func() {
		b.PublishContent(ContentEvent{Source: "x"})
	})
}
