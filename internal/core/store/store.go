// Package store maintains the canonical merged timeline view per
// (provider, resource) pair and drives incremental paging.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/rvoll/timelinehub/internal/core/bus"
	"github.com/rvoll/timelinehub/internal/core/model"
	"github.com/rvoll/timelinehub/internal/util"
)

// DefaultPageSize is the per-fetch item limit used when the caller does not
// configure one.
const DefaultPageSize = 50

// Fetcher issues a single provider fetch. Satisfied by router.Router.
type Fetcher interface {
	RequestTimeline(ctx context.Context, providerID, uri string, opts model.FetchOptions) (*model.Page, error)
}

// SourceLister resolves which providers serve a resource. Satisfied by
// registry.Registry.
type SourceLister interface {
	ProvidersFor(uri string) []string
}

// aggregate accumulates everything fetched so far for one (source, uri)
// pair. Its existence means at least one fetch completed; an empty cursor
// on an existing aggregate therefore means "exhausted", not "never paged".
//
// Items are not deduplicated across pages: a provider whose cursoring
// overlaps will surface duplicates. Providers are expected to hand out
// exclusive cursors.
type aggregate struct {
	source string
	uri    string
	items  []model.Item // descending timestamp, stable for equal stamps
	cursor string
}

// Snapshot is the read-only view of one aggregate handed to consumers.
// Items is a copy; mutating it cannot corrupt the merge invariant.
type Snapshot struct {
	Source  string
	URI     string
	Items   []model.Item
	Cursor  string
	HasMore bool
}

// Store owns all aggregates. External collaborators only ever receive
// copies or emitted events, never the underlying slices.
type Store struct {
	fetcher  Fetcher
	sources  SourceLister
	bus      *bus.Bus
	pageSize int

	mu         sync.Mutex
	aggregates map[aggregateKey]*aggregate
}

type aggregateKey struct {
	source string
	uri    string
}

// Option configures a Store.
type Option func(*Store)

// WithPageSize overrides the per-fetch item limit.
func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// New creates a store fetching through f, resolving fan-out targets via
// src, and announcing mutations on b.
func New(f Fetcher, src SourceLister, b *bus.Bus, opts ...Option) *Store {
	s := &Store{
		fetcher:    f,
		sources:    src,
		bus:        b,
		pageSize:   DefaultPageSize,
		aggregates: make(map[aggregateKey]*aggregate),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadPage fetches the next page for one (source, uri) pair and merges it
// into the pair's aggregate.
//
// With reset, any existing aggregate is discarded unconditionally (items
// and cursor both) before fetching. The fetch then starts from the
// beginning; otherwise it resumes from the aggregate's current cursor.
//
// Outcomes:
//   - fetch error: the aggregate is left exactly as it was, so a transient
//     failure never corrupts or truncates accumulated history;
//   - "not applicable" or no result: aggregate untouched, nil snapshot;
//   - a page (even an empty one): merged per mergeLocked.
//
// Callers must not overlap LoadPage calls for the same (source, uri) pair;
// the store stays internally consistent but the last writer wins on cursor
// state and a page can be dropped.
func (s *Store) LoadPage(ctx context.Context, source, uri string, reset bool) (*Snapshot, error) {
	key := aggregateKey{source: source, uri: uri}

	s.mu.Lock()
	if reset {
		delete(s.aggregates, key)
	}
	cursor := ""
	if agg, ok := s.aggregates[key]; ok {
		cursor = agg.cursor
	}
	s.mu.Unlock()

	page, err := s.fetcher.RequestTimeline(ctx, source, uri, model.FetchOptions{
		Cursor: cursor,
		Limit:  s.pageSize,
	})
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, nil
	}

	s.mu.Lock()
	agg := s.mergeLocked(key, page)
	snap := agg.snapshot()
	s.mu.Unlock()

	util.LogDebugf("store: merged page for %s on %s: %d new, %d total, more=%v",
		source, uri, len(page.Items), len(snap.Items), snap.HasMore)
	return snap, nil
}

// mergeLocked folds one page into the aggregate for key, creating it on the
// first page. Existing items survive an empty page; the cursor is always
// overwritten with the page's cursor, since an empty cursor on a returned
// page is the provider's explicit exhaustion signal.
func (s *Store) mergeLocked(key aggregateKey, page *model.Page) *aggregate {
	agg, ok := s.aggregates[key]
	if !ok {
		agg = &aggregate{source: key.source, uri: key.uri}
		s.aggregates[key] = agg
	}
	if len(page.Items) > 0 {
		agg.items = append(agg.items, page.Items...)
		// Full stable re-sort rather than a bounded merge step. Simple and
		// correct for moderate item counts; equal timestamps keep their
		// arrival order.
		sort.SliceStable(agg.items, func(i, j int) bool {
			return agg.items[i].Timestamp > agg.items[j].Timestamp
		})
	}
	agg.cursor = page.Cursor
	return agg
}

// LoadTimeline fans one logical request out to every registered provider
// whose scheme matches the URI. Each provider's fetch runs independently:
// its aggregate updates and its content event fire as soon as that fetch
// resolves, never gated on the slowest provider. Per-provider errors are
// logged and isolated; they abort nothing else.
//
// The dispatched provider ids are returned immediately. LoadPage itself
// publishes nothing; the per-provider content events here are the
// refresh-action side of the content channel, next to forwarded provider
// notifications.
func (s *Store) LoadTimeline(ctx context.Context, uri string, reset bool) []string {
	ids := s.sources.ProvidersFor(uri)
	for _, id := range ids {
		go func(id string) {
			snap, err := s.LoadPage(ctx, id, uri, reset)
			if err != nil {
				util.LogWarnf("store: fetch from %s for %s failed: %v", id, uri, err)
				return
			}
			if snap != nil {
				s.bus.PublishContent(bus.ContentEvent{Source: id, URI: uri, Reset: reset})
			}
		}(id)
	}
	return ids
}

// Snapshot returns a copy of the aggregate for one (source, uri) pair, or
// false if no fetch has created one yet.
func (s *Store) Snapshot(source, uri string) (*Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg, ok := s.aggregates[aggregateKey{source: source, uri: uri}]
	if !ok {
		return nil, false
	}
	return agg.snapshot(), true
}

// Timeline returns the globally merged, descending-timestamp view across
// every provider's aggregate for the resource, plus a per-source "has
// more" flag.
func (s *Store) Timeline(uri string) ([]model.Item, map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var merged []model.Item
	hasMore := make(map[string]bool)
	for key, agg := range s.aggregates {
		if key.uri != uri {
			continue
		}
		merged = append(merged, agg.items...)
		hasMore[key.source] = agg.cursor != ""
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp > merged[j].Timestamp
	})
	return merged, hasMore
}

// Drop destroys every aggregate for the resource, e.g. when focus moves
// away from it.
func (s *Store) Drop(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.aggregates {
		if key.uri == uri {
			delete(s.aggregates, key)
		}
	}
}

// DropSource destroys every aggregate owned by a provider, e.g. when it is
// unregistered.
func (s *Store) DropSource(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.aggregates {
		if key.source == source {
			delete(s.aggregates, key)
		}
	}
}

func (a *aggregate) snapshot() *Snapshot {
	items := make([]model.Item, len(a.items))
	copy(items, a.items)
	return &Snapshot{
		Source:  a.source,
		URI:     a.uri,
		Items:   items,
		Cursor:  a.cursor,
		HasMore: a.cursor != "",
	}
}
