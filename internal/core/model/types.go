package model

import (
	"context"
	"fmt"
)

// SchemeAll is the wildcard scheme: a provider declaring it serves every
// resource regardless of URI scheme.
const SchemeAll = "*"

// Command is an opaque invocable reference attached to an item. The core
// never interprets it; it is carried through to whoever renders the item.
type Command struct {
	ID    string        `json:"id"`
	Title string        `json:"title,omitempty"`
	Args  []interface{} `json:"args,omitempty"`
}

// Item is one chronological event on a timeline. Items are immutable once
// returned from a fetch.
type Item struct {
	// Handle is the provider-assigned identifier, unique within the source.
	Handle string `json:"handle"`
	// ID is an optional stable identifier. When empty, identity derives
	// from timestamp plus handle.
	ID string `json:"id,omitempty"`
	// Timestamp is milliseconds since epoch and the primary ordering key.
	Timestamp int64 `json:"timestamp"`

	// Display strings, passed through untouched.
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Detail      string `json:"detail,omitempty"`

	Action     *Command `json:"action,omitempty"`
	ContextTag string   `json:"contextTag,omitempty"`

	// Source is the id of the provider that produced the item. The router
	// stamps it on every item; provider-supplied values are overwritten.
	Source string `json:"source"`
}

// Key returns the item's identity within its source: the stable ID when
// present, otherwise a key derived from timestamp and handle.
func (it Item) Key() string {
	if it.ID != "" {
		return it.ID
	}
	return fmt.Sprintf("%d-%s", it.Timestamp, it.Handle)
}

// Page is a provider's response to a single fetch.
type Page struct {
	Source string `json:"source"`
	// Items as returned by the provider for this call. No ordering is
	// assumed from the provider itself.
	Items []Item `json:"items"`
	// Cursor is the opaque continuation token. Empty means no more pages.
	Cursor string `json:"cursor,omitempty"`
}

// Watermark bounds a fetch to items at or before a point in time, with ID
// as the tie-break within equal timestamps.
type Watermark struct {
	Timestamp int64  `json:"timestamp"`
	ID        string `json:"id,omitempty"`
}

// FetchOptions carries pagination parameters into a provider fetch.
// Interpretation of Limit and Before is the provider's contract; the router
// performs no validation of their semantics.
type FetchOptions struct {
	// Cursor resumes a prior pagination. Empty starts from the newest items.
	Cursor string
	// Limit is a page-size hint. Zero lets the provider pick its default.
	Limit int
	// Before, when set, requests only items at or before the watermark.
	Before *Watermark
}

// SourceInfo describes one registered provider in a registry snapshot.
type SourceInfo struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// ChangeEvent signals that a provider's timeline content changed.
type ChangeEvent struct {
	// Source is the provider id. The registry stamps it when forwarding
	// provider-originated events.
	Source string `json:"source"`
	// URI names the changed resource. Empty means "whatever resource the
	// consumer currently cares about".
	URI string `json:"uri,omitempty"`
	// Reset indicates the provider invalidated everything it returned so
	// far; accumulated state should be discarded before refetching.
	Reset bool `json:"reset"`
}

// Provider is the capability contract a data source must satisfy. Anything
// implementing it is pluggable: source-control history, activity feeds,
// custom integrations.
type Provider interface {
	// ID uniquely identifies the provider within a registry.
	ID() string
	// Label is a human-readable name for the provider.
	Label() string
	// Schemes lists the URI schemes the provider serves. A slice containing
	// SchemeAll matches every scheme.
	Schemes() []string
	// Timeline fetches one page of items for the resource. A nil page with
	// a nil error means "no result" (for example, the provider honored an
	// advisory cancellation); accumulated state is left untouched then.
	Timeline(ctx context.Context, uri string, opts FetchOptions) (*Page, error)
}

// ChangeNotifier is optionally implemented by providers whose content can
// change behind the consumer's back. The registry owns the subscription for
// the lifetime of the registration.
type ChangeNotifier interface {
	// Changes delivers provider-originated change events. The channel is
	// owned by the provider and closed by it on teardown.
	Changes() <-chan ChangeEvent
}
