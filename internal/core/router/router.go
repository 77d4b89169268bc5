// Package router fans single timeline requests into provider fetches and
// tags the results with their provenance.
package router

import (
	"context"

	"github.com/rvoll/timelinehub/internal/core/model"
	"github.com/rvoll/timelinehub/internal/core/registry"
	"github.com/rvoll/timelinehub/internal/util"
)

// Router validates scheme applicability and invokes providers. It performs
// no retries and enforces no timeouts; the context is passed through as an
// advisory cancellation signal.
type Router struct {
	registry *registry.Registry
}

// New creates a router resolving providers against reg.
func New(reg *registry.Registry) *Router {
	return &Router{registry: reg}
}

// RequestTimeline asks one provider for a page of the resource's timeline.
//
// A (nil, nil) return means "not applicable": the provider is unknown, or
// its scheme set covers neither the wildcard nor the URI's scheme. That is
// a normal zero-contribution outcome, not an error, and the provider is not
// invoked. Fetch errors propagate unmodified.
//
// On success every returned item's Source is stamped with the provider id,
// overriding whatever the provider set, so provenance cannot be spoofed or
// omitted.
func (r *Router) RequestTimeline(ctx context.Context, providerID, uri string, opts model.FetchOptions) (*model.Page, error) {
	p, ok := r.registry.Provider(providerID)
	if !ok {
		util.LogDebugf("router: provider %s not registered, skipping %s", providerID, uri)
		return nil, nil
	}
	if !model.SchemeMatches(p.Schemes(), uri) {
		util.LogDebugf("router: provider %s does not serve scheme of %s", providerID, uri)
		return nil, nil
	}

	page, err := p.Timeline(ctx, uri, opts)
	if err != nil {
		return nil, err
	}
	if page == nil {
		// Provider yielded no result, e.g. it honored a cancellation.
		return nil, nil
	}

	page.Source = providerID
	for i := range page.Items {
		page.Items[i].Source = providerID
	}
	return page, nil
}
