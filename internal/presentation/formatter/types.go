package formatter

import "github.com/rvoll/timelinehub/internal/core/model"

// View is what a formatter renders: the merged timeline of one resource
// plus the per-provider pagination state.
type View struct {
	URI     string          `json:"uri"`
	Items   []model.Item    `json:"items"`
	HasMore map[string]bool `json:"hasMore,omitempty"`
}

// Formatter renders a merged timeline view.
type Formatter interface {
	Format(view View) error
}
