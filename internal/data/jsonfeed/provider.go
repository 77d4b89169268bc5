// Package jsonfeed provides a timeline provider backed by JSONL activity
// feeds on the local filesystem. It serves file-scheme resources: the URI
// names either a single feed file or a directory of *.jsonl feeds.
package jsonfeed

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/rvoll/timelinehub/internal/core/model"
	"github.com/rvoll/timelinehub/internal/util"
)

const (
	// DefaultID is the provider id unless overridden.
	DefaultID = "jsonfeed"
	// defaultPageSize applies when the fetch options carry no limit.
	defaultPageSize = 50
)

// feedEvent is one line of a feed file.
type feedEvent struct {
	ID          string         `json:"id"`
	Timestamp   int64          `json:"timestamp"` // milliseconds since epoch
	Label       string         `json:"label"`
	Description string         `json:"description,omitempty"`
	Detail      string         `json:"detail,omitempty"`
	Tag         string         `json:"tag,omitempty"`
	Action      *model.Command `json:"action,omitempty"`
}

// cachedFeed is the parse result for one file, reused until the file's
// size, mtime, or inode changes.
type cachedFeed struct {
	info  util.FileInfo
	items []model.Item
}

// Provider reads JSONL activity feeds and paginates them newest-first with
// an opaque offset cursor.
type Provider struct {
	id    string
	label string

	mu    sync.Mutex
	cache map[string]*cachedFeed

	watcher *Watcher
	changes chan model.ChangeEvent
	closed  sync.Once
}

// Option configures a Provider.
type Option func(*Provider)

// WithID overrides the provider id (useful when registering several feed
// providers side by side).
func WithID(id string) Option {
	return func(p *Provider) { p.id = id }
}

// WithLabel overrides the human-readable label.
func WithLabel(label string) Option {
	return func(p *Provider) { p.label = label }
}

// New creates a feed provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		id:      DefaultID,
		label:   "JSONL activity feed",
		cache:   make(map[string]*cachedFeed),
		changes: make(chan model.ChangeEvent, 16),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ID implements model.Provider.
func (p *Provider) ID() string { return p.id }

// Label implements model.Provider.
func (p *Provider) Label() string { return p.label }

// Schemes implements model.Provider. Feeds live on disk only.
func (p *Provider) Schemes() []string { return []string{"file"} }

// Changes implements model.ChangeNotifier. Without Watch it never emits.
func (p *Provider) Changes() <-chan model.ChangeEvent { return p.changes }

// Watch starts emitting change events on Changes whenever a feed under dir
// is created, modified, or removed. Removals signal a hard reset since
// already-returned items may no longer exist.
func (p *Provider) Watch(dir string) error {
	if p.watcher != nil {
		return fmt.Errorf("jsonfeed: already watching")
	}
	w, err := NewWatcher(dir, p.changes)
	if err != nil {
		return err
	}
	p.watcher = w
	return nil
}

// Close stops the watcher and closes the change channel.
func (p *Provider) Close() error {
	var err error
	p.closed.Do(func() {
		if p.watcher != nil {
			err = p.watcher.Close()
		}
		close(p.changes)
	})
	return err
}

// Timeline implements model.Provider. Items are returned newest-first; the
// cursor is the offset into the sorted event list, so each page picks up
// exactly where the previous one stopped and pages never overlap.
func (p *Provider) Timeline(ctx context.Context, uri string, opts model.FetchOptions) (*model.Page, error) {
	if ctx.Err() != nil {
		// Cancellation is advisory; resolve early with no result.
		return nil, nil
	}

	path, err := uriToPath(uri)
	if err != nil {
		return nil, err
	}

	items, err := p.collect(path)
	if err != nil {
		return nil, err
	}

	if opts.Before != nil {
		items = filterBefore(items, *opts.Before)
	}

	offset := 0
	if opts.Cursor != "" {
		offset, err = strconv.Atoi(opts.Cursor)
		if err != nil || offset < 0 {
			return nil, fmt.Errorf("jsonfeed: malformed cursor %q", opts.Cursor)
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	page := &model.Page{Source: p.id}
	if offset < len(items) {
		end := offset + limit
		if end > len(items) {
			end = len(items)
		}
		page.Items = items[offset:end]
		if end < len(items) {
			page.Cursor = strconv.Itoa(end)
		}
	}
	return page, nil
}

// collect parses every feed reachable from path and returns the combined
// events sorted by descending timestamp.
func (p *Provider) collect(path string) ([]model.Item, error) {
	files, err := listFeeds(path)
	if err != nil {
		return nil, err
	}

	var items []model.Item
	for _, file := range files {
		fileItems, err := p.parseFile(file)
		if err != nil {
			return nil, err
		}
		items = append(items, fileItems...)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp > items[j].Timestamp
	})
	return items, nil
}

// listFeeds resolves a path to the feed files it covers: the file itself,
// or every *.jsonl beneath a directory.
func listFeeds(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			util.LogDebugf("jsonfeed: skip %s: %v", p, err)
			return nil
		}
		if !info.IsDir() && strings.HasSuffix(strings.ToLower(p), ".jsonl") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// parseFile reads one feed, reusing the cached parse while the file is
// unchanged on disk.
func (p *Provider) parseFile(path string) ([]model.Item, error) {
	info, err := util.GetFileInfo(path)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if cached, ok := p.cache[path]; ok && cached.info == *info {
		items := cached.items
		p.mu.Unlock()
		return items, nil
	}
	p.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	base := filepath.Base(path)
	var items []model.Item
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	lineCount := 0
	for scanner.Scan() {
		lineCount++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev feedEvent
		if err := sonic.Unmarshal(line, &ev); err != nil {
			util.LogDebugf("jsonfeed: skip invalid line %s:%d - %v", path, lineCount, err)
			continue
		}
		items = append(items, model.Item{
			Handle:      fmt.Sprintf("%s:%d", base, lineCount),
			ID:          ev.ID,
			Timestamp:   ev.Timestamp,
			Label:       ev.Label,
			Description: ev.Description,
			Detail:      ev.Detail,
			Action:      ev.Action,
			ContextTag:  ev.Tag,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[path] = &cachedFeed{info: *info, items: items}
	p.mu.Unlock()

	util.LogDebugf("jsonfeed: parsed %s: %d lines, %d events", path, lineCount, len(items))
	return items, nil
}

// filterBefore keeps items at or before the watermark. Within the
// watermark's exact timestamp, the ID tie-break keeps items whose id does
// not sort after the watermark id.
func filterBefore(items []model.Item, wm model.Watermark) []model.Item {
	out := items[:0:0]
	for _, it := range items {
		switch {
		case it.Timestamp < wm.Timestamp:
			out = append(out, it)
		case it.Timestamp == wm.Timestamp:
			if wm.ID == "" || it.Key() <= wm.ID {
				out = append(out, it)
			}
		}
	}
	return out
}

func uriToPath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("jsonfeed: bad resource uri %q: %w", uri, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("jsonfeed: unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" {
		return "", fmt.Errorf("jsonfeed: resource uri %q has no path", uri)
	}
	return u.Path, nil
}
