package jsonfeed

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/rvoll/timelinehub/internal/core/model"
	"github.com/rvoll/timelinehub/internal/util"
)

// Watcher turns filesystem notifications for feed files into timeline
// change events.
type Watcher struct {
	watcher *fsnotify.Watcher
	uri     string
	events  chan<- model.ChangeEvent
	done    chan struct{}
}

// NewWatcher watches dir recursively and forwards feed mutations onto
// events as change events carrying the directory's file URI.
func NewWatcher(dir string, events chan<- model.ChangeEvent) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher: watcher,
		uri:     (&url.URL{Scheme: "file", Path: dir}).String(),
		events:  events,
		done:    make(chan struct{}),
	}

	if err := w.addPath(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	go w.processEvents()
	return w, nil
}

func (w *Watcher) addPath(path string) error {
	// Recursively add directories
	return filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return w.watcher.Add(p)
		}
		return nil
	})
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// New subdirectories start being watched as they appear.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.watcher.Add(event.Name); err != nil {
						util.LogWarnf("jsonfeed: failed to watch %s: %v", event.Name, err)
					}
					continue
				}
			}
			if filepath.Ext(strings.ToLower(event.Name)) != ".jsonl" {
				continue
			}
			// A removed or renamed feed invalidates already-returned
			// items; writes only append.
			reset := event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename)
			select {
			case w.events <- model.ChangeEvent{URI: w.uri, Reset: reset}:
			case <-w.done:
				return
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Log error but continue running
			util.LogError("jsonfeed: watch error: " + err.Error())
		}
	}
}

// Close stops event processing and releases the underlying watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
