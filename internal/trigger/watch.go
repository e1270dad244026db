package trigger

import (
	"context"
	"sync"

	"github.com/dshills/pycover/internal/coverage"
	"github.com/dshills/pycover/internal/locate"
	"github.com/dshills/pycover/internal/logging"
	"github.com/dshills/pycover/internal/watch"
)

// DataWatcherOption configures a DataWatcher.
type DataWatcherOption func(*DataWatcher)

// RefreshAlways makes the watcher refresh tracked views even when their
// highlights are not showing.
func RefreshAlways() DataWatcherOption {
	return func(d *DataWatcher) {
		d.always = true
	}
}

// WithWatchLogger sets the logger.
func WithWatchLogger(l *logging.Logger) DataWatcherOption {
	return func(d *DataWatcher) {
		d.logger = l
	}
}

type tracked struct {
	ctx  context.Context
	view coverage.View
}

// DataWatcher refreshes views when their .coverage database is rewritten.
type DataWatcher struct {
	ctrl   Controller
	w      *watch.Watcher
	sched  coverage.Scheduler
	logger *logging.Logger
	always bool

	mu     sync.Mutex
	byData map[string]map[string]tracked
	data   map[string]string
}

// NewDataWatcher creates a DataWatcher. Refreshes are posted to sched.
func NewDataWatcher(ctrl Controller, w *watch.Watcher, sched coverage.Scheduler, opts ...DataWatcherOption) *DataWatcher {
	d := &DataWatcher{
		ctrl:   ctrl,
		w:      w,
		sched:  sched,
		logger: logging.Null(),
		byData: make(map[string]map[string]tracked),
		data:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Track starts watching the .coverage database that applies to view and
// returns its path. Refreshes run with ctx.
func (d *DataWatcher) Track(ctx context.Context, view coverage.View) (string, error) {
	if !d.ctrl.IsApplicable(view) {
		return "", nil
	}
	path, ok := locate.Find(view.FilePath(), coverage.DataFileName)
	if !ok {
		return "", &coverage.Error{Kind: coverage.KindCoverageDataNotFound, Path: view.FilePath()}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.data[view.ID()]; ok && prev != path {
		d.untrackLocked(view.ID())
	}

	views := d.byData[path]
	if views == nil {
		if err := d.w.Add(path, d.handler(path)); err != nil {
			return "", err
		}
		views = make(map[string]tracked)
		d.byData[path] = views
	}
	views[view.ID()] = tracked{ctx: ctx, view: view}
	d.data[view.ID()] = path
	d.logger.Debug("watching %s for %s", path, view.FilePath())
	return path, nil
}

// Untrack stops refreshing view.
func (d *DataWatcher) Untrack(view coverage.View) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.untrackLocked(view.ID())
}

// Tracked returns the number of views being watched.
func (d *DataWatcher) Tracked() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.data)
}

func (d *DataWatcher) untrackLocked(id string) {
	path, ok := d.data[id]
	if !ok {
		return
	}
	delete(d.data, id)
	views := d.byData[path]
	delete(views, id)
	if len(views) == 0 {
		delete(d.byData, path)
		if err := d.w.Remove(path); err != nil {
			d.logger.Warn("unwatch %s: %v", path, err)
		}
	}
}

func (d *DataWatcher) handler(path string) watch.Handler {
	return func(ev watch.Event) {
		if ev.Op == watch.OpRemove {
			return
		}

		d.mu.Lock()
		targets := make([]tracked, 0, len(d.byData[path]))
		for _, t := range d.byData[path] {
			targets = append(targets, t)
		}
		d.mu.Unlock()

		d.logger.Debug("%s changed (%s), refreshing %d views", path, ev.Op, len(targets))
		for _, t := range targets {
			t := t
			d.sched.Post(func() {
				if t.ctx.Err() != nil {
					return
				}
				if !d.always && !t.view.ViewFlag(coverage.ShowingFlag) {
					return
				}
				// Errors are already reported on the view.
				_ = d.ctrl.Refresh(t.ctx, t.view)
			})
		}
	}
}
