package app

import (
	"context"
	"errors"

	"github.com/dshills/pycover/internal/coverage"
	"github.com/dshills/pycover/internal/editor"
	"github.com/dshills/pycover/internal/trigger"
)

// OpenFile opens path in a view and fires the on-load trigger. Must be
// called on the UI goroutine.
func (a *Application) OpenFile(ctx context.Context, path string) (*editor.View, error) {
	if a.closed.Load() {
		return nil, ErrClosed
	}
	view, opened, err := a.views.Open(path)
	if err != nil {
		return nil, &FileError{Op: "open", Path: path, Err: err}
	}
	if !opened {
		return view, nil
	}

	a.logger.Debug("opened %s as %s (%s)", view.FilePath(), view.ID(), view.Language())
	if ran, err := a.onLoad.ViewLoaded(ctx, view); ran {
		a.recordStart(err)
	}
	return view, nil
}

// CloseView forgets view and stops watching its coverage data.
func (a *Application) CloseView(view *editor.View) error {
	a.controller.Forget(view)
	a.mu.Lock()
	data := a.data
	delete(a.waiters, view.ID())
	a.mu.Unlock()
	if data != nil {
		data.Untrack(view)
	}
	return a.views.Close(view.FilePath())
}

// Execute runs the named command on view. Must be called on the UI
// goroutine.
func (a *Application) Execute(ctx context.Context, name string, view *editor.View) error {
	if a.closed.Load() {
		return ErrClosed
	}
	enabled := false
	if cmd, ok := a.commands.Get(name); ok {
		enabled = cmd.Enabled(view)
	}
	showing := view.ViewFlag(coverage.ShowingFlag)
	err := a.commands.Execute(ctx, name, view)
	if enabled && !showing {
		a.recordStart(err)
	}
	return err
}

// Toggle runs the coverage command on view.
func (a *Application) Toggle(ctx context.Context, view *editor.View) error {
	return a.Execute(ctx, coverage.CommandName, view)
}

// Compute runs coverage for view and drains the UI loop on the calling
// goroutine until the result is applied. It must not be used while another
// goroutine is running the loop.
func (a *Application) Compute(ctx context.Context, view *editor.View) (coverage.Result, error) {
	if a.closed.Load() {
		return coverage.Result{}, ErrClosed
	}
	if !a.controller.IsApplicable(view) {
		return coverage.Result{}, ErrNotApplicable
	}

	ch := make(chan coverage.Result, 1)
	a.mu.Lock()
	a.waiters[view.ID()] = append(a.waiters[view.ID()], ch)
	a.mu.Unlock()

	err := a.controller.Refresh(ctx, view)
	a.recordStart(err)
	if err != nil {
		a.mu.Lock()
		delete(a.waiters, view.ID())
		a.mu.Unlock()
		return coverage.Result{ViewID: view.ID(), Path: view.FilePath(), Err: err}, err
	}

	// The poller reacts to ctx itself, so the loop is drained until the
	// run reports back even after cancellation.
	for {
		select {
		case r := <-ch:
			return r, r.Err
		case <-a.loop.Wake():
			a.loop.RunPending()
		}
	}
}

// Reload re-reads view from disk and, if highlights are showing, runs
// coverage again so they match the new text.
func (a *Application) Reload(ctx context.Context, view *editor.View) error {
	if a.closed.Load() {
		return ErrClosed
	}
	if err := a.views.Reload(view); err != nil {
		return &FileError{Op: "reload", Path: view.FilePath(), Err: err}
	}
	if !view.ViewFlag(coverage.ShowingFlag) {
		return nil
	}
	err := a.controller.Refresh(ctx, view)
	a.recordStart(err)
	return err
}

// ComputeFile opens path and runs Compute on it.
func (a *Application) ComputeFile(ctx context.Context, path string) (coverage.Result, error) {
	view, err := a.OpenFile(ctx, path)
	if err != nil {
		return coverage.Result{Path: path, Err: err}, err
	}
	return a.Compute(ctx, view)
}

// WatchCoverage refreshes view whenever its .coverage database changes.
// With always set, views whose highlights are hidden are refreshed too.
func (a *Application) WatchCoverage(ctx context.Context, view *editor.View, always bool) (string, error) {
	w, err := a.fileWatcher()
	if err != nil {
		return "", errors.Join(ErrWatchUnavailable, err)
	}

	a.mu.Lock()
	if a.data == nil {
		opts := []trigger.DataWatcherOption{trigger.WithWatchLogger(a.logger.WithComponent("watch"))}
		if always {
			opts = append(opts, trigger.RefreshAlways())
		}
		a.data = trigger.NewDataWatcher(a.controller, w, a.loop, opts...)
	}
	data := a.data
	a.mu.Unlock()

	return data.Track(ctx, view)
}

func (a *Application) recordStart(err error) {
	if err != nil {
		a.metrics.RecordFailure(err)
		return
	}
	a.metrics.RecordStart()
}
