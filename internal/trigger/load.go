package trigger

import (
	"context"

	"github.com/dshills/pycover/internal/coverage"
)

// LoadListener runs a command when a view finishes loading, if the
// onload setting is on.
type LoadListener struct {
	settings coverage.SettingsSource
	cmd      Command
}

// NewLoadListener creates a listener that runs cmd on load.
func NewLoadListener(settings coverage.SettingsSource, cmd Command) *LoadListener {
	return &LoadListener{settings: settings, cmd: cmd}
}

// ViewLoaded is called on the UI goroutine after view's file is read. It
// reports whether the command was run.
func (l *LoadListener) ViewLoaded(ctx context.Context, view coverage.View) (bool, error) {
	if !l.settings.Settings().OnLoad || !l.cmd.Enabled(view) {
		return false, nil
	}
	return true, l.cmd.Run(ctx, view)
}
