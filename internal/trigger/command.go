// Package trigger connects editor events to the coverage controller: the
// explicit command, the on-load listener and the coverage-file watcher all
// drive the same Controller.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/pycover/internal/coverage"
)

// ErrUnknownCommand is returned by Registry.Execute for unregistered names.
var ErrUnknownCommand = errors.New("unknown command")

// Controller is the part of coverage.Controller that triggers drive.
type Controller interface {
	IsApplicable(view coverage.View) bool
	Toggle(ctx context.Context, view coverage.View) error
	Refresh(ctx context.Context, view coverage.View) error
}

// Command is an editor command that runs against a view.
type Command interface {
	Name() string
	Title() string
	// Enabled reports whether the command applies to view. Disabled
	// commands are also hidden.
	Enabled(view coverage.View) bool
	Run(ctx context.Context, view coverage.View) error
}

// ShowCoverage is the "Show Python Coverage" toggle.
type ShowCoverage struct {
	ctrl Controller
}

// NewShowCoverage creates the command.
func NewShowCoverage(ctrl Controller) *ShowCoverage {
	return &ShowCoverage{ctrl: ctrl}
}

// Name returns the command identifier.
func (c *ShowCoverage) Name() string { return coverage.CommandName }

// Title returns the palette label.
func (c *ShowCoverage) Title() string { return coverage.CommandTitle }

// Enabled reports whether view is a saved Python file.
func (c *ShowCoverage) Enabled(view coverage.View) bool {
	return c.ctrl.IsApplicable(view)
}

// Run toggles coverage highlights on view. It does nothing when the
// command is not enabled.
func (c *ShowCoverage) Run(ctx context.Context, view coverage.View) error {
	if !c.Enabled(view) {
		return nil
	}
	return c.ctrl.Toggle(ctx, view)
}

// Registry maps command names to commands.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
}

// NewRegistry creates a registry holding cmds.
func NewRegistry(cmds ...Command) *Registry {
	r := &Registry{commands: make(map[string]Command)}
	for _, c := range cmds {
		r.commands[c.Name()] = c
	}
	return r
}

// Register adds cmd, replacing any command with the same name.
func (r *Registry) Register(cmd Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd.Name()] = cmd
}

// Get returns the command registered under name.
func (r *Registry) Get(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.commands[name]
	return c, ok
}

// Visible returns the commands enabled for view, sorted by name.
func (r *Registry) Visible(view coverage.View) []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Command
	for _, c := range r.commands {
		if c.Enabled(view) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Execute runs the named command against view.
func (r *Registry) Execute(ctx context.Context, name string, view coverage.View) error {
	c, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return c.Run(ctx, view)
}
