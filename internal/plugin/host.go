// Package plugin runs Lua scripts against pycover. Scripts get a sandboxed
// interpreter with the pycover module preloaded:
//
//	local lines = pycover.show("src/app.py")
//	pycover.status(#lines .. " lines missing")
package plugin

import (
	"context"
	"io"

	"github.com/dshills/pycover/internal/logging"
)

// HostOptions configures a Host.
type HostOptions struct {
	Runner  Runner
	Output  io.Writer
	Logger  *logging.Logger
	Version string
	State   []StateOption
}

// Host owns a Lua state with the pycover module loaded.
type Host struct {
	state  *State
	logger *logging.Logger
}

// NewHost creates a Host.
func NewHost(opts HostOptions) *Host {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Null()
	}
	stateOpts := opts.State
	if opts.Output != nil {
		stateOpts = append([]StateOption{WithOutput(opts.Output)}, stateOpts...)
	}
	state := NewState(stateOpts...)
	mod := NewModule(opts.Runner, opts.Output, logger, opts.Version)
	state.Preload(ModuleName, mod.Loader)
	return &Host{state: state, logger: logger}
}

// RunFile runs the script at path.
func (h *Host) RunFile(ctx context.Context, path string) error {
	h.logger.Debug("running %s", path)
	return h.state.DoFile(ctx, path)
}

// RunString runs a chunk of Lua.
func (h *Host) RunString(ctx context.Context, code string) error {
	return h.state.DoString(ctx, code)
}

// State returns the interpreter.
func (h *Host) State() *State {
	return h.state
}

// Close releases the interpreter.
func (h *Host) Close() {
	h.state.Close()
}
