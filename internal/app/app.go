// Package app wires the pycover components together: settings, the UI
// work loop, the process supervisor, the coverage controller, views and
// the triggers that drive it.
package app

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/pycover/internal/config"
	"github.com/dshills/pycover/internal/coverage"
	"github.com/dshills/pycover/internal/dispatch"
	"github.com/dshills/pycover/internal/editor"
	"github.com/dshills/pycover/internal/integration/process"
	"github.com/dshills/pycover/internal/logging"
	"github.com/dshills/pycover/internal/trigger"
	"github.com/dshills/pycover/internal/watch"
)

// DefaultShutdownTimeout is how long running jobs get to exit after SIGTERM.
const DefaultShutdownTimeout = 2 * time.Second

// Options configures the application.
type Options struct {
	// ConfigPath is the settings file. Empty means the user default.
	ConfigPath string

	// Python, LogLevel and Timeout override the loaded settings when set.
	Python   string
	LogLevel string
	Timeout  time.Duration

	// WatchConfig reloads settings when the file changes.
	WatchConfig bool

	// LogOutput receives log lines. Defaults to os.Stderr.
	LogOutput io.Writer

	// ShutdownTimeout bounds Shutdown. Defaults to DefaultShutdownTimeout.
	ShutdownTimeout time.Duration

	// ControllerOptions are passed to the coverage controller.
	ControllerOptions []coverage.ControllerOption
}

// Application owns every long-lived component.
type Application struct {
	opts Options

	logger     *logging.Logger
	store      *config.Store
	configErr  error
	loop       *dispatch.Loop
	supervisor *process.Supervisor
	controller *coverage.Controller
	views      *editor.Manager
	commands   *trigger.Registry
	onLoad     *trigger.LoadListener
	watcher    *watch.Watcher
	metrics    *Metrics

	mu        sync.Mutex
	waiters   map[string][]chan coverage.Result
	listeners []func(coverage.Result)
	data      *trigger.DataWatcher

	closed atomic.Bool
}

// New creates an Application. A settings load failure is not fatal: it is
// logged, defaults are used, and ConfigError reports it.
func New(opts Options) (*Application, error) {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	a := &Application{
		opts:    opts,
		views:   editor.NewManager(),
		metrics: NewMetrics(),
		waiters: make(map[string][]chan coverage.Result),
	}
	if err := a.bootstrap(); err != nil {
		return nil, err
	}
	return a, nil
}

// bootstrap initializes components in dependency order.
func (a *Application) bootstrap() error {
	// 1. Logging
	cfg := logging.DefaultConfig()
	if a.opts.LogOutput != nil {
		cfg.Output = a.opts.LogOutput
	}
	if a.opts.LogLevel != "" {
		cfg.Level = logging.ParseLevel(a.opts.LogLevel)
	}
	a.logger = logging.New(cfg)

	// 2. Settings
	a.store, a.configErr = config.Open(a.opts.ConfigPath,
		config.WithOverride(a.applyOverrides),
		config.WithLogger(a.logger.WithComponent("config")),
	)
	a.applyLogLevel(a.store.Settings())
	a.store.Subscribe(a.applyLogLevel)

	// 3. UI loop
	a.loop = dispatch.New(dispatch.WithPanicHandler(func(v any, stack []byte) {
		a.logger.Error("panic on UI loop: %v\n%s", v, stack)
	}))

	// 4. Process supervisor
	a.supervisor = process.NewSupervisor(process.WithProcessExitCallback(func(p *process.Process) {
		a.logger.Debug("process %s (%s) exited with %d after %s", p.ID, p.Name, p.ExitCode(), p.Runtime())
	}))

	// 5. Coverage controller
	ctrlOpts := append([]coverage.ControllerOption{
		coverage.WithControllerLogger(a.logger.WithComponent("coverage")),
		coverage.WithCompletionHook(a.complete),
	}, a.opts.ControllerOptions...)
	a.controller = coverage.NewController(a.store, a.loop, a.supervisor, ctrlOpts...)

	// 6. Triggers
	show := trigger.NewShowCoverage(a.controller)
	a.commands = trigger.NewRegistry(show)
	a.onLoad = trigger.NewLoadListener(a.store, show)

	// 7. Settings watch
	if a.opts.WatchConfig {
		w, err := a.fileWatcher()
		if err != nil {
			a.logger.Warn("settings will not reload: %v", err)
		} else if err := a.store.Watch(w); err != nil {
			a.logger.Warn("watch %s: %v", a.store.Path(), err)
		}
	}
	return nil
}

func (a *Application) applyOverrides(s *config.Settings) {
	if a.opts.Python != "" {
		s.Python = a.opts.Python
	}
	if a.opts.LogLevel != "" {
		s.LogLevel = a.opts.LogLevel
	}
	if a.opts.Timeout > 0 {
		s.Timeout = a.opts.Timeout
		if s.PollInterval > s.Timeout {
			s.PollInterval = s.Timeout
		}
	}
}

func (a *Application) applyLogLevel(s config.Settings) {
	a.logger.SetLevel(logging.ParseLevel(s.LogLevel))
}

// fileWatcher returns the shared watcher, creating it on first use.
func (a *Application) fileWatcher() (*watch.Watcher, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.watcher != nil {
		return a.watcher, nil
	}
	w, err := watch.New(watch.WithErrorHandler(func(err error) {
		a.logger.Warn("file watch: %v", err)
	}))
	if err != nil {
		return nil, &InitError{Component: "file watcher", Err: err}
	}
	a.watcher = w
	return w, nil
}

// complete runs on the UI goroutine for every finished run.
func (a *Application) complete(r coverage.Result) {
	a.metrics.RecordResult(r)

	a.mu.Lock()
	listeners := append(([]func(coverage.Result))(nil), a.listeners...)
	var waiting []chan coverage.Result
	if !r.Superseded {
		waiting = a.waiters[r.ViewID]
		delete(a.waiters, r.ViewID)
	}
	a.mu.Unlock()

	for _, ch := range waiting {
		ch <- r
	}
	for _, fn := range listeners {
		fn(r)
	}
}

// OnResult registers fn to run on the UI goroutine after every run.
func (a *Application) OnResult(fn func(coverage.Result)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// Logger returns the application logger.
func (a *Application) Logger() *logging.Logger { return a.logger }

// Settings returns the current settings.
func (a *Application) Settings() config.Settings { return a.store.Settings() }

// Store returns the settings store.
func (a *Application) Store() *config.Store { return a.store }

// ConfigError returns the error from loading settings, if any.
func (a *Application) ConfigError() error { return a.configErr }

// Loop returns the UI work loop.
func (a *Application) Loop() *dispatch.Loop { return a.loop }

// Controller returns the coverage controller.
func (a *Application) Controller() *coverage.Controller { return a.controller }

// Views returns the view manager.
func (a *Application) Views() *editor.Manager { return a.views }

// Commands returns the command registry.
func (a *Application) Commands() *trigger.Registry { return a.commands }

// Metrics returns run metrics.
func (a *Application) Metrics() *Metrics { return a.metrics }

// Run drains the UI loop until ctx ends or Shutdown is called. Hosts with
// their own event loop drain it themselves instead.
func (a *Application) Run(ctx context.Context) error {
	return a.loop.Run(ctx)
}

// Shutdown stops every running job, waits for pollers, and releases
// watchers. Pending UI work is drained. It is safe to call more than once.
func (a *Application) Shutdown() error {
	if a.closed.Swap(true) {
		return nil
	}
	err := a.supervisor.Shutdown(a.opts.ShutdownTimeout)
	a.controller.Wait()
	a.loop.RunPending()
	a.loop.Close()

	a.mu.Lock()
	w := a.watcher
	a.mu.Unlock()
	if w != nil {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	a.logger.Debug("shut down: %+v", a.metrics.Snapshot())
	return err
}
