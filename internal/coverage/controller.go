package coverage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os/exec"
	"sync"
	"time"

	"github.com/dshills/pycover/internal/integration/process"
	"github.com/dshills/pycover/internal/locate"
	"github.com/dshills/pycover/internal/logging"
)

// File names searched for next to, or above, the target file.
const (
	DataFileName   = ".coverage"
	ConfigFileName = ".coveragerc"
	PythonName     = "python"
)

// Result describes how one run ended. It is delivered on the UI goroutine.
type Result struct {
	ViewID string
	Path   string
	// Lines are the missing lines reported by the helper.
	Lines []int
	// Annotated is the number of regions drawn.
	Annotated int
	Err       error
	Elapsed   time.Duration
	// Superseded is set when a newer run for the view replaced this one
	// and the result was discarded.
	Superseded bool
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithCompletionHook sets a function called on the UI goroutine after each
// asynchronous run ends, whether it succeeded or not.
func WithCompletionHook(fn func(Result)) ControllerOption {
	return func(c *Controller) {
		c.onComplete = fn
	}
}

// WithScriptResolver replaces ScriptPath.
func WithScriptResolver(fn func(override string) (string, error)) ControllerOption {
	return func(c *Controller) {
		c.resolveScript = fn
	}
}

// WithJobStarter replaces the function used to launch jobs.
func WithJobStarter(fn func(Invocation) (Job, error)) ControllerOption {
	return func(c *Controller) {
		c.startJob = fn
	}
}

// WithPollerOptions appends options to every Poller the Controller creates.
func WithPollerOptions(opts ...PollerOption) ControllerOption {
	return func(c *Controller) {
		c.pollOpts = append(c.pollOpts, opts...)
	}
}

// WithControllerLogger sets the logger.
func WithControllerLogger(l *logging.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = l
	}
}

// Controller implements the coverage command: it toggles highlights off,
// or locates the inputs, starts a job and polls it in the background.
//
// Toggle, Refresh and Forget must be called on the UI goroutine.
type Controller struct {
	settings SettingsSource
	sched    Scheduler
	logger   *logging.Logger
	applier  *Applier

	resolveScript func(string) (string, error)
	startJob      func(Invocation) (Job, error)
	onComplete    func(Result)
	pollOpts      []PollerOption

	mu      sync.Mutex
	gens    map[string]uint64
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewController creates a Controller that starts jobs under sup and
// delivers results through sched.
func NewController(settings SettingsSource, sched Scheduler, sup *process.Supervisor, opts ...ControllerOption) *Controller {
	c := &Controller{
		settings:      settings,
		sched:         sched,
		logger:        logging.Null(),
		resolveScript: ScriptPath,
		gens:          make(map[string]uint64),
		cancels:       make(map[string]context.CancelFunc),
	}
	c.startJob = func(inv Invocation) (Job, error) {
		return StartJob(sup, inv)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.applier = NewApplier(settings, c.logger)
	return c
}

// IsApplicable reports whether the command can run on view.
func (c *Controller) IsApplicable(view View) bool {
	return view != nil && view.Language() == LanguagePython && view.FilePath() != ""
}

// Toggle erases the highlights if they are showing, otherwise starts a run.
// Errors that stop a run from starting are shown on the view and returned.
func (c *Controller) Toggle(ctx context.Context, view View) error {
	if !c.IsApplicable(view) {
		return nil
	}
	if view.ViewFlag(ShowingFlag) {
		_, stopped := c.bump(view.ID(), nil)
		c.applier.Clear(view)
		if stopped {
			// The stopped run may have left its progress text behind.
			view.ShowStatusMessage("")
		}
		c.logger.Debug("cleared %s", view.FilePath())
		return nil
	}
	return c.start(ctx, view)
}

// Refresh starts a run regardless of whether highlights are showing.
func (c *Controller) Refresh(ctx context.Context, view View) error {
	if !c.IsApplicable(view) {
		return nil
	}
	return c.start(ctx, view)
}

// Forget drops per-view state. A run still in flight for the view is
// stopped and its result discarded.
func (c *Controller) Forget(view View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.cancels[view.ID()]; ok {
		cancel()
		delete(c.cancels, view.ID())
	}
	delete(c.gens, view.ID())
}

// Wait blocks until every background poller has returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) start(ctx context.Context, view View) error {
	settings := c.settings.Settings()
	path := view.FilePath()

	data, ok := locate.Find(path, DataFileName)
	if !ok {
		return c.fail(view, &Error{Kind: KindCoverageDataNotFound, Path: path})
	}
	rc, _ := locate.Find(path, ConfigFileName)

	python, err := locate.Executable(settings.Python, PythonName)
	if err != nil {
		return c.fail(view, &Error{Kind: KindExecutableNotFound, Path: path, Err: err})
	}

	script, err := c.resolveScript(settings.Script)
	if err != nil {
		return c.fail(view, &Error{Kind: KindProcessFailure, Path: path, Message: err.Error(), Err: err})
	}

	inv := Invocation{
		Executable: python,
		Script:     script,
		Run:        Run{FilePath: path, DataPath: data, ConfigPath: rc},
	}
	job, err := c.startJob(inv)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return c.fail(view, &Error{Kind: KindExecutableNotFound, Path: path, Err: err})
		}
		return c.fail(view, &Error{Kind: KindProcessFailure, Path: path, Message: err.Error(), Err: err})
	}

	runCtx, cancel := context.WithCancel(ctx)
	gen, _ := c.bump(view.ID(), cancel)
	c.logger.Debug("running %s %v", inv.Executable, inv.Args())

	poller := NewPoller(append([]PollerOption{
		WithInterval(settings.PollInterval),
		WithTimeout(settings.Timeout),
		WithProgress(c.sched, func() {
			if c.current(view.ID(), gen) {
				view.ShowStatusMessage(ProgressMessage)
			}
		}),
		WithPollerLogger(c.logger),
	}, c.pollOpts...)...)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		out := poller.Run(runCtx, job)
		if closer, ok := job.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				c.logger.Warn("close job: %v", err)
			}
		}
		if !c.sched.Post(func() { c.finish(view, gen, path, out) }) {
			c.logger.Warn("dropping result for %s: scheduler closed", path)
		}
	}()
	return nil
}

// finish runs on the UI goroutine.
func (c *Controller) finish(view View, gen uint64, path string, out Outcome) {
	res := Result{ViewID: view.ID(), Path: path, Err: out.Err, Elapsed: out.Elapsed}

	switch {
	case !c.settle(view.ID(), gen):
		res.Superseded = true
		c.logger.Debug("discarding superseded result for %s", path)
	case out.Err != nil:
		var e *Error
		if errors.As(out.Err, &e) && e.Path == "" {
			e.Path = path
		}
		if KindOf(out.Err) == KindCancelled {
			c.logger.Info("%v", out.Err)
		} else {
			c.report(view, out.Err)
		}
	default:
		res.Lines = out.Lines
		res.Annotated = c.applier.Apply(view, out.Lines)
	}

	if c.onComplete != nil {
		c.onComplete(res)
	}
}

func (c *Controller) fail(view View, err *Error) error {
	c.report(view, err)
	return err
}

func (c *Controller) report(view View, err error) {
	view.ShowStatusMessage(err.Error())
	c.logger.Error("%v", err)
}

// bump starts a new generation for the view and stops the run of the
// previous one, if any. cancel, when set, stops the new generation's run.
func (c *Controller) bump(id string, cancel context.CancelFunc) (gen uint64, stopped bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.cancels[id]; ok {
		prev()
		stopped = true
		delete(c.cancels, id)
	}
	if cancel != nil {
		c.cancels[id] = cancel
	}
	c.gens[id]++
	return c.gens[id], stopped
}

// settle reports whether gen is still the view's latest run and, if so,
// forgets its cancel func.
func (c *Controller) settle(id string, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[id] != gen {
		return false
	}
	delete(c.cancels, id)
	return true
}

func (c *Controller) current(id string, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[id] == gen
}
