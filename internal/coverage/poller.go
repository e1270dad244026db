package coverage

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dshills/pycover/internal/config"
	"github.com/dshills/pycover/internal/logging"
)

// PollState is the state of a Poller.
type PollState int32

const (
	PollIdle PollState = iota
	PollRunning
	PollCompleted
	PollTimedOut
	PollCancelled
)

// String returns the state name.
func (s PollState) String() string {
	switch s {
	case PollIdle:
		return "idle"
	case PollRunning:
		return "running"
	case PollCompleted:
		return "completed"
	case PollTimedOut:
		return "timed out"
	case PollCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is the single result of polling one job.
type Outcome struct {
	// Lines holds the 1-based missing line numbers when Err is nil.
	Lines []int
	// Err is a *Error describing why the run failed.
	Err error
	// Elapsed is the time from the start of polling to the outcome.
	Elapsed time.Duration
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithInterval sets the time between polls.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithTimeout sets the wall-clock budget for the job.
func WithTimeout(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithProgress makes the poller post fn to sched on every tick that finds
// the job still running. At most one post is outstanding at a time.
func WithProgress(sched Scheduler, fn func()) PollerOption {
	return func(p *Poller) {
		p.sched = sched
		p.progress = fn
	}
}

// WithPollerLogger sets the logger.
func WithPollerLogger(l *logging.Logger) PollerOption {
	return func(p *Poller) {
		p.logger = l
	}
}

// WithClock replaces the time source and the sleep used between polls.
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) PollerOption {
	return func(p *Poller) {
		p.now = now
		p.after = after
	}
}

// Poller watches one job until it completes, times out or is cancelled.
// A Poller is used for a single Run.
type Poller struct {
	interval time.Duration
	timeout  time.Duration
	sched    Scheduler
	progress func()
	logger   *logging.Logger
	now      func() time.Time
	after    func(time.Duration) <-chan time.Time

	state   atomic.Int32
	pending atomic.Bool
	ticks   atomic.Int64
}

// NewPoller creates a Poller with the default interval and timeout.
func NewPoller(opts ...PollerOption) *Poller {
	p := &Poller{
		interval: config.DefaultPollInterval,
		timeout:  config.DefaultTimeout,
		logger:   logging.Null(),
		now:      time.Now,
		after:    time.After,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the poller's current state.
func (p *Poller) State() PollState {
	return PollState(p.state.Load())
}

// Ticks returns how many times the job has been checked.
func (p *Poller) Ticks() int64 {
	return p.ticks.Load()
}

// Run polls job until it finishes and decodes its result. It blocks, so
// callers run it on its own goroutine. If ctx ends first the job is killed
// and the outcome carries a Cancelled error.
func (p *Poller) Run(ctx context.Context, job Job) Outcome {
	p.state.Store(int32(PollRunning))
	start := p.now()

	for {
		p.ticks.Add(1)
		if job.Finished() {
			break
		}

		elapsed := p.now().Sub(start)
		if elapsed >= p.timeout {
			p.stop(job, true)
			p.state.Store(int32(PollTimedOut))
			return Outcome{Err: &Error{Kind: KindProcessTimeout, Elapsed: elapsed}, Elapsed: elapsed}
		}
		if err := ctx.Err(); err != nil {
			return p.cancel(job, start, err)
		}

		p.notifyProgress()

		select {
		case <-ctx.Done():
			return p.cancel(job, start, ctx.Err())
		case <-p.after(p.interval):
		}
	}

	c, err := job.Collect()
	elapsed := p.now().Sub(start)
	p.state.Store(int32(PollCompleted))

	if err != nil {
		msg := decodeStderr(c.Stderr)
		if msg == "" {
			msg = err.Error()
		}
		return Outcome{Err: &Error{Kind: KindProcessFailure, Message: msg, Err: err}, Elapsed: elapsed}
	}
	if c.ExitCode != 0 {
		msg := decodeStderr(c.Stderr)
		if strings.TrimSpace(msg) == "" {
			msg = fmt.Sprintf("%s exited with status %d", ScriptName, c.ExitCode)
		}
		return Outcome{Err: &Error{Kind: KindProcessFailure, Message: msg}, Elapsed: elapsed}
	}

	lines, err := ParseMissingLines(c.Stdout)
	if err != nil {
		return Outcome{Err: err, Elapsed: elapsed}
	}
	p.logger.Debug("job finished in %s with %d missing lines", elapsed, len(lines))
	return Outcome{Lines: lines, Elapsed: elapsed}
}

func (p *Poller) cancel(job Job, start time.Time, cause error) Outcome {
	p.stop(job, false)
	elapsed := p.now().Sub(start)
	p.state.Store(int32(PollCancelled))
	return Outcome{Err: &Error{Kind: KindCancelled, Elapsed: elapsed, Err: cause}, Elapsed: elapsed}
}

type timeOuter interface {
	TimeOut() error
}

func (p *Poller) stop(job Job, timedOut bool) {
	var err error
	if t, ok := job.(timeOuter); ok && timedOut {
		err = t.TimeOut()
	} else {
		err = job.Kill()
	}
	if err != nil {
		p.logger.Warn("kill job: %v", err)
	}
}

// notifyProgress posts the progress callback unless one is already queued.
func (p *Poller) notifyProgress() {
	if p.sched == nil || p.progress == nil {
		return
	}
	if !p.pending.CompareAndSwap(false, true) {
		return
	}
	ok := p.sched.Post(func() {
		p.pending.Store(false)
		p.progress()
	})
	if !ok {
		p.pending.Store(false)
	}
}

func decodeStderr(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}
