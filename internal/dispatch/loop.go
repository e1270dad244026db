// Package dispatch provides the UI-thread work queue.
//
// Background goroutines never touch view state directly. They Post a
// function to the Loop, and the goroutine that owns the UI runs queued
// functions in order, either by calling Run or by draining with RunPending
// from its own event loop.
package dispatch

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// PanicHandler is called when a posted function panics.
type PanicHandler func(value any, stack []byte)

// Option configures a Loop.
type Option func(*Loop)

// WithPanicHandler sets the handler for panics in posted functions.
// Without one, panics are recovered and dropped.
func WithPanicHandler(fn PanicHandler) Option {
	return func(l *Loop) {
		l.onPanic = fn
	}
}

// WithNotify sets a function called after every successful Post. Hosts
// with their own blocking event loop use it to wake that loop.
func WithNotify(fn func()) Option {
	return func(l *Loop) {
		l.notify = fn
	}
}

// Loop is an unbounded FIFO of functions to run on the UI goroutine.
// Post never blocks, so it is safe to call from the UI goroutine itself.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	closed  bool
	notify  func()
	onPanic PanicHandler

	wake chan struct{}
	done chan struct{}

	executed atomic.Uint64
	panicked atomic.Uint64
}

// New creates a Loop.
func New(opts ...Option) *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetNotify replaces the notify function.
func (l *Loop) SetNotify(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notify = fn
}

// Post queues fn. It returns false if the loop is closed.
func (l *Loop) Post(fn func()) bool {
	if fn == nil {
		return false
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	notify := l.notify
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	if notify != nil {
		notify()
	}
	return true
}

// Wake returns a channel that receives after Post. Pending work should be
// drained with RunPending when it fires.
func (l *Loop) Wake() <-chan struct{} {
	return l.wake
}

// Pending returns the number of queued functions.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// RunPending runs the functions queued so far and returns how many ran.
// Functions posted while draining run on the next call.
func (l *Loop) RunPending() int {
	l.mu.Lock()
	batch := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, fn := range batch {
		l.call(fn)
	}
	return len(batch)
}

// Run drains the queue until ctx is done or the loop is closed.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.RunPending()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			l.RunPending()
			return nil
		case <-l.wake:
		}
	}
}

// Close stops accepting work. Functions already queued still run on the
// next drain.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.done)
}

// Stats returns how many functions ran and how many of those panicked.
func (l *Loop) Stats() (executed, panicked uint64) {
	return l.executed.Load(), l.panicked.Load()
}

func (l *Loop) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.panicked.Add(1)
			if l.onPanic != nil {
				l.onPanic(r, debug.Stack())
			}
		}
	}()
	l.executed.Add(1)
	fn()
}
