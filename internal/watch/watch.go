// Package watch reports changes to individual files using fsnotify.
//
// Files are watched through their parent directory so that editors and
// tools which replace a file atomically (write to a temp file, rename over
// the original) are still seen. Bursts of events for the same file are
// debounced into one callback.
package watch

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Op is the kind of change observed.
type Op int

const (
	// OpWrite indicates the file was modified.
	OpWrite Op = iota
	// OpCreate indicates the file was created or renamed into place.
	OpCreate
	// OpRemove indicates the file was removed or renamed away.
	OpRemove
)

// String returns the operation name.
func (op Op) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpCreate:
		return "create"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Event describes a change to a watched file.
type Event struct {
	Path string
	Op   Op
	Time time.Time
}

// Handler is called, on the watcher's goroutine, after a change settles.
type Handler func(Event)

// ErrClosed is returned when using a closed watcher.
var ErrClosed = errors.New("watcher is closed")

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long a file must be quiet before its handler runs.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithErrorHandler sets a callback for errors reported by fsnotify.
func WithErrorHandler(fn func(error)) Option {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// Watcher dispatches file change events to per-file handlers.
type Watcher struct {
	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	files    map[string][]Handler
	dirs     map[string]int
	timers   map[string]*time.Timer
	pending  map[string]Op
	debounce time.Duration
	onError  func(error)
	closed   bool
	done     chan struct{}
}

// New creates a watcher and starts its event loop.
func New(opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:      fsw,
		files:    make(map[string][]Handler),
		dirs:     make(map[string]int),
		timers:   make(map[string]*time.Timer),
		pending:  make(map[string]Op),
		debounce: 100 * time.Millisecond,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	go w.loop()
	return w, nil
}

// Add registers fn for changes to path. The file need not exist yet, but
// its directory must.
func (w *Watcher) Add(path string, fn Handler) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	if w.dirs[dir] == 0 {
		if err := w.fsw.Add(dir); err != nil {
			return err
		}
	}
	w.dirs[dir]++
	w.files[abs] = append(w.files[abs], fn)
	return nil
}

// Remove drops every handler for path.
func (w *Watcher) Remove(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	n := len(w.files[abs])
	if n == 0 {
		return nil
	}
	delete(w.files, abs)
	if t := w.timers[abs]; t != nil {
		t.Stop()
		delete(w.timers, abs)
	}

	w.dirs[dir] -= n
	if w.dirs[dir] <= 0 {
		delete(w.dirs, dir)
		return w.fsw.Remove(dir)
	}
	return nil
}

// Close stops the watcher. Pending debounced events are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()

	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.onError != nil && err != nil {
				w.onError(err)
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	var op Op
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
	case ev.Has(fsnotify.Write):
		op = OpWrite
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		op = OpRemove
	default:
		return
	}

	path := filepath.Clean(ev.Name)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || len(w.files[path]) == 0 {
		return
	}

	w.pending[path] = op
	if t := w.timers[path]; t != nil {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() { w.fire(path) })
}

func (w *Watcher) fire(path string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	op, ok := w.pending[path]
	delete(w.pending, path)
	delete(w.timers, path)
	handlers := append([]Handler(nil), w.files[path]...)
	w.mu.Unlock()

	if !ok {
		return
	}
	ev := Event{Path: path, Op: op, Time: time.Now()}
	for _, h := range handlers {
		h(ev)
	}
}
