package config

import (
	"sync"

	"github.com/dshills/pycover/internal/logging"
	"github.com/dshills/pycover/internal/watch"
)

// Store holds the current Settings and notifies subscribers when they change.
// It is safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	settings    Settings
	subscribers []func(Settings)

	path     string
	override func(*Settings)
	logger   *logging.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithOverride applies fn to every loaded Settings value, e.g. for command
// line flags that take precedence over the file and environment.
func WithOverride(fn func(*Settings)) StoreOption {
	return func(s *Store) {
		s.override = fn
	}
}

// WithLogger sets the logger used to report load failures.
func WithLogger(l *logging.Logger) StoreOption {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore creates a store holding the given settings.
func NewStore(settings Settings, opts ...StoreOption) *Store {
	s := &Store{settings: settings, logger: logging.Null()}
	for _, opt := range opts {
		opt(s)
	}
	if s.override != nil {
		s.override(&s.settings)
	}
	return s
}

// Open loads settings from path and returns a store holding them.
//
// A load failure is logged once and the store falls back to Defaults; the
// error is also returned so callers can tell, but the store is always usable.
func Open(path string, opts ...StoreOption) (*Store, error) {
	if path == "" {
		path = DefaultPath()
	}
	settings, err := Load(path)
	s := NewStore(settings, opts...)
	s.path = path
	if err != nil {
		s.logger.Error("error loading settings: %v", err)
	} else {
		s.logger.Debug("loaded settings from %s", path)
	}
	return s, err
}

// Path returns the settings file backing the store, if any.
func (s *Store) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// Settings returns a copy of the current settings.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Set replaces the settings and notifies subscribers.
func (s *Store) Set(settings Settings) {
	s.mu.Lock()
	if s.override != nil {
		s.override(&settings)
	}
	s.settings = settings
	subs := append(([]func(Settings))(nil), s.subscribers...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(settings)
	}
}

// Subscribe registers fn to be called after every change.
func (s *Store) Subscribe(fn func(Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Reload re-reads the settings file. On failure the current settings
// are kept.
func (s *Store) Reload() error {
	settings, err := Load(s.Path())
	if err != nil {
		s.logger.Warn("keeping previous settings: %v", err)
		return err
	}
	s.Set(settings)
	s.logger.Info("reloaded settings from %s", s.Path())
	return nil
}

// Watch reloads the store whenever its settings file changes.
func (s *Store) Watch(w *watch.Watcher) error {
	path := s.Path()
	if path == "" {
		return nil
	}
	return w.Add(path, func(watch.Event) {
		_ = s.Reload()
	})
}
