package editor

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// ErrViewNotFound is returned when no view is open for a path.
var ErrViewNotFound = errors.New("view not found")

// Manager tracks open views by absolute path.
type Manager struct {
	mu      sync.RWMutex
	views   map[string]*View
	order   []string
	active  *View
	counter int
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{views: make(map[string]*View)}
}

// Open returns the view for path, reading the file if it is not open yet.
// opened is false when an existing view was returned.
func (m *Manager) Open(path string) (view *View, opened bool, err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.views[abs]; ok {
		m.active = v
		return v, false, nil
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, false, err
	}

	m.counter++
	v := NewView("view-"+strconv.Itoa(m.counter), abs, string(content))
	m.views[abs] = v
	m.order = append(m.order, abs)
	m.active = v
	return v, true, nil
}

// Reload re-reads the view's file from disk.
func (m *Manager) Reload(v *View) error {
	content, err := os.ReadFile(v.FilePath())
	if err != nil {
		return err
	}
	v.SetText(string(content))
	return nil
}

// Get returns the view for an absolute path.
func (m *Manager) Get(path string) (*View, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.views[path]
	return v, ok
}

// Close forgets the view for path.
func (m *Manager) Close(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.views[path]
	if !ok {
		return ErrViewNotFound
	}
	delete(m.views, path)
	for i, p := range m.order {
		if p == path {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.active == v {
		m.active = nil
		if len(m.order) > 0 {
			m.active = m.views[m.order[len(m.order)-1]]
		}
	}
	return nil
}

// Active returns the most recently opened or focused view.
func (m *Manager) Active() *View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// All returns the open views in the order they were opened.
func (m *Manager) All() []*View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	views := make([]*View, 0, len(m.order))
	for _, p := range m.order {
		views = append(views, m.views[p])
	}
	return views
}

// Count returns the number of open views.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.views)
}
