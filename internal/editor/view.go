// Package editor is a minimal in-memory editor model: views over file text
// that accept highlight regions, per-view flags and status messages.
package editor

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dshills/pycover/internal/coverage"
)

// Region is a set of highlighted spans drawn under one tag.
type Region struct {
	Spans []coverage.Span
	Scope string
	Icon  string
	Flags coverage.DrawFlags
}

// View is an open file. It implements coverage.View.
type View struct {
	id   string
	path string
	name string
	lang string

	mu         sync.RWMutex
	text       string
	lineStarts []int
	regions    map[string]Region
	flags      map[string]bool
	status     string
	onStatus   func(string)
	onChange   func()
}

var _ coverage.View = (*View)(nil)

// NewView creates a view over text. path may be empty for a scratch buffer.
func NewView(id, path, text string) *View {
	name := filepath.Base(path)
	if path == "" {
		name = "Untitled"
	}
	v := &View{
		id:      id,
		path:    path,
		name:    name,
		lang:    DetectLanguage(path, []byte(text)),
		regions: make(map[string]Region),
		flags:   make(map[string]bool),
	}
	v.setText(text)
	return v
}

// ID returns the view identifier.
func (v *View) ID() string { return v.id }

// FilePath returns the backing file path.
func (v *View) FilePath() string { return v.path }

// Name returns the display name.
func (v *View) Name() string { return v.name }

// Language returns the detected language identifier.
func (v *View) Language() string { return v.lang }

// Text returns the full content.
func (v *View) Text() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.text
}

// SetText replaces the content. Regions are kept; spans that now fall past
// the end are clipped by consumers.
func (v *View) SetText(text string) {
	v.mu.Lock()
	v.setText(text)
	v.mu.Unlock()
	v.changed()
}

func (v *View) setText(text string) {
	v.text = text
	v.lineStarts = v.lineStarts[:0]
	v.lineStarts = append(v.lineStarts, 0)
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' && i+1 < len(text) {
			v.lineStarts = append(v.lineStarts, i+1)
		}
	}
}

// LineCount returns the number of lines. Empty text has one empty line.
func (v *View) LineCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.lineStarts)
}

// Line returns the text of 0-based line without its newline.
func (v *View) Line(line int) string {
	span, ok := v.FullLine(line)
	if !ok {
		return ""
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return strings.TrimRight(v.text[span.Start:span.End], "\r\n")
}

// FullLine returns the span of 0-based line including its newline.
func (v *View) FullLine(line int) (coverage.Span, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if line < 0 || line >= len(v.lineStarts) {
		return coverage.Span{}, false
	}
	end := len(v.text)
	if line+1 < len(v.lineStarts) {
		end = v.lineStarts[line+1]
	}
	return coverage.Span{Start: v.lineStarts[line], End: end}, true
}

// LineAt returns the 0-based line containing byte offset.
func (v *View) LineAt(offset int) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return sort.Search(len(v.lineStarts), func(i int) bool { return v.lineStarts[i] > offset }) - 1
}

// ViewFlag returns a per-view flag.
func (v *View) ViewFlag(name string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.flags[name]
}

// SetViewFlag sets a per-view flag.
func (v *View) SetViewFlag(name string, value bool) {
	v.mu.Lock()
	v.flags[name] = value
	v.mu.Unlock()
	v.changed()
}

// AddRegions draws spans under tag, replacing any region with that tag.
func (v *View) AddRegions(tag string, spans []coverage.Span, scope, icon string, flags coverage.DrawFlags) {
	v.mu.Lock()
	v.regions[tag] = Region{
		Spans: append([]coverage.Span(nil), spans...),
		Scope: scope,
		Icon:  icon,
		Flags: flags,
	}
	v.mu.Unlock()
	v.changed()
}

// EraseRegions removes the region with tag.
func (v *View) EraseRegions(tag string) {
	v.mu.Lock()
	delete(v.regions, tag)
	v.mu.Unlock()
	v.changed()
}

// Regions returns the region drawn under tag.
func (v *View) Regions(tag string) (Region, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	r, ok := v.regions[tag]
	return r, ok
}

// MarkedLines returns the sorted 1-based line numbers touched by the
// region under tag.
func (v *View) MarkedLines(tag string) []int {
	r, ok := v.Regions(tag)
	if !ok {
		return nil
	}
	seen := make(map[int]bool, len(r.Spans))
	lines := make([]int, 0, len(r.Spans))
	for _, s := range r.Spans {
		n := v.LineAt(s.Start) + 1
		if n > 0 && !seen[n] {
			seen[n] = true
			lines = append(lines, n)
		}
	}
	sort.Ints(lines)
	return lines
}

// LineMarked reports whether 0-based line intersects the region under tag.
func (v *View) LineMarked(tag string, line int) bool {
	span, ok := v.FullLine(line)
	if !ok {
		return false
	}
	r, ok := v.Regions(tag)
	if !ok {
		return false
	}
	for _, s := range r.Spans {
		if s.Start < span.End && span.Start < s.End {
			return true
		}
	}
	return false
}

// ShowStatusMessage sets the status text.
func (v *View) ShowStatusMessage(text string) {
	v.mu.Lock()
	v.status = text
	hook := v.onStatus
	v.mu.Unlock()
	if hook != nil {
		hook(text)
	}
	v.changed()
}

// Status returns the last status message.
func (v *View) Status() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.status
}

// OnStatus sets a function called with every status message.
func (v *View) OnStatus(fn func(string)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onStatus = fn
}

// OnChange sets a function called after any visible state changes.
func (v *View) OnChange(fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onChange = fn
}

func (v *View) changed() {
	v.mu.RLock()
	fn := v.onChange
	v.mu.RUnlock()
	if fn != nil {
		fn()
	}
}
