package coverage

import (
	"strings"
	"sync"
	"time"

	"github.com/dshills/pycover/internal/config"
)

type staticSettings config.Settings

func (s staticSettings) Settings() config.Settings {
	return config.Settings(s)
}

func defaultSettings() staticSettings {
	return staticSettings(config.Defaults())
}

// fakeView is an in-memory View over fixed text.
type fakeView struct {
	id    string
	path  string
	lang  string
	lines []string

	flags     map[string]bool
	regions   map[string][]Span
	scope     string
	icon      string
	drawFlags DrawFlags
	status    []string
	erased    int
}

func newFakeView(path, text string) *fakeView {
	lines := strings.SplitAfter(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return &fakeView{
		id:      "view-" + path,
		path:    path,
		lang:    LanguagePython,
		lines:   lines,
		flags:   make(map[string]bool),
		regions: make(map[string][]Span),
	}
}

func (v *fakeView) ID() string       { return v.id }
func (v *fakeView) FilePath() string { return v.path }
func (v *fakeView) Language() string { return v.lang }

func (v *fakeView) ViewFlag(name string) bool { return v.flags[name] }

func (v *fakeView) FullLine(line int) (Span, bool) {
	if line < 0 || line >= len(v.lines) {
		return Span{}, false
	}
	start := 0
	for _, l := range v.lines[:line] {
		start += len(l)
	}
	return Span{Start: start, End: start + len(v.lines[line])}, true
}

func (v *fakeView) AddRegions(tag string, spans []Span, scope, icon string, flags DrawFlags) {
	v.regions[tag] = append([]Span(nil), spans...)
	v.scope = scope
	v.icon = icon
	v.drawFlags = flags
}

func (v *fakeView) EraseRegions(tag string) {
	v.erased++
	delete(v.regions, tag)
}

func (v *fakeView) SetViewFlag(name string, value bool) { v.flags[name] = value }

func (v *fakeView) ShowStatusMessage(text string) { v.status = append(v.status, text) }

func (v *fakeView) lastStatus() string {
	if len(v.status) == 0 {
		return ""
	}
	return v.status[len(v.status)-1]
}

// fakeJob finishes after a fixed number of Finished calls. A negative
// count means it never finishes on its own.
type fakeJob struct {
	mu          sync.Mutex
	finishAfter int
	calls       int
	completion  Completion
	collectErr  error
	killed      bool
}

func (j *fakeJob) Started() time.Time { return time.Time{} }

func (j *fakeJob) Finished() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.killed {
		return true
	}
	done := j.finishAfter >= 0 && j.calls >= j.finishAfter
	j.calls++
	return done
}

func (j *fakeJob) Collect() (Completion, error) {
	return j.completion, j.collectErr
}

func (j *fakeJob) Kill() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.killed = true
	return nil
}

func (j *fakeJob) Calls() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.calls
}

func (j *fakeJob) Killed() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.killed
}

// fakeClock advances only when the poller sleeps.
type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps int
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	c.sleeps++
	ch := make(chan time.Time, 1)
	ch <- c.t
	return ch
}

func (c *fakeClock) Option() PollerOption {
	return WithClock(c.Now, c.After)
}
