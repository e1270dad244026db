package coverage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/pycover/internal/dispatch"
	"github.com/dshills/pycover/internal/integration/process"
	"github.com/dshills/pycover/internal/logging"
)

type project struct {
	root   string
	target string
	data   string
}

func newProject(t *testing.T, withRC bool) project {
	t.Helper()
	root := t.TempDir()
	pkg := filepath.Join(root, "pkg")
	require.NoError(t, os.MkdirAll(pkg, 0o755))
	p := project{
		root:   root,
		target: filepath.Join(pkg, "a.py"),
		data:   filepath.Join(root, DataFileName),
	}
	require.NoError(t, os.WriteFile(p.target, []byte(sample), 0o644))
	require.NoError(t, os.WriteFile(p.data, nil, 0o644))
	if withRC {
		require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileName), []byte("[run]\n"), 0o644))
	}
	return p
}

type harness struct {
	loop    *dispatch.Loop
	ctrl    *Controller
	log     *bytes.Buffer
	mu      sync.Mutex
	results []Result
	invs    []Invocation
}

func newHarness(t *testing.T, settings staticSettings, jobs func(Invocation) (Job, error), opts ...ControllerOption) *harness {
	t.Helper()
	h := &harness{loop: dispatch.New(), log: &bytes.Buffer{}}
	logger := logging.New(logging.Config{Level: logging.LevelDebug, Output: h.log, Prefix: "pycover"})

	base := []ControllerOption{
		WithControllerLogger(logger),
		WithScriptResolver(func(override string) (string, error) {
			if override != "" {
				return override, nil
			}
			return "/cache/missing_lines.py", nil
		}),
		WithCompletionHook(func(r Result) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.results = append(h.results, r)
		}),
		WithPollerOptions(WithInterval(time.Millisecond)),
	}
	if jobs != nil {
		base = append(base, WithJobStarter(func(inv Invocation) (Job, error) {
			h.mu.Lock()
			h.invs = append(h.invs, inv)
			h.mu.Unlock()
			return jobs(inv)
		}))
	}

	sup := process.NewSupervisor()
	t.Cleanup(func() { _ = sup.Shutdown(time.Second) })
	h.ctrl = NewController(settings, h.loop, sup, append(base, opts...)...)
	return h
}

func (h *harness) resultCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.results)
}

// pump runs posted work on the test goroutine until n results arrived.
func (h *harness) pump(t *testing.T, n int) []Result {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for h.resultCount() < n {
		select {
		case <-h.loop.Wake():
			h.loop.RunPending()
		case <-deadline:
			t.Fatalf("timed out waiting for %d results", n)
		}
	}
	h.ctrl.Wait()
	h.loop.RunPending()

	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Result(nil), h.results...)
}

func settingsWithPython(python string) staticSettings {
	s := defaultSettings()
	s.Python = python
	return s
}

func TestController_IsApplicable(t *testing.T) {
	h := newHarness(t, defaultSettings(), nil)

	assert.True(t, h.ctrl.IsApplicable(newFakeView("/src/a.py", "")))

	unsaved := newFakeView("", "")
	assert.False(t, h.ctrl.IsApplicable(unsaved))

	goFile := newFakeView("/src/main.go", "")
	goFile.lang = "go"
	assert.False(t, h.ctrl.IsApplicable(goFile))
	assert.False(t, h.ctrl.IsApplicable(nil))
}

func TestController_ToggleOffStartsNoJob(t *testing.T) {
	started := 0
	h := newHarness(t, settingsWithPython("/usr/bin/python3"), func(Invocation) (Job, error) {
		started++
		return &fakeJob{}, nil
	})
	view := newFakeView("/src/a.py", sample)
	view.flags[ShowingFlag] = true
	view.regions[RegionTag] = []Span{{0, 10}}

	require.NoError(t, h.ctrl.Toggle(context.Background(), view))

	assert.Zero(t, started)
	assert.NotContains(t, view.regions, RegionTag)
	assert.False(t, view.flags[ShowingFlag])
	assert.Zero(t, h.loop.Pending())
}

func TestController_NotApplicableDoesNothing(t *testing.T) {
	h := newHarness(t, defaultSettings(), func(Invocation) (Job, error) {
		t.Fatal("job started")
		return nil, nil
	})
	view := newFakeView("/src/a.go", sample)
	view.lang = "go"

	require.NoError(t, h.ctrl.Toggle(context.Background(), view))
	require.NoError(t, h.ctrl.Refresh(context.Background(), view))
	assert.Empty(t, view.status)
}

func TestController_CoverageDataNotFound(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.py")
	require.NoError(t, os.WriteFile(target, []byte(sample), 0o644))

	h := newHarness(t, settingsWithPython("/usr/bin/python3"), func(Invocation) (Job, error) {
		t.Fatal("job started")
		return nil, nil
	})
	view := newFakeView(target, sample)

	err := h.ctrl.Toggle(context.Background(), view)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCoverageDataNotFound))
	want := "Could not find .coverage file for " + target
	assert.Equal(t, want, view.lastStatus())
	assert.Contains(t, h.log.String(), "[ERROR] pycover: "+want)
	assert.False(t, view.flags[ShowingFlag])
}

func TestController_ExecutableNotFound(t *testing.T) {
	p := newProject(t, false)
	t.Setenv("PATH", t.TempDir())
	t.Setenv("PATHEXT", "")

	h := newHarness(t, defaultSettings(), func(Invocation) (Job, error) {
		t.Fatal("job started")
		return nil, nil
	})
	view := newFakeView(p.target, sample)

	err := h.ctrl.Toggle(context.Background(), view)
	assert.ErrorIs(t, err, ErrExecutableNotFound)
	assert.Equal(t, err.Error(), view.lastStatus())
}

func TestController_StartErrorIsReported(t *testing.T) {
	p := newProject(t, false)
	h := newHarness(t, settingsWithPython("/usr/bin/python3"), func(Invocation) (Job, error) {
		return nil, os.ErrNotExist
	})
	view := newFakeView(p.target, sample)

	err := h.ctrl.Toggle(context.Background(), view)
	assert.ErrorIs(t, err, ErrExecutableNotFound)
	assert.Zero(t, h.loop.Pending())
}

func TestController_ScriptResolverError(t *testing.T) {
	p := newProject(t, false)
	h := newHarness(t, settingsWithPython("/usr/bin/python3"), nil,
		WithScriptResolver(func(string) (string, error) { return "", errors.New("read-only cache") }))
	view := newFakeView(p.target, sample)

	err := h.ctrl.Toggle(context.Background(), view)
	assert.ErrorIs(t, err, ErrProcessFailure)
	assert.Equal(t, "read-only cache", view.lastStatus())
}

func TestController_ToggleRunsAndApplies(t *testing.T) {
	p := newProject(t, true)
	h := newHarness(t, settingsWithPython("/opt/py/bin/python"), func(Invocation) (Job, error) {
		return &fakeJob{finishAfter: 3, completion: Completion{Stdout: []byte("1\n3\n")}}, nil
	})
	view := newFakeView(p.target, sample)

	require.NoError(t, h.ctrl.Toggle(context.Background(), view))
	results := h.pump(t, 1)

	require.Len(t, h.invs, 1)
	inv := h.invs[0]
	assert.Equal(t, "/opt/py/bin/python", inv.Executable)
	assert.Equal(t, []string{"/cache/missing_lines.py", p.data, filepath.Join(p.root, ConfigFileName), p.target}, inv.Args())

	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, []int{1, 3}, results[0].Lines)
	assert.Equal(t, 2, results[0].Annotated)
	assert.False(t, results[0].Superseded)

	assert.Len(t, view.regions[RegionTag], 2)
	assert.True(t, view.flags[ShowingFlag])
	assert.Equal(t, "2 missing lines annotated.", view.lastStatus())
	assert.Contains(t, view.status, ProgressMessage)

	// Second toggle clears.
	require.NoError(t, h.ctrl.Toggle(context.Background(), view))
	assert.False(t, view.flags[ShowingFlag])
	assert.NotContains(t, view.regions, RegionTag)
	assert.Len(t, h.invs, 1)
}

func TestController_FailureLeavesViewUntouched(t *testing.T) {
	p := newProject(t, false)
	h := newHarness(t, settingsWithPython("/usr/bin/python3"), func(Invocation) (Job, error) {
		return &fakeJob{completion: Completion{ExitCode: 1, Stderr: []byte("bad coverage file")}}, nil
	})
	view := newFakeView(p.target, sample)

	require.NoError(t, h.ctrl.Toggle(context.Background(), view))
	results := h.pump(t, 1)

	assert.ErrorIs(t, results[0].Err, ErrProcessFailure)
	assert.Equal(t, "bad coverage file", view.lastStatus())
	assert.NotContains(t, view.regions, RegionTag)
	assert.False(t, view.flags[ShowingFlag])
	assert.Zero(t, view.erased)
	assert.Contains(t, h.log.String(), "[ERROR] pycover: bad coverage file")
}

func TestController_RefreshKeepsHighlightsWhenShowing(t *testing.T) {
	p := newProject(t, false)
	h := newHarness(t, settingsWithPython("/usr/bin/python3"), func(Invocation) (Job, error) {
		return &fakeJob{completion: Completion{Stdout: []byte("4\n")}}, nil
	})
	view := newFakeView(p.target, sample)
	view.flags[ShowingFlag] = true
	view.regions[RegionTag] = []Span{{0, 10}}

	require.NoError(t, h.ctrl.Refresh(context.Background(), view))
	h.pump(t, 1)

	assert.Equal(t, []Span{{20, 33}}, view.regions[RegionTag])
	assert.True(t, view.flags[ShowingFlag])
}

func TestController_SupersededResultIsDiscarded(t *testing.T) {
	p := newProject(t, false)
	outputs := [][]byte{[]byte("1\n"), []byte("2\n3\n")}
	h := newHarness(t, settingsWithPython("/usr/bin/python3"), func(Invocation) (Job, error) {
		out := outputs[0]
		outputs = outputs[1:]
		return &fakeJob{completion: Completion{Stdout: out}}, nil
	})
	view := newFakeView(p.target, sample)

	require.NoError(t, h.ctrl.Refresh(context.Background(), view))
	require.NoError(t, h.ctrl.Refresh(context.Background(), view))
	results := h.pump(t, 2)

	superseded := 0
	for _, r := range results {
		if r.Superseded {
			superseded++
			assert.Zero(t, r.Annotated)
		}
	}
	assert.Equal(t, 1, superseded)
	assert.Equal(t, []Span{{10, 11}, {11, 20}}, view.regions[RegionTag])
	assert.Equal(t, "2 missing lines annotated.", view.lastStatus())
}

func TestController_CancelledRunChangesNothing(t *testing.T) {
	p := newProject(t, false)
	job := &fakeJob{finishAfter: -1}
	h := newHarness(t, settingsWithPython("/usr/bin/python3"), func(Invocation) (Job, error) {
		return job, nil
	})
	view := newFakeView(p.target, sample)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.ctrl.Refresh(ctx, view))
	cancel()
	results := h.pump(t, 1)

	assert.ErrorIs(t, results[0].Err, ErrCancelled)
	assert.True(t, job.Killed())
	assert.NotContains(t, view.regions, RegionTag)
	for _, s := range view.status {
		assert.Equal(t, ProgressMessage, s)
	}
}

func TestController_EndToEndWithProcess(t *testing.T) {
	p := newProject(t, false)
	python := writeScript(t, `[ "$1" = /cache/missing_lines.py ] || { echo "unexpected script $1" >&2; exit 2; }
[ -z "$3" ] || { echo "unexpected config $3" >&2; exit 2; }
printf '2\n4\n'
`)
	h := newHarness(t, settingsWithPython(python), nil)
	view := newFakeView(p.target, sample)

	require.NoError(t, h.ctrl.Toggle(context.Background(), view))
	results := h.pump(t, 1)

	require.NoError(t, results[0].Err)
	assert.Equal(t, []int{2, 4}, results[0].Lines)
	assert.Equal(t, []Span{{10, 11}, {20, 33}}, view.regions[RegionTag])
	assert.True(t, view.flags[ShowingFlag])
}

func TestController_EndToEndTimeout(t *testing.T) {
	p := newProject(t, false)
	python := writeScript(t, "sleep 30\n")
	s := settingsWithPython(python)
	s.Timeout = 200 * time.Millisecond
	s.PollInterval = 10 * time.Millisecond
	h := newHarness(t, s, nil)
	view := newFakeView(p.target, sample)

	require.NoError(t, h.ctrl.Toggle(context.Background(), view))
	results := h.pump(t, 1)

	assert.ErrorIs(t, results[0].Err, ErrProcessTimeout)
	assert.Contains(t, view.lastStatus(), "missing_lines.py timed out after")
	assert.False(t, view.flags[ShowingFlag])
}

func TestController_ForgetDiscardsInFlight(t *testing.T) {
	p := newProject(t, false)
	h := newHarness(t, settingsWithPython("/usr/bin/python3"), func(Invocation) (Job, error) {
		return &fakeJob{completion: Completion{Stdout: []byte("1\n")}}, nil
	})
	view := newFakeView(p.target, sample)

	require.NoError(t, h.ctrl.Refresh(context.Background(), view))
	h.ctrl.Forget(view)
	results := h.pump(t, 1)

	assert.True(t, results[0].Superseded)
	assert.NotContains(t, view.regions, RegionTag)
}

func TestController_SupersededRunIsStopped(t *testing.T) {
	p := newProject(t, false)
	slow := &fakeJob{finishAfter: -1}
	fast := &fakeJob{completion: Completion{Stdout: []byte("1\n")}}
	jobs := []*fakeJob{slow, fast}
	h := newHarness(t, settingsWithPython("/usr/bin/python3"), func(Invocation) (Job, error) {
		j := jobs[0]
		jobs = jobs[1:]
		return j, nil
	})
	view := newFakeView(p.target, sample)

	require.NoError(t, h.ctrl.Refresh(context.Background(), view))
	require.NoError(t, h.ctrl.Refresh(context.Background(), view))
	results := h.pump(t, 2)

	assert.True(t, slow.Killed())
	superseded := 0
	for _, r := range results {
		if r.Superseded {
			superseded++
		}
	}
	assert.Equal(t, 1, superseded)
	assert.Equal(t, "1 missing lines annotated.", view.lastStatus())
	assert.True(t, view.flags[ShowingFlag])
}

func TestController_ToggleOffStopsRunningJob(t *testing.T) {
	p := newProject(t, false)
	job := &fakeJob{finishAfter: -1}
	h := newHarness(t, settingsWithPython("/usr/bin/python3"), func(Invocation) (Job, error) {
		return job, nil
	})
	view := newFakeView(p.target, sample)
	view.flags[ShowingFlag] = true
	view.regions[RegionTag] = []Span{{0, 10}}

	require.NoError(t, h.ctrl.Refresh(context.Background(), view))
	deadline := time.After(10 * time.Second)
	for view.lastStatus() != ProgressMessage {
		select {
		case <-h.loop.Wake():
			h.loop.RunPending()
		case <-deadline:
			t.Fatal("no progress message")
		}
	}

	require.NoError(t, h.ctrl.Toggle(context.Background(), view))
	results := h.pump(t, 1)

	assert.True(t, job.Killed())
	assert.True(t, results[0].Superseded)
	assert.Equal(t, "", view.lastStatus())
	assert.False(t, view.flags[ShowingFlag])
	assert.NotContains(t, view.regions, RegionTag)
}

func TestController_ToggleOffAfterRunKeepsStatus(t *testing.T) {
	p := newProject(t, false)
	h := newHarness(t, settingsWithPython("/usr/bin/python3"), func(Invocation) (Job, error) {
		return &fakeJob{completion: Completion{Stdout: []byte("1\n")}}, nil
	})
	view := newFakeView(p.target, sample)

	require.NoError(t, h.ctrl.Toggle(context.Background(), view))
	h.pump(t, 1)
	require.NoError(t, h.ctrl.Toggle(context.Background(), view))

	assert.Equal(t, "1 missing lines annotated.", view.lastStatus())
	assert.False(t, view.flags[ShowingFlag])
}
