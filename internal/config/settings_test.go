package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/pycover/internal/logging"
	"github.com/dshills/pycover/internal/watch"
)

type mapLoader map[string]any

func (m mapLoader) Load() (map[string]any, error) { return m, nil }

func envLoader(env map[string]string) *EnvLoader {
	return &EnvLoader{prefix: "PYCOVER_", lookup: func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}}
}

func writeSettings(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	d := Defaults()
	assert.Equal(t, 100*time.Millisecond, d.PollInterval)
	assert.Equal(t, 10*time.Second, d.Timeout)
	assert.Empty(t, d.Python)
	assert.False(t, d.OnLoad)
	assert.False(t, d.HighlightUncoveredLines)
	assert.NoError(t, d.Validate())
}

func TestFileLoader_TOML(t *testing.T) {
	path := writeSettings(t, "pycover.toml", `
python = "/usr/bin/python3"
onload = true
highlight_uncovered_lines = true
timeout = "3s"
poll_interval = 0.05
`)
	s, err := LoadFrom(NewFileLoader(path))
	require.NoError(t, err)

	assert.Equal(t, "/usr/bin/python3", s.Python)
	assert.True(t, s.OnLoad)
	assert.True(t, s.HighlightUncoveredLines)
	assert.Equal(t, 3*time.Second, s.Timeout)
	assert.Equal(t, 50*time.Millisecond, s.PollInterval)
}

func TestFileLoader_YAML(t *testing.T) {
	path := writeSettings(t, "pycover.yaml", `
python: /opt/py/bin/python
onload: false
highlight_uncovered_lines: true
timeout: 20
`)
	s, err := LoadFrom(NewFileLoader(path))
	require.NoError(t, err)

	assert.Equal(t, "/opt/py/bin/python", s.Python)
	assert.True(t, s.HighlightUncoveredLines)
	assert.Equal(t, 20*time.Second, s.Timeout)
}

func TestFileLoader_MissingFileIsEmpty(t *testing.T) {
	values, err := NewFileLoader(filepath.Join(t.TempDir(), "nope.toml")).Load()
	require.NoError(t, err)
	assert.Nil(t, values)
}

func TestFileLoader_ParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"toml", "pycover.toml", "python = \nonload = true"},
		{"yaml", "pycover.yml", "python: [unclosed\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeSettings(t, tt.file, tt.content)
			s, err := LoadFrom(NewFileLoader(path))

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnavailable)
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, path, pe.Path)
			assert.Equal(t, Defaults(), s)
		})
	}
}

func TestEnvLoader_OverridesFile(t *testing.T) {
	path := writeSettings(t, "pycover.toml", `python = "/from/file"`)
	env := envLoader(map[string]string{
		"PYCOVER_PYTHON":                    "/from/env",
		"PYCOVER_HIGHLIGHT_UNCOVERED_LINES": "true",
		"PYCOVER_TIMEOUT":                   "250ms",
	})

	s, err := LoadFrom(NewFileLoader(path), env)
	require.NoError(t, err)
	assert.Equal(t, "/from/env", s.Python)
	assert.True(t, s.HighlightUncoveredLines)
	assert.Equal(t, 250*time.Millisecond, s.Timeout)
}

func TestFromMap_TypeErrors(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
		key    string
	}{
		{"python not string", map[string]any{KeyPython: 3}, KeyPython},
		{"onload not bool", map[string]any{KeyOnLoad: "sometimes"}, KeyOnLoad},
		{"timeout not duration", map[string]any{KeyTimeout: "soon"}, KeyTimeout},
		{"zero timeout", map[string]any{KeyTimeout: "0s"}, KeyTimeout},
		{"interval over timeout", map[string]any{KeyTimeout: "1s", KeyPollInterval: "2s"}, KeyPollInterval},
		{"bad log level", map[string]any{KeyLogLevel: "loud"}, KeyLogLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(mapLoader(tt.values))
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.key, ve.Key)
		})
	}
}

func TestFromMap_IgnoresUnknownKeys(t *testing.T) {
	s, err := FromMap(map[string]any{"colour": "blue", KeyOnLoad: true})
	require.NoError(t, err)
	assert.True(t, s.OnLoad)
}

func TestStore_OpenFailureFallsBackAndLogsOnce(t *testing.T) {
	path := writeSettings(t, "pycover.toml", "onload = = true")
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: logging.LevelInfo, Output: &buf})

	store, err := Open(path, WithLogger(logger))
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, Defaults(), store.Settings())
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("[ERROR]")))
}

func TestStore_OverrideAppliesOnEveryChange(t *testing.T) {
	store := NewStore(Defaults(), WithOverride(func(s *Settings) { s.Python = "/flag/python" }))
	assert.Equal(t, "/flag/python", store.Settings().Python)

	var seen []Settings
	store.Subscribe(func(s Settings) { seen = append(seen, s) })
	store.Set(Settings{Timeout: time.Second, PollInterval: time.Millisecond, LogLevel: "info", Python: "/other"})

	require.Len(t, seen, 1)
	assert.Equal(t, "/flag/python", seen[0].Python)
	assert.Equal(t, time.Second, store.Settings().Timeout)
}

func TestStore_ReloadKeepsPreviousOnError(t *testing.T) {
	path := writeSettings(t, "pycover.toml", "onload = true")
	store, err := Open(path)
	require.NoError(t, err)
	require.True(t, store.Settings().OnLoad)

	require.NoError(t, os.WriteFile(path, []byte("onload = = "), 0o644))
	assert.Error(t, store.Reload())
	assert.True(t, store.Settings().OnLoad)

	require.NoError(t, os.WriteFile(path, []byte("onload = false"), 0o644))
	require.NoError(t, store.Reload())
	assert.False(t, store.Settings().OnLoad)
}

func TestStore_WatchReloads(t *testing.T) {
	path := writeSettings(t, "pycover.toml", "highlight_uncovered_lines = false")
	store, err := Open(path)
	require.NoError(t, err)

	w, err := watch.New(watch.WithDebounce(10 * time.Millisecond))
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, store.Watch(w))

	changed := make(chan Settings, 4)
	store.Subscribe(func(s Settings) { changed <- s })

	require.NoError(t, os.WriteFile(path, []byte("highlight_uncovered_lines = true"), 0o644))

	select {
	case s := <-changed:
		assert.True(t, s.HighlightUncoveredLines)
	case <-time.After(5 * time.Second):
		t.Fatal("settings were not reloaded")
	}
}
