package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(level Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New(Config{Level: level, Output: &buf, Prefix: "pycover"})
	l.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return l, &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
	assert.True(t, ValidLevel("warn"))
	assert.False(t, ValidLevel("loud"))
}

func TestLogger_Format(t *testing.T) {
	l, buf := newTestLogger(LevelInfo)
	l.Info("found %d lines", 3)

	assert.Equal(t, "2024-01-02T03:04:05.000 [INFO] pycover: found 3 lines\n", buf.String())
}

func TestLogger_LevelFilter(t *testing.T) {
	l, buf := newTestLogger(LevelWarn)
	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN]")
}

func TestLogger_FieldsAreSorted(t *testing.T) {
	l, buf := newTestLogger(LevelDebug)
	l.WithComponent("poller").WithField("file", "a.py").Debug("tick")

	assert.True(t, strings.HasSuffix(buf.String(), "tick {component=poller, file=a.py}\n"), buf.String())
}

func TestLogger_ChildKeepsParentOutput(t *testing.T) {
	l, buf := newTestLogger(LevelInfo)
	child := l.WithField("k", "v")
	child.Error("boom")

	require.Contains(t, buf.String(), "[ERROR] pycover: boom {k=v}")
}

func TestNull(t *testing.T) {
	l := Null()
	l.Error("nothing")

	var nilLogger *Logger
	assert.NotPanics(t, func() { nilLogger.Info("nil receiver") })
}
