package process

import (
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, p *Process) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}
}

func TestNewProcess(t *testing.T) {
	proc := NewProcess("test-id", "test-process", exec.Command("echo", "hello"))

	assert.Equal(t, "test-id", proc.ID)
	assert.Equal(t, "test-process", proc.Name)
	assert.Equal(t, StateCreated, proc.State())
	assert.Equal(t, -1, proc.ExitCode())
	assert.Equal(t, -1, proc.PID())
	assert.False(t, proc.IsRunning())
	assert.False(t, proc.HasExited())
}

func TestProcess_StartAndWait(t *testing.T) {
	proc := NewProcess("id", "echo", exec.Command("sh", "-c", "echo out; echo err >&2"))
	require.NoError(t, proc.start())
	assert.Positive(t, proc.PID())
	assert.False(t, proc.Started.IsZero())

	code, stdout, stderr := proc.Wait()
	assert.Equal(t, 0, code)
	assert.Equal(t, "out\n", string(stdout))
	assert.Equal(t, "err\n", string(stderr))
	assert.Equal(t, StateExited, proc.State())
	assert.True(t, proc.HasExited())
}

func TestProcess_StartTwice(t *testing.T) {
	proc := NewProcess("id", "echo", exec.Command("echo", "hello"))
	require.NoError(t, proc.start())
	assert.ErrorIs(t, proc.start(), ErrProcessAlreadyStarted)
	waitDone(t, proc)
}

func TestProcess_StartMissingBinary(t *testing.T) {
	proc := NewProcess("id", "missing", exec.Command("/no/such/binary/anywhere"))
	assert.Error(t, proc.start())
	assert.Equal(t, StateCreated, proc.State())
}

func TestProcess_ExitCode(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		wantCode int
	}{
		{"success", "exit 0", 0},
		{"failure", "exit 1", 1},
		{"exit 42", "exit 42", 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := NewProcess("id", tt.name, exec.Command("sh", "-c", tt.script))
			require.NoError(t, proc.start())
			code, _, _ := proc.Wait()
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestProcess_LargeOutputDoesNotBlock(t *testing.T) {
	// Well past any OS pipe buffer on both streams.
	script := "i=0; while [ $i -lt 20000 ]; do echo $i; echo $i >&2; i=$((i+1)); done"
	proc := NewProcess("id", "chatty", exec.Command("sh", "-c", script))
	require.NoError(t, proc.start())
	waitDone(t, proc)

	code, stdout, stderr := proc.Wait()
	assert.Equal(t, 0, code)
	assert.Len(t, strings.Split(strings.TrimSpace(string(stdout)), "\n"), 20000)
	assert.Len(t, strings.Split(strings.TrimSpace(string(stderr)), "\n"), 20000)
}

func TestProcess_Kill(t *testing.T) {
	proc := NewProcess("id", "sleep", exec.Command("sleep", "10"))
	require.NoError(t, proc.start())
	assert.False(t, proc.HasExited())

	require.NoError(t, proc.Kill())
	waitDone(t, proc)
	assert.Equal(t, StateKilled, proc.State())

	// Killing an exited process is a no-op.
	assert.NoError(t, proc.Kill())
}

func TestProcess_KillBeforeStart(t *testing.T) {
	proc := NewProcess("id", "sleep", exec.Command("sleep", "10"))
	assert.ErrorIs(t, proc.Kill(), ErrProcessNotStarted)
	assert.ErrorIs(t, proc.Terminate(), ErrProcessNotStarted)
}

func TestProcess_Terminate(t *testing.T) {
	proc := NewProcess("id", "sleep", exec.Command("sleep", "10"))
	require.NoError(t, proc.start())
	require.NoError(t, proc.Terminate())
	waitDone(t, proc)
	assert.Equal(t, StateKilled, proc.State())
}

func TestProcess_Runtime(t *testing.T) {
	proc := NewProcess("id", "sleep", exec.Command("sleep", "0.05"))
	assert.Zero(t, proc.Runtime())
	require.NoError(t, proc.start())
	waitDone(t, proc)
	assert.GreaterOrEqual(t, proc.Runtime(), 50*time.Millisecond)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "exited", StateExited.String())
	assert.Equal(t, "killed", StateKilled.String())
	assert.Equal(t, "unknown(99)", State(99).String())
}
