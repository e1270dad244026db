package process

import (
	"os/exec"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForCount(t *testing.T, s *Supervisor, want int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Count() == want }, 5*time.Second, 5*time.Millisecond)
}

func TestSupervisor_Start(t *testing.T) {
	s := NewSupervisor()
	proc, err := s.Start("echo", exec.Command("echo", "hi"))
	require.NoError(t, err)
	assert.NotEmpty(t, proc.ID)

	code, stdout, _ := proc.Wait()
	assert.Equal(t, 0, code)
	assert.Equal(t, "hi\n", string(stdout))
	waitForCount(t, s, 0)
}

func TestSupervisor_StartWithID_Duplicate(t *testing.T) {
	s := NewSupervisor()
	defer s.Shutdown(time.Second)

	_, err := s.StartWithID("fixed", "sleep", exec.Command("sleep", "10"))
	require.NoError(t, err)
	_, err = s.StartWithID("fixed", "sleep", exec.Command("sleep", "10"))
	assert.ErrorContains(t, err, "already exists")
}

func TestSupervisor_WithMaxProcesses(t *testing.T) {
	s := NewSupervisor(WithMaxProcesses(1))
	defer s.Shutdown(time.Second)

	_, err := s.Start("one", exec.Command("sleep", "10"))
	require.NoError(t, err)
	_, err = s.Start("two", exec.Command("sleep", "10"))
	assert.ErrorContains(t, err, "process limit reached")
}

func TestSupervisor_ExitCallback(t *testing.T) {
	var called atomic.Bool
	s := NewSupervisor(WithProcessExitCallback(func(p *Process) {
		called.Store(true)
		panic("callbacks may panic")
	}))

	_, err := s.Start("true", exec.Command("true"))
	require.NoError(t, err)
	waitForCount(t, s, 0)
	assert.True(t, called.Load())
}

func TestSupervisor_GetAndKill(t *testing.T) {
	s := NewSupervisor()
	proc, err := s.Start("sleep", exec.Command("sleep", "10"))
	require.NoError(t, err)

	assert.Same(t, proc, s.Get(proc.ID))
	assert.Len(t, s.List(), 1)

	require.NoError(t, s.Kill(proc.ID))
	waitForCount(t, s, 0)
	assert.Nil(t, s.Get(proc.ID))
	assert.ErrorIs(t, s.Kill(proc.ID), ErrProcessNotFound)
}

func TestSupervisor_KillAll(t *testing.T) {
	s := NewSupervisor()
	for i := 0; i < 3; i++ {
		_, err := s.Start("sleep", exec.Command("sleep", "10"))
		require.NoError(t, err)
	}

	require.NoError(t, s.KillAll())
	waitForCount(t, s, 0)
}

func TestSupervisor_Shutdown(t *testing.T) {
	s := NewSupervisor()
	_, err := s.Start("sleep", exec.Command("sleep", "10"))
	require.NoError(t, err)

	require.NoError(t, s.Shutdown(time.Second))
	assert.True(t, s.IsShuttingDown())

	_, err = s.Start("late", exec.Command("true"))
	assert.ErrorIs(t, err, ErrSupervisorShutdown)

	// Idempotent.
	assert.NoError(t, s.Shutdown(time.Second))
}

func TestSupervisor_ShutdownKillsStubbornProcess(t *testing.T) {
	s := NewSupervisor()
	proc, err := s.Start("stubborn", exec.Command("sh", "-c", "trap '' TERM; sleep 10"))
	require.NoError(t, err)
	// Give the shell a moment to install the trap.
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	require.NoError(t, s.Shutdown(100*time.Millisecond))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, proc.HasExited())
}

func TestSupervisor_Concurrent(t *testing.T) {
	s := NewSupervisor()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			proc, err := s.Start("true", exec.Command("true"))
			if assert.NoError(t, err) {
				<-proc.Done()
			}
		}()
	}
	wg.Wait()
	waitForCount(t, s, 0)
}
