package coverage

import (
	"errors"
	"fmt"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/dshills/pycover/internal/integration/process"
)

// Run is one invocation of the coverage command for one file.
type Run struct {
	// FilePath is the Python source being annotated.
	FilePath string
	// DataPath is the .coverage database.
	DataPath string
	// ConfigPath is the .coveragerc, or "".
	ConfigPath string
}

// Invocation is the command line for the missing-lines helper.
type Invocation struct {
	Executable string
	Script     string
	Run        Run
}

// Args returns the positional arguments passed to Executable.
func (inv Invocation) Args() []string {
	return []string{inv.Script, inv.Run.DataPath, inv.Run.ConfigPath, inv.Run.FilePath}
}

// Command builds the exec.Cmd for the invocation.
func (inv Invocation) Command() *exec.Cmd {
	return exec.Command(inv.Executable, inv.Args()...)
}

// Completion is what a finished job produced.
type Completion struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Job is a running external computation, as seen by the Poller.
type Job interface {
	// Started returns when the job began.
	Started() time.Time
	// Finished reports, without blocking, whether the job has exited.
	Finished() bool
	// Collect blocks until the job exits and returns its output. The error
	// is set when the job could not be waited on, not for a non-zero exit.
	Collect() (Completion, error)
	// Kill forcibly terminates the job.
	Kill() error
}

// JobStatus is the lifecycle state of a ProcessJob. It only moves forward.
type JobStatus int32

const (
	// JobRunning means the process has not exited.
	JobRunning JobStatus = iota
	// JobCompleted means the process exited on its own.
	JobCompleted
	// JobTimedOut means the process was killed for running too long.
	JobTimedOut
	// JobKilled means the process was killed for another reason.
	JobKilled
)

// String returns the status name.
func (s JobStatus) String() string {
	switch s {
	case JobRunning:
		return "running"
	case JobCompleted:
		return "completed"
	case JobTimedOut:
		return "timed out"
	case JobKilled:
		return "killed"
	default:
		return fmt.Sprintf("JobStatus(%d)", int32(s))
	}
}

// ProcessJob runs an Invocation as a supervised child process.
type ProcessJob struct {
	inv    Invocation
	proc   *process.Process
	status atomic.Int32
}

// StartJob starts inv under sup. It returns as soon as the process has
// been created.
func StartJob(sup *process.Supervisor, inv Invocation) (*ProcessJob, error) {
	proc, err := sup.Start("missing_lines", inv.Command())
	if err != nil {
		return nil, fmt.Errorf("starting %s: %w", inv.Executable, err)
	}
	return &ProcessJob{inv: inv, proc: proc}, nil
}

// Invocation returns what the job is running.
func (j *ProcessJob) Invocation() Invocation {
	return j.inv
}

// ID returns the supervisor's identifier for the process.
func (j *ProcessJob) ID() string {
	return j.proc.ID
}

// Started returns when the process was started.
func (j *ProcessJob) Started() time.Time {
	return j.proc.Started
}

// Finished reports whether the process has exited.
func (j *ProcessJob) Finished() bool {
	if j.proc.HasExited() {
		j.advance(JobCompleted)
		return true
	}
	return false
}

// Collect waits for the process and returns its exit code and output.
func (j *ProcessJob) Collect() (Completion, error) {
	code, stdout, stderr := j.proc.Wait()
	j.advance(JobCompleted)
	c := Completion{ExitCode: code, Stdout: stdout, Stderr: stderr}

	var exitErr *exec.ExitError
	if err := j.proc.ExitError(); err != nil && !errors.As(err, &exitErr) {
		return c, fmt.Errorf("waiting for %s: %w", j.inv.Executable, err)
	}
	return c, nil
}

// Kill terminates the process and waits for it to be reaped.
func (j *ProcessJob) Kill() error {
	j.advance(JobKilled)
	err := j.proc.Kill()
	<-j.proc.Done()
	return err
}

// Close kills the process if it is still running. It is safe to call on
// every exit path.
func (j *ProcessJob) Close() error {
	if j.proc.HasExited() {
		return nil
	}
	return j.Kill()
}

// TimeOut kills the process and records that it ran out of time.
func (j *ProcessJob) TimeOut() error {
	j.advance(JobTimedOut)
	return j.Kill()
}

// Status returns the job's current status.
func (j *ProcessJob) Status() JobStatus {
	return JobStatus(j.status.Load())
}

// advance moves the status forward to s, never backward. Only the first
// terminal status sticks.
func (j *ProcessJob) advance(s JobStatus) {
	j.status.CompareAndSwap(int32(JobRunning), int32(s))
}
