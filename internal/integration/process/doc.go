// Package process runs child processes with captured output.
//
// A Process wraps an exec.Cmd whose stdout and stderr are copied into memory
// while it runs. Callers can check for completion without blocking
// (HasExited), block for the exit code and output (Wait), or kill it.
//
// The Supervisor starts processes, tracks the live ones, and kills them on
// shutdown:
//
//	sup := process.NewSupervisor()
//	defer sup.Shutdown(2 * time.Second)
//
//	proc, err := sup.Start("missing-lines", exec.Command("python3", "script.py"))
//	if err != nil {
//	    return err
//	}
//	code, stdout, stderr := proc.Wait()
//
// Both Supervisor and Process are safe for concurrent use.
package process
