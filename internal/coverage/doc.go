// Package coverage finds and highlights the lines of a Python file that a
// previous coverage run did not execute.
//
// A run locates the .coverage database (and optional .coveragerc) above the
// file, resolves a Python interpreter, and starts missing_lines.py as a
// child process:
//
//	python missing_lines.py <coverage_db> <coveragerc_or_empty> <file>
//
// A Poller watches the child on its own goroutine, posting a progress
// message to the UI Scheduler on every tick, and kills it once the timeout
// has passed. The single Outcome is posted back to the UI goroutine, where
// the Applier draws one full-line region per missing line.
//
// Highlighting is all or nothing: a run that fails in any way leaves the
// view as it was and reports one status message.
package coverage
