package coverage

import (
	"errors"
	"fmt"
	"time"

	"github.com/dshills/pycover/internal/config"
	"github.com/dshills/pycover/internal/locate"
)

// Kind classifies a run failure.
type Kind int

const (
	// KindConfigUnavailable means settings failed to load.
	KindConfigUnavailable Kind = iota + 1
	// KindCoverageDataNotFound means no .coverage file was found.
	KindCoverageDataNotFound
	// KindExecutableNotFound means no interpreter could be resolved.
	KindExecutableNotFound
	// KindProcessTimeout means the job ran past its budget and was killed.
	KindProcessTimeout
	// KindProcessFailure means the job exited non-zero.
	KindProcessFailure
	// KindMalformedOutput means the job's stdout was not a list of line numbers.
	KindMalformedOutput
	// KindCancelled means the caller gave up on the run.
	KindCancelled
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindConfigUnavailable:
		return "ConfigUnavailable"
	case KindCoverageDataNotFound:
		return "CoverageDataNotFound"
	case KindExecutableNotFound:
		return "ExecutableNotFound"
	case KindProcessTimeout:
		return "ProcessTimeout"
	case KindProcessFailure:
		return "ProcessFailure"
	case KindMalformedOutput:
		return "MalformedOutput"
	case KindCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Sentinel errors, one per Kind. Use errors.Is against an *Error.
var (
	ErrConfigUnavailable    = config.ErrUnavailable
	ErrCoverageDataNotFound = errors.New("coverage data not found")
	ErrExecutableNotFound   = locate.ErrExecutableNotFound
	ErrProcessTimeout       = errors.New("process timed out")
	ErrProcessFailure       = errors.New("process failed")
	ErrMalformedOutput      = errors.New("malformed output")
	ErrCancelled            = errors.New("run cancelled")
)

var sentinels = map[Kind]error{
	KindConfigUnavailable:    ErrConfigUnavailable,
	KindCoverageDataNotFound: ErrCoverageDataNotFound,
	KindExecutableNotFound:   ErrExecutableNotFound,
	KindProcessTimeout:       ErrProcessTimeout,
	KindProcessFailure:       ErrProcessFailure,
	KindMalformedOutput:      ErrMalformedOutput,
	KindCancelled:            ErrCancelled,
}

// Error is a terminal failure of one run. Its Error text is what the user
// sees in the status bar.
type Error struct {
	Kind Kind
	// Path is the file the run was for.
	Path string
	// Elapsed is set for timeouts and cancellations.
	Elapsed time.Duration
	// Message carries tool output: stderr for ProcessFailure, the offending
	// line for MalformedOutput.
	Message string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case KindConfigUnavailable:
		return fmt.Sprintf("Error loading settings: %v", e.Err)
	case KindCoverageDataNotFound:
		return fmt.Sprintf("Could not find .coverage file for %s", e.Path)
	case KindExecutableNotFound:
		return "Could not find a python executable; set \"python\" in settings"
	case KindProcessTimeout:
		return fmt.Sprintf("missing_lines.py timed out after %f s", e.Elapsed.Seconds())
	case KindProcessFailure:
		return e.Message
	case KindMalformedOutput:
		return fmt.Sprintf("missing_lines.py produced malformed output %q", e.Message)
	case KindCancelled:
		return fmt.Sprintf("missing_lines.py cancelled after %f s", e.Elapsed.Seconds())
	default:
		if e.Err != nil {
			return e.Err.Error()
		}
		return e.Kind.String()
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// KindOf returns the Kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
