package lockmgr

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Error Codes
// --------------------------------------------------------------------------

type Code uint64

const (
	CodeTimeout           Code = iota + 1 // 1: no lock obtained within the timeout
	CodeConflict                          // 2: held by a different owner and no retry was requested
	CodePotentialDeadlock                 // 3: waiting would close a cycle in the wait-for graph
	CodeIOFailure                         // 4: the lock file could not be created or locked
	CodeInvalidArgument                   // 5: empty path or owner
)

func (c Code) String() string {
	switch c {
	case CodeTimeout:
		return "LockTimeout"
	case CodeConflict:
		return "LockConflict"
	case CodePotentialDeadlock:
		return "PotentialDeadlock"
	case CodeIOFailure:
		return "IOFailure"
	case CodeInvalidArgument:
		return "InvalidArgument"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is returned by all lock manager operations.
// Use errors.Is with the sentinel errors below to test for a specific kind.
type Error struct {
	Code   Code     // The kind of failure
	Path   string   // The path that was requested
	Owner  string   // The owner that requested the path
	Holder string   // The owner holding the path at the time of failure (empty if unknown, e.g. another process)
	Cycle  []string // Owners forming the detected wait-for cycle (CodePotentialDeadlock only)
	Err    error    // Underlying cause (CodeIOFailure only)
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s: path=%q owner=%q", e.Code, e.Path, e.Owner))
	if e.Holder != "" {
		sb.WriteString(fmt.Sprintf(" holder=%q", e.Holder))
	}
	if len(e.Cycle) > 0 {
		sb.WriteString(fmt.Sprintf(" cycle=[%s]", strings.Join(e.Cycle, " -> ")))
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Is reports whether target is a lock manager error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Sentinel errors, match them with errors.Is.
var (
	ErrLockTimeout       = &Error{Code: CodeTimeout}
	ErrLockConflict      = &Error{Code: CodeConflict}
	ErrPotentialDeadlock = &Error{Code: CodePotentialDeadlock}
	ErrIOFailure         = &Error{Code: CodeIOFailure}
	ErrInvalidArgument   = &Error{Code: CodeInvalidArgument}
)
