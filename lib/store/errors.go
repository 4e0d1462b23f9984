package store

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode),
// the affected path and an error message.
type Error struct {
	Code RetCode // The return code
	Path string  // The path the operation was called with (may be empty)
	Msg  string  // The error message
	Err  error   // The underlying cause (may be nil)
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("StoreError (code %s)", e.Code))
	if e.Path != "" {
		sb.WriteString(fmt.Sprintf(" %q", e.Path))
	}
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Is reports whether target is a store error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new StoreError with the given code and message.
func NewError(code RetCode, path, msg string) *Error {
	return &Error{
		Code: code,
		Path: path,
		Msg:  msg,
	}
}

// Sentinel errors for errors.Is matching
var (
	ErrInvalidPath = &Error{Code: RetCInvalidPath}
	ErrIOFailure   = &Error{Code: RetCIOFailure}
	ErrNotFound    = &Error{Code: RetCNotFound}
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess       RetCode = iota // 0: Command executed successfully.
	RetCInternalError                // 1: Command failed due to an internal error.
	RetCInvalidPath                  // 2: The path is malformed or escapes the base directory.
	RetCIOFailure                    // 3: Reading or writing the filesystem failed.
	RetCNotFound                     // 4: The document or snapshot does not exist.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCInvalidPath:
		return "InvalidPath"
	case RetCIOFailure:
		return "IOFailure"
	case RetCNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}
