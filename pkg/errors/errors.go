// Package errors provides structured error types for minpm.
//
// Every failure the install engine can raise carries a machine-readable
// [Code]. Callers branch on the code instead of matching message text:
//
//	if errors.Is(err, errors.ErrCodeVersionNotFound) {
//	    // registry dist-tags are inconsistent
//	}
//
// # Error Codes
//
//   - NETWORK_ERROR: registry unreachable or non-success status
//   - METADATA_PARSE_ERROR: registry response is not the expected JSON shape
//   - VERSION_NOT_FOUND: resolved version absent after the latest fallback
//   - DOWNLOAD_ERROR: tarball request returned a non-success status
//   - EXTRACT_ERROR: archive could not be decoded or unpacked
//   - ENTRY_POINT_NOT_FOUND: package declares neither bin nor main
//   - CHILD_PROCESS_ERROR: spawned process failed to start or exited nonzero
//   - INVALID_*: input validation failures
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for the install engine and its collaborators.
const (
	// Input validation errors
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeInvalidPackage  Code = "INVALID_PACKAGE"
	ErrCodeInvalidManifest Code = "INVALID_MANIFEST"
	ErrCodeInvalidPath     Code = "INVALID_PATH"

	// Registry and transfer errors
	ErrCodeNetwork         Code = "NETWORK_ERROR"
	ErrCodeMetadataParse   Code = "METADATA_PARSE_ERROR"
	ErrCodeVersionNotFound Code = "VERSION_NOT_FOUND"
	ErrCodeDownload        Code = "DOWNLOAD_ERROR"
	ErrCodeExtract         Code = "EXTRACT_ERROR"

	// Execution errors
	ErrCodeEntryPointNotFound Code = "ENTRY_POINT_NOT_FOUND"
	ErrCodeChildProcess       Code = "CHILD_PROCESS_ERROR"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether any error in err's chain carries the given code.
// A [ChildProcessError] anywhere in the chain matches ErrCodeChildProcess.
func Is(err error, code Code) bool {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			if e.Code == code {
				return true
			}
		case *ChildProcessError:
			if code == ErrCodeChildProcess {
				return true
			}
		}
		err = errors.Unwrap(err)
	}
	return false
}

// GetCode extracts the outermost error code from an error, if available.
// Returns empty string if no coded error is in the chain.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var cp *ChildProcessError
	if errors.As(err, &cp) {
		return ErrCodeChildProcess
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message followed by the cause's own user
// message, without code prefixes. For other errors, returns the error
// string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return e.Message + ": " + UserMessage(e.Cause)
		}
		return e.Message
	}
	return err.Error()
}

// ChildProcessError reports a spawned process that could not be started
// or that exited with a nonzero status.
type ChildProcessError struct {
	Command  string // Command line that was run
	ExitCode int    // Exit status, or -1 if the process never started
	Err      error  // Underlying exec error
}

// Error implements the error interface.
func (e *ChildProcessError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("%s: %s failed to start: %v", ErrCodeChildProcess, e.Command, e.Err)
	}
	return fmt.Sprintf("%s: %s exited with code %d", ErrCodeChildProcess, e.Command, e.ExitCode)
}

// Unwrap returns the underlying exec error.
func (e *ChildProcessError) Unwrap() error { return e.Err }

// NewChildProcessError builds a ChildProcessError for name and args.
func NewChildProcessError(name string, args []string, exitCode int, err error) *ChildProcessError {
	return &ChildProcessError{
		Command:  strings.TrimSpace(name + " " + strings.Join(args, " ")),
		ExitCode: exitCode,
		Err:      err,
	}
}

// ExitCode returns the exit status carried by a ChildProcessError in err's
// chain, or 1 when err is non-nil without one. A nil err yields 0.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var cp *ChildProcessError
	if errors.As(err, &cp) && cp.ExitCode > 0 {
		return cp.ExitCode
	}
	return 1
}
