// Package errs implements the finite error taxonomy of spec.md §7: every
// handler in this repository returns one of these codes (or nil), never a
// bare error, so a tick's top loop can log and continue without leaking a
// failure from one worker's record into another's.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is one of the exhaustive taxonomy entries from spec.md §7.
type Code int

const (
	// BadOrigin: sender not authorized for this topic.
	BadOrigin Code = iota + 1
	// BadSenderSignature: rotation/challenge signature invalid.
	BadSenderSignature
	// MasterKeyLeakage: signed rotation accepted but sender no longer a
	// gatekeeper on-chain.
	MasterKeyLeakage
	// DuplicatedClusterDeploy: cluster with given id already exists.
	DuplicatedClusterDeploy
	// CodeNotFound: contract execution-path error, bubbled up.
	CodeNotFound
	// BadContractId: contract execution-path error, bubbled up.
	BadContractId
	// BadCommand: contract execution-path error, bubbled up.
	BadCommand
	// UnknownError is the catch-all for anything not otherwise classified.
	UnknownError
)

func (c Code) String() string {
	switch c {
	case BadOrigin:
		return "BadOrigin"
	case BadSenderSignature:
		return "BadSenderSignature"
	case MasterKeyLeakage:
		return "MasterKeyLeakage"
	case DuplicatedClusterDeploy:
		return "DuplicatedClusterDeploy"
	case CodeNotFound:
		return "CodeNotFound"
	case BadContractId:
		return "BadContractId"
	case BadCommand:
		return "BadCommand"
	default:
		return "UnknownError"
	}
}

// Error is a taxonomized, causal error. It wraps pkg/errors so the
// underlying stack is preserved across the tick's handler boundaries.
type Error struct {
	Code  Code
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a taxonomized error with no underlying cause.
func New(code Code, msg string) *Error {
	return &Error{Code: code, cause: errors.New(msg)}
}

// Wrap attaches a taxonomy code to an existing error, preserving its stack.
func Wrap(code Code, err error, msg string) *Error {
	return &Error{Code: code, cause: errors.Wrap(err, msg)}
}

// Other builds an UnknownError/Other(string) entry.
func Other(msg string, args ...interface{}) *Error {
	return &Error{Code: UnknownError, cause: errors.Errorf(msg, args...)}
}

// Is reports whether err is a taxonomized *Error carrying code.
func Is(err error, code Code) bool {
	te, ok := err.(*Error)
	return ok && te.Code == code
}

// AbortProcess is called by Fatal. It is a package variable rather than a
// hardcoded os.Exit so tests can substitute a recoverable stand-in for the
// process-abort paths spec.md §7 reserves for WSM/GK divergence, forged
// first-gatekeeper registration, and retirement.
var AbortProcess = func(reason string) {
	panic(reason)
}

// Fatal reports an unrecoverable condition and aborts the process
// (spec.md §7 "Fatal"). It never returns under the default AbortProcess.
func Fatal(reason string, args ...interface{}) {
	msg := fmt.Sprintf(reason, args...)
	AbortProcess(msg)
}
