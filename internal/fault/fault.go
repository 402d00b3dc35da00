// Package fault defines the engine-wide error taxonomy. Every failure is
// either recorded in the journal/event log or surfaced as a fatal abort;
// nothing is silently swallowed. Per-item codes are non-fatal by policy
// (the run continues), pre-flight codes abort before any mutation exists.
package fault

import (
	"errors"
	"fmt"
)

// Code categorizes engine errors.
type Code string

const (
	// CodeScan: the scanning capability failed.
	CodeScan Code = "SCAN_ERROR"
	// CodeRule: the rule-matching capability failed.
	CodeRule Code = "RULE_ERROR"
	// CodeClusteringUnavailable: no clustering backend could be selected.
	// Degrades to the fallback grouping, never fatal.
	CodeClusteringUnavailable Code = "CLUSTERING_UNAVAILABLE"
	// CodeConflictUnresolvable: the resolver could not clear a collision.
	// Fatal; should not occur given deterministic suffixing - raising it
	// indicates a resolver bug.
	CodeConflictUnresolvable Code = "CONFLICT_UNRESOLVABLE"
	// CodeChecksumMismatch: a cross-device copy failed verification.
	// Per-item, non-fatal; aborts only that action.
	CodeChecksumMismatch Code = "CHECKSUM_MISMATCH"
	// CodeVolumeIO: a filesystem operation failed. Per-item, non-fatal
	// unless it recurs beyond the retry budget.
	CodeVolumeIO Code = "VOLUME_IO_ERROR"
	// CodeGuardViolation: a pre-flight guard failed. Fatal, pre-flight
	// only - blocks checkpoint creation entirely.
	CodeGuardViolation Code = "GUARD_VIOLATION"
	// CodeThresholdExceeded: an action-count or move-size threshold was
	// exceeded. Fatal, pre-flight only.
	CodeThresholdExceeded Code = "THRESHOLD_EXCEEDED"
	// CodeApplyConflict: a concurrent apply targeted a plan already being
	// applied or already checkpointed as completed.
	CodeApplyConflict Code = "APPLY_CONFLICT"
)

// Error is a structured engine error with a taxonomy code.
type Error struct {
	Code    Code
	Message string
	// ItemID identifies the affected plan item (per-item errors).
	ItemID string
	// Path identifies the affected filesystem path, when one applies.
	Path string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Path != "" {
		msg += fmt.Sprintf(" (path=%s)", e.Path)
	}
	if e.ItemID != "" {
		msg += fmt.Sprintf(" (item=%s)", e.ItemID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error wrapping an underlying cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Is reports whether err carries the given code, unwrapping as needed.
func Is(err error, code Code) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or "" for unclassified errors.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// Fatal reports whether err must abort the run rather than be recorded and
// skipped. Guard and threshold violations are fatal pre-flight; an
// unresolvable conflict is fatal anywhere; apply conflicts are fatal to the
// attempted run.
func Fatal(err error) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		// Unclassified errors are treated as fatal: an unknown failure mode
		// must halt rather than be recorded as a routine item failure.
		return true
	}
	switch fe.Code {
	case CodeGuardViolation, CodeThresholdExceeded, CodeConflictUnresolvable, CodeApplyConflict:
		return true
	}
	return false
}
