// Package syncerr defines the error taxonomy shared across the sync core:
// malformed input, data inconsistency, transport, local-apply and
// remote-apply failures, each carrying enough context to explain why a
// table's last_sync_hlc was left unadvanced.
package syncerr

import (
	"fmt"
	"time"
)

// Code classifies a SyncError for callers that need to branch on kind
// rather than match on message text.
type Code string

const (
	CodeMalformedInput    Code = "MALFORMED_INPUT"
	CodeDataInconsistency Code = "DATA_INCONSISTENCY"
	CodeTransport         Code = "TRANSPORT"
	CodeLocalApply        Code = "LOCAL_APPLY"
	CodeRemoteApply       Code = "REMOTE_APPLY"
	CodeFKUnresolved      Code = "FK_UNRESOLVED"
	CodeCorruption        Code = "CORRUPTION"
)

// SyncError is the structured error type returned by every public
// operation in the sync core.
type SyncError struct {
	Code      Code
	Message   string
	Table     string
	Timestamp time.Time
	Retryable bool
	Cause     error
}

func (e *SyncError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("sync error %s: %s (table: %s)", e.Code, e.Message, e.Table)
	}
	return fmt.Sprintf("sync error %s: %s", e.Code, e.Message)
}

func (e *SyncError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the caller may reasonably retry the
// operation that produced this error.
func (e *SyncError) IsRetryable() bool {
	return e.Retryable
}

func new(code Code, table, message string, retryable bool, cause error) *SyncError {
	return &SyncError{
		Code:      code,
		Message:   message,
		Table:     table,
		Timestamp: time.Now(),
		Retryable: retryable,
		Cause:     cause,
	}
}

// NewMalformedInput wraps an invalid-argument failure (bad HLC string,
// non-positive sub-chunk size, inverted chunk bounds). Fatal to the
// current call.
func NewMalformedInput(table, message string, cause error) *SyncError {
	return new(CodeMalformedInput, table, message, false, cause)
}

// NewDataInconsistency wraps a breakdown-verification or missing-HLC
// failure. Fatal to the current sync; signals concurrent modification or
// corruption.
func NewDataInconsistency(table, message string, cause error) *SyncError {
	return new(CodeDataInconsistency, table, message, false, cause)
}

// NewTransport wraps a failure reaching the peer. Retryable at the
// embedder's discretion; fatal to the current sync attempt.
func NewTransport(table, message string, cause error) *SyncError {
	return new(CodeTransport, table, message, true, cause)
}

// NewLocalApply wraps a failure applying the local operation batch. The
// local transaction has already rolled back by the time this is returned.
func NewLocalApply(table, message string, cause error) *SyncError {
	return new(CodeLocalApply, table, message, false, cause)
}

// NewRemoteApply wraps a failure applying the remote operation batch.
// Local changes, if any, have already been committed; last_sync_hlc is
// deliberately left unadvanced so the next sync resends them.
func NewRemoteApply(table, message string, cause error) *SyncError {
	return new(CodeRemoteApply, table, message, false, cause)
}

// NewFKUnresolved wraps a foreign-key sync_id that could not be resolved
// to a local row. Fatal only when the column is mandatory.
func NewFKUnresolved(table, message string) *SyncError {
	return new(CodeFKUnresolved, table, message, false, nil)
}

// NewCorruption wraps the "equal HLC, equal node id" case: two distinct
// events on the same node sharing an HLC, which the clock contract
// forbids. Logged and treated as NoOp rather than propagated as fatal,
// per spec.md §4.6 Phase 5.
func NewCorruption(table, message string) *SyncError {
	return new(CodeCorruption, table, message, false, nil)
}
