// Package errors provides the typed failure taxonomy for the sync core.
// Every failure carries a machine-readable code, the operation and
// component it originated from, and a human-readable message so callers
// can retry deliberately.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Code identifies the kind of sync failure.
type Code string

const (
	CodeConnection Code = "CONNECTION_FAILURE"
	CodeAuth       Code = "AUTH_FAILURE"
	CodeConflict   Code = "CONFLICT_FAILURE"
	CodeTimeout    Code = "TIMEOUT_FAILURE"
	CodeData       Code = "DATA_FAILURE"
	CodeQuota      Code = "QUOTA_FAILURE"
	CodeVersion    Code = "VERSION_FAILURE"
	CodeCancelled  Code = "CANCELLED_FAILURE"
	CodeRateLimit  Code = "RATE_LIMIT_FAILURE"
	CodePermission Code = "PERMISSION_FAILURE"
	CodeStorage    Code = "STORAGE_FAILURE"
	CodeValidation Code = "VALIDATION_FAILURE"
)

// Operation represents the sync operation during which an error occurred.
type Operation string

const (
	OpSync    Operation = "sync"
	OpPush    Operation = "push"
	OpPull    Operation = "pull"
	OpDetect  Operation = "detect"
	OpResolve Operation = "resolve"
	OpQueue   Operation = "queue"
	OpStore   Operation = "store"
	OpClose   Operation = "close"
)

// SyncError is the single error type surfaced by the sync core.
type SyncError struct {
	// Code classifies the failure for machine handling.
	Code Code

	// Op is the operation during which the error occurred.
	Op Operation

	// Component that generated the error (e.g. "queue", "adapter").
	Component string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error

	// Retryable reports whether the same operation may be retried.
	Retryable bool

	// RetryAfter is the server-mandated wait for rate-limited failures.
	RetryAfter time.Duration

	// EntityType and EntityID locate the affected entity where applicable.
	EntityType string
	EntityID   string

	// ConflictData carries the divergent payload for conflict failures.
	ConflictData map[string]any

	// ValidationErrors lists the individual field problems for
	// validation failures.
	ValidationErrors []string

	// Metadata holds additional context.
	Metadata map[string]any
}

func (e *SyncError) Error() string {
	var msg string
	if e.Component != "" {
		msg = fmt.Sprintf("%s operation failed in %s component", e.Op, e.Component)
	} else {
		msg = fmt.Sprintf("%s operation failed", e.Op)
	}
	if e.Code != "" {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// NewConnectionError creates a retryable connection failure.
func NewConnectionError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      CodeConnection,
		Op:        op,
		Component: "remote",
		Message:   "could not reach the remote store",
		Err:       cause,
		Retryable: true,
	}
}

// NewAuthError creates an authentication failure. Not retryable without
// caller intervention.
func NewAuthError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      CodeAuth,
		Op:        op,
		Component: "remote",
		Message:   "remote store rejected credentials",
		Err:       cause,
	}
}

// NewConflictError creates a conflict failure carrying the divergent data.
func NewConflictError(op Operation, entityType, entityID string, data map[string]any) *SyncError {
	return &SyncError{
		Code:         CodeConflict,
		Op:           op,
		Component:    "conflict",
		Message:      "manual resolution required",
		EntityType:   entityType,
		EntityID:     entityID,
		ConflictData: data,
	}
}

// NewTimeoutError creates a retryable timeout failure for a bounded
// network call.
func NewTimeoutError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      CodeTimeout,
		Op:        op,
		Component: "remote",
		Message:   "network call exceeded its deadline",
		Err:       cause,
		Retryable: true,
	}
}

// NewDataError creates a malformed-payload failure scoped to one entity.
func NewDataError(op Operation, entityType, entityID string, cause error) *SyncError {
	return &SyncError{
		Code:       CodeData,
		Op:         op,
		Message:    "malformed payload",
		Err:        cause,
		EntityType: entityType,
		EntityID:   entityID,
	}
}

// NewQuotaError creates a quota-exceeded failure. Fatal to the session.
func NewQuotaError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      CodeQuota,
		Op:        op,
		Component: "remote",
		Message:   "remote storage quota exceeded",
		Err:       cause,
	}
}

// NewVersionError creates a remote schema mismatch failure.
func NewVersionError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      CodeVersion,
		Op:        op,
		Component: "remote",
		Message:   "remote schema version mismatch",
		Err:       cause,
	}
}

// NewCancelledError marks an operation stopped by cooperative
// cancellation.
func NewCancelledError(op Operation) *SyncError {
	return &SyncError{
		Code:    CodeCancelled,
		Op:      op,
		Message: "sync cancelled",
	}
}

// NewRateLimitError creates a rate-limit failure. The operation must not
// be retried before RetryAfter elapses.
func NewRateLimitError(op Operation, retryAfter time.Duration) *SyncError {
	return &SyncError{
		Code:       CodeRateLimit,
		Op:         op,
		Component:  "remote",
		Message:    "rate limited by remote store",
		Retryable:  true,
		RetryAfter: retryAfter,
	}
}

// NewPermissionError creates a permission-denied failure.
func NewPermissionError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      CodePermission,
		Op:        op,
		Component: "remote",
		Message:   "permission denied",
		Err:       cause,
	}
}

// NewStorageError creates a retryable local storage failure.
func NewStorageError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      CodeStorage,
		Op:        op,
		Component: "store",
		Message:   "local store operation failed",
		Err:       cause,
		Retryable: true,
	}
}

// NewValidationError creates a validation failure scoped to one entity.
func NewValidationError(op Operation, entityType, entityID string, problems []string) *SyncError {
	return &SyncError{
		Code:             CodeValidation,
		Op:               op,
		Component:        "adapter",
		Message:          "entity failed validation",
		EntityType:       entityType,
		EntityID:         entityID,
		ValidationErrors: problems,
	}
}

// CodeOf extracts the failure code from an error chain. Returns an empty
// code when no SyncError is present.
func CodeOf(err error) Code {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Code
	}
	return ""
}

// IsRetryable checks if an error is a retryable SyncError.
func IsRetryable(err error) bool {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Retryable
	}
	return false
}

// IsFatal reports whether an error must terminate the current session.
// Connection, auth, and quota failures are session-fatal; everything
// else is recovered per entity.
func IsFatal(err error) bool {
	switch CodeOf(err) {
	case CodeConnection, CodeAuth, CodeQuota:
		return true
	default:
		return false
	}
}

// IsManualResolutionRequired reports whether an error is the typed
// "manual resolution required" conflict failure.
func IsManualResolutionRequired(err error) bool {
	return CodeOf(err) == CodeConflict
}

// RetryAfterOf extracts the mandated wait from a rate-limit failure,
// zero otherwise.
func RetryAfterOf(err error) time.Duration {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.RetryAfter
	}
	return 0
}
