package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestSyncErrorMessage(t *testing.T) {
	err := NewConnectionError(OpPull, errors.New("dial tcp: refused"))
	msg := err.Error()
	if msg == "" {
		t.Fatal("expected non-empty message")
	}
	for _, want := range []string{"pull", "remote", "CONNECTION_FAILURE", "refused"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewStorageError(OpStore, cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the cause")
	}
	wrapped := fmt.Errorf("outer: %w", err)
	var syncErr *SyncError
	if !errors.As(wrapped, &syncErr) {
		t.Fatal("expected errors.As to find SyncError through wrapping")
	}
	if syncErr.Code != CodeStorage {
		t.Fatalf("expected storage code, got %s", syncErr.Code)
	}
}

func TestFatality(t *testing.T) {
	tests := []struct {
		err   error
		fatal bool
	}{
		{NewConnectionError(OpSync, nil), true},
		{NewAuthError(OpSync, nil), true},
		{NewQuotaError(OpPush, nil), true},
		{NewValidationError(OpPush, "note", "n1", []string{"content required"}), false},
		{NewDataError(OpPull, "book", "b1", nil), false},
		{NewTimeoutError(OpPull, nil), false},
		{NewRateLimitError(OpPush, time.Minute), false},
		{errors.New("plain"), false},
	}
	for _, tt := range tests {
		if got := IsFatal(tt.err); got != tt.fatal {
			t.Errorf("IsFatal(%v) = %v, want %v", tt.err, got, tt.fatal)
		}
	}
}

func TestRetryable(t *testing.T) {
	if !IsRetryable(NewConnectionError(OpPush, nil)) {
		t.Error("connection failures should be retryable")
	}
	if IsRetryable(NewAuthError(OpPush, nil)) {
		t.Error("auth failures should not be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors should not be retryable")
	}
}

func TestRateLimitCarriesRetryAfter(t *testing.T) {
	err := NewRateLimitError(OpPush, 30*time.Second)
	wrapped := fmt.Errorf("push batch: %w", err)
	if got := RetryAfterOf(wrapped); got != 30*time.Second {
		t.Fatalf("RetryAfterOf = %v, want 30s", got)
	}
	if RetryAfterOf(errors.New("plain")) != 0 {
		t.Fatal("plain errors have no retry-after")
	}
}

func TestManualResolutionPredicate(t *testing.T) {
	err := NewConflictError(OpResolve, "note", "n1", map[string]any{"content": "x"})
	if !IsManualResolutionRequired(err) {
		t.Fatal("conflict failure should report manual resolution required")
	}
	if err.EntityType != "note" || err.EntityID != "n1" {
		t.Fatal("conflict failure should carry entity identity")
	}
}

func TestWrapOpDoesNotMutateSharedErrors(t *testing.T) {
	shared := &SyncError{Code: CodeConnection, Retryable: true}
	wrapped := WrapOp(shared, OpPush, "adapter")
	if shared.Op != "" || shared.Component != "" {
		t.Fatalf("shared error mutated: %+v", shared)
	}
	var syncErr *SyncError
	if !errors.As(wrapped, &syncErr) {
		t.Fatal("expected a SyncError")
	}
	if syncErr.Op != OpPush || syncErr.Component != "adapter" {
		t.Fatalf("wrapped = %+v, want op and component filled in", syncErr)
	}
	if syncErr.Code != CodeConnection || !syncErr.Retryable {
		t.Fatal("wrapping must preserve code and flags")
	}
}

func TestWithEntityDoesNotMutateSharedErrors(t *testing.T) {
	shared := NewConnectionError(OpPush, nil)
	annotated := WithEntity(shared, "note", "n1")
	if shared.EntityType != "" || shared.EntityID != "" {
		t.Fatalf("shared error mutated: %+v", shared)
	}
	var syncErr *SyncError
	if !errors.As(annotated, &syncErr) {
		t.Fatal("expected a SyncError")
	}
	if syncErr.EntityType != "note" || syncErr.EntityID != "n1" {
		t.Fatalf("annotated = %+v, want entity filled in", syncErr)
	}
	if syncErr.Code != CodeConnection {
		t.Fatal("annotation must preserve the code")
	}
}

func TestWrapOpPreservesCode(t *testing.T) {
	inner := NewQuotaError(OpPush, nil)
	wrapped := WrapOp(inner, OpSync, "orchestrator")
	if CodeOf(wrapped) != CodeQuota {
		t.Fatal("wrapping must not lose the code")
	}
	plain := WrapOp(errors.New("x"), OpQueue, "queue")
	var syncErr *SyncError
	if !errors.As(plain, &syncErr) || syncErr.Component != "queue" {
		t.Fatal("plain error should be wrapped with component")
	}
}
