package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestMapError_AssignsStableCodes(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		category goerrors.Category
		textCode string
		status   int
	}{
		{"conflict", fmt.Errorf("update: %w", ErrVersionConflict), goerrors.CategoryConflict, PaymentErrorVersionConflict, http.StatusConflict},
		{"payment not found", fmt.Errorf("%w: pay_1", ErrPaymentNotFound), goerrors.CategoryNotFound, PaymentErrorNotFound, http.StatusNotFound},
		{"reservation not found", ErrReservationNotFound, goerrors.CategoryNotFound, PaymentErrorNotFound, http.StatusNotFound},
		{"invalid transition", fmt.Errorf("%w: nope", ErrInvalidTransition), goerrors.CategoryValidation, PaymentErrorValidation, http.StatusBadRequest},
		{"sweep locked", fmt.Errorf("%w: key", ErrSweepLocked), goerrors.CategoryConflict, PaymentErrorSweepLocked, http.StatusConflict},
		{"transient", NewTransientError(TransientDeadlock, "update", errors.New("deadlock")), goerrors.CategoryExternal, PaymentErrorTransient, http.StatusServiceUnavailable},
		{"coordination", &CoordinationError{Phase: "prepare", Failed: "target", Err: errors.New("boom")}, goerrors.CategoryOperation, PaymentErrorCoordination, http.StatusInternalServerError},
		{"validation", newValidationError("bad"), goerrors.CategoryValidation, PaymentErrorValidation, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := MapError(tc.err)
			if mapped == nil {
				t.Fatalf("expected mapped error")
			}
			if mapped.Category != tc.category || mapped.TextCode != tc.textCode || mapped.Code != tc.status {
				t.Fatalf("expected %s/%s/%d, got %s/%s/%d",
					tc.category, tc.textCode, tc.status, mapped.Category, mapped.TextCode, mapped.Code)
			}
		})
	}
	if MapError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestErrorPredicates(t *testing.T) {
	conflict := newConflictError("pay_1", 2, ErrVersionConflict)
	if !IsConflict(conflict) || IsRetryable(conflict) {
		t.Fatalf("expected conflict to be terminal")
	}
	if !errors.Is(conflict, ErrVersionConflict) {
		t.Fatalf("expected conflict to unwrap to the sentinel")
	}
	if conflict.Metadata["expected_version"] != int64(2) {
		t.Fatalf("expected version metadata, got %#v", conflict.Metadata)
	}

	if !IsRetryable(errors.New("pq: deadlock detected")) {
		t.Fatalf("expected deadlock keyword to be transient")
	}
	if !IsRetryable(context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded to be transient")
	}
	if IsRetryable(context.Canceled) {
		t.Fatalf("expected cancellation to be terminal")
	}
	if IsRetryable(newValidationError("connection string is invalid")) {
		t.Fatalf("expected validation errors to be terminal regardless of wording")
	}
	if !IsNotFound(MapError(ErrPaymentNotFound)) || !IsValidation(MapError(ErrInvalidAmount)) {
		t.Fatalf("expected predicates to hold on mapped errors")
	}
	if !IsSweepLocked(MapError(fmt.Errorf("%w: payments:overdue-sweep", ErrSweepLocked))) || IsSweepLocked(conflict) {
		t.Fatalf("expected sweep lock predicate to follow the text code")
	}
	if !IsRetryable(MapError(NewTransientError(TransientConnection, "list", errors.New("reset by peer")))) {
		t.Fatalf("expected mapped transient errors to stay retryable")
	}
}

func TestCoordinationError_Heuristic(t *testing.T) {
	partial := &CoordinationError{Phase: "commit", Failed: "target", Committed: []string{"source"}, Err: errors.New("lost")}
	if !partial.Heuristic() {
		t.Fatalf("expected partial commit to be heuristic")
	}
	if got := partial.Error(); got != `core: coordination failed in commit phase at participant "target" after committing source: lost` {
		t.Fatalf("unexpected message %q", got)
	}
	clean := &CoordinationError{Phase: "prepare", Err: NewTransientError(TransientTimeout, "", context.DeadlineExceeded)}
	if clean.Heuristic() || !IsRetryable(clean) {
		t.Fatalf("expected prepare failure with transient cause to be retryable")
	}
}
