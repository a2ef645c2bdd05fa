package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

type TransientKind string

const (
	TransientDeadlock   TransientKind = "deadlock"
	TransientTimeout    TransientKind = "timeout"
	TransientConnection TransientKind = "connection"
	TransientTemporary  TransientKind = "temporary"
)

// TransientError marks an infrastructure failure that may succeed on retry.
// Persistence adapters produce it from driver error codes.
type TransientError struct {
	Kind TransientKind
	Op   string
	Err  error
}

func NewTransientError(kind TransientKind, op string, err error) *TransientError {
	return &TransientError{Kind: kind, Op: strings.TrimSpace(op), Err: err}
}

func (e *TransientError) Error() string {
	if e == nil {
		return "core: transient failure"
	}
	prefix := fmt.Sprintf("core: transient %s failure", e.Kind)
	if e.Op != "" {
		prefix += " during " + e.Op
	}
	if e.Err != nil {
		return prefix + ": " + e.Err.Error()
	}
	return prefix
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

var transientKeywords = []struct {
	match string
	kind  TransientKind
}{
	{"deadlock", TransientDeadlock},
	{"timed out", TransientTimeout},
	{"timeout", TransientTimeout},
	{"connection", TransientConnection},
	{"temporar", TransientTemporary},
}

// classifyTransient returns the transient classification of err or nil when
// err must not be retried. Version conflicts are never transient.
func classifyTransient(err error) *TransientError {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrVersionConflict) || errors.Is(err, context.Canceled) {
		return nil
	}
	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return transientErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTransientError(TransientTimeout, "", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTransientError(TransientTimeout, "", err)
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryValidation,
			goerrors.CategoryBadInput,
			goerrors.CategoryNotFound,
			goerrors.CategoryConflict,
			goerrors.CategoryOperation:
			return nil
		}
		if richErr.TextCode == PaymentErrorTransient {
			return NewTransientError(TransientTemporary, "", err)
		}
	}

	// Untyped errors from third-party collaborators.
	msg := strings.ToLower(err.Error())
	for _, keyword := range transientKeywords {
		if strings.Contains(msg, keyword.match) {
			return NewTransientError(keyword.kind, "", err)
		}
	}
	return nil
}
