package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	PaymentErrorValidation      = "PAYMENT_VALIDATION_FAILED"
	PaymentErrorNotFound        = "PAYMENT_NOT_FOUND"
	PaymentErrorVersionConflict = "PAYMENT_VERSION_CONFLICT"
	PaymentErrorTransient       = "PAYMENT_TRANSIENT_FAILURE"
	PaymentErrorCoordination    = "PAYMENT_COORDINATION_FAILED"
	PaymentErrorSweepLocked     = "PAYMENT_SWEEP_LOCKED"
	PaymentErrorInternal        = "PAYMENT_INTERNAL_ERROR"
)

// CoordinationError reports a failed multi-participant transaction. Committed
// lists participants whose commit already succeeded when a later commit failed.
type CoordinationError struct {
	Phase      string
	Failed     string
	Committed  []string
	RolledBack []string
	Err        error
}

func (e *CoordinationError) Error() string {
	if e == nil {
		return "core: coordination failed"
	}
	msg := fmt.Sprintf("core: coordination failed in %s phase", e.Phase)
	if e.Failed != "" {
		msg += fmt.Sprintf(" at participant %q", e.Failed)
	}
	if len(e.Committed) > 0 {
		msg += fmt.Sprintf(" after committing %s", strings.Join(e.Committed, ","))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CoordinationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Heuristic reports whether some participants committed before the failure.
func (e *CoordinationError) Heuristic() bool {
	return e != nil && len(e.Committed) > 0
}

// MapError converts engine errors into the go-errors envelope.
func MapError(err error) *goerrors.Error {
	return paymentErrorMapper(err)
}

func paymentErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var coordErr *CoordinationError
	if errors.As(err, &coordErr) {
		return newPaymentError(err.Error(), goerrors.CategoryOperation, PaymentErrorCoordination).
			WithMetadata(map[string]any{
				"phase":       coordErr.Phase,
				"failed":      coordErr.Failed,
				"committed":   append([]string(nil), coordErr.Committed...),
				"rolled_back": append([]string(nil), coordErr.RolledBack...),
			})
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensurePaymentErrorEnvelope(richErr)
	}

	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return wrapPaymentError(err, goerrors.CategoryExternal, PaymentErrorTransient).
			WithMetadata(map[string]any{"kind": string(transientErr.Kind)})
	}

	switch {
	case errors.Is(err, ErrVersionConflict):
		return wrapPaymentError(err, goerrors.CategoryConflict, PaymentErrorVersionConflict)
	case errors.Is(err, ErrSweepLocked):
		return wrapPaymentError(err, goerrors.CategoryConflict, PaymentErrorSweepLocked)
	case errors.Is(err, ErrPaymentNotFound),
		errors.Is(err, ErrReservationNotFound),
		errors.Is(err, ErrServiceNotFound),
		errors.Is(err, ErrRefundPolicyMissing):
		return wrapPaymentError(err, goerrors.CategoryNotFound, PaymentErrorNotFound)
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrInvalidStage),
		errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrInvalidAmount):
		return wrapPaymentError(err, goerrors.CategoryValidation, PaymentErrorValidation)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return wrapPaymentError(err, goerrors.CategoryNotFound, PaymentErrorNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "must"):
		return wrapPaymentError(err, goerrors.CategoryBadInput, PaymentErrorValidation)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensurePaymentErrorEnvelope(mapped)
}

func newPaymentError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensurePaymentErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func wrapPaymentError(err error, category goerrors.Category, textCode string) *goerrors.Error {
	return ensurePaymentErrorEnvelope(
		goerrors.Wrap(err, category, err.Error()).
			WithTextCode(textCode),
	)
}

// newValidationError builds a rejected-input error with optional field details.
func newValidationError(message string, fields ...goerrors.FieldError) *goerrors.Error {
	return ensurePaymentErrorEnvelope(
		goerrors.NewValidation(message, fields...).
			WithTextCode(PaymentErrorValidation).
			WithSeverity(goerrors.SeverityError),
	)
}

func newConflictError(paymentID string, expected int64, cause error) *goerrors.Error {
	if cause == nil {
		cause = ErrVersionConflict
	}
	return ensurePaymentErrorEnvelope(
		goerrors.Wrap(cause, goerrors.CategoryConflict, fmt.Sprintf("payment %q was modified concurrently", paymentID)).
			WithTextCode(PaymentErrorVersionConflict).
			WithMetadata(map[string]any{
				"payment_id":       paymentID,
				"expected_version": expected,
			}),
	)
}

func ensurePaymentErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = paymentHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultPaymentTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultPaymentTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return PaymentErrorValidation
	case goerrors.CategoryNotFound:
		return PaymentErrorNotFound
	case goerrors.CategoryConflict:
		return PaymentErrorVersionConflict
	case goerrors.CategoryExternal:
		return PaymentErrorTransient
	case goerrors.CategoryOperation:
		return PaymentErrorCoordination
	default:
		return PaymentErrorInternal
	}
}

func paymentHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func hasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrVersionConflict) || hasTextCode(err, PaymentErrorVersionConflict)
}

func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPaymentNotFound) || errors.Is(err, ErrReservationNotFound) || errors.Is(err, ErrServiceNotFound) {
		return true
	}
	return goerrors.HasCategory(err, goerrors.CategoryNotFound)
}

func IsValidation(err error) bool {
	if err == nil {
		return false
	}
	return goerrors.HasCategory(err, goerrors.CategoryValidation) ||
		goerrors.HasCategory(err, goerrors.CategoryBadInput)
}

func IsCoordination(err error) bool {
	var coordErr *CoordinationError
	return errors.As(err, &coordErr) || hasTextCode(err, PaymentErrorCoordination)
}

func IsSweepLocked(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrSweepLocked) || hasTextCode(err, PaymentErrorSweepLocked)
}

// IsRetryable reports whether err is a transient infrastructure failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return classifyTransient(err) != nil
}
