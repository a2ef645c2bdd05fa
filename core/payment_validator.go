package core

import (
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// PaymentValidator bounds amounts and reports non-fatal anomalies.
type PaymentValidator struct {
	maxPaymentAmount int64
	warningRatio     float64
	threshold        int64
}

func NewPaymentValidator(cfg Config) PaymentValidator {
	return PaymentValidator{
		maxPaymentAmount: cfg.MaxPaymentAmount,
		warningRatio:     cfg.Overpayment.WarningRatio,
		threshold:        cfg.Overpayment.Threshold,
	}
}

func (v PaymentValidator) ValidateAmount(amount int64) error {
	if amount <= 0 {
		return newValidationError("payment amount must be positive", goerrors.FieldError{
			Field:   "amount",
			Message: fmt.Sprintf("got %d", amount),
		})
	}
	if v.maxPaymentAmount > 0 && amount > v.maxPaymentAmount {
		return newValidationError("payment amount exceeds the allowed maximum", goerrors.FieldError{
			Field:   "amount",
			Message: fmt.Sprintf("%d exceeds %d", amount, v.maxPaymentAmount),
		})
	}
	return nil
}

// ValidateRefund rejects increments that would push RefundAmount past Amount.
func (v PaymentValidator) ValidateRefund(payment Payment, increment int64) error {
	if increment <= 0 {
		return newValidationError("refund amount must be positive", goerrors.FieldError{
			Field:   "refund_amount",
			Message: fmt.Sprintf("got %d", increment),
		})
	}
	if refundable := payment.Refundable(); increment > refundable {
		return newValidationError("refund amount exceeds the refundable balance", goerrors.FieldError{
			Field:   "refund_amount",
			Message: fmt.Sprintf("%d exceeds refundable %d", increment, refundable),
		})
	}
	return nil
}

// CheckExpected warns when paid exceeds expected by more than the ratio.
func (v PaymentValidator) CheckExpected(paid int64, expected int64) []string {
	if expected <= 0 || paid <= expected {
		return nil
	}
	limit := expected + scaleBy(expected, v.warningRatio)
	if paid <= limit {
		return nil
	}
	return []string{fmt.Sprintf(
		"payment %d is %.0f%% above expected %d",
		paid,
		ratioOf(paid-expected, expected)*100,
		expected,
	)}
}

// CheckReservationSum is advisory. Cross-payment sums are never enforced
// under a lock spanning multiple rows.
func (v PaymentValidator) CheckReservationSum(summary ReservationPaymentSummary) []string {
	if summary.TotalPrice <= 0 {
		return nil
	}
	if net := summary.Collected - summary.Refunded; net > summary.TotalPrice+v.threshold {
		return []string{fmt.Sprintf(
			"reservation %s has collected %d against total %d",
			summary.ReservationID,
			net,
			summary.TotalPrice,
		)}
	}
	return nil
}
