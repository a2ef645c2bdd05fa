package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type ExecuteRequest struct {
	PaymentID string
	Target    PaymentStatus
	Stage     PaymentStage
	Context   TransitionContext
	// ExpectedVersion, when set, must match the stored version.
	ExpectedVersion *int64
	// Profile selects the transaction profile, booking by default.
	Profile string
}

type TransitionResult struct {
	Success        bool
	PreviousStatus PaymentStatus
	NewStatus      PaymentStatus
	Payment        Payment
	Warnings       []string
	Errors         []string
}

type TransitionExecutorConfig struct {
	GracePeriod time.Duration
	Profiles    map[string]TransactionProfile
}

// TransitionExecutor is the only writer of payment status, version, due
// date, paid-at and refund amount.
type TransitionExecutor struct {
	payments    PaymentStore
	coordinator *TransactionCoordinator
	validator   TransitionValidator
	amounts     PaymentValidator
	publisher   TransitionEventPublisher
	logger      Logger
	gracePeriod time.Duration
	profiles    map[string]TransactionProfile
	now         func() time.Time
}

func NewTransitionExecutor(
	payments PaymentStore,
	coordinator *TransactionCoordinator,
	amounts PaymentValidator,
	publisher TransitionEventPublisher,
	logger Logger,
	cfg TransitionExecutorConfig,
) *TransitionExecutor {
	profiles := make(map[string]TransactionProfile, len(cfg.Profiles))
	for name, profile := range cfg.Profiles {
		profiles[name] = profile
	}
	return &TransitionExecutor{
		payments:    payments,
		coordinator: coordinator,
		validator:   NewTransitionValidator(),
		amounts:     amounts,
		publisher:   publisher,
		logger:      glog.Ensure(logger),
		gracePeriod: cfg.GracePeriod,
		profiles:    profiles,
		now:         time.Now,
	}
}

func (e *TransitionExecutor) Execute(ctx context.Context, req ExecuteRequest) (TransitionResult, error) {
	if e == nil || e.payments == nil || e.coordinator == nil {
		return TransitionResult{}, fmt.Errorf("core: transition executor is not configured")
	}
	req.PaymentID = strings.TrimSpace(req.PaymentID)
	if req.PaymentID == "" {
		return failed(TransitionResult{}, newValidationError("payment id is required", goerrors.FieldError{
			Field:   "payment_id",
			Message: "required",
		}))
	}

	payment, err := e.payments.GetPayment(ctx, req.PaymentID)
	if err != nil {
		return failed(TransitionResult{}, err)
	}
	result := TransitionResult{PreviousStatus: payment.Status, NewStatus: payment.Status, Payment: payment}

	if req.Stage != "" && req.Stage != payment.Stage {
		return failed(result, newValidationError(fmt.Sprintf(
			"payment %q is a %s payment, not %s", payment.ID, payment.Stage, req.Stage,
		)))
	}
	if req.ExpectedVersion != nil && *req.ExpectedVersion != payment.Version {
		return failed(result, newConflictError(payment.ID, *req.ExpectedVersion, ErrVersionConflict))
	}

	patch, warnings, err := e.plan(payment, req.Target, req.Context)
	result.Warnings = append(result.Warnings, warnings...)
	if err != nil {
		return failed(result, err)
	}

	updated, err := RunInTransactionResult(ctx, e.coordinator, e.profile(req.Profile), func(txCtx context.Context) (Payment, error) {
		return e.write(txCtx, payment, patch)
	})
	if err != nil {
		return failed(result, err)
	}

	result.Success = true
	result.NewStatus = updated.Status
	result.Payment = updated
	if req.Target.IsPaid() || req.Target.IsRefund() {
		result.Warnings = append(result.Warnings, e.reservationWarnings(ctx, updated.ReservationID)...)
	}
	for _, warning := range result.Warnings {
		e.logger.Warn("payment transition warning", "payment_id", updated.ID, "warning", warning)
	}
	e.publish(ctx, payment.Status, updated)
	return result, nil
}

// plan validates a move of payment to target and returns its write set.
// Nothing is written.
func (e *TransitionExecutor) plan(payment Payment, target PaymentStatus, tc TransitionContext) (PaymentPatch, []string, error) {
	if tc.OriginalAmount == 0 {
		tc.OriginalAmount = payment.Amount
	}
	if tc.DueDate == nil {
		tc.DueDate = cloneTime(payment.DueDate)
	}

	verdict := e.validator.Validate(payment.Status, target, payment.Stage, tc)
	warnings := append([]string(nil), verdict.Warnings...)
	if !verdict.Allowed {
		return PaymentPatch{}, warnings, goerrors.Wrap(
			fmt.Errorf("%w: %s", ErrInvalidTransition, verdict.Reason),
			goerrors.CategoryValidation,
			verdict.Reason,
		).WithTextCode(PaymentErrorValidation)
	}

	switch {
	case target.IsRefund():
		if err := e.amounts.ValidateRefund(payment, tc.RefundAmount); err != nil {
			return PaymentPatch{}, warnings, err
		}
	case target.IsPaid():
		if err := e.amounts.ValidateAmount(tc.PaymentAmount); err != nil {
			return PaymentPatch{}, warnings, err
		}
		warnings = append(warnings, e.amounts.CheckExpected(tc.PaymentAmount, payment.Amount)...)
	}
	return e.writeSet(payment, target, tc), warnings, nil
}

// write applies patch with a version check inside the transaction on txCtx.
func (e *TransitionExecutor) write(txCtx context.Context, payment Payment, patch PaymentPatch) (Payment, error) {
	out, err := e.payments.ConditionalUpdatePayment(txCtx, payment.ID, payment.Version, patch)
	if errors.Is(err, ErrVersionConflict) {
		return Payment{}, newConflictError(payment.ID, payment.Version, err)
	}
	return out, err
}

func (e *TransitionExecutor) writeSet(payment Payment, target PaymentStatus, tc TransitionContext) PaymentPatch {
	now := e.now().UTC()
	patch := PaymentPatch{Status: target, UpdatedAt: now}
	switch {
	case target == PaymentStatusDepositPaid:
		due := now.Add(e.gracePeriod)
		patch.DueDate = &due
		patch.PaidAt = &now
	case target == PaymentStatusFullyPaid:
		patch.ClearDueDate = true
		patch.PaidAt = &now
	case target.IsRefund():
		refunded := payment.RefundAmount + tc.RefundAmount
		patch.RefundAmount = &refunded
	}
	return patch
}

func (e *TransitionExecutor) profile(name string) TransactionProfile {
	name = strings.TrimSpace(name)
	if name == "" {
		name = ProfileBooking
	}
	if profile, ok := e.profiles[name]; ok {
		return profile
	}
	if profile, ok := e.profiles[ProfileBooking]; ok {
		return profile
	}
	return BookingProfile(DefaultConfig())
}

// reservationWarnings runs the advisory cross-payment check after commit.
func (e *TransitionExecutor) reservationWarnings(ctx context.Context, reservationID string) []string {
	summary, err := e.payments.GetReservationPaymentSummary(ctx, reservationID)
	if err != nil {
		e.logger.Warn("reservation summary unavailable", "reservation_id", reservationID, "error", err.Error())
		return nil
	}
	return e.amounts.CheckReservationSum(summary)
}

func (e *TransitionExecutor) publish(ctx context.Context, from PaymentStatus, payment Payment) {
	if e.publisher == nil {
		return
	}
	event := PaymentTransitionedEvent{
		PaymentID:     payment.ID,
		ReservationID: payment.ReservationID,
		Stage:         payment.Stage,
		From:          from,
		To:            payment.Status,
		Amount:        payment.Amount,
		RefundAmount:  payment.RefundAmount,
		Version:       payment.Version,
		OccurredAt:    payment.UpdatedAt,
	}
	if err := e.publisher.PublishTransition(ctx, event); err != nil {
		e.logger.Error("publish payment transition failed", "payment_id", payment.ID, "error", err.Error())
	}
}

func failed(result TransitionResult, err error) (TransitionResult, error) {
	result.Success = false
	result.Errors = append(result.Errors, err.Error())
	return result, err
}
