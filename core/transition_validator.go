package core

import (
	"fmt"
	"slices"
	"time"
)

// allowedTransitions is the fixed per-stage transition table.
var allowedTransitions = map[PaymentStage]map[PaymentStatus][]PaymentStatus{
	PaymentStageDeposit: {
		PaymentStatusPending:     {PaymentStatusDepositPaid, PaymentStatusFailed},
		PaymentStatusDepositPaid: {PaymentStatusDepositRefunded, PaymentStatusFinalPaymentPending},
		PaymentStatusFailed:      {PaymentStatusPending},
	},
	PaymentStageFinal: {
		PaymentStatusPending:             {PaymentStatusFullyPaid, PaymentStatusFailed},
		PaymentStatusFinalPaymentPending: {PaymentStatusFullyPaid, PaymentStatusOverdue},
		PaymentStatusFullyPaid:           {PaymentStatusFinalPaymentRefunded},
		PaymentStatusOverdue:             {PaymentStatusFullyPaid},
		PaymentStatusFailed:              {PaymentStatusPending},
	},
	PaymentStageSingle: {
		PaymentStatusPending:   {PaymentStatusFullyPaid, PaymentStatusFailed},
		PaymentStatusFullyPaid: {PaymentStatusRefunded, PaymentStatusPartiallyRefunded},
		PaymentStatusFailed:    {PaymentStatusPending},
	},
}

// TransitionContext carries the facts a transition is judged on.
type TransitionContext struct {
	PaymentAmount  int64
	RefundAmount   int64
	OriginalAmount int64
	DueDate        *time.Time
	Reason         string
	Metadata       map[string]any
}

type ValidationResult struct {
	Allowed  bool
	Reason   string
	Warnings []string
}

type TransitionValidator struct {
	now func() time.Time
}

func NewTransitionValidator() TransitionValidator {
	return TransitionValidator{now: time.Now}
}

// AllowedTargets lists the statuses reachable from current in stage.
func AllowedTargets(stage PaymentStage, current PaymentStatus) []PaymentStatus {
	return slices.Clone(allowedTransitions[stage][current])
}

func CanTransition(stage PaymentStage, current PaymentStatus, target PaymentStatus) bool {
	return slices.Contains(allowedTransitions[stage][current], target)
}

func (v TransitionValidator) Validate(
	current PaymentStatus,
	target PaymentStatus,
	stage PaymentStage,
	tc TransitionContext,
) ValidationResult {
	if !stage.Valid() {
		return reject("unknown payment stage %q", stage)
	}
	if !current.Valid() {
		return reject("unknown current status %q", current)
	}
	if !target.Valid() {
		return reject("unknown target status %q", target)
	}
	if current == target {
		return reject("payment is already %s", current)
	}
	if !CanTransition(stage, current, target) {
		return reject("transition %s -> %s is not allowed for %s stage", current, target, stage)
	}

	result := ValidationResult{Allowed: true}
	switch {
	case target == PaymentStatusOverdue:
		if tc.DueDate == nil {
			return reject("a due date is required to mark a payment overdue")
		}
		if tc.DueDate.After(v.clock()) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("due date %s has not passed yet", tc.DueDate.UTC().Format(time.RFC3339)))
		}
	case target.IsRefund():
		if tc.RefundAmount <= 0 {
			return reject("refund amount must be positive to enter %s", target)
		}
		if target == PaymentStatusPartiallyRefunded && tc.OriginalAmount > 0 && tc.RefundAmount >= tc.OriginalAmount {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("partial refund %d covers the full original amount %d", tc.RefundAmount, tc.OriginalAmount))
		}
	case target.IsPaid():
		if tc.PaymentAmount <= 0 {
			return reject("payment amount must be positive to enter %s", target)
		}
	}
	return result
}

func (v TransitionValidator) clock() time.Time {
	if v.now == nil {
		return time.Now()
	}
	return v.now()
}

func reject(format string, args ...any) ValidationResult {
	return ValidationResult{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}
