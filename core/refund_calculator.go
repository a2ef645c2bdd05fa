package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type PolicySource string

const (
	PolicySourceShop    PolicySource = "shop"
	PolicySourceDefault PolicySource = "default"
)

// RefundPolicyResolver looks up a shop policy and falls back to the system
// default when the shop has none or its policy is inactive.
type RefundPolicyResolver struct {
	provider RefundPolicyProvider
	fallback RefundPolicy
}

func NewRefundPolicyResolver(provider RefundPolicyProvider, fallback RefundPolicy) RefundPolicyResolver {
	return RefundPolicyResolver{provider: provider, fallback: fallback}
}

func (r RefundPolicyResolver) Resolve(ctx context.Context, shopID string) (RefundPolicy, PolicySource, error) {
	shopID = strings.TrimSpace(shopID)
	if r.provider == nil || shopID == "" {
		return r.fallback, PolicySourceDefault, nil
	}
	policy, err := r.provider.GetRefundPolicy(ctx, shopID)
	if err != nil {
		if errors.Is(err, ErrRefundPolicyMissing) {
			return r.fallback, PolicySourceDefault, nil
		}
		return RefundPolicy{}, "", err
	}
	if !policy.IsActive {
		return r.fallback, PolicySourceDefault, nil
	}
	return policy, PolicySourceShop, nil
}

type RefundBreakdown struct {
	PolicySource       PolicySource `json:"policy_source"`
	PolicyPercentage   float64      `json:"policy_percentage"`
	PolicyRefund       int64        `json:"policy_refund"`
	ElapsedHours       float64      `json:"elapsed_hours"`
	TimeLimitHours     *int         `json:"time_limit_hours,omitempty"`
	TimeAdjustment     float64      `json:"time_adjustment"`
	MaxRefundAmount    *int64       `json:"max_refund_amount,omitempty"`
	MaxClamped         bool         `json:"max_clamped"`
	ClampRatio         float64      `json:"clamp_ratio,omitempty"`
	CappedByRefundable bool         `json:"capped_by_refundable"`
	RequestedAmount    *int64       `json:"requested_amount,omitempty"`
	FinalAmount        int64        `json:"final_amount"`
	Reason             string       `json:"reason,omitempty"`
}

type RefundComputation struct {
	PaymentID  string          `json:"payment_id"`
	Refundable int64           `json:"refundable"`
	Calculated int64           `json:"calculated"`
	Breakdown  RefundBreakdown `json:"breakdown"`
}

// RefundCalculator turns a payment, a policy and elapsed time into a refund.
type RefundCalculator struct {
	now func() time.Time
}

func NewRefundCalculator() RefundCalculator {
	return RefundCalculator{now: time.Now}
}

// Compute is pure over its inputs and the calculator clock.
func (c RefundCalculator) Compute(
	payment Payment,
	policy RefundPolicy,
	source PolicySource,
	requested *int64,
	reason string,
) (RefundComputation, error) {
	if err := policy.Validate(); err != nil {
		return RefundComputation{}, newValidationError(err.Error())
	}
	if requested != nil && *requested < 0 {
		return RefundComputation{}, newValidationError("requested refund must not be negative", goerrors.FieldError{
			Field:   "requested_amount",
			Message: fmt.Sprintf("got %d", *requested),
		})
	}

	refundable := payment.Refundable()
	breakdown := RefundBreakdown{
		PolicySource:     source,
		PolicyPercentage: policy.Percentage,
		PolicyRefund:     percentOf(payment.Amount, policy.Percentage),
		TimeLimitHours:   policy.TimeLimitHours,
		TimeAdjustment:   1,
		MaxRefundAmount:  policy.MaxRefundAmount,
		Reason:           strings.TrimSpace(reason),
	}

	paidAt := payment.CreatedAt
	if payment.PaidAt != nil {
		paidAt = *payment.PaidAt
	}
	if !paidAt.IsZero() {
		breakdown.ElapsedHours = c.clock().Sub(paidAt).Hours()
	}
	if policy.TimeLimitHours != nil && breakdown.ElapsedHours > float64(*policy.TimeLimitHours) {
		breakdown.TimeAdjustment = 0
	}

	policyRefund := breakdown.PolicyRefund
	if policy.MaxRefundAmount != nil && policyRefund > *policy.MaxRefundAmount {
		breakdown.MaxClamped = true
		breakdown.ClampRatio = ratioOf(*policy.MaxRefundAmount, policyRefund)
		policyRefund = *policy.MaxRefundAmount
	}

	calculated := scaleBy(policyRefund, breakdown.TimeAdjustment)
	if calculated > refundable {
		breakdown.CappedByRefundable = true
		calculated = refundable
	}

	final := calculated
	if requested != nil {
		value := *requested
		breakdown.RequestedAmount = &value
		final = min(value, calculated)
	}
	breakdown.FinalAmount = final

	return RefundComputation{
		PaymentID:  payment.ID,
		Refundable: refundable,
		Calculated: calculated,
		Breakdown:  breakdown,
	}, nil
}

func (c RefundCalculator) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}
