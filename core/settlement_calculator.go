package core

import (
	"sort"
	"time"
)

// IsCollected reports whether a payment row holds money that was received,
// refunded or not.
func IsCollected(stage PaymentStage, status PaymentStatus) bool {
	switch status {
	case PaymentStatusDepositPaid,
		PaymentStatusFullyPaid,
		PaymentStatusPartiallyRefunded,
		PaymentStatusRefunded,
		PaymentStatusDepositRefunded,
		PaymentStatusFinalPaymentRefunded:
		return true
	case PaymentStatusFinalPaymentPending:
		return isAdvancedDeposit(stage, status)
	default:
		return false
	}
}

// isAdvancedDeposit reports a paid deposit that moved to final_payment_pending
// when the final payment was requested. The money is still held.
func isAdvancedDeposit(stage PaymentStage, status PaymentStatus) bool {
	return stage == PaymentStageDeposit && status == PaymentStatusFinalPaymentPending
}

type SettlementBreakdown struct {
	DepositPaid    int64 `json:"deposit_paid"`
	FinalPaid      int64 `json:"final_paid"`
	SinglePaid     int64 `json:"single_paid"`
	TotalRefunded  int64 `json:"total_refunded"`
	CountedRows    int   `json:"counted_rows"`
	Overridden     bool  `json:"overridden"`
	RequiresRefund bool  `json:"requires_refund"`
}

type FinalPaymentComputation struct {
	ReservationID string              `json:"reservation_id"`
	OriginalTotal int64               `json:"original_total"`
	AdjustedFinal int64               `json:"adjusted_final"`
	TotalPaid     int64               `json:"total_paid"`
	Remaining     int64               `json:"remaining"`
	Overpayment   int64               `json:"overpayment"`
	Breakdown     SettlementBreakdown `json:"breakdown"`
}

// ComputeSettlement derives the final balance from persisted history. It is
// idempotent over unchanged input.
func ComputeSettlement(reservation Reservation, payments []Payment, override *int64) FinalPaymentComputation {
	out := FinalPaymentComputation{
		ReservationID: reservation.ID,
		OriginalTotal: reservation.TotalPrice,
		AdjustedFinal: reservation.TotalPrice,
	}
	if override != nil {
		out.AdjustedFinal = *override
		out.Breakdown.Overridden = true
	}

	for _, payment := range payments {
		if !IsCollected(payment.Stage, payment.Status) {
			continue
		}
		net := payment.Net()
		out.TotalPaid += net
		out.Breakdown.TotalRefunded += payment.RefundAmount
		out.Breakdown.CountedRows++
		switch payment.Stage {
		case PaymentStageDeposit:
			out.Breakdown.DepositPaid += net
		case PaymentStageFinal:
			out.Breakdown.FinalPaid += net
		default:
			out.Breakdown.SinglePaid += net
		}
	}

	out.Remaining = max(0, out.AdjustedFinal-out.TotalPaid)
	out.Overpayment = max(0, out.TotalPaid-out.AdjustedFinal)
	out.Breakdown.RequiresRefund = out.Overpayment > 0
	return out
}

type NextStage string

const (
	NextStageFinal    NextStage = "final"
	NextStageComplete NextStage = "complete"
	NextStageNone     NextStage = "none"
)

type PaymentHistoryEntry struct {
	PaymentID    string        `json:"payment_id"`
	Stage        PaymentStage  `json:"stage"`
	Status       PaymentStatus `json:"status"`
	Amount       int64         `json:"amount"`
	RefundAmount int64         `json:"refund_amount"`
	Counted      bool          `json:"counted"`
	PaidAt       string        `json:"paid_at,omitempty"`
}

type PartialPaymentStatus struct {
	ReservationID string                `json:"reservation_id"`
	TotalAmount   int64                 `json:"total_amount"`
	TotalPaid     int64                 `json:"total_paid"`
	Remaining     int64                 `json:"remaining"`
	History       []PaymentHistoryEntry `json:"history"`
	NextStage     NextStage             `json:"next_stage"`
}

// TrackPartialPayments counts gross amounts of deposit_paid and fully_paid
// rows against the reservation total.
func TrackPartialPayments(reservation Reservation, payments []Payment) PartialPaymentStatus {
	ordered := append([]Payment(nil), payments...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	out := PartialPaymentStatus{
		ReservationID: reservation.ID,
		TotalAmount:   reservation.TotalPrice,
		History:       make([]PaymentHistoryEntry, 0, len(ordered)),
	}
	for _, payment := range ordered {
		counted := payment.Status.IsPaid() || isAdvancedDeposit(payment.Stage, payment.Status)
		if counted {
			out.TotalPaid += payment.Amount
		}
		entry := PaymentHistoryEntry{
			PaymentID:    payment.ID,
			Stage:        payment.Stage,
			Status:       payment.Status,
			Amount:       payment.Amount,
			RefundAmount: payment.RefundAmount,
			Counted:      counted,
		}
		if payment.PaidAt != nil {
			entry.PaidAt = payment.PaidAt.UTC().Format(time.RFC3339)
		}
		out.History = append(out.History, entry)
	}

	out.Remaining = max(0, out.TotalAmount-out.TotalPaid)
	switch {
	case out.TotalAmount <= 0:
		out.NextStage = NextStageNone
	case out.Remaining > 0:
		out.NextStage = NextStageFinal
	case out.TotalPaid >= out.TotalAmount:
		out.NextStage = NextStageComplete
	default:
		out.NextStage = NextStageNone
	}
	return out
}
