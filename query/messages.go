package query

import (
	"strings"

	"github.com/goliatone/go-payments/core"
)

const (
	TypeGetPayment          = "payments.query.payment.get"
	TypeListPayments        = "payments.query.payment.list"
	TypeTrackPayments       = "payments.query.reservation.track"
	TypeComputeBreakdown    = "payments.query.breakdown.compute"
	TypeComputeFinal        = "payments.query.final.compute"
	TypeComputeRefund       = "payments.query.refund.compute"
	TypeGetRefundPolicy     = "payments.query.refund_policy.get"
	TypeListCatalogServices = "payments.query.catalog_service.list"
)

type GetPaymentMessage struct {
	PaymentID string
}

func (GetPaymentMessage) Type() string { return TypeGetPayment }

func (m GetPaymentMessage) Validate() error {
	var problems fieldErrors
	problems.require("payment_id", m.PaymentID)
	return problems.err(TypeGetPayment)
}

type ListPaymentsMessage struct {
	Filter core.PaymentFilter
}

func (ListPaymentsMessage) Type() string { return TypeListPayments }

// Validate requires a reservation or a due date bound so a listing never
// scans every payment.
func (m ListPaymentsMessage) Validate() error {
	var problems fieldErrors
	if strings.TrimSpace(m.Filter.ReservationID) == "" && m.Filter.DueBefore == nil {
		problems.add("reservation_id", "reservation id or due_before is required")
	}
	if m.Filter.Stage != "" && !m.Filter.Stage.Valid() {
		problems.add("stage", "unknown payment stage")
	}
	for _, status := range m.Filter.Statuses {
		if !status.Valid() {
			problems.add("statuses", "unknown payment status "+string(status))
		}
	}
	if m.Filter.Limit < 0 {
		problems.add("limit", "limit must be >= 0")
	}
	return problems.err(TypeListPayments)
}

type TrackPaymentsMessage struct {
	ReservationID string
}

func (TrackPaymentsMessage) Type() string { return TypeTrackPayments }

func (m TrackPaymentsMessage) Validate() error {
	var problems fieldErrors
	problems.require("reservation_id", m.ReservationID)
	return problems.err(TypeTrackPayments)
}

type ComputeBreakdownMessage struct {
	Request core.BreakdownRequest
}

func (ComputeBreakdownMessage) Type() string { return TypeComputeBreakdown }

func (m ComputeBreakdownMessage) Validate() error {
	var problems fieldErrors
	if len(m.Request.Services) == 0 && len(m.Request.Lines) == 0 {
		problems.add("services", "at least one service is required")
	}
	return problems.err(TypeComputeBreakdown)
}

type ComputeFinalMessage struct {
	ReservationID  string
	OverrideAmount *int64
}

func (ComputeFinalMessage) Type() string { return TypeComputeFinal }

func (m ComputeFinalMessage) Validate() error {
	var problems fieldErrors
	problems.require("reservation_id", m.ReservationID)
	if m.OverrideAmount != nil && *m.OverrideAmount < 0 {
		problems.add("override_amount", "override amount must not be negative")
	}
	return problems.err(TypeComputeFinal)
}

type ComputeRefundMessage struct {
	Request core.RefundRequest
}

func (ComputeRefundMessage) Type() string { return TypeComputeRefund }

func (m ComputeRefundMessage) Validate() error {
	var problems fieldErrors
	problems.require("payment_id", m.Request.PaymentID)
	return problems.err(TypeComputeRefund)
}

type GetRefundPolicyMessage struct {
	ShopID string
}

func (GetRefundPolicyMessage) Type() string { return TypeGetRefundPolicy }

func (m GetRefundPolicyMessage) Validate() error {
	var problems fieldErrors
	problems.require("shop_id", m.ShopID)
	return problems.err(TypeGetRefundPolicy)
}

type ListCatalogServicesMessage struct {
	ShopID string
}

func (ListCatalogServicesMessage) Type() string { return TypeListCatalogServices }

func (m ListCatalogServicesMessage) Validate() error {
	var problems fieldErrors
	problems.require("shop_id", m.ShopID)
	return problems.err(TypeListCatalogServices)
}
