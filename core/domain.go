package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrPaymentNotFound     = errors.New("core: payment not found")
	ErrReservationNotFound = errors.New("core: reservation not found")
	ErrServiceNotFound     = errors.New("core: catalog service not found")
	ErrRefundPolicyMissing = errors.New("core: refund policy not found")
	ErrVersionConflict     = errors.New("core: payment version conflict")
	ErrInvalidStage        = errors.New("core: invalid payment stage")
	ErrInvalidStatus       = errors.New("core: invalid payment status")
	ErrInvalidTransition   = errors.New("core: invalid payment status transition")
	ErrInvalidAmount       = errors.New("core: invalid amount")
	ErrSweepLocked         = errors.New("core: overdue sweep lock already held")
)

type PaymentStage string

const (
	PaymentStageDeposit PaymentStage = "deposit"
	PaymentStageFinal   PaymentStage = "final"
	PaymentStageSingle  PaymentStage = "single"
)

func (s PaymentStage) Valid() bool {
	switch s {
	case PaymentStageDeposit, PaymentStageFinal, PaymentStageSingle:
		return true
	default:
		return false
	}
}

func ParsePaymentStage(value string) (PaymentStage, error) {
	stage := PaymentStage(strings.TrimSpace(strings.ToLower(value)))
	if !stage.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStage, value)
	}
	return stage, nil
}

type PaymentStatus string

const (
	PaymentStatusPending              PaymentStatus = "pending"
	PaymentStatusDepositPaid          PaymentStatus = "deposit_paid"
	PaymentStatusDepositRefunded      PaymentStatus = "deposit_refunded"
	PaymentStatusFinalPaymentPending  PaymentStatus = "final_payment_pending"
	PaymentStatusFullyPaid            PaymentStatus = "fully_paid"
	PaymentStatusFinalPaymentRefunded PaymentStatus = "final_payment_refunded"
	PaymentStatusOverdue              PaymentStatus = "overdue"
	PaymentStatusFailed               PaymentStatus = "failed"
	PaymentStatusRefunded             PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded    PaymentStatus = "partially_refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending,
		PaymentStatusDepositPaid,
		PaymentStatusDepositRefunded,
		PaymentStatusFinalPaymentPending,
		PaymentStatusFullyPaid,
		PaymentStatusFinalPaymentRefunded,
		PaymentStatusOverdue,
		PaymentStatusFailed,
		PaymentStatusRefunded,
		PaymentStatusPartiallyRefunded:
		return true
	default:
		return false
	}
}

// IsRefund reports whether entering the status records a refund increment.
func (s PaymentStatus) IsRefund() bool {
	switch s {
	case PaymentStatusDepositRefunded,
		PaymentStatusFinalPaymentRefunded,
		PaymentStatusRefunded,
		PaymentStatusPartiallyRefunded:
		return true
	default:
		return false
	}
}

// IsPaid reports whether entering the status means money was received.
func (s PaymentStatus) IsPaid() bool {
	return s == PaymentStatusDepositPaid || s == PaymentStatusFullyPaid
}

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	status := PaymentStatus(strings.TrimSpace(strings.ToLower(value)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, value)
	}
	return status, nil
}

type Payment struct {
	ID            string
	ReservationID string
	Amount        int64
	Currency      string
	Stage         PaymentStage
	Status        PaymentStatus
	DueDate       *time.Time
	RefundAmount  int64
	Version       int64
	PaidAt        *time.Time
	Metadata      map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Refundable is the amount still available for refund.
func (p Payment) Refundable() int64 {
	remaining := p.Amount - p.RefundAmount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Net is the amount kept after refunds.
func (p Payment) Net() int64 {
	return p.Amount - p.RefundAmount
}

func (p Payment) Validate() error {
	if strings.TrimSpace(p.ReservationID) == "" {
		return fmt.Errorf("core: reservation id is required")
	}
	if p.Amount <= 0 {
		return fmt.Errorf("%w: payment amount must be positive", ErrInvalidAmount)
	}
	if p.RefundAmount < 0 || p.RefundAmount > p.Amount {
		return fmt.Errorf("%w: refund amount %d outside [0, %d]", ErrInvalidAmount, p.RefundAmount, p.Amount)
	}
	if !p.Stage.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStage, p.Stage)
	}
	if !p.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, p.Status)
	}
	return nil
}

// PaymentPatch is the write set of a single conditional update.
type PaymentPatch struct {
	Status       PaymentStatus
	DueDate      *time.Time
	ClearDueDate bool
	PaidAt       *time.Time
	RefundAmount *int64
	UpdatedAt    time.Time
}

type PaymentFilter struct {
	ReservationID string
	Stage         PaymentStage
	Statuses      []PaymentStatus
	DueBefore     *time.Time
	Limit         int
}

type Reservation struct {
	ID            string
	ShopID        string
	TotalPrice    int64
	DepositAmount int64
	Currency      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (r Reservation) Validate() error {
	if strings.TrimSpace(r.ShopID) == "" {
		return fmt.Errorf("core: reservation shop id is required")
	}
	if r.TotalPrice < 0 {
		return fmt.Errorf("%w: reservation total must not be negative", ErrInvalidAmount)
	}
	if r.DepositAmount < 0 || r.DepositAmount > r.TotalPrice {
		return fmt.Errorf("%w: deposit %d outside [0, %d]", ErrInvalidAmount, r.DepositAmount, r.TotalPrice)
	}
	return nil
}

// ReservationPaymentSummary aggregates every payment row of a reservation.
type ReservationPaymentSummary struct {
	ReservationID string
	TotalPrice    int64
	Collected     int64
	Refunded      int64
	PaymentCount  int
}

type CatalogService struct {
	ID                string
	ShopID            string
	Name              string
	UnitPrice         int64
	DepositAmount     *int64
	DepositPercentage *float64
}

func (s CatalogService) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("core: catalog service id is required")
	}
	if s.UnitPrice < 0 {
		return fmt.Errorf("%w: unit price must not be negative", ErrInvalidAmount)
	}
	if s.DepositAmount != nil && s.DepositPercentage != nil {
		return fmt.Errorf("core: catalog service %q sets both deposit amount and deposit percentage", s.ID)
	}
	if s.DepositAmount != nil && *s.DepositAmount < 0 {
		return fmt.Errorf("%w: deposit amount must not be negative", ErrInvalidAmount)
	}
	if s.DepositPercentage != nil && (*s.DepositPercentage < 0 || *s.DepositPercentage > 100) {
		return fmt.Errorf("core: deposit percentage must be within 0-100")
	}
	return nil
}

type RefundPolicy struct {
	ShopID          string
	Percentage      float64
	TimeLimitHours  *int
	MaxRefundAmount *int64
	IsActive        bool
	UpdatedAt       time.Time
}

func (p RefundPolicy) Validate() error {
	if p.Percentage < 0 || p.Percentage > 100 {
		return fmt.Errorf("core: refund percentage must be within 0-100")
	}
	if p.TimeLimitHours != nil && *p.TimeLimitHours < 0 {
		return fmt.Errorf("core: refund time limit must not be negative")
	}
	if p.MaxRefundAmount != nil && *p.MaxRefundAmount < 0 {
		return fmt.Errorf("%w: max refund amount must not be negative", ErrInvalidAmount)
	}
	return nil
}

type DiscountType string

const (
	DiscountTypeFixed      DiscountType = "fixed"
	DiscountTypePercentage DiscountType = "percentage"
)

// Discount is either a fixed Amount in minor units or a percentage Value of
// the subtotal, depending on Type.
type Discount struct {
	ID     string
	Type   DiscountType
	Amount int64
	Value  float64
}

type ServiceLine struct {
	ServiceID         string
	Name              string
	UnitPrice         int64
	Quantity          int
	DepositAmount     *int64
	DepositPercentage *float64
}

type ServiceRequest struct {
	ServiceID string
	Quantity  int
}

// PaymentTransitionedEvent is published after a transition commits.
type PaymentTransitionedEvent struct {
	PaymentID     string
	ReservationID string
	Stage         PaymentStage
	From          PaymentStatus
	To            PaymentStatus
	Amount        int64
	RefundAmount  int64
	Version       int64
	OccurredAt    time.Time
}

func cloneTime(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	value := in.UTC()
	return &value
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
