package sqlstore

import (
	"time"

	"github.com/goliatone/go-payments/core"
)

func newReservationRecord(in core.Reservation, now time.Time) *reservationRecord {
	record := &reservationRecord{
		ID:            in.ID,
		ShopID:        in.ShopID,
		TotalPrice:    in.TotalPrice,
		DepositAmount: in.DepositAmount,
		Currency:      in.Currency,
		CreatedAt:     in.CreatedAt.UTC(),
		UpdatedAt:     in.UpdatedAt.UTC(),
	}
	if in.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if in.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}
	return record
}

func (r *reservationRecord) toDomain() core.Reservation {
	if r == nil {
		return core.Reservation{}
	}
	return core.Reservation{
		ID:            r.ID,
		ShopID:        r.ShopID,
		TotalPrice:    r.TotalPrice,
		DepositAmount: r.DepositAmount,
		Currency:      r.Currency,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

func newPaymentRecord(in core.Payment, now time.Time) *paymentRecord {
	record := &paymentRecord{
		ID:            in.ID,
		ReservationID: in.ReservationID,
		Amount:        in.Amount,
		Currency:      in.Currency,
		Stage:         string(in.Stage),
		Status:        string(in.Status),
		DueDate:       cloneTimePointer(in.DueDate),
		RefundAmount:  in.RefundAmount,
		Version:       0,
		PaidAt:        cloneTimePointer(in.PaidAt),
		Metadata:      copyAnyMap(in.Metadata),
		CreatedAt:     in.CreatedAt.UTC(),
		UpdatedAt:     in.UpdatedAt.UTC(),
	}
	if in.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = record.CreatedAt
	return record
}

func (r *paymentRecord) toDomain() core.Payment {
	if r == nil {
		return core.Payment{}
	}
	return core.Payment{
		ID:            r.ID,
		ReservationID: r.ReservationID,
		Amount:        r.Amount,
		Currency:      r.Currency,
		Stage:         core.PaymentStage(r.Stage),
		Status:        core.PaymentStatus(r.Status),
		DueDate:       cloneTimePointer(r.DueDate),
		RefundAmount:  r.RefundAmount,
		Version:       r.Version,
		PaidAt:        cloneTimePointer(r.PaidAt),
		Metadata:      copyAnyMap(r.Metadata),
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

func newRefundPolicyRecord(in core.RefundPolicy, now time.Time) *refundPolicyRecord {
	return &refundPolicyRecord{
		ShopID:          in.ShopID,
		Percentage:      in.Percentage,
		TimeLimitHours:  cloneIntPointer(in.TimeLimitHours),
		MaxRefundAmount: cloneInt64Pointer(in.MaxRefundAmount),
		IsActive:        in.IsActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (r *refundPolicyRecord) toDomain() core.RefundPolicy {
	if r == nil {
		return core.RefundPolicy{}
	}
	return core.RefundPolicy{
		ShopID:          r.ShopID,
		Percentage:      r.Percentage,
		TimeLimitHours:  cloneIntPointer(r.TimeLimitHours),
		MaxRefundAmount: cloneInt64Pointer(r.MaxRefundAmount),
		IsActive:        r.IsActive,
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

func newCatalogServiceRecord(in core.CatalogService, now time.Time) *catalogServiceRecord {
	return &catalogServiceRecord{
		ID:                in.ID,
		ShopID:            in.ShopID,
		Name:              in.Name,
		UnitPrice:         in.UnitPrice,
		DepositAmount:     cloneInt64Pointer(in.DepositAmount),
		DepositPercentage: cloneFloat64Pointer(in.DepositPercentage),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (r *catalogServiceRecord) toDomain() core.CatalogService {
	if r == nil {
		return core.CatalogService{}
	}
	return core.CatalogService{
		ID:                r.ID,
		ShopID:            r.ShopID,
		Name:              r.Name,
		UnitPrice:         r.UnitPrice,
		DepositAmount:     cloneInt64Pointer(r.DepositAmount),
		DepositPercentage: cloneFloat64Pointer(r.DepositPercentage),
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}

func cloneIntPointer(input *int) *int {
	if input == nil {
		return nil
	}
	value := *input
	return &value
}

func cloneInt64Pointer(input *int64) *int64 {
	if input == nil {
		return nil
	}
	value := *input
	return &value
}

func cloneFloat64Pointer(input *float64) *float64 {
	if input == nil {
		return nil
	}
	value := *input
	return &value
}
