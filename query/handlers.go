package query

import (
	"context"

	"github.com/goliatone/go-payments/core"
)

// CalculationService is the read side of the payment engine.
type CalculationService interface {
	ComputeBreakdown(ctx context.Context, req core.BreakdownRequest) (core.AmountBreakdown, error)
	ComputeFinal(ctx context.Context, reservationID string, override *int64) (core.FinalPaymentComputation, error)
	TrackPayments(ctx context.Context, reservationID string) (core.PartialPaymentStatus, error)
	ComputeRefund(ctx context.Context, req core.RefundRequest) (core.RefundComputation, error)
}

type PaymentReader interface {
	GetPayment(ctx context.Context, id string) (core.Payment, error)
	ListPayments(ctx context.Context, filter core.PaymentFilter) ([]core.Payment, error)
}

type CatalogReader interface {
	ListByShop(ctx context.Context, shopID string) ([]core.CatalogService, error)
}

type GetPaymentQuery struct {
	reader PaymentReader
}

func NewGetPaymentQuery(reader PaymentReader) *GetPaymentQuery {
	return &GetPaymentQuery{reader: reader}
}

func (q *GetPaymentQuery) Query(ctx context.Context, msg GetPaymentMessage) (core.Payment, error) {
	if q == nil || q.reader == nil {
		return core.Payment{}, missingReader("payment reader")
	}
	if err := msg.Validate(); err != nil {
		return core.Payment{}, err
	}
	return q.reader.GetPayment(ctx, msg.PaymentID)
}

type ListPaymentsQuery struct {
	reader PaymentReader
}

func NewListPaymentsQuery(reader PaymentReader) *ListPaymentsQuery {
	return &ListPaymentsQuery{reader: reader}
}

func (q *ListPaymentsQuery) Query(ctx context.Context, msg ListPaymentsMessage) ([]core.Payment, error) {
	if q == nil || q.reader == nil {
		return nil, missingReader("payment reader")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.reader.ListPayments(ctx, msg.Filter)
}

type TrackPaymentsQuery struct {
	service CalculationService
}

func NewTrackPaymentsQuery(service CalculationService) *TrackPaymentsQuery {
	return &TrackPaymentsQuery{service: service}
}

func (q *TrackPaymentsQuery) Query(ctx context.Context, msg TrackPaymentsMessage) (core.PartialPaymentStatus, error) {
	if q == nil || q.service == nil {
		return core.PartialPaymentStatus{}, missingReader("payment tracking service")
	}
	if err := msg.Validate(); err != nil {
		return core.PartialPaymentStatus{}, err
	}
	return q.service.TrackPayments(ctx, msg.ReservationID)
}

type ComputeBreakdownQuery struct {
	service CalculationService
}

func NewComputeBreakdownQuery(service CalculationService) *ComputeBreakdownQuery {
	return &ComputeBreakdownQuery{service: service}
}

func (q *ComputeBreakdownQuery) Query(ctx context.Context, msg ComputeBreakdownMessage) (core.AmountBreakdown, error) {
	if q == nil || q.service == nil {
		return core.AmountBreakdown{}, missingReader("breakdown service")
	}
	if err := msg.Validate(); err != nil {
		return core.AmountBreakdown{}, err
	}
	return q.service.ComputeBreakdown(ctx, msg.Request)
}

type ComputeFinalQuery struct {
	service CalculationService
}

func NewComputeFinalQuery(service CalculationService) *ComputeFinalQuery {
	return &ComputeFinalQuery{service: service}
}

func (q *ComputeFinalQuery) Query(ctx context.Context, msg ComputeFinalMessage) (core.FinalPaymentComputation, error) {
	if q == nil || q.service == nil {
		return core.FinalPaymentComputation{}, missingReader("settlement service")
	}
	if err := msg.Validate(); err != nil {
		return core.FinalPaymentComputation{}, err
	}
	return q.service.ComputeFinal(ctx, msg.ReservationID, msg.OverrideAmount)
}

type ComputeRefundQuery struct {
	service CalculationService
}

func NewComputeRefundQuery(service CalculationService) *ComputeRefundQuery {
	return &ComputeRefundQuery{service: service}
}

func (q *ComputeRefundQuery) Query(ctx context.Context, msg ComputeRefundMessage) (core.RefundComputation, error) {
	if q == nil || q.service == nil {
		return core.RefundComputation{}, missingReader("refund service")
	}
	if err := msg.Validate(); err != nil {
		return core.RefundComputation{}, err
	}
	return q.service.ComputeRefund(ctx, msg.Request)
}

type GetRefundPolicyQuery struct {
	reader core.RefundPolicyProvider
}

func NewGetRefundPolicyQuery(reader core.RefundPolicyProvider) *GetRefundPolicyQuery {
	return &GetRefundPolicyQuery{reader: reader}
}

func (q *GetRefundPolicyQuery) Query(ctx context.Context, msg GetRefundPolicyMessage) (core.RefundPolicy, error) {
	if q == nil || q.reader == nil {
		return core.RefundPolicy{}, missingReader("refund policy reader")
	}
	if err := msg.Validate(); err != nil {
		return core.RefundPolicy{}, err
	}
	return q.reader.GetRefundPolicy(ctx, msg.ShopID)
}

type ListCatalogServicesQuery struct {
	reader CatalogReader
}

func NewListCatalogServicesQuery(reader CatalogReader) *ListCatalogServicesQuery {
	return &ListCatalogServicesQuery{reader: reader}
}

func (q *ListCatalogServicesQuery) Query(ctx context.Context, msg ListCatalogServicesMessage) ([]core.CatalogService, error) {
	if q == nil || q.reader == nil {
		return nil, missingReader("catalog reader")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.reader.ListByShop(ctx, msg.ShopID)
}
