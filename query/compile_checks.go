package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-payments/core"
)

var (
	_ gocmd.Querier[GetPaymentMessage, core.Payment]                   = (*GetPaymentQuery)(nil)
	_ gocmd.Querier[ListPaymentsMessage, []core.Payment]               = (*ListPaymentsQuery)(nil)
	_ gocmd.Querier[TrackPaymentsMessage, core.PartialPaymentStatus]   = (*TrackPaymentsQuery)(nil)
	_ gocmd.Querier[ComputeBreakdownMessage, core.AmountBreakdown]     = (*ComputeBreakdownQuery)(nil)
	_ gocmd.Querier[ComputeFinalMessage, core.FinalPaymentComputation] = (*ComputeFinalQuery)(nil)
	_ gocmd.Querier[ComputeRefundMessage, core.RefundComputation]      = (*ComputeRefundQuery)(nil)
	_ gocmd.Querier[GetRefundPolicyMessage, core.RefundPolicy]         = (*GetRefundPolicyQuery)(nil)
	_ gocmd.Querier[ListCatalogServicesMessage, []core.CatalogService] = (*ListCatalogServicesQuery)(nil)
)
