package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[ExecuteTransitionMessage]    = (*ExecuteTransitionCommand)(nil)
	_ gocmd.Commander[CreateCheckoutMessage]       = (*CreateCheckoutCommand)(nil)
	_ gocmd.Commander[CreateFinalPaymentMessage]   = (*CreateFinalPaymentCommand)(nil)
	_ gocmd.Commander[ApplyRefundMessage]          = (*ApplyRefundCommand)(nil)
	_ gocmd.Commander[SweepOverdueMessage]         = (*SweepOverdueCommand)(nil)
	_ gocmd.Commander[TransferDepositMessage]      = (*TransferDepositCommand)(nil)
	_ gocmd.Commander[UpsertRefundPolicyMessage]   = (*UpsertRefundPolicyCommand)(nil)
	_ gocmd.Commander[CreateCatalogServiceMessage] = (*CreateCatalogServiceCommand)(nil)
)
