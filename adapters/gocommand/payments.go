package gocommand

import (
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	payments "github.com/goliatone/go-payments"
	paymentscommand "github.com/goliatone/go-payments/command"
	"github.com/goliatone/go-payments/core"
	paymentsquery "github.com/goliatone/go-payments/query"
)

// Subscriptions groups the dispatcher subscriptions created for a facade.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, subscription := range s {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// RegisterFacade registers and subscribes every payments command and query
// of facade. Subscriptions made before a failure are released.
func RegisterFacade(
	adapter *RegistryAdapter,
	facade *payments.Facade,
	runnerOpts ...runner.Option,
) (Subscriptions, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if facade == nil {
		return nil, fmt.Errorf("gocommand: payments facade is required")
	}

	commands := facade.Commands()
	queries := facade.Queries()
	subs := Subscriptions{}
	steps := []func() (commanddispatcher.Subscription, error){
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[paymentscommand.ExecuteTransitionMessage](adapter, commands.ExecuteTransition, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[paymentscommand.CreateCheckoutMessage](adapter, commands.CreateCheckout, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[paymentscommand.CreateFinalPaymentMessage](adapter, commands.CreateFinalPayment, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[paymentscommand.ApplyRefundMessage](adapter, commands.ApplyRefund, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[paymentscommand.SweepOverdueMessage](adapter, commands.SweepOverdue, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[paymentscommand.TransferDepositMessage](adapter, commands.TransferDeposit, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[paymentscommand.UpsertRefundPolicyMessage](adapter, commands.UpsertRefundPolicy, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[paymentscommand.CreateCatalogServiceMessage](adapter, commands.CreateCatalogService, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[paymentsquery.GetPaymentMessage, core.Payment](adapter, queries.GetPayment, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[paymentsquery.ListPaymentsMessage, []core.Payment](adapter, queries.ListPayments, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[paymentsquery.TrackPaymentsMessage, core.PartialPaymentStatus](adapter, queries.TrackPayments, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[paymentsquery.ComputeBreakdownMessage, core.AmountBreakdown](adapter, queries.ComputeBreakdown, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[paymentsquery.ComputeFinalMessage, core.FinalPaymentComputation](adapter, queries.ComputeFinal, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[paymentsquery.ComputeRefundMessage, core.RefundComputation](adapter, queries.ComputeRefund, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[paymentsquery.GetRefundPolicyMessage, core.RefundPolicy](adapter, queries.GetRefundPolicy, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[paymentsquery.ListCatalogServicesMessage, []core.CatalogService](adapter, queries.ListCatalogServices, runnerOpts...)
		},
	}
	for _, step := range steps {
		subscription, err := step()
		if err != nil {
			subs.Unsubscribe()
			return nil, err
		}
		subs = append(subs, subscription)
	}
	return subs, nil
}
