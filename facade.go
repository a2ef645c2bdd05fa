package payments

import (
	"fmt"
	"reflect"

	paymentscommand "github.com/goliatone/go-payments/command"
	"github.com/goliatone/go-payments/core"
	paymentsquery "github.com/goliatone/go-payments/query"
)

type CommandQueryService interface {
	paymentscommand.MutatingService
	paymentsquery.CalculationService
}

type Commands struct {
	ExecuteTransition    *paymentscommand.ExecuteTransitionCommand
	CreateCheckout       *paymentscommand.CreateCheckoutCommand
	CreateFinalPayment   *paymentscommand.CreateFinalPaymentCommand
	ApplyRefund          *paymentscommand.ApplyRefundCommand
	SweepOverdue         *paymentscommand.SweepOverdueCommand
	TransferDeposit      *paymentscommand.TransferDepositCommand
	UpsertRefundPolicy   *paymentscommand.UpsertRefundPolicyCommand
	CreateCatalogService *paymentscommand.CreateCatalogServiceCommand
}

type Queries struct {
	GetPayment          *paymentsquery.GetPaymentQuery
	ListPayments        *paymentsquery.ListPaymentsQuery
	TrackPayments       *paymentsquery.TrackPaymentsQuery
	ComputeBreakdown    *paymentsquery.ComputeBreakdownQuery
	ComputeFinal        *paymentsquery.ComputeFinalQuery
	ComputeRefund       *paymentsquery.ComputeRefundQuery
	GetRefundPolicy     *paymentsquery.GetRefundPolicyQuery
	ListCatalogServices *paymentsquery.ListCatalogServicesQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	paymentReader paymentsquery.PaymentReader
	policyReader  core.RefundPolicyProvider
	policyWriter  paymentscommand.RefundPolicyWriter
	catalogReader paymentsquery.CatalogReader
	catalogWriter paymentscommand.CatalogWriter
}

func WithPaymentReader(reader paymentsquery.PaymentReader) FacadeOption {
	return func(options *facadeOptions) {
		options.paymentReader = reader
	}
}

func WithRefundPolicyReader(reader core.RefundPolicyProvider) FacadeOption {
	return func(options *facadeOptions) {
		options.policyReader = reader
	}
}

func WithRefundPolicyWriter(writer paymentscommand.RefundPolicyWriter) FacadeOption {
	return func(options *facadeOptions) {
		options.policyWriter = writer
	}
}

func WithCatalogReader(reader paymentsquery.CatalogReader) FacadeOption {
	return func(options *facadeOptions) {
		options.catalogReader = reader
	}
}

func WithCatalogWriter(writer paymentscommand.CatalogWriter) FacadeOption {
	return func(options *facadeOptions) {
		options.catalogWriter = writer
	}
}

// NewFacade builds the command and query handlers of service. Readers and
// writers not passed as options are taken from the service dependencies and
// its repository factory when available.
func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("payments: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	resolveFacadeDependencies(service, &cfg)

	facade := &Facade{service: service}
	facade.commands = Commands{
		ExecuteTransition:    paymentscommand.NewExecuteTransitionCommand(service),
		CreateCheckout:       paymentscommand.NewCreateCheckoutCommand(service),
		CreateFinalPayment:   paymentscommand.NewCreateFinalPaymentCommand(service),
		ApplyRefund:          paymentscommand.NewApplyRefundCommand(service),
		SweepOverdue:         paymentscommand.NewSweepOverdueCommand(service),
		TransferDeposit:      paymentscommand.NewTransferDepositCommand(service),
		UpsertRefundPolicy:   paymentscommand.NewUpsertRefundPolicyCommand(cfg.policyWriter),
		CreateCatalogService: paymentscommand.NewCreateCatalogServiceCommand(cfg.catalogWriter),
	}
	facade.queries = Queries{
		GetPayment:          paymentsquery.NewGetPaymentQuery(cfg.paymentReader),
		ListPayments:        paymentsquery.NewListPaymentsQuery(cfg.paymentReader),
		TrackPayments:       paymentsquery.NewTrackPaymentsQuery(service),
		ComputeBreakdown:    paymentsquery.NewComputeBreakdownQuery(service),
		ComputeFinal:        paymentsquery.NewComputeFinalQuery(service),
		ComputeRefund:       paymentsquery.NewComputeRefundQuery(service),
		GetRefundPolicy:     paymentsquery.NewGetRefundPolicyQuery(cfg.policyReader),
		ListCatalogServices: paymentsquery.NewListCatalogServicesQuery(cfg.catalogReader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

func resolveFacadeDependencies(service CommandQueryService, cfg *facadeOptions) {
	provider, ok := service.(interface {
		Dependencies() core.ServiceDependencies
	})
	if !ok {
		return
	}
	deps := provider.Dependencies()
	if cfg.paymentReader == nil {
		if reader, ok := deps.PaymentStore.(paymentsquery.PaymentReader); ok {
			cfg.paymentReader = reader
		}
	}
	if cfg.policyReader == nil && deps.RefundPolicyProvider != nil {
		cfg.policyReader = deps.RefundPolicyProvider
	}
	if cfg.policyWriter == nil {
		if writer, ok := factoryComponent("RefundPolicyWriter", deps.RepositoryFactory).(paymentscommand.RefundPolicyWriter); ok {
			cfg.policyWriter = writer
		}
	}
	catalog := factoryComponent("CatalogStore", deps.RepositoryFactory)
	if cfg.catalogReader == nil {
		if reader, ok := catalog.(paymentsquery.CatalogReader); ok {
			cfg.catalogReader = reader
		}
	}
	if cfg.catalogWriter == nil {
		if writer, ok := catalog.(paymentscommand.CatalogWriter); ok {
			cfg.catalogWriter = writer
		}
	}
}

// factoryComponent calls the zero-argument accessor name on factory and
// returns its single result, or nil when the accessor is missing or panics.
func factoryComponent(name string, factory any) any {
	if factory == nil {
		return nil
	}
	factoryValue := reflect.ValueOf(factory)
	if !factoryValue.IsValid() {
		return nil
	}
	if factoryValue.Kind() == reflect.Ptr && factoryValue.IsNil() {
		return nil
	}
	method := factoryValue.MethodByName(name)
	if !method.IsValid() || method.Type().NumIn() != 0 || method.Type().NumOut() != 1 {
		return nil
	}

	results, ok := safeReflectCall(method)
	if !ok || len(results) != 1 {
		return nil
	}
	candidate := results[0]
	if !candidate.IsValid() {
		return nil
	}
	switch candidate.Kind() {
	case reflect.Ptr, reflect.Interface:
		if candidate.IsNil() {
			return nil
		}
	}
	return candidate.Interface()
}

func safeReflectCall(method reflect.Value) (_ []reflect.Value, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return method.Call(nil), true
}
