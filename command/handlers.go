package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-payments/core"
)

// MutatingService is the write side of the payment engine.
type MutatingService interface {
	ExecuteTransition(ctx context.Context, req core.ExecuteRequest) (core.TransitionResult, error)
	CreateCheckoutPayment(ctx context.Context, req core.CheckoutRequest) (core.CheckoutResult, error)
	CreateFinalPayment(ctx context.Context, req core.FinalPaymentRequest) (core.FinalPaymentResult, error)
	ApplyRefund(ctx context.Context, req core.ApplyRefundRequest) (core.ApplyRefundResult, error)
	SweepOverdue(ctx context.Context, req core.SweepRequest) (core.SweepResult, error)
	TransferDeposit(ctx context.Context, req core.TransferDepositRequest) (core.TransferDepositResult, error)
}

type RefundPolicyWriter interface {
	UpsertRefundPolicy(ctx context.Context, policy core.RefundPolicy) (core.RefundPolicy, error)
}

type CatalogWriter interface {
	CreateService(ctx context.Context, service core.CatalogService) (core.CatalogService, error)
}

type ExecuteTransitionCommand struct {
	service MutatingService
}

func NewExecuteTransitionCommand(service MutatingService) *ExecuteTransitionCommand {
	return &ExecuteTransitionCommand{service: service}
}

func (c *ExecuteTransitionCommand) Execute(ctx context.Context, msg ExecuteTransitionMessage) error {
	if c == nil || c.service == nil {
		return missingDependency("transition service")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.ExecuteTransition(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CreateCheckoutCommand struct {
	service MutatingService
}

func NewCreateCheckoutCommand(service MutatingService) *CreateCheckoutCommand {
	return &CreateCheckoutCommand{service: service}
}

func (c *CreateCheckoutCommand) Execute(ctx context.Context, msg CreateCheckoutMessage) error {
	if c == nil || c.service == nil {
		return missingDependency("checkout service")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.CreateCheckoutPayment(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CreateFinalPaymentCommand struct {
	service MutatingService
}

func NewCreateFinalPaymentCommand(service MutatingService) *CreateFinalPaymentCommand {
	return &CreateFinalPaymentCommand{service: service}
}

func (c *CreateFinalPaymentCommand) Execute(ctx context.Context, msg CreateFinalPaymentMessage) error {
	if c == nil || c.service == nil {
		return missingDependency("final payment service")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.CreateFinalPayment(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ApplyRefundCommand struct {
	service MutatingService
}

func NewApplyRefundCommand(service MutatingService) *ApplyRefundCommand {
	return &ApplyRefundCommand{service: service}
}

func (c *ApplyRefundCommand) Execute(ctx context.Context, msg ApplyRefundMessage) error {
	if c == nil || c.service == nil {
		return missingDependency("refund service")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.ApplyRefund(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SweepOverdueCommand struct {
	service MutatingService
}

func NewSweepOverdueCommand(service MutatingService) *SweepOverdueCommand {
	return &SweepOverdueCommand{service: service}
}

func (c *SweepOverdueCommand) Execute(ctx context.Context, msg SweepOverdueMessage) error {
	if c == nil || c.service == nil {
		return missingDependency("sweep service")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.SweepOverdue(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type TransferDepositCommand struct {
	service MutatingService
}

func NewTransferDepositCommand(service MutatingService) *TransferDepositCommand {
	return &TransferDepositCommand{service: service}
}

func (c *TransferDepositCommand) Execute(ctx context.Context, msg TransferDepositMessage) error {
	if c == nil || c.service == nil {
		return missingDependency("transfer service")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.TransferDeposit(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpsertRefundPolicyCommand struct {
	writer RefundPolicyWriter
}

func NewUpsertRefundPolicyCommand(writer RefundPolicyWriter) *UpsertRefundPolicyCommand {
	return &UpsertRefundPolicyCommand{writer: writer}
}

func (c *UpsertRefundPolicyCommand) Execute(ctx context.Context, msg UpsertRefundPolicyMessage) error {
	if c == nil || c.writer == nil {
		return missingDependency("refund policy writer")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.writer.UpsertRefundPolicy(ctx, msg.Policy)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CreateCatalogServiceCommand struct {
	writer CatalogWriter
}

func NewCreateCatalogServiceCommand(writer CatalogWriter) *CreateCatalogServiceCommand {
	return &CreateCatalogServiceCommand{writer: writer}
}

func (c *CreateCatalogServiceCommand) Execute(ctx context.Context, msg CreateCatalogServiceMessage) error {
	if c == nil || c.writer == nil {
		return missingDependency("catalog writer")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.writer.CreateService(ctx, msg.Service)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
