package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-payments/core"
)

const (
	TypeExecuteTransition    = "payments.command.transition.execute"
	TypeCreateCheckout       = "payments.command.checkout.create"
	TypeCreateFinalPayment   = "payments.command.final_payment.create"
	TypeApplyRefund          = "payments.command.refund.apply"
	TypeSweepOverdue         = "payments.command.overdue.sweep"
	TypeTransferDeposit      = "payments.command.deposit.transfer"
	TypeUpsertRefundPolicy   = "payments.command.refund_policy.upsert"
	TypeCreateCatalogService = "payments.command.catalog_service.create"
)

type ExecuteTransitionMessage struct {
	Request core.ExecuteRequest
}

func (ExecuteTransitionMessage) Type() string { return TypeExecuteTransition }

func (m ExecuteTransitionMessage) Validate() error {
	var problems fieldErrors
	problems.require("payment_id", m.Request.PaymentID)
	if _, err := core.ParsePaymentStatus(string(m.Request.Target)); err != nil {
		problems.add("target", err.Error())
	}
	if m.Request.Stage != "" && !m.Request.Stage.Valid() {
		problems.add("stage", "unknown payment stage")
	}
	return problems.err(TypeExecuteTransition)
}

type CreateCheckoutMessage struct {
	Request core.CheckoutRequest
}

func (CreateCheckoutMessage) Type() string { return TypeCreateCheckout }

func (m CreateCheckoutMessage) Validate() error {
	var problems fieldErrors
	problems.require("shop_id", m.Request.ShopID)
	if len(m.Request.Services) == 0 && len(m.Request.Lines) == 0 {
		problems.add("services", "at least one service is required")
	}
	for i, service := range m.Request.Services {
		field := fmt.Sprintf("services[%d]", i)
		if strings.TrimSpace(service.ServiceID) == "" {
			problems.add(field, "service id is required")
		}
		if service.Quantity <= 0 {
			problems.add(field, "quantity must be positive")
		}
	}
	return problems.err(TypeCreateCheckout)
}

type CreateFinalPaymentMessage struct {
	Request core.FinalPaymentRequest
}

func (CreateFinalPaymentMessage) Type() string { return TypeCreateFinalPayment }

func (m CreateFinalPaymentMessage) Validate() error {
	var problems fieldErrors
	problems.require("reservation_id", m.Request.ReservationID)
	if m.Request.OverrideAmount != nil && *m.Request.OverrideAmount < 0 {
		problems.add("override_amount", "override amount must not be negative")
	}
	return problems.err(TypeCreateFinalPayment)
}

type ApplyRefundMessage struct {
	Request core.ApplyRefundRequest
}

func (ApplyRefundMessage) Type() string { return TypeApplyRefund }

func (m ApplyRefundMessage) Validate() error {
	var problems fieldErrors
	problems.require("payment_id", m.Request.PaymentID)
	if m.Request.RequestedAmount != nil && *m.Request.RequestedAmount <= 0 {
		problems.add("requested_amount", "requested amount must be positive")
	}
	if m.Request.Target != "" && !m.Request.Target.IsRefund() {
		problems.add("target", "target must be a refund status")
	}
	return problems.err(TypeApplyRefund)
}

type SweepOverdueMessage struct {
	Request core.SweepRequest
}

func (SweepOverdueMessage) Type() string { return TypeSweepOverdue }

func (m SweepOverdueMessage) Validate() error {
	var problems fieldErrors
	if m.Request.BatchSize < 0 {
		problems.add("batch_size", "batch size must not be negative")
	}
	return problems.err(TypeSweepOverdue)
}

type TransferDepositMessage struct {
	Request core.TransferDepositRequest
}

func (TransferDepositMessage) Type() string { return TypeTransferDeposit }

func (m TransferDepositMessage) Validate() error {
	var problems fieldErrors
	problems.require("source_payment_id", m.Request.SourcePaymentID)
	problems.require("target_reservation_id", m.Request.TargetReservationID)
	return problems.err(TypeTransferDeposit)
}

type UpsertRefundPolicyMessage struct {
	Policy core.RefundPolicy
}

func (UpsertRefundPolicyMessage) Type() string { return TypeUpsertRefundPolicy }

func (m UpsertRefundPolicyMessage) Validate() error {
	var problems fieldErrors
	problems.require("shop_id", m.Policy.ShopID)
	if err := problems.err(TypeUpsertRefundPolicy); err != nil {
		return err
	}
	return wrapDomainValidation(m.Policy.Validate(), TypeUpsertRefundPolicy)
}

type CreateCatalogServiceMessage struct {
	Service core.CatalogService
}

func (CreateCatalogServiceMessage) Type() string { return TypeCreateCatalogService }

func (m CreateCatalogServiceMessage) Validate() error {
	var problems fieldErrors
	problems.require("shop_id", m.Service.ShopID)
	problems.require("name", m.Service.Name)
	if err := problems.err(TypeCreateCatalogService); err != nil {
		return err
	}
	return wrapDomainValidation(m.Service.Validate(), TypeCreateCatalogService)
}
