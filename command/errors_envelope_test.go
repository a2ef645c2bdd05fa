package command

import (
	"context"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-payments/core"
)

func TestExecuteTransitionMessage_ValidateReturnsRichError(t *testing.T) {
	err := (ExecuteTransitionMessage{}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.PaymentErrorValidation {
		t.Fatalf("expected %q text code, got %q", core.PaymentErrorValidation, rich.TextCode)
	}
	if rich.Code != http.StatusBadRequest {
		t.Fatalf("expected %d code, got %d", http.StatusBadRequest, rich.Code)
	}
	validation := rich.AllValidationErrors()
	if len(validation) == 0 || validation[0].Field != "payment_id" {
		t.Fatalf("expected payment_id validation field, got %+v", validation)
	}
}

func TestUpsertRefundPolicyMessage_WrapsDomainValidation(t *testing.T) {
	err := (UpsertRefundPolicyMessage{Policy: core.RefundPolicy{ShopID: "shop_1", Percentage: 150}}).Validate()
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation || rich.TextCode != core.PaymentErrorValidation {
		t.Fatalf("unexpected envelope: %+v", rich)
	}
}

func TestExecuteTransitionCommand_NilServiceReturnsRichError(t *testing.T) {
	var cmd *ExecuteTransitionCommand
	err := cmd.Execute(context.Background(), ExecuteTransitionMessage{})
	if err == nil {
		t.Fatalf("expected command dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
	if rich.TextCode != core.PaymentErrorInternal {
		t.Fatalf("expected %q text code, got %q", core.PaymentErrorInternal, rich.TextCode)
	}
}

func TestCreateCheckoutMessage_ReportsEveryInvalidField(t *testing.T) {
	err := (CreateCheckoutMessage{Request: core.CheckoutRequest{
		Services: []core.ServiceRequest{{ServiceID: "", Quantity: 0}, {ServiceID: "svc_2", Quantity: 1}},
	}}).Validate()

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	fields := []string{}
	for _, fieldErr := range rich.AllValidationErrors() {
		fields = append(fields, fieldErr.Field)
	}
	want := []string{"shop_id", "services[0]", "services[0]"}
	if len(fields) != len(want) {
		t.Fatalf("expected fields %v, got %v", want, fields)
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Fatalf("expected fields %v, got %v", want, fields)
		}
	}
	if rich.Metadata["message_type"] != TypeCreateCheckout {
		t.Fatalf("expected message type metadata, got %v", rich.Metadata)
	}
}

func TestMissingDependency_NamesTheDependency(t *testing.T) {
	var cmd *ApplyRefundCommand
	err := cmd.Execute(context.Background(), ApplyRefundMessage{})

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Metadata["dependency"] != "refund service" {
		t.Fatalf("expected dependency metadata, got %v", rich.Metadata)
	}
}
