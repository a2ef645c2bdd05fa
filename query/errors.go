package query

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-payments/core"
)

type fieldErrors []goerrors.FieldError

func (f *fieldErrors) add(field string, message string) {
	*f = append(*f, goerrors.FieldError{Field: field, Message: message})
}

func (f *fieldErrors) require(field string, value string) {
	if strings.TrimSpace(value) == "" {
		f.add(field, strings.ReplaceAll(field, "_", " ")+" is required")
	}
}

func (f fieldErrors) err(msgType string) error {
	if len(f) == 0 {
		return nil
	}
	return goerrors.NewValidation("query: invalid "+msgType, f...).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.PaymentErrorValidation).
		WithSeverity(goerrors.SeverityError).
		WithMetadata(map[string]any{"message_type": msgType})
}

func missingReader(name string) error {
	return goerrors.New("query: "+name+" is required", goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.PaymentErrorInternal).
		WithMetadata(map[string]any{"dependency": name})
}
