package core

import (
	"context"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

type DepositSource string

const (
	DepositSourceFixed      DepositSource = "fixed"
	DepositSourcePercentage DepositSource = "percentage"
	DepositSourceDefault    DepositSource = "default"
)

type LineBreakdown struct {
	ServiceID       string        `json:"service_id"`
	Name            string        `json:"name,omitempty"`
	UnitPrice       int64         `json:"unit_price"`
	Quantity        int           `json:"quantity"`
	TotalPrice      int64         `json:"total_price"`
	DepositAmount   int64         `json:"deposit_amount"`
	DepositSource   DepositSource `json:"deposit_source"`
	RemainingAmount int64         `json:"remaining_amount"`
}

type AppliedDiscount struct {
	ID     string       `json:"id,omitempty"`
	Type   DiscountType `json:"type"`
	Value  float64      `json:"value"`
	Amount int64        `json:"amount"`
}

type AmountBreakdown struct {
	Subtotal             int64             `json:"subtotal"`
	TotalDiscounts       int64             `json:"total_discounts"`
	AmountAfterDiscounts int64             `json:"amount_after_discounts"`
	TotalDeposit         int64             `json:"total_deposit"`
	RemainingAmount      int64             `json:"remaining_amount"`
	PerServiceBreakdown  []LineBreakdown   `json:"per_service_breakdown"`
	Discounts            []AppliedDiscount `json:"discounts"`
}

// AmountCalculator sizes deposits and totals. It holds no state beyond its
// configuration, so the same input always yields the same breakdown.
type AmountCalculator struct {
	deposit DepositConfig
}

func NewAmountCalculator(cfg DepositConfig) AmountCalculator {
	return AmountCalculator{deposit: cfg}
}

func (c AmountCalculator) ComputeBreakdown(lines []ServiceLine, discounts []Discount) (AmountBreakdown, error) {
	out := AmountBreakdown{
		PerServiceBreakdown: make([]LineBreakdown, 0, len(lines)),
		Discounts:           make([]AppliedDiscount, 0, len(discounts)),
	}

	var depositSum int64
	for index, line := range lines {
		item, err := c.computeLine(line)
		if err != nil {
			return AmountBreakdown{}, newValidationError("invalid service line", goerrors.FieldError{
				Field:   fmt.Sprintf("services[%d]", index),
				Message: err.Error(),
			})
		}
		subtotal, okSubtotal := addAmount(out.Subtotal, item.TotalPrice)
		deposits, okDeposits := addAmount(depositSum, item.DepositAmount)
		if !okSubtotal || !okDeposits {
			return AmountBreakdown{}, newValidationError("invalid service line", goerrors.FieldError{
				Field:   fmt.Sprintf("services[%d]", index),
				Message: "subtotal exceeds the representable amount",
			})
		}
		out.Subtotal, depositSum = subtotal, deposits
		out.PerServiceBreakdown = append(out.PerServiceBreakdown, item)
	}

	for index, discount := range discounts {
		amount, err := discountAmount(discount, out.Subtotal)
		if err != nil {
			return AmountBreakdown{}, newValidationError("invalid discount", goerrors.FieldError{
				Field:   fmt.Sprintf("discounts[%d]", index),
				Message: err.Error(),
			})
		}
		total, ok := addAmount(out.TotalDiscounts, amount)
		if !ok {
			return AmountBreakdown{}, newValidationError("invalid discount", goerrors.FieldError{
				Field:   fmt.Sprintf("discounts[%d]", index),
				Message: "discounts exceed the representable amount",
			})
		}
		out.TotalDiscounts = total
		out.Discounts = append(out.Discounts, AppliedDiscount{
			ID:     strings.TrimSpace(discount.ID),
			Type:   discount.Type,
			Value:  discount.Value,
			Amount: amount,
		})
	}

	out.AmountAfterDiscounts = max(0, out.Subtotal-out.TotalDiscounts)
	out.TotalDeposit = min(depositSum, out.AmountAfterDiscounts)
	out.RemainingAmount = out.AmountAfterDiscounts - out.TotalDeposit
	return out, nil
}

func (c AmountCalculator) computeLine(line ServiceLine) (LineBreakdown, error) {
	if line.Quantity <= 0 {
		return LineBreakdown{}, fmt.Errorf("quantity must be positive")
	}
	if line.UnitPrice < 0 {
		return LineBreakdown{}, fmt.Errorf("unit price must not be negative")
	}
	if line.DepositAmount != nil && line.DepositPercentage != nil {
		return LineBreakdown{}, fmt.Errorf("deposit amount and deposit percentage are mutually exclusive")
	}

	total, ok := mulAmount(line.UnitPrice, int64(line.Quantity))
	if !ok {
		return LineBreakdown{}, fmt.Errorf("unit price times quantity exceeds the representable amount")
	}
	var deposit int64
	source := DepositSourceDefault
	switch {
	case line.DepositAmount != nil:
		if *line.DepositAmount < 0 {
			return LineBreakdown{}, fmt.Errorf("deposit amount must not be negative")
		}
		if deposit, ok = mulAmount(*line.DepositAmount, int64(line.Quantity)); !ok {
			return LineBreakdown{}, fmt.Errorf("deposit amount times quantity exceeds the representable amount")
		}
		source = DepositSourceFixed
	case line.DepositPercentage != nil:
		if *line.DepositPercentage < 0 || *line.DepositPercentage > 100 {
			return LineBreakdown{}, fmt.Errorf("deposit percentage must be within 0-100")
		}
		deposit = percentOf(total, *line.DepositPercentage)
		source = DepositSourcePercentage
	default:
		deposit = percentOf(total, c.deposit.DefaultPercentage)
	}
	deposit = min(clampAmount(deposit, c.deposit.MinAmount, c.deposit.MaxAmount), total)

	return LineBreakdown{
		ServiceID:       strings.TrimSpace(line.ServiceID),
		Name:            strings.TrimSpace(line.Name),
		UnitPrice:       line.UnitPrice,
		Quantity:        line.Quantity,
		TotalPrice:      total,
		DepositAmount:   deposit,
		DepositSource:   source,
		RemainingAmount: total - deposit,
	}, nil
}

// discountAmount resolves a discount in minor units. Fixed discounts carry
// Amount; percentage discounts carry Value.
func discountAmount(discount Discount, subtotal int64) (int64, error) {
	switch discount.Type {
	case DiscountTypeFixed:
		if discount.Value != 0 {
			return 0, fmt.Errorf("fixed discounts take amount, not value")
		}
		if discount.Amount < 0 {
			return 0, fmt.Errorf("discount amount must not be negative")
		}
		return discount.Amount, nil
	case DiscountTypePercentage:
		if discount.Amount != 0 {
			return 0, fmt.Errorf("percentage discounts take value, not amount")
		}
		if discount.Value < 0 || discount.Value > 100 {
			return 0, fmt.Errorf("discount percentage must be within 0-100")
		}
		return percentOf(subtotal, discount.Value), nil
	default:
		return 0, fmt.Errorf("unknown discount type %q", discount.Type)
	}
}

// BuildLines resolves catalog services into priced lines.
func BuildLines(ctx context.Context, catalog CatalogProvider, requests []ServiceRequest) ([]ServiceLine, error) {
	if catalog == nil {
		return nil, fmt.Errorf("core: catalog provider is required")
	}
	lines := make([]ServiceLine, 0, len(requests))
	for _, req := range requests {
		serviceID := strings.TrimSpace(req.ServiceID)
		if serviceID == "" {
			return nil, newValidationError("service id is required", goerrors.FieldError{
				Field:   "service_id",
				Message: "required",
			})
		}
		service, err := catalog.GetService(ctx, serviceID)
		if err != nil {
			return nil, err
		}
		if err := service.Validate(); err != nil {
			return nil, newValidationError(err.Error())
		}
		lines = append(lines, ServiceLine{
			ServiceID:         service.ID,
			Name:              service.Name,
			UnitPrice:         service.UnitPrice,
			Quantity:          req.Quantity,
			DepositAmount:     service.DepositAmount,
			DepositPercentage: service.DepositPercentage,
		})
	}
	return lines, nil
}
