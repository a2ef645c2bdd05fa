package core

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestAmountCalculator_DefaultPercentageDeposit(t *testing.T) {
	calc := NewAmountCalculator(DefaultConfig().Deposit)

	breakdown, err := calc.ComputeBreakdown([]ServiceLine{
		{ServiceID: "svc_cut", UnitPrice: 80000, Quantity: 1},
	}, nil)
	if err != nil {
		t.Fatalf("compute breakdown: %v", err)
	}
	if breakdown.TotalDeposit != 20000 {
		t.Fatalf("expected deposit 20000, got %d", breakdown.TotalDeposit)
	}
	if breakdown.RemainingAmount != 60000 {
		t.Fatalf("expected remaining 60000, got %d", breakdown.RemainingAmount)
	}
	if got := breakdown.PerServiceBreakdown[0].DepositSource; got != DepositSourceDefault {
		t.Fatalf("expected default deposit source, got %q", got)
	}
}

func TestAmountCalculator_DepositPriorityClampAndCap(t *testing.T) {
	calc := NewAmountCalculator(DefaultConfig().Deposit)

	breakdown, err := calc.ComputeBreakdown([]ServiceLine{
		{ServiceID: "fixed", UnitPrice: 50000, Quantity: 2, DepositAmount: int64Ptr(15000)},
		{ServiceID: "percent", UnitPrice: 40000, Quantity: 1, DepositPercentage: float64Ptr(50)},
		{ServiceID: "min_clamp", UnitPrice: 20000, Quantity: 1},
		{ServiceID: "cheap", UnitPrice: 6000, Quantity: 1},
		{ServiceID: "max_clamp", UnitPrice: 1000000, Quantity: 1},
	}, nil)
	if err != nil {
		t.Fatalf("compute breakdown: %v", err)
	}

	want := map[string]struct {
		deposit int64
		source  DepositSource
	}{
		"fixed":     {30000, DepositSourceFixed},
		"percent":   {20000, DepositSourcePercentage},
		"min_clamp": {10000, DepositSourceDefault},
		"cheap":     {6000, DepositSourceDefault},
		"max_clamp": {100000, DepositSourceDefault},
	}
	var sum int64
	for _, line := range breakdown.PerServiceBreakdown {
		expected := want[line.ServiceID]
		if line.DepositAmount != expected.deposit || line.DepositSource != expected.source {
			t.Fatalf("line %s: expected %d/%s, got %d/%s",
				line.ServiceID, expected.deposit, expected.source, line.DepositAmount, line.DepositSource)
		}
		if line.DepositAmount > line.TotalPrice {
			t.Fatalf("line %s deposit exceeds its total", line.ServiceID)
		}
		sum += line.DepositAmount
	}
	if breakdown.TotalDeposit != sum {
		t.Fatalf("expected total deposit %d, got %d", sum, breakdown.TotalDeposit)
	}
	if breakdown.TotalDeposit+breakdown.RemainingAmount != breakdown.AmountAfterDiscounts {
		t.Fatalf("deposit and remaining do not add up to the discounted amount")
	}
}

func TestAmountCalculator_DiscountsAndDepositCap(t *testing.T) {
	calc := NewAmountCalculator(DefaultConfig().Deposit)

	breakdown, err := calc.ComputeBreakdown([]ServiceLine{
		{ServiceID: "svc", UnitPrice: 100000, Quantity: 1, DepositPercentage: float64Ptr(90)},
	}, []Discount{
		{ID: "welcome", Type: DiscountTypePercentage, Value: 10},
		{ID: "coupon", Type: DiscountTypeFixed, Amount: 5000},
	})
	if err != nil {
		t.Fatalf("compute breakdown: %v", err)
	}
	if breakdown.TotalDiscounts != 15000 {
		t.Fatalf("expected discounts 15000, got %d", breakdown.TotalDiscounts)
	}
	if breakdown.AmountAfterDiscounts != 85000 {
		t.Fatalf("expected 85000 after discounts, got %d", breakdown.AmountAfterDiscounts)
	}
	if breakdown.TotalDeposit != 85000 || breakdown.RemainingAmount != 0 {
		t.Fatalf("expected deposit capped at 85000, got %d remaining %d", breakdown.TotalDeposit, breakdown.RemainingAmount)
	}

	over, err := calc.ComputeBreakdown([]ServiceLine{{ServiceID: "svc", UnitPrice: 1000, Quantity: 1}},
		[]Discount{{Type: DiscountTypeFixed, Amount: 5000}})
	if err != nil {
		t.Fatalf("compute breakdown: %v", err)
	}
	if over.AmountAfterDiscounts != 0 || over.TotalDeposit != 0 {
		t.Fatalf("expected discounts to floor at zero, got %+v", over)
	}
}

func TestAmountCalculator_RejectsInvalidInput(t *testing.T) {
	calc := NewAmountCalculator(DefaultConfig().Deposit)

	cases := map[string]struct {
		lines     []ServiceLine
		discounts []Discount
	}{
		"zero quantity": {lines: []ServiceLine{{ServiceID: "a", UnitPrice: 100, Quantity: 0}}},
		"both deposits": {lines: []ServiceLine{{
			ServiceID: "a", UnitPrice: 100, Quantity: 1,
			DepositAmount: int64Ptr(10), DepositPercentage: float64Ptr(10),
		}}},
		"percentage over 100": {
			lines:     []ServiceLine{{ServiceID: "a", UnitPrice: 100, Quantity: 1}},
			discounts: []Discount{{Type: DiscountTypePercentage, Value: 120}},
		},
		"unknown discount": {
			lines:     []ServiceLine{{ServiceID: "a", UnitPrice: 100, Quantity: 1}},
			discounts: []Discount{{Type: "voucher", Value: 1}},
		},
		"negative fixed discount": {
			lines:     []ServiceLine{{ServiceID: "a", UnitPrice: 100, Quantity: 1}},
			discounts: []Discount{{Type: DiscountTypeFixed, Amount: -1}},
		},
		"fixed discount given as value": {
			lines:     []ServiceLine{{ServiceID: "a", UnitPrice: 100, Quantity: 1}},
			discounts: []Discount{{Type: DiscountTypeFixed, Value: 50}},
		},
		"percentage discount given as amount": {
			lines:     []ServiceLine{{ServiceID: "a", UnitPrice: 100, Quantity: 1}},
			discounts: []Discount{{Type: DiscountTypePercentage, Amount: 50}},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := calc.ComputeBreakdown(tc.lines, tc.discounts)
			if !IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if mapped := MapError(err); mapped.TextCode != PaymentErrorValidation {
				t.Fatalf("expected %s, got %q", PaymentErrorValidation, mapped.TextCode)
			}
		})
	}
}

func TestAmountCalculator_RejectsAmountOverflow(t *testing.T) {
	calc := NewAmountCalculator(DefaultConfig().Deposit)

	cases := map[string]struct {
		lines     []ServiceLine
		discounts []Discount
		field     string
	}{
		"line total": {
			lines: []ServiceLine{{ServiceID: "a", UnitPrice: math.MaxInt64/2 + 1, Quantity: 2}},
			field: "services[0]",
		},
		"fixed deposit": {
			lines: []ServiceLine{{
				ServiceID: "a", UnitPrice: 1, Quantity: 2,
				DepositAmount: int64Ptr(math.MaxInt64/2 + 1),
			}},
			field: "services[0]",
		},
		"subtotal": {
			lines: []ServiceLine{
				{ServiceID: "a", UnitPrice: math.MaxInt64 - 10, Quantity: 1},
				{ServiceID: "b", UnitPrice: 20, Quantity: 1},
			},
			field: "services[1]",
		},
		"discount sum": {
			lines: []ServiceLine{{ServiceID: "a", UnitPrice: 100, Quantity: 1}},
			discounts: []Discount{
				{Type: DiscountTypeFixed, Amount: math.MaxInt64},
				{Type: DiscountTypeFixed, Amount: 1},
			},
			field: "discounts[1]",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := calc.ComputeBreakdown(tc.lines, tc.discounts)
			if !IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			var rich *goerrors.Error
			if !goerrors.As(err, &rich) {
				t.Fatalf("expected go-errors envelope, got %T", err)
			}
			fields := rich.AllValidationErrors()
			if len(fields) == 0 || fields[0].Field != tc.field {
				t.Fatalf("expected %s validation field, got %+v", tc.field, fields)
			}
		})
	}
}

func TestAmountCalculator_FixedDiscountUsesMinorUnits(t *testing.T) {
	calc := NewAmountCalculator(DefaultConfig().Deposit)

	breakdown, err := calc.ComputeBreakdown([]ServiceLine{{ServiceID: "a", UnitPrice: 10000, Quantity: 1}},
		[]Discount{{ID: "coupon", Type: DiscountTypeFixed, Amount: 1999}})
	if err != nil {
		t.Fatalf("compute breakdown: %v", err)
	}
	if breakdown.TotalDiscounts != 1999 || breakdown.AmountAfterDiscounts != 8001 {
		t.Fatalf("expected exact fixed discount, got %+v", breakdown)
	}
	if len(breakdown.Discounts) != 1 || breakdown.Discounts[0].Amount != 1999 {
		t.Fatalf("expected applied discount to carry the amount, got %+v", breakdown.Discounts)
	}
}

func TestAmountCalculator_IsDeterministic(t *testing.T) {
	calc := NewAmountCalculator(DefaultConfig().Deposit)
	lines := []ServiceLine{
		{ServiceID: "a", UnitPrice: 33333, Quantity: 3, DepositPercentage: float64Ptr(33.3)},
		{ServiceID: "b", UnitPrice: 12345, Quantity: 1},
	}
	discounts := []Discount{{Type: DiscountTypePercentage, Value: 7.5}}

	first, err := calc.ComputeBreakdown(lines, discounts)
	if err != nil {
		t.Fatalf("compute breakdown: %v", err)
	}
	second, err := calc.ComputeBreakdown(lines, discounts)
	if err != nil {
		t.Fatalf("compute breakdown: %v", err)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Fatalf("expected identical breakdowns:\n%s\n%s", a, b)
	}
}

func TestPercentOf_RoundsHalfAwayFromZero(t *testing.T) {
	if got := percentOf(10, 25); got != 3 {
		t.Fatalf("expected 2.5 to round to 3, got %d", got)
	}
	if got := percentOf(-10, 25); got != -3 {
		t.Fatalf("expected -2.5 to round to -3, got %d", got)
	}
	if got := percentOf(99999, 33.3); got != 33300 {
		t.Fatalf("expected 33300, got %d", got)
	}
	if got := ratioOf(1, 3); got != 0.3333 {
		t.Fatalf("expected 0.3333, got %v", got)
	}
}

func TestBuildLines_ResolvesCatalogServices(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.services["svc_color"] = CatalogService{ID: "svc_color", ShopID: "shop_1", Name: "Color", UnitPrice: 70000, DepositAmount: int64Ptr(20000)}

	lines, err := BuildLines(context.Background(), ledger, []ServiceRequest{{ServiceID: "svc_color", Quantity: 2}})
	if err != nil {
		t.Fatalf("build lines: %v", err)
	}
	if len(lines) != 1 || lines[0].UnitPrice != 70000 || lines[0].Quantity != 2 || *lines[0].DepositAmount != 20000 {
		t.Fatalf("unexpected lines: %+v", lines)
	}

	_, err = BuildLines(context.Background(), ledger, []ServiceRequest{{ServiceID: "missing", Quantity: 1}})
	if !IsNotFound(err) {
		t.Fatalf("expected not found for unknown service, got %v", err)
	}
}
