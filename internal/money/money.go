// Package money holds the decimal arithmetic used for booking and invoice
// amounts. Values stay unrounded between steps; Round is applied only when a
// figure is persisted.
package money

import (
	"errors"

	"github.com/shopspring/decimal"
)

// DefaultVATPercentage is used when a tenant has not configured a rate.
const DefaultVATPercentage = 15

// VATMethod records which derivation produced a VAT figure.
type VATMethod string

const (
	// VATInclusive extracts VAT from a gross amount.
	VATInclusive VATMethod = "INCLUSIVE"
	// VATAdditive adds VAT on top of a net amount.
	VATAdditive VATMethod = "ADDITIVE"
)

var (
	ErrNegativeAmount       = errors.New("money: amount must not be negative")
	ErrDiscountExceedsTotal = errors.New("money: discount exceeds total")
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Breakdown is a subtotal/VAT/total triple produced by one VAT method.
type Breakdown struct {
	Subtotal decimal.Decimal
	VAT      decimal.Decimal
	Total    decimal.Decimal
	Method   VATMethod
}

// Rounded returns the breakdown rounded for persistence. The total is kept
// exact when it was the input, and the subtotal absorbs the rounding so that
// Subtotal + VAT == Total after rounding.
func (b Breakdown) Rounded() Breakdown {
	total := Round(b.Total)
	vat := Round(b.VAT)
	return Breakdown{
		Subtotal: total.Sub(vat),
		VAT:      vat,
		Total:    total,
		Method:   b.Method,
	}
}

// Rate converts a percentage such as 15 into a fraction such as 0.15.
func Rate(percent decimal.Decimal) decimal.Decimal {
	return percent.Div(hundred)
}

// Round rounds half away from zero to two decimal places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ApplyDiscount returns total - discount.
func ApplyDiscount(total, discount decimal.Decimal) (decimal.Decimal, error) {
	if total.IsNegative() || discount.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}
	if discount.GreaterThan(total) {
		return decimal.Zero, ErrDiscountExceedsTotal
	}
	return total.Sub(discount), nil
}

// SplitInclusive treats total as VAT-inclusive: subtotal = total / (1 + rate)
// and vat = total - subtotal.
func SplitInclusive(total, ratePercent decimal.Decimal) Breakdown {
	divisor := one.Add(Rate(ratePercent))
	subtotal := total.DivRound(divisor, 16)
	return Breakdown{
		Subtotal: subtotal,
		VAT:      total.Sub(subtotal),
		Total:    total,
		Method:   VATInclusive,
	}
}

// AddVAT treats amount as net: vat = amount * rate and total = amount + vat.
func AddVAT(amount, ratePercent decimal.Decimal) Breakdown {
	vat := amount.Mul(Rate(ratePercent))
	return Breakdown{
		Subtotal: amount,
		VAT:      vat,
		Total:    amount.Add(vat),
		Method:   VATAdditive,
	}
}

// Sum adds the given amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
