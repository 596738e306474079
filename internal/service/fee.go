package service

import "github.com/pkordes/homecare/internal/domain"

const bpsScale = 10_000

// FeeCalculator computes the chargeable amount for a visit at release time.
// It is pure: the same line items always yield the same amount, in any order.
type FeeCalculator struct {
	// TaxRateBps is the tax rate in basis points (1300 = 13%).
	TaxRateBps int64
}

// Subtotal is the base fee plus every line item fee, before tax.
func (c FeeCalculator) Subtotal(v domain.Visit) int64 {
	total := v.BaseFee
	for _, item := range v.Services {
		total += item.Fee
	}
	return total
}

// Amount returns round-half-up(subtotal * (1 + tax)) in the smallest currency
// unit. Integer arithmetic keeps the rounding exact.
func (c FeeCalculator) Amount(v domain.Visit) int64 {
	scaled := c.Subtotal(v) * (bpsScale + c.TaxRateBps)
	return (scaled + bpsScale/2) / bpsScale
}
