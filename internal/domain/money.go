package domain

import "math"

// LineTaxCents computes the tax for a single sale line. Tax is assessed
// per line against the line subtotal, rounded half-up to the nearest cent.
func LineTaxCents(lineSubtotalCents int64, taxRatePercent float64) int64 {
	if lineSubtotalCents <= 0 || taxRatePercent <= 0 {
		return 0
	}
	return int64(math.Round(float64(lineSubtotalCents) * taxRatePercent / 100))
}

// SaleTotalCents applies the discount after tax and clamps at zero so an
// oversized discount can never produce a negative amount due.
func SaleTotalCents(subtotalCents, taxCents, discountCents int64) int64 {
	total := subtotalCents + taxCents - discountCents
	if total < 0 {
		return 0
	}
	return total
}
