package shared

import "github.com/shopspring/decimal"

const (
	// MoneyPlaces is the stored precision of monetary amounts.
	MoneyPlaces = 2
	// QuantityPlaces is the stored precision of quantities and unit costs.
	QuantityPlaces = 4
)

// FitsMoney reports whether d is representable with MoneyPlaces decimals.
func FitsMoney(d decimal.Decimal) bool {
	return d.Equal(d.Round(MoneyPlaces))
}

// FitsQuantity reports whether d is representable with QuantityPlaces decimals.
func FitsQuantity(d decimal.Decimal) bool {
	return d.Equal(d.Round(QuantityPlaces))
}

// Totals holds computed document totals.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals applies a flat tax rate to the sum of line amounts.
func ComputeTotals(lineTotals []decimal.Decimal, taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, amount := range lineTotals {
		subtotal = subtotal.Add(amount)
	}
	subtotal = subtotal.Round(MoneyPlaces)
	tax := subtotal.Mul(taxRate).Round(MoneyPlaces)
	return Totals{Subtotal: subtotal, Tax: tax, Total: subtotal.Add(tax)}
}
