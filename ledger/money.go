package ledger

import "github.com/shopspring/decimal"

// Money is stored as integer cents.
const centsExp = -2

var (
	hundred     = decimal.NewFromInt(100)
	depositRate = decimal.NewFromInt(25).Div(hundred)
)

// FromCents converts a stored cent amount to a decimal.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, centsExp)
}

// ToCents converts a decimal to cents. Callers validate precision first;
// anything below a cent is truncated.
func ToCents(d decimal.Decimal) int64 {
	return d.Mul(hundred).IntPart()
}

// isWholeCents reports whether d has at most two fractional digits.
func isWholeCents(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(2))
}
