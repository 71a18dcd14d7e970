package portfolio

import "github.com/shopspring/decimal"

// StopLossBreached reports whether price has fallen below entry × (1 − pct).
// A non-positive pct disables the stop.
func StopLossBreached(price float64, entry decimal.Decimal, pct float64) bool {
	if pct <= 0 {
		return false
	}
	floor := entry.Mul(decimal.NewFromFloat(1 - pct))
	return decimal.NewFromFloat(price).LessThan(floor)
}
