// Package indicator derives technical indicators from per-instrument price series.
//
// All indicators implement the Indicator interface, receiving prices and
// producing float64 values. Each update is O(1); no indicator rescans history.
package indicator

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA", "RSI").
	Name() string

	// Update feeds a new price and recalculates.
	Update(price float64)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}
