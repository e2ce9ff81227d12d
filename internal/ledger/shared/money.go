package shared

import "math"

// BalanceTolerance is the maximum debit/credit drift accepted on a journal entry.
const BalanceTolerance = 0.01

// Round2 rounds a monetary amount to two decimal places.
func Round2(value float64) float64 {
	return math.Round(value*100) / 100
}

// AmountsEqual reports whether two monetary amounts match within BalanceTolerance.
func AmountsEqual(a, b float64) bool {
	return math.Abs(a-b) < BalanceTolerance
}
