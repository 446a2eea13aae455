// Package metrics computes the display-only derived values: the BPI
// performance index and the maximum-likelihood skill estimators. Nothing
// here is persisted.
package metrics

import (
	"errors"
	"math"
)

// ErrUnavailable is returned when a BPI cannot be computed (math domain
// violation or nonsense reference data). Callers must show "unavailable",
// never zero: zero is a valid BPI.
var ErrUnavailable = errors.New("metrics: bpi unavailable")

// DefaultExponent is the BPI exponent for charts without a tuned one.
const DefaultExponent = 1.175

// bpiFloor is the lowest reported BPI.
const bpiFloor = -15.0

// pgf rescales a score toward the theoretical ceiling: it grows without
// bound as x approaches max, so the exact-max case is special-cased to a
// finite value.
func pgf(x, max int) float64 {
	if x == max {
		return float64(max) * 0.8
	}
	ratio := float64(x) / float64(max)
	return 1 + (ratio-0.5)/(1-ratio)
}

// BPI computes the performance index of a personal score against the chart's
// world record and average. notes is the chart's note count (max score is
// twice that); pow is the chart's exponent, DefaultExponent if <= 0.
func BPI(worldRecord, average, notes, personal int, pow float64) (float64, error) {
	if pow <= 0 {
		pow = DefaultExponent
	}
	max := notes * 2
	if notes <= 0 || worldRecord <= 0 || average <= 0 ||
		personal < 0 || personal > max || worldRecord > max || average > max {
		return 0, ErrUnavailable
	}

	s := pgf(personal, max)
	k := pgf(average, max)
	z := pgf(worldRecord, max)
	if s <= 0 || k <= 0 || z <= 0 {
		return 0, ErrUnavailable
	}

	lnSK := math.Log(s / k)
	if lnSK == 0 {
		// personal == average: exactly par, no division needed.
		return 0, nil
	}
	lnZK := math.Log(z / k)
	if lnZK == 0 {
		return 0, ErrUnavailable
	}

	sign := 1.0
	if personal < average {
		sign = -1.0
	}
	val := sign * 100 * math.Pow(sign*lnSK/lnZK, pow)
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return 0, ErrUnavailable
	}

	val = math.Round(val*100) / 100
	if val < bpiFloor {
		val = bpiFloor
	}
	return val, nil
}
