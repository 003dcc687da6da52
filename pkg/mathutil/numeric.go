// Package mathutil provides common numerical utility functions.
package mathutil

import (
	"math"
)

// Round rounds a value to the given number of decimals.
func Round(val float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(val*scale) / scale
}

// IsFinite reports whether val is neither infinite nor NaN.
func IsFinite(val float64) bool {
	return !math.IsInf(val, 0) && !math.IsNaN(val)
}

// WithinTolerance checks if two values are within a specified tolerance
func WithinTolerance(val1, val2, tolerance float64) bool {
	return math.Abs(val1-val2) <= tolerance
}

// Clamp limits val to the interval [lo, hi]. Infinite bounds are allowed.
func Clamp(val, lo, hi float64) float64 {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}

// IntervalDistance returns how far val lies outside [lo, hi], zero when inside.
func IntervalDistance(val, lo, hi float64) float64 {
	if val < lo {
		return lo - val
	}
	if val > hi {
		return val - hi
	}
	return 0
}

// Midpoint returns a finite point inside [lo, hi], preferring the middle of
// the interval and falling back to the finite bound (or zero) when one side is
// open.
func Midpoint(lo, hi float64) float64 {
	switch {
	case IsFinite(lo) && IsFinite(hi):
		return (lo + hi) / 2
	case IsFinite(lo):
		return math.Max(lo, 0)
	case IsFinite(hi):
		return math.Min(hi, 0)
	default:
		return 0
	}
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
