package util

import "math"

func Max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func Min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	return Max(lo, Min(v, hi))
}

// RoundScore rounds a raw model score and clamps it to 0..100.
// ok is false for NaN and infinities.
func RoundScore(raw float64) (score int, ok bool) {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, false
	}
	return Clamp(int(math.Round(raw)), 0, 100), true
}
