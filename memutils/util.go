package memutils

import (
	"math"
)

// Clamp returns value limited to the inclusive range [low, high]
func Clamp(value, low, high int) int {
	if value > high {
		value = high
	}
	if value < low {
		value = low
	}
	return value
}

// AddClamped adds a and b, saturating at math.MaxInt instead of overflowing. Negative operands are
// treated as zero, so the result is never smaller than the larger of the two clamped inputs.
func AddClamped(a, b int) int {
	if a < 0 {
		a = 0
	}
	if b < 0 {
		b = 0
	}
	if a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

// ClampRange narrows the half-open range [base+offset, base+offset+length) so that it lies within
// [low, high). base is the position offsets are measured from, and is normally equal to low. The
// returned start is never greater than the returned end.
func ClampRange(base, offset, length, low, high int) (start, end int) {
	start = Clamp(AddClamped(base, offset), low, high)
	end = Clamp(AddClamped(AddClamped(base, offset), length), low, high)
	return start, end
}
