package aarch64

import "math"

// decomposeU32 splits a 32-bit value into its 16-bit MOVZ/MOVK elements,
// lowest first.
func decomposeU32(value uint32) [2]uint16 {
	return [2]uint16{uint16(value), uint16(value >> 16)}
}

// decomposeU64 splits a 64-bit value into its 16-bit MOVZ/MOVK elements,
// lowest first.
func decomposeU64(value uint64) [4]uint16 {
	return [4]uint16{
		uint16(value),
		uint16(value >> 16),
		uint16(value >> 32),
		uint16(value >> 48),
	}
}

// isFloatEncodable reports whether value can be encoded as an FMOV
// 8-bit immediate: ±(16..31)/16 * 2^e with e in [-3, 4].
func isFloatEncodable(value float64) bool {
	if value == 0.0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return false
	}

	mantissa := math.Abs(value)
	for exp := -3; exp <= 4; exp++ {
		scaled := mantissa / math.Pow(2, float64(exp)) * 16
		if scaled == math.Trunc(scaled) && scaled >= 16 && scaled <= 31 {
			return true
		}
	}
	return false
}
