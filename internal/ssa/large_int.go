package ssa

import "strconv"

// LargeInt is an integer immediate as a sign plus a 64-bit magnitude, so
// that both int64 and uint64 values survive lowering unchanged.
type LargeInt struct {
	Negative  bool
	Magnitude uint64
}

func NewLargeInt(value int64) LargeInt {
	if value < 0 {
		return LargeInt{Negative: true, Magnitude: uint64(-value)}
	}
	return LargeInt{Magnitude: uint64(value)}
}

func NewLargeIntU(value uint64) LargeInt {
	return LargeInt{Magnitude: value}
}

// ToBits returns the two's-complement 64-bit pattern of the value.
func (i LargeInt) ToBits() uint64 {
	if i.Negative {
		return -i.Magnitude
	}
	return i.Magnitude
}

// Int64 returns the value as a signed integer. The caller is responsible
// for knowing that the value fits.
func (i LargeInt) Int64() int64 {
	return int64(i.ToBits())
}

func (i LargeInt) EqualsInt(value int64) bool {
	return i == NewLargeInt(value)
}

// String implements fmt.Stringer.
func (i LargeInt) String() string {
	if i.Negative {
		return "-" + strconv.FormatUint(i.Magnitude, 10)
	}
	return strconv.FormatUint(i.Magnitude, 10)
}
