package aarch64

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecomposeU32(t *testing.T) {
	require.Equal(t, [2]uint16{0x5678, 0x1234}, decomposeU32(0x12345678))
	require.Equal(t, [2]uint16{42, 0}, decomposeU32(42))
}

func TestDecomposeU64(t *testing.T) {
	require.Equal(t,
		[4]uint16{0xdef0, 0x9abc, 0x5678, 0x1234},
		decomposeU64(0x123456789abcdef0))
}

func TestIsFloatEncodable(t *testing.T) {
	require.True(t, isFloatEncodable(1.0))
	require.True(t, isFloatEncodable(-1.0))
	require.True(t, isFloatEncodable(0.5))
	require.True(t, isFloatEncodable(2.5))

	require.False(t, isFloatEncodable(0.0))
	require.False(t, isFloatEncodable(0.1))
	require.False(t, isFloatEncodable(1234.5))
}

func TestIsAddrOffsetEncodable(t *testing.T) {
	require.True(t, isAddrOffsetEncodable(0, 8))
	require.True(t, isAddrOffsetEncodable(8, 8))
	require.True(t, isAddrOffsetEncodable(32760, 8))

	// Not a multiple of the access size.
	require.False(t, isAddrOffsetEncodable(4, 8))
	// Negative offsets use a different encoding.
	require.False(t, isAddrOffsetEncodable(-8, 8))
	// Beyond the scaled 12-bit range.
	require.False(t, isAddrOffsetEncodable(4096*8, 8))
}
