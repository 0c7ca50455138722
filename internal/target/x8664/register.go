package x8664

import (
	"strconv"

	"github.com/chnoblouch/banjo/internal/mcode"
)

// x86-64 registers. The general-purpose registers form one contiguous
// range, the SSE registers another; the analyzers rely on that.
const (
	RAX mcode.PhysicalReg = iota
	RDX
	RCX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15

	XMM0
	XMM1
	XMM2
	XMM3
	XMM4
	XMM5
	XMM6
	XMM7
	XMM8
	XMM9
	XMM10
	XMM11
	XMM12
	XMM13
	XMM14
	XMM15

	NumRegs
)

// PhysicalRegName renders reg at the given operand size (0 defaults to
// 4 bytes, matching the 32-bit operand default).
func PhysicalRegName(reg mcode.PhysicalReg, size int) string {
	if size == 0 {
		size = 4
	}

	switch reg {
	case RAX, RDX, RCX, RBX:
		var letter string
		switch reg {
		case RAX:
			letter = "a"
		case RDX:
			letter = "d"
		case RCX:
			letter = "c"
		case RBX:
			letter = "b"
		}

		switch size {
		case 1:
			return letter + "l"
		case 2:
			return letter + "x"
		case 4:
			return "e" + letter + "x"
		case 8:
			return "r" + letter + "x"
		}
	case RSP, RBP:
		letter := "s"
		if reg == RBP {
			letter = "b"
		}

		switch size {
		case 1:
			return letter + "pl"
		case 2:
			return letter + "p"
		case 4:
			return "e" + letter + "p"
		case 8:
			return "r" + letter + "p"
		}
	case RSI, RDI:
		letter := "s"
		if reg == RDI {
			letter = "d"
		}

		switch size {
		case 1:
			return letter + "il"
		case 2:
			return letter + "i"
		case 4:
			return "e" + letter + "i"
		case 8:
			return "r" + letter + "i"
		}
	}

	if reg >= R8 && reg <= R15 {
		number := strconv.Itoa(8 + int(reg-R8))
		switch size {
		case 1:
			return "r" + number + "b"
		case 2:
			return "r" + number + "w"
		case 4:
			return "r" + number + "d"
		case 8:
			return "r" + number
		}
	}

	if reg >= XMM0 && reg <= XMM15 {
		return "xmm" + strconv.Itoa(int(reg-XMM0))
	}

	return "???"
}
