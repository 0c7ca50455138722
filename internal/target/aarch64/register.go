package aarch64

import (
	"strconv"

	"github.com/chnoblouch/banjo/internal/mcode"
)

// AArch64 registers. R29 is the frame pointer and R30 the link register.
const (
	R0 mcode.PhysicalReg = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	R16
	R17
	R18
	R19
	R20
	R21
	R22
	R23
	R24
	R25
	R26
	R27
	R28
	R29
	R30

	SP

	V0
	V1
	V2
	V3
	V4
	V5
	V6
	V7
	V8
	V9
	V10
	V11
	V12
	V13
	V14
	V15
	V16
	V17
	V18
	V19
	V20
	V21
	V22
	V23
	V24
	V25
	V26
	V27
	V28
	V29
	V30
	V31

	NumRegs
)

// PhysicalRegName renders reg at the given operand size: w/x names for
// the general registers, s/d names for the vector registers.
func PhysicalRegName(reg mcode.PhysicalReg, size int) string {
	if reg == SP {
		return "sp"
	}

	if reg >= R0 && reg <= R30 {
		number := strconv.Itoa(int(reg - R0))
		if size == 8 {
			return "x" + number
		}
		return "w" + number
	}

	if reg >= V0 && reg <= V31 {
		number := strconv.Itoa(int(reg - V0))
		if size == 8 {
			return "d" + number
		}
		return "s" + number
	}

	return "???"
}
