package aarch64

import (
	"github.com/chnoblouch/banjo/internal/mcode"
	"github.com/chnoblouch/banjo/internal/ssa"
)

const (
	MOV mcode.Opcode = iota
	MOVZ
	MOVK
	FMOV

	LDR
	LDRB
	LDRH
	STR
	STRB
	STRH
	STP
	LDP

	ADD
	SUB
	MUL
	SDIV
	UDIV
	AND
	ORR
	EOR
	LSL
	ASR

	FADD
	FSUB
	FMUL
	FDIV

	CMP
	FCMP
	CSEL
	FCSEL

	B

	// BCond is the base of the conditional branches; the opcode is
	// BCond plus the mcode.AArch64Condition.
	BCond
	B_EQ = BCond + mcode.Opcode(mcode.AArch64CondEQ)
	B_NE = BCond + mcode.Opcode(mcode.AArch64CondNE)
	B_HS = BCond + mcode.Opcode(mcode.AArch64CondHS)
	B_LO = BCond + mcode.Opcode(mcode.AArch64CondLO)
	B_HI = BCond + mcode.Opcode(mcode.AArch64CondHI)
	B_LS = BCond + mcode.Opcode(mcode.AArch64CondLS)
	B_GE = BCond + mcode.Opcode(mcode.AArch64CondGE)
	B_LT = BCond + mcode.Opcode(mcode.AArch64CondLT)
	B_GT = BCond + mcode.Opcode(mcode.AArch64CondGT)
	B_LE = BCond + mcode.Opcode(mcode.AArch64CondLE)
)

const (
	BL mcode.Opcode = B_LE + 1 + iota
	BLR
	RET
	ADRP

	SXTW
	FCVT
	SCVTF
	UCVTF
	FCVTZS
	FCVTZU
)

var opcodeNames = map[mcode.Opcode]string{
	MOV:    "mov",
	MOVZ:   "movz",
	MOVK:   "movk",
	FMOV:   "fmov",
	LDR:    "ldr",
	LDRB:   "ldrb",
	LDRH:   "ldrh",
	STR:    "str",
	STRB:   "strb",
	STRH:   "strh",
	STP:    "stp",
	LDP:    "ldp",
	ADD:    "add",
	SUB:    "sub",
	MUL:    "mul",
	SDIV:   "sdiv",
	UDIV:   "udiv",
	AND:    "and",
	ORR:    "orr",
	EOR:    "eor",
	LSL:    "lsl",
	ASR:    "asr",
	FADD:   "fadd",
	FSUB:   "fsub",
	FMUL:   "fmul",
	FDIV:   "fdiv",
	CMP:    "cmp",
	FCMP:   "fcmp",
	CSEL:   "csel",
	FCSEL:  "fcsel",
	B:      "b",
	B_EQ:   "b.eq",
	B_NE:   "b.ne",
	B_HS:   "b.hs",
	B_LO:   "b.lo",
	B_HI:   "b.hi",
	B_LS:   "b.ls",
	B_GE:   "b.ge",
	B_LT:   "b.lt",
	B_GT:   "b.gt",
	B_LE:   "b.le",
	BL:     "bl",
	BLR:    "blr",
	RET:    "ret",
	ADRP:   "adrp",
	SXTW:   "sxtw",
	FCVT:   "fcvt",
	SCVTF:  "scvtf",
	UCVTF:  "ucvtf",
	FCVTZS: "fcvtzs",
	FCVTZU: "fcvtzu",
}

// OpcodeName returns the mnemonic of opcode.
func OpcodeName(opcode mcode.Opcode) string {
	if name, ok := opcodeNames[opcode]; ok {
		return name
	}
	return "???"
}

func lowerCondition(comparison ssa.Comparison) mcode.AArch64Condition {
	switch comparison {
	case ssa.EQ, ssa.FEQ:
		return mcode.AArch64CondEQ
	case ssa.NE, ssa.FNE:
		return mcode.AArch64CondNE
	case ssa.UGT:
		return mcode.AArch64CondHI
	case ssa.UGE:
		return mcode.AArch64CondHS
	case ssa.ULT:
		return mcode.AArch64CondLO
	case ssa.ULE:
		return mcode.AArch64CondLS
	case ssa.SGT, ssa.FGT:
		return mcode.AArch64CondGT
	case ssa.SGE, ssa.FGE:
		return mcode.AArch64CondGE
	case ssa.SLT, ssa.FLT:
		return mcode.AArch64CondLT
	case ssa.SLE, ssa.FLE:
		return mcode.AArch64CondLE
	}
	panic("BUG: unknown comparison")
}
