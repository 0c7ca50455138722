package x8664

import (
	"github.com/chnoblouch/banjo/internal/mcode"
	"github.com/chnoblouch/banjo/internal/ssa"
)

// Condition codes; the conditional jump and move opcodes are laid out so
// that opcode = base + condition.
const (
	CondE = iota
	CondNE
	CondA
	CondAE
	CondB
	CondBE
	CondG
	CondGE
	CondL
	CondLE
)

const (
	MOV mcode.Opcode = iota
	PUSH
	POP
	ADD
	SUB
	IMUL
	DIV
	IDIV
	AND
	OR
	XOR
	SHL
	SHR
	CDQ
	CQO
	JMP
	CMP

	JCC
	JE  = JCC + CondE
	JNE = JCC + CondNE
	JA  = JCC + CondA
	JAE = JCC + CondAE
	JB  = JCC + CondB
	JBE = JCC + CondBE
	JG  = JCC + CondG
	JGE = JCC + CondGE
	JL  = JCC + CondL
	JLE = JCC + CondLE
)

const CMOVCC mcode.Opcode = JLE + 1

const (
	CMOVE  = CMOVCC + CondE
	CMOVNE = CMOVCC + CondNE
	CMOVA  = CMOVCC + CondA
	CMOVAE = CMOVCC + CondAE
	CMOVB  = CMOVCC + CondB
	CMOVBE = CMOVCC + CondBE
	CMOVG  = CMOVCC + CondG
	CMOVGE = CMOVCC + CondGE
	CMOVL  = CMOVCC + CondL
	CMOVLE = CMOVCC + CondLE
)

const (
	CALL mcode.Opcode = CMOVLE + 1 + iota
	RET
	LEA
	MOVSX
	MOVZX
	MOVSS
	MOVSD
	MOVAPS
	MOVUPS
	MOVD
	MOVQ
	ADDSS
	ADDSD
	SUBSS
	SUBSD
	MULSS
	MULSD
	DIVSS
	DIVSD
	XORPS
	XORPD
	MINSS
	MINSD
	MAXSS
	MAXSD
	SQRTSS
	SQRTSD
	UCOMISS
	UCOMISD
	CVTSS2SD
	CVTSD2SS
	CVTSI2SS
	CVTSI2SD
	CVTSS2SI
	CVTSD2SI
)

var opcodeNames = map[mcode.Opcode]string{
	MOV:      "mov",
	PUSH:     "push",
	POP:      "pop",
	ADD:      "add",
	SUB:      "sub",
	IMUL:     "imul",
	DIV:      "div",
	IDIV:     "idiv",
	AND:      "and",
	OR:       "or",
	XOR:      "xor",
	SHL:      "shl",
	SHR:      "shr",
	CDQ:      "cdq",
	CQO:      "cqo",
	JMP:      "jmp",
	CMP:      "cmp",
	JE:       "je",
	JNE:      "jne",
	JA:       "ja",
	JAE:      "jae",
	JB:       "jb",
	JBE:      "jbe",
	JG:       "jg",
	JGE:      "jge",
	JL:       "jl",
	JLE:      "jle",
	CMOVE:    "cmove",
	CMOVNE:   "cmovne",
	CMOVA:    "cmova",
	CMOVAE:   "cmovae",
	CMOVB:    "cmovb",
	CMOVBE:   "cmovbe",
	CMOVG:    "cmovg",
	CMOVGE:   "cmovge",
	CMOVL:    "cmovl",
	CMOVLE:   "cmovle",
	CALL:     "call",
	RET:      "ret",
	LEA:      "lea",
	MOVSX:    "movsx",
	MOVZX:    "movzx",
	MOVSS:    "movss",
	MOVSD:    "movsd",
	MOVAPS:   "movaps",
	MOVUPS:   "movups",
	MOVD:     "movd",
	MOVQ:     "movq",
	ADDSS:    "addss",
	ADDSD:    "addsd",
	SUBSS:    "subss",
	SUBSD:    "subsd",
	MULSS:    "mulss",
	MULSD:    "mulsd",
	DIVSS:    "divss",
	DIVSD:    "divsd",
	XORPS:    "xorps",
	XORPD:    "xorpd",
	MINSS:    "minss",
	MINSD:    "minsd",
	MAXSS:    "maxss",
	MAXSD:    "maxsd",
	SQRTSS:   "sqrtss",
	SQRTSD:   "sqrtsd",
	UCOMISS:  "ucomiss",
	UCOMISD:  "ucomisd",
	CVTSS2SD: "cvtss2sd",
	CVTSD2SS: "cvtsd2ss",
	CVTSI2SS: "cvtsi2ss",
	CVTSI2SD: "cvtsi2sd",
	CVTSS2SI: "cvtss2si",
	CVTSD2SI: "cvtsd2si",
}

// OpcodeName returns the mnemonic of opcode.
func OpcodeName(opcode mcode.Opcode) string {
	if name, ok := opcodeNames[opcode]; ok {
		return name
	}
	return "???"
}

func conditionCode(comparison ssa.Comparison) int {
	switch comparison {
	case ssa.EQ, ssa.FEQ:
		return CondE
	case ssa.NE, ssa.FNE:
		return CondNE
	case ssa.UGT, ssa.FGT:
		return CondA
	case ssa.UGE, ssa.FGE:
		return CondAE
	case ssa.ULT, ssa.FLT:
		return CondB
	case ssa.ULE, ssa.FLE:
		return CondBE
	case ssa.SGT:
		return CondG
	case ssa.SGE:
		return CondGE
	case ssa.SLT:
		return CondL
	case ssa.SLE:
		return CondLE
	}
	panic("BUG: unknown comparison")
}

func jccOpcode(comparison ssa.Comparison) mcode.Opcode {
	return JCC + conditionCode(comparison)
}

func cmovccOpcode(comparison ssa.Comparison) mcode.Opcode {
	return CMOVCC + conditionCode(comparison)
}
