package x8664

import (
	"github.com/chnoblouch/banjo/internal/codegen"
	"github.com/chnoblouch/banjo/internal/mcode"
)

// RegAnalyzer derives register roles from x86-64 opcodes for liveness
// and allocation. R15/R14 and XMM15/XMM14 are reserved as spill
// scratches and kept out of the candidate lists.
type RegAnalyzer struct {
	generalPurposeRegs []mcode.PhysicalReg
	floatRegs          []mcode.PhysicalReg
}

func NewRegAnalyzer() *RegAnalyzer {
	return &RegAnalyzer{
		generalPurposeRegs: []mcode.PhysicalReg{
			RAX, RCX, RDX, R8, R9, R10, R11, RBX, RSI, RDI, R12, R13,
		},
		floatRegs: []mcode.PhysicalReg{
			XMM0, XMM1, XMM2, XMM3, XMM4, XMM5, XMM6, XMM7, XMM8, XMM9, XMM10, XMM11, XMM12, XMM13,
		},
	}
}

// GetCandidates implements codegen.TargetRegAnalyzer.
func (a *RegAnalyzer) GetCandidates(instr *mcode.Instruction) []mcode.PhysicalReg {
	if isFloatOperand(instr.Opcode(), mcode.RegDef) {
		return a.floatRegs
	}
	return a.generalPurposeRegs
}

// SuggestRegs implements codegen.TargetRegAnalyzer: a group defined by a
// move from a physical register or used by a move into one is biased
// toward that register so the move becomes removable.
func (a *RegAnalyzer) SuggestRegs(fn *codegen.RegAllocFunc, group *codegen.LiveRangeGroup) []mcode.PhysicalReg {
	firstRange := group.Ranges[0]
	lastRange := group.Ranges[0]

	firstDef := fn.Blocks[firstRange.Block].Instrs[firstRange.Start].Instr
	lastUse := fn.Blocks[lastRange.Block].Instrs[lastRange.End].Instr

	var suggested []mcode.PhysicalReg

	if isMoveOpcode(firstDef.Opcode()) && firstDef.NumOperands() > 1 && firstDef.Operand(1).IsPhysicalReg() {
		suggested = append(suggested, firstDef.Operand(1).PhysicalReg())
	}

	if isMoveOpcode(lastUse.Opcode()) && lastUse.NumOperands() > 0 && lastUse.Operand(0).IsPhysicalReg() {
		suggested = append(suggested, lastUse.Operand(0).PhysicalReg())
	}

	return suggested
}

// IsRegOverridden implements codegen.TargetRegAnalyzer.
func (a *RegAnalyzer) IsRegOverridden(instr *mcode.Instruction, block *mcode.BasicBlock, reg mcode.PhysicalReg) bool {
	if instr.Opcode() == CALL {
		return block.Func().CallingConv().IsVolatile(reg)
	}

	if instr.Opcode() == IDIV || instr.Opcode() == DIV {
		return reg == RAX || reg == RDX
	}

	if instr.NumOperands() > 0 && instr.Operand(0).IsPhysicalReg() {
		return instr.Operand(0).PhysicalReg() == reg
	} else if instr.NumOperands() > 1 && instr.Operand(1).IsPhysicalReg() {
		return instr.Operand(1).PhysicalReg() == reg
	}
	return false
}

// GetOperands implements codegen.TargetRegAnalyzer.
func (a *RegAnalyzer) GetOperands(instr *mcode.Instruction, block *mcode.BasicBlock) []mcode.RegOp {
	var operands []mcode.RegOp

	if instr.Opcode() == CALL {
		// A call clobbers every caller-saved register and reads the
		// argument registers set up since the previous call.
		for _, reg := range block.Func().CallingConv().VolatileRegs() {
			operands = append(operands, mcode.RegOp{Reg: mcode.RegFromPhysical(reg), Usage: mcode.RegKill})
		}

		for prev := instr.Prev(); prev != nil && prev.Opcode() != CALL; prev = prev.Prev() {
			if dest := prev.Dest(); dest != nil && dest.IsPhysicalReg() {
				operands = append(operands, mcode.RegOp{Reg: dest.Register(), Usage: mcode.RegUse})
			}
		}
	}

	switch instr.Opcode() {
	case MOV, MOVSX, MOVZX, MOVSS, MOVSD, MOVAPS, MOVUPS, MOVD, MOVQ, LEA,
		CVTSS2SD, CVTSD2SS, CVTSI2SS, CVTSI2SD, CVTSS2SI, CVTSD2SI:
		addDefUseOps(instr, &operands)

	case PUSH, CALL, RET:
		if instr.NumOperands() > 0 {
			if instr.Operand(0).IsRegister() {
				operands = append(operands, mcode.RegOp{Reg: instr.Operand(0).Register(), Usage: mcode.RegUse})
			} else if instr.Operand(0).IsAddr() {
				collectAddrRegs(instr.Operand(0), &operands)
			}
		}

	case POP:
		operands = append(operands, mcode.RegOp{Reg: instr.Operand(0).Register(), Usage: mcode.RegDef})

	case ADD, SUB, IMUL, AND, OR, SHL, SHR,
		CMOVE, CMOVNE, CMOVA, CMOVAE, CMOVB, CMOVBE, CMOVG, CMOVGE, CMOVL, CMOVLE,
		ADDSS, ADDSD, SUBSS, SUBSD, MULSS, MULSD, DIVSS, DIVSD,
		MINSS, MINSD, MAXSS, MAXSD, SQRTSS, SQRTSD:
		addUseDefUseOps(instr, &operands)

	case CDQ, CQO:
		operands = append(operands,
			mcode.RegOp{Reg: mcode.RegFromPhysical(RAX), Usage: mcode.RegUse},
			mcode.RegOp{Reg: mcode.RegFromPhysical(RDX), Usage: mcode.RegDef},
		)

	case IDIV, DIV:
		operands = append(operands,
			mcode.RegOp{Reg: instr.Operand(0).Register(), Usage: mcode.RegUse},
			mcode.RegOp{Reg: mcode.RegFromPhysical(RAX), Usage: mcode.RegUseDef},
			mcode.RegOp{Reg: mcode.RegFromPhysical(RDX), Usage: mcode.RegUseDef},
		)

	case CMP, UCOMISS, UCOMISD:
		collectRegs(instr.Operand(0), mcode.RegUse, &operands)
		collectRegs(instr.Operand(1), mcode.RegUse, &operands)

	case XOR, XORPS, XORPD:
		if instr.Operand(0).Equal(instr.Operand(1)) {
			// Zeroing idiom: the register is written without being
			// read.
			operands = append(operands, mcode.RegOp{Reg: instr.Operand(0).Register(), Usage: mcode.RegDef})
		} else {
			addUseDefUseOps(instr, &operands)
		}
	}

	return operands
}

// InsertSpillReload implements codegen.TargetRegAnalyzer.
func (a *RegAnalyzer) InsertSpillReload(use codegen.SpilledRegUse) mcode.PhysicalReg {
	dstSize := use.Instr.Operand(0).Size()
	srcSize := dstSize
	if use.Instr.NumOperands() > 1 {
		srcSize = use.Instr.Operand(1).Size()
	}

	isFloat := isFloatOperand(use.Instr.Opcode(), use.Usage)

	moveOpcode := MOV
	if isFloat {
		moveOpcode = MOVSD
		if srcSize == 4 {
			moveOpcode = MOVSS
		}
	}

	var tmpReg mcode.PhysicalReg
	if isFloat {
		tmpReg = XMM15 - use.SpillTmpRegs
		if tmpReg < XMM14 {
			codegen.FatalOutOfRegisters(use.Block.Func())
		}
	} else {
		tmpReg = R15 - use.SpillTmpRegs
		if tmpReg < R14 {
			codegen.FatalOutOfRegisters(use.Block.Func())
		}
	}

	src := mcode.OperandFromStackSlot(use.StackSlot, srcSize)
	tmpVal := mcode.OperandFromRegister(mcode.RegFromPhysical(tmpReg), srcSize)
	dst := mcode.OperandFromStackSlot(use.StackSlot, dstSize)

	switch use.Usage {
	case mcode.RegUse:
		use.Block.InsertBefore(use.Instr, mcode.NewInstr(moveOpcode, tmpVal, src))
	case mcode.RegDef:
		use.Block.InsertAfter(use.Instr, mcode.NewInstr(moveOpcode, dst, tmpVal))
	case mcode.RegUseDef:
		use.Block.InsertBefore(use.Instr, mcode.NewInstr(moveOpcode, tmpVal, src))
		use.Block.InsertAfter(use.Instr, mcode.NewInstr(moveOpcode, dst, tmpVal))
	}

	return tmpReg
}

// IsInstrRemovable implements codegen.TargetRegAnalyzer.
func (a *RegAnalyzer) IsInstrRemovable(instr *mcode.Instruction) bool {
	if !isMoveOpcode(instr.Opcode()) || instr.NumOperands() < 2 {
		return false
	}

	dst := instr.Operand(0)
	src := instr.Operand(1)
	return dst.IsRegister() && src.IsRegister() && dst.Register() == src.Register()
}

func isMoveOpcode(opcode mcode.Opcode) bool {
	return opcode == MOV || (opcode >= MOVSS && opcode <= MOVUPS)
}

func isFloatOperand(opcode mcode.Opcode, usage mcode.RegUsage) bool {
	if (opcode >= MOVSS && opcode <= MOVUPS) || (opcode >= ADDSS && opcode <= UCOMISD) ||
		opcode == CVTSS2SD || opcode == CVTSD2SS {
		return true
	}

	if usage == mcode.RegDef || usage == mcode.RegUseDef {
		return opcode == CVTSI2SS || opcode == CVTSI2SD
	} else if usage == mcode.RegUse {
		return opcode == CVTSS2SI || opcode == CVTSD2SI
	}

	return false
}

func addDefUseOps(instr *mcode.Instruction, dst *[]mcode.RegOp) {
	collectRegs(instr.Operand(0), mcode.RegDef, dst)
	collectRegs(instr.Operand(1), mcode.RegUse, dst)
}

func addUseDefUseOps(instr *mcode.Instruction, dst *[]mcode.RegOp) {
	collectRegs(instr.Operand(0), mcode.RegUseDef, dst)
	collectRegs(instr.Operand(1), mcode.RegUse, dst)
}

func collectRegs(operand *mcode.Operand, usage mcode.RegUsage, dst *[]mcode.RegOp) {
	if operand.IsRegister() && !operand.IsStackSlot() {
		*dst = append(*dst, mcode.RegOp{Reg: operand.Register(), Usage: usage})
	} else if operand.IsAddr() {
		collectAddrRegs(operand, dst)
	}
}

func collectAddrRegs(operand *mcode.Operand, dst *[]mcode.RegOp) {
	addr := operand.Addr()

	if !addr.Base().IsStackSlot() {
		*dst = append(*dst, mcode.RegOp{Reg: addr.Base(), Usage: mcode.RegUse})
	}

	if addr.HasRegOffset() && !addr.RegOffset().IsStackSlot() {
		*dst = append(*dst, mcode.RegOp{Reg: addr.RegOffset(), Usage: mcode.RegUse})
	}
}
