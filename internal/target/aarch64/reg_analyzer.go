package aarch64

import (
	"github.com/chnoblouch/banjo/internal/codegen"
	"github.com/chnoblouch/banjo/internal/mcode"
)

// RegAnalyzer derives register roles from AArch64 opcodes. R19/R20 and
// V30/V31 are reserved as spill scratches; R18 is the platform register
// and stays out of the candidate lists.
type RegAnalyzer struct {
	generalPurposeRegs []mcode.PhysicalReg
	floatRegs          []mcode.PhysicalReg
}

func NewRegAnalyzer() *RegAnalyzer {
	return &RegAnalyzer{
		generalPurposeRegs: []mcode.PhysicalReg{
			R0, R1, R2, R3, R4, R5, R6, R7, R9, R10, R11, R12, R13, R14, R15,
			R21, R22, R23, R24, R25, R26, R27, R28,
		},
		floatRegs: []mcode.PhysicalReg{
			V0, V1, V2, V3, V4, V5, V6, V7, V16, V17, V18, V19, V20, V21, V22, V23,
		},
	}
}

// GetCandidates implements codegen.TargetRegAnalyzer.
func (a *RegAnalyzer) GetCandidates(instr *mcode.Instruction) []mcode.PhysicalReg {
	if isFloatOpcode(instr.Opcode()) || instr.HasFlag(mcode.InstrFlagFloat) {
		return a.floatRegs
	}
	return a.generalPurposeRegs
}

// SuggestRegs implements codegen.TargetRegAnalyzer.
func (a *RegAnalyzer) SuggestRegs(fn *codegen.RegAllocFunc, group *codegen.LiveRangeGroup) []mcode.PhysicalReg {
	firstRange := group.Ranges[0]

	firstDef := fn.Blocks[firstRange.Block].Instrs[firstRange.Start].Instr
	lastUse := fn.Blocks[firstRange.Block].Instrs[firstRange.End].Instr

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
	switch instr.Opcode() {
	case BL, BLR:
		return block.Func().CallingConv().IsVolatile(reg)
	}

	if instr.NumOperands() > 0 && instr.Operand(0).IsPhysicalReg() {
		return instr.Operand(0).PhysicalReg() == reg
	}
	return false
}

// GetOperands implements codegen.TargetRegAnalyzer.
func (a *RegAnalyzer) GetOperands(instr *mcode.Instruction, block *mcode.BasicBlock) []mcode.RegOp {
	var operands []mcode.RegOp

	if instr.Opcode() == BL || instr.Opcode() == BLR {
		for _, reg := range block.Func().CallingConv().VolatileRegs() {
			operands = append(operands, mcode.RegOp{Reg: mcode.RegFromPhysical(reg), Usage: mcode.RegKill})
		}

		for prev := instr.Prev(); prev != nil && prev.Opcode() != BL && prev.Opcode() != BLR; prev = prev.Prev() {
			if dest := prev.Dest(); dest != nil && dest.IsPhysicalReg() {
				operands = append(operands, mcode.RegOp{Reg: dest.Register(), Usage: mcode.RegUse})
			}
		}

		if instr.Opcode() == BLR {
			collectRegs(instr.Operand(0), mcode.RegUse, &operands)
		}

		return operands
	}

	switch instr.Opcode() {
	case MOV, FMOV, MOVZ, LDR, LDRB, LDRH, ADRP, SXTW, FCVT, SCVTF, UCVTF, FCVTZS, FCVTZU:
		collectRegs(instr.Operand(0), mcode.RegDef, &operands)
		for i := 1; i < instr.NumOperands(); i++ {
			collectRegs(instr.Operand(i), mcode.RegUse, &operands)
		}

	case MOVK:
		// MOVK patches bits into an already-defined register.
		collectRegs(instr.Operand(0), mcode.RegUseDef, &operands)

	case STR, STRB, STRH:
		for i := 0; i < instr.NumOperands(); i++ {
			collectRegs(instr.Operand(i), mcode.RegUse, &operands)
		}

	case STP:
		for i := 0; i < instr.NumOperands(); i++ {
			collectRegs(instr.Operand(i), mcode.RegUse, &operands)
		}

	case LDP:
		collectRegs(instr.Operand(0), mcode.RegDef, &operands)
		collectRegs(instr.Operand(1), mcode.RegDef, &operands)
		for i := 2; i < instr.NumOperands(); i++ {
			collectRegs(instr.Operand(i), mcode.RegUse, &operands)
		}

	case ADD, SUB, MUL, SDIV, UDIV, AND, ORR, EOR, LSL, ASR, FADD, FSUB, FMUL, FDIV, CSEL, FCSEL:
		collectRegs(instr.Operand(0), mcode.RegDef, &operands)
		for i := 1; i < instr.NumOperands(); i++ {
			collectRegs(instr.Operand(i), mcode.RegUse, &operands)
		}

	case CMP, FCMP:
		collectRegs(instr.Operand(0), mcode.RegUse, &operands)
		collectRegs(instr.Operand(1), mcode.RegUse, &operands)
	}

	return operands
}

// InsertSpillReload implements codegen.TargetRegAnalyzer.
func (a *RegAnalyzer) InsertSpillReload(use codegen.SpilledRegUse) mcode.PhysicalReg {
	size := use.Instr.Operand(0).Size()
	if size == 0 {
		size = 8
	}

	isFloat := isFloatOpcode(use.Instr.Opcode()) || use.Instr.HasFlag(mcode.InstrFlagFloat)

	var tmpReg mcode.PhysicalReg
	var loadOpcode, storeOpcode mcode.Opcode

	if isFloat {
		tmpReg = V31 - use.SpillTmpRegs
		if tmpReg < V30 {
			codegen.FatalOutOfRegisters(use.Block.Func())
		}
		loadOpcode, storeOpcode = LDR, STR
	} else {
		tmpReg = R20 - use.SpillTmpRegs
		if tmpReg < R19 {
			codegen.FatalOutOfRegisters(use.Block.Func())
		}
		loadOpcode, storeOpcode = LDR, STR
	}

	slotOperand := mcode.OperandFromStackSlot(use.StackSlot, size)
	tmpVal := mcode.OperandFromRegister(mcode.RegFromPhysical(tmpReg), size)

	switch use.Usage {
	case mcode.RegUse:
		use.Block.InsertBefore(use.Instr, mcode.NewInstr(loadOpcode, tmpVal, slotOperand))
	case mcode.RegDef:
		use.Block.InsertAfter(use.Instr, mcode.NewInstr(storeOpcode, tmpVal, slotOperand))
	case mcode.RegUseDef:
		use.Block.InsertBefore(use.Instr, mcode.NewInstr(loadOpcode, tmpVal, slotOperand))
		use.Block.InsertAfter(use.Instr, mcode.NewInstr(storeOpcode, tmpVal, slotOperand))
	}

	return tmpReg
}

// IsInstrRemovable implements codegen.TargetRegAnalyzer.
func (a *RegAnalyzer) IsInstrRemovable(instr *mcode.Instruction) bool {
	if !isMoveOpcode(instr.Opcode()) || instr.NumOperands() != 2 {
		return false
	}

	dst := instr.Operand(0)
	src := instr.Operand(1)
	return dst.IsRegister() && src.IsRegister() && dst.Register() == src.Register()
}

func isMoveOpcode(opcode mcode.Opcode) bool {
	return opcode == MOV || opcode == FMOV
}

func isFloatOpcode(opcode mcode.Opcode) bool {
	switch opcode {
	case FMOV, FADD, FSUB, FMUL, FDIV, FCMP, FCSEL, FCVT, SCVTF, UCVTF:
		return true
	}
	return false
}

func collectRegs(operand *mcode.Operand, usage mcode.RegUsage, dst *[]mcode.RegOp) {
	if operand.IsRegister() && !operand.IsStackSlot() {
		reg := operand.Register()
		if reg.IsPhysicalReg() && reg.PhysicalReg() == SP {
			return
		}
		*dst = append(*dst, mcode.RegOp{Reg: reg, Usage: usage})
	} else if operand.IsAArch64Addr() {
		addr := operand.AArch64Addr()
		if !addr.Base().IsStackSlot() && !(addr.Base().IsPhysicalReg() && addr.Base().PhysicalReg() == SP) {
			*dst = append(*dst, mcode.RegOp{Reg: addr.Base(), Usage: mcode.RegUse})
		}
		if addr.Kind() == mcode.AArch64AddrBaseOffsetReg && !addr.RegOffset().IsStackSlot() {
			*dst = append(*dst, mcode.RegOp{Reg: addr.RegOffset(), Usage: mcode.RegUse})
		}
	}
}
