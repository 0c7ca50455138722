package x8664

import (
	"github.com/chnoblouch/banjo/internal/mcode"
	"github.com/chnoblouch/banjo/internal/ssa"
)

// addrLowering synthesises x86-64 addressing modes, folding chained
// MEMBERPTR/OFFSETPTR producers into a single displacement plus
// scaled-index form.
type addrLowering struct {
	lowerer *SSALowerer
}

func (a *addrLowering) lowerAddress(operand *ssa.Operand) mcode.Operand {
	if operand.IsRegister() {
		return a.lowerRegAddr(operand.Register())
	} else if operand.IsSymbol() {
		return a.lowerSymbolAddr(operand)
	}
	panic("BUG: cannot lower address")
}

func (a *addrLowering) lowerRegAddr(vreg ssa.VirtualRegister) mcode.Operand {
	reg := a.lowerer.l.MapVReg(vreg)

	if reg.IsVirtualReg() {
		return a.lowerVRegAddr(reg, vreg)
	}
	return mcode.OperandFromAddr(mcode.NewIndirectAddress(reg), 8)
}

func (a *addrLowering) lowerVRegAddr(reg mcode.Register, vreg ssa.VirtualRegister) mcode.Operand {
	producer := a.lowerer.l.Producer(vreg)

	if producer != nil {
		switch producer.Opcode() {
		case ssa.OpcodeMemberPtr:
			a.lowerer.l.DiscardUse(vreg)
			return mcode.OperandFromAddr(a.calcMemberPtrAddr(producer), 8)
		case ssa.OpcodeOffsetPtr:
			a.lowerer.l.DiscardUse(vreg)
			return mcode.OperandFromAddr(a.calcOffsetPtrAddr(producer), 8)
		}
	}

	return mcode.OperandFromAddr(mcode.NewIndirectAddress(reg), 8)
}

func (a *addrLowering) lowerSymbolAddr(operand *ssa.Operand) mcode.Operand {
	reloc := mcode.RelocNone
	if a.lowerer.t.Descr().IsUnix() {
		if operand.IsExternFunc() {
			reloc = mcode.RelocPLT
		} else if operand.IsExternGlobal() {
			reloc = mcode.RelocGOT
		}
	}

	symbol := mcode.NewSymbolReloc(operand.SymbolName(), reloc)
	size := a.lowerer.l.Size(operand.Type())
	return mcode.OperandFromSymbolDeref(symbol, size)
}

func (a *addrLowering) calcOffsetPtrAddr(instr *ssa.Instruction) mcode.IndirectAddress {
	base := a.lowerer.l.MapVReg(instr.Operand(0).Register())
	operand := instr.Operand(1)
	baseType := instr.Operand(2).Type()

	addr := mcode.NewIndirectAddress(base)
	if operand.IsIntImmediate() {
		intOffset := int(operand.IntImmediate().Int64())
		addr.SetIntOffset(intOffset * a.lowerer.l.Size(baseType))
	} else if operand.IsRegister() {
		addr.SetRegOffset(a.lowerer.l.MapVReg(operand.Register()))
		addr.SetScale(a.lowerer.l.Size(baseType))
	}

	if addr.HasRegOffset() {
		scale := addr.Scale()

		// Scales that the addressing mode cannot encode are folded
		// with an explicit multiply.
		if scale != 1 && scale != 2 && scale != 4 && scale != 8 {
			offsetReg := a.lowerer.l.CreateReg()
			tmpReg := a.lowerer.l.CreateReg()

			a.lowerer.l.Emit(mcode.NewInstr(MOV,
				mcode.OperandFromRegister(tmpReg, 8),
				mcode.OperandFromRegister(addr.Base(), 8)))
			a.lowerer.l.Emit(mcode.NewInstr(MOV,
				mcode.OperandFromRegister(offsetReg, 8),
				mcode.OperandFromRegister(addr.RegOffset(), 8)))
			a.lowerer.l.Emit(mcode.NewInstr(IMUL,
				mcode.OperandFromRegister(offsetReg, 8),
				mcode.OperandFromInt(int64(scale), 8)))
			a.lowerer.l.Emit(mcode.NewInstr(ADD,
				mcode.OperandFromRegister(tmpReg, 8),
				mcode.OperandFromRegister(offsetReg, 8)))

			return mcode.NewIndirectAddress(tmpReg)
		}
	}

	return addr
}

func (a *addrLowering) calcMemberPtrAddr(instr *ssa.Instruction) mcode.IndirectAddress {
	typ := instr.Operand(0).Type()
	baseOperand := instr.Operand(1)
	fieldIndex := int(instr.Operand(2).IntImmediate().Int64())

	byteOffset := a.lowerer.l.MemberOffset(typ.Struct(), fieldIndex)

	// Successive MEMBERPTRs on struct-typed bases merge into one
	// displacement.
	baseProducer := a.lowerer.l.Producer(baseOperand.Register())
	if baseProducer != nil && baseProducer.Opcode() == ssa.OpcodeMemberPtr {
		if a.lowerer.l.NumUses(instr.Dest()) == 0 {
			a.lowerer.l.DiscardUse(baseOperand.Register())
		}

		addr := a.calcMemberPtrAddr(baseProducer)
		addr.SetIntOffset(addr.IntOffset() + byteOffset)
		return addr
	}

	base := a.lowerer.l.MapVReg(baseOperand.Register())
	return mcode.NewIndirectAddressIntOffset(base, byteOffset, 1)
}
