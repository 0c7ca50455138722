package codegen

import (
	"github.com/samber/lo"

	"github.com/chnoblouch/banjo/internal/mcode"
)

// ReplaceVirtualReg rewrites every use of oldReg in the block, including
// uses inside addressing operands.
func ReplaceVirtualReg(block *mcode.BasicBlock, oldReg, newReg mcode.VirtualReg) {
	old := mcode.RegFromVirtual(oldReg)
	replacement := mcode.RegFromVirtual(newReg)

	for instr := block.FirstInstr(); instr != nil; instr = instr.Next() {
		ReplaceReg(instr, old, replacement)
	}
}

// ReplaceReg rewrites oldReg with newReg in all operands of instr.
func ReplaceReg(instr *mcode.Instruction, oldReg, newReg mcode.Register) {
	for i := 0; i < instr.NumOperands(); i++ {
		operand := instr.Operand(i)

		if operand.IsRegister() && operand.Register() == oldReg {
			operand.SetToRegister(newReg)
		}

		if operand.IsAddr() {
			addr := operand.Addr()
			if addr.Base() == oldReg {
				addr.SetBase(newReg)
			}
			if addr.HasRegOffset() && addr.RegOffset() == oldReg {
				addr.SetRegOffset(newReg)
			}
		}

		if operand.IsAArch64Addr() {
			addr := *operand.AArch64Addr()
			changed := false
			if addr.Base() == oldReg {
				addr.SetBase(newReg)
				changed = true
			}
			if addr.Kind() == mcode.AArch64AddrBaseOffsetReg && addr.RegOffset() == oldReg {
				addr.SetRegOffset(newReg)
				changed = true
			}
			if changed {
				operand.SetToAArch64Addr(addr)
			}
		}
	}
}

// ReplaceOperand rewrites every operand equal to old in the block.
func ReplaceOperand(block *mcode.BasicBlock, old, replacement mcode.Operand) {
	for instr := block.FirstInstr(); instr != nil; instr = instr.Next() {
		for i := 0; i < instr.NumOperands(); i++ {
			if instr.Operand(i).Equal(&old) {
				*instr.Operand(i) = replacement
			}
		}
	}
}

// ModifiedVolatileRegs enumerates the physical registers written by f
// that are not caller saved under its calling convention, in first-write
// order.
func ModifiedVolatileRegs(f *mcode.Function) []mcode.PhysicalReg {
	var result []mcode.PhysicalReg

	for block := f.FirstBlock(); block != nil; block = block.Next() {
		for instr := block.FirstInstr(); instr != nil; instr = instr.Next() {
			dest := instr.Dest()
			if dest == nil || !dest.IsPhysicalReg() {
				continue
			}

			reg := dest.PhysicalReg()
			if f.CallingConv().IsVolatile(reg) || lo.Contains(result, reg) {
				continue
			}
			result = append(result, reg)
		}
	}

	return result
}
