package x8664

import (
	"strconv"

	"github.com/chnoblouch/banjo/internal/mcode"
	"github.com/chnoblouch/banjo/internal/ssa"
)

type constStorageAccess uint8

const (
	constStorageLoad constStorageAccess = iota
	constStorageLoadIntoReg
	constStorageReadReg
)

type constStorage struct {
	access     constStorageAccess
	constLabel string
	reg        mcode.Register
}

// constLowering materialises floating-point literals: f32 values are
// pooled module-wide and, within a block, hoisted into a register when
// reused; f64 values get a fresh global each.
type constLowering struct {
	lowerer *SSALowerer

	curID     int
	constF32s map[float32]string

	lastBlock  *ssa.BasicBlock
	f32Storage map[*ssa.Instruction]map[float32]constStorage
}

func (c *constLowering) loadF32(value float32) mcode.Operand {
	if value == 0.0 {
		panic("BUG: zero constants are generated with xorps")
	}

	if c.lowerer.l.Block() != c.lastBlock {
		c.lastBlock = c.lowerer.l.Block()
		c.f32Storage = make(map[*ssa.Instruction]map[float32]constStorage)
		c.processBlock()
	}

	storage := c.f32Storage[c.lowerer.l.CurrentInstr()][value]

	switch storage.access {
	case constStorageLoad:
		return mcode.OperandFromSymbolDeref(mcode.NewSymbol(storage.constLabel), 4)
	case constStorageLoadIntoReg:
		dst := mcode.OperandFromRegister(storage.reg, 4)
		src := mcode.OperandFromSymbolDeref(mcode.NewSymbol(storage.constLabel), 4)
		c.lowerer.l.Emit(mcode.NewInstr(MOVSS, dst, src))
		return dst
	case constStorageReadReg:
		return mcode.OperandFromRegister(storage.reg, 4)
	}
	panic("BUG: unknown constant storage")
}

func (c *constLowering) loadF64(value float64) mcode.Operand {
	label := "double." + strconv.Itoa(c.curID)
	c.curID++

	c.lowerer.l.MachineModule().AddGlobal(mcode.Global{
		Name:  label,
		Size:  8,
		Value: ssa.GlobalValueFP(value),
	})

	return mcode.OperandFromSymbolDeref(mcode.NewSymbol(label), 8)
}

// processBlock decides, for every f32 literal in the current block,
// whether it is loaded from memory at each use or hoisted into a
// register. At most 4 constants are hoisted at a time; calls and block
// copies invalidate the hoisted set.
func (c *constLowering) processBlock() {
	if c.constF32s == nil {
		c.constF32s = make(map[float32]string)
	}

	curF32sInRegs := make(map[float32]mcode.Register)

	for instr := c.lowerer.l.Block().FirstInstr(); instr != nil; instr = instr.Next() {
		if isDiscardingInstr(instr.Opcode()) {
			curF32sInRegs = make(map[float32]mcode.Register)
		}

		c.forEachF32Imm(instr, func(value float32) {
			label, ok := c.constF32s[value]
			if !ok {
				label = "float." + strconv.Itoa(c.curID)
				c.curID++

				c.lowerer.l.MachineModule().AddGlobal(mcode.Global{
					Name:  label,
					Size:  4,
					Value: ssa.GlobalValueFP(float64(value)),
				})
				c.constF32s[value] = label
			}

			var storage constStorage
			if reg, inReg := curF32sInRegs[value]; inReg {
				storage = constStorage{access: constStorageReadReg, reg: reg}
			} else if c.isF32UsedLaterOn(value, instr) && len(curF32sInRegs) < 4 {
				reg := c.lowerer.l.CreateReg()
				curF32sInRegs[value] = reg
				storage = constStorage{access: constStorageLoadIntoReg, constLabel: label, reg: reg}
			} else {
				storage = constStorage{access: constStorageLoad, constLabel: label}
			}

			if c.f32Storage[instr] == nil {
				c.f32Storage[instr] = make(map[float32]constStorage)
			}
			c.f32Storage[instr][value] = storage
		})
	}
}

func (c *constLowering) isF32UsedLaterOn(value float32, user *ssa.Instruction) bool {
	for instr := user.Next(); instr != nil; instr = instr.Next() {
		if isDiscardingInstr(instr.Opcode()) {
			return false
		}

		used := false
		c.forEachF32Imm(instr, func(imm float32) {
			if imm == value {
				used = true
			}
		})

		if used {
			return true
		}
	}
	return false
}

func (c *constLowering) forEachF32Imm(instr *ssa.Instruction, visit func(value float32)) {
	for _, operand := range instr.Operands() {
		if operand.IsFPImmediate() && operand.Type().IsPrimitive(ssa.F32) {
			if value := float32(operand.FPImmediate()); value != 0.0 {
				visit(value)
			}
		}

		if operand.IsBranchTarget() {
			for _, arg := range operand.BranchTarget().Args {
				if arg.IsFPImmediate() && arg.Type().IsPrimitive(ssa.F32) {
					if value := float32(arg.FPImmediate()); value != 0.0 {
						visit(value)
					}
				}
			}
		}
	}
}

func isDiscardingInstr(opcode ssa.Opcode) bool {
	return opcode == ssa.OpcodeCall || opcode == ssa.OpcodeCopy
}
