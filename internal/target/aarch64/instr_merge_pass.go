package aarch64

import (
	"github.com/chnoblouch/banjo/internal/mcode"
)

// InstrMergePass runs before register allocation and folds address
// computations into the memory instructions that consume them: an ADD
// producing base+imm feeds LDR/STR addressing modes, and ADD chains on
// stack-slot offsets collapse into one offset. Producers left without
// consumers are removed.
type InstrMergePass struct{}

func NewInstrMergePass() *InstrMergePass {
	return &InstrMergePass{}
}

type regUsage struct {
	producer     *mcode.Instruction
	numConsumers int
}

// Run implements codegen.MachinePass.
func (p *InstrMergePass) Run(mod *mcode.Module) {
	for _, fn := range mod.Functions() {
		for block := fn.FirstBlock(); block != nil; block = block.Next() {
			p.runOnBlock(block)
		}
	}
}

func (p *InstrMergePass) runOnBlock(block *mcode.BasicBlock) {
	usages := p.analyzeUsages(block)
	p.mergeInstrs(block, usages)
	p.removeUselessInstrs(block, usages)
}

func (p *InstrMergePass) analyzeUsages(block *mcode.BasicBlock) map[mcode.VirtualReg]*regUsage {
	usages := make(map[mcode.VirtualReg]*regUsage)

	usage := func(reg mcode.VirtualReg) *regUsage {
		u, ok := usages[reg]
		if !ok {
			u = &regUsage{}
			usages[reg] = u
		}
		return u
	}

	for instr := block.FirstInstr(); instr != nil; instr = instr.Next() {
		if dest := instr.Dest(); dest != nil && dest.IsVirtualReg() {
			usage(dest.VirtualReg()).producer = instr
		}

		for i := 1; i < instr.NumOperands(); i++ {
			operand := instr.Operand(i)

			if operand.IsVirtualReg() {
				usage(operand.VirtualReg()).numConsumers++
			}

			if operand.IsAArch64Addr() {
				addr := operand.AArch64Addr()
				if addr.Base().IsVirtualReg() {
					usage(addr.Base().VirtualReg()).numConsumers++
				}
				if addr.Kind() == mcode.AArch64AddrBaseOffsetReg && addr.RegOffset().IsVirtualReg() {
					usage(addr.RegOffset().VirtualReg()).numConsumers++
				}
			}
		}
	}

	return usages
}

func (p *InstrMergePass) mergeInstrs(block *mcode.BasicBlock, usages map[mcode.VirtualReg]*regUsage) {
	for instr := block.FirstInstr(); instr != nil; instr = instr.Next() {
		switch instr.Opcode() {
		case STR, LDR:
			p.tryMergeMem(instr, usages)
		case ADD:
			p.tryMergeAdd(instr, usages)
		}
	}
}

func (p *InstrMergePass) tryMergeMem(instr *mcode.Instruction, usages map[mcode.VirtualReg]*regUsage) {
	if instr.NumOperands() < 2 || !instr.Operand(1).IsAArch64Addr() {
		return
	}

	addrOperand := instr.Operand(1)
	addr := addrOperand.AArch64Addr()

	if addr.Kind() != mcode.AArch64AddrBase || !addr.Base().IsVirtualReg() {
		return
	}

	producerUsage := usages[addr.Base().VirtualReg()]
	if producerUsage == nil || producerUsage.producer == nil {
		return
	}
	producer := producerUsage.producer

	if producer.Opcode() != ADD || producer.NumOperands() != 3 || !producer.Operand(2).IsIntImmediate() {
		return
	}
	if !producer.Operand(1).IsRegister() {
		return
	}

	newBase := producer.Operand(1).Register()
	newOffset := int(producer.Operand(2).IntImmediate().Int64())

	addrOperand.SetToAArch64Addr(mcode.NewAArch64AddrOffsetImm(newBase, newOffset))
	producerUsage.numConsumers--
}

func (p *InstrMergePass) tryMergeAdd(instr *mcode.Instruction, usages map[mcode.VirtualReg]*regUsage) {
	if instr.NumOperands() != 3 || !instr.Operand(1).IsVirtualReg() || !instr.Operand(2).IsIntImmediate() {
		return
	}

	producerUsage := usages[instr.Operand(1).VirtualReg()]
	if producerUsage == nil || producerUsage.producer == nil {
		return
	}
	producer := producerUsage.producer

	if producer.Opcode() != ADD || producer.NumOperands() != 3 || !producer.Operand(2).IsStackSlotOffset() {
		return
	}

	newOffset := producer.Operand(2).StackSlotOffset()
	newOffset.Addend += int(instr.Operand(2).IntImmediate().Int64())

	size := instr.Operand(2).Size()
	*instr.Operand(1) = *producer.Operand(1)
	*instr.Operand(2) = mcode.OperandFromStackSlotOffset(newOffset, size)
	producerUsage.numConsumers--
}

func (p *InstrMergePass) removeUselessInstrs(block *mcode.BasicBlock, usages map[mcode.VirtualReg]*regUsage) {
	instr := block.FirstInstr()
	for instr != nil {
		next := instr.Next()

		switch instr.Opcode() {
		case ADD, SUB, MUL:
			if dest := instr.Dest(); dest != nil && dest.IsVirtualReg() {
				if usage := usages[dest.VirtualReg()]; usage != nil && usage.numConsumers == 0 {
					block.Remove(instr)
				}
			}
		}

		instr = next
	}
}
