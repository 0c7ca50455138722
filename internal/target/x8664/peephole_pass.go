package x8664

import (
	"github.com/chnoblouch/banjo/internal/mcode"
)

// PeepholeOptPass runs after prolog/epilog insertion. Register-to-
// register MOVSS is rewritten to MOVAPS, which avoids the partial-
// register dependency on the destination.
type PeepholeOptPass struct{}

func NewPeepholeOptPass() *PeepholeOptPass {
	return &PeepholeOptPass{}
}

// Run implements codegen.MachinePass.
func (p *PeepholeOptPass) Run(mod *mcode.Module) {
	for _, fn := range mod.Functions() {
		for block := fn.FirstBlock(); block != nil; block = block.Next() {
			for instr := block.FirstInstr(); instr != nil; instr = instr.Next() {
				if instr.Opcode() == MOVSS && isReg(instr.Operand(0)) && isReg(instr.Operand(1)) {
					instr.SetOpcode(MOVAPS)
				}
			}
		}
	}
}

func isReg(operand *mcode.Operand) bool {
	return operand.IsVirtualReg() || operand.IsPhysicalReg()
}
