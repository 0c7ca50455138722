package codegen

import (
	"github.com/chnoblouch/banjo/internal/mcode"
)

// RegAllocInstr is one machine instruction reshaped for allocation: its
// index in the block plus the register operands derived by the analyzer.
type RegAllocInstr struct {
	Index int
	Instr *mcode.Instruction
	Regs  []mcode.RegOp
	// SpillTmpRegs counts scratch registers taken by spills at this
	// instruction so nested spills pick distinct scratches.
	SpillTmpRegs int
}

// RegAllocPoint is a sub-instruction position: every instruction splits
// into a use stage and a def stage so that a def at instruction i and a
// use at i in another range do not collide.
type RegAllocPoint struct {
	Instr int
	// Stage is 0 at the use sub-point, 1 at the def sub-point.
	Stage int
}

// RegAllocRange is a live range committed to a physical register.
type RegAllocRange struct {
	Reg   mcode.PhysicalReg
	Start RegAllocPoint
	End   RegAllocPoint
}

// Intersects reports whether the two ranges collide on the same register.
func (r RegAllocRange) Intersects(other RegAllocRange) bool {
	if r.Reg != other.Reg {
		return false
	}

	startA := 2*r.Start.Instr + r.Start.Stage
	endA := 2*r.End.Instr + r.End.Stage
	startB := 2*other.Start.Instr + other.Start.Stage
	endB := 2*other.End.Instr + other.End.Stage
	return startA <= endB && endA >= startB
}

// RegAllocBlock mirrors one machine block for allocation.
type RegAllocBlock struct {
	Block           *mcode.BasicBlock
	Instrs          []RegAllocInstr
	Preds           []int
	Succs           []int
	AllocatedRanges []RegAllocRange
}

// RegAllocFunc mirrors one machine function for allocation.
type RegAllocFunc struct {
	Func   *mcode.Function
	Blocks []RegAllocBlock
}
