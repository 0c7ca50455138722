package codegen

import (
	log "github.com/sirupsen/logrus"

	"github.com/chnoblouch/banjo/internal/mcode"
)

// LateRegAlloc picks a physical register that is free over a small
// instruction range, for fix-ups that run after the main allocation.
type LateRegAlloc struct {
	block    *mcode.BasicBlock
	start    *mcode.Instruction
	end      *mcode.Instruction
	analyzer TargetRegAnalyzer
}

func NewLateRegAlloc(block *mcode.BasicBlock, start, end *mcode.Instruction, analyzer TargetRegAnalyzer) *LateRegAlloc {
	return &LateRegAlloc{block: block, start: start, end: end, analyzer: analyzer}
}

// Alloc returns a register of the start instruction's candidate class
// that is unused over the range. Running out here indicates a bug in the
// spill reservation and aborts the compile.
func (a *LateRegAlloc) Alloc() mcode.PhysicalReg {
	for _, candidate := range a.analyzer.GetCandidates(a.start) {
		if a.checkAlloc(candidate) {
			return candidate
		}
	}

	log.Fatalf("register allocator is out of registers in function %s", a.block.Func().Name())
	return 0
}

func (a *LateRegAlloc) checkAlloc(reg mcode.PhysicalReg) bool {
	for instr := a.start; instr != nil; instr = instr.Next() {
		if a.analyzer.IsRegOverridden(instr, a.block, reg) {
			return false
		}

		// A call-argument move reserves its destination register.
		if instr.HasFlag(mcode.InstrFlagCallArg) && instr.Dest() != nil && instr.Dest().IsPhysicalReg() {
			if instr.Dest().PhysicalReg() == reg {
				return false
			}
		}

		if instr == a.end {
			break
		}
	}

	for instr := a.end; instr != nil; instr = instr.Prev() {
		if instr.HasFlag(mcode.InstrFlagCallArg) && instr.Dest() != nil && instr.Dest().IsPhysicalReg() {
			if instr.Dest().PhysicalReg() == reg {
				return false
			}
		}

		// Past a call, previously reserved argument registers are free
		// again.
		if instr.Flags() == mcode.InstrFlagCall {
			break
		}

		if instr == a.start {
			break
		}
	}

	return true
}
