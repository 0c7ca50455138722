package codegen

import (
	"github.com/chnoblouch/banjo/internal/mcode"
	"github.com/chnoblouch/banjo/internal/target"
)

// Target is the per-architecture backend: it supplies the lowerer, the
// register analyzer, extra machine passes, and the naming hooks used by
// the debug emitter.
type Target interface {
	Descr() target.Description
	CodeModel() target.CodeModel
	DataLayout() target.DataLayout

	// NewTargetLowerer creates the instruction-selection half of the
	// SSA lowerer for this target.
	NewTargetLowerer() TargetLowerer

	// RegAnalyzer abstracts the target's operand roles for liveness and
	// allocation.
	RegAnalyzer() TargetRegAnalyzer

	// CreatePrePasses runs before register allocation.
	CreatePrePasses() []MachinePass

	// CreatePostPasses runs after prolog/epilog insertion.
	CreatePostPasses() []MachinePass

	// OpcodeName and PhysicalRegName feed the debug emitter.
	OpcodeName(opcode mcode.Opcode) string
	PhysicalRegName(reg mcode.PhysicalReg, size int) string
}

// SpilledRegUse describes one use of a spilled register for the
// analyzer's spill/reload hook.
type SpilledRegUse struct {
	Instr     *mcode.Instruction
	Block     *mcode.BasicBlock
	StackSlot mcode.StackSlotID
	// SpillTmpRegs counts scratch registers already taken at this
	// instruction, so nested spills pick distinct scratches.
	SpillTmpRegs int
	Usage        mcode.RegUsage
}

// TargetRegAnalyzer abstracts target-specific register roles away from
// the allocator. Adding a register class is a per-target change only.
type TargetRegAnalyzer interface {
	// GetOperands derives the use/def/usedef/kill set of instr.
	GetOperands(instr *mcode.Instruction, block *mcode.BasicBlock) []mcode.RegOp

	// GetCandidates returns the allocation class of the destination.
	GetCandidates(instr *mcode.Instruction) []mcode.PhysicalReg

	// SuggestRegs proposes registers from adjacent move instructions so
	// those moves become trivially removable.
	SuggestRegs(fn *RegAllocFunc, group *LiveRangeGroup) []mcode.PhysicalReg

	// IsRegOverridden reports whether instr clobbers reg.
	IsRegOverridden(instr *mcode.Instruction, block *mcode.BasicBlock, reg mcode.PhysicalReg) bool

	// InsertSpillReload emits the load-before-use / store-after-def
	// moves around a spilled use and returns the scratch register used.
	InsertSpillReload(use SpilledRegUse) mcode.PhysicalReg

	// IsInstrRemovable detects moves whose source equals their
	// destination.
	IsInstrRemovable(instr *mcode.Instruction) bool
}
