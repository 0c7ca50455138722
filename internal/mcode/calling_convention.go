package mcode

import (
	"github.com/chnoblouch/banjo/internal/ssa"
)

// ArgStorage is where one argument lives at a call boundary.
type ArgStorage struct {
	InReg bool
	Reg   PhysicalReg
	// ArgSlotIndex numbers stack-passed arguments from 0.
	ArgSlotIndex int
	// StackOffset is the offset from SP in the caller's frame.
	StackOffset int
}

// ReturnMethod selects how a function's return value travels.
type ReturnMethod uint8

const (
	ReturnNone ReturnMethod = iota
	ReturnInRegister
	// ReturnViaPointerArg passes a hidden destination pointer as the
	// first argument; the callee writes the value through it.
	ReturnViaPointerArg
)

// CallingConvention is the ABI contract of a function. One implementation
// exists per supported ABI; the set is closed and small. Call-site
// lowering lives on the concrete per-target types since it needs the
// target lowerer.
type CallingConvention interface {
	// VolatileRegs returns the caller-saved register set.
	VolatileRegs() []PhysicalReg

	// IsVolatile reports whether reg is caller saved.
	IsVolatile(reg PhysicalReg) bool

	// ArgStorage assigns each parameter to a register or a stack slot.
	// Pure function of the parameter types.
	ArgStorage(params []ssa.Type) []ArgStorage

	// ReturnMethod decides how a value of the given size and class is
	// returned.
	ReturnMethod(returnType ssa.Type, size int) ReturnMethod

	// ReturnPtrStorage places the hidden return pointer and the visible
	// parameters together: on the x86-64 ABIs the pointer consumes the
	// first integer argument register, on AAPCS it lives in X8.
	ReturnPtrStorage(params []ssa.Type) (ArgStorage, []ArgStorage)

	// Prolog builds the function entry sequence: push touched
	// callee-saved GPRs, adjust SP by the frame allocation, save
	// callee-saved vector registers.
	Prolog(f *Function) []*Instruction

	// Epilog mirrors Prolog in reverse.
	Epilog(f *Function) []*Instruction

	// CreateArgStoreRegion places the undefined ArgStore slots.
	CreateArgStoreRegion(frame *StackFrame, regions *StackRegions)

	// CreateCallArgRegion sizes the outgoing-argument area and places
	// the CallArg slots.
	CreateCallArgRegion(f *Function, frame *StackFrame, regions *StackRegions)

	// CreateImplicitRegion computes the return-address plus
	// callee-saved-register space and reserves vector save slots.
	CreateImplicitRegion(f *Function, frame *StackFrame, regions *StackRegions)

	// AllocaSize composes the regions into the prolog allocation size.
	AllocaSize(regions *StackRegions) int

	// FixUpInstr rewrites instr after stack layout if an offset no
	// longer fits its addressing encoding. Returns the instruction to
	// continue iterating from.
	FixUpInstr(block *BasicBlock, instr *Instruction) *Instruction

	// IsFuncExit reports whether opcode leaves the function; the
	// prolog/epilog pass inserts the epilog before each such site.
	IsFuncExit(opcode Opcode) bool
}
