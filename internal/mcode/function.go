package mcode

import (
	"github.com/chnoblouch/banjo/internal/ssa"
)

// Parameter is a lowered function parameter: its SSA type plus its
// storage, either a physical register or a stack slot (carried as a
// stack-slot Register).
type Parameter struct {
	Type    ssa.Type
	Storage Register
}

// UnwindInfo carries the minimum needed to derive unwind tables.
type UnwindInfo struct {
	AllocSize int
}

// Function is a machine function: a linked list of basic blocks plus the
// stack frame and calling-convention handle.
type Function struct {
	name        string
	callingConv CallingConvention
	params      []Parameter
	frame       StackFrame
	unwindInfo  UnwindInfo

	first, last *BasicBlock
}

func NewFunction(name string, callingConv CallingConvention) *Function {
	return &Function{name: name, callingConv: callingConv}
}

func (f *Function) Name() string { return f.name }

func (f *Function) CallingConv() CallingConvention { return f.callingConv }

func (f *Function) Parameters() []Parameter { return f.params }

func (f *Function) AddParameter(param Parameter) {
	f.params = append(f.params, param)
}

func (f *Function) StackFrame() *StackFrame { return &f.frame }

func (f *Function) UnwindInfo() *UnwindInfo { return &f.unwindInfo }

// AppendBlock links blk at the end of the function.
func (f *Function) AppendBlock(blk *BasicBlock) *BasicBlock {
	blk.prev = f.last
	blk.next = nil
	if f.last != nil {
		f.last.next = blk
	} else {
		f.first = blk
	}
	f.last = blk
	return blk
}

func (f *Function) FirstBlock() *BasicBlock { return f.first }

func (f *Function) LastBlock() *BasicBlock { return f.last }

// EntryBlock returns the first basic block.
func (f *Function) EntryBlock() *BasicBlock { return f.first }

func (f *Function) NumBlocks() int {
	n := 0
	for blk := f.first; blk != nil; blk = blk.next {
		n++
	}
	return n
}
