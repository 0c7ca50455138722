package codegen

import (
	"github.com/chnoblouch/banjo/internal/mcode"
	"github.com/chnoblouch/banjo/internal/ssa"
)

// StackFramePass composes the implicit, arg-store, generic and call-arg
// regions into final stack-slot offsets. It runs after register
// allocation, when spill slots and the final slot inventory are known.
type StackFramePass struct{}

func NewStackFramePass() *StackFramePass {
	return &StackFramePass{}
}

// Run implements MachinePass.
func (p *StackFramePass) Run(mod *mcode.Module) {
	for _, fn := range mod.Functions() {
		p.runOnFunc(fn)
	}
}

func (p *StackFramePass) runOnFunc(fn *mcode.Function) {
	frame := fn.StackFrame()
	callingConv := fn.CallingConv()

	regions := mcode.NewStackRegions()
	callingConv.CreateImplicitRegion(fn, frame, &regions)
	callingConv.CreateArgStoreRegion(frame, &regions)

	preAllocaOffsets := make(map[mcode.StackSlotID]int, len(regions.ArgStore.Offsets))
	for slot, offset := range regions.ArgStore.Offsets {
		preAllocaOffsets[slot] = offset
	}

	regions.Generic.Size = p.createGenericRegion(fn, preAllocaOffsets, regions.ArgStore.Size)

	callingConv.CreateCallArgRegion(fn, frame, &regions)

	allocaSize := callingConv.AllocaSize(&regions)
	totalSize := allocaSize + regions.Implicit.Size

	// Pre-alloca offsets are relative to the stack pointer before the
	// prolog allocation; shift them up so every slot offset is relative
	// to SP after the prolog.
	for slot, preAllocaOffset := range preAllocaOffsets {
		frame.StackSlot(slot).SetOffset(preAllocaOffset + allocaSize)
	}

	frame.SetTotalSize(totalSize)
	frame.SetSize(allocaSize)

	for block := fn.FirstBlock(); block != nil; block = block.Next() {
		for instr := block.FirstInstr(); instr != nil; instr = instr.Next() {
			instr = callingConv.FixUpInstr(block, instr)
		}
	}

	// Stack-passed parameters live in the caller's frame, above this
	// function's total frame size.
	params := fn.Parameters()
	types := make([]ssa.Type, 0, len(params))
	for _, param := range params {
		types = append(types, param.Type)
	}

	storage := callingConv.ArgStorage(types)
	for i, param := range params {
		if storage[i].InReg {
			continue
		}

		slot := frame.StackSlot(param.Storage.StackSlot())
		slot.SetOffset(frame.TotalSize() + storage[i].StackOffset)
	}

	fn.UnwindInfo().AllocSize = frame.Size()
}

// createGenericRegion assigns negative pre-alloca offsets to the
// remaining generic slots below the arg-store region and returns the
// region size.
func (p *StackFramePass) createGenericRegion(fn *mcode.Function, preAllocaOffsets map[mcode.StackSlotID]int, top int) int {
	frame := fn.StackFrame()
	genericSlotOffset := top

	for i := 0; i < frame.NumStackSlots(); i++ {
		slot := frame.StackSlot(i)
		if !slot.IsDefined() && slot.Kind() == mcode.StackSlotGeneric {
			genericSlotOffset -= slot.Size()
			preAllocaOffsets[i] = genericSlotOffset
		}
	}

	return -(genericSlotOffset - top)
}
