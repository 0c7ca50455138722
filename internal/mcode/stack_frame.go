package mcode

// StackSlotKind classifies a stack slot for region placement.
type StackSlotKind uint8

const (
	// StackSlotGeneric holds allocas and spills.
	StackSlotGeneric StackSlotKind = iota
	// StackSlotArgStore is the spill area for incoming arguments.
	StackSlotArgStore
	// StackSlotCallArg is outgoing argument storage for callees.
	StackSlotCallArg
)

const stackSlotOffsetUndefined = int(^uint(0) >> 1) // max int

// StackSlot is a named region of the stack frame. Its offset from the
// post-prolog stack pointer is assigned by the stack-frame pass.
type StackSlot struct {
	kind         StackSlotKind
	size         int
	alignment    int
	offset       int
	callArgIndex int
}

func NewStackSlot(kind StackSlotKind, size, alignment int) StackSlot {
	return StackSlot{kind: kind, size: size, alignment: alignment, offset: stackSlotOffsetUndefined}
}

func (s *StackSlot) Kind() StackSlotKind { return s.kind }
func (s *StackSlot) Size() int           { return s.size }
func (s *StackSlot) Alignment() int      { return s.alignment }

// IsDefined reports whether the slot has been assigned an offset.
func (s *StackSlot) IsDefined() bool { return s.offset != stackSlotOffsetUndefined }

func (s *StackSlot) Offset() int {
	if !s.IsDefined() {
		panic("BUG: reading the offset of an unplaced stack slot")
	}
	return s.offset
}

func (s *StackSlot) SetOffset(offset int) { s.offset = offset }

func (s *StackSlot) CallArgIndex() int         { return s.callArgIndex }
func (s *StackSlot) SetCallArgIndex(index int) { s.callArgIndex = index }

// StackFrame owns the stack slots of a function.
type StackFrame struct {
	slots []StackSlot
	// callArgSlotIndices indexes the CallArg slots in creation order.
	callArgSlotIndices []StackSlotID
	// regSaveSlotIndices are slots reserved for saving callee-saved
	// vector registers.
	regSaveSlotIndices []StackSlotID
	// size is the prolog allocation size, totalSize additionally
	// includes the implicit region.
	size      int
	totalSize int
}

// NewStackSlot appends a slot and returns its id.
func (f *StackFrame) NewStackSlot(slot StackSlot) StackSlotID {
	index := len(f.slots)
	f.slots = append(f.slots, slot)
	if slot.kind == StackSlotCallArg {
		f.callArgSlotIndices = append(f.callArgSlotIndices, index)
	}
	return index
}

func (f *StackFrame) StackSlot(id StackSlotID) *StackSlot { return &f.slots[id] }

func (f *StackFrame) StackSlots() []StackSlot { return f.slots }

func (f *StackFrame) NumStackSlots() int { return len(f.slots) }

func (f *StackFrame) CallArgSlotIndices() []StackSlotID { return f.callArgSlotIndices }

func (f *StackFrame) RegSaveSlotIndices() []StackSlotID { return f.regSaveSlotIndices }

func (f *StackFrame) AddRegSaveSlotIndex(id StackSlotID) {
	f.regSaveSlotIndices = append(f.regSaveSlotIndices, id)
}

func (f *StackFrame) Size() int        { return f.size }
func (f *StackFrame) SetSize(size int) { f.size = size }

func (f *StackFrame) TotalSize() int        { return f.totalSize }
func (f *StackFrame) SetTotalSize(size int) { f.totalSize = size }
