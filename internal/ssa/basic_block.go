package ssa

// BasicBlock is a basic block of an SSA function.
//
// Note: we use the "block argument" variant of SSA instead of PHI nodes:
// values cross block boundaries only through block parameters, and every
// branch target carries exactly as many arguments as the target block has
// parameters.
type BasicBlock struct {
	// label is empty for the entry block.
	label      string
	paramRegs  []VirtualRegister
	paramTypes []Type

	first, last *Instruction
	prev, next  *BasicBlock
}

func NewBasicBlock(label string) *BasicBlock {
	return &BasicBlock{label: label}
}

func (bb *BasicBlock) Label() string { return bb.label }

// HasLabel reports whether the block has a printable label. Only the
// entry block goes without one.
func (bb *BasicBlock) HasLabel() bool { return bb.label != "" }

// AddParam appends a block parameter, allocating its register from f.
func (bb *BasicBlock) AddParam(f *Function, typ Type) VirtualRegister {
	reg := f.NextVirtualReg()
	bb.paramRegs = append(bb.paramRegs, reg)
	bb.paramTypes = append(bb.paramTypes, typ)
	return reg
}

func (bb *BasicBlock) ParamRegs() []VirtualRegister { return bb.paramRegs }

func (bb *BasicBlock) ParamTypes() []Type { return bb.paramTypes }

// FirstInstr returns the head of the instruction list, or nil if empty.
func (bb *BasicBlock) FirstInstr() *Instruction { return bb.first }

// LastInstr returns the tail of the instruction list, or nil if empty.
func (bb *BasicBlock) LastInstr() *Instruction { return bb.last }

// Append inserts instr at the tail of the block and returns it.
func (bb *BasicBlock) Append(instr *Instruction) *Instruction {
	instr.prev = bb.last
	instr.next = nil
	if bb.last != nil {
		bb.last.next = instr
	} else {
		bb.first = instr
	}
	bb.last = instr
	return instr
}

// InsertBefore inserts instr before pos. A nil pos appends at the tail,
// which makes "insert before the current iterator" work at the block end.
func (bb *BasicBlock) InsertBefore(pos, instr *Instruction) *Instruction {
	if pos == nil {
		return bb.Append(instr)
	}

	instr.prev = pos.prev
	instr.next = pos
	if pos.prev != nil {
		pos.prev.next = instr
	} else {
		bb.first = instr
	}
	pos.prev = instr
	return instr
}

// InsertAfter inserts instr after pos.
func (bb *BasicBlock) InsertAfter(pos, instr *Instruction) *Instruction {
	if pos == nil {
		panic("BUG: InsertAfter with nil position")
	}

	instr.next = pos.next
	instr.prev = pos
	if pos.next != nil {
		pos.next.prev = instr
	} else {
		bb.last = instr
	}
	pos.next = instr
	return instr
}

// Remove unlinks instr from the block. The node keeps its prev/next
// pointers so that an iteration over the old links can continue.
func (bb *BasicBlock) Remove(instr *Instruction) {
	if instr.prev != nil {
		instr.prev.next = instr.next
	} else {
		bb.first = instr.next
	}
	if instr.next != nil {
		instr.next.prev = instr.prev
	} else {
		bb.last = instr.prev
	}
}

// Prev returns the previous block in the function, or nil at the entry.
func (bb *BasicBlock) Prev() *BasicBlock { return bb.prev }

// Next returns the next block in the function layout order, or nil.
func (bb *BasicBlock) Next() *BasicBlock { return bb.next }
