package mcode

// BasicBlock is a machine basic block: a label, the block-parameter
// virtual registers preserved from SSA, and a doubly-linked instruction
// list. CFG edges and dominator-tree links are projected from the SSA
// function by the lowerer.
type BasicBlock struct {
	label  string
	params []VirtualReg
	fn     *Function

	first, last *Instruction
	prev, next  *BasicBlock

	preds           []*BasicBlock
	succs           []*BasicBlock
	domtreeParent   *BasicBlock
	domtreeChildren []*BasicBlock
}

func NewBasicBlock(label string, fn *Function) *BasicBlock {
	return &BasicBlock{label: label, fn: fn}
}

func (bb *BasicBlock) Label() string { return bb.label }

func (bb *BasicBlock) Func() *Function { return bb.fn }

func (bb *BasicBlock) Params() []VirtualReg { return bb.params }

func (bb *BasicBlock) AddParam(reg VirtualReg) {
	bb.params = append(bb.params, reg)
}

func (bb *BasicBlock) FirstInstr() *Instruction { return bb.first }

func (bb *BasicBlock) LastInstr() *Instruction { return bb.last }

func (bb *BasicBlock) NumInstrs() int {
	n := 0
	for instr := bb.first; instr != nil; instr = instr.next {
		n++
	}
	return n
}

// Append inserts instr at the tail of the block.
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

// InsertBefore inserts instr before pos; a nil pos appends at the tail.
// This makes "insert before the current insertion iterator" work while
// the iterator sits at the block end, which the lowerer relies on.
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

// Remove unlinks instr. The removed node keeps its links so a traversal
// holding it can step off of it.
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

// Replace substitutes newInstr for old in place and returns newInstr.
func (bb *BasicBlock) Replace(old, newInstr *Instruction) *Instruction {
	bb.InsertBefore(old, newInstr)
	bb.Remove(old)
	return newInstr
}

func (bb *BasicBlock) Prev() *BasicBlock { return bb.prev }
func (bb *BasicBlock) Next() *BasicBlock { return bb.next }

func (bb *BasicBlock) Predecessors() []*BasicBlock { return bb.preds }
func (bb *BasicBlock) Successors() []*BasicBlock   { return bb.succs }

func (bb *BasicBlock) AddPredecessor(pred *BasicBlock) {
	bb.preds = append(bb.preds, pred)
}

func (bb *BasicBlock) AddSuccessor(succ *BasicBlock) {
	bb.succs = append(bb.succs, succ)
}

func (bb *BasicBlock) DomTreeParent() *BasicBlock { return bb.domtreeParent }

func (bb *BasicBlock) SetDomTreeParent(parent *BasicBlock) {
	bb.domtreeParent = parent
}

func (bb *BasicBlock) DomTreeChildren() []*BasicBlock { return bb.domtreeChildren }

func (bb *BasicBlock) AddDomTreeChild(child *BasicBlock) {
	bb.domtreeChildren = append(bb.domtreeChildren, child)
}
