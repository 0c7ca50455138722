package ssa

// CallingConv selects the ABI contract of a function.
type CallingConv uint8

const (
	CallingConvNone CallingConv = iota
	CallingConvX8664SysV
	CallingConvX8664MSABI
	CallingConvAArch64AAPCS
)

// String implements fmt.Stringer.
func (cc CallingConv) String() string {
	switch cc {
	case CallingConvX8664SysV:
		return "sysv_abi"
	case CallingConvX8664MSABI:
		return "ms_abi"
	case CallingConvAArch64AAPCS:
		return "aapcs"
	}
	return "???"
}

// Function is a function definition: a linked list of basic blocks plus a
// monotonic virtual-register allocator.
type Function struct {
	Name        string
	Params      []Type
	ReturnType  Type
	CallingConv CallingConv
	// Global is true if the symbol is linked globally.
	Global bool

	first, last *BasicBlock
	nextVReg    VirtualRegister
}

func NewFunction(name string, params []Type, returnType Type, callingConv CallingConv) *Function {
	return &Function{
		Name:        name,
		Params:      params,
		ReturnType:  returnType,
		CallingConv: callingConv,
	}
}

// NextVirtualReg allocates a fresh virtual register.
func (f *Function) NextVirtualReg() VirtualRegister {
	reg := f.nextVReg
	f.nextVReg++
	return reg
}

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

// CreateBlock appends a new block with the given label.
func (f *Function) CreateBlock(label string) *BasicBlock {
	return f.AppendBlock(NewBasicBlock(label))
}

// EntryBlock returns the first basic block. Every function has at least
// one.
func (f *Function) EntryBlock() *BasicBlock { return f.first }

// FirstBlock returns the head of the block list.
func (f *Function) FirstBlock() *BasicBlock { return f.first }

// LastBlock returns the tail of the block list.
func (f *Function) LastBlock() *BasicBlock { return f.last }

// NumBlocks counts the basic blocks.
func (f *Function) NumBlocks() int {
	n := 0
	for blk := f.first; blk != nil; blk = blk.next {
		n++
	}
	return n
}

// FindBlock returns the block with the given label, or nil.
func (f *Function) FindBlock(label string) *BasicBlock {
	for blk := f.first; blk != nil; blk = blk.next {
		if blk.label == label {
			return blk
		}
	}
	return nil
}

// FunctionDecl declares an external function.
type FunctionDecl struct {
	Name        string
	Params      []Type
	ReturnType  Type
	CallingConv CallingConv
}
