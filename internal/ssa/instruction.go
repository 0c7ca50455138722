package ssa

// Opcode represents an SSA instruction.
type Opcode uint8

const (
	OpcodeInvalid Opcode = iota

	// Memory.

	// `%p = alloca T`.
	OpcodeAlloca
	// `%v = load T, ptr`.
	OpcodeLoad
	// `store value, ptr`.
	OpcodeStore
	// `%v = loadarg T, index`.
	OpcodeLoadArg

	// Integer arithmetic.

	OpcodeAdd
	OpcodeSub
	OpcodeMul
	OpcodeSDiv
	OpcodeSRem
	OpcodeUDiv
	OpcodeURem

	// Bitwise.

	OpcodeAnd
	OpcodeOr
	OpcodeXor
	OpcodeShl
	OpcodeShr

	// Floating point.

	OpcodeFAdd
	OpcodeFSub
	OpcodeFMul
	OpcodeFDiv
	OpcodeSqrt

	// Control flow.

	// `jmp target`.
	OpcodeJmp
	// `cjmp lhs, cmp, rhs, true_target, false_target`.
	OpcodeCJmp
	// `fcjmp lhs, cmp, rhs, true_target, false_target`.
	OpcodeFCJmp
	// `%v = select lhs, cmp, rhs, val_true, val_false`.
	OpcodeSelect

	// Call and return.

	// `[%v =] call callee, args...`.
	OpcodeCall
	// `ret [value]`.
	OpcodeRet

	// Conversions.

	OpcodeUExtend
	OpcodeSExtend
	OpcodeTruncate
	OpcodeFPromote
	OpcodeFDemote
	OpcodeUToF
	OpcodeSToF
	OpcodeFToU
	OpcodeFToS

	// Pointer arithmetic.

	// `%p = offsetptr base, index, base_type` (index scaled by sizeof(base_type)).
	OpcodeOffsetPtr
	// `%p = memberptr aggregate_type, base, field_index`.
	OpcodeMemberPtr

	// `copy dst_ptr, src_ptr, T` is a bitwise block copy.
	OpcodeCopy
)

// InstrFlag is a bitflag attribute of an instruction.
type InstrFlag uint8

const (
	// FlagArgStore marks allocas that are argument storage.
	FlagArgStore InstrFlag = 1 << iota
	// FlagSaveArg marks stores that spill an incoming argument.
	FlagSaveArg
	// FlagVariadic marks calls to variadic functions.
	FlagVariadic
)

// Instruction is a node in a basic block's doubly-linked instruction list.
type Instruction struct {
	opcode   Opcode
	dest     VirtualRegister
	operands []Operand
	flags    InstrFlag

	prev, next *Instruction
}

// NewInstr creates an instruction without a destination register.
func NewInstr(opcode Opcode, operands ...Operand) *Instruction {
	return &Instruction{opcode: opcode, dest: NoRegister, operands: operands}
}

// NewInstrDst creates an instruction that defines dest.
func NewInstrDst(opcode Opcode, dest VirtualRegister, operands ...Operand) *Instruction {
	return &Instruction{opcode: opcode, dest: dest, operands: operands}
}

func (i *Instruction) Opcode() Opcode { return i.opcode }

// Dest returns the destination register, or NoRegister for instructions
// without a result.
func (i *Instruction) Dest() VirtualRegister { return i.dest }

func (i *Instruction) HasDest() bool { return i.dest != NoRegister }

func (i *Instruction) Operands() []Operand { return i.operands }

func (i *Instruction) Operand(index int) *Operand { return &i.operands[index] }

func (i *Instruction) NumOperands() int { return len(i.operands) }

func (i *Instruction) Flags() InstrFlag { return i.flags }

func (i *Instruction) HasFlag(flag InstrFlag) bool { return i.flags&flag != 0 }

func (i *Instruction) SetFlag(flag InstrFlag) *Instruction {
	i.flags |= flag
	return i
}

// Prev returns the previous instruction in the block, or nil at the head.
func (i *Instruction) Prev() *Instruction { return i.prev }

// Next returns the next instruction in the block, or nil at the tail.
func (i *Instruction) Next() *Instruction { return i.next }

// IsTerminator reports whether the instruction ends a basic block.
func (i *Instruction) IsTerminator() bool {
	switch i.opcode {
	case OpcodeJmp, OpcodeCJmp, OpcodeFCJmp, OpcodeRet:
		return true
	}
	return false
}

// BranchTargets returns the branch-target operands of a terminator.
func (i *Instruction) BranchTargets() []*BranchTarget {
	var targets []*BranchTarget
	for idx := range i.operands {
		if i.operands[idx].IsBranchTarget() {
			targets = append(targets, i.operands[idx].BranchTarget())
		}
	}
	return targets
}

// String implements fmt.Stringer.
func (op Opcode) String() string {
	switch op {
	case OpcodeAlloca:
		return "alloca"
	case OpcodeLoad:
		return "load"
	case OpcodeStore:
		return "store"
	case OpcodeLoadArg:
		return "loadarg"
	case OpcodeAdd:
		return "add"
	case OpcodeSub:
		return "sub"
	case OpcodeMul:
		return "mul"
	case OpcodeSDiv:
		return "sdiv"
	case OpcodeSRem:
		return "srem"
	case OpcodeUDiv:
		return "udiv"
	case OpcodeURem:
		return "urem"
	case OpcodeAnd:
		return "and"
	case OpcodeOr:
		return "or"
	case OpcodeXor:
		return "xor"
	case OpcodeShl:
		return "shl"
	case OpcodeShr:
		return "shr"
	case OpcodeFAdd:
		return "fadd"
	case OpcodeFSub:
		return "fsub"
	case OpcodeFMul:
		return "fmul"
	case OpcodeFDiv:
		return "fdiv"
	case OpcodeSqrt:
		return "sqrt"
	case OpcodeJmp:
		return "jmp"
	case OpcodeCJmp:
		return "cjmp"
	case OpcodeFCJmp:
		return "fcjmp"
	case OpcodeSelect:
		return "select"
	case OpcodeCall:
		return "call"
	case OpcodeRet:
		return "ret"
	case OpcodeUExtend:
		return "uextend"
	case OpcodeSExtend:
		return "sextend"
	case OpcodeTruncate:
		return "truncate"
	case OpcodeFPromote:
		return "fpromote"
	case OpcodeFDemote:
		return "fdemote"
	case OpcodeUToF:
		return "utof"
	case OpcodeSToF:
		return "stof"
	case OpcodeFToU:
		return "ftou"
	case OpcodeFToS:
		return "ftos"
	case OpcodeOffsetPtr:
		return "offsetptr"
	case OpcodeMemberPtr:
		return "memberptr"
	case OpcodeCopy:
		return "copy"
	}
	return "???"
}
