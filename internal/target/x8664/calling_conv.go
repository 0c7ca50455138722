package x8664

import (
	"github.com/chnoblouch/banjo/internal/codegen"
	"github.com/chnoblouch/banjo/internal/mcode"
	"github.com/chnoblouch/banjo/internal/ssa"
	"github.com/chnoblouch/banjo/internal/target"
)

type x8664Variant uint8

const (
	variantSysV x8664Variant = iota
	variantMSABI
)

// x8664CallingConv implements mcode.CallingConvention for the two x86-64
// ABIs. The variants differ in argument registers, the volatile set,
// shadow space, and frame-pointer handling.
type x8664CallingConv struct {
	variant      x8664Variant
	volatileRegs []mcode.PhysicalReg
	argRegsInt   []mcode.PhysicalReg
	argRegsFloat []mcode.PhysicalReg
}

var SysVCallingConv = &x8664CallingConv{
	variant: variantSysV,
	volatileRegs: []mcode.PhysicalReg{
		RAX, RDI, RSI, RDX, RCX, RSP, RBP, R8, R9, R10, R11, XMM0, XMM1, XMM2,
		XMM3, XMM4, XMM5, XMM6, XMM7, XMM8, XMM9, XMM10, XMM11, XMM12, XMM13, XMM14, XMM15,
	},
	argRegsInt:   []mcode.PhysicalReg{RDI, RSI, RDX, RCX, R8, R9},
	argRegsFloat: []mcode.PhysicalReg{XMM0, XMM1, XMM2, XMM3, XMM4, XMM5, XMM6, XMM7, XMM8},
}

var MSABICallingConv = &x8664CallingConv{
	variant: variantMSABI,
	volatileRegs: []mcode.PhysicalReg{
		RAX, RCX, RDX, RSP, RBP, R8, R9, R10, R11, XMM0, XMM1, XMM2, XMM3, XMM4, XMM5,
	},
	argRegsInt:   []mcode.PhysicalReg{RCX, RDX, R8, R9},
	argRegsFloat: []mcode.PhysicalReg{XMM0, XMM1, XMM2, XMM3},
}

// VolatileRegs implements mcode.CallingConvention.
func (cc *x8664CallingConv) VolatileRegs() []mcode.PhysicalReg {
	return cc.volatileRegs
}

// IsVolatile implements mcode.CallingConvention.
func (cc *x8664CallingConv) IsVolatile(reg mcode.PhysicalReg) bool {
	for _, volatile := range cc.volatileRegs {
		if volatile == reg {
			return true
		}
	}
	return false
}

// ArgStorage implements mcode.CallingConvention.
func (cc *x8664CallingConv) ArgStorage(params []ssa.Type) []mcode.ArgStorage {
	result := make([]mcode.ArgStorage, len(params))

	if cc.variant == variantMSABI {
		// MS assigns registers by position; the shadow space reserves a
		// home slot for every register argument.
		for i, param := range params {
			if i < len(cc.argRegsInt) {
				reg := cc.argRegsInt[i]
				if param.IsFloatingPoint() {
					reg = cc.argRegsFloat[i]
				}
				result[i] = mcode.ArgStorage{InReg: true, Reg: reg}
			} else {
				result[i] = mcode.ArgStorage{
					ArgSlotIndex: i - len(cc.argRegsInt),
					StackOffset:  8 * i,
				}
			}
		}
		return result
	}

	generalRegIndex := 0
	floatRegIndex := 0
	argSlotIndex := 0

	for i, param := range params {
		isFP := param.IsFloatingPoint()

		switch {
		case isFP && floatRegIndex < len(cc.argRegsFloat):
			result[i] = mcode.ArgStorage{InReg: true, Reg: cc.argRegsFloat[floatRegIndex]}
			floatRegIndex++
		case !isFP && generalRegIndex < len(cc.argRegsInt):
			result[i] = mcode.ArgStorage{InReg: true, Reg: cc.argRegsInt[generalRegIndex]}
			generalRegIndex++
		default:
			result[i] = mcode.ArgStorage{ArgSlotIndex: argSlotIndex}
			argSlotIndex++
			result[i].StackOffset = 8 * argSlotIndex
		}
	}

	return result
}

// ReturnMethod implements mcode.CallingConvention.
func (cc *x8664CallingConv) ReturnMethod(returnType ssa.Type, size int) mcode.ReturnMethod {
	if returnType.IsPrimitive(ssa.VOID) {
		return mcode.ReturnNone
	}
	if !returnType.IsStruct() {
		return mcode.ReturnInRegister
	}

	if cc.variant == variantMSABI {
		// MS returns aggregates in RAX only for power-of-two sizes up
		// to 8 bytes.
		if size <= 8 && size&(size-1) == 0 {
			return mcode.ReturnInRegister
		}
		return mcode.ReturnViaPointerArg
	}

	if size <= 16 {
		return mcode.ReturnInRegister
	}
	return mcode.ReturnViaPointerArg
}

// ReturnPtrStorage implements mcode.CallingConvention: the hidden
// pointer takes the first integer argument register and shifts the
// visible arguments.
func (cc *x8664CallingConv) ReturnPtrStorage(params []ssa.Type) (mcode.ArgStorage, []mcode.ArgStorage) {
	all := cc.ArgStorage(append([]ssa.Type{ssa.ADDR.Type()}, params...))
	return all[0], all[1:]
}

// lowerCall generates the argument moves, the CALL itself, and the
// return-value move of one call site.
func (cc *x8664CallingConv) lowerCall(x *SSALowerer, instr *ssa.Instruction) {
	calleeType := instr.Operand(0).Type()
	retSize := x.l.Size(calleeType)
	viaPtr := instr.HasDest() && cc.ReturnMethod(calleeType, retSize) == mcode.ReturnViaPointerArg

	types := make([]ssa.Type, 0, instr.NumOperands())
	if viaPtr {
		types = append(types, ssa.ADDR.Type())
	}
	for i := 1; i < instr.NumOperands(); i++ {
		types = append(types, instr.Operand(i).Type())
	}

	storage := cc.ArgStorage(types)

	if viaPtr {
		// The destination buffer was allocated during the pre-scan;
		// pass its address as the synthetic first argument.
		slot := x.l.MapVReg(instr.Dest()).StackSlot()

		x.l.Emit(mcode.NewInstrFlagged(LEA, mcode.InstrFlagCallArg,
			mcode.OperandFromRegister(mcode.RegFromPhysical(storage[0].Reg), 8),
			mcode.OperandFromStackSlot(slot, 8),
		))

		storage = storage[1:]
	}

	for i := 1; i < instr.NumOperands(); i++ {
		reg := cc.argReg(x, storage[i-1])
		operand := *instr.Operand(i)
		x.l.EmitFlagged(mcode.InstrFlagCallArg, func() {
			x.lowerAsMoveIntoReg(reg, operand)
		})
	}

	cc.appendCall(x, instr.Operand(0))

	if instr.HasDest() && !viaPtr {
		cc.appendRetValMove(x)
	}
}

func (cc *x8664CallingConv) argReg(x *SSALowerer, storage mcode.ArgStorage) mcode.Register {
	if storage.InReg {
		return mcode.RegFromPhysical(storage.Reg)
	}

	frame := x.l.MachineFunc().StackFrame()

	if len(frame.CallArgSlotIndices()) <= storage.ArgSlotIndex {
		slot := mcode.NewStackSlot(mcode.StackSlotCallArg, 8, 1)
		slot.SetCallArgIndex(storage.ArgSlotIndex)
		return mcode.RegFromStackSlot(frame.NewStackSlot(slot))
	}

	return mcode.RegFromStackSlot(frame.CallArgSlotIndices()[storage.ArgSlotIndex])
}

func (cc *x8664CallingConv) appendCall(x *SSALowerer, funcOperand *ssa.Operand) {
	var callee mcode.Operand

	if funcOperand.IsSymbol() {
		callee = x.lowerAsOperand(*funcOperand, valueLowerFlags{isCallee: true})
	} else if funcOperand.IsRegister() {
		producer := x.l.Producer(funcOperand.Register())
		if producer != nil && producer.Opcode() == ssa.OpcodeLoad {
			callee = x.addrLowering.lowerAddress(producer.Operand(1))
			x.l.DiscardUse(funcOperand.Register())
		} else {
			callee = mcode.OperandFromRegister(x.l.MapVReg(funcOperand.Register()), PtrSize)
		}
	} else {
		panic("BUG: callee is neither a symbol nor a register")
	}

	call := x.l.Emit(mcode.NewInstrFlagged(CALL, mcode.InstrFlagCall, callee))

	// The call defines the return registers so the allocator spills
	// live values held in them.
	call.AddRegOp(RAX, mcode.RegDef)
	call.AddRegOp(XMM0, mcode.RegDef)
}

func (cc *x8664CallingConv) appendRetValMove(x *SSALowerer) {
	instr := x.l.CurrentInstr()

	returnType := instr.Operand(0).Type()
	returnSize := x.l.Size(returnType)

	opcode := MOV
	srcReg := mcode.PhysicalReg(RAX)

	if returnType.IsFloatingPoint() {
		if returnSize == 4 {
			opcode = MOVSS
		} else if returnSize == 8 {
			opcode = MOVSD
		} else {
			panic("BUG: unsupported floating point return size")
		}
		srcReg = XMM0
	}

	x.l.Emit(mcode.NewInstr(opcode,
		mcode.OperandFromRegister(mcode.RegFromVirtual(mcode.VirtualReg(instr.Dest())), returnSize),
		mcode.OperandFromRegister(mcode.RegFromPhysical(srcReg), returnSize),
	))
}

// CreateArgStoreRegion implements mcode.CallingConvention.
func (cc *x8664CallingConv) CreateArgStoreRegion(frame *mcode.StackFrame, regions *mcode.StackRegions) {
	region := &regions.ArgStore
	region.Size = 0

	if cc.variant == variantMSABI {
		// The first argument home lives just above the implicit
		// region in the caller's shadow space.
		argStoreOffset := regions.Implicit.Size

		for i := 0; i < frame.NumStackSlots(); i++ {
			slot := frame.StackSlot(i)
			if !slot.IsDefined() && slot.Kind() == mcode.StackSlotArgStore {
				region.Offsets[i] = argStoreOffset
				argStoreOffset += 8
			}
		}
		return
	}

	for i := 0; i < frame.NumStackSlots(); i++ {
		slot := frame.StackSlot(i)
		if !slot.IsDefined() && slot.Kind() == mcode.StackSlotArgStore {
			region.Size -= 8
			region.Offsets[i] = region.Size
		}
	}
}

// CreateCallArgRegion implements mcode.CallingConvention.
func (cc *x8664CallingConv) CreateCallArgRegion(fn *mcode.Function, frame *mcode.StackFrame, regions *mcode.StackRegions) {
	region := &regions.CallArg
	region.Size = 0

	if cc.variant == variantMSABI {
		hasCall := false
		for block := fn.FirstBlock(); block != nil && !hasCall; block = block.Next() {
			for instr := block.FirstInstr(); instr != nil; instr = instr.Next() {
				if instr.Opcode() == CALL {
					hasCall = true
					break
				}
			}
		}

		if !hasCall {
			return
		}
		region.Size = 32

		for _, index := range frame.CallArgSlotIndices() {
			slot := frame.StackSlot(index)
			slot.SetOffset(32 + 8*slot.CallArgIndex())
			region.Size += 8
		}
		return
	}

	for _, index := range frame.CallArgSlotIndices() {
		slot := frame.StackSlot(index)
		slot.SetOffset(8 * slot.CallArgIndex())
		region.Size += 8
	}
}

// CreateImplicitRegion implements mcode.CallingConvention.
func (cc *x8664CallingConv) CreateImplicitRegion(fn *mcode.Function, frame *mcode.StackFrame, regions *mcode.StackRegions) {
	savedRegSpaceSize := 0
	for _, reg := range codegen.ModifiedVolatileRegs(fn) {
		if reg >= RAX && reg <= R15 {
			savedRegSpaceSize += 8
		} else {
			index := frame.NewStackSlot(mcode.NewStackSlot(mcode.StackSlotGeneric, 8, 8))
			frame.AddRegSaveSlotIndex(index)
		}
	}

	regions.Implicit.SavedRegSize = savedRegSpaceSize
	regions.Implicit.Size = cc.implicitStackBytes() + savedRegSpaceSize
}

func (cc *x8664CallingConv) implicitStackBytes() int {
	if cc.variant == variantMSABI {
		// CALL return address.
		return 8
	}
	// CALL return address + saved RBP.
	return 16
}

// AllocaSize implements mcode.CallingConvention.
func (cc *x8664CallingConv) AllocaSize(regions *mcode.StackRegions) int {
	// The arg-store region grows downward, so its size is carried as a
	// negative number.
	argStoreBytes := regions.ArgStore.Size
	if argStoreBytes < 0 {
		argStoreBytes = -argStoreBytes
	}
	genericBytes := regions.Generic.Size
	callArgBytes := regions.CallArg.Size

	minimumSize := argStoreBytes + genericBytes + callArgBytes

	if cc.variant == variantMSABI {
		// Leaf functions need no alignment.
		if callArgBytes == 0 {
			return minimumSize
		}
		implicitBytes := regions.Implicit.Size
		return target.Align(minimumSize+implicitBytes, 16) - implicitBytes
	}

	savedRegBytes := regions.Implicit.SavedRegSize
	return target.Align(minimumSize+savedRegBytes, 16) - savedRegBytes
}

// Prolog implements mcode.CallingConvention.
func (cc *x8664CallingConv) Prolog(fn *mcode.Function) []*mcode.Instruction {
	var prolog []*mcode.Instruction
	modifiedVolatileRegs := codegen.ModifiedVolatileRegs(fn)

	// Push modified non-volatile general-purpose registers.
	for _, reg := range modifiedVolatileRegs {
		if reg >= RAX && reg <= R15 {
			operand := mcode.OperandFromRegister(mcode.RegFromPhysical(reg), 8)
			prolog = append(prolog,
				mcode.NewInstr(PUSH, operand),
				mcode.NewInstr(mcode.PseudoEHPushReg, operand),
			)
		}
	}

	if cc.variant == variantSysV {
		rbp := mcode.OperandFromRegister(mcode.RegFromPhysical(RBP), 8)
		rsp := mcode.OperandFromRegister(mcode.RegFromPhysical(RSP), 8)

		prolog = append(prolog,
			mcode.NewInstr(PUSH, rbp),
			mcode.NewInstr(MOV, rbp, rsp),
		)
	}

	// Allocate the stack frame.
	if cc.variant == variantSysV || fn.StackFrame().Size() > 0 {
		prolog = append(prolog, mcode.NewInstrFlagged(SUB, mcode.InstrFlagAlloca,
			mcode.OperandFromRegister(mcode.RegFromPhysical(RSP), 8),
			mcode.OperandFromInt(int64(fn.StackFrame().Size()), 0),
		))
	}

	// Save modified non-volatile SSE registers into their reserved
	// slots.
	sseSlotIndex := 0
	for _, reg := range modifiedVolatileRegs {
		if reg >= XMM0 && reg <= XMM15 {
			slotIndex := fn.StackFrame().RegSaveSlotIndices()[sseSlotIndex]
			sseSlotIndex++

			prolog = append(prolog, mcode.NewInstr(MOVSD,
				mcode.OperandFromStackSlot(slotIndex, 8),
				mcode.OperandFromRegister(mcode.RegFromPhysical(reg), 8),
			))
		}
	}

	return prolog
}

// Epilog implements mcode.CallingConvention.
func (cc *x8664CallingConv) Epilog(fn *mcode.Function) []*mcode.Instruction {
	var epilog []*mcode.Instruction
	modifiedVolatileRegs := codegen.ModifiedVolatileRegs(fn)

	// Restore modified non-volatile SSE registers.
	sseSlotIndex := 0
	for _, reg := range modifiedVolatileRegs {
		if reg >= XMM0 && reg <= XMM15 {
			slotIndex := fn.StackFrame().RegSaveSlotIndices()[sseSlotIndex]
			sseSlotIndex++

			epilog = append(epilog, mcode.NewInstr(MOVSD,
				mcode.OperandFromRegister(mcode.RegFromPhysical(reg), 8),
				mcode.OperandFromStackSlot(slotIndex, 8),
			))
		}
	}

	// Deallocate the stack frame.
	if cc.variant == variantSysV || fn.StackFrame().Size() > 0 {
		epilog = append(epilog, mcode.NewInstr(ADD,
			mcode.OperandFromRegister(mcode.RegFromPhysical(RSP), 8),
			mcode.OperandFromInt(int64(fn.StackFrame().Size()), 0),
		))
	}

	if cc.variant == variantSysV {
		epilog = append(epilog, mcode.NewInstr(POP,
			mcode.OperandFromRegister(mcode.RegFromPhysical(RBP), 8)))
	}

	// Pop modified non-volatile general-purpose registers in reverse.
	for i := len(modifiedVolatileRegs) - 1; i >= 0; i-- {
		reg := modifiedVolatileRegs[i]
		if reg >= RAX && reg <= R15 {
			epilog = append(epilog, mcode.NewInstr(POP,
				mcode.OperandFromRegister(mcode.RegFromPhysical(reg), 8)))
		}
	}

	return epilog
}

// FixUpInstr implements mcode.CallingConvention. Every x86-64 addressing
// form encodes 32-bit displacements, so nothing needs rewriting.
func (cc *x8664CallingConv) FixUpInstr(block *mcode.BasicBlock, instr *mcode.Instruction) *mcode.Instruction {
	return instr
}

// IsFuncExit implements mcode.CallingConvention.
func (cc *x8664CallingConv) IsFuncExit(opcode mcode.Opcode) bool {
	return opcode == RET
}
