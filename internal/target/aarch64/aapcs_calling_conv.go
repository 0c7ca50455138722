package aarch64

import (
	"github.com/chnoblouch/banjo/internal/codegen"
	"github.com/chnoblouch/banjo/internal/mcode"
	"github.com/chnoblouch/banjo/internal/ssa"
	"github.com/chnoblouch/banjo/internal/target"
)

// aapcsCallingConv implements mcode.CallingConvention for AAPCS64. The
// Darwin variant passes variadic arguments on the stack.
type aapcsCallingConv struct {
	darwin   bool
	analyzer *RegAnalyzer
}

var AAPCSConv = &aapcsCallingConv{analyzer: NewRegAnalyzer()}

// AAPCSDarwinConv handles the Darwin variadic rules.
var AAPCSDarwinConv = &aapcsCallingConv{darwin: true, analyzer: NewRegAnalyzer()}

var generalArgRegs = []mcode.PhysicalReg{R0, R1, R2, R3, R4, R5, R6, R7}
var floatArgRegs = []mcode.PhysicalReg{V0, V1, V2, V3, V4, V5, V6, V7}

var aapcsVolatileRegs = []mcode.PhysicalReg{
	R0, R1, R2, R3, R4, R5, R6, R7, R8, R9, R10, R11, R12, R13,
	R14, R15, R16, R17, R18, V0, V1, V2, V3, V4, V5, V6, V7, SP,
}

// VolatileRegs implements mcode.CallingConvention.
func (cc *aapcsCallingConv) VolatileRegs() []mcode.PhysicalReg {
	return aapcsVolatileRegs
}

// IsVolatile implements mcode.CallingConvention.
func (cc *aapcsCallingConv) IsVolatile(reg mcode.PhysicalReg) bool {
	for _, volatile := range aapcsVolatileRegs {
		if volatile == reg {
			return true
		}
	}
	return false
}

// ArgStorage implements mcode.CallingConvention.
func (cc *aapcsCallingConv) ArgStorage(params []ssa.Type) []mcode.ArgStorage {
	result := make([]mcode.ArgStorage, len(params))

	generalRegIndex := 0
	floatRegIndex := 0
	stackOffset := 0
	argSlotIndex := 0

	for i, param := range params {
		isFP := param.IsFloatingPoint()

		switch {
		case isFP && floatRegIndex < len(floatArgRegs):
			result[i] = mcode.ArgStorage{InReg: true, Reg: floatArgRegs[floatRegIndex]}
			floatRegIndex++
		case !isFP && generalRegIndex < len(generalArgRegs):
			result[i] = mcode.ArgStorage{InReg: true, Reg: generalArgRegs[generalRegIndex]}
			generalRegIndex++
		default:
			result[i] = mcode.ArgStorage{ArgSlotIndex: argSlotIndex, StackOffset: stackOffset}
			argSlotIndex++
			stackOffset += 8
		}
	}

	return result
}

// ReturnMethod implements mcode.CallingConvention.
func (cc *aapcsCallingConv) ReturnMethod(returnType ssa.Type, size int) mcode.ReturnMethod {
	if returnType.IsPrimitive(ssa.VOID) {
		return mcode.ReturnNone
	}
	if returnType.IsStruct() && size > 16 {
		return mcode.ReturnViaPointerArg
	}
	return mcode.ReturnInRegister
}

// ReturnPtrStorage implements mcode.CallingConvention: the indirect
// result register X8 does not consume an argument register.
func (cc *aapcsCallingConv) ReturnPtrStorage(params []ssa.Type) (mcode.ArgStorage, []mcode.ArgStorage) {
	return mcode.ArgStorage{InReg: true, Reg: R8}, cc.ArgStorage(params)
}

func (cc *aapcsCallingConv) lowerCall(a *SSALowerer, instr *ssa.Instruction) {
	funcOperand := instr.Operand(0)

	calleeType := funcOperand.Type()
	retSize := a.l.Size(calleeType)
	viaPtr := instr.HasDest() && cc.ReturnMethod(calleeType, retSize) == mcode.ReturnViaPointerArg

	// On Darwin, every argument of a variadic call goes to the stack.
	variadicOnStack := cc.darwin && instr.HasFlag(ssa.FlagVariadic)

	types := make([]ssa.Type, 0, instr.NumOperands()-1)
	for i := 1; i < instr.NumOperands(); i++ {
		types = append(types, instr.Operand(i).Type())
	}
	argStorage := cc.ArgStorage(types)

	if viaPtr {
		// The destination buffer was allocated during the pre-scan.
		slot := a.l.MapVReg(instr.Dest()).StackSlot()

		a.l.Emit(mcode.NewInstrFlagged(ADD, mcode.InstrFlagCallArg,
			mcode.OperandFromRegister(mcode.RegFromPhysical(R8), 8),
			mcode.OperandFromRegister(mcode.RegFromPhysical(SP), 8),
			mcode.OperandFromStackSlotOffset(mcode.StackSlotOffset{Slot: slot}, 0),
		))
	}

	stackSlotIndex := 0

	for i := 1; i < instr.NumOperands(); i++ {
		operand := instr.Operand(i)
		size := a.l.Size(operand.Type())
		isFloat := operand.Type().IsFloatingPoint()
		curArgStorage := argStorage[i-1]

		onStack := !curArgStorage.InReg || variadicOnStack

		var reg mcode.Register
		if onStack {
			reg = a.l.CreateReg()
		} else {
			reg = mcode.RegFromPhysical(curArgStorage.Reg)
		}

		moveOpcode := MOV
		if isFloat {
			moveOpcode = FMOV
		}

		a.l.EmitFlagged(mcode.InstrFlagCallArg, func() {
			a.l.Emit(mcode.NewInstr(moveOpcode,
				mcode.OperandFromRegister(reg, size),
				a.lowerValue(operand),
			))
		})

		if onStack {
			slotIndex := stackSlotIndex
			if !curArgStorage.InReg {
				slotIndex = curArgStorage.ArgSlotIndex
			}
			stackSlot := cc.callArgSlot(a.l.MachineFunc().StackFrame(), slotIndex)
			stackSlotIndex++

			a.l.Emit(mcode.NewInstr(STR,
				mcode.OperandFromRegister(reg, size),
				mcode.OperandFromRegister(stackSlot, 8),
			))
		}
	}

	var callOpcode mcode.Opcode
	var callOperand mcode.Operand

	switch {
	case funcOperand.IsSymbol():
		callOpcode = BL
		callOperand = mcode.OperandFromSymbol(mcode.NewSymbol(funcOperand.SymbolName()), 8)
	case funcOperand.IsRegister():
		callOpcode = BLR
		callOperand = mcode.OperandFromRegister(a.l.MapVReg(funcOperand.Register()), 8)
	default:
		panic("BUG: callee is neither a symbol nor a register")
	}

	call := a.l.Emit(mcode.NewInstrFlagged(callOpcode, mcode.InstrFlagCall, callOperand))
	call.AddRegOp(R0, mcode.RegDef)
	call.AddRegOp(V0, mcode.RegDef)

	if instr.HasDest() && !viaPtr {
		isFP := calleeType.IsFloatingPoint()

		opcode := MOV
		returnReg := R0
		if isFP {
			opcode = FMOV
			returnReg = V0
		}
		returnSize := retSize

		a.l.Emit(mcode.NewInstr(opcode,
			mcode.OperandFromRegister(mcode.RegFromVirtual(mcode.VirtualReg(instr.Dest())), returnSize),
			mcode.OperandFromRegister(mcode.RegFromPhysical(returnReg), returnSize),
		))
	}
}

// emitMemCopy lowers a memcpy call with already-materialised pointer
// operands, used by the pointer-argument return path.
func (cc *aapcsCallingConv) emitMemCopy(a *SSALowerer, dst, src mcode.Operand, size int, memcpyName string) {
	a.l.EmitFlagged(mcode.InstrFlagCallArg, func() {
		a.l.Emit(mcode.NewInstr(MOV, mcode.OperandFromRegister(mcode.RegFromPhysical(R0), 8), dst))
		a.l.Emit(mcode.NewInstr(MOV, mcode.OperandFromRegister(mcode.RegFromPhysical(R1), 8), src))
	})

	sizeVal := a.moveIntIntoRegister(ssa.NewLargeInt(int64(size)), 8)
	a.l.Emit(mcode.NewInstrFlagged(MOV, mcode.InstrFlagCallArg,
		mcode.OperandFromRegister(mcode.RegFromPhysical(R2), 8), sizeVal))

	a.l.Emit(mcode.NewInstrFlagged(BL, mcode.InstrFlagCall,
		mcode.OperandFromSymbol(mcode.NewSymbol(memcpyName), 8)))
}

func (cc *aapcsCallingConv) callArgSlot(frame *mcode.StackFrame, argSlotIndex int) mcode.Register {
	if len(frame.CallArgSlotIndices()) <= argSlotIndex {
		slot := mcode.NewStackSlot(mcode.StackSlotCallArg, 8, 1)
		slot.SetCallArgIndex(argSlotIndex)
		return mcode.RegFromStackSlot(frame.NewStackSlot(slot))
	}
	return mcode.RegFromStackSlot(frame.CallArgSlotIndices()[argSlotIndex])
}

// CreateArgStoreRegion implements mcode.CallingConvention.
func (cc *aapcsCallingConv) CreateArgStoreRegion(frame *mcode.StackFrame, regions *mcode.StackRegions) {
	region := &regions.ArgStore
	region.Size = 0

	for i := 0; i < frame.NumStackSlots(); i++ {
		slot := frame.StackSlot(i)
		if !slot.IsDefined() && slot.Kind() == mcode.StackSlotArgStore {
			region.Size -= 8
			region.Offsets[i] = region.Size
		}
	}
}

// CreateCallArgRegion implements mcode.CallingConvention.
func (cc *aapcsCallingConv) CreateCallArgRegion(fn *mcode.Function, frame *mcode.StackFrame, regions *mcode.StackRegions) {
	region := &regions.CallArg
	region.Size = 0

	for _, index := range frame.CallArgSlotIndices() {
		slot := frame.StackSlot(index)
		slot.SetOffset(8 * slot.CallArgIndex())
		region.Size += 8
	}
}

// CreateImplicitRegion implements mcode.CallingConvention.
func (cc *aapcsCallingConv) CreateImplicitRegion(fn *mcode.Function, frame *mcode.StackFrame, regions *mcode.StackRegions) {
	savedRegSpaceSize := 8 * len(codegen.ModifiedVolatileRegs(fn))
	regions.Implicit.SavedRegSize = savedRegSpaceSize
	regions.Implicit.Size = savedRegSpaceSize
}

// AllocaSize implements mcode.CallingConvention.
func (cc *aapcsCallingConv) AllocaSize(regions *mcode.StackRegions) int {
	// The arg-store region grows downward, so its size is carried as a
	// negative number.
	argStoreBytes := regions.ArgStore.Size
	if argStoreBytes < 0 {
		argStoreBytes = -argStoreBytes
	}

	minimumSize := argStoreBytes + regions.Generic.Size + regions.CallArg.Size
	return target.Align(minimumSize, 16) + 16
}

// Prolog implements mcode.CallingConvention.
func (cc *aapcsCallingConv) Prolog(fn *mcode.Function) []*mcode.Instruction {
	fp := mcode.RegFromPhysical(R29)
	lr := mcode.RegFromPhysical(R30)
	sp := mcode.RegFromPhysical(SP)
	size := fn.StackFrame().Size()

	var prolog []*mcode.Instruction

	for _, modifiedReg := range codegen.ModifiedVolatileRegs(fn) {
		if modifiedReg == R29 || modifiedReg == R30 {
			continue
		}

		prolog = append(prolog, mcode.NewInstr(STR,
			mcode.OperandFromRegister(mcode.RegFromPhysical(modifiedReg), 8),
			mcode.OperandFromAArch64Addr(mcode.NewAArch64AddrOffsetImmWrite(sp, -16), 0),
		))
	}

	prolog = append(prolog, mcode.NewInstr(STP,
		mcode.OperandFromRegister(fp, 8),
		mcode.OperandFromRegister(lr, 8),
		mcode.OperandFromAArch64Addr(mcode.NewAArch64AddrOffsetImmWrite(sp, -16), 0),
	))

	prolog = append(prolog, mcode.NewInstrFlagged(SUB, mcode.InstrFlagAlloca,
		mcode.OperandFromRegister(sp, 8),
		mcode.OperandFromRegister(sp, 8),
		mcode.OperandFromInt(int64(size), 0),
	))

	return prolog
}

// Epilog implements mcode.CallingConvention.
func (cc *aapcsCallingConv) Epilog(fn *mcode.Function) []*mcode.Instruction {
	fp := mcode.RegFromPhysical(R29)
	lr := mcode.RegFromPhysical(R30)
	sp := mcode.RegFromPhysical(SP)
	size := fn.StackFrame().Size()

	var epilog []*mcode.Instruction

	epilog = append(epilog, mcode.NewInstr(ADD,
		mcode.OperandFromRegister(sp, 8),
		mcode.OperandFromRegister(sp, 8),
		mcode.OperandFromInt(int64(size), 0),
	))

	// Post-indexed pop of the frame record.
	epilog = append(epilog, mcode.NewInstr(LDP,
		mcode.OperandFromRegister(fp, 8),
		mcode.OperandFromRegister(lr, 8),
		mcode.OperandFromAArch64Addr(mcode.NewAArch64AddrBase(sp), 0),
		mcode.OperandFromInt(16, 0),
	))

	modifiedRegs := codegen.ModifiedVolatileRegs(fn)
	for i := len(modifiedRegs) - 1; i >= 0; i-- {
		modifiedReg := modifiedRegs[i]
		if modifiedReg == R29 || modifiedReg == R30 {
			continue
		}

		epilog = append(epilog, mcode.NewInstr(LDR,
			mcode.OperandFromRegister(mcode.RegFromPhysical(modifiedReg), 8),
			mcode.OperandFromAArch64Addr(mcode.NewAArch64AddrBase(sp), 0),
			mcode.OperandFromInt(16, 0),
		))
	}

	return epilog
}

// FixUpInstr implements mcode.CallingConvention: an LDR from a stack
// slot whose final offset does not fit the unsigned-immediate encoding
// is rewritten through a scratch register.
func (cc *aapcsCallingConv) FixUpInstr(block *mcode.BasicBlock, instr *mcode.Instruction) *mcode.Instruction {
	if instr.Opcode() != LDR {
		return instr
	}

	dest := *instr.Operand(0)
	address := instr.Operand(1)

	if !address.IsStackSlot() {
		return instr
	}

	offset := block.Func().StackFrame().StackSlot(address.StackSlot()).Offset()
	if isAddrOffsetEncodable(offset, dest.Size()) {
		return instr
	}

	moveInstr := block.Replace(instr, mcode.NewInstr(MOV,
		mcode.OperandFromRegister(mcode.RegFromVirtual(-1), 8),
		mcode.OperandFromInt(int64(offset), 8),
	))

	loadInstr := block.InsertAfter(moveInstr, mcode.NewInstr(LDR,
		dest,
		mcode.OperandFromAArch64Addr(mcode.NewAArch64AddrOffsetReg(
			mcode.RegFromPhysical(SP), mcode.RegFromVirtual(-1)), 0),
	))

	scratch := codegen.NewLateRegAlloc(block, moveInstr, loadInstr, cc.analyzer).Alloc()

	moveInstr.Operand(0).SetToRegister(mcode.RegFromPhysical(scratch))
	loadInstr.Operand(1).SetToAArch64Addr(mcode.NewAArch64AddrOffsetReg(
		mcode.RegFromPhysical(SP), mcode.RegFromPhysical(scratch)))

	return loadInstr
}

// IsFuncExit implements mcode.CallingConvention.
func (cc *aapcsCallingConv) IsFuncExit(opcode mcode.Opcode) bool {
	return opcode == RET
}
