package aarch64

import (
	"math"
	"strconv"

	"github.com/chnoblouch/banjo/internal/codegen"
	"github.com/chnoblouch/banjo/internal/mcode"
	"github.com/chnoblouch/banjo/internal/ssa"
)

// SSALowerer is the AArch64 instruction selector.
type SSALowerer struct {
	l *codegen.SSALowerer
	t *Target

	nextConstIndex int
}

func newSSALowerer(t *Target) *SSALowerer {
	return &SSALowerer{t: t}
}

// SetLowerer implements codegen.TargetLowerer.
func (a *SSALowerer) SetLowerer(l *codegen.SSALowerer) {
	a.l = l
}

// InitModule implements codegen.TargetLowerer.
func (a *SSALowerer) InitModule(mod *ssa.Module) {}

// CallingConvention implements codegen.TargetLowerer.
func (a *SSALowerer) CallingConvention(callingConv ssa.CallingConv) mcode.CallingConvention {
	switch callingConv {
	case ssa.CallingConvAArch64AAPCS:
		return DefaultCallingConv(a.t.Descr())
	default:
		return nil
	}
}

// LowerInstr implements codegen.TargetLowerer.
func (a *SSALowerer) LowerInstr(instr *ssa.Instruction) {
	switch instr.Opcode() {
	case ssa.OpcodeLoad:
		a.lowerLoad(instr)
	case ssa.OpcodeStore:
		a.lowerStore(instr)
	case ssa.OpcodeLoadArg:
		a.lowerLoadArg(instr)
	case ssa.OpcodeAdd:
		a.lowerBinaryOp(ADD, instr)
	case ssa.OpcodeSub:
		a.lowerBinaryOp(SUB, instr)
	case ssa.OpcodeMul:
		a.lowerMul(instr)
	case ssa.OpcodeSDiv:
		a.lowerBinaryOp(SDIV, instr)
	case ssa.OpcodeSRem:
		a.lowerRem(SDIV, instr)
	case ssa.OpcodeUDiv:
		a.lowerBinaryOp(UDIV, instr)
	case ssa.OpcodeURem:
		a.lowerRem(UDIV, instr)
	case ssa.OpcodeFAdd:
		a.lowerFPOperation(FADD, instr)
	case ssa.OpcodeFSub:
		a.lowerFPOperation(FSUB, instr)
	case ssa.OpcodeFMul:
		a.lowerFPOperation(FMUL, instr)
	case ssa.OpcodeFDiv:
		a.lowerFPOperation(FDIV, instr)
	case ssa.OpcodeAnd:
		a.lowerBinaryOp(AND, instr)
	case ssa.OpcodeOr:
		a.lowerBinaryOp(ORR, instr)
	case ssa.OpcodeXor:
		a.lowerBinaryOp(EOR, instr)
	case ssa.OpcodeShl:
		a.lowerBinaryOp(LSL, instr)
	case ssa.OpcodeShr:
		a.lowerBinaryOp(ASR, instr)
	case ssa.OpcodeJmp:
		a.lowerJmp(instr)
	case ssa.OpcodeCJmp:
		a.lowerCJmp(instr, CMP)
	case ssa.OpcodeFCJmp:
		a.lowerCJmp(instr, FCMP)
	case ssa.OpcodeSelect:
		a.lowerSelect(instr)
	case ssa.OpcodeRet:
		a.lowerRet(instr)
	case ssa.OpcodeUExtend:
		a.lowerUExtend(instr)
	case ssa.OpcodeSExtend:
		a.lowerSExtend(instr)
	case ssa.OpcodeTruncate:
		a.lowerTruncate(instr)
	case ssa.OpcodeFPromote:
		a.lowerFCvt(instr, 8)
	case ssa.OpcodeFDemote:
		a.lowerFCvt(instr, 4)
	case ssa.OpcodeUToF:
		a.lowerIntToFloat(UCVTF, instr)
	case ssa.OpcodeSToF:
		a.lowerIntToFloat(SCVTF, instr)
	case ssa.OpcodeFToU:
		a.lowerFloatToInt(FCVTZU, instr)
	case ssa.OpcodeFToS:
		a.lowerFloatToInt(FCVTZS, instr)
	case ssa.OpcodeOffsetPtr:
		a.lowerOffsetPtr(instr)
	case ssa.OpcodeMemberPtr:
		a.lowerMemberPtr(instr)
	case ssa.OpcodeCopy:
		a.lowerCopy(instr)
	case ssa.OpcodeSqrt:
		a.lowerSqrt(instr)
	default:
		a.l.WarnUnimplemented(instr.Opcode().String())
	}
}

// LowerCall implements codegen.TargetLowerer.
func (a *SSALowerer) LowerCall(instr *ssa.Instruction) {
	conv := a.l.MachineFunc().CallingConv().(*aapcsCallingConv)
	conv.lowerCall(a, instr)
}

// SaveReturnPointer implements codegen.TargetLowerer.
func (a *SSALowerer) SaveReturnPointer(entry *mcode.BasicBlock, slot mcode.StackSlotID, storage mcode.ArgStorage) {
	instr := mcode.NewInstrFlagged(STR, mcode.InstrFlagArgStore,
		mcode.OperandFromRegister(mcode.RegFromPhysical(storage.Reg), 8),
		mcode.OperandFromStackSlot(slot, 8),
	)
	entry.InsertBefore(entry.FirstInstr(), instr)
}

// lowerValue materialises any SSA value into an operand; immediates and
// symbols are moved into fresh registers first.
func (a *SSALowerer) lowerValue(operand *ssa.Operand) mcode.Operand {
	size := a.l.Size(operand.Type())

	switch {
	case operand.IsImmediate():
		return a.moveConstIntoRegister(operand, operand.Type())
	case operand.IsRegister():
		return a.lowerRegVal(operand.Register(), size)
	case operand.IsSymbol():
		return a.moveSymbolIntoRegister(operand.SymbolName())
	}
	panic("BUG: cannot lower value")
}

func (a *SSALowerer) lowerRegVal(virtualReg ssa.VirtualRegister, size int) mcode.Operand {
	reg := a.l.MapVReg(virtualReg)

	if reg.IsStackSlot() {
		tempReg := a.l.CreateReg()
		a.l.Emit(mcode.NewInstr(ADD,
			mcode.OperandFromRegister(tempReg, size),
			mcode.OperandFromRegister(mcode.RegFromPhysical(SP), size),
			mcode.OperandFromStackSlotOffset(mcode.StackSlotOffset{Slot: reg.StackSlot()}, 0),
		))
		return mcode.OperandFromRegister(tempReg, size)
	}

	return mcode.OperandFromRegister(reg, size)
}

func (a *SSALowerer) lowerAddress(operand *ssa.Operand) mcode.Operand {
	if operand.IsRegister() {
		reg := a.l.MapVReg(operand.Register())
		if reg.IsStackSlot() {
			return mcode.OperandFromRegister(reg, 8)
		}
		return mcode.OperandFromAArch64Addr(mcode.NewAArch64AddrBase(reg), 0)
	} else if operand.IsSymbol() {
		tempVal := a.moveSymbolIntoRegister(operand.SymbolName())
		return mcode.OperandFromAArch64Addr(mcode.NewAArch64AddrBase(tempVal.Register()), 0)
	}
	panic("BUG: cannot lower address")
}

func (a *SSALowerer) lowerLoad(instr *ssa.Instruction) {
	typ := instr.Operand(0).Type()
	size := a.l.Size(typ)

	var flags mcode.InstrFlag
	if typ.IsFloatingPoint() {
		flags = mcode.InstrFlagFloat
	}

	opcode := LDR
	if size == 1 {
		opcode = LDRB
	} else if size == 2 {
		opcode = LDRH
	}

	a.l.Emit(mcode.NewInstrFlagged(opcode, flags,
		mcode.OperandFromRegister(a.l.MapVRegAsReg(instr.Dest()), size),
		a.lowerAddress(instr.Operand(1)),
	))
}

func (a *SSALowerer) lowerStore(instr *ssa.Instruction) {
	size := a.l.Size(instr.Operand(0).Type())

	opcode := STR
	if size == 1 {
		opcode = STRB
	} else if size == 2 {
		opcode = STRH
	}

	a.l.Emit(mcode.NewInstr(opcode,
		a.lowerValue(instr.Operand(0)),
		a.lowerAddress(instr.Operand(1)),
	))
}

func (a *SSALowerer) lowerLoadArg(instr *ssa.Instruction) {
	typ := instr.Operand(0).Type()
	param := int(instr.Operand(1).IntImmediate().Int64())

	size := a.l.Size(typ)
	isFP := typ.IsFloatingPoint()

	storage := a.l.ParamArgStorage()[param]

	var reg mcode.Register
	if storage.InReg {
		reg = mcode.RegFromPhysical(storage.Reg)
	} else {
		slotIndex := a.l.MachineFunc().Parameters()[param].Storage.StackSlot()
		reg = mcode.RegFromStackSlot(slotIndex)
	}

	opcode := MOV
	if isFP {
		opcode = FMOV
	}

	machineInstr := mcode.NewInstr(opcode,
		mcode.OperandFromRegister(mcode.RegFromVirtual(mcode.VirtualReg(instr.Dest())), size),
		mcode.OperandFromRegister(reg, size),
	)
	machineInstr.SetFlag(mcode.InstrFlagArgStore)
	a.l.Emit(machineInstr)
}

func (a *SSALowerer) lowerBinaryOp(opcode mcode.Opcode, instr *ssa.Instruction) {
	size := a.l.Size(instr.Operand(0).Type())

	a.l.Emit(mcode.NewInstr(opcode,
		mcode.OperandFromRegister(a.l.MapVRegAsReg(instr.Dest()), size),
		a.lowerValue(instr.Operand(0)),
		a.lowerValue(instr.Operand(1)),
	))
}

func (a *SSALowerer) lowerMul(instr *ssa.Instruction) {
	size := a.l.Size(instr.Operand(0).Type())

	var multiplier mcode.Operand
	rhs := instr.Operand(1)
	if rhs.IsImmediate() {
		// MUL has no immediate form.
		multiplier = a.moveConstIntoRegister(rhs, rhs.Type())
	} else {
		multiplier = a.lowerValue(rhs)
	}

	a.l.Emit(mcode.NewInstr(MUL,
		mcode.OperandFromRegister(a.l.MapVRegAsReg(instr.Dest()), size),
		a.lowerValue(instr.Operand(0)),
		multiplier,
	))
}

// lowerRem computes the remainder as dividend - (dividend / divisor) *
// divisor.
func (a *SSALowerer) lowerRem(divOpcode mcode.Opcode, instr *ssa.Instruction) {
	size := a.l.Size(instr.Operand(0).Type())
	dividend := a.lowerValue(instr.Operand(0))
	divisor := a.lowerValue(instr.Operand(1))
	tmp1 := mcode.OperandFromRegister(a.l.CreateReg(), size)
	tmp2 := mcode.OperandFromRegister(a.l.CreateReg(), size)
	remainder := mcode.OperandFromRegister(a.l.MapVRegAsReg(instr.Dest()), size)

	a.l.Emit(mcode.NewInstr(divOpcode, tmp1, dividend, divisor))
	a.l.Emit(mcode.NewInstr(MUL, tmp2, tmp1, divisor))
	a.l.Emit(mcode.NewInstr(SUB, remainder, dividend, tmp2))
}

func (a *SSALowerer) lowerFPOperation(opcode mcode.Opcode, instr *ssa.Instruction) {
	size := a.l.Size(instr.Operand(0).Type())

	a.l.Emit(mcode.NewInstr(opcode,
		mcode.OperandFromRegister(a.l.MapVRegAsReg(instr.Dest()), size),
		a.lowerValue(instr.Operand(0)),
		a.lowerValue(instr.Operand(1)),
	))
}

func (a *SSALowerer) lowerJmp(instr *ssa.Instruction) {
	blockTarget := instr.Operand(0).BranchTarget()
	a.moveBranchArgs(blockTarget)

	if blockTarget.Block != a.l.Block().Next() {
		a.l.Emit(mcode.NewInstr(B, mcode.OperandFromLabel(blockTarget.Block.Label(), 0)))
	}
}

func (a *SSALowerer) lowerCJmp(instr *ssa.Instruction, cmpOpcode mcode.Opcode) {
	trueTarget := instr.Operand(3).BranchTarget()
	falseTarget := instr.Operand(4).BranchTarget()

	a.moveBranchArgs(trueTarget)
	a.moveBranchArgs(falseTarget)

	a.l.Emit(mcode.NewInstr(cmpOpcode,
		a.lowerValue(instr.Operand(0)),
		a.lowerValue(instr.Operand(2)),
	))

	condition := lowerCondition(instr.Operand(1).Comparison())
	branchOpcode := BCond + mcode.Opcode(condition)

	a.l.Emit(mcode.NewInstr(branchOpcode, mcode.OperandFromLabel(trueTarget.Block.Label(), 0)))

	if falseTarget.Block != a.l.Block().Next() {
		a.l.Emit(mcode.NewInstr(B, mcode.OperandFromLabel(falseTarget.Block.Label(), 0)))
	}
}

func (a *SSALowerer) lowerSelect(instr *ssa.Instruction) {
	size := a.l.Size(instr.Operand(0).Type())
	isFP := instr.Operand(0).Type().IsFloatingPoint()

	cmpOpcode := CMP
	selOpcode := CSEL
	if isFP {
		cmpOpcode = FCMP
		selOpcode = FCSEL
	}

	a.l.Emit(mcode.NewInstr(cmpOpcode,
		a.lowerValue(instr.Operand(0)),
		a.lowerValue(instr.Operand(2)),
	))

	condition := lowerCondition(instr.Operand(1).Comparison())

	a.l.Emit(mcode.NewInstr(selOpcode,
		mcode.OperandFromRegister(a.l.MapVRegAsReg(instr.Dest()), size),
		a.lowerValue(instr.Operand(3)),
		a.lowerValue(instr.Operand(4)),
		mcode.OperandFromAArch64Condition(condition),
	))
}

func (a *SSALowerer) lowerRet(instr *ssa.Instruction) {
	if retPtrSlot, ok := a.l.RetPtrSlot(); ok && instr.NumOperands() > 0 {
		a.lowerRetViaPointer(instr, retPtrSlot)
		a.l.Emit(mcode.NewInstr(RET))
		return
	}

	if instr.NumOperands() > 0 {
		isFP := instr.Operand(0).Type().IsFloatingPoint()

		opcode := MOV
		reg := R0
		if isFP {
			opcode = FMOV
			reg = V0
		}

		src := a.lowerValue(instr.Operand(0))
		dst := mcode.OperandFromRegister(mcode.RegFromPhysical(reg), src.Size())

		a.l.Emit(mcode.NewInstr(opcode, dst, src))
	}

	a.l.Emit(mcode.NewInstr(RET))
}

// lowerRetViaPointer writes the returned aggregate through the hidden
// pointer received in X8 by calling memcpy.
func (a *SSALowerer) lowerRetViaPointer(instr *ssa.Instruction, retPtrSlot mcode.StackSlotID) {
	value := instr.Operand(0)
	if !value.IsRegister() {
		a.l.WarnUnimplemented("ret")
		return
	}

	size := a.l.Size(value.Type())

	dstReg := a.l.CreateReg()
	a.l.Emit(mcode.NewInstr(LDR,
		mcode.OperandFromRegister(dstReg, 8),
		mcode.OperandFromStackSlot(retPtrSlot, 8),
	))

	srcVal := a.lowerRegVal(value.Register(), 8)

	memcpyFunc := a.l.MemcpyFunc()
	if memcpyFunc == nil {
		panic("BUG: memcpy is not declared in the module")
	}

	conv := a.l.MachineFunc().CallingConv().(*aapcsCallingConv)
	conv.emitMemCopy(a, mcode.OperandFromRegister(dstReg, 8), srcVal, size, memcpyFunc.Name)
}

func (a *SSALowerer) lowerUExtend(instr *ssa.Instruction) {
	a.l.Emit(mcode.NewInstr(MOV,
		mcode.OperandFromRegister(a.l.MapVRegAsReg(instr.Dest()), 4),
		a.lowerValue(instr.Operand(0)),
	))
}

func (a *SSALowerer) lowerSExtend(instr *ssa.Instruction) {
	a.l.Emit(mcode.NewInstr(SXTW,
		mcode.OperandFromRegister(a.l.MapVRegAsReg(instr.Dest()), 8),
		a.lowerValue(instr.Operand(0)),
	))
}

func (a *SSALowerer) lowerTruncate(instr *ssa.Instruction) {
	dstReg := a.l.MapVRegAsReg(instr.Dest())
	src := a.lowerValue(instr.Operand(0))

	dstSize := a.l.Size(instr.Operand(1).Type())
	src.SetSize(dstSize)

	a.l.Emit(mcode.NewInstr(MOV,
		mcode.OperandFromRegister(dstReg, dstSize),
		src,
	))
}

func (a *SSALowerer) lowerFCvt(instr *ssa.Instruction, dstSize int) {
	a.l.Emit(mcode.NewInstr(FCVT,
		mcode.OperandFromRegister(a.l.MapVRegAsReg(instr.Dest()), dstSize),
		a.lowerValue(instr.Operand(0)),
	))
}

func (a *SSALowerer) lowerIntToFloat(opcode mcode.Opcode, instr *ssa.Instruction) {
	size := a.l.Size(instr.Operand(1).Type())

	a.l.Emit(mcode.NewInstr(opcode,
		mcode.OperandFromRegister(a.l.MapVRegAsReg(instr.Dest()), size),
		a.lowerValue(instr.Operand(0)),
	))
}

func (a *SSALowerer) lowerFloatToInt(opcode mcode.Opcode, instr *ssa.Instruction) {
	size := a.l.Size(instr.Operand(1).Type())

	a.l.Emit(mcode.NewInstr(opcode,
		mcode.OperandFromRegister(a.l.MapVRegAsReg(instr.Dest()), size),
		a.lowerValue(instr.Operand(0)),
	))
}

type address struct {
	base      mcode.Operand
	immOffset int
	regOffset mcode.Register
	hasReg    bool
	regScale  int
}

func (a *SSALowerer) lowerOffsetPtr(instr *ssa.Instruction) {
	operand := instr.Operand(1)
	baseType := instr.Operand(2).Type()

	addr := address{base: a.lowerValue(instr.Operand(0))}

	if operand.IsIntImmediate() {
		intOffset := int(operand.IntImmediate().Int64())
		addr.immOffset = intOffset * a.l.Size(baseType)
	} else if operand.IsRegister() {
		addr.regOffset = a.l.MapVRegAsReg(operand.Register())
		addr.hasReg = true
		addr.regScale = a.l.Size(baseType)
	}

	a.calculateAddress(a.l.MapVRegAsReg(instr.Dest()), addr)
}

func (a *SSALowerer) lowerMemberPtr(instr *ssa.Instruction) {
	typ := instr.Operand(0).Type()
	fieldIndex := int(instr.Operand(2).IntImmediate().Int64())

	addr := address{
		base:      a.lowerValue(instr.Operand(1)),
		immOffset: a.l.MemberOffset(typ.Struct(), fieldIndex),
	}

	a.calculateAddress(a.l.MapVRegAsReg(instr.Dest()), addr)
}

func (a *SSALowerer) lowerCopy(instr *ssa.Instruction) {
	size := a.l.Size(instr.Operand(2).Type())

	memcpyFunc := a.l.MemcpyFunc()
	if memcpyFunc == nil {
		panic("BUG: memcpy is not declared in the module")
	}

	callInstr := ssa.NewInstr(ssa.OpcodeCall,
		ssa.FromExternFunc(memcpyFunc.Name, ssa.VOID.Type()),
		*instr.Operand(0),
		*instr.Operand(1),
		ssa.FromIntImmediate(ssa.NewLargeInt(int64(size)), ssa.I64.Type()),
	)

	a.LowerCall(callInstr)
}

// lowerSqrt calls into libm; there is no reason to inline a sequence
// when the call compiles to a single FSQRT anyway on the other side.
func (a *SSALowerer) lowerSqrt(instr *ssa.Instruction) {
	sqrtFunc := a.l.SqrtFunc()
	if sqrtFunc == nil {
		panic("BUG: sqrt is not declared in the module")
	}

	callInstr := ssa.NewInstrDst(ssa.OpcodeCall, instr.Dest(),
		ssa.FromExternFunc(sqrtFunc.Name, instr.Operand(0).Type()),
		*instr.Operand(0),
	)

	a.LowerCall(callInstr)
}

func (a *SSALowerer) moveConstIntoRegister(value *ssa.Operand, typ ssa.Type) mcode.Operand {
	size := a.l.Size(typ)

	if value.IsIntImmediate() {
		return a.moveIntIntoRegister(value.IntImmediate(), size)
	} else if value.IsFPImmediate() {
		return a.moveFloatIntoRegister(value.FPImmediate(), size)
	}
	panic("BUG: not a constant")
}

func (a *SSALowerer) moveIntIntoRegister(value ssa.LargeInt, size int) mcode.Operand {
	bits := value.ToBits()
	result := a.createTempValue(size)

	// Zero moves directly; MOVZ would be a wasted general case.
	if bits == 0 {
		a.l.Emit(mcode.NewInstr(MOV, result, mcode.OperandFromInt(0, 0)))
		return result
	}

	switch size {
	case 1, 2:
		a.l.Emit(mcode.NewInstr(MOV, result, mcode.OperandFromIntImmediate(ssa.NewLargeIntU(bits), 0)))
	case 4:
		elements := decomposeU32(uint32(bits))
		a.moveElementsIntoRegister(result, elements[:])
	case 8:
		elements := decomposeU64(bits)
		a.moveElementsIntoRegister(result, elements[:])
	default:
		panic("BUG: unsupported integer size")
	}

	return result
}

func (a *SSALowerer) moveFloatIntoRegister(value float64, size int) mcode.Operand {
	result := a.createTempValue(size)

	// FMOV encodes small constants as an 8-bit immediate.
	if isFloatEncodable(value) {
		a.l.Emit(mcode.NewInstr(FMOV, result, mcode.OperandFromFPImmediate(value, 0)))
		return result
	}

	if size == 4 {
		// Build the f32 bit pattern in a Wn register and move it over.
		bits := math.Float32bits(float32(value))
		elements := decomposeU32(bits)

		bitsValue := a.createTempValue(size)
		a.moveElementsIntoRegister(bitsValue, elements[:])
		a.l.Emit(mcode.NewInstr(FMOV, result, bitsValue))
	} else {
		name := "double." + strconv.Itoa(a.nextConstIndex)
		a.nextConstIndex++

		a.l.MachineModule().AddGlobal(mcode.Global{
			Name:  name,
			Size:  8,
			Value: ssa.GlobalValueFP(value),
		})

		symbolAddr := a.moveSymbolIntoRegister(name)
		addr := mcode.NewAArch64AddrBase(symbolAddr.Register())
		a.l.Emit(mcode.NewInstr(LDR, result, mcode.OperandFromAArch64Addr(addr, 0)))
	}

	return result
}

func (a *SSALowerer) moveElementsIntoRegister(value mcode.Operand, elements []uint16) {
	numNonZero := 0
	nonZeroIndex := 0
	for i, element := range elements {
		if element != 0 {
			numNonZero++
			nonZeroIndex = i
		}
	}

	// A single MOVZ suffices if all but one element are zero.
	if numNonZero == 1 {
		if nonZeroIndex == 0 {
			a.l.Emit(mcode.NewInstr(MOVZ, value, mcode.OperandFromInt(int64(elements[0]), 0)))
		} else {
			a.l.Emit(mcode.NewInstr(MOVZ,
				value,
				mcode.OperandFromInt(int64(elements[nonZeroIndex]), 0),
				mcode.OperandFromAArch64LeftShift(uint(16*nonZeroIndex), 0),
			))
		}
		return
	}

	// Move the lowest 16 bits while zeroing the rest, then patch the
	// other elements in.
	a.l.Emit(mcode.NewInstr(MOVZ, value, mcode.OperandFromInt(int64(elements[0]), 0)))

	for i := 1; i < len(elements); i++ {
		element := elements[i]
		if element == 0 {
			continue
		}

		a.l.Emit(mcode.NewInstr(MOVK,
			value,
			mcode.OperandFromInt(int64(element), 0),
			mcode.OperandFromAArch64LeftShift(uint(16*i), 0),
		))
	}
}

func (a *SSALowerer) moveSymbolIntoRegister(symbol string) mcode.Operand {
	result := a.createTempValue(8)

	isDarwin := a.t.Descr().IsDarwin()

	var symbolPage, symbolPageOff mcode.Operand
	if isDarwin {
		symbolPage = mcode.OperandFromSymbol(mcode.NewSymbolDirective(symbol, mcode.DirectivePage), 0)
		symbolPageOff = mcode.OperandFromSymbol(mcode.NewSymbolDirective(symbol, mcode.DirectivePageOff), 0)
	} else {
		symbolPage = mcode.OperandFromSymbol(mcode.NewSymbol(symbol), 0)
		symbolPageOff = mcode.OperandFromSymbol(mcode.NewSymbolReloc(symbol, mcode.RelocLO12), 0)
	}

	a.l.Emit(mcode.NewInstr(ADRP, result, symbolPage))
	a.l.Emit(mcode.NewInstr(ADD, result, result, symbolPageOff))

	return result
}

func (a *SSALowerer) calculateAddress(dst mcode.Register, addr address) {
	dstOperand := mcode.OperandFromRegister(dst, 8)

	if addr.hasReg {
		offset := mcode.OperandFromRegister(addr.regOffset, 8)

		shiftAmount := -1
		switch addr.regScale {
		case 1:
			shiftAmount = 0
		case 2:
			shiftAmount = 1
		case 4:
			shiftAmount = 2
		case 8:
			shiftAmount = 3
		}

		if shiftAmount < 0 {
			scaleReg := a.l.CreateReg()
			scaleVal := mcode.OperandFromRegister(scaleReg, 8)
			immVal := mcode.OperandFromInt(int64(addr.regScale), 8)

			a.l.Emit(mcode.NewInstr(MOV, scaleVal, immVal))
			a.l.Emit(mcode.NewInstr(MUL, offset, offset, scaleVal))
			shiftAmount = 0
		}

		shift := mcode.OperandFromAArch64LeftShift(uint(shiftAmount), 0)
		a.l.Emit(mcode.NewInstr(ADD, dstOperand, addr.base, offset, shift))
	} else if addr.immOffset >= 0 && addr.immOffset < 4096 {
		offset := mcode.OperandFromInt(int64(addr.immOffset), 8)
		a.l.Emit(mcode.NewInstr(ADD, dstOperand, addr.base, offset))
	} else {
		offset := a.moveIntIntoRegister(ssa.NewLargeInt(int64(addr.immOffset)), 8)
		a.l.Emit(mcode.NewInstr(ADD, dstOperand, addr.base, offset))
	}
}

func (a *SSALowerer) createTempValue(size int) mcode.Operand {
	return mcode.OperandFromRegister(a.l.CreateReg(), size)
}

func (a *SSALowerer) moveBranchArgs(blockTarget *ssa.BranchTarget) {
	for i, arg := range blockTarget.Args {
		paramReg := blockTarget.Block.ParamRegs()[i]

		isFP := arg.Type().IsFloatingPoint()
		moveOpcode := MOV
		if isFP {
			moveOpcode = FMOV
		}

		size := a.l.Size(arg.Type())
		dst := mcode.OperandFromRegister(mcode.RegFromVirtual(mcode.VirtualReg(paramReg)), size)

		a.l.EmitFlagged(mcode.InstrFlagCallArg, func() {
			src := a.lowerValue(&arg)
			a.l.Emit(mcode.NewInstr(moveOpcode, dst, src))
		})
	}
}
