package x8664

import (
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/chnoblouch/banjo/internal/codegen"
	"github.com/chnoblouch/banjo/internal/mcode"
	"github.com/chnoblouch/banjo/internal/ssa"
	"github.com/chnoblouch/banjo/internal/target"
)

const PtrSize = 8

// valueLowerFlags tweaks operand lowering.
type valueLowerFlags struct {
	// allowAddrs permits folding a single-use load into an address
	// operand.
	allowAddrs bool
	// isCallee lowers the symbol for use as a call target.
	isCallee bool
}

// SSALowerer is the x86-64 instruction selector.
type SSALowerer struct {
	l *codegen.SSALowerer
	t *Target

	addrLowering  addrLowering
	constLowering constLowering
	// constNegZero is set once the sign-flip constant has been
	// referenced.
	constNegZero bool
}

func newSSALowerer(t *Target) *SSALowerer {
	lowerer := &SSALowerer{t: t}
	lowerer.addrLowering = addrLowering{lowerer: lowerer}
	lowerer.constLowering = constLowering{lowerer: lowerer}
	return lowerer
}

// SetLowerer implements codegen.TargetLowerer.
func (x *SSALowerer) SetLowerer(l *codegen.SSALowerer) {
	x.l = l
}

// InitModule implements codegen.TargetLowerer.
func (x *SSALowerer) InitModule(mod *ssa.Module) {
	constNegZero := []byte{
		0, 0, 0, 1 << 7,
		0, 0, 0, 1 << 7,
		0, 0, 0, 1 << 7,
		0, 0, 0, 1 << 7,
	}

	x.l.MachineModule().AddGlobal(mcode.Global{
		Name:  "const.neg_zero",
		Size:  4,
		Value: ssa.GlobalValueBytes(constNegZero),
	})
}

// CallingConvention implements codegen.TargetLowerer.
func (x *SSALowerer) CallingConvention(callingConv ssa.CallingConv) mcode.CallingConvention {
	switch callingConv {
	case ssa.CallingConvX8664SysV:
		return SysVCallingConv
	case ssa.CallingConvX8664MSABI:
		return MSABICallingConv
	default:
		return nil
	}
}

// LowerInstr implements codegen.TargetLowerer.
func (x *SSALowerer) LowerInstr(instr *ssa.Instruction) {
	switch instr.Opcode() {
	case ssa.OpcodeLoad:
		x.lowerLoad(instr)
	case ssa.OpcodeStore:
		x.lowerStore(instr)
	case ssa.OpcodeLoadArg:
		x.lowerLoadArg(instr)
	case ssa.OpcodeAdd:
		x.appendMovAndOperation(ADD, instr)
	case ssa.OpcodeSub:
		x.appendMovAndOperation(SUB, instr)
	case ssa.OpcodeMul:
		x.lowerMul(instr)
	case ssa.OpcodeSDiv:
		x.lowerSDiv(instr)
	case ssa.OpcodeSRem:
		x.lowerSRem(instr)
	case ssa.OpcodeUDiv:
		x.lowerUDiv(instr)
	case ssa.OpcodeURem:
		x.lowerURem(instr)
	case ssa.OpcodeFAdd:
		x.lowerFPOperation(ADDSS, ADDSD, instr)
	case ssa.OpcodeFSub:
		x.lowerFSub(instr)
	case ssa.OpcodeFMul:
		x.lowerFPOperation(MULSS, MULSD, instr)
	case ssa.OpcodeFDiv:
		x.lowerFPOperation(DIVSS, DIVSD, instr)
	case ssa.OpcodeAnd:
		x.appendMovAndOperation(AND, instr)
	case ssa.OpcodeOr:
		x.appendMovAndOperation(OR, instr)
	case ssa.OpcodeXor:
		x.appendMovAndOperation(XOR, instr)
	case ssa.OpcodeShl:
		x.emitShift(instr, SHL)
	case ssa.OpcodeShr:
		x.emitShift(instr, SHR)
	case ssa.OpcodeJmp:
		x.lowerJmp(instr)
	case ssa.OpcodeCJmp:
		x.lowerCJmp(instr)
	case ssa.OpcodeFCJmp:
		x.lowerFCJmp(instr)
	case ssa.OpcodeSelect:
		x.lowerSelect(instr)
	case ssa.OpcodeRet:
		x.lowerRet(instr)
	case ssa.OpcodeUExtend:
		x.lowerUExtend(instr)
	case ssa.OpcodeSExtend:
		x.lowerSExtend(instr)
	case ssa.OpcodeTruncate:
		x.lowerTruncate(instr)
	case ssa.OpcodeFPromote:
		x.lowerFPromote(instr)
	case ssa.OpcodeFDemote:
		x.lowerFDemote(instr)
	case ssa.OpcodeUToF:
		// TODO: zero-extend before converting instead of reusing the
		// signed path.
		x.lowerSToF(instr)
	case ssa.OpcodeSToF:
		x.lowerSToF(instr)
	case ssa.OpcodeFToU:
		x.lowerFToS(instr)
	case ssa.OpcodeFToS:
		x.lowerFToS(instr)
	case ssa.OpcodeOffsetPtr:
		x.lowerOffsetPtr(instr)
	case ssa.OpcodeMemberPtr:
		x.lowerMemberPtr(instr)
	case ssa.OpcodeCopy:
		x.lowerCopy(instr)
	case ssa.OpcodeSqrt:
		x.lowerSqrt(instr)
	default:
		x.l.WarnUnimplemented(instr.Opcode().String())
	}
}

// LowerCall implements codegen.TargetLowerer.
func (x *SSALowerer) LowerCall(instr *ssa.Instruction) {
	conv := x.l.MachineFunc().CallingConv().(*x8664CallingConv)
	conv.lowerCall(x, instr)
}

// SaveReturnPointer implements codegen.TargetLowerer.
func (x *SSALowerer) SaveReturnPointer(entry *mcode.BasicBlock, slot mcode.StackSlotID, storage mcode.ArgStorage) {
	instr := mcode.NewInstrFlagged(MOV, mcode.InstrFlagArgStore,
		mcode.OperandFromStackSlot(slot, 8),
		mcode.OperandFromRegister(mcode.RegFromPhysical(storage.Reg), 8),
	)
	entry.InsertBefore(entry.FirstInstr(), instr)
}

func (x *SSALowerer) lowerLoad(instr *ssa.Instruction) {
	typ := instr.Operand(0).Type()
	size := x.l.Size(typ)

	dst := x.l.MapVRegAsOperand(instr.Dest(), size)
	src := x.addrLowering.lowerAddress(instr.Operand(1)).WithSize(size)
	x.l.Emit(mcode.NewInstr(x.moveOpcode(typ), dst, src))
}

func (x *SSALowerer) lowerStore(instr *ssa.Instruction) {
	dst := x.addrLowering.lowerAddress(instr.Operand(1))
	typ := instr.Operand(0).Type()

	var machineInstr *mcode.Instruction

	if instr.Operand(0).IsFPImmediate() && typ.IsPrimitive(ssa.F32) && (dst.IsAddr() || dst.IsStackSlot()) {
		// Store the f32 bit pattern as an integer immediate, bypassing
		// a constant load.
		bits := math.Float32bits(float32(instr.Operand(0).FPImmediate()))
		src := mcode.OperandFromIntImmediate(ssa.NewLargeIntU(uint64(bits)), 4)
		dst.SetSize(4)
		machineInstr = mcode.NewInstr(MOV, dst, src)
	} else {
		src := x.lowerAsOperand(*instr.Operand(0), valueLowerFlags{})
		dst.SetSize(src.Size())

		if src.IsSymbol() {
			tmp := mcode.OperandFromRegister(x.l.CreateReg(), src.Size())
			x.l.Emit(mcode.NewInstr(MOV, tmp, src))
			src = tmp
		}

		machineInstr = mcode.NewInstr(x.moveOpcode(typ), dst, src)
	}

	if instr.HasFlag(ssa.FlagSaveArg) {
		machineInstr.SetFlag(mcode.InstrFlagArgStore)
	}

	x.l.Emit(machineInstr)
}

func (x *SSALowerer) lowerLoadArg(instr *ssa.Instruction) {
	typ := instr.Operand(0).Type()
	paramIndex := int(instr.Operand(1).IntImmediate().Int64())
	size := x.l.Size(typ)

	storage := x.l.ParamArgStorage()[paramIndex]

	var src mcode.Operand
	if storage.InReg {
		src = mcode.OperandFromRegister(mcode.RegFromPhysical(storage.Reg), size)
	} else {
		param := x.l.MachineFunc().Parameters()[paramIndex]
		src = mcode.OperandFromStackSlot(param.Storage.StackSlot(), size)
	}

	dst := x.l.MapVRegDst(instr, size)
	machineInstr := mcode.NewInstr(x.moveOpcode(typ), dst, src)
	machineInstr.SetFlag(mcode.InstrFlagArgStore)
	x.l.Emit(machineInstr)
}

// appendMovAndOperation emits "mov lhs into destination; op destination,
// rhs".
func (x *SSALowerer) appendMovAndOperation(opcode mcode.Opcode, instr *ssa.Instruction) {
	x.appendMovAndOperationTo(opcode, instr.Dest(), *instr.Operand(0), *instr.Operand(1))
}

func (x *SSALowerer) appendMovAndOperationTo(opcode mcode.Opcode, dst ssa.VirtualRegister, lhs, rhs ssa.Value) {
	size := x.l.Size(lhs.Type())
	machineDst := x.l.MapVRegAsOperand(dst, size)

	x.lowerAsMove(machineDst, lhs)
	machineRhs := x.lowerAsOperand(rhs, valueLowerFlags{allowAddrs: !machineDst.IsStackSlot()})
	x.l.Emit(mcode.NewInstr(opcode, machineDst, machineRhs))
}

func (x *SSALowerer) lowerFPOperation(opcodeF32, opcodeF64 mcode.Opcode, instr *ssa.Instruction) {
	opcode := opcodeF32
	if instr.Operand(0).Type().IsPrimitive(ssa.F64) {
		opcode = opcodeF64
	}
	x.appendMovAndOperation(opcode, instr)
}

func (x *SSALowerer) lowerMul(instr *ssa.Instruction) {
	lhs := instr.Operand(0)
	rhs := instr.Operand(1)

	if lhs.IsRegister() && rhs.IsIntImmediate() {
		size := x.l.Size(lhs.Type())

		// LEA dst, [lhs + lhs * 2] multiplies by 3 without IMUL.
		if (size == 4 || size == 8) && rhs.IntImmediate().EqualsInt(3) {
			lhsReg := x.l.MapVRegAsReg(lhs.Register())
			addr := mcode.NewIndirectAddressRegOffset(lhsReg, lhsReg, 2)

			dst := x.l.MapVRegDst(instr, size)
			src := mcode.OperandFromAddr(addr, size)
			x.l.Emit(mcode.NewInstr(LEA, dst, src))
			return
		}
	}

	x.appendMovAndOperation(IMUL, instr)
}

func (x *SSALowerer) lowerSDiv(instr *ssa.Instruction) {
	size := x.l.Size(instr.Operand(0).Type())
	divisorReg := mcode.RegFromPhysical(RCX)

	x.l.Emit(mcode.NewInstr(MOV,
		mcode.OperandFromRegister(mcode.RegFromPhysical(RAX), size),
		x.lowerAsOperand(*instr.Operand(0), valueLowerFlags{}),
	))

	if size == 4 {
		x.l.Emit(mcode.NewInstr(CDQ))
	} else if size == 8 {
		x.l.Emit(mcode.NewInstr(CQO))
	}

	x.l.Emit(mcode.NewInstr(MOV,
		mcode.OperandFromRegister(divisorReg, size),
		x.lowerAsOperand(*instr.Operand(1), valueLowerFlags{}),
	))
	x.l.Emit(mcode.NewInstr(IDIV, mcode.OperandFromRegister(divisorReg, size)))
	x.l.Emit(mcode.NewInstr(MOV,
		x.l.MapVRegDst(instr, size),
		mcode.OperandFromRegister(mcode.RegFromPhysical(RAX), size),
	))
}

func (x *SSALowerer) lowerSRem(instr *ssa.Instruction) {
	size := x.l.Size(instr.Operand(0).Type())
	divisorReg := x.l.CreateReg()

	x.l.Emit(mcode.NewInstr(MOV,
		mcode.OperandFromRegister(mcode.RegFromPhysical(RAX), size),
		x.lowerAsOperand(*instr.Operand(0), valueLowerFlags{}),
	))

	if size == 4 {
		x.l.Emit(mcode.NewInstr(CDQ))
	} else if size == 8 {
		x.l.Emit(mcode.NewInstr(CQO))
	}

	x.l.Emit(mcode.NewInstr(MOV,
		mcode.OperandFromRegister(divisorReg, size),
		x.lowerAsOperand(*instr.Operand(1), valueLowerFlags{}),
	))
	x.l.Emit(mcode.NewInstr(IDIV, mcode.OperandFromRegister(divisorReg, size)))
	x.l.Emit(mcode.NewInstr(MOV,
		x.l.MapVRegDst(instr, size),
		mcode.OperandFromRegister(mcode.RegFromPhysical(RDX), size),
	))
}

// Unsigned division zero-extends the dividend with XOR EDX, EDX and uses
// DIV instead of the signed CDQ/CQO + IDIV sequence.
func (x *SSALowerer) lowerUDiv(instr *ssa.Instruction) {
	x.lowerUnsignedDivision(instr, RAX)
}

func (x *SSALowerer) lowerURem(instr *ssa.Instruction) {
	x.lowerUnsignedDivision(instr, RDX)
}

func (x *SSALowerer) lowerUnsignedDivision(instr *ssa.Instruction, resultReg mcode.PhysicalReg) {
	size := x.l.Size(instr.Operand(0).Type())
	divisorReg := x.l.CreateReg()
	rdx4 := mcode.OperandFromRegister(mcode.RegFromPhysical(RDX), 4)

	x.l.Emit(mcode.NewInstr(MOV,
		mcode.OperandFromRegister(mcode.RegFromPhysical(RAX), size),
		x.lowerAsOperand(*instr.Operand(0), valueLowerFlags{}),
	))
	x.l.Emit(mcode.NewInstr(XOR, rdx4, rdx4))
	x.l.Emit(mcode.NewInstr(MOV,
		mcode.OperandFromRegister(divisorReg, size),
		x.lowerAsOperand(*instr.Operand(1), valueLowerFlags{}),
	))
	x.l.Emit(mcode.NewInstr(DIV, mcode.OperandFromRegister(divisorReg, size)))
	x.l.Emit(mcode.NewInstr(MOV,
		x.l.MapVRegDst(instr, size),
		mcode.OperandFromRegister(mcode.RegFromPhysical(resultReg), size),
	))
}

func (x *SSALowerer) lowerFSub(instr *ssa.Instruction) {
	typ := instr.Operand(0).Type()

	// 0.0 - x is a sign flip against the negative-zero constant.
	if typ.IsPrimitive(ssa.F32) && instr.Operand(0).IsFPImmediate() && instr.Operand(0).FPImmediate() == 0.0 {
		x.constNegZero = true

		dst := x.l.MapVRegDst(instr, 4)
		src := x.lowerAsOperand(*instr.Operand(1), valueLowerFlags{})
		constAddr := x.derefSymbolAddr(mcode.NewSymbol("const.neg_zero"), 16)

		x.l.Emit(mcode.NewInstr(x.moveOpcode(typ), dst, src))
		x.l.Emit(mcode.NewInstr(XORPS, dst.WithSize(16), constAddr))
		return
	}

	x.lowerFPOperation(SUBSS, SUBSD, instr)
}

func (x *SSALowerer) lowerJmp(instr *ssa.Instruction) {
	blockTarget := instr.Operand(0).BranchTarget()

	x.moveBranchArgs(blockTarget)

	if blockTarget.Block != x.l.Block().Next() {
		x.l.Emit(mcode.NewInstr(JMP, mcode.OperandFromLabel(blockTarget.Block.Label(), 0)))
	}
}

func (x *SSALowerer) lowerCJmp(instr *ssa.Instruction) {
	x.emitJcc(instr, func() {
		reg := x.l.Func().NextVirtualReg()
		x.appendMovAndOperationTo(CMP, reg, *instr.Operand(0), *instr.Operand(2))
	})
}

func (x *SSALowerer) lowerFCJmp(instr *ssa.Instruction) {
	x.emitJcc(instr, func() {
		opcode := UCOMISS
		if instr.Operand(0).Type().IsPrimitive(ssa.F64) {
			opcode = UCOMISD
		}
		// The right-hand side may come straight from memory.
		x.l.Emit(mcode.NewInstr(opcode,
			x.lowerAsOperand(*instr.Operand(0), valueLowerFlags{}),
			x.intoRegOrAddr(*instr.Operand(2)),
		))
	})
}

func (x *SSALowerer) emitJcc(instr *ssa.Instruction, emitComparison func()) {
	comparison := instr.Operand(1).Comparison()
	trueTarget := instr.Operand(3).BranchTarget()
	falseTarget := instr.Operand(4).BranchTarget()

	if trueTarget.Block == x.l.Block().Next() {
		x.moveBranchArgs(falseTarget)

		emitComparison()
		x.l.Emit(mcode.NewInstr(jccOpcode(comparison.Invert()),
			mcode.OperandFromLabel(falseTarget.Block.Label(), 0)))

		x.moveBranchArgs(trueTarget)
	} else {
		x.moveBranchArgs(trueTarget)

		emitComparison()
		x.l.Emit(mcode.NewInstr(jccOpcode(comparison),
			mcode.OperandFromLabel(trueTarget.Block.Label(), 0)))

		x.moveBranchArgs(falseTarget)

		if falseTarget.Block != x.l.Block().Next() {
			x.l.Emit(mcode.NewInstr(JMP, mcode.OperandFromLabel(falseTarget.Block.Label(), 0)))
		}
	}
}

func (x *SSALowerer) lowerSelect(instr *ssa.Instruction) {
	cmpLhs := instr.Operand(0)
	comparison := instr.Operand(1).Comparison()
	cmpRhs := instr.Operand(2)
	valTrue := instr.Operand(3)
	valFalse := instr.Operand(4)

	size := x.l.Size(cmpLhs.Type())
	if size < 4 {
		size = 4
	}

	dst := x.l.MapVRegDst(instr, size)

	if cmpLhs.Type().IsFloatingPoint() {
		movOpcode := MOVSS
		if size == 8 {
			movOpcode = MOVSD
		}

		// max/min patterns avoid the branchless-select limitation of
		// the SSE compare ops.
		if cmpLhs.Equal(*valTrue) && cmpRhs.Equal(*valFalse) {
			if comparison == ssa.FGT {
				opcode := MAXSS
				if size == 8 {
					opcode = MAXSD
				}
				x.l.Emit(mcode.NewInstr(movOpcode, dst, x.lowerAsOperand(*cmpLhs, valueLowerFlags{})))
				x.l.Emit(mcode.NewInstr(opcode, dst, x.lowerAsOperand(*cmpRhs, valueLowerFlags{})))
				return
			} else if comparison == ssa.FLT {
				opcode := MINSS
				if size == 8 {
					opcode = MINSD
				}
				x.l.Emit(mcode.NewInstr(movOpcode, dst, x.lowerAsOperand(*cmpLhs, valueLowerFlags{})))
				x.l.Emit(mcode.NewInstr(opcode, dst, x.lowerAsOperand(*cmpRhs, valueLowerFlags{})))
				return
			}
		}

		log.Errorf("cannot lower this floating point select")
		return
	}

	tmp := mcode.OperandFromRegister(x.l.CreateReg(), size)

	x.l.Emit(mcode.NewInstr(CMP,
		x.lowerAsOperand(*cmpLhs, valueLowerFlags{}),
		x.lowerAsOperand(*cmpRhs, valueLowerFlags{})))
	x.l.Emit(mcode.NewInstr(MOV, tmp, x.lowerAsOperand(*valTrue, valueLowerFlags{})))
	x.l.Emit(mcode.NewInstr(MOV, dst, x.lowerAsOperand(*valFalse, valueLowerFlags{})))
	x.l.Emit(mcode.NewInstr(cmovccOpcode(comparison), dst, tmp))
}

func (x *SSALowerer) lowerRet(instr *ssa.Instruction) {
	if retPtrSlot, ok := x.l.RetPtrSlot(); ok && instr.NumOperands() > 0 {
		x.lowerRetViaPointer(instr, retPtrSlot)
		x.l.Emit(mcode.NewInstr(RET))
		return
	}

	if instr.NumOperands() > 0 {
		typ := instr.Operand(0).Type()

		opcode := x.moveOpcode(typ)
		destReg := mcode.PhysicalReg(RAX)
		if typ.IsFloatingPoint() {
			destReg = XMM0
		}

		x.l.Emit(mcode.NewInstr(opcode,
			mcode.OperandFromRegister(mcode.RegFromPhysical(destReg), x.l.Size(typ)),
			x.lowerAsOperand(*instr.Operand(0), valueLowerFlags{}),
		))
	}

	x.l.Emit(mcode.NewInstr(RET))
}

// lowerRetViaPointer copies the returned aggregate through the hidden
// destination pointer saved at function entry.
func (x *SSALowerer) lowerRetViaPointer(instr *ssa.Instruction, retPtrSlot mcode.StackSlotID) {
	value := instr.Operand(0)
	if !value.IsRegister() {
		x.l.WarnUnimplemented("ret")
		return
	}

	srcBase := x.l.MapVReg(value.Register())
	size := x.l.Size(value.Type())

	dstBase := x.l.CreateReg()
	x.l.Emit(mcode.NewInstr(MOV,
		mcode.OperandFromRegister(dstBase, 8),
		mcode.OperandFromStackSlot(retPtrSlot, 8),
	))

	x.copyMem(dstBase, srcBase, size)
}

func (x *SSALowerer) lowerUExtend(instr *ssa.Instruction) {
	dst := x.l.MapVRegDst(instr, 4)
	src := x.lowerAsOperand(*instr.Operand(0), valueLowerFlags{})

	opcode := MOVZX
	if src.Size() >= 4 {
		opcode = MOV
	}
	x.l.Emit(mcode.NewInstr(opcode, dst, src))
}

func (x *SSALowerer) lowerSExtend(instr *ssa.Instruction) {
	dst := x.l.MapVRegDst(instr, 8)
	src := x.lowerAsOperand(*instr.Operand(0), valueLowerFlags{})
	x.l.Emit(mcode.NewInstr(MOVSX, dst, src))
}

func (x *SSALowerer) lowerTruncate(instr *ssa.Instruction) {
	dst := x.l.MapVRegDst(instr, 4)
	src := x.lowerAsOperand(*instr.Operand(0), valueLowerFlags{})

	if src.Size() == 8 {
		src.SetSize(4)
	}

	x.l.Emit(mcode.NewInstr(MOV, dst, src))
}

func (x *SSALowerer) lowerFPromote(instr *ssa.Instruction) {
	dst := x.l.MapVRegDst(instr, 8)
	src := x.lowerAsOperand(*instr.Operand(0), valueLowerFlags{})
	x.l.Emit(mcode.NewInstr(CVTSS2SD, dst, src))
}

func (x *SSALowerer) lowerFDemote(instr *ssa.Instruction) {
	dst := x.l.MapVRegDst(instr, 4)
	src := x.lowerAsOperand(*instr.Operand(0), valueLowerFlags{})
	x.l.Emit(mcode.NewInstr(CVTSD2SS, dst, src))
}

func (x *SSALowerer) lowerSToF(instr *ssa.Instruction) {
	dstType := instr.Operand(1).Type()

	opcode := CVTSI2SS
	dstSize := 4
	if dstType.IsPrimitive(ssa.F64) {
		opcode = CVTSI2SD
		dstSize = 8
	}

	dst := x.l.MapVRegDst(instr, dstSize)
	src := x.lowerAsOperand(*instr.Operand(0), valueLowerFlags{})

	x.l.Emit(mcode.NewInstr(XORPS, dst, dst))
	x.l.Emit(mcode.NewInstr(opcode, dst, src))
}

func (x *SSALowerer) lowerFToS(instr *ssa.Instruction) {
	isDouble := instr.Operand(0).Type().IsPrimitive(ssa.F64)

	dstSize := x.l.Size(instr.Operand(1).Type())
	if dstSize != 8 {
		dstSize = 4
	}

	opcode := CVTSS2SI
	if isDouble {
		opcode = CVTSD2SI
	}

	dst := x.l.MapVRegDst(instr, dstSize)
	src := x.lowerAsOperand(*instr.Operand(0), valueLowerFlags{})
	x.l.Emit(mcode.NewInstr(opcode, dst, src))
}

func (x *SSALowerer) lowerOffsetPtr(instr *ssa.Instruction) {
	if !instr.Operand(0).IsRegister() {
		dst := x.l.MapVRegDst(instr, 8)
		src := x.lowerAsOperand(*instr.Operand(0), valueLowerFlags{})
		x.l.Emit(mcode.NewInstr(MOV, dst, src))
		return
	}

	dst := x.l.MapVRegDst(instr, 8)
	src := mcode.OperandFromAddr(x.addrLowering.calcOffsetPtrAddr(instr), 0)
	x.l.Emit(mcode.NewInstr(LEA, dst, src))
}

func (x *SSALowerer) lowerMemberPtr(instr *ssa.Instruction) {
	dst := x.l.MapVRegDst(instr, 8)
	src := mcode.OperandFromAddr(x.addrLowering.calcMemberPtrAddr(instr), 0)
	x.l.Emit(mcode.NewInstr(LEA, dst, src))
}

func (x *SSALowerer) lowerCopy(instr *ssa.Instruction) {
	size := x.l.Size(instr.Operand(2).Type())

	if size <= 64 {
		dstBase := x.l.MapVReg(instr.Operand(0).Register())
		srcBase := x.l.MapVReg(instr.Operand(1).Register())
		x.copyMem(dstBase, srcBase, size)
		return
	}

	memcpyFunc := x.l.MemcpyFunc()
	if memcpyFunc == nil {
		panic("BUG: memcpy is not declared in the module")
	}

	callInstr := ssa.NewInstr(ssa.OpcodeCall,
		ssa.FromExternFunc(memcpyFunc.Name, ssa.VOID.Type()),
		*instr.Operand(0),
		*instr.Operand(1),
		ssa.FromIntImmediate(ssa.NewLargeInt(int64(size)), ssa.I64.Type()),
	)

	x.LowerCall(callInstr)
}

func (x *SSALowerer) lowerSqrt(instr *ssa.Instruction) {
	src := x.lowerAsOperand(*instr.Operand(0), valueLowerFlags{})
	dst := x.l.MapVRegDst(instr, src.Size())

	opcode := SQRTSS
	if src.Size() == 8 {
		opcode = SQRTSD
	}

	x.l.Emit(mcode.NewInstr(XORPS, dst, dst))
	x.l.Emit(mcode.NewInstr(opcode, dst, src))
}

// copyMem emits a series of decreasing-size register-mediated moves.
func (x *SSALowerer) copyMem(dstBase, srcBase mcode.Register, size int) {
	offset := 0

	for movSize := 8; movSize != 0; movSize /= 2 {
		for size >= movSize {
			dstAddr := mcode.NewIndirectAddressIntOffset(dstBase, offset, 1)
			srcAddr := mcode.NewIndirectAddressIntOffset(srcBase, offset, 1)
			tmpReg := x.l.CreateReg()

			dstVal := mcode.OperandFromAddr(dstAddr, movSize)
			srcVal := mcode.OperandFromAddr(srcAddr, movSize)
			tmpVal := mcode.OperandFromRegister(tmpReg, movSize)

			x.l.Emit(mcode.NewInstr(MOV, tmpVal, srcVal))
			x.l.Emit(mcode.NewInstr(MOV, dstVal, tmpVal))

			size -= movSize
			offset += movSize
		}
	}
}

func (x *SSALowerer) emitShift(instr *ssa.Instruction, opcode mcode.Opcode) {
	size := x.l.Size(instr.Operand(0).Type())

	tmpReg := x.l.CreateReg()
	op0 := mcode.OperandFromRegister(tmpReg, size)
	x.l.Emit(mcode.NewInstr(MOV, op0, x.lowerAsOperand(*instr.Operand(0), valueLowerFlags{})))

	var op1 mcode.Operand

	if instr.Operand(1).IsIntImmediate() {
		op1 = mcode.OperandFromIntImmediate(instr.Operand(1).IntImmediate(), 1)
	} else {
		// Variable shift counts live in CL.
		rcx := mcode.RegFromPhysical(RCX)
		rcx8 := mcode.OperandFromRegister(rcx, 8)
		x.l.Emit(mcode.NewInstr(MOV, rcx8,
			x.lowerAsOperand(*instr.Operand(1), valueLowerFlags{}).WithSize(8)))
		op1 = mcode.OperandFromRegister(rcx, 1)
	}

	x.l.Emit(mcode.NewInstr(opcode, op0, op1))

	dst := x.l.MapVRegDst(instr, size)
	x.l.Emit(mcode.NewInstr(MOV, dst, op0))
}

func (x *SSALowerer) moveBranchArgs(blockTarget *ssa.BranchTarget) {
	for i, arg := range blockTarget.Args {
		paramReg := blockTarget.Block.ParamRegs()[i]

		moveOpcode := x.moveOpcode(arg.Type())
		size := x.l.Size(arg.Type())
		dst := mcode.OperandFromRegister(mcode.RegFromVirtual(mcode.VirtualReg(paramReg)), size)

		if arg.IsIntImmediate() && arg.IntImmediate().EqualsInt(0) {
			x.l.Emit(mcode.NewInstrFlagged(XOR, mcode.InstrFlagCallArg, dst, dst))
		} else if arg.IsFPImmediate() && arg.FPImmediate() == 0.0 {
			x.l.Emit(mcode.NewInstrFlagged(XORPS, mcode.InstrFlagCallArg, dst, dst))
		} else {
			src := x.lowerAsOperand(arg, valueLowerFlags{})
			if !src.Equal(&dst) {
				x.l.Emit(mcode.NewInstrFlagged(moveOpcode, mcode.InstrFlagCallArg, dst, src))
			}
		}
	}
}

func (x *SSALowerer) lowerAsMoveIntoReg(reg mcode.Register, value ssa.Value) mcode.Operand {
	size := x.l.Size(value.Type())
	dst := mcode.OperandFromRegister(reg, size)
	return x.lowerAsMove(dst, value)
}

func (x *SSALowerer) lowerAsMove(dst mcode.Operand, value ssa.Value) mcode.Operand {
	switch {
	case value.IsIntImmediate():
		return x.lowerIntImmAsMove(dst, value.IntImmediate())
	case value.IsFPImmediate():
		return x.lowerFPImmAsMove(dst, value.FPImmediate())
	case value.IsRegister():
		return x.lowerRegAsMove(dst, value.Register(), value.Type())
	case value.IsSymbol():
		x.l.Emit(mcode.NewInstr(MOV, dst, x.lowerAsOperand(value, valueLowerFlags{})))
		return dst
	}
	panic("BUG: cannot lower value as move")
}

func (x *SSALowerer) lowerIntImmAsMove(dst mcode.Operand, value ssa.LargeInt) mcode.Operand {
	// XOR dst, dst zeroes a register with smaller code; the 32-bit
	// variant is enough even for 64-bit registers and may omit the REX
	// prefix.
	if value.EqualsInt(0) && dst.IsRegister() {
		if dst.Size() > 4 {
			dst.SetSize(4)
		}

		x.l.Emit(mcode.NewInstr(XOR, dst, dst))
		return dst
	}

	src := mcode.OperandFromIntImmediate(value, dst.Size())
	x.l.Emit(mcode.NewInstr(MOV, dst, src))
	return dst
}

func (x *SSALowerer) lowerFPImmAsMove(dst mcode.Operand, value float64) mcode.Operand {
	// XORP[S,D] dst, dst generates a floating-point zero without a
	// memory load.
	if value == 0.0 {
		opcode := XORPS
		if dst.Size() == 8 {
			opcode = XORPD
		}

		if dst.IsRegister() {
			x.l.Emit(mcode.NewInstr(opcode, dst, dst))
		} else {
			tmp := mcode.OperandFromRegister(x.l.CreateReg(), dst.Size())
			movOpcode := MOVSS
			if dst.Size() == 8 {
				movOpcode = MOVSD
			}

			x.l.Emit(mcode.NewInstr(opcode, tmp, tmp))
			x.l.Emit(mcode.NewInstr(movOpcode, dst, tmp))
		}

		return dst
	}

	opcode := MOVSS
	if dst.Size() == 8 {
		opcode = MOVSD
	}
	src := x.createFPConstLoad(value, dst.Size())

	if src.IsSymbolDeref() && !dst.IsRegister() {
		tmp := mcode.OperandFromRegister(x.l.CreateReg(), dst.Size())
		x.l.Emit(mcode.NewInstr(opcode, tmp, src))
		x.l.Emit(mcode.NewInstr(opcode, dst, tmp))
	} else {
		x.l.Emit(mcode.NewInstr(opcode, dst, src))
	}

	return dst
}

func (x *SSALowerer) lowerRegAsMove(dst mcode.Operand, srcReg ssa.VirtualRegister, typ ssa.Type) mcode.Operand {
	src := x.l.MapVRegAsOperand(srcReg, dst.Size())

	if src.IsStackSlot() {
		if dst.IsRegister() {
			x.l.Emit(mcode.NewInstr(LEA, dst, src))
		} else {
			tmp := mcode.OperandFromRegister(x.l.CreateReg(), dst.Size())
			x.l.Emit(mcode.NewInstr(LEA, tmp, src))
			x.l.Emit(mcode.NewInstr(MOV, dst, tmp))
		}
	} else if typ.IsFloatingPoint() {
		opcode := MOVSS
		if dst.Size() == 8 {
			opcode = MOVSD
		}
		x.l.Emit(mcode.NewInstr(opcode, dst, src))
	} else {
		x.l.Emit(mcode.NewInstr(MOV, dst, src))
	}

	return dst
}

func (x *SSALowerer) lowerAsOperand(value ssa.Value, flags valueLowerFlags) mcode.Operand {
	size := x.l.Size(value.Type())

	switch {
	case value.IsIntImmediate():
		return x.lowerIntImmAsOperand(value.IntImmediate(), size)
	case value.IsFPImmediate():
		return x.lowerFPImmAsOperand(value.FPImmediate(), size)
	case value.IsRegister():
		return x.lowerRegAsOperand(value.Register(), size, flags)
	case value.IsSymbol():
		return x.lowerSymbolAsOperand(value, size, flags)
	}
	panic("BUG: cannot lower value as operand")
}

func (x *SSALowerer) lowerIntImmAsOperand(value ssa.LargeInt, size int) mcode.Operand {
	// Immediates beyond 32 bits cannot be encoded in-place; materialise
	// them with an extra MOV.
	if size == 8 && value.ToBits() >= 1<<32 {
		dst := mcode.OperandFromRegister(x.l.CreateReg(), 8)
		src := mcode.OperandFromIntImmediate(value, 8)
		x.l.Emit(mcode.NewInstr(MOV, dst, src))
		return dst
	}

	return mcode.OperandFromIntImmediate(value, size)
}

func (x *SSALowerer) lowerFPImmAsOperand(value float64, size int) mcode.Operand {
	dst := mcode.OperandFromRegister(x.l.CreateReg(), size)

	if value == 0.0 {
		opcode := XORPS
		if size == 8 {
			opcode = XORPD
		}
		x.l.Emit(mcode.NewInstr(opcode, dst, dst))
		return dst
	}

	opcode := MOVSS
	if size == 8 {
		opcode = MOVSD
	}
	src := x.createFPConstLoad(value, size)
	x.l.Emit(mcode.NewInstr(opcode, dst, src))
	return dst
}

func (x *SSALowerer) lowerRegAsOperand(srcReg ssa.VirtualRegister, size int, flags valueLowerFlags) mcode.Operand {
	src := x.l.MapVRegAsOperand(srcReg, size)

	if src.IsStackSlot() {
		dst := mcode.OperandFromRegister(x.l.CreateReg(), size)
		x.l.Emit(mcode.NewInstr(LEA, dst, src))
		return dst
	}

	if flags.allowAddrs {
		// A single-use load folds into the consuming instruction's
		// address operand.
		producer := x.l.Producer(srcReg)
		if producer != nil && producer.Opcode() == ssa.OpcodeLoad && x.l.NumUses(producer.Dest()) == 1 {
			loadSrc := x.addrLowering.lowerAddress(producer.Operand(1))
			x.l.DiscardUse(producer.Dest())
			return loadSrc
		}
	}

	return src
}

func (x *SSALowerer) lowerSymbolAsOperand(value ssa.Value, size int, flags valueLowerFlags) mcode.Operand {
	symbolName := value.SymbolName()

	reloc := mcode.RelocNone
	if x.t.Descr().IsUnix() {
		if value.IsExternFunc() {
			reloc = mcode.RelocPLT
		} else if value.IsExternGlobal() {
			reloc = mcode.RelocGOT
		}
	}

	symbol := mcode.NewSymbolReloc(symbolName, reloc)

	if x.t.Descr().IsDarwin() && (value.IsFunc() || value.IsExternFunc()) {
		return mcode.OperandFromSymbol(symbol, PtrSize)
	}

	if flags.isCallee {
		return x.readSymbolAddr(symbol)
	}

	switch x.t.CodeModel() {
	case target.CodeModelSmall:
		src := mcode.OperandFromSymbolDeref(symbol, size)
		dst := mcode.OperandFromRegister(x.l.CreateReg(), PtrSize)
		x.l.Emit(mcode.NewInstr(LEA, dst, src))
		return dst
	case target.CodeModelLarge:
		return x.readSymbolAddr(symbol)
	}
	panic("BUG: unknown code model")
}

func (x *SSALowerer) readSymbolAddr(symbol mcode.Symbol) mcode.Operand {
	switch x.t.CodeModel() {
	case target.CodeModelSmall:
		return mcode.OperandFromSymbol(symbol, 8)
	case target.CodeModelLarge:
		dst := mcode.OperandFromRegister(x.l.CreateReg(), 8)
		src := mcode.OperandFromSymbol(symbol, 8)
		x.l.Emit(mcode.NewInstr(MOV, dst, src))
		return dst
	}
	panic("BUG: unknown code model")
}

func (x *SSALowerer) derefSymbolAddr(symbol mcode.Symbol, size int) mcode.Operand {
	switch x.t.CodeModel() {
	case target.CodeModelSmall:
		return mcode.OperandFromSymbolDeref(symbol, 8)
	case target.CodeModelLarge:
		addrReg := x.l.CreateReg()
		dst := mcode.OperandFromRegister(addrReg, 8)
		src := mcode.OperandFromSymbol(symbol, 8)
		x.l.Emit(mcode.NewInstr(MOV, dst, src))
		return mcode.OperandFromAddr(mcode.NewIndirectAddress(addrReg), size)
	}
	panic("BUG: unknown code model")
}

// intoRegOrAddr folds a single-use load into an address operand, else
// lowers the value normally.
func (x *SSALowerer) intoRegOrAddr(value ssa.Value) mcode.Operand {
	if value.IsRegister() {
		producer := x.l.Producer(value.Register())

		if producer != nil && producer.Opcode() == ssa.OpcodeLoad && x.l.NumUses(producer.Dest()) == 1 {
			x.l.DiscardUse(producer.Dest())
			return x.addrLowering.lowerAddress(producer.Operand(1))
		}
	}

	return x.lowerAsOperand(value, valueLowerFlags{})
}

func (x *SSALowerer) moveOpcode(typ ssa.Type) mcode.Opcode {
	if typ.IsPrimitive(ssa.F32) {
		return MOVSS
	} else if typ.IsPrimitive(ssa.F64) {
		return MOVSD
	}
	return MOV
}

func (x *SSALowerer) createFPConstLoad(value float64, size int) mcode.Operand {
	if size == 4 {
		return x.constLowering.loadF32(float32(value))
	} else if size == 8 {
		return x.constLowering.loadF64(value)
	}
	panic("BUG: unsupported float size")
}
