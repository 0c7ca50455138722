package codegen_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chnoblouch/banjo/internal/codegen"
	"github.com/chnoblouch/banjo/internal/mcode"
	"github.com/chnoblouch/banjo/internal/target/x8664"
)

func TestModifiedVolatileRegs(t *testing.T) {
	fn := mcode.NewFunction("f", x8664.SysVCallingConv)
	block := mcode.NewBasicBlock("", fn)
	fn.AppendBlock(block)

	// Writes to caller-saved registers don't count; writes to
	// callee-saved ones are recorded once, in first-write order.
	block.Append(mcode.NewInstr(x8664.MOV,
		mcode.OperandFromRegister(mcode.RegFromPhysical(x8664.RAX), 8),
		mcode.OperandFromInt(1, 8)))
	block.Append(mcode.NewInstr(x8664.MOV,
		mcode.OperandFromRegister(mcode.RegFromPhysical(x8664.RBX), 8),
		mcode.OperandFromInt(2, 8)))
	block.Append(mcode.NewInstr(x8664.MOV,
		mcode.OperandFromRegister(mcode.RegFromPhysical(x8664.R12), 8),
		mcode.OperandFromInt(3, 8)))
	block.Append(mcode.NewInstr(x8664.MOV,
		mcode.OperandFromRegister(mcode.RegFromPhysical(x8664.RBX), 8),
		mcode.OperandFromInt(4, 8)))

	modified := codegen.ModifiedVolatileRegs(fn)
	require.Equal(t, []mcode.PhysicalReg{x8664.RBX, x8664.R12}, modified)
}

func TestReplaceVirtualReg(t *testing.T) {
	fn := mcode.NewFunction("f", x8664.SysVCallingConv)
	block := mcode.NewBasicBlock("", fn)
	fn.AppendBlock(block)

	addr := mcode.NewIndirectAddressRegOffset(
		mcode.RegFromVirtual(3), mcode.RegFromVirtual(4), 8)

	block.Append(mcode.NewInstr(x8664.MOV,
		mcode.OperandFromRegister(mcode.RegFromVirtual(3), 8),
		mcode.OperandFromAddr(addr, 8)))

	codegen.ReplaceVirtualReg(block, 3, 9)

	instr := block.FirstInstr()
	require.Equal(t, 9, instr.Operand(0).VirtualReg())
	require.Equal(t, mcode.RegFromVirtual(9), instr.Operand(1).Addr().Base())
	// Unrelated registers are untouched.
	require.Equal(t, mcode.RegFromVirtual(4), instr.Operand(1).Addr().RegOffset())
}
