package mcode

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chnoblouch/banjo/internal/ssa"
)

func TestStackFrameSlots(t *testing.T) {
	var frame StackFrame

	generic := frame.NewStackSlot(NewStackSlot(StackSlotGeneric, 16, 1))
	callArg := frame.NewStackSlot(NewStackSlot(StackSlotCallArg, 8, 1))

	require.Equal(t, 2, frame.NumStackSlots())
	require.False(t, frame.StackSlot(generic).IsDefined())

	// Call-arg slots are tracked separately for the region builders.
	require.Equal(t, []StackSlotID{callArg}, frame.CallArgSlotIndices())

	frame.StackSlot(generic).SetOffset(24)
	require.True(t, frame.StackSlot(generic).IsDefined())
	require.Equal(t, 24, frame.StackSlot(generic).Offset())

	require.Panics(t, func() {
		frame.StackSlot(callArg).Offset()
	})
}

func TestInstructionList(t *testing.T) {
	fn := NewFunction("f", nil)
	block := NewBasicBlock("", fn)
	fn.AppendBlock(block)

	first := block.Append(NewInstr(1))
	third := block.Append(NewInstr(3))
	second := block.InsertBefore(third, NewInstr(2))
	block.InsertAfter(third, NewInstr(4))

	var opcodes []Opcode
	for instr := block.FirstInstr(); instr != nil; instr = instr.Next() {
		opcodes = append(opcodes, instr.Opcode())
	}
	require.Equal(t, []Opcode{1, 2, 3, 4}, opcodes)

	// A removed node keeps its links so an iteration can step off it.
	block.Remove(second)
	require.Equal(t, third, second.Next())
	require.Equal(t, third, first.Next())
	require.Equal(t, first, third.Prev())

	require.Equal(t, 3, block.NumInstrs())
}

func TestOperandEquality(t *testing.T) {
	a := OperandFromRegister(RegFromVirtual(3), 4)
	b := OperandFromRegister(RegFromVirtual(3), 8)
	c := OperandFromRegister(RegFromPhysical(3), 4)

	// Sizes are ignored; the register identity is not.
	require.True(t, a.Equal(&b))
	require.False(t, a.Equal(&c))

	x := OperandFromIntImmediate(ssa.NewLargeInt(42), 4)
	y := OperandFromIntImmediate(ssa.NewLargeInt(42), 4)
	require.True(t, x.Equal(&y))
}
