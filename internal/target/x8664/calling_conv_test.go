package x8664

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chnoblouch/banjo/internal/mcode"
	"github.com/chnoblouch/banjo/internal/ssa"
)

func TestSysVArgStorage(t *testing.T) {
	types := []ssa.Type{
		ssa.I32.Type(), ssa.F32.Type(), ssa.I64.Type(), ssa.F64.Type(),
	}

	storage := SysVCallingConv.ArgStorage(types)

	// Integer and floating-point arguments draw from separate register
	// sequences.
	require.Equal(t, RDI, storage[0].Reg)
	require.Equal(t, XMM0, storage[1].Reg)
	require.Equal(t, RSI, storage[2].Reg)
	require.Equal(t, XMM1, storage[3].Reg)
}

func TestSysVArgStorageSpillsToStack(t *testing.T) {
	types := make([]ssa.Type, 8)
	for i := range types {
		types[i] = ssa.I64.Type()
	}

	storage := SysVCallingConv.ArgStorage(types)

	for i := 0; i < 6; i++ {
		require.True(t, storage[i].InReg)
	}
	require.False(t, storage[6].InReg)
	require.Equal(t, 0, storage[6].ArgSlotIndex)
	require.False(t, storage[7].InReg)
	require.Equal(t, 1, storage[7].ArgSlotIndex)
}

func TestMSABIArgStorage(t *testing.T) {
	types := []ssa.Type{
		ssa.I32.Type(), ssa.F32.Type(), ssa.I64.Type(), ssa.I64.Type(), ssa.I64.Type(),
	}

	storage := MSABICallingConv.ArgStorage(types)

	// MS assigns registers by position regardless of class.
	require.Equal(t, RCX, storage[0].Reg)
	require.Equal(t, XMM1, storage[1].Reg)
	require.Equal(t, R8, storage[2].Reg)
	require.Equal(t, R9, storage[3].Reg)

	require.False(t, storage[4].InReg)
	require.Equal(t, 0, storage[4].ArgSlotIndex)
	require.Equal(t, 32, storage[4].StackOffset)
}

func TestReturnMethod(t *testing.T) {
	vec3 := &ssa.Structure{Name: "vec3", Members: []ssa.StructureMember{
		{Name: "x", Type: ssa.F64.Type()},
		{Name: "y", Type: ssa.F64.Type()},
		{Name: "z", Type: ssa.F64.Type()},
	}}
	structType := ssa.StructType(vec3)

	require.Equal(t, mcode.ReturnNone, SysVCallingConv.ReturnMethod(ssa.VOID.Type(), 0))
	require.Equal(t, mcode.ReturnInRegister, SysVCallingConv.ReturnMethod(ssa.I32.Type(), 4))

	require.Equal(t, mcode.ReturnViaPointerArg, SysVCallingConv.ReturnMethod(structType, 24))
	require.Equal(t, mcode.ReturnInRegister, SysVCallingConv.ReturnMethod(structType, 16))

	// MS returns aggregates in RAX only for power-of-two sizes up to 8.
	require.Equal(t, mcode.ReturnViaPointerArg, MSABICallingConv.ReturnMethod(structType, 24))
	require.Equal(t, mcode.ReturnViaPointerArg, MSABICallingConv.ReturnMethod(structType, 12))
	require.Equal(t, mcode.ReturnInRegister, MSABICallingConv.ReturnMethod(structType, 8))
}

func TestReturnPtrStorageShiftsArgs(t *testing.T) {
	retPtr, args := SysVCallingConv.ReturnPtrStorage([]ssa.Type{ssa.I32.Type()})

	require.True(t, retPtr.InReg)
	require.Equal(t, RDI, retPtr.Reg)
	require.Len(t, args, 1)
	require.Equal(t, RSI, args[0].Reg)
}

func TestIsFuncExit(t *testing.T) {
	require.True(t, SysVCallingConv.IsFuncExit(RET))
	require.False(t, SysVCallingConv.IsFuncExit(JMP))
}
