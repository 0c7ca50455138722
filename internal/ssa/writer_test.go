package ssa

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const testModuleSrc = `struct @vec2 {
    i32 @x
    i64 @y
}

decl func sysv_abi void @memcpy(addr, addr, i64)

decl global i64 @counter

def global i32 @answer = 42
def global f64 @pi = 3.5
def global addr @handler = @main

def func sysv_abi i32 @main()
    %0 = alloca @vec2
    %1 = memberptr @vec2, addr %0, i32 1
    store i64 7, addr %1
    jmp @loop(0)
loop(i32 %2):
    %3 = add i32 %2, i32 1
    cjmp i32 %3, slt, i32 10, @loop(%3), @exit
exit:
    ret i32 %3
`

func TestParse(t *testing.T) {
	mod, err := Parse(testModuleSrc)
	require.NoError(t, err)

	require.Len(t, mod.Structures, 1)
	require.Equal(t, "vec2", mod.Structures[0].Name)
	require.Len(t, mod.Structures[0].Members, 2)
	require.Equal(t, I64.Type(), mod.Structures[0].Members[1].Type)

	require.Len(t, mod.ExternalFunctions, 1)
	require.Equal(t, "memcpy", mod.ExternalFunctions[0].Name)
	require.Len(t, mod.ExternalFunctions[0].Params, 3)

	require.Len(t, mod.ExternalGlobals, 1)
	require.Len(t, mod.Globals, 3)
	require.Equal(t, GlobalInteger, mod.Globals[0].InitialValue.Kind)
	require.Equal(t, NewLargeInt(42), mod.Globals[0].InitialValue.IntValue)
	require.Equal(t, GlobalFloatingPoint, mod.Globals[1].InitialValue.Kind)
	require.Equal(t, GlobalSymbolRef, mod.Globals[2].InitialValue.Kind)
	require.Equal(t, "main", mod.Globals[2].InitialValue.SymbolName)

	require.Len(t, mod.Functions, 1)
	fn := mod.Functions[0]
	require.Equal(t, "main", fn.Name)
	require.Equal(t, CallingConvX8664SysV, fn.CallingConv)
	require.Equal(t, 3, fn.NumBlocks())

	entry := fn.EntryBlock()
	require.False(t, entry.HasLabel())
	require.Equal(t, OpcodeAlloca, entry.FirstInstr().Opcode())
	require.Equal(t, OpcodeJmp, entry.LastInstr().Opcode())

	jmp := entry.LastInstr()
	target := jmp.Operand(0).BranchTarget()
	require.Equal(t, "loop", target.Block.Label())
	require.Len(t, target.Args, 1)
	require.True(t, target.Args[0].IsIntImmediate())
	require.Equal(t, I32.Type(), target.Args[0].Type())

	loop := fn.FindBlock("loop")
	require.Len(t, loop.ParamRegs(), 1)
	require.Equal(t, VirtualRegister(2), loop.ParamRegs()[0])

	cjmp := loop.LastInstr()
	require.Equal(t, OpcodeCJmp, cjmp.Opcode())
	require.Equal(t, SLT, cjmp.Operand(1).Comparison())
}

func TestRoundTripStability(t *testing.T) {
	mod, err := Parse(testModuleSrc)
	require.NoError(t, err)
	first := WriteString(mod)

	reparsed, err := Parse(first)
	require.NoError(t, err)
	second := WriteString(reparsed)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("round trip is not stable (-first +second):\n%s", diff)
	}
}

func TestInstrFlagsRoundTrip(t *testing.T) {
	fn := NewFunction("f", []Type{I32.Type()}, VOID.Type(), CallingConvX8664SysV)
	entry := fn.CreateBlock("")

	alloca := NewInstrDst(OpcodeAlloca, fn.NextVirtualReg(), FromType(I32.Type()))
	alloca.SetFlag(FlagArgStore)
	entry.Append(alloca)

	loadArg := NewInstrDst(OpcodeLoadArg, fn.NextVirtualReg(),
		FromType(I32.Type()), FromIntImmediate(NewLargeInt(0), I64.Type()))
	entry.Append(loadArg)

	store := NewInstr(OpcodeStore,
		FromRegister(loadArg.Dest(), I32.Type()),
		FromRegister(alloca.Dest(), ADDR.Type()))
	store.SetFlag(FlagSaveArg)
	entry.Append(store)

	entry.Append(NewInstr(OpcodeRet))

	mod := &Module{}
	mod.AddFunction(fn)

	text := WriteString(mod)
	require.Contains(t, text, "!arg_store")
	require.Contains(t, text, "!save_arg")

	reparsed, err := Parse(text)
	require.NoError(t, err)

	reparsedEntry := reparsed.Functions[0].EntryBlock()
	require.True(t, reparsedEntry.FirstInstr().HasFlag(FlagArgStore))
	require.True(t, reparsedEntry.FirstInstr().Next().Next().HasFlag(FlagSaveArg))
}
