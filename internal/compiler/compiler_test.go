package compiler_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chnoblouch/banjo/internal/compiler"
	"github.com/chnoblouch/banjo/internal/mcode"
	"github.com/chnoblouch/banjo/internal/ssa"
	"github.com/chnoblouch/banjo/internal/target"
	"github.com/chnoblouch/banjo/internal/target/x8664"
)

func compileToAsm(t *testing.T, mod *ssa.Module, descr target.Description) (*mcode.Module, string) {
	t.Helper()

	tgt, err := compiler.NewTarget(descr, target.CodeModelSmall)
	require.NoError(t, err)

	c := compiler.New(tgt)
	machineModule := c.Compile(mod)

	var sb strings.Builder
	require.NoError(t, c.EmitAssembly(machineModule, &sb))
	return machineModule, sb.String()
}

func linuxX8664() target.Description {
	return target.NewDescription(target.ArchX8664, target.OSLinux, target.EnvGNU)
}

func windowsX8664() target.Description {
	return target.NewDescription(target.ArchX8664, target.OSWindows, target.EnvMSVC)
}

func linuxAArch64() target.Description {
	return target.NewDescription(target.ArchAArch64, target.OSLinux, target.EnvGNU)
}

// requireBackendInvariants checks the universal post-pipeline
// properties: no virtual registers survive allocation, every stack slot
// has an offset, and every exit is preceded by the epilog.
func requireBackendInvariants(t *testing.T, machineModule *mcode.Module) {
	t.Helper()

	for _, fn := range machineModule.Functions() {
		for _, slot := range fn.StackFrame().StackSlots() {
			require.True(t, slot.IsDefined(), "unplaced stack slot in %s", fn.Name())
		}

		for block := fn.FirstBlock(); block != nil; block = block.Next() {
			for instr := block.FirstInstr(); instr != nil; instr = instr.Next() {
				for i := 0; i < instr.NumOperands(); i++ {
					operand := instr.Operand(i)
					require.False(t, operand.IsVirtualReg(),
						"virtual register survived allocation in %s", fn.Name())
					if operand.IsAddr() {
						require.False(t, operand.Addr().Base().IsVirtualReg())
					}
				}

				if fn.CallingConv().IsFuncExit(instr.Opcode()) {
					require.NotNil(t, instr.Prev(),
						"exit without epilog in %s", fn.Name())
				}
			}
		}
	}
}

// Identity add: the result comes back in EAX, the arguments arrive in
// EDI and ESI.
func TestIdentityAddX8664SysV(t *testing.T) {
	i32 := ssa.I32.Type()

	fn := ssa.NewFunction("add", []ssa.Type{i32, i32}, i32, ssa.CallingConvX8664SysV)
	fn.Global = true
	entry := fn.CreateBlock("")

	a := fn.NextVirtualReg()
	entry.Append(ssa.NewInstrDst(ssa.OpcodeLoadArg, a,
		ssa.FromType(i32), ssa.FromIntImmediate(ssa.NewLargeInt(0), ssa.I64.Type())))
	b := fn.NextVirtualReg()
	entry.Append(ssa.NewInstrDst(ssa.OpcodeLoadArg, b,
		ssa.FromType(i32), ssa.FromIntImmediate(ssa.NewLargeInt(1), ssa.I64.Type())))
	c := fn.NextVirtualReg()
	entry.Append(ssa.NewInstrDst(ssa.OpcodeAdd, c,
		ssa.FromRegister(a, i32), ssa.FromRegister(b, i32)))
	entry.Append(ssa.NewInstr(ssa.OpcodeRet, ssa.FromRegister(c, i32)))

	mod := &ssa.Module{}
	mod.AddFunction(fn)

	machineModule, asm := compileToAsm(t, mod, linuxX8664())
	requireBackendInvariants(t, machineModule)

	require.Contains(t, asm, "global add")
	require.Contains(t, asm, "add:")
	require.Contains(t, asm, "mov eax, edi")
	require.Contains(t, asm, "add eax, esi")
	require.Contains(t, asm, "ret")
	require.Contains(t, asm, "push rbp")
}

// Struct field store under the MS ABI: field offset and alloca offset
// merge into one folded addressing mode.
func TestStructFieldStoreX8664MS(t *testing.T) {
	vec2 := &ssa.Structure{Name: "vec2", Members: []ssa.StructureMember{
		{Name: "x", Type: ssa.I32.Type()},
		{Name: "y", Type: ssa.I64.Type()},
	}}

	fn := ssa.NewFunction("store_y", nil, ssa.VOID.Type(), ssa.CallingConvX8664MSABI)
	entry := fn.CreateBlock("")

	p := fn.NextVirtualReg()
	entry.Append(ssa.NewInstrDst(ssa.OpcodeAlloca, p, ssa.FromType(ssa.StructType(vec2))))
	q := fn.NextVirtualReg()
	entry.Append(ssa.NewInstrDst(ssa.OpcodeMemberPtr, q,
		ssa.FromType(ssa.StructType(vec2)),
		ssa.FromRegister(p, ssa.ADDR.Type()),
		ssa.FromIntImmediate(ssa.NewLargeInt(1), ssa.I32.Type())))
	entry.Append(ssa.NewInstr(ssa.OpcodeStore,
		ssa.FromIntImmediate(ssa.NewLargeInt(7), ssa.I64.Type()),
		ssa.FromRegister(q, ssa.ADDR.Type())))
	entry.Append(ssa.NewInstr(ssa.OpcodeRet))

	mod := &ssa.Module{}
	mod.AddStructure(vec2)
	mod.AddFunction(fn)

	machineModule, asm := compileToAsm(t, mod, windowsX8664())
	requireBackendInvariants(t, machineModule)

	require.Contains(t, asm, "mov qword [rsp + 0 + 8], 7")
}

// Returning a 24-byte aggregate under the MS ABI goes through a hidden
// destination pointer in RCX.
func TestPointerArgReturnX8664MS(t *testing.T) {
	vec3 := &ssa.Structure{Name: "vec3", Members: []ssa.StructureMember{
		{Name: "x", Type: ssa.F64.Type()},
		{Name: "y", Type: ssa.F64.Type()},
		{Name: "z", Type: ssa.F64.Type()},
	}}
	structType := ssa.StructType(vec3)

	// Callee: build the value in an alloca and return it.
	callee := ssa.NewFunction("make_vec3", nil, structType, ssa.CallingConvX8664MSABI)
	calleeEntry := callee.CreateBlock("")

	p := callee.NextVirtualReg()
	calleeEntry.Append(ssa.NewInstrDst(ssa.OpcodeAlloca, p, ssa.FromType(structType)))
	calleeEntry.Append(ssa.NewInstr(ssa.OpcodeRet, ssa.FromRegister(p, structType)))

	// Caller: call, then read the first field of the result.
	caller := ssa.NewFunction("use_vec3", nil, ssa.F64.Type(), ssa.CallingConvX8664MSABI)
	callerEntry := caller.CreateBlock("")

	r := caller.NextVirtualReg()
	callerEntry.Append(ssa.NewInstrDst(ssa.OpcodeCall, r, ssa.FromFunc("make_vec3", structType)))
	x := caller.NextVirtualReg()
	callerEntry.Append(ssa.NewInstrDst(ssa.OpcodeMemberPtr, x,
		ssa.FromType(structType),
		ssa.FromRegister(r, ssa.ADDR.Type()),
		ssa.FromIntImmediate(ssa.NewLargeInt(0), ssa.I32.Type())))
	v := caller.NextVirtualReg()
	callerEntry.Append(ssa.NewInstrDst(ssa.OpcodeLoad, v,
		ssa.FromType(ssa.F64.Type()), ssa.FromRegister(x, ssa.ADDR.Type())))
	callerEntry.Append(ssa.NewInstr(ssa.OpcodeRet, ssa.FromRegister(v, ssa.F64.Type())))

	mod := &ssa.Module{}
	mod.AddStructure(vec3)
	mod.AddFunction(callee)
	mod.AddFunction(caller)

	machineModule, asm := compileToAsm(t, mod, windowsX8664())
	requireBackendInvariants(t, machineModule)

	// Call site: the hidden destination pointer goes into RCX.
	require.Contains(t, asm, "lea rcx, [rsp")
	// Callee: the hidden pointer is spilled at entry and written
	// through before returning.
	require.Contains(t, asm, ", rcx")
	require.Contains(t, asm, "call make_vec3")
}

// An f32 zero store becomes an integer immediate store without a
// constant load.
func TestFPLiteralZeroStoreX8664(t *testing.T) {
	fn := ssa.NewFunction("zero", nil, ssa.VOID.Type(), ssa.CallingConvX8664SysV)
	entry := fn.CreateBlock("")

	p := fn.NextVirtualReg()
	entry.Append(ssa.NewInstrDst(ssa.OpcodeAlloca, p, ssa.FromType(ssa.F32.Type())))
	entry.Append(ssa.NewInstr(ssa.OpcodeStore,
		ssa.FromFPImmediate(0.0, ssa.F32.Type()),
		ssa.FromRegister(p, ssa.ADDR.Type())))
	entry.Append(ssa.NewInstr(ssa.OpcodeRet))

	mod := &ssa.Module{}
	mod.AddFunction(fn)

	machineModule, asm := compileToAsm(t, mod, linuxX8664())
	requireBackendInvariants(t, machineModule)

	require.Contains(t, asm, "mov dword [rsp + 8], 0")
	require.NotContains(t, asm, "movss")
}

// A branch with block arguments moves the argument into the parameter
// register and falls through to the next block in layout.
func TestBranchWithBlockArgsAArch64(t *testing.T) {
	i32 := ssa.I32.Type()

	fn := ssa.NewFunction("branch_args", nil, i32, ssa.CallingConvAArch64AAPCS)
	entry := fn.CreateBlock("")
	next := fn.CreateBlock("next")
	p := next.AddParam(fn, i32)

	entry.Append(ssa.NewInstr(ssa.OpcodeJmp, ssa.FromBranchTarget(ssa.BranchTarget{
		Block: next,
		Args:  []ssa.Operand{ssa.FromIntImmediate(ssa.NewLargeInt(42), i32)},
	})))
	next.Append(ssa.NewInstr(ssa.OpcodeRet, ssa.FromRegister(p, i32)))

	mod := &ssa.Module{}
	mod.AddFunction(fn)

	machineModule, asm := compileToAsm(t, mod, linuxAArch64())
	requireBackendInvariants(t, machineModule)

	require.Contains(t, asm, "movz w0, #42")
	require.Contains(t, asm, "next:")
	// The jump target is the next block in layout, so no branch is
	// emitted.
	require.NotContains(t, asm, "b next")
	require.Contains(t, asm, "stp x29, x30, [sp, #-16]!")
	require.Contains(t, asm, "ret")
}

// Twenty simultaneously-live values overflow the candidate registers
// and force spills through the reserved scratch registers.
func TestRegisterSpillUnderPressureX8664(t *testing.T) {
	i64 := ssa.I64.Type()

	fn := ssa.NewFunction("pressure", nil, i64, ssa.CallingConvX8664SysV)
	entry := fn.CreateBlock("")

	const numValues = 20
	values := make([]ssa.VirtualRegister, numValues)
	for i := 0; i < numValues; i++ {
		values[i] = fn.NextVirtualReg()
		entry.Append(ssa.NewInstrDst(ssa.OpcodeAdd, values[i],
			ssa.FromIntImmediate(ssa.NewLargeInt(int64(i)), i64),
			ssa.FromIntImmediate(ssa.NewLargeInt(1), i64)))
	}

	acc := values[0]
	for i := 1; i < numValues; i++ {
		sum := fn.NextVirtualReg()
		entry.Append(ssa.NewInstrDst(ssa.OpcodeAdd, sum,
			ssa.FromRegister(acc, i64), ssa.FromRegister(values[i], i64)))
		acc = sum
	}

	entry.Append(ssa.NewInstr(ssa.OpcodeRet, ssa.FromRegister(acc, i64)))

	mod := &ssa.Module{}
	mod.AddFunction(fn)

	machineModule, asm := compileToAsm(t, mod, linuxX8664())
	requireBackendInvariants(t, machineModule)

	// Spill traffic through the reserved scratch register.
	require.Contains(t, asm, "r15")
	require.Contains(t, asm, "[rsp")
	require.NotContains(t, asm, "%")
}

// Epilogs appear immediately before every return site.
func TestEpilogBeforeEveryExit(t *testing.T) {
	i32 := ssa.I32.Type()

	fn := ssa.NewFunction("two_exits", []ssa.Type{i32}, i32, ssa.CallingConvX8664SysV)
	entry := fn.CreateBlock("")
	thenBlock := fn.CreateBlock("then")
	elseBlock := fn.CreateBlock("else")

	a := fn.NextVirtualReg()
	entry.Append(ssa.NewInstrDst(ssa.OpcodeLoadArg, a,
		ssa.FromType(i32), ssa.FromIntImmediate(ssa.NewLargeInt(0), ssa.I64.Type())))
	entry.Append(ssa.NewInstr(ssa.OpcodeCJmp,
		ssa.FromRegister(a, i32),
		ssa.FromComparison(ssa.SLT),
		ssa.FromIntImmediate(ssa.NewLargeInt(10), i32),
		ssa.FromBranchTarget(ssa.BranchTarget{Block: thenBlock}),
		ssa.FromBranchTarget(ssa.BranchTarget{Block: elseBlock}),
	))
	thenBlock.Append(ssa.NewInstr(ssa.OpcodeRet, ssa.FromIntImmediate(ssa.NewLargeInt(1), i32)))
	elseBlock.Append(ssa.NewInstr(ssa.OpcodeRet, ssa.FromIntImmediate(ssa.NewLargeInt(2), i32)))

	mod := &ssa.Module{}
	mod.AddFunction(fn)

	machineModule, _ := compileToAsm(t, mod, linuxX8664())
	requireBackendInvariants(t, machineModule)

	exits := 0
	for _, mfn := range machineModule.Functions() {
		for block := mfn.FirstBlock(); block != nil; block = block.Next() {
			for instr := block.FirstInstr(); instr != nil; instr = instr.Next() {
				if instr.Opcode() == x8664.RET {
					exits++
					// The SysV epilog ends by popping the frame
					// pointer.
					require.NotNil(t, instr.Prev())
					require.Equal(t, x8664.POP, instr.Prev().Opcode())
				}
			}
		}
	}
	require.Equal(t, 2, exits)
}
