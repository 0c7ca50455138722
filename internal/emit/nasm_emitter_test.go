package emit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chnoblouch/banjo/internal/mcode"
	"github.com/chnoblouch/banjo/internal/ssa"
	"github.com/chnoblouch/banjo/internal/target"
)

func generateNASM(t *testing.T, mod *mcode.Module, descr target.Description) string {
	t.Helper()

	var sb strings.Builder
	require.NoError(t, NewNASMEmitter(mod, descr).Generate(&sb))
	return sb.String()
}

func TestNASMEmitterPreamble(t *testing.T) {
	mod := &mcode.Module{}
	mod.AddExternalSymbol("puts")
	mod.AddGlobalSymbol("main")

	asm := generateNASM(t, mod, target.NewDescription(target.ArchX8664, target.OSLinux, target.EnvGNU))

	require.True(t, strings.HasPrefix(asm, "default rel\n"))
	require.Contains(t, asm, "extern puts\n")
	require.Contains(t, asm, "global main\n")
	require.Contains(t, asm, "section .text\n")
	require.Contains(t, asm, "section .data\n")
}

func TestNASMEmitterDarwinPrefixesSymbols(t *testing.T) {
	mod := &mcode.Module{}
	mod.AddExternalSymbol("puts")
	mod.AddGlobalSymbol("main")

	asm := generateNASM(t, mod, target.NewDescription(target.ArchX8664, target.OSMacOS, target.EnvNone))

	require.Contains(t, asm, "extern _puts\n")
	require.Contains(t, asm, "global _main\n")
}

func TestNASMEmitterGlobals(t *testing.T) {
	mod := &mcode.Module{}
	mod.AddGlobal(mcode.Global{Name: "answer", Size: 4, Value: ssa.GlobalValueInt(ssa.NewLargeInt(42))})
	mod.AddGlobal(mcode.Global{Name: "half", Size: 8, Value: ssa.GlobalValueFP(0.5)})
	mod.AddGlobal(mcode.Global{Name: "msg", Size: 4, Value: ssa.GlobalValueString("hi\n\x00")})
	mod.AddGlobal(mcode.Global{Name: "buffer", Size: 16, Value: ssa.GlobalValueNone()})
	mod.AddGlobal(mcode.Global{Name: "handler", Size: 8, Value: ssa.GlobalValueSymbolRef("main")})

	asm := generateNASM(t, mod, target.NewDescription(target.ArchX8664, target.OSLinux, target.EnvGNU))

	require.Contains(t, asm, "answer dd 42\n")
	require.Contains(t, asm, "half dq __float64__(0.5)\n")
	require.Contains(t, asm, "msg db 'hi', 0x0A, 0x00\n")
	require.Contains(t, asm, "buffer times 16 db 0\n")
	require.Contains(t, asm, "handler dq main\n")
}

func TestNASMEmitterDLLExports(t *testing.T) {
	mod := &mcode.Module{}
	mod.AddDLLExport("my_func")

	asm := generateNASM(t, mod, target.NewDescription(target.ArchX8664, target.OSWindows, target.EnvMSVC))

	require.Contains(t, asm, "section .drectve info\n")
	require.Contains(t, asm, "/EXPORT:my_func")
}

func TestNASMEmitterRelocations(t *testing.T) {
	require.Equal(t, "printf wrt ..plt",
		(&NASMEmitter{symbolPrefixes: map[string]string{}}).symbol(mcode.NewSymbolReloc("printf", mcode.RelocPLT)))
	require.Equal(t, "errno wrt ..got",
		(&NASMEmitter{symbolPrefixes: map[string]string{}}).symbol(mcode.NewSymbolReloc("errno", mcode.RelocGOT)))
}
