package emit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chnoblouch/banjo/internal/mcode"
	"github.com/chnoblouch/banjo/internal/ssa"
	"github.com/chnoblouch/banjo/internal/target"
)

func generateGAS(t *testing.T, mod *mcode.Module, descr target.Description) string {
	t.Helper()

	var sb strings.Builder
	require.NoError(t, NewAArch64AsmEmitter(mod, descr).Generate(&sb))
	return sb.String()
}

func TestAArch64EmitterPreamble(t *testing.T) {
	mod := &mcode.Module{}
	mod.AddExternalSymbol("memcpy")
	mod.AddGlobalSymbol("main")

	asm := generateGAS(t, mod, target.NewDescription(target.ArchAArch64, target.OSLinux, target.EnvGNU))

	require.Contains(t, asm, ".extern memcpy\n")
	require.Contains(t, asm, ".global main\n")
	require.Contains(t, asm, ".text\n")
	require.Contains(t, asm, ".data\n")
}

func TestAArch64EmitterDarwinPrefix(t *testing.T) {
	mod := &mcode.Module{}
	mod.AddExternalSymbol("memcpy")

	asm := generateGAS(t, mod, target.NewDescription(target.ArchAArch64, target.OSMacOS, target.EnvNone))

	require.Contains(t, asm, ".extern _memcpy\n")
}

func TestAArch64EmitterGlobals(t *testing.T) {
	mod := &mcode.Module{}
	mod.AddGlobal(mcode.Global{Name: "answer", Size: 4, Value: ssa.GlobalValueInt(ssa.NewLargeInt(42))})
	mod.AddGlobal(mcode.Global{Name: "wide", Size: 8, Value: ssa.GlobalValueInt(ssa.NewLargeInt(7))})
	mod.AddGlobal(mcode.Global{Name: "msg", Size: 3, Value: ssa.GlobalValueString("hi\x00")})
	mod.AddGlobal(mcode.Global{Name: "buffer", Size: 32, Value: ssa.GlobalValueNone()})

	asm := generateGAS(t, mod, target.NewDescription(target.ArchAArch64, target.OSLinux, target.EnvGNU))

	require.Contains(t, asm, "answer: .word 42\n")
	require.Contains(t, asm, "wide: .xword 7\n")
	require.Contains(t, asm, "msg: .string \"hi\\0\"\n")
	require.Contains(t, asm, "buffer: .zero 32\n")
}

func TestAArch64EmitterRelocations(t *testing.T) {
	e := &AArch64AsmEmitter{}

	require.Equal(t, ":lo12:counter", e.symbol(mcode.NewSymbolReloc("counter", mcode.RelocLO12)))
	require.Equal(t, "counter", e.symbol(mcode.NewSymbol("counter")))

	darwin := &AArch64AsmEmitter{symbolPrefix: "_"}
	require.Equal(t, "_counter@PAGE", darwin.symbol(mcode.NewSymbolDirective("counter", mcode.DirectivePage)))
	require.Equal(t, "_counter@PAGEOFF", darwin.symbol(mcode.NewSymbolDirective("counter", mcode.DirectivePageOff)))
	require.Equal(t, "_counter@GOTPAGE", darwin.symbol(mcode.Symbol{
		Name:      "counter",
		Reloc:     mcode.RelocGOT,
		Directive: mcode.DirectivePage,
	}))
}

func TestAArch64EmitterAddressForms(t *testing.T) {
	e := &AArch64AsmEmitter{}
	sp := mcode.RegFromPhysical(31) // SP in the aarch64 register file

	base := mcode.NewAArch64AddrBase(sp)
	require.Equal(t, "[sp]", e.addr(&base))

	imm := mcode.NewAArch64AddrOffsetImm(sp, 24)
	require.Equal(t, "[sp, #24]", e.addr(&imm))

	pre := mcode.NewAArch64AddrOffsetImmWrite(sp, -16)
	require.Equal(t, "[sp, #-16]!", e.addr(&pre))
}
