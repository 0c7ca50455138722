// Package compiler drives the backend pipeline: SSA module in, machine
// passes over the lowered module, assembly text out.
package compiler

import (
	"io"

	"github.com/pkg/errors"

	"github.com/chnoblouch/banjo/internal/codegen"
	"github.com/chnoblouch/banjo/internal/emit"
	"github.com/chnoblouch/banjo/internal/mcode"
	"github.com/chnoblouch/banjo/internal/ssa"
	"github.com/chnoblouch/banjo/internal/target"
	"github.com/chnoblouch/banjo/internal/target/aarch64"
	"github.com/chnoblouch/banjo/internal/target/x8664"
)

// NewTarget builds the backend for descr.
func NewTarget(descr target.Description, codeModel target.CodeModel) (codegen.Target, error) {
	switch descr.Architecture {
	case target.ArchX8664:
		return x8664.NewTarget(descr, codeModel), nil
	case target.ArchAArch64:
		return aarch64.NewTarget(descr, codeModel), nil
	}
	return nil, errors.Errorf("unsupported architecture in target %s", descr)
}

// Compiler compiles SSA modules for one target.
type Compiler struct {
	target codegen.Target

	// DumpDir, when set, receives the machine-module dumps between
	// passes.
	DumpDir string
}

func New(t codegen.Target) *Compiler {
	return &Compiler{target: t}
}

func (c *Compiler) Target() codegen.Target { return c.target }

// Compile lowers mod and runs the machine-pass pipeline. The SSA module
// is not mutated structurally and must not be changed by the caller
// while compilation runs.
func (c *Compiler) Compile(mod *ssa.Module) *mcode.Module {
	lowerer := codegen.NewSSALowerer(c.target, c.target.NewTargetLowerer())
	machineModule := lowerer.LowerModule(mod)

	runner := codegen.NewPassRunner(c.target)
	runner.DumpDir = c.DumpDir
	runner.CreateAndRun(machineModule)

	return machineModule
}

// EmitAssembly writes the target's assembly rendition of machineModule.
func (c *Compiler) EmitAssembly(machineModule *mcode.Module, w io.Writer) error {
	return c.AssemblyEmitter(machineModule).Generate(w)
}

// AssemblyEmitter returns the emitter matching the target architecture.
func (c *Compiler) AssemblyEmitter(machineModule *mcode.Module) emit.Emitter {
	switch c.target.Descr().Architecture {
	case target.ArchX8664:
		return emit.NewNASMEmitter(machineModule, c.target.Descr())
	case target.ArchAArch64:
		return emit.NewAArch64AsmEmitter(machineModule, c.target.Descr())
	}
	panic("BUG: no emitter for architecture")
}
