// Package x8664 is the x86-64 backend: instruction selection, the SysV
// and MS ABI calling conventions, and the register analyzer.
package x8664

import (
	"github.com/chnoblouch/banjo/internal/codegen"
	"github.com/chnoblouch/banjo/internal/mcode"
	"github.com/chnoblouch/banjo/internal/target"
)

// Target implements codegen.Target for x86-64.
type Target struct {
	descr     target.Description
	codeModel target.CodeModel
	layout    target.StandardDataLayout
	analyzer  *RegAnalyzer
}

func NewTarget(descr target.Description, codeModel target.CodeModel) *Target {
	return &Target{
		descr:     descr,
		codeModel: codeModel,
		layout:    target.NewStandardDataLayout(),
		analyzer:  NewRegAnalyzer(),
	}
}

// Descr implements codegen.Target.
func (t *Target) Descr() target.Description { return t.descr }

// CodeModel implements codegen.Target.
func (t *Target) CodeModel() target.CodeModel { return t.codeModel }

// DataLayout implements codegen.Target.
func (t *Target) DataLayout() target.DataLayout { return t.layout }

// NewTargetLowerer implements codegen.Target.
func (t *Target) NewTargetLowerer() codegen.TargetLowerer {
	return newSSALowerer(t)
}

// RegAnalyzer implements codegen.Target.
func (t *Target) RegAnalyzer() codegen.TargetRegAnalyzer { return t.analyzer }

// CreatePrePasses implements codegen.Target.
func (t *Target) CreatePrePasses() []codegen.MachinePass { return nil }

// CreatePostPasses implements codegen.Target.
func (t *Target) CreatePostPasses() []codegen.MachinePass {
	return []codegen.MachinePass{NewPeepholeOptPass()}
}

// OpcodeName implements codegen.Target.
func (t *Target) OpcodeName(opcode mcode.Opcode) string {
	return OpcodeName(opcode)
}

// PhysicalRegName implements codegen.Target.
func (t *Target) PhysicalRegName(reg mcode.PhysicalReg, size int) string {
	return PhysicalRegName(reg, size)
}

// DefaultCallingConv selects the calling convention for descr.
func DefaultCallingConv(descr target.Description) *x8664CallingConv {
	if descr.IsWindows() {
		return MSABICallingConv
	}
	return SysVCallingConv
}
