// Package aarch64 is the AArch64 backend: instruction selection, the
// AAPCS calling convention, and the register analyzer.
package aarch64

import (
	"github.com/chnoblouch/banjo/internal/codegen"
	"github.com/chnoblouch/banjo/internal/mcode"
	"github.com/chnoblouch/banjo/internal/target"
)

// Target implements codegen.Target for AArch64.
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
func (t *Target) CreatePrePasses() []codegen.MachinePass {
	return []codegen.MachinePass{NewInstrMergePass()}
}

// CreatePostPasses implements codegen.Target.
func (t *Target) CreatePostPasses() []codegen.MachinePass { return nil }

// OpcodeName implements codegen.Target.
func (t *Target) OpcodeName(opcode mcode.Opcode) string {
	return OpcodeName(opcode)
}

// PhysicalRegName implements codegen.Target.
func (t *Target) PhysicalRegName(reg mcode.PhysicalReg, size int) string {
	return PhysicalRegName(reg, size)
}

// DefaultCallingConv selects the convention for descr.
func DefaultCallingConv(descr target.Description) *aapcsCallingConv {
	if descr.IsDarwin() {
		return AAPCSDarwinConv
	}
	return AAPCSConv
}
