package codegen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chnoblouch/banjo/internal/mcode"
)

// fakeAnalyzer drives the allocator with register roles supplied per
// instruction, standing in for a target analyzer.
type fakeAnalyzer struct {
	candidates []mcode.PhysicalReg
	roles      map[*mcode.Instruction][]mcode.RegOp
	spillCalls int
}

func (f *fakeAnalyzer) GetOperands(instr *mcode.Instruction, block *mcode.BasicBlock) []mcode.RegOp {
	return f.roles[instr]
}

func (f *fakeAnalyzer) GetCandidates(instr *mcode.Instruction) []mcode.PhysicalReg {
	return f.candidates
}

func (f *fakeAnalyzer) SuggestRegs(fn *RegAllocFunc, group *LiveRangeGroup) []mcode.PhysicalReg {
	return nil
}

func (f *fakeAnalyzer) IsRegOverridden(instr *mcode.Instruction, block *mcode.BasicBlock, reg mcode.PhysicalReg) bool {
	return false
}

func (f *fakeAnalyzer) InsertSpillReload(use SpilledRegUse) mcode.PhysicalReg {
	f.spillCalls++
	return 99
}

func (f *fakeAnalyzer) IsInstrRemovable(instr *mcode.Instruction) bool {
	return false
}

// buildChain creates a block defining %1, moving it into %2, and using
// %2, returning the three instructions.
func buildChain() (*mcode.Function, [3]*mcode.Instruction) {
	fn := mcode.NewFunction("chain", nil)
	block := mcode.NewBasicBlock("", fn)
	fn.AppendBlock(block)

	i0 := block.Append(mcode.NewInstr(0, mcode.OperandFromRegister(mcode.RegFromVirtual(1), 8)))
	i1 := block.Append(mcode.NewInstr(0,
		mcode.OperandFromRegister(mcode.RegFromVirtual(2), 8),
		mcode.OperandFromRegister(mcode.RegFromVirtual(1), 8)))
	i2 := block.Append(mcode.NewInstr(0, mcode.OperandFromRegister(mcode.RegFromVirtual(2), 8)))

	return fn, [3]*mcode.Instruction{i0, i1, i2}
}

func chainRoles(chain [3]*mcode.Instruction) map[*mcode.Instruction][]mcode.RegOp {
	return map[*mcode.Instruction][]mcode.RegOp{
		chain[0]: {vregOp(1, mcode.RegDef)},
		chain[1]: {vregOp(2, mcode.RegDef), vregOp(1, mcode.RegUse)},
		chain[2]: {vregOp(2, mcode.RegUse)},
	}
}

func TestRegAllocAssignsPhysicalRegs(t *testing.T) {
	fn, chain := buildChain()
	analyzer := &fakeAnalyzer{
		candidates: []mcode.PhysicalReg{7},
		roles:      chainRoles(chain),
	}

	NewRegAllocPass(analyzer).runOnFunc(fn)

	requireNoVirtualOperands(t, fn)

	// %1 dies at the move that defines %2, so one register serves both.
	require.Equal(t, 7, chain[0].Operand(0).PhysicalReg())
	require.Equal(t, 7, chain[1].Operand(0).PhysicalReg())
	require.Equal(t, 7, chain[1].Operand(1).PhysicalReg())
	require.Equal(t, 7, chain[2].Operand(0).PhysicalReg())
	require.Zero(t, analyzer.spillCalls)
}

func TestRegAllocSpillsWithoutCandidates(t *testing.T) {
	fn, chain := buildChain()
	analyzer := &fakeAnalyzer{roles: chainRoles(chain)}

	NewRegAllocPass(analyzer).runOnFunc(fn)

	// Both groups spilled: one def site and one use site each.
	require.Equal(t, 4, analyzer.spillCalls)
	require.Equal(t, 2, fn.StackFrame().NumStackSlots())

	requireNoVirtualOperands(t, fn)
}

func requireNoVirtualOperands(t *testing.T, fn *mcode.Function) {
	t.Helper()

	for block := fn.FirstBlock(); block != nil; block = block.Next() {
		for instr := block.FirstInstr(); instr != nil; instr = instr.Next() {
			for i := 0; i < instr.NumOperands(); i++ {
				operand := instr.Operand(i)
				require.False(t, operand.IsVirtualReg(), "operand %d is still virtual", i)
				if operand.IsAddr() {
					require.False(t, operand.Addr().Base().IsVirtualReg())
				}
			}
		}
	}
}
