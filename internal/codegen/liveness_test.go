package codegen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chnoblouch/banjo/internal/mcode"
)

func vregOp(reg mcode.VirtualReg, usage mcode.RegUsage) mcode.RegOp {
	return mcode.RegOp{Reg: mcode.RegFromVirtual(reg), Usage: usage}
}

func physOp(reg mcode.PhysicalReg, usage mcode.RegUsage) mcode.RegOp {
	return mcode.RegOp{Reg: mcode.RegFromPhysical(reg), Usage: usage}
}

func instrs(regOps ...[]mcode.RegOp) []RegAllocInstr {
	result := make([]RegAllocInstr, len(regOps))
	for i, ops := range regOps {
		result[i] = RegAllocInstr{Index: i, Instr: mcode.NewInstr(0), Regs: ops}
	}
	return result
}

func TestLivenessSingleBlock(t *testing.T) {
	fn := &RegAllocFunc{
		Blocks: []RegAllocBlock{
			{
				Instrs: instrs(
					[]mcode.RegOp{vregOp(1, mcode.RegDef)},
					[]mcode.RegOp{vregOp(2, mcode.RegDef), vregOp(1, mcode.RegUse)},
					[]mcode.RegOp{vregOp(2, mcode.RegUse), physOp(5, mcode.RegKill)},
				),
			},
		},
	}

	liveness := ComputeLiveness(fn)

	group1 := liveness.RangeGroups[mcode.RegFromVirtual(1)]
	require.NotNil(t, group1)
	require.Len(t, group1.Ranges, 1)
	require.Equal(t, 0, group1.Ranges[0].Start)
	require.Equal(t, 1, group1.Ranges[0].End)
	require.True(t, group1.Ranges[0].StartsAtDef)
	require.True(t, group1.Ranges[0].EndsAtUse)

	group2 := liveness.RangeGroups[mcode.RegFromVirtual(2)]
	require.NotNil(t, group2)
	require.Len(t, group2.Ranges, 1)
	require.Equal(t, 1, group2.Ranges[0].Start)
	require.Equal(t, 2, group2.Ranges[0].End)

	require.Len(t, liveness.KillPoints, 1)
	require.Equal(t, mcode.PhysicalReg(5), liveness.KillPoints[0].Reg)
	require.Equal(t, 2, liveness.KillPoints[0].Instr)

	// Nothing is live across the block boundaries.
	require.Empty(t, liveness.BlockLiveness[0].Ins)
	require.Empty(t, liveness.BlockLiveness[0].Outs)
}

func TestLivenessAcrossBlocks(t *testing.T) {
	fn := &RegAllocFunc{
		Blocks: []RegAllocBlock{
			{
				Instrs: instrs(
					[]mcode.RegOp{vregOp(1, mcode.RegDef)},
					nil,
				),
				Succs: []int{1},
			},
			{
				Instrs: instrs(
					[]mcode.RegOp{vregOp(1, mcode.RegUse)},
				),
				Preds: []int{0},
			},
		},
	}

	liveness := ComputeLiveness(fn)

	require.True(t, liveness.BlockLiveness[0].Outs[mcode.RegFromVirtual(1)])
	require.True(t, liveness.BlockLiveness[1].Ins[mcode.RegFromVirtual(1)])

	group := liveness.RangeGroups[mcode.RegFromVirtual(1)]
	require.Len(t, group.Ranges, 2)

	// The range in the defining block runs from the def to the block
	// end; the range in the consuming block covers the use from the
	// block start.
	var defRange, useRange *LiveRange
	for i := range group.Ranges {
		switch group.Ranges[i].Block {
		case 0:
			defRange = &group.Ranges[i]
		case 1:
			useRange = &group.Ranges[i]
		}
	}

	require.NotNil(t, defRange)
	require.Equal(t, 0, defRange.Start)
	require.Equal(t, 1, defRange.End)
	require.True(t, defRange.StartsAtDef)

	require.NotNil(t, useRange)
	require.Equal(t, 0, useRange.Start)
	require.Equal(t, 0, useRange.End)
	require.False(t, useRange.StartsAtDef)
}

func TestRegAllocRangeIntersection(t *testing.T) {
	// A range ending at a use does not collide with a range starting at
	// a def on the same instruction.
	endsAtUse := LiveRange{Block: 0, Start: 0, End: 2, StartsAtDef: true, EndsAtUse: true}
	startsAtDef := LiveRange{Block: 0, Start: 2, End: 4, StartsAtDef: true, EndsAtUse: true}

	require.False(t, endsAtUse.ToRARange(3).Intersects(startsAtDef.ToRARange(3)))
	require.False(t, startsAtDef.ToRARange(3).Intersects(endsAtUse.ToRARange(3)))

	// Different registers never intersect.
	overlapping := LiveRange{Block: 0, Start: 1, End: 3}
	require.False(t, endsAtUse.ToRARange(3).Intersects(overlapping.ToRARange(4)))

	// Genuine overlap on the same register collides.
	require.True(t, endsAtUse.ToRARange(3).Intersects(overlapping.ToRARange(3)))
}
