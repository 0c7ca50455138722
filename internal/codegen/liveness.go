package codegen

import (
	"fmt"
	"io"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/chnoblouch/banjo/internal/mcode"
)

// LiveRange is the [Start, End] instruction span of a register inside one
// block. StartsAtDef/EndsAtUse refine the endpoints to sub-instruction
// stages for the intersection check.
type LiveRange struct {
	Block       int
	Start, End  int
	StartsAtDef bool
	EndsAtUse   bool
}

// ToRARange commits the range to a physical register.
func (r LiveRange) ToRARange(reg mcode.PhysicalReg) RegAllocRange {
	startStage := 0
	if r.StartsAtDef {
		startStage = 1
	}
	endStage := 1
	if r.EndsAtUse {
		endStage = 0
	}

	return RegAllocRange{
		Reg:   reg,
		Start: RegAllocPoint{Instr: r.Start, Stage: startStage},
		End:   RegAllocPoint{Instr: r.End, Stage: endStage},
	}
}

// LiveRangeGroup collects all ranges of one register across all blocks;
// it is the unit of allocation.
type LiveRangeGroup struct {
	Reg    mcode.Register
	Ranges []LiveRange
}

// KillPoint records a physical register clobbered at a site, e.g. the
// caller-saved set at a CALL.
type KillPoint struct {
	Reg   mcode.PhysicalReg
	Block int
	Instr int
}

// BlockLiveness is the per-block fixed-point state.
type BlockLiveness struct {
	Defs map[mcode.Register]bool
	Uses map[mcode.Register]bool
	Ins  map[mcode.Register]bool
	Outs map[mcode.Register]bool
}

// LivenessAnalysis computes block liveness by fixed-point iteration on
// the post-order traversal of the CFG, then a precise backward pass per
// block building per-register live-range lists.
//
// Moves with the same source and destination would break this analysis;
// the cleanup that removes them runs strictly after allocation.
type LivenessAnalysis struct {
	fn *RegAllocFunc

	BlockLiveness []BlockLiveness
	RangeGroups   map[mcode.Register]*LiveRangeGroup
	KillPoints    []KillPoint
}

// ComputeLiveness runs the analysis over fn.
func ComputeLiveness(fn *RegAllocFunc) *LivenessAnalysis {
	analysis := &LivenessAnalysis{
		fn:            fn,
		BlockLiveness: make([]BlockLiveness, len(fn.Blocks)),
		RangeGroups:   make(map[mcode.Register]*LiveRangeGroup),
	}

	for i := range fn.Blocks {
		analysis.BlockLiveness[i] = BlockLiveness{
			Defs: make(map[mcode.Register]bool),
			Uses: make(map[mcode.Register]bool),
			Ins:  make(map[mcode.Register]bool),
			Outs: make(map[mcode.Register]bool),
		}
		collectUsesAndDefs(&fn.Blocks[i], &analysis.BlockLiveness[i])
	}

	analysis.computeInsAndOuts()
	analysis.computePreciseLiveRanges()

	for reg, group := range analysis.RangeGroups {
		group.Reg = reg
	}

	return analysis
}

func collectUsesAndDefs(block *RegAllocBlock, liveness *BlockLiveness) {
	for i := range block.Instrs {
		for _, operand := range block.Instrs[i].Regs {
			switch operand.Usage {
			case mcode.RegDef:
				liveness.Defs[operand.Reg] = true
			case mcode.RegUse:
				if !liveness.Defs[operand.Reg] {
					liveness.Uses[operand.Reg] = true
				}
			}
		}
	}
}

func (a *LivenessAnalysis) computeInsAndOuts() {
	postOrder := a.collectBlocksPostOrder()

	changes := true
	for changes {
		changes = false

		for i := len(postOrder) - 1; i >= 0; i-- {
			blockIndex := postOrder[i]
			block := &a.fn.Blocks[blockIndex]
			liveness := &a.BlockLiveness[blockIndex]

			prevNumIns := len(liveness.Ins)
			prevNumOuts := len(liveness.Outs)

			// The outs are the union of the successors' ins.
			for _, succ := range block.Succs {
				for reg := range a.BlockLiveness[succ].Ins {
					liveness.Outs[reg] = true
				}
			}

			// The uses flow into the ins.
			for reg := range liveness.Uses {
				if reg.IsVirtualReg() {
					liveness.Ins[reg] = true
				}
			}

			// Outs that are not redefined flow into the ins.
			for reg := range liveness.Outs {
				if !liveness.Defs[reg] {
					liveness.Ins[reg] = true
				}
			}

			changes = changes || len(liveness.Ins) != prevNumIns || len(liveness.Outs) != prevNumOuts
		}
	}
}

func (a *LivenessAnalysis) collectBlocksPostOrder() []int {
	var indices []int
	visited := make([]bool, len(a.fn.Blocks))

	var visit func(blockIndex int)
	visit = func(blockIndex int) {
		visited[blockIndex] = true
		for _, succ := range a.fn.Blocks[blockIndex].Succs {
			if !visited[succ] {
				visit(succ)
			}
		}
		indices = append(indices, blockIndex)
	}

	if len(a.fn.Blocks) > 0 {
		visit(0)
	}
	return indices
}

func (a *LivenessAnalysis) computePreciseLiveRanges() {
	for blockIndex := range a.fn.Blocks {
		block := &a.fn.Blocks[blockIndex]
		if len(block.Instrs) == 0 {
			continue
		}

		liveRegs := make(map[mcode.Register]bool)

		for reg := range a.BlockLiveness[blockIndex].Outs {
			a.group(reg).Ranges = append(a.group(reg).Ranges, LiveRange{
				Block: blockIndex,
				Start: 0,
				End:   len(block.Instrs) - 1,
			})
			liveRegs[reg] = true
		}

		for instrIndex := len(block.Instrs) - 1; instrIndex >= 0; instrIndex-- {
			for _, regOp := range block.Instrs[instrIndex].Regs {
				switch regOp.Usage {
				case mcode.RegUse:
					if !liveRegs[regOp.Reg] {
						a.group(regOp.Reg).Ranges = append(a.group(regOp.Reg).Ranges, LiveRange{
							Block:     blockIndex,
							Start:     instrIndex,
							End:       instrIndex,
							EndsAtUse: true,
						})
						liveRegs[regOp.Reg] = true
					}
				case mcode.RegDef:
					ranges := a.group(regOp.Reg).Ranges
					if liveRegs[regOp.Reg] {
						last := &ranges[len(ranges)-1]
						last.Start = instrIndex
						last.StartsAtDef = true
						delete(liveRegs, regOp.Reg)
					} else {
						// A def with no use gets a single-instruction
						// range.
						a.group(regOp.Reg).Ranges = append(ranges, LiveRange{
							Block:       blockIndex,
							Start:       instrIndex,
							End:         instrIndex,
							StartsAtDef: true,
						})
					}
				case mcode.RegUseDef:
					if !liveRegs[regOp.Reg] {
						a.group(regOp.Reg).Ranges = append(a.group(regOp.Reg).Ranges, LiveRange{
							Block: blockIndex,
							Start: instrIndex,
							End:   instrIndex,
						})
						liveRegs[regOp.Reg] = true
					}
				case mcode.RegKill:
					a.KillPoints = append(a.KillPoints, KillPoint{
						Reg:   regOp.Reg.PhysicalReg(),
						Block: blockIndex,
						Instr: instrIndex,
					})
					delete(liveRegs, regOp.Reg)
				}
			}
		}

		for reg := range a.BlockLiveness[blockIndex].Ins {
			ranges := a.RangeGroups[reg].Ranges
			last := &ranges[len(ranges)-1]
			last.Start = 0
			last.StartsAtDef = false
		}
	}
}

// Dump writes the computed ranges per block, using the debug emitter for
// instruction and register names.
func (a *LivenessAnalysis) Dump(w io.Writer, emitter *DebugEmitter) {
	regs := maps.Keys(a.RangeGroups)
	slices.SortFunc(regs, compareRegs)

	for blockIndex := range a.fn.Blocks {
		block := &a.fn.Blocks[blockIndex]

		label := block.Block.Label()
		if label == "" {
			label = "<entry>"
		}
		fmt.Fprintf(w, "%s:\n", label)

		for i := range block.Instrs {
			fmt.Fprintf(w, "  %-50s", emitter.InstrToString(block.Block, block.Instrs[i].Instr))

			for _, reg := range regs {
				for _, liveRange := range a.RangeGroups[reg].Ranges {
					if liveRange.Block != blockIndex || i < liveRange.Start || i > liveRange.End {
						continue
					}
					fmt.Fprintf(w, " %s", regName(reg, emitter))
				}
			}

			for _, killPoint := range a.KillPoints {
				if killPoint.Block == blockIndex && killPoint.Instr == i {
					fmt.Fprintf(w, " killed:%s", emitter.PhysicalRegName(killPoint.Reg, 8))
				}
			}

			fmt.Fprintln(w)
		}
	}
}

func regName(reg mcode.Register, emitter *DebugEmitter) string {
	if reg.IsPhysicalReg() {
		return emitter.PhysicalRegName(reg.PhysicalReg(), 8)
	}
	return reg.String()
}

func (a *LivenessAnalysis) group(reg mcode.Register) *LiveRangeGroup {
	group, ok := a.RangeGroups[reg]
	if !ok {
		group = &LiveRangeGroup{Reg: reg}
		a.RangeGroups[reg] = group
	}
	return group
}
