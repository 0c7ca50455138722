package codegen

import (
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/chnoblouch/banjo/internal/mcode"
)

// RegAllocPass assigns physical registers or stack slots to every
// virtual register: reserve the ranges of hard-coded physical registers
// and kill points, then allocate the virtual groups in priority order
// (longest range first, as longer ranges tend to be more constrained),
// spilling when no candidate register is free over the whole group.
type RegAllocPass struct {
	analyzer TargetRegAnalyzer

	// LivenessDump, when set together with DumpTarget, receives the
	// liveness of every allocated function.
	LivenessDump io.Writer
	DumpTarget   Target
}

type regAlloc struct {
	isPhysicalReg bool
	physicalReg   mcode.PhysicalReg
	stackSlot     mcode.StackSlotID
	group         *LiveRangeGroup
}

type regAllocContext struct {
	fn       *RegAllocFunc
	liveness *LivenessAnalysis
	block    *mcode.BasicBlock
	regMap   map[mcode.VirtualReg]*regAlloc
}

func NewRegAllocPass(analyzer TargetRegAnalyzer) *RegAllocPass {
	return &RegAllocPass{analyzer: analyzer}
}

// Run implements MachinePass.
func (p *RegAllocPass) Run(mod *mcode.Module) {
	for _, fn := range mod.Functions() {
		p.runOnFunc(fn)
	}
}

func (p *RegAllocPass) runOnFunc(fn *mcode.Function) {
	raFunc := p.createRegAllocFunc(fn)
	liveness := ComputeLiveness(raFunc)

	if p.LivenessDump != nil && p.DumpTarget != nil {
		fmt.Fprintf(p.LivenessDump, "--- LIVENESS FOR %s ---\n", fn.Name())
		liveness.Dump(p.LivenessDump, NewDebugEmitter(nil, p.DumpTarget))
	}

	ctx := &regAllocContext{
		fn:       raFunc,
		liveness: liveness,
		regMap:   make(map[mcode.VirtualReg]*regAlloc),
	}

	groups := maps.Values(liveness.RangeGroups)
	slices.SortFunc(groups, func(a, b *LiveRangeGroup) int {
		return compareRegs(a.Reg, b.Reg)
	})

	// Machine-code idioms that hard-code physical registers claim their
	// ranges first.
	for _, group := range groups {
		if group.Reg.IsPhysicalReg() {
			p.reserveRange(ctx, group, group.Reg.PhysicalReg())
		}
	}

	// A kill point becomes a single-point range on the killed register.
	for _, killPoint := range liveness.KillPoints {
		point := RegAllocPoint{Instr: killPoint.Instr, Stage: 1}
		raFunc.Blocks[killPoint.Block].AllocatedRanges = append(
			raFunc.Blocks[killPoint.Block].AllocatedRanges,
			RegAllocRange{Reg: killPoint.Reg, Start: point, End: point},
		)
	}

	var queue []*LiveRangeGroup
	for _, group := range groups {
		if group.Reg.IsVirtualReg() {
			queue = append(queue, group)
		}
	}
	slices.SortStableFunc(queue, func(a, b *LiveRangeGroup) int {
		// Max-priority order: heavier groups first.
		return groupWeight(b) - groupWeight(a)
	})

	for _, group := range queue {
		alloc := p.allocGroup(ctx, group)
		ctx.regMap[group.Reg.VirtualReg()] = alloc

		if alloc.isPhysicalReg {
			p.reserveRange(ctx, group, alloc.physicalReg)
		}
	}

	vregs := maps.Keys(ctx.regMap)
	slices.Sort(vregs)
	for _, vreg := range vregs {
		p.replaceWithAlloc(ctx, ctx.regMap[vreg])
	}

	for block := fn.FirstBlock(); block != nil; block = block.Next() {
		p.removeUselessInstrs(block)
	}
}

func (p *RegAllocPass) createRegAllocFunc(fn *mcode.Function) *RegAllocFunc {
	blockIndices := make(map[*mcode.BasicBlock]int)
	index := 0
	for block := fn.FirstBlock(); block != nil; block = block.Next() {
		blockIndices[block] = index
		index++
	}

	raFunc := &RegAllocFunc{Func: fn}

	for block := fn.FirstBlock(); block != nil; block = block.Next() {
		var preds, succs []int
		for _, pred := range block.Predecessors() {
			preds = append(preds, blockIndices[pred])
		}
		for _, succ := range block.Successors() {
			succs = append(succs, blockIndices[succ])
		}

		raFunc.Blocks = append(raFunc.Blocks, RegAllocBlock{
			Block:  block,
			Instrs: p.collectInstrs(block),
			Preds:  preds,
			Succs:  succs,
		})
	}

	return raFunc
}

func (p *RegAllocPass) collectInstrs(block *mcode.BasicBlock) []RegAllocInstr {
	var instrs []RegAllocInstr
	index := 0

	for instr := block.FirstInstr(); instr != nil; instr = instr.Next() {
		regs := p.analyzer.GetOperands(instr, block)
		regs = append(regs, instr.RegOps()...)

		instrs = append(instrs, RegAllocInstr{Index: index, Instr: instr, Regs: regs})
		index++
	}

	return instrs
}

func (p *RegAllocPass) reserveRange(ctx *regAllocContext, group *LiveRangeGroup, reg mcode.PhysicalReg) {
	for _, liveRange := range group.Ranges {
		block := &ctx.fn.Blocks[liveRange.Block]
		block.AllocatedRanges = append(block.AllocatedRanges, liveRange.ToRARange(reg))
	}
}

func (p *RegAllocPass) allocGroup(ctx *regAllocContext, group *LiveRangeGroup) *regAlloc {
	for _, candidate := range p.analyzer.SuggestRegs(ctx.fn, group) {
		if p.isAllocPossible(ctx, group, candidate) {
			return &regAlloc{isPhysicalReg: true, physicalReg: candidate, group: group}
		}
	}

	firstRange := group.Ranges[0]
	firstInstr := ctx.fn.Blocks[firstRange.Block].Instrs[firstRange.Start].Instr

	for _, candidate := range p.analyzer.GetCandidates(firstInstr) {
		if p.isAllocPossible(ctx, group, candidate) {
			return &regAlloc{isPhysicalReg: true, physicalReg: candidate, group: group}
		}
	}

	slot := ctx.fn.Func.StackFrame().NewStackSlot(
		mcode.NewStackSlot(mcode.StackSlotGeneric, 8, 1))
	return &regAlloc{stackSlot: slot, group: group}
}

func (p *RegAllocPass) isAllocPossible(ctx *regAllocContext, group *LiveRangeGroup, reg mcode.PhysicalReg) bool {
	for _, liveRange := range group.Ranges {
		raRange := liveRange.ToRARange(reg)

		for _, allocated := range ctx.fn.Blocks[liveRange.Block].AllocatedRanges {
			if allocated.Intersects(raRange) {
				return false
			}
		}
	}
	return true
}

func (p *RegAllocPass) replaceWithAlloc(ctx *regAllocContext, alloc *regAlloc) {
	for _, liveRange := range alloc.group.Ranges {
		block := &ctx.fn.Blocks[liveRange.Block]
		ctx.block = block.Block

		for index := liveRange.Start; index <= liveRange.End; index++ {
			vreg := alloc.group.Reg.VirtualReg()

			if alloc.isPhysicalReg {
				ReplaceReg(block.Instrs[index].Instr,
					mcode.RegFromVirtual(vreg), mcode.RegFromPhysical(alloc.physicalReg))
			} else {
				p.insertSpilledLoadStore(ctx, vreg, alloc, &block.Instrs[index])
			}
		}
	}
}

func (p *RegAllocPass) insertSpilledLoadStore(ctx *regAllocContext, vreg mcode.VirtualReg, alloc *regAlloc, instr *RegAllocInstr) {
	for _, operand := range instr.Regs {
		if !operand.Reg.IsVirtualRegID(vreg) {
			continue
		}

		tmpReg := p.analyzer.InsertSpillReload(SpilledRegUse{
			Instr:        instr.Instr,
			Block:        ctx.block,
			StackSlot:    alloc.stackSlot,
			SpillTmpRegs: instr.SpillTmpRegs,
			Usage:        operand.Usage,
		})

		ReplaceReg(instr.Instr, mcode.RegFromVirtual(vreg), mcode.RegFromPhysical(tmpReg))
		instr.SpillTmpRegs++
	}
}

func (p *RegAllocPass) removeUselessInstrs(block *mcode.BasicBlock) {
	instr := block.FirstInstr()
	for instr != nil {
		next := instr.Next()
		if p.analyzer.IsInstrRemovable(instr) {
			block.Remove(instr)
		}
		instr = next
	}
}

func groupWeight(group *LiveRangeGroup) int {
	longest := 0
	for _, liveRange := range group.Ranges {
		if length := liveRange.End - liveRange.Start; length > longest {
			longest = length
		}
	}
	return longest
}

func compareRegs(a, b mcode.Register) int {
	key := func(r mcode.Register) int {
		switch {
		case r.IsVirtualReg():
			return r.VirtualReg() * 4
		case r.IsPhysicalReg():
			return r.PhysicalReg()*4 + 1
		default:
			return r.StackSlot()*4 + 2
		}
	}
	return key(a) - key(b)
}

// Log a fatal diagnostic when a scratch register cannot be reserved;
// reaching this is a bug in the spill reservation, not a user error.
func FatalOutOfRegisters(fn *mcode.Function) {
	log.Fatalf("register allocator is out of registers in function %s", fn.Name())
}
