package codegen

import (
	log "github.com/sirupsen/logrus"

	"github.com/chnoblouch/banjo/internal/mcode"
	"github.com/chnoblouch/banjo/internal/ssa"
)

// TargetLowerer is the instruction-selection half of the lowering: one
// implementation per architecture. The SSALowerer drives the traversal
// and owns the bookkeeping; the target lowerer emits machine
// instructions through it.
type TargetLowerer interface {
	// SetLowerer wires the driving lowerer. Called once before the
	// first function.
	SetLowerer(l *SSALowerer)

	// InitModule lets the target seed module-level data (e.g. constant
	// globals) before functions are lowered.
	InitModule(mod *ssa.Module)

	// LowerInstr emits the machine sequence for one SSA instruction.
	// ALLOCA never reaches this; the pre-scan lowers it eagerly.
	LowerInstr(instr *ssa.Instruction)

	// LowerCall lowers a CALL instruction, including ones the target
	// lowerer synthesizes for COPY (memcpy) and SQRT fallbacks.
	LowerCall(instr *ssa.Instruction)

	// SaveReturnPointer spills the hidden return pointer received in a
	// register into slot at the head of the entry block.
	SaveReturnPointer(entry *mcode.BasicBlock, slot mcode.StackSlotID, storage mcode.ArgStorage)

	// CallingConvention maps the SSA enum onto this target's
	// implementations.
	CallingConvention(callingConv ssa.CallingConv) mcode.CallingConvention
}

// SSALowerer translates an SSA module into a machine module. It walks
// each block's instructions from last to first, inserting the emitted
// machine instructions at the block's current insertion iterator; seeing
// each value's uses before its definition enables dead-result elision
// and single-use load folding.
type SSALowerer struct {
	target Target
	impl   TargetLowerer

	mod   *ssa.Module
	fn    *ssa.Function
	block *ssa.BasicBlock
	instr *ssa.Instruction

	machineModule *mcode.Module
	machineFunc   *mcode.Function
	machineBlock  *mcode.BasicBlock
	insertionPos  *mcode.Instruction

	// stackRegs maps alloca destinations to their stack slots.
	stackRegs    map[ssa.VirtualRegister]mcode.StackSlotID
	regUseCounts map[ssa.VirtualRegister]int

	// paramStorage is the visible parameter storage of the current
	// function; retPtrStorage/retPtrSlot track the hidden pointer when
	// the function returns via pointer argument.
	paramStorage  []mcode.ArgStorage
	retPtrStorage mcode.ArgStorage
	retPtrSlot    mcode.StackSlotID
	hasRetPtr     bool

	memcpyFunc *ssa.FunctionDecl
	sqrtFunc   *ssa.FunctionDecl

	// pendingFlags are OR-ed onto every emitted instruction, used to
	// mark whole argument-move sequences as CallArg.
	pendingFlags mcode.InstrFlag
}

// NewSSALowerer wires a lowerer to its target implementation.
func NewSSALowerer(t Target, impl TargetLowerer) *SSALowerer {
	l := &SSALowerer{target: t, impl: impl}
	impl.SetLowerer(l)
	return l
}

func (l *SSALowerer) Target() Target { return l.target }

func (l *SSALowerer) Module() *ssa.Module { return l.mod }

func (l *SSALowerer) Func() *ssa.Function { return l.fn }

func (l *SSALowerer) Block() *ssa.BasicBlock { return l.block }

// CurrentInstr is the SSA instruction being lowered.
func (l *SSALowerer) CurrentInstr() *ssa.Instruction { return l.instr }

func (l *SSALowerer) MachineModule() *mcode.Module { return l.machineModule }

func (l *SSALowerer) MachineFunc() *mcode.Function { return l.machineFunc }

func (l *SSALowerer) MachineBlock() *mcode.BasicBlock { return l.machineBlock }

func (l *SSALowerer) MemcpyFunc() *ssa.FunctionDecl { return l.memcpyFunc }

func (l *SSALowerer) SqrtFunc() *ssa.FunctionDecl { return l.sqrtFunc }

// ParamArgStorage is the storage of the current function's visible
// parameters, with the hidden return pointer already skipped.
func (l *SSALowerer) ParamArgStorage() []mcode.ArgStorage { return l.paramStorage }

// RetPtrSlot returns the slot holding the hidden return pointer.
func (l *SSALowerer) RetPtrSlot() (mcode.StackSlotID, bool) {
	return l.retPtrSlot, l.hasRetPtr
}

// LowerModule lowers mod and returns the machine module.
func (l *SSALowerer) LowerModule(mod *ssa.Module) *mcode.Module {
	l.mod = mod
	l.machineModule = &mcode.Module{}

	l.impl.InitModule(mod)

	if mod.AddrTable != nil {
		l.machineModule.SetAddrTable(mcode.AddrTable{Entries: mod.AddrTable})
	}

	for _, externalFunc := range mod.ExternalFunctions {
		switch externalFunc.Name {
		case "memcpy":
			l.memcpyFunc = externalFunc
		case "sqrt":
			l.sqrtFunc = externalFunc
		}
	}

	l.lowerExternalFuncs()
	l.lowerExternalGlobals()
	l.lowerFuncs()
	l.lowerGlobals()
	l.lowerDLLExports()

	return l.machineModule
}

func (l *SSALowerer) lowerFuncs() {
	for _, fn := range l.mod.Functions {
		l.fn = fn

		callingConv := l.impl.CallingConvention(fn.CallingConv)
		l.machineFunc = mcode.NewFunction(fn.Name, callingConv)
		l.stackRegs = make(map[ssa.VirtualRegister]mcode.StackSlotID)
		l.regUseCounts = make(map[ssa.VirtualRegister]int)
		l.hasRetPtr = false

		retSize := l.Size(fn.ReturnType)

		var storage []mcode.ArgStorage
		if callingConv.ReturnMethod(fn.ReturnType, retSize) == mcode.ReturnViaPointerArg {
			l.retPtrStorage, storage = callingConv.ReturnPtrStorage(fn.Params)
			l.retPtrSlot = l.machineFunc.StackFrame().NewStackSlot(
				mcode.NewStackSlot(mcode.StackSlotArgStore, 8, 1))
			l.hasRetPtr = true
		} else {
			storage = callingConv.ArgStorage(fn.Params)
		}
		l.paramStorage = storage

		for i := range fn.Params {
			l.machineFunc.AddParameter(l.lowerParam(fn.Params[i], storage[i]))
		}

		// Pre-scan: count every register use and lower the allocas
		// eagerly so address lowering can resolve them by lookup.
		for blk := fn.FirstBlock(); blk != nil; blk = blk.Next() {
			for instr := blk.FirstInstr(); instr != nil; instr = instr.Next() {
				for _, operand := range instr.Operands() {
					if operand.IsRegister() {
						l.regUseCounts[operand.Register()]++
					}

					if operand.IsBranchTarget() {
						for _, arg := range operand.BranchTarget().Args {
							if arg.IsRegister() {
								l.regUseCounts[arg.Register()]++
							}
						}
					}
				}

				if instr.Opcode() == ssa.OpcodeAlloca {
					l.lowerAlloca(instr)
				}

				// A call returning via pointer argument gets its
				// destination buffer eagerly, so consumers of the
				// result resolve it by lookup like an alloca.
				if instr.Opcode() == ssa.OpcodeCall && instr.HasDest() {
					calleeType := instr.Operand(0).Type()
					size := l.Size(calleeType)

					if callingConv.ReturnMethod(calleeType, size) == mcode.ReturnViaPointerArg {
						slot := l.machineFunc.StackFrame().NewStackSlot(
							mcode.NewStackSlot(mcode.StackSlotGeneric, size, 1))
						l.stackRegs[instr.Dest()] = slot
					}
				}
			}
		}

		blockMap := make(map[*ssa.BasicBlock]*mcode.BasicBlock)
		for blk := fn.FirstBlock(); blk != nil; blk = blk.Next() {
			l.block = blk
			machineBlock := l.lowerBasicBlock(blk)
			l.machineFunc.AppendBlock(machineBlock)
			blockMap[blk] = machineBlock
		}

		if l.hasRetPtr {
			l.impl.SaveReturnPointer(l.machineFunc.EntryBlock(), l.retPtrSlot, l.retPtrStorage)
		}

		l.storeGraphs(fn, blockMap)

		l.machineModule.Add(l.machineFunc)

		if fn.Global {
			l.machineModule.AddGlobalSymbol(fn.Name)
		}
	}
}

func (l *SSALowerer) lowerParam(typ ssa.Type, storage mcode.ArgStorage) mcode.Parameter {
	if storage.InReg {
		return mcode.Parameter{Type: typ, Storage: mcode.RegFromPhysical(storage.Reg)}
	}

	slot := l.machineFunc.StackFrame().NewStackSlot(
		mcode.NewStackSlot(mcode.StackSlotGeneric, 8, 1))
	return mcode.Parameter{Type: typ, Storage: mcode.RegFromStackSlot(slot)}
}

func (l *SSALowerer) lowerBasicBlock(blk *ssa.BasicBlock) *mcode.BasicBlock {
	machineBlock := mcode.NewBasicBlock(blk.Label(), l.machineFunc)
	for _, reg := range blk.ParamRegs() {
		machineBlock.AddParam(mcode.VirtualReg(reg))
	}

	l.machineBlock = machineBlock

	for instr := blk.LastInstr(); instr != nil; instr = instr.Prev() {
		if instr.Opcode() == ssa.OpcodeAlloca {
			continue
		}
		if instr.HasDest() && l.regUseCounts[instr.Dest()] == 0 {
			continue
		}

		l.instr = instr
		l.insertionPos = machineBlock.FirstInstr()
		l.lowerInstr(instr)
	}

	return machineBlock
}

func (l *SSALowerer) lowerInstr(instr *ssa.Instruction) {
	switch instr.Opcode() {
	case ssa.OpcodeCall:
		l.impl.LowerCall(instr)
	case ssa.OpcodeInvalid:
		log.Warnf("cannot lower instruction %s", instr.Opcode())
	default:
		l.impl.LowerInstr(instr)
	}
}

// WarnUnimplemented is the developer backstop for opcodes a target does
// not lower; the instruction is omitted.
func (l *SSALowerer) WarnUnimplemented(name string) {
	log.Warnf("cannot lower instruction %s", name)
}

func (l *SSALowerer) lowerAlloca(instr *ssa.Instruction) {
	size := l.Size(instr.Operand(0).Type())
	if size < 8 {
		size = 8
	}

	kind := mcode.StackSlotGeneric
	if instr.HasFlag(ssa.FlagArgStore) {
		kind = mcode.StackSlotArgStore
	}

	slot := l.machineFunc.StackFrame().NewStackSlot(mcode.NewStackSlot(kind, size, 1))
	l.stackRegs[instr.Dest()] = slot
}

// storeGraphs projects the SSA CFG and dominator tree onto the 1:1
// block mapping.
func (l *SSALowerer) storeGraphs(fn *ssa.Function, blockMap map[*ssa.BasicBlock]*mcode.BasicBlock) {
	cfg := ssa.NewControlFlowGraph(fn)
	domtree := ssa.NewDominatorTree(cfg)

	for i := range cfg.Nodes() {
		cfgNode := cfg.Node(i)
		domtreeNode := domtree.Node(i)
		machineBlock := blockMap[cfgNode.Block]

		for _, pred := range cfgNode.Predecessors {
			machineBlock.AddPredecessor(blockMap[cfg.Node(pred).Block])
		}
		for _, succ := range cfgNode.Successors {
			machineBlock.AddSuccessor(blockMap[cfg.Node(succ).Block])
		}

		machineBlock.SetDomTreeParent(blockMap[cfg.Node(domtreeNode.ParentIndex).Block])
		for _, child := range domtreeNode.ChildrenIndices {
			machineBlock.AddDomTreeChild(blockMap[cfg.Node(child).Block])
		}
	}
}

func (l *SSALowerer) lowerGlobals() {
	for _, global := range l.mod.Globals {
		machineGlobal := mcode.Global{
			Name:      global.Name,
			Size:      l.Size(global.Type),
			Alignment: l.Alignment(global.Type),
			Value:     global.InitialValue,
		}

		l.machineModule.AddGlobal(machineGlobal)

		if global.External {
			l.machineModule.AddGlobalSymbol(global.Name)
		}
	}
}

func (l *SSALowerer) lowerExternalFuncs() {
	for _, decl := range l.mod.ExternalFunctions {
		l.machineModule.AddExternalSymbol(decl.Name)
	}
}

func (l *SSALowerer) lowerExternalGlobals() {
	for _, decl := range l.mod.ExternalGlobals {
		l.machineModule.AddExternalSymbol(decl.Name)
	}
}

func (l *SSALowerer) lowerDLLExports() {
	for _, dllExport := range l.mod.DLLExports {
		l.machineModule.AddDLLExport(dllExport)
	}
}

// Emit inserts instr at the current insertion position and returns it.
func (l *SSALowerer) Emit(instr *mcode.Instruction) *mcode.Instruction {
	if l.pendingFlags != 0 {
		instr.SetFlag(l.pendingFlags)
	}
	return l.machineBlock.InsertBefore(l.insertionPos, instr)
}

// EmitFlagged runs emitFn with flags OR-ed onto every instruction it
// emits.
func (l *SSALowerer) EmitFlagged(flags mcode.InstrFlag, emitFn func()) {
	prev := l.pendingFlags
	l.pendingFlags = prev | flags
	emitFn()
	l.pendingFlags = prev
}

// MapVReg resolves reg to its stack slot if it was an alloca, otherwise
// carries it as a virtual register.
func (l *SSALowerer) MapVReg(reg ssa.VirtualRegister) mcode.Register {
	if slot, ok := l.stackRegs[reg]; ok {
		return mcode.RegFromStackSlot(slot)
	}
	return mcode.RegFromVirtual(mcode.VirtualReg(reg))
}

// MapVRegAsReg is MapVReg for registers known not to be allocas.
func (l *SSALowerer) MapVRegAsReg(reg ssa.VirtualRegister) mcode.Register {
	if _, ok := l.stackRegs[reg]; ok {
		panic("BUG: alloca result used as a plain register")
	}
	return mcode.RegFromVirtual(mcode.VirtualReg(reg))
}

func (l *SSALowerer) MapVRegAsOperand(reg ssa.VirtualRegister, size int) mcode.Operand {
	if slot, ok := l.stackRegs[reg]; ok {
		return mcode.OperandFromStackSlot(slot, size)
	}
	return mcode.OperandFromRegister(mcode.RegFromVirtual(mcode.VirtualReg(reg)), size)
}

func (l *SSALowerer) MapVRegDst(instr *ssa.Instruction, size int) mcode.Operand {
	return mcode.OperandFromRegister(l.MapVRegAsReg(instr.Dest()), size)
}

func (l *SSALowerer) Size(typ ssa.Type) int {
	return l.target.DataLayout().Size(typ)
}

func (l *SSALowerer) Alignment(typ ssa.Type) int {
	return l.target.DataLayout().Alignment(typ)
}

func (l *SSALowerer) MemberOffset(struct_ *ssa.Structure, index int) int {
	return l.target.DataLayout().MemberOffset(struct_, index)
}

// CreateReg allocates a fresh virtual register.
func (l *SSALowerer) CreateReg() mcode.Register {
	return mcode.RegFromVirtual(mcode.VirtualReg(l.fn.NextVirtualReg()))
}

// Producer returns the instruction in the current block defining reg, or
// nil. The search is deliberately restricted to the current block.
func (l *SSALowerer) Producer(reg ssa.VirtualRegister) *ssa.Instruction {
	for instr := l.block.LastInstr(); instr != nil; instr = instr.Prev() {
		if instr.HasDest() && instr.Dest() == reg {
			return instr
		}
	}
	return nil
}

func (l *SSALowerer) NumUses(reg ssa.VirtualRegister) int {
	return l.regUseCounts[reg]
}

func (l *SSALowerer) DiscardUse(reg ssa.VirtualRegister) {
	l.regUseCounts[reg]--
}
