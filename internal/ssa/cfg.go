package ssa

// ControlFlowGraph is a side analysis over a function. Node indices
// follow the block layout order; node 0 is the entry block.
type ControlFlowGraph struct {
	nodes        []CFGNode
	blockIndices map[*BasicBlock]int
}

type CFGNode struct {
	Block        *BasicBlock
	Predecessors []int
	Successors   []int
}

// NewControlFlowGraph computes the CFG of f from its terminators.
func NewControlFlowGraph(f *Function) *ControlFlowGraph {
	cfg := &ControlFlowGraph{blockIndices: make(map[*BasicBlock]int)}

	for blk := f.FirstBlock(); blk != nil; blk = blk.Next() {
		cfg.blockIndices[blk] = len(cfg.nodes)
		cfg.nodes = append(cfg.nodes, CFGNode{Block: blk})
	}

	for blk := f.FirstBlock(); blk != nil; blk = blk.Next() {
		terminator := blk.LastInstr()
		if terminator == nil {
			continue
		}

		index := cfg.blockIndices[blk]
		for _, target := range terminator.BranchTargets() {
			succ, ok := cfg.blockIndices[target.Block]
			if !ok {
				panic("BUG: branch to a block outside the function")
			}
			cfg.nodes[index].Successors = append(cfg.nodes[index].Successors, succ)
			cfg.nodes[succ].Predecessors = append(cfg.nodes[succ].Predecessors, index)
		}
	}

	return cfg
}

func (cfg *ControlFlowGraph) Nodes() []CFGNode { return cfg.nodes }

func (cfg *ControlFlowGraph) Node(index int) *CFGNode { return &cfg.nodes[index] }

// IndexOf returns the node index of blk.
func (cfg *ControlFlowGraph) IndexOf(blk *BasicBlock) int {
	index, ok := cfg.blockIndices[blk]
	if !ok {
		panic("BUG: block is not part of this CFG")
	}
	return index
}

// PostOrder returns the node indices in depth-first post order starting
// at the entry.
func (cfg *ControlFlowGraph) PostOrder() []int {
	var order []int
	visited := make([]bool, len(cfg.nodes))

	var visit func(index int)
	visit = func(index int) {
		visited[index] = true
		for _, succ := range cfg.nodes[index].Successors {
			if !visited[succ] {
				visit(succ)
			}
		}
		order = append(order, index)
	}

	if len(cfg.nodes) > 0 {
		visit(0)
	}
	return order
}
