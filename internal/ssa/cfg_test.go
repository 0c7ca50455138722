package ssa

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// buildDiamond creates:
//
//	entry -> a; a -> b, c; b -> d; c -> d; d: ret
func buildDiamond(t *testing.T) (*Function, *ControlFlowGraph) {
	t.Helper()

	fn := NewFunction("diamond", nil, VOID.Type(), CallingConvX8664SysV)
	entry := fn.CreateBlock("")
	a := fn.CreateBlock("a")
	b := fn.CreateBlock("b")
	c := fn.CreateBlock("c")
	d := fn.CreateBlock("d")

	entry.Append(NewInstr(OpcodeJmp, FromBranchTarget(BranchTarget{Block: a})))
	a.Append(NewInstr(OpcodeCJmp,
		FromIntImmediate(NewLargeInt(1), I32.Type()),
		FromComparison(EQ),
		FromIntImmediate(NewLargeInt(2), I32.Type()),
		FromBranchTarget(BranchTarget{Block: b}),
		FromBranchTarget(BranchTarget{Block: c}),
	))
	b.Append(NewInstr(OpcodeJmp, FromBranchTarget(BranchTarget{Block: d})))
	c.Append(NewInstr(OpcodeJmp, FromBranchTarget(BranchTarget{Block: d})))
	d.Append(NewInstr(OpcodeRet))

	return fn, NewControlFlowGraph(fn)
}

func TestControlFlowGraph(t *testing.T) {
	_, cfg := buildDiamond(t)

	require.Len(t, cfg.Nodes(), 5)

	// Indices follow layout order: entry=0, a=1, b=2, c=3, d=4.
	require.Equal(t, []int{1}, cfg.Node(0).Successors)
	require.Equal(t, []int{2, 3}, cfg.Node(1).Successors)
	require.Equal(t, []int{0}, cfg.Node(1).Predecessors)
	require.Equal(t, []int{4}, cfg.Node(2).Successors)
	require.Equal(t, []int{4}, cfg.Node(3).Successors)
	require.ElementsMatch(t, []int{2, 3}, cfg.Node(4).Predecessors)
	require.Empty(t, cfg.Node(4).Successors)
	require.Empty(t, cfg.Node(0).Predecessors)
}

func TestControlFlowGraphPostOrder(t *testing.T) {
	_, cfg := buildDiamond(t)

	postOrder := cfg.PostOrder()
	require.Len(t, postOrder, 5)

	// Every successor appears before its predecessor; entry is last.
	require.Equal(t, 0, postOrder[4])

	position := make(map[int]int)
	for i, node := range postOrder {
		position[node] = i
	}
	for index, node := range cfg.Nodes() {
		for _, succ := range node.Successors {
			require.Less(t, position[succ], position[index])
		}
	}
}

func TestDominatorTree(t *testing.T) {
	_, cfg := buildDiamond(t)
	domtree := NewDominatorTree(cfg)

	require.Equal(t, 0, domtree.Node(0).ParentIndex)
	require.Equal(t, 0, domtree.Node(1).ParentIndex)
	require.Equal(t, 1, domtree.Node(2).ParentIndex)
	require.Equal(t, 1, domtree.Node(3).ParentIndex)
	// The join point is dominated by the branch block, not by either arm.
	require.Equal(t, 1, domtree.Node(4).ParentIndex)

	require.ElementsMatch(t, []int{2, 3, 4}, domtree.Node(1).ChildrenIndices)

	require.True(t, domtree.Dominates(0, 4))
	require.True(t, domtree.Dominates(1, 4))
	require.False(t, domtree.Dominates(2, 4))
	require.False(t, domtree.Dominates(2, 3))
}
