package codegen

import (
	"github.com/chnoblouch/banjo/internal/mcode"
)

// PrologEpilogPass inserts the calling convention's prolog at the head
// of the entry block and its epilog immediately before every
// function-exit instruction.
type PrologEpilogPass struct{}

func NewPrologEpilogPass() *PrologEpilogPass {
	return &PrologEpilogPass{}
}

// Run implements MachinePass.
func (p *PrologEpilogPass) Run(mod *mcode.Module) {
	for _, fn := range mod.Functions() {
		p.insertProlog(fn)
		p.insertEpilog(fn)
	}
}

func (p *PrologEpilogPass) insertProlog(fn *mcode.Function) {
	entry := fn.EntryBlock()
	insertionPos := entry.FirstInstr()

	for _, instr := range fn.CallingConv().Prolog(fn) {
		entry.InsertBefore(insertionPos, instr)
	}
}

func (p *PrologEpilogPass) insertEpilog(fn *mcode.Function) {
	callingConv := fn.CallingConv()

	for block := fn.FirstBlock(); block != nil; block = block.Next() {
		for instr := block.FirstInstr(); instr != nil; instr = instr.Next() {
			if !callingConv.IsFuncExit(instr.Opcode()) {
				continue
			}

			for _, epilogInstr := range callingConv.Epilog(fn) {
				block.InsertBefore(instr, epilogInstr)
			}
		}
	}
}
