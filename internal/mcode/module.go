package mcode

import (
	"github.com/chnoblouch/banjo/internal/ssa"
)

// Global is a lowered global with its derived size and alignment.
type Global struct {
	Name      string
	Size      int
	Alignment int
	Value     ssa.GlobalValue
}

// AddrTable is an optional table of symbol addresses emitted as data.
type AddrTable struct {
	Entries []string
}

// Module is the machine-code container produced by lowering and mutated
// in place by the machine passes.
type Module struct {
	functions       []*Function
	globals         []Global
	externalSymbols []string
	globalSymbols   []string
	dllExports      []string
	addrTable       *AddrTable
}

func (m *Module) Add(f *Function) *Function {
	m.functions = append(m.functions, f)
	return f
}

func (m *Module) AddGlobal(g Global) {
	m.globals = append(m.globals, g)
}

func (m *Module) AddExternalSymbol(name string) {
	m.externalSymbols = append(m.externalSymbols, name)
}

func (m *Module) AddGlobalSymbol(name string) {
	m.globalSymbols = append(m.globalSymbols, name)
}

func (m *Module) AddDLLExport(name string) {
	m.dllExports = append(m.dllExports, name)
}

func (m *Module) Functions() []*Function { return m.functions }

func (m *Module) Globals() []Global { return m.globals }

func (m *Module) ExternalSymbols() []string { return m.externalSymbols }

func (m *Module) GlobalSymbols() []string { return m.globalSymbols }

func (m *Module) DLLExports() []string { return m.dllExports }

func (m *Module) AddrTable() *AddrTable { return m.addrTable }

func (m *Module) SetAddrTable(table AddrTable) {
	m.addrTable = &table
}
