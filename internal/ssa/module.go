package ssa

// GlobalValueKind enumerates the initial-value variants of a global.
type GlobalValueKind uint8

const (
	GlobalNone GlobalValueKind = iota
	GlobalInteger
	GlobalFloatingPoint
	GlobalBytes
	// GlobalString is a byte string; the emitters append the
	// terminating NUL.
	GlobalString
	GlobalSymbolRef
)

// GlobalValue is the initial value of a global definition.
type GlobalValue struct {
	Kind       GlobalValueKind
	IntValue   LargeInt
	FPValue    float64
	Bytes      []byte
	Str        string
	SymbolName string
}

func GlobalValueNone() GlobalValue {
	return GlobalValue{Kind: GlobalNone}
}

func GlobalValueInt(value LargeInt) GlobalValue {
	return GlobalValue{Kind: GlobalInteger, IntValue: value}
}

func GlobalValueFP(value float64) GlobalValue {
	return GlobalValue{Kind: GlobalFloatingPoint, FPValue: value}
}

func GlobalValueBytes(bytes []byte) GlobalValue {
	return GlobalValue{Kind: GlobalBytes, Bytes: bytes}
}

func GlobalValueString(str string) GlobalValue {
	return GlobalValue{Kind: GlobalString, Str: str}
}

func GlobalValueSymbolRef(name string) GlobalValue {
	return GlobalValue{Kind: GlobalSymbolRef, SymbolName: name}
}

// Global is a global variable definition.
type Global struct {
	Name         string
	Type         Type
	InitialValue GlobalValue
	// External is true if the symbol is visible outside the module.
	External bool
}

// GlobalDecl declares an external global.
type GlobalDecl struct {
	Name string
	Type Type
}

// Module owns its functions, globals and structure definitions.
type Module struct {
	Functions         []*Function
	ExternalFunctions []*FunctionDecl
	Globals           []*Global
	ExternalGlobals   []*GlobalDecl
	Structures        []*Structure
	DLLExports        []string
	// AddrTable, if non-nil, lists symbols whose addresses are emitted
	// as an address-table data block.
	AddrTable []string
}

func (m *Module) AddFunction(f *Function) *Function {
	m.Functions = append(m.Functions, f)
	return f
}

func (m *Module) AddExternalFunction(decl *FunctionDecl) *FunctionDecl {
	m.ExternalFunctions = append(m.ExternalFunctions, decl)
	return decl
}

func (m *Module) AddGlobal(g *Global) *Global {
	m.Globals = append(m.Globals, g)
	return g
}

func (m *Module) AddExternalGlobal(decl *GlobalDecl) *GlobalDecl {
	m.ExternalGlobals = append(m.ExternalGlobals, decl)
	return decl
}

func (m *Module) AddStructure(s *Structure) *Structure {
	m.Structures = append(m.Structures, s)
	return s
}

// FindStructure returns the structure named name, or nil.
func (m *Module) FindStructure(name string) *Structure {
	for _, s := range m.Structures {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// FindExternalFunction returns the declaration named name, or nil.
func (m *Module) FindExternalFunction(name string) *FunctionDecl {
	for _, decl := range m.ExternalFunctions {
		if decl.Name == name {
			return decl
		}
	}
	return nil
}
