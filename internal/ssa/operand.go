package ssa

import (
	"strconv"
	"strings"
)

// VirtualRegister identifies an SSA value. Each virtual register is the
// destination of at most one instruction.
type VirtualRegister int32

// NoRegister marks the absence of a destination register.
const NoRegister VirtualRegister = -1

// SymbolKind distinguishes the linkage of a symbol operand.
type SymbolKind uint8

const (
	SymbolFunc SymbolKind = iota
	SymbolExternFunc
	SymbolGlobal
	SymbolExternGlobal
)

// BranchTarget is a control-flow edge carrying the values that flow into
// the target block's parameters.
type BranchTarget struct {
	Block *BasicBlock
	Args  []Operand
}

type operandKind uint8

const (
	operandInvalid operandKind = iota
	operandIntImmediate
	operandFPImmediate
	operandRegister
	operandSymbol
	operandBranchTarget
	operandComparison
	operandType
)

// Operand is the argument of an instruction. Since Go doesn't have union
// types, we use this flattened type for all operand variants, and
// therefore each field is only meaningful for some kinds.
type Operand struct {
	kind operandKind
	typ  Type

	intImmediate LargeInt
	fpImmediate  float64
	register     VirtualRegister
	symbolName   string
	symbolKind   SymbolKind
	branch       *BranchTarget
	comparison   Comparison
}

// Value is an Operand used as a data value.
type Value = Operand

func FromIntImmediate(value LargeInt, typ Type) Operand {
	return Operand{kind: operandIntImmediate, intImmediate: value, typ: typ}
}

func FromFPImmediate(value float64, typ Type) Operand {
	return Operand{kind: operandFPImmediate, fpImmediate: value, typ: typ}
}

func FromRegister(reg VirtualRegister, typ Type) Operand {
	return Operand{kind: operandRegister, register: reg, typ: typ}
}

func FromFunc(name string, typ Type) Operand {
	return Operand{kind: operandSymbol, symbolName: name, symbolKind: SymbolFunc, typ: typ}
}

func FromExternFunc(name string, typ Type) Operand {
	return Operand{kind: operandSymbol, symbolName: name, symbolKind: SymbolExternFunc, typ: typ}
}

func FromGlobal(name string, typ Type) Operand {
	return Operand{kind: operandSymbol, symbolName: name, symbolKind: SymbolGlobal, typ: typ}
}

func FromExternGlobal(name string, typ Type) Operand {
	return Operand{kind: operandSymbol, symbolName: name, symbolKind: SymbolExternGlobal, typ: typ}
}

func FromBranchTarget(target BranchTarget) Operand {
	return Operand{kind: operandBranchTarget, branch: &target}
}

func FromComparison(cmp Comparison) Operand {
	return Operand{kind: operandComparison, comparison: cmp}
}

// FromType wraps a bare type into an operand, used as a marker by opcodes
// such as ALLOCA and the extension/truncation conversions.
func FromType(typ Type) Operand {
	return Operand{kind: operandType, typ: typ}
}

func (o Operand) IsIntImmediate() bool  { return o.kind == operandIntImmediate }
func (o Operand) IsFPImmediate() bool   { return o.kind == operandFPImmediate }
func (o Operand) IsImmediate() bool     { return o.IsIntImmediate() || o.IsFPImmediate() }
func (o Operand) IsRegister() bool      { return o.kind == operandRegister }
func (o Operand) IsSymbol() bool        { return o.kind == operandSymbol }
func (o Operand) IsBranchTarget() bool  { return o.kind == operandBranchTarget }
func (o Operand) IsComparison() bool    { return o.kind == operandComparison }
func (o Operand) IsType() bool          { return o.kind == operandType }

func (o Operand) IsFunc() bool {
	return o.kind == operandSymbol && o.symbolKind == SymbolFunc
}

func (o Operand) IsExternFunc() bool {
	return o.kind == operandSymbol && o.symbolKind == SymbolExternFunc
}

func (o Operand) IsGlobal() bool {
	return o.kind == operandSymbol && o.symbolKind == SymbolGlobal
}

func (o Operand) IsExternGlobal() bool {
	return o.kind == operandSymbol && o.symbolKind == SymbolExternGlobal
}

func (o Operand) IntImmediate() LargeInt { return o.intImmediate }
func (o Operand) FPImmediate() float64   { return o.fpImmediate }
func (o Operand) Register() VirtualRegister {
	return o.register
}
func (o Operand) SymbolName() string     { return o.symbolName }
func (o Operand) SymbolKind() SymbolKind { return o.symbolKind }
func (o Operand) BranchTarget() *BranchTarget {
	return o.branch
}
func (o Operand) Comparison() Comparison { return o.comparison }

func (o Operand) Type() Type { return o.typ }

// WithType returns a copy of the operand with its type replaced.
func (o Operand) WithType(typ Type) Operand {
	o.typ = typ
	return o
}

// Equal reports whether two operands have the same kind and payload.
// Branch targets compare by block identity and argument equality.
func (o Operand) Equal(other Operand) bool {
	if o.kind != other.kind {
		return false
	}

	switch o.kind {
	case operandIntImmediate:
		return o.intImmediate == other.intImmediate
	case operandFPImmediate:
		return o.fpImmediate == other.fpImmediate
	case operandRegister:
		return o.register == other.register
	case operandSymbol:
		return o.symbolName == other.symbolName && o.symbolKind == other.symbolKind
	case operandComparison:
		return o.comparison == other.comparison
	case operandType:
		return o.typ == other.typ
	case operandBranchTarget:
		if o.branch.Block != other.branch.Block || len(o.branch.Args) != len(other.branch.Args) {
			return false
		}
		for i := range o.branch.Args {
			if !o.branch.Args[i].Equal(other.branch.Args[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (o Operand) String() string {
	switch o.kind {
	case operandIntImmediate:
		return o.intImmediate.String()
	case operandFPImmediate:
		return formatFP(o.fpImmediate)
	case operandRegister:
		return "%" + strconv.Itoa(int(o.register))
	case operandSymbol:
		return "@" + o.symbolName
	case operandComparison:
		return o.comparison.String()
	case operandType:
		return ""
	case operandBranchTarget:
		var sb strings.Builder
		sb.WriteString("@" + o.branch.Block.Label())
		if len(o.branch.Args) > 0 {
			sb.WriteString("(")
			for i, arg := range o.branch.Args {
				if i != 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(arg.String())
			}
			sb.WriteString(")")
		}
		return sb.String()
	}
	return "???"
}

func formatFP(value float64) string {
	s := strconv.FormatFloat(value, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
