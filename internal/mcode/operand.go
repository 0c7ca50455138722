package mcode

import (
	"github.com/chnoblouch/banjo/internal/ssa"
)

// StackSlotOffset addresses a byte offset inside a stack slot.
type StackSlotOffset struct {
	Slot   StackSlotID
	Addend int
}

type operandKind uint8

const (
	operandInvalid operandKind = iota
	operandIntImmediate
	operandFPImmediate
	operandRegister
	operandSymbol
	operandLabel
	operandSymbolDeref
	operandAddr
	operandAArch64Addr
	operandStackSlotOffset
	operandAArch64LeftShift
	operandAArch64Condition
)

// Operand is an instruction operand: a tagged union over the variants of
// §3.2 with a byte size (0 = target default).
type Operand struct {
	kind operandKind
	size int

	intImmediate ssa.LargeInt
	fpImmediate  float64
	register     Register
	symbol       Symbol
	label        string
	addr         IndirectAddress
	aarch64Addr  AArch64Address
	slotOffset   StackSlotOffset
	leftShift    uint
	condition    AArch64Condition
}

func OperandFromIntImmediate(value ssa.LargeInt, size int) Operand {
	return Operand{kind: operandIntImmediate, intImmediate: value, size: size}
}

func OperandFromInt(value int64, size int) Operand {
	return OperandFromIntImmediate(ssa.NewLargeInt(value), size)
}

func OperandFromFPImmediate(value float64, size int) Operand {
	return Operand{kind: operandFPImmediate, fpImmediate: value, size: size}
}

func OperandFromRegister(reg Register, size int) Operand {
	return Operand{kind: operandRegister, register: reg, size: size}
}

func OperandFromSymbol(symbol Symbol, size int) Operand {
	return Operand{kind: operandSymbol, symbol: symbol, size: size}
}

func OperandFromLabel(label string, size int) Operand {
	return Operand{kind: operandLabel, label: label, size: size}
}

func OperandFromSymbolDeref(symbol Symbol, size int) Operand {
	return Operand{kind: operandSymbolDeref, symbol: symbol, size: size}
}

func OperandFromAddr(addr IndirectAddress, size int) Operand {
	return Operand{kind: operandAddr, addr: addr, size: size}
}

func OperandFromAArch64Addr(addr AArch64Address, size int) Operand {
	return Operand{kind: operandAArch64Addr, aarch64Addr: addr, size: size}
}

func OperandFromStackSlotOffset(offset StackSlotOffset, size int) Operand {
	return Operand{kind: operandStackSlotOffset, slotOffset: offset, size: size}
}

func OperandFromAArch64LeftShift(shift uint, size int) Operand {
	return Operand{kind: operandAArch64LeftShift, leftShift: shift, size: size}
}

func OperandFromAArch64Condition(condition AArch64Condition) Operand {
	return Operand{kind: operandAArch64Condition, condition: condition}
}

// OperandFromStackSlot wraps a stack-slot register into an operand.
func OperandFromStackSlot(slot StackSlotID, size int) Operand {
	return OperandFromRegister(RegFromStackSlot(slot), size)
}

func (o *Operand) IsIntImmediate() bool     { return o.kind == operandIntImmediate }
func (o *Operand) IsFPImmediate() bool      { return o.kind == operandFPImmediate }
func (o *Operand) IsRegister() bool         { return o.kind == operandRegister }
func (o *Operand) IsSymbol() bool           { return o.kind == operandSymbol }
func (o *Operand) IsLabel() bool            { return o.kind == operandLabel }
func (o *Operand) IsSymbolDeref() bool      { return o.kind == operandSymbolDeref }
func (o *Operand) IsAddr() bool             { return o.kind == operandAddr }
func (o *Operand) IsAArch64Addr() bool      { return o.kind == operandAArch64Addr }
func (o *Operand) IsStackSlotOffset() bool  { return o.kind == operandStackSlotOffset }
func (o *Operand) IsAArch64LeftShift() bool { return o.kind == operandAArch64LeftShift }
func (o *Operand) IsAArch64Condition() bool { return o.kind == operandAArch64Condition }

func (o *Operand) IsVirtualReg() bool {
	return o.kind == operandRegister && o.register.IsVirtualReg()
}

func (o *Operand) IsPhysicalReg() bool {
	return o.kind == operandRegister && o.register.IsPhysicalReg()
}

func (o *Operand) IsStackSlot() bool {
	return o.kind == operandRegister && o.register.IsStackSlot()
}

func (o *Operand) IntImmediate() ssa.LargeInt { return o.intImmediate }
func (o *Operand) FPImmediate() float64       { return o.fpImmediate }
func (o *Operand) Register() Register         { return o.register }
func (o *Operand) Symbol() Symbol             { return o.symbol }
func (o *Operand) Label() string              { return o.label }
func (o *Operand) DerefSymbol() Symbol        { return o.symbol }
func (o *Operand) Addr() *IndirectAddress     { return &o.addr }
func (o *Operand) AArch64Addr() *AArch64Address {
	return &o.aarch64Addr
}
func (o *Operand) StackSlotOffset() StackSlotOffset  { return o.slotOffset }
func (o *Operand) AArch64LeftShift() uint            { return o.leftShift }
func (o *Operand) AArch64Condition() AArch64Condition { return o.condition }

func (o *Operand) VirtualReg() VirtualReg   { return o.register.VirtualReg() }
func (o *Operand) PhysicalReg() PhysicalReg { return o.register.PhysicalReg() }
func (o *Operand) StackSlot() StackSlotID   { return o.register.StackSlot() }

func (o *Operand) SetToRegister(reg Register) {
	*o = OperandFromRegister(reg, o.size)
}

func (o *Operand) SetToAArch64Addr(addr AArch64Address) {
	size := o.size
	*o = OperandFromAArch64Addr(addr, size)
}

func (o *Operand) Size() int        { return o.size }
func (o *Operand) SetSize(size int) { o.size = size }

// WithSize returns a copy of the operand with the given size.
func (o Operand) WithSize(size int) Operand {
	o.size = size
	return o
}

// Equal compares kind and payload, ignoring the size.
func (o *Operand) Equal(other *Operand) bool {
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
	case operandSymbol, operandSymbolDeref:
		return o.symbol == other.symbol
	case operandLabel:
		return o.label == other.label
	case operandAddr:
		return o.addr == other.addr
	case operandAArch64Addr:
		return o.aarch64Addr == other.aarch64Addr
	case operandStackSlotOffset:
		return o.slotOffset == other.slotOffset
	case operandAArch64LeftShift:
		return o.leftShift == other.leftShift
	case operandAArch64Condition:
		return o.condition == other.condition
	}
	return false
}
