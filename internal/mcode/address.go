package mcode

type addressOffsetKind uint8

const (
	offsetNone addressOffsetKind = iota
	offsetInt
	offsetReg
)

// IndirectAddress is the x86-64 style addressing form
// [base + scale * offset].
type IndirectAddress struct {
	base       Register
	offsetKind addressOffsetKind
	intOffset  int
	regOffset  Register
	scale      int
}

func NewIndirectAddress(base Register) IndirectAddress {
	return IndirectAddress{base: base, scale: 1}
}

func NewIndirectAddressIntOffset(base Register, offset int, scale int) IndirectAddress {
	addr := IndirectAddress{base: base, scale: scale}
	if offset != 0 {
		addr.offsetKind = offsetInt
		addr.intOffset = offset
	}
	return addr
}

func NewIndirectAddressRegOffset(base Register, offset Register, scale int) IndirectAddress {
	return IndirectAddress{base: base, offsetKind: offsetReg, regOffset: offset, scale: scale}
}

func (a *IndirectAddress) Base() Register        { return a.base }
func (a *IndirectAddress) SetBase(base Register) { a.base = base }

func (a *IndirectAddress) HasOffset() bool    { return a.offsetKind != offsetNone }
func (a *IndirectAddress) HasIntOffset() bool { return a.offsetKind == offsetInt }
func (a *IndirectAddress) HasRegOffset() bool { return a.offsetKind == offsetReg }

func (a *IndirectAddress) IntOffset() int { return a.intOffset }

func (a *IndirectAddress) SetIntOffset(offset int) {
	if offset == 0 {
		a.offsetKind = offsetNone
		a.intOffset = 0
		return
	}
	a.offsetKind = offsetInt
	a.intOffset = offset
}

func (a *IndirectAddress) RegOffset() Register { return a.regOffset }

func (a *IndirectAddress) SetRegOffset(reg Register) {
	a.offsetKind = offsetReg
	a.regOffset = reg
}

func (a *IndirectAddress) Scale() int         { return a.scale }
func (a *IndirectAddress) SetScale(scale int) { a.scale = scale }

// AArch64AddressKind enumerates the AArch64 addressing forms.
type AArch64AddressKind uint8

const (
	AArch64AddrBase AArch64AddressKind = iota
	AArch64AddrBaseOffsetImm
	// AArch64AddrBaseOffsetImmWrite is the pre-indexed form
	// [base, #imm]! with base writeback.
	AArch64AddrBaseOffsetImmWrite
	AArch64AddrBaseOffsetReg
)

// AArch64Address is the AArch64 addressing form of an operand.
type AArch64Address struct {
	kind      AArch64AddressKind
	base      Register
	intOffset int
	regOffset Register
}

func NewAArch64AddrBase(base Register) AArch64Address {
	return AArch64Address{kind: AArch64AddrBase, base: base}
}

func NewAArch64AddrOffsetImm(base Register, offset int) AArch64Address {
	if offset == 0 {
		return AArch64Address{kind: AArch64AddrBase, base: base}
	}
	return AArch64Address{kind: AArch64AddrBaseOffsetImm, base: base, intOffset: offset}
}

func NewAArch64AddrOffsetImmWrite(base Register, offset int) AArch64Address {
	return AArch64Address{kind: AArch64AddrBaseOffsetImmWrite, base: base, intOffset: offset}
}

func NewAArch64AddrOffsetReg(base Register, offset Register) AArch64Address {
	return AArch64Address{kind: AArch64AddrBaseOffsetReg, base: base, regOffset: offset}
}

func (a *AArch64Address) Kind() AArch64AddressKind { return a.kind }

func (a *AArch64Address) Base() Register        { return a.base }
func (a *AArch64Address) SetBase(base Register) { a.base = base }

func (a *AArch64Address) IntOffset() int { return a.intOffset }

func (a *AArch64Address) RegOffset() Register { return a.regOffset }

func (a *AArch64Address) SetRegOffset(reg Register) { a.regOffset = reg }

// AArch64Condition is a condition code operand.
type AArch64Condition uint8

const (
	AArch64CondEQ AArch64Condition = iota
	AArch64CondNE
	AArch64CondHS
	AArch64CondLO
	AArch64CondHI
	AArch64CondLS
	AArch64CondGE
	AArch64CondLT
	AArch64CondGT
	AArch64CondLE
)

// String implements fmt.Stringer.
func (c AArch64Condition) String() string {
	switch c {
	case AArch64CondEQ:
		return "eq"
	case AArch64CondNE:
		return "ne"
	case AArch64CondHS:
		return "hs"
	case AArch64CondLO:
		return "lo"
	case AArch64CondHI:
		return "hi"
	case AArch64CondLS:
		return "ls"
	case AArch64CondGE:
		return "ge"
	case AArch64CondLT:
		return "lt"
	case AArch64CondGT:
		return "gt"
	case AArch64CondLE:
		return "le"
	}
	return "???"
}
