package target

import (
	"github.com/chnoblouch/banjo/internal/ssa"
)

// DataLayout computes sizes, alignments and field offsets of SSA types
// for one target.
type DataLayout interface {
	Size(t ssa.Type) int
	Alignment(t ssa.Type) int
	MemberOffset(s *ssa.Structure, index int) int
	// USizeType is the pointer-sized unsigned integer type.
	USizeType() ssa.Type
}

// StandardDataLayout is the layout shared by the supported 64-bit
// targets: natural alignment, 8-byte pointers.
type StandardDataLayout struct{}

func NewStandardDataLayout() StandardDataLayout {
	return StandardDataLayout{}
}

// Size implements DataLayout.
func (l StandardDataLayout) Size(t ssa.Type) int {
	if struct_ := t.Struct(); struct_ != nil {
		size := 0
		for _, member := range struct_.Members {
			size = align(size, l.Alignment(member.Type))
			size += l.Size(member.Type)
		}
		return align(size, l.Alignment(t))
	}

	switch t.Primitive() {
	case ssa.VOID:
		return 0
	case ssa.I8:
		return 1
	case ssa.I16:
		return 2
	case ssa.I32, ssa.F32:
		return 4
	case ssa.I64, ssa.F64, ssa.ADDR:
		return 8
	}
	panic("BUG: size of unknown type")
}

// Alignment implements DataLayout.
func (l StandardDataLayout) Alignment(t ssa.Type) int {
	if struct_ := t.Struct(); struct_ != nil {
		alignment := 1
		for _, member := range struct_.Members {
			if a := l.Alignment(member.Type); a > alignment {
				alignment = a
			}
		}
		return alignment
	}

	if size := l.Size(t); size > 0 {
		return size
	}
	return 1
}

// MemberOffset implements DataLayout.
func (l StandardDataLayout) MemberOffset(s *ssa.Structure, index int) int {
	offset := 0
	for i := 0; i <= index; i++ {
		offset = align(offset, l.Alignment(s.Members[i].Type))
		if i == index {
			return offset
		}
		offset += l.Size(s.Members[i].Type)
	}
	return offset
}

// USizeType implements DataLayout.
func (l StandardDataLayout) USizeType() ssa.Type {
	return ssa.I64.Type()
}

func align(value, alignment int) int {
	if alignment <= 1 {
		return value
	}
	return (value + alignment - 1) / alignment * alignment
}

// Align rounds value up to the given alignment.
func Align(value, alignment int) int {
	return align(value, alignment)
}
