package ssa

// Primitive enumerates the primitive SSA types.
type Primitive uint8

const (
	VOID Primitive = iota
	I8
	I16
	I32
	I64
	F32
	F64
	// ADDR is an opaque pointer.
	ADDR
)

// Type is either a primitive or a handle to a structure definition.
// Types are small and copied by value.
type Type struct {
	primitive Primitive
	struct_   *Structure
}

// Primitive.Type wraps p into a Type.
func (p Primitive) Type() Type {
	return Type{primitive: p}
}

// StructType returns the Type handle for the structure s.
func StructType(s *Structure) Type {
	return Type{struct_: s}
}

func (t Type) IsPrimitive(p Primitive) bool {
	return t.struct_ == nil && t.primitive == p
}

func (t Type) IsStruct() bool { return t.struct_ != nil }

func (t Type) Primitive() Primitive { return t.primitive }

func (t Type) Struct() *Structure { return t.struct_ }

func (t Type) IsFloatingPoint() bool {
	return t.struct_ == nil && (t.primitive == F32 || t.primitive == F64)
}

func (t Type) IsInteger() bool {
	return t.struct_ == nil && t.primitive >= I8 && t.primitive <= I64
}

// String implements fmt.Stringer.
func (t Type) String() string {
	if t.struct_ != nil {
		return "@" + t.struct_.Name
	}

	switch t.primitive {
	case VOID:
		return "void"
	case I8:
		return "i8"
	case I16:
		return "i16"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case ADDR:
		return "addr"
	}
	return "???"
}

// Structure is an aggregate type definition owned by a Module.
type Structure struct {
	Name    string
	Members []StructureMember
}

type StructureMember struct {
	Name string
	Type Type
}
