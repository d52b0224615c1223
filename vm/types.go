package vm

import "fmt"

// ---------------------------------------------------------------------------
// Identifiers
// ---------------------------------------------------------------------------

// StringID is a byte offset into the interned string blob. 0 is "".
type StringID int32

// EntityID is an opaque handle into the host's entity store. 0 is the world.
type EntityID int32

// FieldAddr is a per-entity cell offset.
type FieldAddr int32

// FunctionID indexes the function table. 0 is the null function.
type FunctionID int32

// BuiltinID identifies a host-implemented function.
type BuiltinID int32

// Vector is three contiguous float cells.
type Vector [3]float32

// EntityFieldAddr names one field of one entity. Programs take its "address"
// with OpAddress and write through it with the StoreP* opcodes.
type EntityFieldAddr struct {
	Entity EntityID
	Field  FieldAddr
}

// Pack encodes the pair into a single cell. fieldCount is the number of
// cells per entity.
func (a EntityFieldAddr) Pack(fieldCount int) (int32, error) {
	if a.Entity < 0 {
		return 0, fmt.Errorf("%w: negative entity id %d", ErrInvalidEntity, a.Entity)
	}
	if a.Field < 0 || int(a.Field) >= fieldCount {
		return 0, fmt.Errorf("%w: field %d outside [0, %d)", ErrInvalidField, a.Field, fieldCount)
	}
	total := (int64(a.Entity)*int64(fieldCount) + int64(a.Field)) * 4
	if total > int64(^uint32(0)>>1) {
		return 0, fmt.Errorf("%w: entity field address overflows a cell", ErrInvalidEntity)
	}
	return int32(total), nil
}

// UnpackEntityFieldAddr is the inverse of EntityFieldAddr.Pack.
func UnpackEntityFieldAddr(v int32, fieldCount int) (EntityFieldAddr, error) {
	if fieldCount <= 0 {
		return EntityFieldAddr{}, fmt.Errorf("%w: entity has no fields", ErrInvalidField)
	}
	if v < 0 {
		return EntityFieldAddr{}, fmt.Errorf("%w: negative entity field address %d", ErrInvalidField, v)
	}
	if v%4 != 0 {
		return EntityFieldAddr{}, fmt.Errorf("%w: misaligned entity field address %d", ErrInvalidField, v)
	}
	total := int(v / 4)
	return EntityFieldAddr{
		Entity: EntityID(total / fieldCount),
		Field:  FieldAddr(total % fieldCount),
	}, nil
}

// ---------------------------------------------------------------------------
// Types and definitions
// ---------------------------------------------------------------------------

// Type is the statically declared type of a global or field.
type Type uint16

const (
	TypeVoid Type = iota
	TypeString
	TypeFloat
	TypeVector
	TypeEntity
	TypeField
	TypeFunction
	TypePointer
)

var typeNames = [...]string{
	TypeVoid:     "void",
	TypeString:   "string",
	TypeFloat:    "float",
	TypeVector:   "vector",
	TypeEntity:   "entity",
	TypeField:    "field",
	TypeFunction: "function",
	TypePointer:  "pointer",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint16(t))
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	return t <= TypePointer
}

// Width is the number of cells a value of this type occupies.
func (t Type) Width() int {
	if t == TypeVector {
		return 3
	}
	return 1
}

// compatible reports whether a value of type requested may be accessed at an
// address declared as declared. Vectors alias their x component.
func compatible(requested, declared Type) bool {
	if requested == declared {
		return true
	}
	return (requested == TypeFloat && declared == TypeVector) ||
		(requested == TypeVector && declared == TypeFloat)
}

// GlobalDef declares the type and name of a global address.
type GlobalDef struct {
	Save   bool // persisted in save games
	Type   Type
	Offset uint16
	NameID StringID
}

// FieldDef declares the type and name of an entity field.
type FieldDef struct {
	Type   Type
	Offset uint16
	NameID StringID
}

// ---------------------------------------------------------------------------
// Well-known addresses
// ---------------------------------------------------------------------------

// Global addresses fixed by the program format.
const (
	AddrNull   = 0
	AddrReturn = 1
	AddrArg0   = 4
	AddrArg1   = 7
	AddrArg2   = 10
	AddrArg3   = 13
	AddrArg4   = 16
	AddrArg5   = 19
	AddrArg6   = 22
	AddrArg7   = 25

	AddrSelf      = 28
	AddrOther     = 29
	AddrWorld     = 30
	AddrTime      = 31
	AddrFrameTime = 32
	AddrVForward  = 59
	AddrVUp       = 62
	AddrVRight    = 65

	// StaticStart is the first address after the scratch region
	// (return value and argument slots).
	StaticStart  = 28
	DynamicStart = 64
)

// ArgAddr returns the scratch address of argument i.
func ArgAddr(i int) int {
	return AddrArg0 + 3*i
}

// Entity field addresses fixed by the program format.
const (
	FieldModelIndex FieldAddr = 0
	FieldOrigin     FieldAddr = 10
	FieldAngles     FieldAddr = 19
	FieldClassName  FieldAddr = 28
	FieldFrame      FieldAddr = 30
	FieldThink      FieldAddr = 44
	FieldNextThink  FieldAddr = 46
)

// Limits of the execution context.
const (
	MaxCallDepth           = 32
	MaxLocalStack          = 2048
	MaxArgs                = 8
	DefaultStatementBudget = 100000
	DefaultThinkInterval   = float32(0.1)
)
