package vm

import (
	"fmt"
	"math"
)

// Value is a typed value crossing the entity store boundary. It holds the
// raw cells exactly as they would sit in global memory; only vectors use
// more than the first cell.
type Value struct {
	Type  Type
	Cells [3]uint32
}

// FloatValue wraps a float.
func FloatValue(f float32) Value {
	return Value{Type: TypeFloat, Cells: [3]uint32{math.Float32bits(f)}}
}

// VectorValue wraps a vector.
func VectorValue(v Vector) Value {
	return Value{Type: TypeVector, Cells: [3]uint32{
		math.Float32bits(v[0]),
		math.Float32bits(v[1]),
		math.Float32bits(v[2]),
	}}
}

// StringValue wraps a string id.
func StringValue(id StringID) Value {
	return Value{Type: TypeString, Cells: [3]uint32{uint32(id)}}
}

// EntityValue wraps an entity id.
func EntityValue(id EntityID) Value {
	return Value{Type: TypeEntity, Cells: [3]uint32{uint32(id)}}
}

// FieldValue wraps a field address.
func FieldValue(f FieldAddr) Value {
	return Value{Type: TypeField, Cells: [3]uint32{uint32(f)}}
}

// FunctionValue wraps a function id.
func FunctionValue(id FunctionID) Value {
	return Value{Type: TypeFunction, Cells: [3]uint32{uint32(id)}}
}

func (v Value) Float() float32 {
	return math.Float32frombits(v.Cells[0])
}

func (v Value) Vector() Vector {
	return Vector{
		math.Float32frombits(v.Cells[0]),
		math.Float32frombits(v.Cells[1]),
		math.Float32frombits(v.Cells[2]),
	}
}

func (v Value) StringID() StringID {
	return StringID(int32(v.Cells[0]))
}

func (v Value) EntityID() EntityID {
	return EntityID(int32(v.Cells[0]))
}

func (v Value) FieldAddr() FieldAddr {
	return FieldAddr(int32(v.Cells[0]))
}

func (v Value) FunctionID() FunctionID {
	return FunctionID(int32(v.Cells[0]))
}

func (v Value) String() string {
	switch v.Type {
	case TypeFloat:
		return fmt.Sprintf("%g", v.Float())
	case TypeVector:
		x := v.Vector()
		return fmt.Sprintf("'%g %g %g'", x[0], x[1], x[2])
	case TypeString:
		return fmt.Sprintf("string#%d", v.StringID())
	case TypeEntity:
		return fmt.Sprintf("entity#%d", v.EntityID())
	case TypeField:
		return fmt.Sprintf("field#%d", v.FieldAddr())
	case TypeFunction:
		return fmt.Sprintf("function#%d", v.FunctionID())
	}
	return fmt.Sprintf("%s(%#x)", v.Type, v.Cells[0])
}

// ---------------------------------------------------------------------------
// EntityStore: the host-owned per-entity fields
// ---------------------------------------------------------------------------

// EntityStore is implemented by the host's world. The VM never owns entity
// storage; every Load*/Store* opcode goes through this interface.
type EntityStore interface {
	// ReadField reads a field of type t. Errors should wrap ErrInvalidEntity
	// or ErrInvalidField.
	ReadField(ent EntityID, fld FieldAddr, t Type) (Value, error)
	// WriteField writes v to a field of type t.
	WriteField(ent EntityID, fld FieldAddr, t Type, v Value) error
}

// noEntities is used until the host installs a store.
type noEntities struct{}

func (noEntities) ReadField(ent EntityID, fld FieldAddr, t Type) (Value, error) {
	return Value{}, fmt.Errorf("%w: no entity store (entity %d)", ErrInvalidEntity, ent)
}

func (noEntities) WriteField(ent EntityID, fld FieldAddr, t Type, v Value) error {
	return fmt.Errorf("%w: no entity store (entity %d)", ErrInvalidEntity, ent)
}
