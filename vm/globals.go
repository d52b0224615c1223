package vm

import (
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// GlobalMemory: The typed register file
// ---------------------------------------------------------------------------

// GlobalMemory is the fixed arena of 4-byte cells addressed by statement
// operands. Cells carry no runtime tag: the declared GlobalDefs are the only
// type information, and addresses without a def are unchecked scratch.
type GlobalMemory struct {
	cells   []uint32
	defs    []GlobalDef
	byAddr  map[int]int // address -> index of first def at that address
	strings *StringTable
}

// NewGlobalMemory creates an arena initialised from a copy of cells.
func NewGlobalMemory(strings *StringTable, defs []GlobalDef, cells []uint32) *GlobalMemory {
	gm := &GlobalMemory{
		cells:   make([]uint32, len(cells)),
		defs:    make([]GlobalDef, len(defs)),
		byAddr:  make(map[int]int, len(defs)),
		strings: strings,
	}
	copy(gm.cells, cells)
	copy(gm.defs, defs)
	for i, d := range gm.defs {
		if _, ok := gm.byAddr[int(d.Offset)]; !ok {
			gm.byAddr[int(d.Offset)] = i
		}
	}
	return gm
}

// Len returns the number of cells.
func (gm *GlobalMemory) Len() int {
	return len(gm.cells)
}

// Defs returns the global definitions.
func (gm *GlobalMemory) Defs() []GlobalDef {
	return gm.defs
}

// Def returns the first definition declared at addr.
func (gm *GlobalMemory) Def(addr int) (GlobalDef, bool) {
	i, ok := gm.byAddr[addr]
	if !ok {
		return GlobalDef{}, false
	}
	return gm.defs[i], true
}

// Lookup finds a global definition by name.
func (gm *GlobalMemory) Lookup(name string) (GlobalDef, bool) {
	if gm.strings == nil {
		return GlobalDef{}, false
	}
	for _, d := range gm.defs {
		if s, err := gm.strings.Get(d.NameID); err == nil && s == name {
			return d, true
		}
	}
	return GlobalDef{}, false
}

// Addr resolves a global name to its address.
func (gm *GlobalMemory) Addr(name string) (int, error) {
	d, ok := gm.Lookup(name)
	if !ok {
		return 0, fmt.Errorf("%w: no global named %q", ErrAddressOutOfRange, name)
	}
	return int(d.Offset), nil
}

// TypeCheck verifies that a value of type t may be accessed at addr.
func (gm *GlobalMemory) TypeCheck(addr int, t Type) error {
	d, ok := gm.Def(addr)
	if !ok || compatible(t, d.Type) {
		return nil
	}
	return fmt.Errorf("%w: global %d declared %s, accessed as %s", ErrTypeMismatch, addr, d.Type, t)
}

func (gm *GlobalMemory) check(addr int) error {
	if addr < 0 || addr >= len(gm.cells) {
		return fmt.Errorf("%w: global %d (size %d)", ErrAddressOutOfRange, addr, len(gm.cells))
	}
	return nil
}

func (gm *GlobalMemory) load(addr int, t Type) (uint32, error) {
	if err := gm.check(addr); err != nil {
		return 0, err
	}
	if err := gm.TypeCheck(addr, t); err != nil {
		return 0, err
	}
	return gm.cells[addr], nil
}

func (gm *GlobalMemory) store(addr int, t Type, bits uint32) error {
	if err := gm.check(addr); err != nil {
		return err
	}
	if err := gm.TypeCheck(addr, t); err != nil {
		return err
	}
	gm.cells[addr] = bits
	return nil
}

// ---------------------------------------------------------------------------
// Untyped access
// ---------------------------------------------------------------------------

// Cell returns the raw bits at addr without a type check.
func (gm *GlobalMemory) Cell(addr int) (uint32, error) {
	if err := gm.check(addr); err != nil {
		return 0, err
	}
	return gm.cells[addr], nil
}

// PutCell writes raw bits at addr without a type check.
func (gm *GlobalMemory) PutCell(addr int, bits uint32) error {
	if err := gm.check(addr); err != nil {
		return err
	}
	gm.cells[addr] = bits
	return nil
}

// Int reads addr as a signed integer without a type check.
func (gm *GlobalMemory) Int(addr int) (int32, error) {
	bits, err := gm.Cell(addr)
	return int32(bits), err
}

// PutInt writes a signed integer at addr without a type check.
func (gm *GlobalMemory) PutInt(addr int, v int32) error {
	return gm.PutCell(addr, uint32(v))
}

// CopyUntyped copies one cell from src to dst, bypassing type checks.
// Argument and local slots carry no per-component declarations, so vector
// transfers into them must not go through the typed path.
func (gm *GlobalMemory) CopyUntyped(src, dst int) error {
	bits, err := gm.Cell(src)
	if err != nil {
		return err
	}
	return gm.PutCell(dst, bits)
}

// EntityField reads a packed EntityFieldAddr cell. Pointer cells live in
// compiler temporaries, which have no defs, so the access is untyped.
func (gm *GlobalMemory) EntityField(addr int) (int32, error) {
	return gm.Int(addr)
}

// PutEntityField writes a packed EntityFieldAddr cell.
func (gm *GlobalMemory) PutEntityField(addr int, v int32) error {
	return gm.PutInt(addr, v)
}

// ---------------------------------------------------------------------------
// Typed access
// ---------------------------------------------------------------------------

// Float reads a float.
func (gm *GlobalMemory) Float(addr int) (float32, error) {
	bits, err := gm.load(addr, TypeFloat)
	return math.Float32frombits(bits), err
}

// PutFloat writes a float.
func (gm *GlobalMemory) PutFloat(addr int, v float32) error {
	return gm.store(addr, TypeFloat, math.Float32bits(v))
}

// Vector reads three float cells starting at addr.
func (gm *GlobalMemory) Vector(addr int) (Vector, error) {
	var v Vector
	if err := gm.check(addr); err != nil {
		return v, err
	}
	if err := gm.TypeCheck(addr, TypeVector); err != nil {
		return v, err
	}
	for c := 0; c < 3; c++ {
		f, err := gm.Float(addr + c)
		if err != nil {
			return Vector{}, err
		}
		v[c] = f
	}
	return v, nil
}

// PutVector writes three float cells starting at addr. Nothing is written
// unless all three cells are addressable and accept floats.
func (gm *GlobalMemory) PutVector(addr int, v Vector) error {
	if err := gm.check(addr); err != nil {
		return err
	}
	if err := gm.TypeCheck(addr, TypeVector); err != nil {
		return err
	}
	for c := 0; c < 3; c++ {
		if err := gm.check(addr + c); err != nil {
			return err
		}
		if err := gm.TypeCheck(addr+c, TypeFloat); err != nil {
			return err
		}
	}
	for c := 0; c < 3; c++ {
		gm.cells[addr+c] = math.Float32bits(v[c])
	}
	return nil
}

// StringID reads a string id.
func (gm *GlobalMemory) StringID(addr int) (StringID, error) {
	bits, err := gm.load(addr, TypeString)
	if err != nil {
		return 0, err
	}
	id := StringID(int32(bits))
	if id < 0 {
		return 0, fmt.Errorf("%w: negative string id %d at global %d", ErrInvalidStringID, id, addr)
	}
	return id, nil
}

// PutStringID writes a string id.
func (gm *GlobalMemory) PutStringID(addr int, id StringID) error {
	return gm.store(addr, TypeString, uint32(id))
}

// EntityID reads an entity id.
func (gm *GlobalMemory) EntityID(addr int) (EntityID, error) {
	bits, err := gm.load(addr, TypeEntity)
	if err != nil {
		return 0, err
	}
	id := EntityID(int32(bits))
	if id < 0 {
		return 0, fmt.Errorf("%w: negative entity id %d at global %d", ErrInvalidEntity, id, addr)
	}
	return id, nil
}

// PutEntityID writes an entity id.
func (gm *GlobalMemory) PutEntityID(addr int, id EntityID) error {
	return gm.store(addr, TypeEntity, uint32(id))
}

// FieldAddr reads a field address.
func (gm *GlobalMemory) FieldAddr(addr int) (FieldAddr, error) {
	bits, err := gm.load(addr, TypeField)
	if err != nil {
		return 0, err
	}
	f := FieldAddr(int32(bits))
	if f < 0 {
		return 0, fmt.Errorf("%w: negative field address %d at global %d", ErrInvalidField, f, addr)
	}
	return f, nil
}

// PutFieldAddr writes a field address.
func (gm *GlobalMemory) PutFieldAddr(addr int, f FieldAddr) error {
	return gm.store(addr, TypeField, uint32(f))
}

// FunctionID reads a function id.
func (gm *GlobalMemory) FunctionID(addr int) (FunctionID, error) {
	bits, err := gm.load(addr, TypeFunction)
	if err != nil {
		return 0, err
	}
	id := FunctionID(int32(bits))
	if id < 0 {
		return 0, fmt.Errorf("%w: negative function id %d at global %d", ErrNoSuchFunction, id, addr)
	}
	return id, nil
}

// PutFunctionID writes a function id.
func (gm *GlobalMemory) PutFunctionID(addr int, id FunctionID) error {
	return gm.store(addr, TypeFunction, uint32(id))
}

// Value reads a value of type t from addr.
func (gm *GlobalMemory) Value(addr int, t Type) (Value, error) {
	switch t {
	case TypeFloat:
		f, err := gm.Float(addr)
		return FloatValue(f), err
	case TypeVector:
		v, err := gm.Vector(addr)
		return VectorValue(v), err
	case TypeString:
		s, err := gm.StringID(addr)
		return StringValue(s), err
	case TypeEntity:
		e, err := gm.EntityID(addr)
		return EntityValue(e), err
	case TypeField:
		f, err := gm.FieldAddr(addr)
		return FieldValue(f), err
	case TypeFunction:
		f, err := gm.FunctionID(addr)
		return FunctionValue(f), err
	}
	return Value{}, fmt.Errorf("%w: cannot read %s global", ErrTypeMismatch, t)
}

// PutValue writes v at addr using the typed path for v's type.
func (gm *GlobalMemory) PutValue(addr int, v Value) error {
	switch v.Type {
	case TypeFloat:
		return gm.PutFloat(addr, v.Float())
	case TypeVector:
		return gm.PutVector(addr, v.Vector())
	case TypeString:
		return gm.PutStringID(addr, v.StringID())
	case TypeEntity:
		return gm.PutEntityID(addr, v.EntityID())
	case TypeField:
		return gm.PutFieldAddr(addr, v.FieldAddr())
	case TypeFunction:
		return gm.PutFunctionID(addr, v.FunctionID())
	}
	return fmt.Errorf("%w: cannot write %s global", ErrTypeMismatch, v.Type)
}

// ---------------------------------------------------------------------------
// Snapshots
// ---------------------------------------------------------------------------

// Cells returns a copy of the arena.
func (gm *GlobalMemory) Cells() []uint32 {
	out := make([]uint32, len(gm.cells))
	copy(out, gm.cells)
	return out
}

// Restore overwrites the arena. The cell count must match.
func (gm *GlobalMemory) Restore(cells []uint32) error {
	if len(cells) != len(gm.cells) {
		return fmt.Errorf("%w: snapshot has %d cells, arena has %d", ErrAddressOutOfRange, len(cells), len(gm.cells))
	}
	copy(gm.cells, cells)
	return nil
}
