package vm

import "fmt"

// FieldTable resolves entity field names to addresses.
type FieldTable struct {
	strings *StringTable
	defs    []FieldDef
	count   int // cells per entity
}

// NewFieldTable creates a table. count is the number of cells each entity
// occupies, which may exceed the highest declared offset.
func NewFieldTable(strings *StringTable, defs []FieldDef, count int) (*FieldTable, error) {
	for _, d := range defs {
		if int(d.Offset)+d.Type.Width() > count {
			return nil, fmt.Errorf("%w: field %q at %d exceeds entity size %d",
				ErrInvalidField, strings.MustGet(d.NameID), d.Offset, count)
		}
	}
	ft := &FieldTable{strings: strings, defs: make([]FieldDef, len(defs)), count: count}
	copy(ft.defs, defs)
	return ft, nil
}

// Count returns the number of cells per entity.
func (ft *FieldTable) Count() int {
	return ft.count
}

// Defs returns the field definitions.
func (ft *FieldTable) Defs() []FieldDef {
	return ft.defs
}

// ByName finds a field definition by exact name.
func (ft *FieldTable) ByName(name string) (FieldDef, error) {
	for _, d := range ft.defs {
		if s, err := ft.strings.Get(d.NameID); err == nil && s == name {
			return d, nil
		}
	}
	return FieldDef{}, fmt.Errorf("%w: no field named %q", ErrInvalidField, name)
}

// ByOffset returns the first field declared at addr.
func (ft *FieldTable) ByOffset(addr FieldAddr) (FieldDef, bool) {
	for _, d := range ft.defs {
		if FieldAddr(d.Offset) == addr {
			return d, true
		}
	}
	return FieldDef{}, false
}

// TypeCheck verifies that a field at addr may be accessed as type t, with
// the same vector/float aliasing as globals.
func (ft *FieldTable) TypeCheck(addr FieldAddr, t Type) error {
	if addr < 0 || int(addr)+t.Width() > ft.count {
		return fmt.Errorf("%w: field %d (entity size %d)", ErrInvalidField, addr, ft.count)
	}
	d, ok := ft.ByOffset(addr)
	if !ok || compatible(t, d.Type) {
		return nil
	}
	return fmt.Errorf("%w: field %d declared %s, accessed as %s", ErrTypeMismatch, addr, d.Type, t)
}
