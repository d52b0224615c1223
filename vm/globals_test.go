package vm

import (
	"errors"
	"testing"
)

func newTestMemory(t *testing.T) *GlobalMemory {
	t.Helper()
	st, err := NewStringTable([]byte("\x00s\x00v\x00f1\x00f2\x00f3\x00e\x00fld\x00fn\x00"))
	if err != nil {
		t.Fatal(err)
	}
	defs := []GlobalDef{
		{Type: TypeString, Offset: 40, NameID: 1},
		{Type: TypeVector, Offset: 41, NameID: 3},
		{Type: TypeFloat, Offset: 44, NameID: 5},
		{Type: TypeFloat, Offset: 45, NameID: 8},
		{Type: TypeFloat, Offset: 46, NameID: 11},
		{Type: TypeEntity, Offset: 47, NameID: 14},
		{Type: TypeField, Offset: 48, NameID: 16},
		{Type: TypeFunction, Offset: 49, NameID: 20},
	}
	return NewGlobalMemory(st, defs, make([]uint32, 64))
}

func TestGlobalScalarRoundTrip(t *testing.T) {
	gm := newTestMemory(t)

	if err := gm.PutFloat(44, 2.5); err != nil {
		t.Fatal(err)
	}
	if f, err := gm.Float(44); err != nil || f != 2.5 {
		t.Errorf("Float(44) = %v, %v; want 2.5", f, err)
	}

	if err := gm.PutStringID(40, 3); err != nil {
		t.Fatal(err)
	}
	if id, err := gm.StringID(40); err != nil || id != 3 {
		t.Errorf("StringID(40) = %d, %v; want 3", id, err)
	}

	if err := gm.PutEntityID(47, 12); err != nil {
		t.Fatal(err)
	}
	if id, err := gm.EntityID(47); err != nil || id != 12 {
		t.Errorf("EntityID(47) = %d, %v; want 12", id, err)
	}

	if err := gm.PutFieldAddr(48, 30); err != nil {
		t.Fatal(err)
	}
	if f, err := gm.FieldAddr(48); err != nil || f != 30 {
		t.Errorf("FieldAddr(48) = %d, %v; want 30", f, err)
	}

	if err := gm.PutFunctionID(49, 7); err != nil {
		t.Fatal(err)
	}
	if id, err := gm.FunctionID(49); err != nil || id != 7 {
		t.Errorf("FunctionID(49) = %d, %v; want 7", id, err)
	}
}

func TestGlobalVectorAliasing(t *testing.T) {
	gm := newTestMemory(t)

	// Vector declared, components read as floats
	if err := gm.PutVector(41, Vector{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	for c, want := range []float32{1, 2, 3} {
		f, err := gm.Float(41 + c)
		if err != nil || f != want {
			t.Errorf("Float(%d) = %v, %v; want %v", 41+c, f, err, want)
		}
	}

	// Three floats declared, read as one vector
	for c, f := range []float32{4, 5, 6} {
		if err := gm.PutFloat(44+c, f); err != nil {
			t.Fatal(err)
		}
	}
	v, err := gm.Vector(44)
	if err != nil {
		t.Fatal(err)
	}
	if v != (Vector{4, 5, 6}) {
		t.Errorf("Vector(44) = %v, want [4 5 6]", v)
	}
}

func TestGlobalTypeMismatch(t *testing.T) {
	gm := newTestMemory(t)

	tests := []struct {
		name string
		fn   func() error
	}{
		{"float at string", func() error { _, err := gm.Float(40); return err }},
		{"string at float", func() error { return gm.PutStringID(44, 1) }},
		{"entity at function", func() error { _, err := gm.EntityID(49); return err }},
		{"vector at entity", func() error { return gm.PutVector(47, Vector{}) }},
		{"vector spilling onto entity", func() error { return gm.PutVector(45, Vector{}) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.fn(); !errors.Is(err, ErrTypeMismatch) {
				t.Errorf("err = %v, want ErrTypeMismatch", err)
			}
		})
	}
}

func TestGlobalPutVectorIsAtomic(t *testing.T) {
	gm := newTestMemory(t)
	gm.PutFloat(45, 9)
	gm.PutFloat(46, 9)

	// 47 is an entity, so the write must fail before touching 45 or 46.
	if err := gm.PutVector(45, Vector{1, 2, 3}); err == nil {
		t.Fatal("PutVector over an entity succeeded")
	}
	if f, _ := gm.Float(45); f != 9 {
		t.Errorf("Float(45) = %v after failed PutVector, want 9", f)
	}
}

func TestGlobalOutOfRange(t *testing.T) {
	gm := newTestMemory(t)

	for _, addr := range []int{-1, 64, 1000} {
		if _, err := gm.Cell(addr); !errors.Is(err, ErrAddressOutOfRange) {
			t.Errorf("Cell(%d) err = %v, want ErrAddressOutOfRange", addr, err)
		}
	}
	if _, err := gm.Vector(62); !errors.Is(err, ErrAddressOutOfRange) {
		t.Errorf("Vector(62) err = %v, want ErrAddressOutOfRange", err)
	}
}

func TestGlobalNegativeIDs(t *testing.T) {
	gm := newTestMemory(t)
	neg := uint32(0xFFFFFFFF)

	gm.PutCell(40, neg)
	gm.PutCell(47, neg)
	gm.PutCell(48, neg)
	gm.PutCell(49, neg)

	if _, err := gm.StringID(40); !errors.Is(err, ErrInvalidStringID) {
		t.Errorf("StringID err = %v", err)
	}
	if _, err := gm.EntityID(47); !errors.Is(err, ErrInvalidEntity) {
		t.Errorf("EntityID err = %v", err)
	}
	if _, err := gm.FieldAddr(48); !errors.Is(err, ErrInvalidField) {
		t.Errorf("FieldAddr err = %v", err)
	}
	if _, err := gm.FunctionID(49); !errors.Is(err, ErrNoSuchFunction) {
		t.Errorf("FunctionID err = %v", err)
	}
}

func TestGlobalUndeclaredIsUnchecked(t *testing.T) {
	gm := newTestMemory(t)

	if err := gm.PutFloat(ArgAddr(0), 1.5); err != nil {
		t.Fatal(err)
	}
	if _, err := gm.EntityID(ArgAddr(0)); err != nil {
		t.Errorf("undeclared scratch should accept any type: %v", err)
	}
	if err := gm.CopyUntyped(41, 40); err != nil {
		t.Errorf("CopyUntyped ignores declarations: %v", err)
	}
}

func TestGlobalLookup(t *testing.T) {
	gm := newTestMemory(t)

	addr, err := gm.Addr("fn")
	if err != nil || addr != 49 {
		t.Errorf("Addr(fn) = %d, %v; want 49", addr, err)
	}
	if _, err := gm.Addr("missing"); err == nil {
		t.Error("Addr(missing) should fail")
	}
}

func TestGlobalRestore(t *testing.T) {
	gm := newTestMemory(t)
	gm.PutFloat(44, 1)
	saved := gm.Cells()
	gm.PutFloat(44, 2)

	if err := gm.Restore(saved); err != nil {
		t.Fatal(err)
	}
	if f, _ := gm.Float(44); f != 1 {
		t.Errorf("Float(44) = %v after Restore, want 1", f)
	}
	if err := gm.Restore(saved[:10]); err == nil {
		t.Error("Restore with wrong size should fail")
	}
}
