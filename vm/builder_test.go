package vm

import (
	"math"
	"testing"
)

// ---------------------------------------------------------------------------
// Test program builder
// ---------------------------------------------------------------------------

// Scratch globals used by tests start above the well-known addresses.
const testScratch = 70

type testProgram struct {
	t      *testing.T
	tables Tables
}

// newProgram creates a program with 128 globals, the null function, a
// DONE at statement 0 and the usual self/time/field declarations.
func newProgram(t *testing.T) *testProgram {
	t.Helper()
	p := &testProgram{t: t}
	p.tables.Strings = []byte{0}
	p.tables.Globals = make([]uint32, 128)
	p.tables.Statements = []Statement{{Op: OpDone}}
	p.tables.Functions = []FunctionDef{{}}
	p.tables.FieldCount = 50

	p.global("self", TypeEntity, AddrSelf)
	p.global("time", TypeFloat, AddrTime)
	p.field("origin", TypeVector, FieldOrigin)
	p.field("frame", TypeFloat, FieldFrame)
	p.field("think", TypeFunction, FieldThink)
	p.field("nextthink", TypeFloat, FieldNextThink)
	return p
}

func (p *testProgram) str(s string) StringID {
	id := StringID(len(p.tables.Strings))
	p.tables.Strings = append(p.tables.Strings, s...)
	p.tables.Strings = append(p.tables.Strings, 0)
	return id
}

func (p *testProgram) global(name string, t Type, addr int) int {
	p.tables.GlobalDefs = append(p.tables.GlobalDefs, GlobalDef{Type: t, Offset: uint16(addr), NameID: p.str(name)})
	return addr
}

func (p *testProgram) field(name string, t Type, addr FieldAddr) {
	p.tables.FieldDefs = append(p.tables.FieldDefs, FieldDef{Type: t, Offset: uint16(addr), NameID: p.str(name)})
}

func (p *testProgram) float(name string, addr int, v float32) int {
	p.global(name, TypeFloat, addr)
	p.tables.Globals[addr] = math.Float32bits(v)
	return addr
}

func (p *testProgram) vector(name string, addr int, v Vector) int {
	p.global(name, TypeVector, addr)
	for c := 0; c < 3; c++ {
		p.tables.Globals[addr+c] = math.Float32bits(v[c])
	}
	return addr
}

func (p *testProgram) stringGlobal(name string, addr int, id StringID) int {
	p.global(name, TypeString, addr)
	p.tables.Globals[addr] = uint32(id)
	return addr
}

func (p *testProgram) fieldGlobal(name string, addr int, f FieldAddr) int {
	p.global(name, TypeField, addr)
	p.tables.Globals[addr] = uint32(f)
	return addr
}

// function declares a bytecode function whose body starts at the next
// emitted statement and stores its id in a function global at addr.
func (p *testProgram) function(name string, addr, argStart, locals int, argSizes ...uint8) FunctionID {
	def := FunctionDef{
		Kind:     FuncBytecode,
		Entry:    len(p.tables.Statements),
		ArgStart: argStart,
		Locals:   locals,
		Argc:     len(argSizes),
		NameID:   p.str(name),
	}
	copy(def.ArgSizes[:], argSizes)
	return p.addFunction(name, addr, def)
}

func (p *testProgram) builtin(name string, addr int, id BuiltinID) FunctionID {
	return p.addFunction(name, addr, FunctionDef{Kind: FuncBuiltin, Builtin: id, NameID: p.str(name)})
}

func (p *testProgram) addFunction(name string, addr int, def FunctionDef) FunctionID {
	id := FunctionID(len(p.tables.Functions))
	p.tables.Functions = append(p.tables.Functions, def)
	if addr > 0 {
		p.global(name, TypeFunction, addr)
		p.tables.Globals[addr] = uint32(id)
	}
	return id
}

func (p *testProgram) emit(op Opcode, a, b, c int) {
	p.tables.Statements = append(p.tables.Statements, Statement{Op: op, A: int16(a), B: int16(b), C: int16(c)})
}

func (p *testProgram) load(opts ...Option) *VM {
	p.t.Helper()
	vm, err := Load(&p.tables, opts...)
	if err != nil {
		p.t.Fatalf("Load: %v", err)
	}
	return vm
}

// ---------------------------------------------------------------------------
// Fake entity store
// ---------------------------------------------------------------------------

type fakeEntities struct {
	fieldCount int
	cells      map[EntityID][]uint32
	writes     int
}

func newFakeEntities(fieldCount int, ids ...EntityID) *fakeEntities {
	f := &fakeEntities{fieldCount: fieldCount, cells: make(map[EntityID][]uint32)}
	for _, id := range ids {
		f.cells[id] = make([]uint32, fieldCount)
	}
	return f
}

func (f *fakeEntities) ReadField(ent EntityID, fld FieldAddr, t Type) (Value, error) {
	cells, ok := f.cells[ent]
	if !ok {
		return Value{}, ErrInvalidEntity
	}
	if int(fld)+t.Width() > len(cells) {
		return Value{}, ErrInvalidField
	}
	v := Value{Type: t}
	copy(v.Cells[:t.Width()], cells[fld:])
	return v, nil
}

func (f *fakeEntities) WriteField(ent EntityID, fld FieldAddr, t Type, v Value) error {
	cells, ok := f.cells[ent]
	if !ok {
		return ErrInvalidEntity
	}
	if int(fld)+t.Width() > len(cells) {
		return ErrInvalidField
	}
	copy(cells[fld:], v.Cells[:t.Width()])
	f.writes++
	return nil
}

func (f *fakeEntities) float(ent EntityID, fld FieldAddr) float32 {
	return math.Float32frombits(f.cells[ent][fld])
}
