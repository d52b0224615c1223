package progs

import (
	"fmt"
	"math"

	"github.com/chazu/qcvm/vm"
)

// ---------------------------------------------------------------------------
// Builder: A small assembler for programs
// ---------------------------------------------------------------------------

// Builder assembles vm.Tables by hand. It predeclares the system globals
// the VM and the standard built-ins rely on, allocates user globals after
// them and lays out each function's locals contiguously.
type Builder struct {
	strings    []byte
	stringIDs  map[string]vm.StringID
	statements []vm.Statement
	functions  []vm.FunctionDef
	globalDefs []vm.GlobalDef
	fieldDefs  []vm.FieldDef
	globals    []uint32
	fields     map[string]int // field name -> global holding its offset
	fieldCount int

	open *Func // function whose locals may still grow
	err  error
}

// Func is a function under construction.
type Func struct {
	b      *Builder
	ID     vm.FunctionID
	Global int // function-typed global holding ID
	name   string
	params []int
}

const firstUserGlobal = vm.AddrVRight + 3

// NewBuilder creates a builder with the null string, the null function,
// a DONE at statement 0 and the system globals declared.
func NewBuilder() *Builder {
	b := &Builder{
		strings:    []byte{0},
		stringIDs:  map[string]vm.StringID{"": 0},
		statements: []vm.Statement{{Op: vm.OpDone}},
		functions:  []vm.FunctionDef{{}},
		globals:    make([]uint32, firstUserGlobal),
		fields:     make(map[string]int),
	}
	for _, g := range []struct {
		name string
		t    vm.Type
		addr int
	}{
		{"self", vm.TypeEntity, vm.AddrSelf},
		{"other", vm.TypeEntity, vm.AddrOther},
		{"world", vm.TypeEntity, vm.AddrWorld},
		{"time", vm.TypeFloat, vm.AddrTime},
		{"frametime", vm.TypeFloat, vm.AddrFrameTime},
		{"v_forward", vm.TypeVector, vm.AddrVForward},
		{"v_up", vm.TypeVector, vm.AddrVUp},
		{"v_right", vm.TypeVector, vm.AddrVRight},
	} {
		b.declare(g.name, g.t, g.addr)
	}
	return b
}

// String interns s in the string lump.
func (b *Builder) String(s string) vm.StringID {
	if id, ok := b.stringIDs[s]; ok {
		return id
	}
	id := vm.StringID(len(b.strings))
	b.strings = append(b.strings, s...)
	b.strings = append(b.strings, 0)
	b.stringIDs[s] = id
	return id
}

func (b *Builder) declare(name string, t vm.Type, addr int) {
	b.globalDefs = append(b.globalDefs, vm.GlobalDef{Type: t, Offset: uint16(addr), NameID: b.String(name)})
}

func (b *Builder) alloc(width int) int {
	b.open = nil
	addr := len(b.globals)
	b.globals = append(b.globals, make([]uint32, width)...)
	return addr
}

// Global declares a zeroed global and returns its address.
func (b *Builder) Global(name string, t vm.Type) int {
	addr := b.alloc(t.Width())
	b.declare(name, t, addr)
	return addr
}

// Temp reserves undeclared scratch cells.
func (b *Builder) Temp(width int) int {
	return b.alloc(width)
}

// Float declares a float global with an initial value.
func (b *Builder) Float(name string, v float32) int {
	addr := b.Global(name, vm.TypeFloat)
	b.globals[addr] = math.Float32bits(v)
	return addr
}

// Vector declares a vector global with an initial value.
func (b *Builder) Vector(name string, v vm.Vector) int {
	addr := b.Global(name, vm.TypeVector)
	for c := range v {
		b.globals[addr+c] = math.Float32bits(v[c])
	}
	return addr
}

// Str declares a string global holding text.
func (b *Builder) Str(name, text string) int {
	addr := b.Global(name, vm.TypeString)
	b.globals[addr] = uint32(b.String(text))
	return addr
}

// Entity declares an entity global holding id.
func (b *Builder) Entity(name string, id vm.EntityID) int {
	addr := b.Global(name, vm.TypeEntity)
	b.globals[addr] = uint32(id)
	return addr
}

// Field declares an entity field at the next free offset together with
// the field-typed global that holds the offset, and returns the global.
func (b *Builder) Field(name string, t vm.Type) int {
	return b.FieldAt(name, t, vm.FieldAddr(b.fieldCount))
}

// FieldAt declares an entity field at a fixed offset.
func (b *Builder) FieldAt(name string, t vm.Type, offset vm.FieldAddr) int {
	if g, ok := b.fields[name]; ok {
		return g
	}
	b.fieldDefs = append(b.fieldDefs, vm.FieldDef{Type: t, Offset: uint16(offset), NameID: b.String(name)})
	if end := int(offset) + t.Width(); end > b.fieldCount {
		b.fieldCount = end
	}
	addr := b.Global(name, vm.TypeField)
	b.globals[addr] = uint32(offset)
	b.fields[name] = addr
	return addr
}

// StandardFields declares the entity fields the VM and the standard
// built-ins address by fixed offset.
func (b *Builder) StandardFields() {
	for _, f := range []struct {
		name string
		t    vm.Type
		at   vm.FieldAddr
	}{
		{"modelindex", vm.TypeFloat, vm.FieldModelIndex},
		{"origin", vm.TypeVector, vm.FieldOrigin},
		{"angles", vm.TypeVector, vm.FieldAngles},
		{"classname", vm.TypeString, vm.FieldClassName},
		{"frame", vm.TypeFloat, vm.FieldFrame},
		{"think", vm.TypeFunction, vm.FieldThink},
		{"nextthink", vm.TypeFloat, vm.FieldNextThink},
	} {
		b.FieldAt(f.name, f.t, f.at)
	}
}

// Function starts a bytecode function whose body is the statements
// emitted from now on. Parameters become its first locals.
func (b *Builder) Function(name string, params ...vm.Type) *Func {
	if len(params) > vm.MaxArgs {
		b.fail(fmt.Errorf("function %s: %d parameters", name, len(params)))
		params = params[:vm.MaxArgs]
	}
	f := b.newFunc(name, vm.FunctionDef{Kind: vm.FuncBytecode, Entry: len(b.statements)})

	def := &b.functions[f.ID]
	def.ArgStart = len(b.globals)
	def.Argc = len(params)
	for i, t := range params {
		def.ArgSizes[i] = uint8(t.Width())
		f.params = append(f.params, len(b.globals))
		b.globals = append(b.globals, make([]uint32, t.Width())...)
		def.Locals += t.Width()
	}
	b.open = f
	return f
}

// Builtin declares a host function.
func (b *Builder) Builtin(name string, id vm.BuiltinID, params ...vm.Type) *Func {
	def := vm.FunctionDef{Kind: vm.FuncBuiltin, Builtin: id, Argc: len(params)}
	for i, t := range params {
		if i < vm.MaxArgs {
			def.ArgSizes[i] = uint8(t.Width())
		}
	}
	return b.newFunc(name, def)
}

func (b *Builder) newFunc(name string, def vm.FunctionDef) *Func {
	def.NameID = b.String(name)
	def.SourceID = b.String("builder.qc")
	id := vm.FunctionID(len(b.functions))
	b.functions = append(b.functions, def)

	global := b.Global(name, vm.TypeFunction)
	b.globals[global] = uint32(id)
	return &Func{b: b, ID: id, Global: global, name: name}
}

// Param returns the address of parameter i.
func (f *Func) Param(i int) int {
	return f.params[i]
}

// Local allocates another local. Locals must be allocated before any other
// global so that the region stays contiguous.
func (f *Func) Local(t vm.Type) int {
	b := f.b
	if b.open != f {
		b.fail(fmt.Errorf("function %s: local allocated after other globals", f.name))
	}
	def := &b.functions[f.ID]
	addr := len(b.globals)
	b.globals = append(b.globals, make([]uint32, t.Width())...)
	def.Locals += t.Width()
	return addr
}

// Emit appends a statement and returns its index.
func (b *Builder) Emit(op vm.Opcode, a, bb, c int) int {
	for _, v := range []int{a, bb, c} {
		if v < math.MinInt16 || v > math.MaxInt16 {
			b.fail(fmt.Errorf("statement %d: operand %d overflows", len(b.statements), v))
		}
	}
	b.statements = append(b.statements, vm.Statement{Op: op, A: int16(a), B: int16(bb), C: int16(c)})
	return len(b.statements) - 1
}

// Here returns the index the next statement will get.
func (b *Builder) Here() int {
	return len(b.statements)
}

// PatchJump points the jump at pc to target.
func (b *Builder) PatchJump(pc, target int) {
	st := &b.statements[pc]
	switch st.Op {
	case vm.OpGoto:
		st.A = int16(target - pc)
	case vm.OpIf, vm.OpIfNot:
		st.B = int16(target - pc)
	default:
		b.fail(fmt.Errorf("statement %d: %s is not a jump", pc, st.Op))
	}
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Tables returns the assembled program.
func (b *Builder) Tables() (*vm.Tables, error) {
	if b.err != nil {
		return nil, b.err
	}
	t := &vm.Tables{
		Statements: append([]vm.Statement(nil), b.statements...),
		Functions:  append([]vm.FunctionDef(nil), b.functions...),
		GlobalDefs: append([]vm.GlobalDef(nil), b.globalDefs...),
		FieldDefs:  append([]vm.FieldDef(nil), b.fieldDefs...),
		Strings:    append([]byte(nil), b.strings...),
		Globals:    append([]uint32(nil), b.globals...),
		FieldCount: b.fieldCount,
	}
	return t, nil
}
