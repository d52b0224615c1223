package vm

import "fmt"

// ---------------------------------------------------------------------------
// FunctionDef
// ---------------------------------------------------------------------------

// FunctionKind distinguishes bytecode functions from host built-ins.
type FunctionKind uint8

const (
	FuncBytecode FunctionKind = iota
	FuncBuiltin
)

func (k FunctionKind) String() string {
	if k == FuncBuiltin {
		return "builtin"
	}
	return "bytecode"
}

// FunctionDef is the static metadata of one function.
type FunctionDef struct {
	Kind     FunctionKind
	Builtin  BuiltinID // valid when Kind == FuncBuiltin
	Entry    int       // first statement, valid when Kind == FuncBytecode
	ArgStart int       // first global of the local/argument region
	Locals   int       // size of the local region in cells
	Argc     int
	ArgSizes [MaxArgs]uint8 // cells per argument: 1, or 3 for vectors
	NameID   StringID
	SourceID StringID
}

// IsBuiltin reports whether the function is implemented by the host.
func (d *FunctionDef) IsBuiltin() bool {
	return d.Kind == FuncBuiltin
}

// ---------------------------------------------------------------------------
// FunctionTable
// ---------------------------------------------------------------------------

// FunctionTable holds function metadata and the statement array they index.
type FunctionTable struct {
	strings    *StringTable
	defs       []FunctionDef
	statements []Statement
}

// NewFunctionTable builds a table and checks that every bytecode entry
// point, argument layout and opcode is usable.
func NewFunctionTable(strings *StringTable, defs []FunctionDef, statements []Statement) (*FunctionTable, error) {
	for i, d := range defs {
		if d.Argc < 0 || d.Argc > MaxArgs {
			return nil, fmt.Errorf("function %d: argument count %d outside [0, %d]", i, d.Argc, MaxArgs)
		}
		if d.Kind != FuncBytecode {
			continue
		}
		if d.Entry < 0 || d.Entry >= len(statements) {
			return nil, fmt.Errorf("%w: function %d entry %d outside %d statements", ErrNoSuchFunction, i, d.Entry, len(statements))
		}
		if d.Locals < 0 || d.ArgStart < 0 {
			return nil, fmt.Errorf("function %d: negative local region", i)
		}
	}
	for pc, st := range statements {
		if !st.Op.Valid() {
			return nil, fmt.Errorf("%w: statement %d has opcode %d", ErrMalformedOpcode, pc, st.Op)
		}
	}

	ft := &FunctionTable{
		strings:    strings,
		defs:       make([]FunctionDef, len(defs)),
		statements: make([]Statement, len(statements)),
	}
	copy(ft.defs, defs)
	copy(ft.statements, statements)
	return ft, nil
}

// Len returns the number of functions.
func (ft *FunctionTable) Len() int {
	return len(ft.defs)
}

// Statements returns the statement array.
func (ft *FunctionTable) Statements() []Statement {
	return ft.statements
}

// ByID returns the definition of id.
func (ft *FunctionTable) ByID(id FunctionID) (*FunctionDef, error) {
	if id < 0 || int(id) >= len(ft.defs) {
		return nil, fmt.Errorf("%w: id %d", ErrNoSuchFunction, id)
	}
	return &ft.defs[id], nil
}

// ByName finds a function by exact name.
func (ft *FunctionTable) ByName(name string) (FunctionID, error) {
	for i := range ft.defs {
		if s, err := ft.strings.Get(ft.defs[i].NameID); err == nil && s == name {
			return FunctionID(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrNoSuchFunction, name)
}

// Name returns the function's name, or a placeholder for invalid ids.
func (ft *FunctionTable) Name(id FunctionID) string {
	d, err := ft.ByID(id)
	if err != nil {
		return fmt.Sprintf("<function %d>", id)
	}
	if s := ft.strings.MustGet(d.NameID); s != "" {
		return s
	}
	return fmt.Sprintf("<function %d>", id)
}

// Statement returns the statement at pc.
func (ft *FunctionTable) Statement(pc int) (Statement, error) {
	if pc < 0 || pc >= len(ft.statements) {
		return Statement{}, fmt.Errorf("%w: pc %d outside %d statements", ErrMalformedOpcode, pc, len(ft.statements))
	}
	return ft.statements[pc], nil
}
