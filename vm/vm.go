package vm

import (
	"fmt"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// VM: The host-facing virtual machine
// ---------------------------------------------------------------------------

// Tables are the decoded contents of a compiled program.
type Tables struct {
	Statements []Statement
	Functions  []FunctionDef
	GlobalDefs []GlobalDef
	FieldDefs  []FieldDef
	Strings    []byte
	Globals    []uint32
	FieldCount int
}

// VM owns one loaded program: its string table, global memory, function
// and field tables and the interpreter that runs them. A VM is not safe for
// concurrent use.
type VM struct {
	strings *StringTable
	globals *GlobalMemory
	funcs   *FunctionTable
	fields  *FieldTable

	interpreter *Interpreter
}

// Option configures a VM at load time.
type Option func(*VM)

// WithStatementBudget sets how many statements a top-level call may run.
func WithStatementBudget(n int) Option {
	return func(vm *VM) {
		if n > 0 {
			vm.interpreter.budget = n
		}
	}
}

// WithThinkInterval sets the delay OpState adds to the current time.
func WithThinkInterval(seconds float32) Option {
	return func(vm *VM) { vm.interpreter.thinkInterval = seconds }
}

// WithEntityStore installs the host's entity storage.
func WithEntityStore(es EntityStore) Option {
	return func(vm *VM) { vm.SetEntityStore(es) }
}

// WithLogger replaces the default "qcvm.vm" logger.
func WithLogger(log commonlog.Logger) Option {
	return func(vm *VM) {
		if log != nil {
			vm.interpreter.log = log
		}
	}
}

// WithTrace logs every executed statement at debug level.
func WithTrace(on bool) Option {
	return func(vm *VM) { vm.interpreter.trace = on }
}

// Load validates t and creates a VM over copies of its tables.
func Load(t *Tables, opts ...Option) (*VM, error) {
	if t == nil {
		return nil, fmt.Errorf("load: nil tables")
	}
	if len(t.Globals) < DynamicStart {
		return nil, fmt.Errorf("%w: %d globals, need at least %d", ErrAddressOutOfRange, len(t.Globals), DynamicStart)
	}

	strings, err := NewStringTable(t.Strings)
	if err != nil {
		return nil, fmt.Errorf("load strings: %w", err)
	}
	for _, d := range t.GlobalDefs {
		if !d.Type.Valid() {
			return nil, fmt.Errorf("load globals: %w: def at %d has type %d", ErrTypeMismatch, d.Offset, d.Type)
		}
		if int(d.Offset)+d.Type.Width() > len(t.Globals) {
			return nil, fmt.Errorf("load globals: %w: def at %d past %d cells", ErrAddressOutOfRange, d.Offset, len(t.Globals))
		}
		if !strings.Valid(d.NameID) {
			return nil, fmt.Errorf("load globals: %w: def at %d", ErrInvalidStringID, d.Offset)
		}
	}
	funcs, err := NewFunctionTable(strings, t.Functions, t.Statements)
	if err != nil {
		return nil, fmt.Errorf("load functions: %w", err)
	}
	fields, err := NewFieldTable(strings, t.FieldDefs, t.FieldCount)
	if err != nil {
		return nil, fmt.Errorf("load fields: %w", err)
	}

	vm := &VM{
		strings: strings,
		globals: NewGlobalMemory(strings, t.GlobalDefs, t.Globals),
		funcs:   funcs,
		fields:  fields,
	}
	vm.interpreter = newInterpreter(vm, vm.globals, strings, funcs, fields)
	vm.interpreter.resolveStateFields()

	for _, opt := range opts {
		opt(vm)
	}
	return vm, nil
}

// FindFunction resolves a function name.
func (vm *VM) FindFunction(name string) (FunctionID, error) {
	return vm.funcs.ByName(name)
}

// Call runs function id to completion. Built-ins may call back into Call;
// such nested calls share the statement budget of the outermost one.
func (vm *VM) Call(id FunctionID) error {
	return vm.interpreter.Execute(id)
}

// CallByName resolves name and calls it.
func (vm *VM) CallByName(name string) error {
	id, err := vm.FindFunction(name)
	if err != nil {
		return err
	}
	return vm.Call(id)
}

// ReadGlobal returns the raw bits of a global cell.
func (vm *VM) ReadGlobal(addr int) (uint32, error) {
	return vm.globals.Cell(addr)
}

// WriteGlobal stores raw bits into a global cell.
func (vm *VM) WriteGlobal(addr int, bits uint32) error {
	return vm.globals.PutCell(addr, bits)
}

// Globals returns the VM's global memory for typed access.
func (vm *VM) Globals() *GlobalMemory { return vm.globals }

// Strings returns the VM's string table.
func (vm *VM) Strings() *StringTable { return vm.strings }

// Functions returns the VM's function table.
func (vm *VM) Functions() *FunctionTable { return vm.funcs }

// Fields returns the VM's entity field table.
func (vm *VM) Fields() *FieldTable { return vm.fields }

// Entities returns the installed entity store.
func (vm *VM) Entities() EntityStore { return vm.interpreter.entities }

// RegisterBuiltin binds a host function to a built-in id, replacing any
// previous binding.
func (vm *VM) RegisterBuiltin(id BuiltinID, fn Builtin) {
	if fn == nil {
		delete(vm.interpreter.builtins, id)
		return
	}
	vm.interpreter.builtins[id] = fn
}

// SetEntityStore installs the host's entity storage. A nil store makes
// every field access fail with ErrInvalidEntity.
func (vm *VM) SetEntityStore(es EntityStore) {
	if es == nil {
		es = noEntities{}
	}
	vm.interpreter.entities = es
}

// ArgCount returns the argument count of the call that invoked the running
// built-in, as encoded in its CALLn opcode.
func (vm *VM) ArgCount() int { return vm.interpreter.lastArgc }

// Depth returns the current call depth. It is 0 between top-level calls.
func (vm *VM) Depth() int { return vm.interpreter.ctx.Depth() }

// Backtrace returns the names of the active functions, innermost first.
func (vm *VM) Backtrace() []string {
	ctx := vm.interpreter.ctx
	if ctx.Idle() {
		return nil
	}
	out := []string{vm.funcs.Name(ctx.Current())}
	frames := ctx.Frames()
	// frames[0] records the host as caller
	for i := len(frames) - 1; i > 0; i-- {
		out = append(out, vm.funcs.Name(frames[i].Function))
	}
	return out
}

// Profile returns the per-function invocation counts.
func (vm *VM) Profile() *Profile { return vm.interpreter.profile }

// Stats returns the interpreter's work counters.
func (vm *VM) Stats() Stats { return vm.interpreter.stats }

// Logger returns the logger the VM writes to.
func (vm *VM) Logger() commonlog.Logger { return vm.interpreter.log }
