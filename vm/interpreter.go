package vm

import (
	"fmt"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Interpreter: Fetch-decode-execute loop
// ---------------------------------------------------------------------------

// Builtin is a host-implemented function. It reads its arguments from the
// ARG globals and writes its result to AddrReturn.
type Builtin func(vm *VM) error

// Stats counts interpreter work.
type Stats struct {
	Statements      uint64 // statements executed by the last top-level call
	TotalStatements uint64
	Calls           uint64 // bytecode function entries
	BuiltinCalls    uint64
}

// Interpreter executes bytecode against one set of tables and memory.
type Interpreter struct {
	mem      *GlobalMemory
	strings  *StringTable
	funcs    *FunctionTable
	fields   *FieldTable
	ctx      *ExecutionContext
	entities EntityStore
	builtins map[BuiltinID]Builtin

	// Back-reference handed to built-ins
	vm *VM

	budget    int
	remaining int
	active    int // nesting of Execute calls (built-ins may re-enter)
	lastArgc  int

	thinkInterval  float32
	fieldNextThink FieldAddr
	fieldFrame     FieldAddr
	fieldThink     FieldAddr

	log     commonlog.Logger
	trace   bool
	profile *Profile
	stats   Stats
}

func newInterpreter(vm *VM, mem *GlobalMemory, strings *StringTable, funcs *FunctionTable, fields *FieldTable) *Interpreter {
	return &Interpreter{
		mem:            mem,
		strings:        strings,
		funcs:          funcs,
		fields:         fields,
		ctx:            NewExecutionContext(),
		entities:       noEntities{},
		builtins:       make(map[BuiltinID]Builtin),
		vm:             vm,
		budget:         DefaultStatementBudget,
		thinkInterval:  DefaultThinkInterval,
		fieldNextThink: FieldNextThink,
		fieldFrame:     FieldFrame,
		fieldThink:     FieldThink,
		log:            commonlog.GetLogger("qcvm.vm"),
		profile:        NewProfile(funcs.Len()),
	}
}

// Execute runs fn to completion. It may be called from inside a built-in;
// the nested call returns once its own frame is left and shares the
// statement budget of the outermost call.
func (in *Interpreter) Execute(fn FunctionID) error {
	if in.active == 0 {
		in.remaining = in.budget
		in.stats.Statements = 0
	}
	in.active++
	defer func() { in.active-- }()

	exitDepth := in.ctx.Depth()
	localBase := in.ctx.LocalDepth()

	if err := in.run(fn, exitDepth); err != nil {
		in.ctx.unwind(exitDepth, localBase)
		if in.log.AllowLevel(commonlog.Error) {
			in.log.Errorf("%s aborted: %v", in.funcs.Name(fn), err)
		}
		return err
	}
	return nil
}

func (in *Interpreter) run(fn FunctionID, exitDepth int) error {
	def, err := in.funcs.ByID(fn)
	if err != nil {
		return err
	}
	if def.IsBuiltin() {
		return in.callBuiltin(fn, def, def.Argc)
	}
	if err := in.enter(fn, def); err != nil {
		return fmt.Errorf("calling %s: %w", in.funcs.Name(fn), err)
	}

	for in.ctx.Depth() > exitDepth {
		pc := in.ctx.PC()
		st, err := in.funcs.Statement(pc)
		if err != nil {
			return in.fault(pc, st, err)
		}
		if in.remaining <= 0 {
			return in.fault(pc, st, fmt.Errorf("%w: budget of %d statements exhausted", ErrProgramRunaway, in.budget))
		}
		in.remaining--
		in.stats.Statements++
		in.stats.TotalStatements++

		if in.trace && in.log.AllowLevel(commonlog.Debug) {
			in.log.Debugf("    pc=%08d %s", pc, st)
		}

		switch {
		case st.Op == OpIf || st.Op == OpIfNot:
			cond, err := in.mem.Float(int(st.A))
			if err != nil {
				return in.fault(pc, st, err)
			}
			if (cond != 0) == (st.Op == OpIf) {
				in.ctx.Jump(int(st.B))
				continue
			}

		case st.Op == OpGoto:
			in.ctx.Jump(int(st.A))
			continue

		case st.Op.IsCall():
			target, err := in.mem.FunctionID(int(st.A))
			if err != nil {
				return in.fault(pc, st, err)
			}
			if target == 0 {
				return in.fault(pc, st, ErrNullFunctionCall)
			}
			tdef, err := in.funcs.ByID(target)
			if err != nil {
				return in.fault(pc, st, err)
			}
			if tdef.IsBuiltin() {
				if err := in.callBuiltin(target, tdef, st.Op.ArgCount()); err != nil {
					return in.fault(pc, st, err)
				}
				break
			}
			if err := in.enter(target, tdef); err != nil {
				return in.fault(pc, st, err)
			}
			continue

		case st.Op.IsReturn():
			if err := in.ret(st); err != nil {
				return in.fault(pc, st, err)
			}
			if in.ctx.Depth() == exitDepth {
				return nil
			}

		case st.Op == OpState:
			if err := in.state(st); err != nil {
				return in.fault(pc, st, err)
			}

		default:
			if !st.Op.Valid() {
				return in.fault(pc, st, fmt.Errorf("%w: opcode %d", ErrMalformedOpcode, st.Op))
			}
			op := opTable[st.Op]
			if op == nil {
				return in.fault(pc, st, fmt.Errorf("%w: %s", ErrMalformedOpcode, st.Op))
			}
			if err := op(in, st); err != nil {
				return in.fault(pc, st, err)
			}
		}

		in.ctx.Advance()
	}
	return nil
}

func (in *Interpreter) enter(id FunctionID, def *FunctionDef) error {
	if err := in.ctx.Enter(in.mem, id, def); err != nil {
		return err
	}
	in.stats.Calls++
	in.profile.record(id)
	if in.log.AllowLevel(commonlog.Debug) {
		in.log.Debugf("calling %s (depth %d)", in.funcs.Name(id), in.ctx.Depth())
	}
	return nil
}

// ret copies the return operands to AddrReturn and leaves the function.
func (in *Interpreter) ret(st Statement) error {
	for i, src := range [3]int16{st.A, st.B, st.C} {
		if err := in.mem.CopyUntyped(int(src), AddrReturn+i); err != nil {
			return err
		}
	}

	id := in.ctx.Current()
	def, err := in.funcs.ByID(id)
	if err != nil {
		return err
	}
	if in.log.AllowLevel(commonlog.Debug) {
		in.log.Debugf("returning from %s (depth %d)", in.funcs.Name(id), in.ctx.Depth())
	}
	return in.ctx.Leave(in.mem, def)
}

// callBuiltin runs a host callback with argc visible through ArgCount. The
// caller's argc is restored afterwards so a built-in that re-enters the VM
// still sees its own count.
func (in *Interpreter) callBuiltin(id FunctionID, def *FunctionDef, argc int) error {
	fn, ok := in.builtins[def.Builtin]
	if !ok {
		return fmt.Errorf("%w: built-in %d (%s) is not registered", ErrNoSuchFunction, def.Builtin, in.funcs.Name(id))
	}
	saved := in.lastArgc
	in.lastArgc = argc
	defer func() { in.lastArgc = saved }()
	in.stats.BuiltinCalls++
	in.profile.record(id)
	if in.log.AllowLevel(commonlog.Debug) {
		in.log.Debugf("calling built-in %s", in.funcs.Name(id))
	}
	return fn(in.vm)
}

// state implements the animation shortcut used by monster think functions.
func (in *Interpreter) state(st Statement) error {
	self, err := in.mem.EntityID(AddrSelf)
	if err != nil {
		return err
	}
	now, err := in.mem.Float(AddrTime)
	if err != nil {
		return err
	}
	frame, err := in.mem.Float(int(st.A))
	if err != nil {
		return err
	}
	if err := in.entities.WriteField(self, in.fieldNextThink, TypeFloat, FloatValue(now+in.thinkInterval)); err != nil {
		return err
	}
	if err := in.entities.WriteField(self, in.fieldFrame, TypeFloat, FloatValue(frame)); err != nil {
		return err
	}
	if st.B == 0 {
		return nil
	}
	think, err := in.mem.FunctionID(int(st.B))
	if err != nil {
		return err
	}
	return in.entities.WriteField(self, in.fieldThink, TypeFunction, FunctionValue(think))
}

func (in *Interpreter) fault(pc int, st Statement, err error) error {
	if _, ok := IsRuntimeError(err); ok {
		return err
	}
	return &RuntimeError{
		Function:  in.funcs.Name(in.ctx.Current()),
		PC:        pc,
		Statement: st,
		Err:       err,
	}
}

// resolveStateFields looks up the fields OpState writes by name, keeping
// the fixed offsets when a program does not declare them.
func (in *Interpreter) resolveStateFields() {
	if in.fields == nil {
		return
	}
	for name, dst := range map[string]*FieldAddr{
		"nextthink": &in.fieldNextThink,
		"frame":     &in.fieldFrame,
		"think":     &in.fieldThink,
	} {
		if d, err := in.fields.ByName(name); err == nil {
			*dst = FieldAddr(d.Offset)
		}
	}
}
