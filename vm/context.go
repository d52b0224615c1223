package vm

import "fmt"

// ---------------------------------------------------------------------------
// ExecutionContext: Program counter and bounded stacks
// ---------------------------------------------------------------------------

// Frame is a saved return point on the call stack.
type Frame struct {
	PC       int        // statement of the call, resumed at PC+1
	Function FunctionID // caller
}

// ExecutionContext tracks the program counter, the current function, the
// call stack and the local-save stack. Bytecode functions keep their locals
// in global memory; entering a function saves the previous contents of its
// local region here and leaving restores them, which is what makes
// recursion work.
type ExecutionContext struct {
	pc      int
	current FunctionID
	calls   []Frame
	locals  []uint32
}

// NewExecutionContext creates an idle context.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{
		calls:  make([]Frame, 0, MaxCallDepth),
		locals: make([]uint32, 0, MaxLocalStack),
	}
}

// PC returns the program counter.
func (c *ExecutionContext) PC() int { return c.pc }

// Current returns the executing function.
func (c *ExecutionContext) Current() FunctionID { return c.current }

// Depth returns the number of frames on the call stack.
func (c *ExecutionContext) Depth() int { return len(c.calls) }

// LocalDepth returns the number of saved cells on the local stack.
func (c *ExecutionContext) LocalDepth() int { return len(c.locals) }

// Idle reports whether no function is executing.
func (c *ExecutionContext) Idle() bool { return len(c.calls) == 0 }

// Frames returns a copy of the call stack, oldest first.
func (c *ExecutionContext) Frames() []Frame {
	out := make([]Frame, len(c.calls))
	copy(out, c.calls)
	return out
}

// Advance moves to the next statement.
func (c *ExecutionContext) Advance() { c.pc++ }

// Jump moves the program counter by a relative offset.
func (c *ExecutionContext) Jump(offset int) { c.pc += offset }

// Enter transfers control to a bytecode function. All limits and addresses
// are checked before anything is modified, so a failed Enter leaves memory
// and both stacks as they were.
func (c *ExecutionContext) Enter(mem *GlobalMemory, id FunctionID, def *FunctionDef) error {
	if def.IsBuiltin() {
		return fmt.Errorf("%w: built-in %d has no bytecode entry", ErrNoSuchFunction, def.Builtin)
	}
	if len(c.calls) >= MaxCallDepth {
		return fmt.Errorf("%w: depth %d", ErrCallStackOverflow, len(c.calls))
	}
	if len(c.locals)+def.Locals > MaxLocalStack {
		return fmt.Errorf("%w: %d saved + %d locals", ErrLocalStackOverflow, len(c.locals), def.Locals)
	}
	if err := c.checkRegions(mem, def); err != nil {
		return err
	}

	c.calls = append(c.calls, Frame{PC: c.pc, Function: c.current})

	// checkRegions has bounded [ArgStart, ArgStart+Locals) to the arena.
	if def.Locals > 0 {
		c.locals = append(c.locals, mem.cells[def.ArgStart:def.ArgStart+def.Locals]...)
	}

	dst := def.ArgStart
	for arg := 0; arg < def.Argc; arg++ {
		for comp := 0; comp < int(def.ArgSizes[arg]); comp++ {
			if err := mem.CopyUntyped(ArgAddr(arg)+comp, dst); err != nil {
				return err
			}
			dst++
		}
	}

	c.current = id
	c.pc = def.Entry
	return nil
}

func (c *ExecutionContext) checkRegions(mem *GlobalMemory, def *FunctionDef) error {
	if def.Locals > 0 {
		if err := mem.check(def.ArgStart); err != nil {
			return err
		}
		if err := mem.check(def.ArgStart + def.Locals - 1); err != nil {
			return err
		}
	}
	width := 0
	for arg := 0; arg < def.Argc; arg++ {
		n := int(def.ArgSizes[arg])
		if n == 0 {
			continue
		}
		if err := mem.check(ArgAddr(arg) + n - 1); err != nil {
			return err
		}
		width += n
	}
	if width > 0 {
		if err := mem.check(def.ArgStart + width - 1); err != nil {
			return err
		}
	}
	return nil
}

// Leave restores the caller's local region and return point. def must be
// the definition of the current function.
func (c *ExecutionContext) Leave(mem *GlobalMemory, def *FunctionDef) error {
	if len(c.calls) == 0 {
		return ErrCallStackUnderflow
	}
	if def.Locals > len(c.locals) {
		return fmt.Errorf("%w: %d locals to restore, %d saved", ErrCallStackUnderflow, def.Locals, len(c.locals))
	}

	for i := def.Locals - 1; i >= 0; i-- {
		bits := c.locals[len(c.locals)-1]
		c.locals = c.locals[:len(c.locals)-1]
		if err := mem.PutCell(def.ArgStart+i, bits); err != nil {
			return err
		}
	}

	frame := c.calls[len(c.calls)-1]
	c.calls = c.calls[:len(c.calls)-1]
	c.current = frame.Function
	c.pc = frame.PC
	return nil
}

// unwind drops everything above the given stack depths, returning control
// to the frame that was current at that depth. Memory is not restored.
func (c *ExecutionContext) unwind(depth, localDepth int) {
	if depth < len(c.calls) {
		frame := c.calls[depth]
		c.current = frame.Function
		c.pc = frame.PC
		c.calls = c.calls[:depth]
	}
	if localDepth < len(c.locals) {
		c.locals = c.locals[:localDepth]
	}
}

// Reset returns the context to Idle.
func (c *ExecutionContext) Reset() {
	c.calls = c.calls[:0]
	c.locals = c.locals[:0]
	c.pc = 0
	c.current = 0
}
