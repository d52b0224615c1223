package vm

import (
	"fmt"
	"sort"
	"strings"
)

// Disassemble returns a listing of every bytecode function in the program.
func (vm *VM) Disassemble() string {
	var sb strings.Builder
	for id := 1; id < vm.funcs.Len(); id++ {
		def, _ := vm.funcs.ByID(FunctionID(id))
		if def.IsBuiltin() {
			sb.WriteString(fmt.Sprintf("; === %s === builtin #%d\n\n", vm.funcs.Name(FunctionID(id)), def.Builtin))
			continue
		}
		sb.WriteString(vm.DisassembleFunction(FunctionID(id)))
		sb.WriteString("\n")
	}
	return sb.String()
}

// DisassembleFunction returns a listing of one function. The function is
// taken to run until the next function's entry point.
func (vm *VM) DisassembleFunction(id FunctionID) string {
	def, err := vm.funcs.ByID(id)
	if err != nil {
		return fmt.Sprintf("; %v\n", err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("; === %s ===\n", vm.funcs.Name(id)))
	if src := vm.strings.MustGet(def.SourceID); src != "" {
		sb.WriteString(fmt.Sprintf("; Source: %s\n", src))
	}
	if def.IsBuiltin() {
		sb.WriteString(fmt.Sprintf("; Builtin #%d\n", def.Builtin))
		return sb.String()
	}
	sb.WriteString(fmt.Sprintf("; Args: %d %v, locals %d at %d\n", def.Argc, def.ArgSizes[:def.Argc], def.Locals, def.ArgStart))

	end := vm.functionEnd(def.Entry)
	for pc := def.Entry; pc < end; pc++ {
		st := vm.funcs.statements[pc]
		sb.WriteString(fmt.Sprintf("%06d  %s", pc, st))
		if note := vm.annotate(pc, st); note != "" {
			sb.WriteString("  ; ")
			sb.WriteString(note)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (vm *VM) functionEnd(entry int) int {
	var entries []int
	for i := range vm.funcs.defs {
		d := &vm.funcs.defs[i]
		if !d.IsBuiltin() && d.Entry > entry {
			entries = append(entries, d.Entry)
		}
	}
	if len(entries) == 0 {
		return len(vm.funcs.statements)
	}
	sort.Ints(entries)
	return entries[0]
}

// annotate names the globals an instruction touches and resolves jumps.
func (vm *VM) annotate(pc int, st Statement) string {
	switch {
	case st.Op == OpGoto:
		return fmt.Sprintf("-> %06d", pc+int(st.A))
	case st.Op == OpIf || st.Op == OpIfNot:
		return fmt.Sprintf("%s -> %06d", vm.globalName(st.A), pc+int(st.B))
	case st.Op.IsCall():
		if id, err := vm.globals.FunctionID(int(st.A)); err == nil && id > 0 {
			return vm.funcs.Name(id) + "()"
		}
		return vm.globalName(st.A) + "()"
	}

	var names []string
	for _, operand := range [3]int16{st.A, st.B, st.C} {
		if operand == 0 {
			continue
		}
		if n := vm.globalName(operand); n != "" {
			names = append(names, n)
		}
	}
	return strings.Join(names, ", ")
}

func (vm *VM) globalName(addr int16) string {
	d, ok := vm.globals.Def(int(addr))
	if !ok {
		return ""
	}
	name := vm.strings.MustGet(d.NameID)
	if name == "" || name == "IMMEDIATE" {
		return vm.immediate(int(addr), d.Type)
	}
	return name
}

func (vm *VM) immediate(addr int, t Type) string {
	switch t {
	case TypeString:
		id, err := vm.globals.StringID(addr)
		if err != nil {
			return ""
		}
		s := vm.strings.MustGet(id)
		if len(s) > 40 {
			s = s[:37] + "..."
		}
		return fmt.Sprintf("%q", s)
	case TypeFloat, TypeVector:
		v, err := vm.globals.Value(addr, t)
		if err != nil {
			return ""
		}
		return v.String()
	}
	return ""
}
