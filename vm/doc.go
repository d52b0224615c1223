// Package vm implements a QuakeC-style bytecode virtual machine.
//
// This package contains:
//   - The string table and the typed global register file
//   - Function and entity field tables
//   - The call protocol with its bounded call and local-save stacks
//   - The fetch-decode-execute interpreter and its opcode jump table
//   - A disassembler and a per-function invocation profile
//
// Entity storage and built-in functions belong to the host, which plugs
// them in through EntityStore and RegisterBuiltin.
package vm
