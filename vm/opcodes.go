package vm

import "fmt"

// Opcode selects the operation of a Statement. Values match the on-disk
// program format.
type Opcode uint16

const (
	// ========================================================================
	// Return and arithmetic (0-9)
	// ========================================================================

	OpDone  Opcode = 0 // Return from the outermost function
	OpMulF  Opcode = 1 // c = a * b
	OpMulV  Opcode = 2 // c = dot(a, b)
	OpMulFV Opcode = 3 // c = a * vector b
	OpMulVF Opcode = 4 // c = vector a * b
	OpDiv   Opcode = 5 // c = a / b
	OpAddF  Opcode = 6 // c = a + b
	OpAddV  Opcode = 7 // c = a + b (vectors)
	OpSubF  Opcode = 8 // c = a - b
	OpSubV  Opcode = 9 // c = a - b (vectors)

	// ========================================================================
	// Comparison (10-23)
	// ========================================================================

	OpEqF   Opcode = 10
	OpEqV   Opcode = 11
	OpEqS   Opcode = 12 // content equality
	OpEqEnt Opcode = 13
	OpEqFnc Opcode = 14
	OpNeF   Opcode = 15
	OpNeV   Opcode = 16
	OpNeS   Opcode = 17
	OpNeEnt Opcode = 18
	OpNeFnc Opcode = 19
	OpLe    Opcode = 20
	OpGe    Opcode = 21
	OpLt    Opcode = 22
	OpGt    Opcode = 23

	// ========================================================================
	// Entity field loads (24-30): c = entity(a).field(b)
	// ========================================================================

	OpLoadF   Opcode = 24
	OpLoadV   Opcode = 25
	OpLoadS   Opcode = 26
	OpLoadEnt Opcode = 27
	OpLoadFld Opcode = 28
	OpLoadFnc Opcode = 29
	OpAddress Opcode = 30 // c = &entity(a).field(b)

	// ========================================================================
	// Global stores (31-36): b = a
	// ========================================================================

	OpStoreF   Opcode = 31
	OpStoreV   Opcode = 32
	OpStoreS   Opcode = 33
	OpStoreEnt Opcode = 34
	OpStoreFld Opcode = 35
	OpStoreFnc Opcode = 36

	// ========================================================================
	// Indirect stores (37-42): *b = a
	// ========================================================================

	OpStorePF   Opcode = 37
	OpStorePV   Opcode = 38
	OpStorePS   Opcode = 39
	OpStorePEnt Opcode = 40
	OpStorePFld Opcode = 41
	OpStorePFnc Opcode = 42

	OpReturn Opcode = 43

	// ========================================================================
	// Logical negation (44-48): c = !a
	// ========================================================================

	OpNotF   Opcode = 44
	OpNotV   Opcode = 45
	OpNotS   Opcode = 46
	OpNotEnt Opcode = 47
	OpNotFnc Opcode = 48

	// ========================================================================
	// Control flow (49-61)
	// ========================================================================

	OpIf    Opcode = 49 // if a: pc += b
	OpIfNot Opcode = 50 // if !a: pc += b
	OpCall0 Opcode = 51 // call function a with 0 args
	OpCall1 Opcode = 52
	OpCall2 Opcode = 53
	OpCall3 Opcode = 54
	OpCall4 Opcode = 55
	OpCall5 Opcode = 56
	OpCall6 Opcode = 57
	OpCall7 Opcode = 58
	OpCall8 Opcode = 59
	OpState Opcode = 60 // self.frame = a; self.nextthink = time + tick
	OpGoto  Opcode = 61 // pc += a

	// ========================================================================
	// Boolean and bitwise (62-65)
	// ========================================================================

	OpAnd    Opcode = 62
	OpOr     Opcode = 63
	OpBitAnd Opcode = 64
	OpBitOr  Opcode = 65

	opcodeCount = 66
)

var opcodeNames = [opcodeCount]string{
	OpDone: "DONE", OpMulF: "MUL_F", OpMulV: "MUL_V", OpMulFV: "MUL_FV",
	OpMulVF: "MUL_VF", OpDiv: "DIV", OpAddF: "ADD_F", OpAddV: "ADD_V",
	OpSubF: "SUB_F", OpSubV: "SUB_V",

	OpEqF: "EQ_F", OpEqV: "EQ_V", OpEqS: "EQ_S", OpEqEnt: "EQ_E",
	OpEqFnc: "EQ_FNC", OpNeF: "NE_F", OpNeV: "NE_V", OpNeS: "NE_S",
	OpNeEnt: "NE_E", OpNeFnc: "NE_FNC", OpLe: "LE", OpGe: "GE",
	OpLt: "LT", OpGt: "GT",

	OpLoadF: "LOAD_F", OpLoadV: "LOAD_V", OpLoadS: "LOAD_S",
	OpLoadEnt: "LOAD_ENT", OpLoadFld: "LOAD_FLD", OpLoadFnc: "LOAD_FNC",
	OpAddress: "ADDRESS",

	OpStoreF: "STORE_F", OpStoreV: "STORE_V", OpStoreS: "STORE_S",
	OpStoreEnt: "STORE_ENT", OpStoreFld: "STORE_FLD", OpStoreFnc: "STORE_FNC",

	OpStorePF: "STOREP_F", OpStorePV: "STOREP_V", OpStorePS: "STOREP_S",
	OpStorePEnt: "STOREP_ENT", OpStorePFld: "STOREP_FLD", OpStorePFnc: "STOREP_FNC",

	OpReturn: "RETURN",

	OpNotF: "NOT_F", OpNotV: "NOT_V", OpNotS: "NOT_S", OpNotEnt: "NOT_ENT",
	OpNotFnc: "NOT_FNC",

	OpIf: "IF", OpIfNot: "IFNOT",
	OpCall0: "CALL0", OpCall1: "CALL1", OpCall2: "CALL2", OpCall3: "CALL3",
	OpCall4: "CALL4", OpCall5: "CALL5", OpCall6: "CALL6", OpCall7: "CALL7",
	OpCall8: "CALL8",
	OpState: "STATE", OpGoto: "GOTO",

	OpAnd: "AND", OpOr: "OR", OpBitAnd: "BITAND", OpBitOr: "BITOR",
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	return op < opcodeCount
}

// String returns the mnemonic of op.
func (op Opcode) String() string {
	if op.Valid() {
		return opcodeNames[op]
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint16(op))
}

// IsCall reports whether op is one of CALL0..CALL8.
func (op Opcode) IsCall() bool {
	return op >= OpCall0 && op <= OpCall8
}

// ArgCount returns the argument count encoded in a call opcode.
func (op Opcode) ArgCount() int {
	if !op.IsCall() {
		return 0
	}
	return int(op - OpCall0)
}

// IsJump reports whether op transfers control by a relative offset.
func (op Opcode) IsJump() bool {
	return op == OpIf || op == OpIfNot || op == OpGoto
}

// IsReturn reports whether op leaves the current function.
func (op Opcode) IsReturn() bool {
	return op == OpDone || op == OpReturn
}

// AllOpcodes returns every defined opcode in numeric order.
func AllOpcodes() []Opcode {
	ops := make([]Opcode, opcodeCount)
	for i := range ops {
		ops[i] = Opcode(i)
	}
	return ops
}

// ---------------------------------------------------------------------------
// Statement
// ---------------------------------------------------------------------------

// Statement is one decoded instruction: an opcode and three signed operands
// whose meaning depends on the opcode.
type Statement struct {
	Op      Opcode
	A, B, C int16
}

// DecodeStatement validates a raw opcode word.
func DecodeStatement(op uint16, a, b, c int16) (Statement, error) {
	if !Opcode(op).Valid() {
		return Statement{}, fmt.Errorf("%w: 0x%x", ErrMalformedOpcode, op)
	}
	return Statement{Op: Opcode(op), A: a, B: b, C: c}, nil
}

func (s Statement) String() string {
	return fmt.Sprintf("%-10s %5d %5d %5d", s.Op, s.A, s.B, s.C)
}
