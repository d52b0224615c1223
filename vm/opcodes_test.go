package vm

import (
	"errors"
	"testing"
)

func TestOpcodeNames(t *testing.T) {
	for _, op := range AllOpcodes() {
		if op.String() == "" {
			t.Errorf("opcode %d has no name", op)
		}
	}
	if Opcode(66).Valid() {
		t.Error("66 should be invalid")
	}
	if s := Opcode(200).String(); s != "UNKNOWN(200)" {
		t.Errorf("String() = %q", s)
	}
}

func TestOpcodeClassification(t *testing.T) {
	tests := []struct {
		op     Opcode
		call   bool
		argc   int
		jump   bool
		ret    bool
		hasRun bool // has a jump table entry
	}{
		{OpDone, false, 0, false, true, false},
		{OpReturn, false, 0, false, true, false},
		{OpCall0, true, 0, false, false, false},
		{OpCall8, true, 8, false, false, false},
		{OpIf, false, 0, true, false, false},
		{OpGoto, false, 0, true, false, false},
		{OpState, false, 0, false, false, false},
		{OpAddF, false, 0, false, false, true},
		{OpStorePFld, false, 0, false, false, true},
		{OpLoadFld, false, 0, false, false, true},
		{OpBitOr, false, 0, false, false, true},
	}
	for _, tc := range tests {
		if tc.op.IsCall() != tc.call || tc.op.ArgCount() != tc.argc ||
			tc.op.IsJump() != tc.jump || tc.op.IsReturn() != tc.ret {
			t.Errorf("%s: classification wrong", tc.op)
		}
		if (opTable[tc.op] != nil) != tc.hasRun {
			t.Errorf("%s: jump table entry present = %v", tc.op, opTable[tc.op] != nil)
		}
	}
}

func TestEveryDataOpcodeDispatches(t *testing.T) {
	for _, op := range AllOpcodes() {
		control := op.IsCall() || op.IsJump() || op.IsReturn() || op == OpState
		if !control && opTable[op] == nil {
			t.Errorf("%s has no handler", op)
		}
	}
}

func TestDecodeStatement(t *testing.T) {
	st, err := DecodeStatement(uint16(OpAddF), 1, 2, 3)
	if err != nil || st != (Statement{Op: OpAddF, A: 1, B: 2, C: 3}) {
		t.Errorf("DecodeStatement = %+v, %v", st, err)
	}
	if _, err := DecodeStatement(66, 0, 0, 0); !errors.Is(err, ErrMalformedOpcode) {
		t.Errorf("opcode 66: %v", err)
	}
}
