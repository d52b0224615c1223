package vm

import (
	"fmt"
	"math"
)

// opFunc executes one data opcode. Control-flow opcodes are handled by the
// interpreter loop and have no entry.
type opFunc func(in *Interpreter, s Statement) error

var opTable = [opcodeCount]opFunc{
	OpMulF:  floatBinary(func(a, b float32) float32 { return a * b }),
	OpMulV:  opMulV,
	OpMulFV: opMulFV,
	OpMulVF: opMulVF,
	OpDiv:   floatBinary(func(a, b float32) float32 { return a / b }),
	OpAddF:  floatBinary(func(a, b float32) float32 { return a + b }),
	OpAddV:  vectorBinary(func(a, b float32) float32 { return a + b }),
	OpSubF:  floatBinary(func(a, b float32) float32 { return a - b }),
	OpSubV:  vectorBinary(func(a, b float32) float32 { return a - b }),

	OpEqF:   floatBinary(func(a, b float32) float32 { return truth(a == b) }),
	OpEqV:   vectorCompare(true),
	OpEqS:   stringCompare(true),
	OpEqEnt: cellCompare(TypeEntity, true),
	OpEqFnc: cellCompare(TypeFunction, true),
	OpNeF:   floatBinary(func(a, b float32) float32 { return truth(a != b) }),
	OpNeV:   vectorCompare(false),
	OpNeS:   stringCompare(false),
	OpNeEnt: cellCompare(TypeEntity, false),
	OpNeFnc: cellCompare(TypeFunction, false),
	OpLe:    floatBinary(func(a, b float32) float32 { return truth(a <= b) }),
	OpGe:    floatBinary(func(a, b float32) float32 { return truth(a >= b) }),
	OpLt:    floatBinary(func(a, b float32) float32 { return truth(a < b) }),
	OpGt:    floatBinary(func(a, b float32) float32 { return truth(a > b) }),

	OpLoadF:   loadField(TypeFloat),
	OpLoadV:   loadField(TypeVector),
	OpLoadS:   loadField(TypeString),
	OpLoadEnt: loadField(TypeEntity),
	OpLoadFld: loadField(TypeField),
	OpLoadFnc: loadField(TypeFunction),
	OpAddress: opAddress,

	OpStoreF:   storeGlobal(TypeFloat),
	OpStoreV:   opStoreV,
	OpStoreS:   storeGlobal(TypeString),
	OpStoreEnt: storeGlobal(TypeEntity),
	OpStoreFld: storeGlobal(TypeField),
	OpStoreFnc: storeGlobal(TypeFunction),

	OpStorePF:   storePointer(TypeFloat),
	OpStorePV:   storePointer(TypeVector),
	OpStorePS:   storePointer(TypeString),
	OpStorePEnt: storePointer(TypeEntity),
	OpStorePFld: storePointer(TypeField),
	OpStorePFnc: storePointer(TypeFunction),

	OpNotF:   opNotF,
	OpNotV:   opNotV,
	OpNotS:   opNotS,
	OpNotEnt: notCell(TypeEntity),
	OpNotFnc: notCell(TypeFunction),

	OpAnd:    floatBinary(func(a, b float32) float32 { return truth(a != 0 && b != 0) }),
	OpOr:     floatBinary(func(a, b float32) float32 { return truth(a != 0 || b != 0) }),
	OpBitAnd: floatBinary(func(a, b float32) float32 { return float32(toInt32(a) & toInt32(b)) }),
	OpBitOr:  floatBinary(func(a, b float32) float32 { return float32(toInt32(a) | toInt32(b)) }),
}

// toInt32 truncates f, saturating at the int32 range. NaN is 0.
func toInt32(f float32) int32 {
	switch {
	case f != f:
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int32(f)
}

func truth(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

// ---------------------------------------------------------------------------
// Arithmetic and comparison
// ---------------------------------------------------------------------------

func floatBinary(f func(a, b float32) float32) opFunc {
	return func(in *Interpreter, s Statement) error {
		a, err := in.mem.Float(int(s.A))
		if err != nil {
			return err
		}
		b, err := in.mem.Float(int(s.B))
		if err != nil {
			return err
		}
		return in.mem.PutFloat(int(s.C), f(a, b))
	}
}

func vectorOperands(in *Interpreter, s Statement) (Vector, Vector, error) {
	a, err := in.mem.Vector(int(s.A))
	if err != nil {
		return Vector{}, Vector{}, err
	}
	b, err := in.mem.Vector(int(s.B))
	if err != nil {
		return Vector{}, Vector{}, err
	}
	return a, b, nil
}

func vectorBinary(f func(a, b float32) float32) opFunc {
	return func(in *Interpreter, s Statement) error {
		a, b, err := vectorOperands(in, s)
		if err != nil {
			return err
		}
		return in.mem.PutVector(int(s.C), Vector{f(a[0], b[0]), f(a[1], b[1]), f(a[2], b[2])})
	}
}

func vectorCompare(eq bool) opFunc {
	return func(in *Interpreter, s Statement) error {
		a, b, err := vectorOperands(in, s)
		if err != nil {
			return err
		}
		return in.mem.PutFloat(int(s.C), truth((a == b) == eq))
	}
}

func opMulV(in *Interpreter, s Statement) error {
	a, b, err := vectorOperands(in, s)
	if err != nil {
		return err
	}
	return in.mem.PutFloat(int(s.C), a[0]*b[0]+a[1]*b[1]+a[2]*b[2])
}

func opMulFV(in *Interpreter, s Statement) error {
	f, err := in.mem.Float(int(s.A))
	if err != nil {
		return err
	}
	v, err := in.mem.Vector(int(s.B))
	if err != nil {
		return err
	}
	return in.mem.PutVector(int(s.C), Vector{f * v[0], f * v[1], f * v[2]})
}

func opMulVF(in *Interpreter, s Statement) error {
	v, err := in.mem.Vector(int(s.A))
	if err != nil {
		return err
	}
	f, err := in.mem.Float(int(s.B))
	if err != nil {
		return err
	}
	return in.mem.PutVector(int(s.C), Vector{v[0] * f, v[1] * f, v[2] * f})
}

// stringCompare compares string contents, not ids: two distinct ids may
// name equal text.
func stringCompare(eq bool) opFunc {
	return func(in *Interpreter, s Statement) error {
		a, err := in.mem.StringID(int(s.A))
		if err != nil {
			return err
		}
		b, err := in.mem.StringID(int(s.B))
		if err != nil {
			return err
		}
		same, err := in.strings.Equal(a, b)
		if err != nil {
			return err
		}
		return in.mem.PutFloat(int(s.C), truth(same == eq))
	}
}

// cellCompare compares ids of a single-cell type by identity.
func cellCompare(t Type, eq bool) opFunc {
	return func(in *Interpreter, s Statement) error {
		a, err := in.mem.Value(int(s.A), t)
		if err != nil {
			return err
		}
		b, err := in.mem.Value(int(s.B), t)
		if err != nil {
			return err
		}
		return in.mem.PutFloat(int(s.C), truth((a.Cells[0] == b.Cells[0]) == eq))
	}
}

// ---------------------------------------------------------------------------
// Logical negation
// ---------------------------------------------------------------------------

func unary(s Statement) error {
	if s.B != 0 {
		return fmt.Errorf("%w: %s uses no second operand, got %d", ErrMalformedOpcode, s.Op, s.B)
	}
	return nil
}

func opNotF(in *Interpreter, s Statement) error {
	if err := unary(s); err != nil {
		return err
	}
	f, err := in.mem.Float(int(s.A))
	if err != nil {
		return err
	}
	return in.mem.PutFloat(int(s.C), truth(f == 0))
}

func opNotV(in *Interpreter, s Statement) error {
	if err := unary(s); err != nil {
		return err
	}
	v, err := in.mem.Vector(int(s.A))
	if err != nil {
		return err
	}
	return in.mem.PutFloat(int(s.C), truth(v == Vector{}))
}

// opNotS is true for the null id and for any id naming empty text.
func opNotS(in *Interpreter, s Statement) error {
	if err := unary(s); err != nil {
		return err
	}
	id, err := in.mem.StringID(int(s.A))
	if err != nil {
		return err
	}
	if id == 0 {
		return in.mem.PutFloat(int(s.C), 1)
	}
	str, err := in.strings.Get(id)
	if err != nil {
		return err
	}
	return in.mem.PutFloat(int(s.C), truth(str == ""))
}

func notCell(t Type) opFunc {
	return func(in *Interpreter, s Statement) error {
		if err := unary(s); err != nil {
			return err
		}
		v, err := in.mem.Value(int(s.A), t)
		if err != nil {
			return err
		}
		return in.mem.PutFloat(int(s.C), truth(v.Cells[0] == 0))
	}
}

// ---------------------------------------------------------------------------
// Entity fields
// ---------------------------------------------------------------------------

func entityOperands(in *Interpreter, s Statement) (EntityID, FieldAddr, error) {
	ent, err := in.mem.EntityID(int(s.A))
	if err != nil {
		return 0, 0, err
	}
	fld, err := in.mem.FieldAddr(int(s.B))
	if err != nil {
		return 0, 0, err
	}
	return ent, fld, nil
}

func loadField(t Type) opFunc {
	return func(in *Interpreter, s Statement) error {
		ent, fld, err := entityOperands(in, s)
		if err != nil {
			return err
		}
		if err := in.fields.TypeCheck(fld, t); err != nil {
			return err
		}
		v, err := in.entities.ReadField(ent, fld, t)
		if err != nil {
			return err
		}
		if v.Type != t {
			return fmt.Errorf("%w: entity %d field %d returned %s, want %s", ErrTypeMismatch, ent, fld, v.Type, t)
		}
		return in.mem.PutValue(int(s.C), v)
	}
}

func opAddress(in *Interpreter, s Statement) error {
	ent, fld, err := entityOperands(in, s)
	if err != nil {
		return err
	}
	packed, err := EntityFieldAddr{Entity: ent, Field: fld}.Pack(in.fields.Count())
	if err != nil {
		return err
	}
	return in.mem.PutEntityField(int(s.C), packed)
}

func storePointer(t Type) opFunc {
	return func(in *Interpreter, s Statement) error {
		v, err := in.mem.Value(int(s.A), t)
		if err != nil {
			return err
		}
		raw, err := in.mem.EntityField(int(s.B))
		if err != nil {
			return err
		}
		ptr, err := UnpackEntityFieldAddr(raw, in.fields.Count())
		if err != nil {
			return err
		}
		if err := in.fields.TypeCheck(ptr.Field, t); err != nil {
			return err
		}
		return in.entities.WriteField(ptr.Entity, ptr.Field, t, v)
	}
}

// ---------------------------------------------------------------------------
// Global stores
// ---------------------------------------------------------------------------

func binaryStore(s Statement) error {
	if s.C != 0 {
		return fmt.Errorf("%w: %s uses no third operand, got %d", ErrMalformedOpcode, s.Op, s.C)
	}
	return nil
}

func storeGlobal(t Type) opFunc {
	return func(in *Interpreter, s Statement) error {
		if err := binaryStore(s); err != nil {
			return err
		}
		v, err := in.mem.Value(int(s.A), t)
		if err != nil {
			return err
		}
		return in.mem.PutValue(int(s.B), v)
	}
}

// opStoreV copies untyped into the return and argument slots, whose
// components carry no declarations of their own.
func opStoreV(in *Interpreter, s Statement) error {
	if err := binaryStore(s); err != nil {
		return err
	}
	dst := int(s.B)
	if dst > AddrNull && dst < StaticStart {
		for c := 0; c < 3; c++ {
			if err := in.mem.CopyUntyped(int(s.A)+c, dst+c); err != nil {
				return err
			}
		}
		return nil
	}
	v, err := in.mem.Vector(int(s.A))
	if err != nil {
		return err
	}
	return in.mem.PutVector(dst, v)
}
