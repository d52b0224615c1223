package builtins

import (
	"errors"
	"math"
	"testing"

	"github.com/chazu/qcvm/progs"
	"github.com/chazu/qcvm/vm"
	"github.com/chazu/qcvm/world"
)

// arg declares a global holding one argument value.
type arg struct {
	t    vm.Type
	decl func(b *progs.Builder, name string) int
}

func f(x float32) arg {
	return arg{vm.TypeFloat, func(b *progs.Builder, n string) int { return b.Float(n, x) }}
}

func v(x vm.Vector) arg {
	return arg{vm.TypeVector, func(b *progs.Builder, n string) int { return b.Vector(n, x) }}
}

func str(x string) arg {
	return arg{vm.TypeString, func(b *progs.Builder, n string) int { return b.Str(n, x) }}
}

func ent(id vm.EntityID) arg {
	return arg{vm.TypeEntity, func(b *progs.Builder, n string) int { return b.Entity(n, id) }}
}

var storeOps = map[vm.Type]vm.Opcode{
	vm.TypeFloat:  vm.OpStoreF,
	vm.TypeVector: vm.OpStoreV,
	vm.TypeString: vm.OpStoreS,
	vm.TypeEntity: vm.OpStoreEnt,
}

type fixture struct {
	vm    *vm.VM
	world *world.World
	set   *Set
	out   int
}

// setup assembles main(), which passes args to built-in id and stores its
// result in the global "out" unless out is void, and registers the
// standard built-ins.
func setup(t *testing.T, opts Options, id vm.BuiltinID, out vm.Type, args ...arg) *fixture {
	t.Helper()
	b := progs.NewBuilder()
	b.StandardFields()
	fn := b.Builtin("target", id)

	addrs := make([]int, len(args))
	for i, a := range args {
		addrs[i] = a.decl(b, string(rune('a'+i)))
	}
	fx := &fixture{}
	if out != vm.TypeVoid {
		fx.out = b.Global("out", out)
	}

	b.Function("main")
	for i, a := range args {
		b.Emit(storeOps[a.t], addrs[i], vm.ArgAddr(i), 0)
	}
	b.Emit(vm.OpCall0+vm.Opcode(len(args)), fn.Global, 0, 0)
	if out != vm.TypeVoid {
		b.Emit(storeOps[out], vm.AddrReturn, fx.out, 0)
	}
	b.Emit(vm.OpDone, 0, 0, 0)

	tables, err := b.Tables()
	if err != nil {
		t.Fatal(err)
	}
	fx.vm, err = vm.Load(tables)
	if err != nil {
		t.Fatal(err)
	}
	fx.world = world.New(fx.vm.Fields(), 8)
	fx.set = Register(fx.vm, fx.world, opts)
	return fx
}

func (fx *fixture) run(t *testing.T) {
	t.Helper()
	if err := fx.vm.CallByName("main"); err != nil {
		t.Fatal(err)
	}
}

func (fx *fixture) float(t *testing.T) float32 {
	t.Helper()
	r, err := fx.vm.Globals().Float(fx.out)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func (fx *fixture) vector(t *testing.T, addr int) vm.Vector {
	t.Helper()
	r, err := fx.vm.Globals().Vector(addr)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func (fx *fixture) text(t *testing.T) string {
	t.Helper()
	id, err := fx.vm.Globals().StringID(fx.out)
	if err != nil {
		t.Fatal(err)
	}
	return fx.vm.Strings().MustGet(id)
}

func near(a, b vm.Vector) bool {
	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > 1e-5 {
			return false
		}
	}
	return true
}

func TestFloatBuiltins(t *testing.T) {
	tests := []struct {
		name string
		id   vm.BuiltinID
		in   arg
		want float32
	}{
		{"rint up", RInt, f(2.5), 3},
		{"rint negative", RInt, f(-2.5), -3},
		{"rint down", RInt, f(2.4), 2},
		{"floor", Floor, f(-1.5), -2},
		{"ceil", Ceil, f(1.1), 2},
		{"fabs", FAbs, f(-7), 7},
		{"vlen", VLen, v(vm.Vector{3, 4, 0}), 5},
		{"vectoyaw east", VecToYaw, v(vm.Vector{1, 0, 0}), 0},
		{"vectoyaw north", VecToYaw, v(vm.Vector{0, 1, 0}), 90},
		{"vectoyaw south", VecToYaw, v(vm.Vector{0, -1, 0}), 270},
		{"vectoyaw vertical", VecToYaw, v(vm.Vector{0, 0, 5}), 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fx := setup(t, Options{}, tc.id, vm.TypeFloat, tc.in)
			fx.run(t)
			if got := fx.float(t); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	for _, tc := range []struct {
		in, want vm.Vector
	}{
		{vm.Vector{0, 3, 4}, vm.Vector{0, 0.6, 0.8}},
		{vm.Vector{}, vm.Vector{}},
	} {
		fx := setup(t, Options{}, Normalize, vm.TypeVector, v(tc.in))
		fx.run(t)
		if got := fx.vector(t, fx.out); !near(got, tc.want) {
			t.Errorf("normalize(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestMakeVectors(t *testing.T) {
	fx := setup(t, Options{}, MakeVectors, vm.TypeVoid, v(vm.Vector{0, 90, 0}))
	fx.run(t)

	want := map[int]vm.Vector{
		vm.AddrVForward: {0, 1, 0},
		vm.AddrVRight:   {1, 0, 0},
		vm.AddrVUp:      {0, 0, 1},
	}
	for addr, w := range want {
		if got := fx.vector(t, addr); !near(got, w) {
			t.Errorf("global %d = %v, want %v", addr, got, w)
		}
	}
}

func TestAngleVectorsIdentity(t *testing.T) {
	forward, right, up := AngleVectors(vm.Vector{})
	if forward != (vm.Vector{1, 0, 0}) || !near(right, vm.Vector{0, -1, 0}) || up != (vm.Vector{0, 0, 1}) {
		t.Errorf("AngleVectors(0) = %v %v %v", forward, right, up)
	}
	// Pitching down 90 degrees points forward at -z.
	forward, _, _ = AngleVectors(vm.Vector{90, 0, 0})
	if !near(forward, vm.Vector{0, 0, -1}) {
		t.Errorf("pitch 90 forward = %v", forward)
	}
}

func TestFormatting(t *testing.T) {
	tests := []struct {
		id   vm.BuiltinID
		in   arg
		want string
	}{
		{FToS, f(3), "3"},
		{FToS, f(-12), "-12"},
		{FToS, f(2.3), "  2.3"},
		{FToS, f(0.5), "  0.5"},
		{VToS, v(vm.Vector{1, -2.5, 100}), "'  1.0  -2.5 100.0'"},
	}
	for _, tc := range tests {
		fx := setup(t, Options{}, tc.id, vm.TypeString, tc.in)
		fx.run(t)
		if got := fx.text(t); got != tc.want {
			t.Errorf("%d: got %q, want %q", tc.id, got, tc.want)
		}
	}
}

func TestSpawnSetOriginRemove(t *testing.T) {
	fx := setup(t, Options{}, Spawn, vm.TypeEntity)
	fx.run(t)
	id, _ := fx.vm.Globals().EntityID(fx.out)
	if id != 1 || !fx.world.Alive(1) {
		t.Fatalf("spawn returned %d", id)
	}

	so := setup(t, Options{}, SetOrigin, vm.TypeVoid, ent(1), v(vm.Vector{1, 2, 3}))
	so.world.Spawn()
	so.run(t)
	e, _ := so.world.Entity(1)
	if org, _ := e.Vector(vm.FieldOrigin); org != (vm.Vector{1, 2, 3}) {
		t.Errorf("origin = %v", org)
	}

	rm := setup(t, Options{}, Remove, vm.TypeVoid, ent(0))
	if err := rm.vm.CallByName("main"); !errors.Is(err, vm.ErrInvalidEntity) {
		t.Errorf("remove(world): %v", err)
	}
}

func TestSpawnExhausted(t *testing.T) {
	fx := setup(t, Options{}, Spawn, vm.TypeEntity)
	for i := 1; i < fx.world.Max(); i++ {
		fx.run(t)
	}
	if err := fx.vm.CallByName("main"); !errors.Is(err, world.ErrNoFreeEntities) {
		t.Errorf("err = %v", err)
	}
}

func TestDPrintConcatenates(t *testing.T) {
	var got []string
	opts := Options{Print: func(s string) { got = append(got, s) }}
	fx := setup(t, opts, DPrint, vm.TypeVoid, str("hello, "), str("world\n"))
	fx.run(t)
	if len(got) != 1 || got[0] != "hello, world\n" {
		t.Errorf("printed %q", got)
	}
}

func TestErrorAborts(t *testing.T) {
	fx := setup(t, Options{}, Error, vm.TypeVoid, str("bad thing"))
	err := fx.vm.CallByName("main")
	if !errors.Is(err, ErrProgramError) {
		t.Fatalf("err = %v", err)
	}
	if re, ok := vm.IsRuntimeError(err); !ok || re.Function != "main" {
		t.Errorf("runtime error = %+v", re)
	}
	if fx.vm.Depth() != 0 {
		t.Errorf("depth after error = %d", fx.vm.Depth())
	}
}

func TestCvars(t *testing.T) {
	opts := Options{Cvars: map[string]float32{"skill": 2}}
	fx := setup(t, opts, Cvar, vm.TypeFloat, str("skill"))
	fx.run(t)
	if got := fx.float(t); got != 2 {
		t.Errorf("cvar(skill) = %v", got)
	}

	set := setup(t, opts, CvarSet, vm.TypeVoid, str("skill"), str("3"))
	set.run(t)
	if got := set.set.Cvars().Float("skill"); got != 3 {
		t.Errorf("after cvar_set skill = %v", got)
	}

	unknown := setup(t, opts, CvarSet, vm.TypeVoid, str("nosuch"), str("1"))
	unknown.run(t)
	if _, ok := unknown.set.Cvars().String("nosuch"); ok {
		t.Error("cvar_set created an unknown variable")
	}

	c := NewCvars(nil)
	c.Define("name", "player")
	if c.Float("name") != 0 || c.Float("missing") != 0 {
		t.Error("non-numeric cvars should read as 0")
	}
	if names := c.Names(); len(names) != 1 || names[0] != "name" {
		t.Errorf("Names = %v", names)
	}
}

func TestRandomDeterministic(t *testing.T) {
	sequence := func(seed uint64) []float32 {
		fx := setup(t, Options{Seed: seed}, Random, vm.TypeFloat)
		out := make([]float32, 5)
		for i := range out {
			fx.run(t)
			out[i] = fx.float(t)
			if out[i] < 0 || out[i] >= 1 {
				t.Fatalf("random() = %v", out[i])
			}
		}
		return out
	}
	a, b, c := sequence(42), sequence(42), sequence(7)
	same := true
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed diverged at %d: %v vs %v", i, a, b)
		}
		same = same && a[i] == c[i]
	}
	if same {
		t.Error("different seeds produced the same sequence")
	}
}
