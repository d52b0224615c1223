package snapshot

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/chazu/qcvm/builtins"
	"github.com/chazu/qcvm/progs"
	"github.com/chazu/qcvm/vm"
	"github.com/chazu/qcvm/world"
)

// newHost builds a program whose main() bumps a counter, draws a random
// number, spawns an entity and formats the counter as a string, so every
// part of the state changes on each call.
func newHost(t *testing.T, seed uint64) (*vm.VM, *world.World) {
	t.Helper()
	b := progs.NewBuilder()
	b.StandardFields()
	counter := b.Float("counter", 0)
	one := b.Float("one", 1)
	r := b.Float("r", 0)
	e := b.Global("e", vm.TypeEntity)
	label := b.Global("label", vm.TypeString)
	random := b.Builtin("random", builtins.Random)
	spawn := b.Builtin("spawn", builtins.Spawn)
	ftos := b.Builtin("ftos", builtins.FToS, vm.TypeFloat)

	b.Function("main")
	b.Emit(vm.OpAddF, counter, one, counter)
	b.Emit(vm.OpCall0, random.Global, 0, 0)
	b.Emit(vm.OpStoreF, vm.AddrReturn, r, 0)
	b.Emit(vm.OpCall0, spawn.Global, 0, 0)
	b.Emit(vm.OpStoreEnt, vm.AddrReturn, e, 0)
	b.Emit(vm.OpStoreF, counter, vm.ArgAddr(0), 0)
	b.Emit(vm.OpCall1, ftos.Global, 0, 0)
	b.Emit(vm.OpStoreS, vm.AddrReturn, label, 0)
	b.Emit(vm.OpDone, 0, 0, 0)

	tables, err := b.Tables()
	if err != nil {
		t.Fatal(err)
	}
	m, err := vm.Load(tables)
	if err != nil {
		t.Fatal(err)
	}
	w := world.New(m.Fields(), 16)
	builtins.Register(m, w, builtins.Options{Seed: seed})
	return m, w
}

func tick(t *testing.T, m *vm.VM, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := m.CallByName("main"); err != nil {
			t.Fatal(err)
		}
	}
}

func digest(t *testing.T, s *Snapshot) uint64 {
	t.Helper()
	d, err := s.Digest()
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestTakeRestore(t *testing.T) {
	m, w := newHost(t, 1)
	tick(t, m, 2)
	saved := Take(m, w)
	strs := m.Strings().Len()

	tick(t, m, 3)
	if w.Len() != 6 || m.Strings().Len() == strs {
		t.Fatalf("ticks did not change state: %d entities", w.Len())
	}

	if err := saved.Restore(m, w); err != nil {
		t.Fatal(err)
	}
	if w.Len() != 3 || m.Strings().Len() != strs {
		t.Errorf("after restore: %d entities, %d string bytes", w.Len(), m.Strings().Len())
	}
	if digest(t, Take(m, w)) != digest(t, saved) {
		t.Error("restored state differs from snapshot")
	}
	addr, _ := m.Globals().Addr("counter")
	if f, _ := m.Globals().Float(addr); f != 2 {
		t.Errorf("counter = %v, want 2", f)
	}
}

func TestDeterministicRuns(t *testing.T) {
	a, wa := newHost(t, 7)
	b, wb := newHost(t, 7)
	c, wc := newHost(t, 8)
	for i := 0; i < 4; i++ {
		tick(t, a, 1)
		tick(t, b, 1)
		tick(t, c, 1)
		if digest(t, Take(a, wa)) != digest(t, Take(b, wb)) {
			t.Fatalf("tick %d: equal seeds diverged", i)
		}
	}
	if digest(t, Take(a, wa)) == digest(t, Take(c, wc)) {
		t.Error("different seeds produced identical state")
	}
}

func TestMarshalCanonical(t *testing.T) {
	m, w := newHost(t, 3)
	tick(t, m, 2)
	s := Take(m, w)

	first, err := s.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	again, _ := Take(m, w).Marshal()
	if !bytes.Equal(first, again) {
		t.Error("encoding is not stable")
	}

	got, err := Unmarshal(first)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, s) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, s)
	}

	if _, err := Unmarshal([]byte{0xff, 0x00}); err == nil {
		t.Error("garbage accepted")
	}
	old := *s
	old.Version = 9
	data, _ := old.Marshal()
	if _, err := Unmarshal(data); err == nil {
		t.Error("unknown version accepted")
	}
}

func TestRestoreRejectsMismatch(t *testing.T) {
	m, w := newHost(t, 1)
	tick(t, m, 1)
	before := digest(t, Take(m, w))

	short := Take(m, w)
	short.Globals = short.Globals[:10]

	badStrings := Take(m, w)
	badStrings.Strings = []byte("abc")

	badEntity := Take(m, w)
	badEntity.Entities = append(badEntity.Entities, Entity{ID: 99, Cells: badEntity.Entities[0].Cells})

	for name, s := range map[string]*Snapshot{
		"globals":  short,
		"strings":  badStrings,
		"entities": badEntity,
	} {
		if err := s.Restore(m, w); err == nil {
			t.Errorf("%s: accepted", name)
		}
		if digest(t, Take(m, w)) != before {
			t.Errorf("%s: failed restore changed state", name)
		}
	}

	if err := Take(m, w).Restore(m, nil); err == nil {
		t.Error("entities restored without a world")
	}
}

func TestRestoreWhileRunning(t *testing.T) {
	m, w := newHost(t, 1)
	saved := Take(m, w)

	var inner error
	m.RegisterBuiltin(builtins.Spawn, func(*vm.VM) error {
		inner = saved.Restore(m, w)
		return nil
	})
	tick(t, m, 1)
	if !errors.Is(inner, ErrBusy) {
		t.Errorf("restore inside a call: %v", inner)
	}
}
