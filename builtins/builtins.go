// Package builtins implements the host side of the standard QuakeC built-in
// functions that make sense without a renderer, a network or a sound
// system.
package builtins

import (
	"errors"
	"math/rand/v2"

	"github.com/tliron/commonlog"

	"github.com/chazu/qcvm/vm"
	"github.com/chazu/qcvm/world"
)

// Built-in ids as numbered by the standard progs.
const (
	MakeVectors vm.BuiltinID = 1
	SetOrigin   vm.BuiltinID = 2
	Random      vm.BuiltinID = 7
	Normalize   vm.BuiltinID = 9
	Error       vm.BuiltinID = 10
	VLen        vm.BuiltinID = 12
	VecToYaw    vm.BuiltinID = 13
	Spawn       vm.BuiltinID = 14
	Remove      vm.BuiltinID = 15
	DPrint      vm.BuiltinID = 25
	FToS        vm.BuiltinID = 26
	VToS        vm.BuiltinID = 27
	RInt        vm.BuiltinID = 36
	Floor       vm.BuiltinID = 37
	Ceil        vm.BuiltinID = 38
	FAbs        vm.BuiltinID = 43
	Cvar        vm.BuiltinID = 45
	CvarSet     vm.BuiltinID = 72
)

// ErrProgramError is returned when a program calls error().
var ErrProgramError = errors.New("program error")

// Options configures Register.
type Options struct {
	// Seed for random(). Runs with the same seed see the same sequence.
	Seed uint64
	// Cvars are the initial console variables.
	Cvars map[string]float32
	// Print receives dprint output in addition to the log.
	Print func(string)
	// Log replaces the default "qcvm.builtins" logger.
	Log commonlog.Logger
}

// Set holds the state shared by the registered built-ins.
type Set struct {
	vm     *vm.VM
	world  *world.World
	rng    *rand.Rand
	cvars  *Cvars
	print  func(string)
	log    commonlog.Logger
	origin vm.FieldAddr
}

// Register binds every standard built-in on machine and installs w as its
// entity store.
func Register(machine *vm.VM, w *world.World, opts Options) *Set {
	s := &Set{
		vm:     machine,
		world:  w,
		rng:    rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
		cvars:  NewCvars(opts.Cvars),
		print:  opts.Print,
		log:    opts.Log,
		origin: vm.FieldOrigin,
	}
	if s.log == nil {
		s.log = commonlog.GetLogger("qcvm.builtins")
	}
	if f, err := w.Field("origin"); err == nil {
		s.origin = f
	}
	machine.SetEntityStore(w)

	s.registerMath()
	s.registerEntities()
	s.registerText()
	s.registerCvars()
	return s
}

// Cvars returns the console variables the built-ins read and write.
func (s *Set) Cvars() *Cvars { return s.cvars }

// ---------------------------------------------------------------------------
// Argument and return helpers
// ---------------------------------------------------------------------------

func (s *Set) floatArg(i int) (float32, error) {
	return s.vm.Globals().Float(vm.ArgAddr(i))
}

func (s *Set) vectorArg(i int) (vm.Vector, error) {
	return s.vm.Globals().Vector(vm.ArgAddr(i))
}

func (s *Set) entityArg(i int) (vm.EntityID, error) {
	return s.vm.Globals().EntityID(vm.ArgAddr(i))
}

func (s *Set) stringArg(i int) (string, error) {
	id, err := s.vm.Globals().StringID(vm.ArgAddr(i))
	if err != nil {
		return "", err
	}
	return s.vm.Strings().Get(id)
}

func (s *Set) returnFloat(f float32) error {
	return s.vm.Globals().PutFloat(vm.AddrReturn, f)
}

func (s *Set) returnVector(v vm.Vector) error {
	return s.vm.Globals().PutVector(vm.AddrReturn, v)
}

func (s *Set) returnEntity(id vm.EntityID) error {
	return s.vm.Globals().PutEntityID(vm.AddrReturn, id)
}

func (s *Set) returnString(text string) error {
	id, err := s.vm.Strings().Intern(text)
	if err != nil {
		return err
	}
	return s.vm.Globals().PutStringID(vm.AddrReturn, id)
}

// unary registers a float -> float built-in.
func (s *Set) unary(id vm.BuiltinID, fn func(float64) float64) {
	s.vm.RegisterBuiltin(id, func(*vm.VM) error {
		f, err := s.floatArg(0)
		if err != nil {
			return err
		}
		return s.returnFloat(float32(fn(float64(f))))
	})
}
