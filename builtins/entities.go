package builtins

import "github.com/chazu/qcvm/vm"

// ---------------------------------------------------------------------------
// Entity Built-ins
// ---------------------------------------------------------------------------

func (s *Set) registerEntities() {
	s.vm.RegisterBuiltin(Spawn, func(*vm.VM) error {
		id, err := s.world.Spawn()
		if err != nil {
			return err
		}
		return s.returnEntity(id)
	})

	s.vm.RegisterBuiltin(Remove, func(*vm.VM) error {
		id, err := s.entityArg(0)
		if err != nil {
			return err
		}
		return s.world.Remove(id)
	})

	// setorigin(entity e, vector org)
	s.vm.RegisterBuiltin(SetOrigin, func(*vm.VM) error {
		id, err := s.entityArg(0)
		if err != nil {
			return err
		}
		org, err := s.vectorArg(1)
		if err != nil {
			return err
		}
		e, err := s.world.Entity(id)
		if err != nil {
			return err
		}
		return e.SetVector(s.origin, org)
	})
}
