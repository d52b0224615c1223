// Package world is an in-memory entity store for hosts and tests. It keeps
// a fixed array of entity slots, each holding FieldCount cells, and checks
// every access against the program's field definitions.
package world

import (
	"errors"
	"fmt"

	"github.com/chazu/qcvm/vm"
)

// DefaultMaxEntities is the slot count used when New is given zero.
const DefaultMaxEntities = 600

// ErrNoFreeEntities is returned by Spawn when every slot is occupied.
var ErrNoFreeEntities = errors.New("no free entity slots")

type slot struct {
	live  bool
	cells []uint32
}

// World implements vm.EntityStore. Entity 0 is the world entity; it is
// always live and cannot be removed.
type World struct {
	fields *vm.FieldTable
	slots  []slot
	live   int
}

var _ vm.EntityStore = (*World)(nil)

// New creates a world with size slots for the given fields. size <= 0 selects
// DefaultMaxEntities.
func New(fields *vm.FieldTable, size int) *World {
	if size <= 0 {
		size = DefaultMaxEntities
	}
	w := &World{fields: fields, slots: make([]slot, size)}
	w.slots[0] = slot{live: true, cells: make([]uint32, fields.Count())}
	w.live = 1
	return w
}

// Max returns the number of slots.
func (w *World) Max() int { return len(w.slots) }

// Len returns the number of live entities, including the world.
func (w *World) Len() int { return w.live }

// Fields returns the field table the world was built for.
func (w *World) Fields() *vm.FieldTable { return w.fields }

// Alive reports whether id names a live entity.
func (w *World) Alive(id vm.EntityID) bool {
	return id >= 0 && int(id) < len(w.slots) && w.slots[id].live
}

// Spawn allocates the lowest free slot with all fields zeroed.
func (w *World) Spawn() (vm.EntityID, error) {
	for i := 1; i < len(w.slots); i++ {
		s := &w.slots[i]
		if s.live {
			continue
		}
		if s.cells == nil {
			s.cells = make([]uint32, w.fields.Count())
		} else {
			clear(s.cells)
		}
		s.live = true
		w.live++
		return vm.EntityID(i), nil
	}
	return 0, fmt.Errorf("%w (%d)", ErrNoFreeEntities, len(w.slots))
}

// Remove frees an entity. Removing a free slot does nothing; removing the
// world is an error.
func (w *World) Remove(id vm.EntityID) error {
	if id == 0 {
		return fmt.Errorf("%w: cannot remove the world entity", vm.ErrInvalidEntity)
	}
	if id < 0 || int(id) >= len(w.slots) {
		return fmt.Errorf("%w: entity %d (max %d)", vm.ErrInvalidEntity, id, len(w.slots))
	}
	if w.slots[id].live {
		w.slots[id].live = false
		w.live--
	}
	return nil
}

// Each calls fn for every live entity in id order until fn returns false.
func (w *World) Each(fn func(vm.EntityID) bool) {
	for i := range w.slots {
		if w.slots[i].live && !fn(vm.EntityID(i)) {
			return
		}
	}
}

func (w *World) cells(id vm.EntityID) ([]uint32, error) {
	if id < 0 || int(id) >= len(w.slots) {
		return nil, fmt.Errorf("%w: entity %d (max %d)", vm.ErrInvalidEntity, id, len(w.slots))
	}
	if !w.slots[id].live {
		return nil, fmt.Errorf("%w: entity %d is free", vm.ErrInvalidEntity, id)
	}
	return w.slots[id].cells, nil
}

// ReadField implements vm.EntityStore.
func (w *World) ReadField(ent vm.EntityID, fld vm.FieldAddr, t vm.Type) (vm.Value, error) {
	cells, err := w.cells(ent)
	if err != nil {
		return vm.Value{}, err
	}
	if err := w.fields.TypeCheck(fld, t); err != nil {
		return vm.Value{}, fmt.Errorf("entity %d: %w", ent, err)
	}
	v := vm.Value{Type: t}
	copy(v.Cells[:t.Width()], cells[fld:])
	return v, nil
}

// WriteField implements vm.EntityStore.
func (w *World) WriteField(ent vm.EntityID, fld vm.FieldAddr, t vm.Type, v vm.Value) error {
	cells, err := w.cells(ent)
	if err != nil {
		return err
	}
	if err := w.fields.TypeCheck(fld, t); err != nil {
		return fmt.Errorf("entity %d: %w", ent, err)
	}
	copy(cells[fld:int(fld)+t.Width()], v.Cells[:t.Width()])
	return nil
}

// Field resolves a field name to its offset.
func (w *World) Field(name string) (vm.FieldAddr, error) {
	d, err := w.fields.ByName(name)
	if err != nil {
		return 0, err
	}
	return vm.FieldAddr(d.Offset), nil
}

// ---------------------------------------------------------------------------
// Snapshots
// ---------------------------------------------------------------------------

// EntityState is the raw content of one live entity.
type EntityState struct {
	ID    vm.EntityID
	Cells []uint32
}

// Cells returns a copy of every live entity in id order.
func (w *World) Cells() []EntityState {
	out := make([]EntityState, 0, w.live)
	w.Each(func(id vm.EntityID) bool {
		out = append(out, EntityState{ID: id, Cells: append([]uint32(nil), w.slots[id].cells...)})
		return true
	})
	return out
}

// Restore replaces the world's content with states. Entities absent from
// states become free; the world entity stays live (zeroed if absent).
// On error the world is left unchanged.
func (w *World) Restore(states []EntityState) error {
	n := w.fields.Count()
	seen := make(map[vm.EntityID]bool, len(states))
	for _, s := range states {
		if s.ID < 0 || int(s.ID) >= len(w.slots) {
			return fmt.Errorf("%w: entity %d (max %d)", vm.ErrInvalidEntity, s.ID, len(w.slots))
		}
		if len(s.Cells) != n {
			return fmt.Errorf("%w: entity %d has %d cells, want %d", vm.ErrInvalidField, s.ID, len(s.Cells), n)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: entity %d restored twice", vm.ErrInvalidEntity, s.ID)
		}
		seen[s.ID] = true
	}

	for i := range w.slots {
		w.slots[i].live = false
	}
	w.slots[0] = slot{live: true, cells: make([]uint32, n)}
	w.live = 1
	for _, s := range states {
		sl := &w.slots[s.ID]
		sl.cells = append(sl.cells[:0], s.Cells...)
		if !sl.live {
			sl.live = true
			w.live++
		}
	}
	return nil
}
