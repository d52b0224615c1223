// Package snapshot captures and restores the complete mutable state of a
// VM and its world. Encodings are canonical CBOR so that equal states
// always produce equal bytes and equal digests.
package snapshot

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/xxh3"

	"github.com/chazu/qcvm/vm"
	"github.com/chazu/qcvm/world"
)

// Version is the encoding version written by Marshal.
const Version = 1

// ErrBusy is returned by Restore while a program is running.
var ErrBusy = errors.New("snapshot: vm is executing")

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("snapshot: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Snapshot is the state between two top-level calls: global cells, the
// string blob (built-ins may intern new strings) and every live entity.
type Snapshot struct {
	Version  uint8    `cbor:"1,keyasint"`
	Globals  []uint32 `cbor:"2,keyasint"`
	Strings  []byte   `cbor:"3,keyasint"`
	Entities []Entity `cbor:"4,keyasint"`
}

// Entity is one live entity's cells.
type Entity struct {
	ID    int32    `cbor:"1,keyasint"`
	Cells []uint32 `cbor:"2,keyasint"`
}

// Take copies the current state. w may be nil for hosts without a world.
func Take(m *vm.VM, w *world.World) *Snapshot {
	s := &Snapshot{
		Version: Version,
		Globals: m.Globals().Cells(),
		Strings: m.Strings().Bytes(),
	}
	if w != nil {
		for _, e := range w.Cells() {
			s.Entities = append(s.Entities, Entity{ID: int32(e.ID), Cells: e.Cells})
		}
	}
	return s
}

// Marshal serializes the snapshot to canonical CBOR.
func (s *Snapshot) Marshal() ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// Unmarshal deserializes a snapshot written by Marshal.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal: %w", err)
	}
	if s.Version != Version {
		return nil, fmt.Errorf("snapshot: unsupported version %d", s.Version)
	}
	return &s, nil
}

// Digest is the xxh3 hash of the canonical encoding.
func (s *Snapshot) Digest() (uint64, error) {
	data, err := s.Marshal()
	if err != nil {
		return 0, err
	}
	return xxh3.Hash(data), nil
}

// Restore writes the snapshot back. The VM must be idle. Nothing is changed
// if the snapshot does not fit the VM or the world.
func (s *Snapshot) Restore(m *vm.VM, w *world.World) error {
	if m.Depth() != 0 {
		return ErrBusy
	}
	if n := m.Globals().Len(); len(s.Globals) != n {
		return fmt.Errorf("snapshot: %d global cells, vm has %d", len(s.Globals), n)
	}
	if len(s.Strings) == 0 || s.Strings[0] != 0 || s.Strings[len(s.Strings)-1] != 0 {
		return fmt.Errorf("snapshot: %w: malformed string blob", vm.ErrInvalidString)
	}
	if w == nil && len(s.Entities) > 0 {
		return fmt.Errorf("snapshot: %d entities but no world", len(s.Entities))
	}

	if w != nil {
		states := make([]world.EntityState, len(s.Entities))
		for i, e := range s.Entities {
			states[i] = world.EntityState{ID: vm.EntityID(e.ID), Cells: e.Cells}
		}
		if err := w.Restore(states); err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
	}
	if err := m.Globals().Restore(s.Globals); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := m.Strings().Restore(s.Strings); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}
