package world

import "github.com/chazu/qcvm/vm"

// Entity is a typed view of one slot. It does not keep the slot alive;
// every accessor fails once the entity is removed.
type Entity struct {
	w  *World
	ID vm.EntityID
}

// Entity returns a view of a live entity.
func (w *World) Entity(id vm.EntityID) (Entity, error) {
	if _, err := w.cells(id); err != nil {
		return Entity{}, err
	}
	return Entity{w: w, ID: id}, nil
}

func (e Entity) Float(fld vm.FieldAddr) (float32, error) {
	v, err := e.w.ReadField(e.ID, fld, vm.TypeFloat)
	return v.Float(), err
}

func (e Entity) SetFloat(fld vm.FieldAddr, f float32) error {
	return e.w.WriteField(e.ID, fld, vm.TypeFloat, vm.FloatValue(f))
}

func (e Entity) Vector(fld vm.FieldAddr) (vm.Vector, error) {
	v, err := e.w.ReadField(e.ID, fld, vm.TypeVector)
	return v.Vector(), err
}

func (e Entity) SetVector(fld vm.FieldAddr, v vm.Vector) error {
	return e.w.WriteField(e.ID, fld, vm.TypeVector, vm.VectorValue(v))
}

func (e Entity) StringID(fld vm.FieldAddr) (vm.StringID, error) {
	v, err := e.w.ReadField(e.ID, fld, vm.TypeString)
	return v.StringID(), err
}

func (e Entity) SetStringID(fld vm.FieldAddr, id vm.StringID) error {
	return e.w.WriteField(e.ID, fld, vm.TypeString, vm.StringValue(id))
}

func (e Entity) EntityID(fld vm.FieldAddr) (vm.EntityID, error) {
	v, err := e.w.ReadField(e.ID, fld, vm.TypeEntity)
	return v.EntityID(), err
}

func (e Entity) SetEntityID(fld vm.FieldAddr, id vm.EntityID) error {
	return e.w.WriteField(e.ID, fld, vm.TypeEntity, vm.EntityValue(id))
}

func (e Entity) FunctionID(fld vm.FieldAddr) (vm.FunctionID, error) {
	v, err := e.w.ReadField(e.ID, fld, vm.TypeFunction)
	return v.FunctionID(), err
}

func (e Entity) SetFunctionID(fld vm.FieldAddr, id vm.FunctionID) error {
	return e.w.WriteField(e.ID, fld, vm.TypeFunction, vm.FunctionValue(id))
}
