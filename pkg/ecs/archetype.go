package ecs

import (
	"github.com/argus-labs/ecstore/pkg/assert"
)

// archetypeID is the position of an archetype in the store's archetype list.
type archetypeID = int

// archetype holds every entity whose signature is exactly sig. Component data is stored column per
// component type, parallel to the entities slice: row i of every column belongs to entities[i].
// Archetypes are never destroyed; an empty archetype keeps its allocations for the next entity.
type archetype struct {
	id       archetypeID
	sig      *Signature
	entities []EntityID
	columns  []abstractColumn // One per component of sig, in sig.components order
	slots    sparseSet        // Component index -> position in columns
}

// newArchetype creates an empty archetype for sig. Columns are built from the registry factories.
func newArchetype(aid archetypeID, sig *Signature, reg *Registry, capacity int) *archetype {
	a := &archetype{
		id:       aid,
		sig:      sig,
		entities: make([]EntityID, 0, max(capacity, 1)),
		columns:  make([]abstractColumn, len(sig.components)),
		slots:    newSparseSet(0),
	}
	for i, cid := range sig.components {
		st := reg.component(cid)
		assert.That(st.newColumn != nil, "component %s has no column factory", st.Name)
		a.columns[i] = st.newColumn(capacity)
		a.slots.set(cid, i)
	}
	return a
}

func (a *archetype) len() int {
	return len(a.entities)
}

// column returns the column for a component index.
func (a *archetype) column(cid uint32) (abstractColumn, bool) {
	i, ok := a.slots.get(cid)
	if !ok {
		return nil, false
	}
	return a.columns[i], true
}

// typedColumn returns the concrete column for T. Expects the archetype to hold the component.
func typedColumn[T Component](a *archetype, cid uint32) *column[T] {
	col, ok := a.column(cid)
	assert.That(ok, "archetype %d has no column for component %d", a.id, cid)
	typed, ok := col.(*column[T])
	assert.That(ok, "column for component %d is %T", cid, col)
	return typed
}

// -------------------------------------------------------------------------------------------------
// Slot operations
// -------------------------------------------------------------------------------------------------

// addEntity appends a slot for eid with zero component values and returns it.
func (a *archetype) addEntity(eid EntityID) int {
	a.entities = append(a.entities, eid)
	for _, col := range a.columns {
		col.extend()
		assert.That(col.len() == len(a.entities), "column length doesn't match entities")
	}
	return len(a.entities) - 1
}

// removeSlot swap-removes slot and returns the entity that was moved into it. The caller owns the
// residency records and must repoint the moved entity. ok is false when slot was the last one and
// nothing moved.
func (a *archetype) removeSlot(slot int) (moved EntityID, ok bool) {
	assert.That(slot >= 0 && slot < len(a.entities), "slot %d out of range %d", slot, len(a.entities))

	last := len(a.entities) - 1
	a.entities[slot] = a.entities[last]
	a.entities = a.entities[:last]

	for _, col := range a.columns {
		col.remove(slot)
		assert.That(col.len() == len(a.entities), "column length doesn't match entities")
	}

	if slot == last {
		return 0, false
	}
	return a.entities[slot], true
}

// copyComponentsTo copies every component the two archetypes share from slot into dst at dstSlot.
func (a *archetype) copyComponentsTo(slot int, dst *archetype, dstSlot int) {
	for i, cid := range a.sig.components {
		j, ok := dst.slots.get(cid)
		if !ok {
			continue
		}
		a.columns[i].copyTo(slot, dst.columns[j], dstSlot)
	}
}
