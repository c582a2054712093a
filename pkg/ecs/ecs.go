package ecs

import (
	"reflect"

	"github.com/rotisserie/eris"
)

// AddComponent adds a component to an entity and moves it to the archetype of its new signature.
// If the entity already has T the value is written in place and no move happens.
func AddComponent[T Component](s *Store, id EntityID, value T) error {
	st, rec, err := resolveComponent[T](s, id)
	if err != nil {
		return err
	}
	if rec.arch.sig.HasComponent(st.Index) {
		writeComponent(s, id, rec, st, value)
		return nil
	}

	dst := s.archetypeFor(rec.arch.sig.With(st.Member()))
	slot := s.move(id, rec, dst)
	typedColumn[T](dst, st.Index).set(slot, value)
	if st.indexed() {
		indexInsertTyped(s, id, st, value)
	}

	s.emit(ChangeEvent{Entity: id, Action: ActionAdded, Kind: KindComponent, Type: st.Index})
	return nil
}

// SetComponent overwrites the value of a component the entity already has. No structural change
// happens; indexes are updated when T is indexed.
func SetComponent[T Component](s *Store, id EntityID, value T) error {
	st, rec, err := resolveComponent[T](s, id)
	if err != nil {
		return err
	}
	if !rec.arch.sig.HasComponent(st.Index) {
		return eris.Wrapf(ErrComponentNotOnEntity, "entity %d, component %s", id, st.Name)
	}
	writeComponent(s, id, rec, st, value)
	return nil
}

// GetComponent returns a copy of an entity's component.
func GetComponent[T Component](s *Store, id EntityID) (T, error) {
	var zero T
	st, err := s.reg.lookupType(reflect.TypeFor[T](), KindComponent)
	if err != nil {
		return zero, err
	}
	rec, ok := s.entities.get(id)
	if !ok {
		return zero, eris.Wrapf(ErrEntityNotFound, "entity %d", id)
	}
	if !rec.arch.sig.HasComponent(st.Index) {
		return zero, eris.Wrapf(ErrComponentNotOnEntity, "entity %d, component %s", id, st.Name)
	}
	return typedColumn[T](rec.arch, st.Index).get(rec.slot), nil
}

// HasComponent reports whether a live entity has T. Unknown types and dead ids report false.
func HasComponent[T Component](s *Store, id EntityID) bool {
	st, err := s.reg.lookupType(reflect.TypeFor[T](), KindComponent)
	if err != nil {
		return false
	}
	rec, ok := s.entities.get(id)
	return ok && rec.arch.sig.HasComponent(st.Index)
}

// RemoveComponent removes T from an entity and moves it to the archetype of its new signature.
// Removing a component the entity does not have is a no-op.
func RemoveComponent[T Component](s *Store, id EntityID) error {
	st, rec, err := resolveComponent[T](s, id)
	if err != nil {
		return err
	}
	if !rec.arch.sig.HasComponent(st.Index) {
		return nil
	}

	var old T
	if st.indexed() {
		old = typedColumn[T](rec.arch, st.Index).get(rec.slot)
	}
	s.move(id, rec, s.archetypeFor(rec.arch.sig.Without(st.Member())))
	if st.indexed() {
		indexDeleteTyped(s, id, st, old)
	}

	s.emit(ChangeEvent{Entity: id, Action: ActionRemoved, Kind: KindComponent, Type: st.Index})
	return nil
}

// AddTag adds tag T to an entity. Adding a tag the entity already has is a no-op.
func AddTag[T Tag](s *Store, id EntityID) error {
	st, rec, err := resolveTag[T](s, id)
	if err != nil {
		return err
	}
	if rec.arch.sig.HasTag(st.Index) {
		return nil
	}
	s.move(id, rec, s.archetypeFor(rec.arch.sig.With(st.Member())))
	s.emit(ChangeEvent{Entity: id, Action: ActionAdded, Kind: KindTag, Type: st.Index})
	return nil
}

// RemoveTag removes tag T from an entity. Removing a tag the entity does not have is a no-op.
func RemoveTag[T Tag](s *Store, id EntityID) error {
	st, rec, err := resolveTag[T](s, id)
	if err != nil {
		return err
	}
	if !rec.arch.sig.HasTag(st.Index) {
		return nil
	}
	s.move(id, rec, s.archetypeFor(rec.arch.sig.Without(st.Member())))
	s.emit(ChangeEvent{Entity: id, Action: ActionRemoved, Kind: KindTag, Type: st.Index})
	return nil
}

// HasTag reports whether a live entity has tag T.
func HasTag[T Tag](s *Store, id EntityID) bool {
	st, err := s.reg.lookupType(reflect.TypeFor[T](), KindTag)
	if err != nil {
		return false
	}
	rec, ok := s.entities.get(id)
	return ok && rec.arch.sig.HasTag(st.Index)
}

// -------------------------------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------------------------------

func resolveComponent[T Component](s *Store, id EntityID) (*SchemaType, *residency, error) {
	if err := s.checkMutable(); err != nil {
		return nil, nil, err
	}
	st, err := s.reg.lookupType(reflect.TypeFor[T](), KindComponent)
	if err != nil {
		return nil, nil, err
	}
	rec, ok := s.entities.get(id)
	if !ok {
		return nil, nil, eris.Wrapf(ErrEntityNotFound, "entity %d", id)
	}
	return st, rec, nil
}

func resolveTag[T Tag](s *Store, id EntityID) (*SchemaType, *residency, error) {
	if err := s.checkMutable(); err != nil {
		return nil, nil, err
	}
	st, err := s.reg.lookupType(reflect.TypeFor[T](), KindTag)
	if err != nil {
		return nil, nil, err
	}
	rec, ok := s.entities.get(id)
	if !ok {
		return nil, nil, eris.Wrapf(ErrEntityNotFound, "entity %d", id)
	}
	return st, rec, nil
}

// writeComponent overwrites a component in place, keeping the index in step with the column.
func writeComponent[T Component](s *Store, id EntityID, rec *residency, st *SchemaType, value T) {
	col := typedColumn[T](rec.arch, st.Index)
	if st.indexed() {
		old := col.get(rec.slot)
		col.set(rec.slot, value)
		indexDeleteTyped(s, id, st, old)
		indexInsertTyped(s, id, st, value)
	} else {
		col.set(rec.slot, value)
	}

	if s.opts.SetNotify.notifies(st) {
		s.emit(ChangeEvent{Entity: id, Action: ActionChanged, Kind: KindComponent, Type: st.Index})
	}
}
