package ecs

import (
	"reflect"

	"github.com/argus-labs/ecstore/pkg/assert"
	"github.com/kamstrup/intmap"
	"github.com/kelindar/bitmap"
	"github.com/rotisserie/eris"
)

// componentIndex is the capability every index variant implements. Values arrive boxed when the
// store does not know the component type, for example while deleting an entity.
//
// Adding a pair that is already present and removing one that is absent are no-ops that return
// false. The index is derived from component storage, so it never fails on its own.
type componentIndex interface {
	addAbstract(id EntityID, value any) bool
	removeAbstract(id EntityID, value any) bool
	keyedAbstract(value any) bool
}

// typedIndex is the unboxed path used by the generic store operations.
type typedIndex[T Component] interface {
	componentIndex
	add(id EntityID, value T) bool
	remove(id EntityID, value T) bool
	// keyed reports whether the value produces an index entry at all.
	keyed(value T) bool
}

// idSet is a compact set of entity ids with an O(1) size.
type idSet struct {
	bits bitmap.Bitmap
	n    int
}

func (s *idSet) add(id EntityID) bool {
	if s.bits.Contains(uint32(id)) {
		return false
	}
	s.bits.Set(uint32(id))
	s.n++
	return true
}

func (s *idSet) remove(id EntityID) bool {
	if !s.bits.Contains(uint32(id)) {
		return false
	}
	s.bits.Remove(uint32(id))
	s.n--
	return true
}

// ids returns the members in ascending order.
func (s *idSet) ids() []EntityID {
	out := make([]EntityID, 0, s.n)
	s.bits.Range(func(x uint32) {
		out = append(out, EntityID(x))
	})
	return out
}

// -------------------------------------------------------------------------------------------------
// Value index
// -------------------------------------------------------------------------------------------------

// valueIndex maps each distinct component value to the entities holding it. Used for scalar and
// user value categories. Values that do not equal themselves (NaN) are not keyed, since a map
// lookup can never find them again.
type valueIndex[T IndexedComponent] struct {
	sets map[T]*idSet
}

var _ typedIndex[scalarSample] = &valueIndex[scalarSample]{}

func newValueIndex[T IndexedComponent]() *valueIndex[T] {
	return &valueIndex[T]{sets: make(map[T]*idSet)}
}

func (ix *valueIndex[T]) add(id EntityID, value T) bool {
	if !ix.keyed(value) {
		return false
	}
	set, ok := ix.sets[value]
	if !ok {
		set = &idSet{}
		ix.sets[value] = set
	}
	return set.add(id)
}

func (ix *valueIndex[T]) remove(id EntityID, value T) bool {
	set, ok := ix.sets[value]
	if !ok || !set.remove(id) {
		return false
	}
	if set.n == 0 {
		delete(ix.sets, value)
	}
	return true
}

func (ix *valueIndex[T]) keyed(value T) bool {
	return value == value //nolint:gocritic,staticcheck // false only for NaN
}

func (ix *valueIndex[T]) lookup(value T) []EntityID {
	set, ok := ix.sets[value]
	if !ok {
		return nil
	}
	return set.ids()
}

func (ix *valueIndex[T]) addAbstract(id EntityID, value any) bool {
	return ix.add(id, value.(T)) //nolint:forcetypeassert // column type is fixed per index
}

func (ix *valueIndex[T]) removeAbstract(id EntityID, value any) bool {
	return ix.remove(id, value.(T)) //nolint:forcetypeassert // column type is fixed per index
}

func (ix *valueIndex[T]) keyedAbstract(value any) bool {
	return ix.keyed(value.(T)) //nolint:forcetypeassert // column type is fixed per index
}

// -------------------------------------------------------------------------------------------------
// Back-reference index
// -------------------------------------------------------------------------------------------------

// refIndex maps a referenced entity to the set of entities whose component points at it.
type refIndex[T Component] struct {
	ref       func(T) (EntityID, bool)
	referrers *intmap.Map[EntityID, *idSet]
}

var _ typedIndex[scalarSample] = &refIndex[scalarSample]{}

func newRefIndex[T Component](ref func(T) (EntityID, bool)) *refIndex[T] {
	return &refIndex[T]{
		ref:       ref,
		referrers: intmap.New[EntityID, *idSet](64),
	}
}

func (ix *refIndex[T]) add(id EntityID, value T) bool {
	target, ok := ix.ref(value)
	if !ok {
		return false
	}
	set, found := ix.referrers.Get(target)
	if !found {
		set = &idSet{}
		ix.referrers.Put(target, set)
	}
	return set.add(id)
}

func (ix *refIndex[T]) remove(id EntityID, value T) bool {
	target, ok := ix.ref(value)
	if !ok {
		return false
	}
	set, found := ix.referrers.Get(target)
	if !found || !set.remove(id) {
		return false
	}
	if set.n == 0 {
		ix.referrers.Del(target)
	}
	return true
}

func (ix *refIndex[T]) keyed(value T) bool {
	_, ok := ix.ref(value)
	return ok
}

func (ix *refIndex[T]) referencing(target EntityID) []EntityID {
	set, ok := ix.referrers.Get(target)
	if !ok {
		return nil
	}
	return set.ids()
}

// detach drops the entry of target and returns the entities that referenced it.
func (ix *refIndex[T]) detach(target EntityID) []EntityID {
	set, ok := ix.referrers.Get(target)
	if !ok {
		return nil
	}
	ix.referrers.Del(target)
	return set.ids()
}

func (ix *refIndex[T]) addAbstract(id EntityID, value any) bool {
	return ix.add(id, value.(T)) //nolint:forcetypeassert // column type is fixed per index
}

func (ix *refIndex[T]) removeAbstract(id EntityID, value any) bool {
	return ix.remove(id, value.(T)) //nolint:forcetypeassert // column type is fixed per index
}

func (ix *refIndex[T]) keyedAbstract(value any) bool {
	return ix.keyed(value.(T)) //nolint:forcetypeassert // column type is fixed per index
}

// referenceIndex is implemented by the back-reference index regardless of its component type.
type referenceIndex interface {
	detach(target EntityID) []EntityID
}

var _ referenceIndex = &refIndex[scalarSample]{}

// scalarSample only exists for the interface assertions above.
type scalarSample int

func (scalarSample) Name() string { return "" }

// -------------------------------------------------------------------------------------------------
// Store integration
// -------------------------------------------------------------------------------------------------

// indexOf returns the index for st, creating it on first use.
func (s *Store) indexOf(st *SchemaType) componentIndex {
	assert.That(st.indexed(), "component %s is not indexed", st.Name)
	if int(st.Index) >= len(s.indexes) {
		s.indexes = append(s.indexes, make([]componentIndex, int(st.Index)+1-len(s.indexes))...)
	}
	if ix := s.indexes[st.Index]; ix != nil {
		return ix
	}

	ix := st.newIndex()
	s.indexes[st.Index] = ix
	if int(st.indexSlot) >= len(s.indexed) {
		s.indexed = append(s.indexed, make([]*SchemaType, int(st.indexSlot)+1-len(s.indexed))...)
	}
	s.indexed[st.indexSlot] = st
	return ix
}

func typedIndexOf[T Component](s *Store, st *SchemaType) typedIndex[T] {
	ix, ok := s.indexOf(st).(typedIndex[T])
	assert.That(ok, "index of %s does not hold %T", st.Name, *new(T))
	return ix
}

// indexInsert adds a boxed value to the index of st.
func (s *Store) indexInsert(id EntityID, st *SchemaType, value any) {
	ix := s.indexOf(st)
	if !ix.keyedAbstract(value) {
		return
	}
	if !ix.addAbstract(id, value) {
		s.logIndexViolation(id, st, "entity already indexed under value")
	}
	s.markIndexed(id, st.indexSlot)
}

func indexInsertTyped[T Component](s *Store, id EntityID, st *SchemaType, value T) {
	ix := typedIndexOf[T](s, st)
	if !ix.keyed(value) {
		return
	}
	if !ix.add(id, value) {
		s.logIndexViolation(id, st, "entity already indexed under value")
	}
	s.markIndexed(id, st.indexSlot)
}

func indexDeleteTyped[T Component](s *Store, id EntityID, st *SchemaType, value T) {
	ix := typedIndexOf[T](s, st)
	if !ix.keyed(value) {
		return
	}
	if !ix.remove(id, value) {
		s.logIndexViolation(id, st, "old value missing from index")
	}
	s.unmarkIndexed(id, st.indexSlot)
}

// unindexEntity drops every index entry of an entity that is about to be deleted. Only the indexes
// recorded in the entity's membership mask are visited.
func (s *Store) unindexEntity(id EntityID, rec *residency) {
	if int(id) >= len(s.membership) {
		return
	}
	mask := s.membership[id]
	var slots []uint32
	mask.Range(func(slot uint32) {
		slots = append(slots, slot)
	})
	for _, slot := range slots {
		st := s.indexed[slot]
		col, ok := rec.arch.column(st.Index)
		if !ok {
			s.logIndexViolation(id, st, "indexed entity lacks the component")
			continue
		}
		if !s.indexOf(st).removeAbstract(id, col.getAbstract(rec.slot)) {
			s.logIndexViolation(id, st, "current value missing from index")
		}
	}
	s.membership[id].Clear()
}

// dropReferencesTo removes the entity reference components that point at a deleted entity. The
// referrers move to the archetype without the component and each emits ActionRemoved.
func (s *Store) dropReferencesTo(target EntityID) {
	for _, st := range s.indexed {
		if st == nil {
			continue
		}
		ix, ok := s.indexes[st.Index].(referenceIndex)
		if !ok {
			continue
		}
		for _, id := range ix.detach(target) {
			rec, alive := s.entities.get(id)
			if !alive || !rec.arch.sig.HasComponent(st.Index) {
				s.logIndexViolation(id, st, "referrer lacks the component")
				continue
			}
			s.move(id, rec, s.archetypeFor(rec.arch.sig.Without(st.Member())))
			s.unmarkIndexed(id, st.indexSlot)
			s.emit(ChangeEvent{Entity: id, Action: ActionRemoved, Kind: KindComponent, Type: st.Index})
		}
	}
}

func (s *Store) markIndexed(id EntityID, slot uint32) {
	if int(id) >= len(s.membership) {
		s.membership = append(s.membership, make([]bitmap.Bitmap, int(id)+1-len(s.membership))...)
	}
	s.membership[id].Set(slot)
}

func (s *Store) unmarkIndexed(id EntityID, slot uint32) {
	if int(id) < len(s.membership) {
		s.membership[id].Remove(slot)
	}
}

func (s *Store) logIndexViolation(id EntityID, st *SchemaType, msg string) {
	s.logger.Warn().
		Uint32("entity", uint32(id)).
		Str("component", st.Name).
		Msg(msg)
}

// IsIndexed reports whether any index currently holds the entity.
func (s *Store) IsIndexed(id EntityID) bool {
	if int(id) >= len(s.membership) {
		return false
	}
	_, ok := s.membership[id].Min()
	return ok
}

// Lookup returns the entities whose indexed component T currently equals value, in ascending id
// order. No match returns an empty result.
func Lookup[T IndexedComponent](s *Store, value T) ([]EntityID, error) {
	st, err := lookupIndexed[T](s)
	if err != nil {
		return nil, err
	}
	ix, ok := s.indexOf(st).(*valueIndex[T])
	if !ok {
		return nil, eris.Errorf("component %s is not value indexed", st.Name)
	}
	return ix.lookup(value), nil
}

// Referencing returns the entities whose entity reference component T points at target. Deleting
// target removes T from every entity that pointed at it, so the answer for a reused id only holds
// references made after the reuse.
func Referencing[T Component](s *Store, target EntityID) ([]EntityID, error) {
	st, err := lookupIndexed[T](s)
	if err != nil {
		return nil, err
	}
	ix, ok := s.indexOf(st).(*refIndex[T])
	if !ok {
		return nil, eris.Errorf("component %s is not an entity reference", st.Name)
	}
	return ix.referencing(target), nil
}

func lookupIndexed[T Component](s *Store) (*SchemaType, error) {
	st, err := s.reg.lookupType(reflect.TypeFor[T](), KindComponent)
	if err != nil {
		return nil, err
	}
	if !st.indexed() {
		return nil, eris.Errorf("component %s is not indexed", st.Name)
	}
	return st, nil
}
