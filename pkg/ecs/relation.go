package ecs

import (
	"reflect"
	"slices"

	"github.com/argus-labs/ecstore/pkg/assert"
	"github.com/kamstrup/intmap"
	"github.com/kelindar/bitmap"
	"github.com/rotisserie/eris"
)

// relationStore is the type-erased view of a relation table used for entity cleanup.
type relationStore interface {
	removeEntity(id EntityID) int
	holders() []EntityID
	len() int
}

// relationValues is implemented by every relation table holding T, whatever its key type.
type relationValues[T Component] interface {
	relationStore
	valuesOf(id EntityID) []T
}

type relationKey[K comparable] struct {
	entity EntityID
	key    K
}

// relationTable stores relation values outside the archetypes. Values live in one dense column,
// addressed by the composite (entity, key). Per-entity key lists preserve insertion order.
type relationTable[T Component, K comparable] struct {
	rows    map[relationKey[K]]int // (entity, key) -> row
	owners  []relationKey[K]       // row -> (entity, key)
	values  *column[T]
	keys    *intmap.Map[EntityID, []K]
	holding bitmap.Bitmap // Entities with at least one relation
}

var _ relationValues[scalarSample] = &relationTable[scalarSample, string]{}

func newRelationTable[T Component, K comparable]() *relationTable[T, K] {
	return &relationTable[T, K]{
		rows:   make(map[relationKey[K]]int),
		values: newColumn[T](16),
		keys:   intmap.New[EntityID, []K](64),
	}
}

// put stores value under (id, key). Returns true when the key is new for the entity and false when
// an existing value was overwritten.
func (t *relationTable[T, K]) put(id EntityID, key K, value T) bool {
	rk := relationKey[K]{entity: id, key: key}
	if row, ok := t.rows[rk]; ok {
		t.values.set(row, value)
		return false
	}

	t.values.extend()
	row := t.values.len() - 1
	t.values.set(row, value)
	t.owners = append(t.owners, rk)
	t.rows[rk] = row

	keys, _ := t.keys.Get(id)
	t.keys.Put(id, append(keys, key))
	t.holding.Set(uint32(id))
	return true
}

// delete removes (id, key). Returns false when it was not present.
func (t *relationTable[T, K]) delete(id EntityID, key K) bool {
	rk := relationKey[K]{entity: id, key: key}
	row, ok := t.rows[rk]
	if !ok {
		return false
	}
	t.removeRow(row)

	keys, _ := t.keys.Get(id)
	i := slices.Index(keys, key)
	assert.That(i >= 0, "relation key missing from entity key list")
	keys = slices.Delete(keys, i, i+1)
	if len(keys) == 0 {
		t.keys.Del(id)
		t.holding.Remove(uint32(id))
	} else {
		t.keys.Put(id, keys)
	}
	return true
}

// removeRow swap-removes a row and repoints the composite key that moved into it.
func (t *relationTable[T, K]) removeRow(row int) {
	last := len(t.owners) - 1
	delete(t.rows, t.owners[row])

	t.values.remove(row)
	t.owners[row] = t.owners[last]
	t.owners = t.owners[:last]
	if row != last {
		t.rows[t.owners[row]] = row
	}
}

func (t *relationTable[T, K]) get(id EntityID, key K) (T, bool) {
	row, ok := t.rows[relationKey[K]{entity: id, key: key}]
	if !ok {
		var zero T
		return zero, false
	}
	return t.values.get(row), true
}

func (t *relationTable[T, K]) keysOf(id EntityID) []K {
	keys, _ := t.keys.Get(id)
	return slices.Clone(keys)
}

func (t *relationTable[T, K]) valuesOf(id EntityID) []T {
	keys, ok := t.keys.Get(id)
	if !ok {
		return nil
	}
	out := make([]T, 0, len(keys))
	for _, key := range keys {
		out = append(out, t.values.get(t.rows[relationKey[K]{entity: id, key: key}]))
	}
	return out
}

func (t *relationTable[T, K]) removeEntity(id EntityID) int {
	keys, ok := t.keys.Get(id)
	if !ok {
		return 0
	}
	for _, key := range keys {
		rk := relationKey[K]{entity: id, key: key}
		row, found := t.rows[rk]
		assert.That(found, "relation key list out of sync with rows")
		t.removeRow(row)
	}
	t.keys.Del(id)
	t.holding.Remove(uint32(id))
	return len(keys)
}

func (t *relationTable[T, K]) holders() []EntityID {
	var out []EntityID
	t.holding.Range(func(x uint32) {
		out = append(out, EntityID(x))
	})
	return out
}

func (t *relationTable[T, K]) len() int {
	return len(t.owners)
}

// -------------------------------------------------------------------------------------------------
// Store integration
// -------------------------------------------------------------------------------------------------

// relationOf returns the table for st, creating it on first use.
func (s *Store) relationOf(st *SchemaType) relationStore {
	if int(st.Index) >= len(s.relations) {
		s.relations = append(s.relations, make([]relationStore, int(st.Index)+1-len(s.relations))...)
	}
	if rel := s.relations[st.Index]; rel != nil {
		return rel
	}
	rel := st.newRelation()
	s.relations[st.Index] = rel
	return rel
}

func lookupRelation(s *Store, rt reflect.Type) (*SchemaType, error) {
	s.reg.mu.RLock()
	st, ok := s.reg.byType[rt]
	s.reg.mu.RUnlock()
	if !ok {
		return nil, eris.Wrapf(ErrTypeNotRegistered, "%s", rt)
	}
	if st.caps&capRelation == 0 {
		return nil, eris.Wrapf(ErrKindConflict, "%s is not a relation", st.Name)
	}
	return st, nil
}

func relationTableOf[T Component, K comparable](
	s *Store, id EntityID,
) (*SchemaType, *relationTable[T, K], error) {
	st, err := lookupRelation(s, reflect.TypeFor[T]())
	if err != nil {
		return nil, nil, err
	}
	if !s.Alive(id) {
		return nil, nil, eris.Wrapf(ErrEntityNotFound, "entity %d", id)
	}
	table, ok := s.relationOf(st).(*relationTable[T, K])
	if !ok {
		return nil, nil, eris.Wrapf(ErrKindConflict, "relation %s is keyed by %s", st.Name, st.keyType)
	}
	return st, table, nil
}

// AddRelation stores value under key for the entity. An existing value with the same key is
// overwritten.
func AddRelation[T Component, K comparable](s *Store, id EntityID, key K, value T) error {
	if err := s.checkMutable(); err != nil {
		return err
	}
	st, table, err := relationTableOf[T, K](s, id)
	if err != nil {
		return err
	}
	action := ActionChanged
	if table.put(id, key, value) {
		action = ActionAdded
	}
	s.emit(ChangeEvent{Entity: id, Action: action, Kind: KindComponent, Type: st.Index, Relation: true})
	return nil
}

// RemoveRelation removes the value stored under key. A missing key is a no-op.
func RemoveRelation[T Component, K comparable](s *Store, id EntityID, key K) error {
	if err := s.checkMutable(); err != nil {
		return err
	}
	st, table, err := relationTableOf[T, K](s, id)
	if err != nil {
		return err
	}
	if table.delete(id, key) {
		s.emit(ChangeEvent{Entity: id, Action: ActionRemoved, Kind: KindComponent, Type: st.Index, Relation: true})
	}
	return nil
}

// GetRelation returns the value stored under key.
func GetRelation[T Component, K comparable](s *Store, id EntityID, key K) (T, bool) {
	_, table, err := relationTableOf[T, K](s, id)
	if err != nil {
		var zero T
		return zero, false
	}
	return table.get(id, key)
}

// GetRelations returns every relation value of type T on the entity, in insertion order of their
// keys. A dead entity or one without relations returns nil.
func GetRelations[T Component](s *Store, id EntityID) []T {
	st, err := lookupRelation(s, reflect.TypeFor[T]())
	if err != nil || !s.Alive(id) {
		return nil
	}
	values, ok := s.relationOf(st).(relationValues[T])
	assert.That(ok, "relation table of %s does not hold %T", st.Name, *new(T))
	return values.valuesOf(id)
}

// RelationKeys returns the keys of every relation of type T on the entity.
func RelationKeys[T Component, K comparable](s *Store, id EntityID) []K {
	_, table, err := relationTableOf[T, K](s, id)
	if err != nil {
		return nil
	}
	return table.keysOf(id)
}

// EntitiesWithRelation returns every entity holding at least one relation of type T, ascending.
func EntitiesWithRelation[T Component](s *Store) []EntityID {
	st, err := lookupRelation(s, reflect.TypeFor[T]())
	if err != nil {
		return nil
	}
	return s.relationOf(st).holders()
}
