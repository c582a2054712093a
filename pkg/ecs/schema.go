package ecs

import (
	"reflect"
	"sync"

	"github.com/argus-labs/ecstore/pkg/ecs/filter"
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

// Component is a fixed-size value block attached to entities. The name must be unique within a
// registry and is what the query language refers to.
type Component interface {
	Name() string
}

// IndexedComponent is a component whose values are kept in an inverted value index.
type IndexedComponent interface {
	comparable
	Component
}

// Tag is a marker kind. Tags take part in signatures but carry no column.
type Tag interface {
	Name() string
}

// Script is an attached behavior kind. The store only assigns it an identity.
type Script interface {
	Name() string
}

// Member identifies one component or tag kind inside a signature.
type Member = filter.Member

// Kind is the category of a registered type.
type Kind uint8

const (
	KindComponent Kind = iota + 1
	KindTag
	KindScript
)

func (k Kind) String() string {
	switch k {
	case KindComponent:
		return "component"
	case KindTag:
		return "tag"
	case KindScript:
		return "script"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ValueCategory is the closed set of component value shapes that indexes know how to handle.
type ValueCategory uint8

const (
	// CategoryUser is an arbitrary struct value.
	CategoryUser ValueCategory = iota
	// CategoryScalar is a component whose underlying type is a number, bool or string.
	CategoryScalar
	// CategoryEntityRef is a component whose value is a reference to another entity.
	CategoryEntityRef
)

func (c ValueCategory) String() string {
	switch c {
	case CategoryUser:
		return "user"
	case CategoryScalar:
		return "scalar"
	case CategoryEntityRef:
		return "entity_ref"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c ValueCategory) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

type capability uint8

const (
	capIndexed capability = 1 << iota
	capEntityRef
	capRelation
)

// SchemaType describes one registered component, tag or script kind. It never changes after
// registration.
type SchemaType struct {
	Kind     Kind          `json:"kind"`
	Index    uint32        `json:"index"`
	Name     string        `json:"name"`
	Size     uintptr       `json:"size,omitempty"`
	Category ValueCategory `json:"category"`
	Indexed  bool          `json:"indexed,omitempty"`
	Relation bool          `json:"relation,omitempty"`

	caps        capability
	rtype       reflect.Type
	newColumn   columnFactory
	newIndex    func() componentIndex
	newRelation func() relationStore
	keyType     reflect.Type
	indexSlot   uint32 // Bit in the per-entity index mask, valid when caps has capIndexed or capEntityRef
}

// Member returns the signature member for this type. Only components and tags are members.
func (st *SchemaType) Member() Member {
	return Member{ID: st.Index, Tag: st.Kind == KindTag}
}

func (st *SchemaType) indexed() bool {
	return st.caps&(capIndexed|capEntityRef) != 0
}

// Registry assigns stable identities to component, tag and script kinds. Registration happens at
// startup. The registry is sealed when any store built on it creates its first archetype, after
// which new types are rejected.
type Registry struct {
	mu         sync.RWMutex
	byType     map[reflect.Type]*SchemaType
	byName     map[string]*SchemaType
	components []*SchemaType
	tags       []*SchemaType
	scripts    []*SchemaType
	indexSlots uint32
	sealed     bool
	signatures signatureTable
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{
		byType:     make(map[reflect.Type]*SchemaType),
		byName:     make(map[string]*SchemaType),
		signatures: signatureTable{buckets: make(map[uint64][]*Signature)},
	}
	r.signatures.intern(nil, nil)
	return r
}

// RegisterComponent registers T as a plain component kind.
func RegisterComponent[T Component](r *Registry) (ComponentType[T], error) {
	st, err := registerComponent[T](r, 0, nil, nil, nil)
	return ComponentType[T]{st: st}, err
}

// RegisterIndexedComponent registers T as a component kind whose values are indexed. A value that
// is not equal to itself, such as a NaN float, is never indexed and Lookup cannot find it.
func RegisterIndexedComponent[T IndexedComponent](r *Registry) (ComponentType[T], error) {
	newIndex := func() componentIndex { return newValueIndex[T]() }
	st, err := registerComponent[T](r, capIndexed, newIndex, nil, nil)
	return ComponentType[T]{st: st}, err
}

// RegisterEntityRefComponent registers T as a component whose value points at another entity. The
// ref function extracts the referenced entity, or reports false when the value points nowhere, and
// backs the Referencing query.
func RegisterEntityRefComponent[T Component](
	r *Registry, ref func(T) (EntityID, bool),
) (ComponentType[T], error) {
	if ref == nil {
		return ComponentType[T]{}, eris.Wrap(ErrRegistration, "entity reference extractor must not be nil")
	}
	newIndex := func() componentIndex { return newRefIndex(ref) }
	st, err := registerComponent[T](r, capEntityRef, newIndex, nil, nil)
	return ComponentType[T]{st: st}, err
}

// RegisterRelation registers T as a relation kind keyed by K. Relations live outside archetypes, so
// an entity can hold any number of T values as long as their keys differ.
func RegisterRelation[T Component, K comparable](r *Registry) (RelationType[T, K], error) {
	keyType := reflect.TypeFor[K]()
	newTable := func() relationStore { return newRelationTable[T, K]() }
	st, err := registerComponent[T](r, capRelation, nil, newTable, keyType)
	if err != nil {
		return RelationType[T, K]{}, err
	}
	if st.keyType != keyType {
		return RelationType[T, K]{}, eris.Wrapf(ErrKindConflict,
			"relation %s is keyed by %s, not %s", st.Name, st.keyType, keyType)
	}
	return RelationType[T, K]{st: st}, nil
}

// RegisterTag registers T as a tag kind.
func RegisterTag[T Tag](r *Registry) (TagType, error) {
	var zero T
	st, err := r.register(reflect.TypeFor[T](), zero.Name(), KindTag, 0, nil)
	return TagType{st: st}, err
}

// RegisterScript registers T as a script kind.
func RegisterScript[T Script](r *Registry) (ScriptType, error) {
	var zero T
	st, err := r.register(reflect.TypeFor[T](), zero.Name(), KindScript, 0, nil)
	return ScriptType{st: st}, err
}

func registerComponent[T Component](
	r *Registry,
	caps capability,
	newIndex func() componentIndex,
	newRelation func() relationStore,
	keyType reflect.Type,
) (*SchemaType, error) {
	rt := reflect.TypeFor[T]()
	if rt.Kind() == reflect.Pointer || rt.Kind() == reflect.Interface {
		return nil, eris.Wrapf(ErrRegistration, "component %s must be a value type", rt)
	}
	var zero T
	return r.register(rt, zero.Name(), KindComponent, caps, func(st *SchemaType) {
		st.Size = rt.Size()
		st.Category = categoryOf(rt, caps)
		st.Indexed = newIndex != nil
		st.Relation = newRelation != nil
		st.newIndex = newIndex
		st.newRelation = newRelation
		st.keyType = keyType
		if newRelation == nil {
			st.newColumn = newColumnFactory[T]()
		}
	})
}

func (r *Registry) register(
	rt reflect.Type, name string, kind Kind, caps capability, build func(*SchemaType),
) (*SchemaType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.byType[rt]; ok {
		if st.Kind != kind || st.caps != caps {
			return nil, eris.Wrapf(ErrKindConflict, "%s is already registered as %s", st.Name, st.Kind)
		}
		return st, nil
	}
	if r.sealed {
		return nil, eris.Wrapf(ErrRegistrySealed, "cannot register %s", name)
	}
	if name == "" {
		return nil, eris.Wrapf(ErrRegistration, "%s has an empty name", rt)
	}
	if other, ok := r.byName[name]; ok {
		return nil, eris.Wrapf(ErrDuplicateName, "%s is used by %s", name, other.rtype)
	}

	st := &SchemaType{Kind: kind, Name: name, caps: caps, rtype: rt}
	switch kind {
	case KindComponent:
		st.Index = uint32(len(r.components)) //nolint:gosec // bounded by registrations
		r.components = append(r.components, st)
	case KindTag:
		st.Index = uint32(len(r.tags)) //nolint:gosec // bounded by registrations
		r.tags = append(r.tags, st)
	case KindScript:
		st.Index = uint32(len(r.scripts)) //nolint:gosec // bounded by registrations
		r.scripts = append(r.scripts, st)
	}
	if build != nil {
		build(st)
	}
	if st.indexed() {
		st.indexSlot = r.indexSlots
		r.indexSlots++
	}

	r.byType[rt] = st
	r.byName[name] = st
	return st, nil
}

func categoryOf(rt reflect.Type, caps capability) ValueCategory {
	if caps&capEntityRef != 0 {
		return CategoryEntityRef
	}
	switch rt.Kind() { //nolint:exhaustive // everything else is a user value
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return CategoryScalar
	default:
		return CategoryUser
	}
}

// Seal stops the registry from accepting new types. Stores call it when they create their first
// archetype. Sealing twice is a no-op.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether the registry has been sealed.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Lookup resolves a component or tag name to its signature member.
func (r *Registry) Lookup(name string) (Member, error) {
	r.mu.RLock()
	st, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return Member{}, eris.Wrapf(ErrTypeNotRegistered, "name %q", name)
	}
	if st.Kind == KindScript || st.caps&capRelation != 0 {
		return Member{}, eris.Errorf("%s %q cannot be part of a signature", st.Kind, name)
	}
	return st.Member(), nil
}

// ComponentTypes returns every registered component kind in index order.
func (r *Registry) ComponentTypes() []*SchemaType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*SchemaType(nil), r.components...)
}

// TagTypes returns every registered tag kind in index order.
func (r *Registry) TagTypes() []*SchemaType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*SchemaType(nil), r.tags...)
}

// ScriptTypes returns every registered script kind in index order.
func (r *Registry) ScriptTypes() []*SchemaType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*SchemaType(nil), r.scripts...)
}

// Describe returns a JSON document listing every registered type.
func (r *Registry) Describe() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc := struct {
		Sealed     bool          `json:"sealed"`
		Components []*SchemaType `json:"components"`
		Tags       []*SchemaType `json:"tags"`
		Scripts    []*SchemaType `json:"scripts"`
	}{
		Sealed:     r.sealed,
		Components: r.components,
		Tags:       r.tags,
		Scripts:    r.scripts,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, eris.Wrap(err, "failed to marshal registry")
	}
	return data, nil
}

// checkSignature reports the first member of sig that cannot be stored in an archetype.
func (r *Registry) checkSignature(sig *Signature) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cid := range sig.components {
		if int(cid) >= len(r.components) {
			return eris.Wrapf(ErrTypeNotRegistered, "component %d", cid)
		}
		if st := r.components[cid]; st.caps&capRelation != 0 {
			return eris.Wrapf(ErrKindConflict, "%s is a relation and has no column", st.Name)
		}
	}
	for _, tid := range sig.tags {
		if int(tid) >= len(r.tags) {
			return eris.Wrapf(ErrTypeNotRegistered, "tag %d", tid)
		}
	}
	return nil
}

// component returns the component schema at index. Expects a valid index.
func (r *Registry) component(index uint32) *SchemaType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.components[index]
}

func (r *Registry) lookupType(rt reflect.Type, kind Kind) (*SchemaType, error) {
	r.mu.RLock()
	st, ok := r.byType[rt]
	r.mu.RUnlock()
	if !ok {
		return nil, eris.Wrapf(ErrTypeNotRegistered, "%s", rt)
	}
	if st.Kind != kind {
		return nil, eris.Wrapf(ErrKindConflict, "%s is a %s, not a %s", st.Name, st.Kind, kind)
	}
	if st.caps&capRelation != 0 {
		return nil, eris.Wrapf(ErrKindConflict, "%s is a relation and has no column", st.Name)
	}
	return st, nil
}

// -------------------------------------------------------------------------------------------------
// Typed handles
// -------------------------------------------------------------------------------------------------

// ComponentType is the typed handle returned by component registration.
type ComponentType[T Component] struct {
	st *SchemaType
}

// ID returns the component index within the registry.
func (c ComponentType[T]) ID() uint32 {
	return c.st.Index
}

func (c ComponentType[T]) Name() string {
	return c.st.Name
}

// Member returns the signature member for the component.
func (c ComponentType[T]) Member() Member {
	return c.st.Member()
}

func (c ComponentType[T]) Schema() *SchemaType {
	return c.st
}

// TagType is the handle returned by tag registration.
type TagType struct {
	st *SchemaType
}

func (t TagType) ID() uint32          { return t.st.Index }
func (t TagType) Name() string        { return t.st.Name }
func (t TagType) Member() Member      { return t.st.Member() }
func (t TagType) Schema() *SchemaType { return t.st }

// ScriptType is the handle returned by script registration.
type ScriptType struct {
	st *SchemaType
}

func (s ScriptType) ID() uint32          { return s.st.Index }
func (s ScriptType) Name() string        { return s.st.Name }
func (s ScriptType) Schema() *SchemaType { return s.st }

// RelationType is the handle returned by relation registration.
type RelationType[T Component, K comparable] struct {
	st *SchemaType
}

func (r RelationType[T, K]) ID() uint32          { return r.st.Index }
func (r RelationType[T, K]) Name() string        { return r.st.Name }
func (r RelationType[T, K]) Schema() *SchemaType { return r.st }
