package ecs

import (
	"sync/atomic"

	"github.com/argus-labs/ecstore/pkg/assert"
	"github.com/kelindar/bitmap"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Store owns every archetype, the residency records, the component indexes and the relation
// overlay. It is the only entry point for mutation.
//
// A Store has a single logical writer. Structural changes and iteration must not overlap across
// goroutines; use a CommandBuffer to prepare changes elsewhere and play it back on the owner.
type Store struct {
	reg        *Registry
	opts       StoreOptions
	logger     zerolog.Logger
	entities   entityManager
	archetypes []*archetype
	bySig      sparseSet // Signature id -> archetype id
	generation uint64    // Incremented whenever an archetype is created
	iterating  atomic.Int32

	indexes    []componentIndex // By component index, nil when the component is not indexed
	indexed    []*SchemaType    // By index slot, for cleanup on delete
	membership []bitmap.Bitmap  // By entity id, bit per index slot holding the entity
	relations  []relationStore  // By component index, nil when the component is not a relation

	observers observerList
	notifying bool
}

// NewStore creates a store over reg. Options left zero are loaded from the environment.
func NewStore(reg *Registry, opts StoreOptions) (*Store, error) {
	if reg == nil {
		return nil, eris.New("registry cannot be nil")
	}

	cfg, err := loadStoreConfig()
	if err != nil {
		return nil, eris.Wrap(err, "failed to load store config")
	}

	options := newDefaultStoreOptions()
	cfg.applyToOptions(&options)
	options.apply(opts)
	if err := options.validate(); err != nil {
		return nil, eris.Wrap(err, "invalid store options")
	}

	return &Store{
		reg:      reg,
		opts:     options,
		logger:   options.Logger.With().Str("component", "ecstore").Logger(),
		entities: newEntityManager(options.EntityCapacity),
		bySig:    newSparseSet(16),
	}, nil
}

// Registry returns the registry the store was built on.
func (s *Store) Registry() *Registry {
	return s.reg
}

// Generation returns a counter that increases every time an archetype is created. Queries compare
// it to decide whether their cached archetype list is stale.
func (s *Store) Generation() uint64 {
	return s.generation
}

// Len returns the number of live entities.
func (s *Store) Len() int {
	return s.entities.live
}

// ArchetypeCount returns the number of archetypes created so far.
func (s *Store) ArchetypeCount() int {
	return len(s.archetypes)
}

// Alive reports whether id refers to a live entity.
func (s *Store) Alive(id EntityID) bool {
	_, ok := s.entities.get(id)
	return ok
}

// EntityGeneration returns the generation of id. It changes every time the id is freed, so an
// (id, generation) pair identifies one entity for the lifetime of the store.
func (s *Store) EntityGeneration(id EntityID) uint32 {
	return s.entities.generation(id)
}

// IsCurrent reports whether id is alive and still has the given generation.
func (s *Store) IsCurrent(id EntityID, generation uint32) bool {
	rec, ok := s.entities.get(id)
	return ok && rec.generation == generation
}

// Signature returns the signature of a live entity.
func (s *Store) Signature(id EntityID) (*Signature, error) {
	rec, ok := s.entities.get(id)
	if !ok {
		return nil, eris.Wrapf(ErrEntityNotFound, "entity %d", id)
	}
	return rec.arch.sig, nil
}

// hasArchetype reports whether the archetype for sig was created.
func (s *Store) hasArchetype(sig *Signature) bool {
	_, ok := s.bySig.get(sig.id)
	return ok
}

// -------------------------------------------------------------------------------------------------
// Entity lifecycle
// -------------------------------------------------------------------------------------------------

// CreateEntity creates an entity with the given signature and zero component values. A nil
// signature creates an entity with no components. Members that are not registered, or that name a
// relation, fail with ErrTypeNotRegistered or ErrKindConflict.
func (s *Store) CreateEntity(sig *Signature) (EntityID, error) {
	if err := s.checkMutable(); err != nil {
		return 0, err
	}
	if sig == nil {
		sig = s.reg.EmptySignature()
	}
	assert.That(sig.table == &s.reg.signatures, "signature belongs to another registry")
	if !s.hasArchetype(sig) {
		if err := s.reg.checkSignature(sig); err != nil {
			return 0, err
		}
	}

	id, err := s.entities.allocate()
	if err != nil {
		return 0, err
	}
	arch := s.archetypeFor(sig)
	slot := arch.addEntity(id)
	s.entities.place(id, arch, slot)

	for _, cid := range sig.components {
		st := s.reg.component(cid)
		if st.indexed() {
			col, _ := arch.column(cid)
			s.indexInsert(id, st, col.getAbstract(slot))
		}
	}

	s.emit(ChangeEvent{Entity: id, Action: ActionCreated})
	return id, nil
}

// DeleteEntity deletes a live entity with all its components, index entries and relations.
// Deleting a dead id is a no-op that returns false.
//
// Every relation the entity held emits ActionRemoved before ActionDeleted. Entity reference
// components of other entities that point at the deleted entity are removed from them, each with
// its own ActionRemoved, so a reused id never inherits referrers.
func (s *Store) DeleteEntity(id EntityID) bool {
	if err := s.checkMutable(); err != nil {
		s.logger.Error().Err(err).Uint32("entity", uint32(id)).Msg("delete rejected")
		return false
	}
	rec, ok := s.entities.get(id)
	if !ok {
		return false
	}

	s.unindexEntity(id, rec)
	for i, rel := range s.relations {
		if rel != nil && rel.removeEntity(id) > 0 {
			s.emit(ChangeEvent{
				Entity: id, Action: ActionRemoved, Kind: KindComponent, Type: uint32(i), Relation: true, //nolint:gosec // component index
			})
		}
	}

	s.vacate(rec.arch, rec.slot)
	s.entities.release(id, s.iterating.Load() > 0)
	s.dropReferencesTo(id)

	s.emit(ChangeEvent{Entity: id, Action: ActionDeleted})
	return true
}

// -------------------------------------------------------------------------------------------------
// Structural moves
// -------------------------------------------------------------------------------------------------

// archetypeFor returns the archetype for sig, creating it on first use. Creating the first
// archetype seals the registry.
func (s *Store) archetypeFor(sig *Signature) *archetype {
	if aid, ok := s.bySig.get(sig.id); ok {
		return s.archetypes[aid]
	}
	if len(s.archetypes) == 0 {
		s.reg.Seal()
	}

	arch := newArchetype(len(s.archetypes), sig, s.reg, s.opts.ArchetypeCapacity)
	s.archetypes = append(s.archetypes, arch)
	s.bySig.set(sig.id, arch.id)
	s.generation++

	s.logger.Debug().
		Int("archetype_id", arch.id).
		Stringer("signature", sig).
		Uint64("generation", s.generation).
		Msg("archetype created")
	return arch
}

// move relocates a live entity into dst, copying every component both archetypes share. The
// entity's old slot is swap-removed and both affected residency records are updated. Returns the
// new slot.
func (s *Store) move(id EntityID, rec *residency, dst *archetype) int {
	src, slot := rec.arch, rec.slot
	assert.That(src != dst, "moving entity %d into its own archetype", id)

	newSlot := dst.addEntity(id)
	src.copyComponentsTo(slot, dst, newSlot)
	s.vacate(src, slot)

	rec.arch = dst
	rec.slot = newSlot
	return newSlot
}

// vacate swap-removes slot and repoints the entity that was moved into it.
func (s *Store) vacate(arch *archetype, slot int) {
	moved, ok := arch.removeSlot(slot)
	if !ok {
		return
	}
	rec, alive := s.entities.get(moved)
	assert.That(alive, "relocated entity %d is not alive", moved)
	assert.That(rec.arch == arch, "relocated entity %d lives in another archetype", moved)
	rec.slot = slot
}

// checkMutable rejects mutation from inside an observer.
func (s *Store) checkMutable() error {
	if s.notifying {
		return ErrReentrantMutation
	}
	return nil
}

// -------------------------------------------------------------------------------------------------
// Iteration bookkeeping
// -------------------------------------------------------------------------------------------------

// beginIteration marks an id array as being read. Ids released until the matching endIteration
// are not reused.
func (s *Store) beginIteration() {
	s.iterating.Add(1)
}

func (s *Store) endIteration() {
	if s.iterating.Add(-1) == 0 {
		s.entities.unpark()
	}
}
