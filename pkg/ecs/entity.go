package ecs

import (
	"math"

	"github.com/argus-labs/ecstore/pkg/assert"
)

// EntityID is the handle of an entity. It is only a lookup key and is reused after deletion, so
// code that holds ids across deletions should also keep the generation.
type EntityID uint32

// MaxEntityID is the largest id the store will allocate.
const MaxEntityID = math.MaxUint32 - 1

// residency records where an entity's data lives. It is the only source of truth for that.
type residency struct {
	arch       *archetype
	slot       int
	generation uint32 // Incremented every time the id is released
	alive      bool
}

// entityManager allocates ids and owns the residency records, indexed by id.
type entityManager struct {
	records  []residency
	nextID   EntityID
	free     []EntityID // FIFO queue of ids ready for reuse
	freeHead int
	parked   []EntityID // Released while an iteration was active, not reusable yet
	live     int
}

func newEntityManager(capacity int) entityManager {
	return entityManager{
		records: make([]residency, 0, capacity),
		free:    make([]EntityID, 0, capacity/4+1),
	}
}

// allocate returns an id for a new entity. Ids freed earliest are reused first.
func (em *entityManager) allocate() (EntityID, error) {
	var id EntityID
	if em.freeHead < len(em.free) {
		id = em.free[em.freeHead]
		em.freeHead++
		if em.freeHead == len(em.free) {
			em.free = em.free[:0]
			em.freeHead = 0
		}
	} else {
		if em.nextID > MaxEntityID {
			return 0, ErrMaxEntities
		}
		id = em.nextID
		em.nextID++
		em.records = append(em.records, residency{})
	}

	rec := &em.records[id]
	assert.That(!rec.alive, "allocated entity %d is still alive", id)
	rec.alive = true
	em.live++
	return id, nil
}

// place records the archetype and slot of a newly allocated entity.
func (em *entityManager) place(id EntityID, arch *archetype, slot int) {
	rec := &em.records[id]
	rec.arch = arch
	rec.slot = slot
}

// get returns the residency record of a live entity. The pointer is valid until the next allocate.
func (em *entityManager) get(id EntityID) (*residency, bool) {
	if int(id) >= len(em.records) {
		return nil, false
	}
	rec := &em.records[id]
	if !rec.alive {
		return nil, false
	}
	return rec, true
}

// release frees a live id. When deferred is true the id is parked until unpark is called, so id
// arrays being iterated never see it come back as a different entity.
func (em *entityManager) release(id EntityID, deferred bool) {
	rec := &em.records[id]
	assert.That(rec.alive, "releasing dead entity %d", id)
	*rec = residency{generation: rec.generation + 1}
	em.live--

	if deferred {
		em.parked = append(em.parked, id)
		return
	}
	em.free = append(em.free, id)
}

// unpark makes parked ids reusable.
func (em *entityManager) unpark() {
	if len(em.parked) == 0 {
		return
	}
	em.free = append(em.free, em.parked...)
	em.parked = em.parked[:0]
}

// generation returns the generation of an id, alive or not.
func (em *entityManager) generation(id EntityID) uint32 {
	if int(id) >= len(em.records) {
		return 0
	}
	return em.records[id].generation
}
