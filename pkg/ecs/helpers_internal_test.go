package ecs

import (
	"slices"
	"testing"

	. "github.com/argus-labs/ecstore/pkg/ecs/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testTypes struct {
	position ComponentType[Position]
	velocity ComponentType[Velocity]
	health   ComponentType[Health]
	team     ComponentType[Team]
	label    ComponentType[Label]
	parent   ComponentType[Parent]
	frozen   TagType
	player   TagType
	ai       ScriptType
	item     RelationType[Item, string]
}

func parentRef(p Parent) (EntityID, bool) {
	return EntityID(p.Entity), p.Set
}

func newTestRegistry(t *testing.T) (*Registry, testTypes) {
	t.Helper()

	reg := NewRegistry()
	var tt testTypes
	var err error

	tt.position, err = RegisterComponent[Position](reg)
	require.NoError(t, err)
	tt.velocity, err = RegisterComponent[Velocity](reg)
	require.NoError(t, err)
	tt.health, err = RegisterComponent[Health](reg)
	require.NoError(t, err)
	tt.team, err = RegisterIndexedComponent[Team](reg)
	require.NoError(t, err)
	tt.label, err = RegisterIndexedComponent[Label](reg)
	require.NoError(t, err)
	tt.parent, err = RegisterEntityRefComponent(reg, parentRef)
	require.NoError(t, err)
	tt.frozen, err = RegisterTag[Frozen](reg)
	require.NoError(t, err)
	tt.player, err = RegisterTag[Player](reg)
	require.NoError(t, err)
	tt.ai, err = RegisterScript[AI](reg)
	require.NoError(t, err)
	tt.item, err = RegisterRelation[Item, string](reg)
	require.NoError(t, err)

	return reg, tt
}

func newTestStore(t *testing.T, opts StoreOptions) (*Store, testTypes) {
	t.Helper()

	reg, tt := newTestRegistry(t)
	if opts.SetNotify == SetNotifyUndefined {
		opts.SetNotify = SetNotifyNever
	}
	s, err := NewStore(reg, opts)
	require.NoError(t, err)
	return s, tt
}

// recordEvents subscribes to s and returns the slice the events are appended to.
func recordEvents(s *Store) *[]ChangeEvent {
	var events []ChangeEvent
	s.Subscribe(func(ev ChangeEvent) {
		events = append(events, ev)
	})
	return &events
}

// assertResidency checks that every archetype slot and every residency record point at each
// other, and that each live entity sits in exactly one slot.
func assertResidency(t *testing.T, s *Store) {
	t.Helper()

	seen := make(map[EntityID]struct{}, s.Len())
	total := 0
	for _, arch := range s.archetypes {
		total += arch.len()
		for _, col := range arch.columns {
			assert.Equal(t, arch.len(), col.len(), "archetype %d column length mismatch", arch.id)
		}
		for slot, id := range arch.entities {
			_, dup := seen[id]
			assert.False(t, dup, "entity %d appears in more than one slot", id)
			seen[id] = struct{}{}

			rec, ok := s.entities.get(id)
			if assert.True(t, ok, "entity %d in archetype %d is not alive", id, arch.id) {
				assert.Same(t, arch, rec.arch, "entity %d residency archetype mismatch", id)
				assert.Equal(t, slot, rec.slot, "entity %d residency slot mismatch", id)
			}
		}
	}
	assert.Equal(t, s.Len(), total, "live count does not match archetype population")
}

func sortedIDs(ids []EntityID) []EntityID {
	out := slices.Clone(ids)
	slices.Sort(out)
	return out
}
