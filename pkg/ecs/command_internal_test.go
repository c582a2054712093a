package ecs

import (
	"strings"
	"sync"
	"testing"

	. "github.com/argus-labs/ecstore/pkg/ecs/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandBuffer_Ordering(t *testing.T) {
	t.Parallel()
	s, tt := newTestStore(t, StoreOptions{})

	cb := NewCommandBuffer()
	e, err := cb.CreateEntity()
	require.NoError(t, err)
	assert.True(t, e.Local())
	require.NoError(t, BufferAddComponent(cb, e, Position{X: 1, Y: 1, Z: 1}))
	require.NoError(t, BufferSetComponent(cb, e, Position{X: 2, Y: 2, Z: 2}))
	assert.Equal(t, 3, cb.Len())

	// Property: nothing happens before playback.
	assert.Zero(t, s.Len())

	require.NoError(t, cb.Playback(s))

	id, ok := cb.Resolve(e)
	require.True(t, ok)

	// Property: commands apply in recording order.
	pos, err := GetComponent[Position](s, id)
	require.NoError(t, err)
	assert.Equal(t, Position{X: 2, Y: 2, Z: 2}, pos)
	assert.Same(t, s.Registry().Signature(tt.position.Member()), mustSignature(t, s, id))
}

func TestCommandBuffer_SkipAfterDelete(t *testing.T) {
	t.Parallel()
	s, tt := newTestStore(t, StoreOptions{})

	existing, err := s.CreateEntity(s.Registry().Signature(tt.health.Member()))
	require.NoError(t, err)

	cb := NewCommandBuffer()
	local, err := cb.CreateEntity()
	require.NoError(t, err)
	kept, err := cb.CreateEntityWith(s.Registry().Signature(tt.health.Member()))
	require.NoError(t, err)

	require.NoError(t, cb.DeleteEntity(local))
	require.NoError(t, BufferAddComponent(cb, local, Position{X: 1}))
	require.NoError(t, BufferAddTag[Frozen](cb, local))

	require.NoError(t, cb.DeleteEntity(Existing(existing)))
	// SetComponent on a dead id would fail; it is skipped instead.
	require.NoError(t, BufferSetComponent(cb, Existing(existing), Health{HP: 9}))
	require.NoError(t, cb.DeleteEntity(Existing(existing)))

	require.NoError(t, BufferSetComponent(cb, kept, Health{HP: 3}))

	// Property: commands on an entity deleted earlier in the buffer are skipped.
	require.NoError(t, cb.Playback(s))
	assert.False(t, s.Alive(existing))
	assert.Equal(t, 1, s.Len())

	_, ok := cb.Resolve(local)
	assert.False(t, ok, "deleted locals do not resolve")

	id, ok := cb.Resolve(kept)
	require.True(t, ok)
	h, err := GetComponent[Health](s, id)
	require.NoError(t, err)
	assert.Equal(t, Health{HP: 3}, h)
}

func TestCommandBuffer_SingleShot(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, StoreOptions{})

	cb := NewCommandBuffer()
	e, err := cb.CreateEntity()
	require.NoError(t, err)

	_, ok := cb.Resolve(e)
	assert.False(t, ok, "locals do not resolve before playback")

	require.NoError(t, cb.Playback(s))

	// Property: a played back buffer rejects every further use.
	require.ErrorIs(t, cb.Playback(s), ErrInvalidState)
	_, err = cb.CreateEntity()
	require.ErrorIs(t, err, ErrInvalidState)
	require.ErrorIs(t, cb.DeleteEntity(e), ErrInvalidState)
	require.ErrorIs(t, BufferAddComponent(cb, e, Health{}), ErrInvalidState)
	require.ErrorIs(t, BufferRemoveTag[Frozen](cb, e), ErrInvalidState)
	assert.Equal(t, 1, s.Len())

	// Property: the error names the rejected operation once and the state once.
	err = BufferAddComponent(cb, e, Health{})
	assert.Contains(t, err.Error(), "cannot record add_component")
	assert.Equal(t, 1, strings.Count(err.Error(), ErrInvalidState.Error()))
	assert.Equal(t, 1, strings.Count(cb.Playback(s).Error(), "played back"))

	// Property: existing targets resolve to themselves.
	id, ok := cb.Resolve(Existing(42))
	assert.True(t, ok)
	assert.Equal(t, EntityID(42), id)
}

func TestCommandBuffer_StopsAtFirstError(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, StoreOptions{})

	cb := NewCommandBuffer()
	first, err := cb.CreateEntity()
	require.NoError(t, err)
	require.NoError(t, BufferAddComponent(cb, first, Health{HP: 1}))
	// The entity has no position, so this set fails.
	require.NoError(t, BufferSetComponent(cb, first, Position{X: 1}))
	second, err := cb.CreateEntity()
	require.NoError(t, err)

	err = cb.Playback(s)
	require.ErrorIs(t, err, ErrComponentNotOnEntity)

	// Property: commands before the failure stay applied, later ones never run.
	id, ok := cb.Resolve(first)
	require.True(t, ok)
	assert.True(t, HasComponent[Health](s, id))
	_, ok = cb.Resolve(second)
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())

	require.ErrorIs(t, cb.Playback(s), ErrInvalidState)
}

func TestCommandBuffer_Record(t *testing.T) {
	t.Parallel()

	cb := NewCommandBuffer()

	// Property: a local target from another buffer is rejected.
	foreign, err := NewCommandBuffer().CreateEntity()
	require.NoError(t, err)
	require.Error(t, cb.DeleteEntity(foreign))
	assert.Zero(t, cb.Len())

	// Property: a foreign local is rejected even when this buffer has a local with the same number.
	own, err := cb.CreateEntity()
	require.NoError(t, err)
	require.Error(t, BufferAddComponent(cb, foreign, Health{HP: 9}))
	require.Error(t, BufferAddTag[Frozen](cb, foreign))
	require.NoError(t, BufferAddComponent(cb, own, Health{HP: 1}))
	assert.Equal(t, 2, cb.Len())

	// Property: recording is safe from many goroutines.
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				e, err := cb.CreateEntity()
				assert.NoError(t, err)
				assert.NoError(t, BufferAddTag[Player](cb, e))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1602, cb.Len())

	s, _ := newTestStore(t, StoreOptions{})
	require.NoError(t, cb.Playback(s))
	assert.Equal(t, 801, s.Len())

	ownID, ok := cb.Resolve(own)
	require.True(t, ok)
	h, err := GetComponent[Health](s, ownID)
	require.NoError(t, err)
	assert.Equal(t, Health{HP: 1}, h)
	_, ok = cb.Resolve(foreign)
	assert.False(t, ok, "foreign locals do not resolve")

	for id := range NewQuery(s, nil).Entities() {
		if id != ownID {
			assert.True(t, HasTag[Player](s, id))
		}
	}
}

func TestCommandBuffer_Remove(t *testing.T) {
	t.Parallel()
	s, tt := newTestStore(t, StoreOptions{})
	reg := s.Registry()

	id, err := s.CreateEntity(reg.Signature(tt.position.Member(), tt.team.Member(), tt.frozen.Member()))
	require.NoError(t, err)

	cb := NewCommandBuffer()
	require.NoError(t, BufferRemoveComponent[Team](cb, Existing(id)))
	require.NoError(t, BufferRemoveTag[Frozen](cb, Existing(id)))
	require.NoError(t, cb.Playback(s))

	assert.Same(t, reg.Signature(tt.position.Member()), mustSignature(t, s, id))
	assert.False(t, s.IsIndexed(id))
}
