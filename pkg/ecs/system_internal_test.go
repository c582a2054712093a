package ecs

import (
	"context"
	"testing"

	. "github.com/argus-labs/ecstore/pkg/ecs/internal/testutils"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSystemManager(t *testing.T) (*SystemManager, testTypes) {
	t.Helper()

	s, tt := newTestStore(t, StoreOptions{})
	m, err := NewSystemManager(s, SystemManagerOptions{})
	require.NoError(t, err)
	return m, tt
}

func nopSystem(*SystemContext) error { return nil }

func TestSystemManager_Register(t *testing.T) {
	t.Parallel()
	m, _ := newTestSystemManager(t)

	require.NoError(t, m.RegisterSystem("movement", nil, nopSystem))

	tests := []struct {
		name   string
		system string
		fn     System
		opts   []SystemOption
	}{
		{name: "empty name", system: "", fn: nopSystem},
		{name: "nil function", system: "physics", fn: nil},
		{name: "duplicate name", system: "movement", fn: nopSystem},
		{name: "invalid hook", system: "physics", fn: nopSystem, opts: []SystemOption{WithHook(SystemHook(9))}},
	}
	for _, tc := range tests {
		require.Error(t, m.RegisterSystem(tc.system, nil, tc.fn, tc.opts...), tc.name)
	}

	// Property: registration closes once the manager has started.
	require.NoError(t, m.RunInit(context.Background()))
	err := m.RegisterSystem("late", nil, nopSystem)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = NewSystemManager(m.Store(), SystemManagerOptions{BatchSize: -1})
	require.Error(t, err)
}

func TestSystemManager_Lifecycle(t *testing.T) {
	t.Parallel()
	m, tt := newTestSystemManager(t)
	s := m.Store()
	reg := s.Registry()

	healthSig := reg.Signature(tt.health.Member())
	playerSig := reg.Signature(tt.health.Member(), tt.player.Member())

	initRuns := 0
	require.NoError(t, m.RegisterSystem("seed", nil, func(ctx *SystemContext) error {
		initRuns++
		for range 2 {
			if _, err := ctx.Commands().CreateEntityWith(healthSig); err != nil {
				return err
			}
		}
		return nil
	}, WithHook(Init)))

	require.NoError(t, m.RegisterSystem("spawn", nil, func(ctx *SystemContext) error {
		_, err := ctx.Commands().CreateEntityWith(playerSig)
		return err
	}, WithHook(PreUpdate)))

	var observed []int
	require.NoError(t, m.RegisterSystem("heal", healthSig, func(ctx *SystemContext) error {
		for chunk := range ctx.Query().Chunks() {
			hs := Column(chunk, tt.health)
			for i := range hs {
				hs[i].HP++
			}
		}
		observed = append(observed, ctx.Query().Count())
		return nil
	}))

	var players []int
	require.NoError(t, m.RegisterSystem("census", playerSig, func(ctx *SystemContext) error {
		players = append(players, ctx.Query().Count())
		return nil
	}, WithHook(PostUpdate)))

	// Property: Run starts the manager with the init systems.
	require.NoError(t, m.Run(context.Background()))
	require.NoError(t, m.Run(context.Background()))
	require.NoError(t, m.Run(context.Background()))

	assert.Equal(t, 1, initRuns)
	require.ErrorIs(t, m.RunInit(context.Background()), ErrInvalidState)

	// Property: commands of a hook are visible to the hooks after it.
	assert.Equal(t, []int{3, 4, 5}, observed)
	assert.Equal(t, []int{1, 2, 3}, players)
	assert.Equal(t, uint64(3), m.Runs())

	// The seeded entities were healed every run.
	first, ok := NewQuery(s, healthSig, tt.player.Member()).First()
	require.True(t, ok)
	h, err := GetComponent[Health](s, first)
	require.NoError(t, err)
	assert.Equal(t, 3, h.HP)

	stats, ok := m.Stats("heal")
	require.True(t, ok)
	assert.Equal(t, uint64(3), stats.Count)
	assert.Len(t, stats.Window, 3)
	assert.GreaterOrEqual(t, stats.Total, stats.Max)

	stats, ok = m.Stats("seed")
	require.True(t, ok)
	assert.Equal(t, uint64(1), stats.Count)

	_, ok = m.Stats("missing")
	assert.False(t, ok)
}

func TestSystemManager_FailedSystem(t *testing.T) {
	t.Parallel()
	m, tt := newTestSystemManager(t)
	s := m.Store()
	reg := s.Registry()

	boom := eris.New("boom")
	require.NoError(t, m.RegisterSystem("ok", reg.Signature(tt.position.Member()), func(ctx *SystemContext) error {
		_, err := ctx.Commands().CreateEntity()
		return err
	}))
	require.NoError(t, m.RegisterSystem("broken", reg.Signature(tt.velocity.Member()), func(ctx *SystemContext) error {
		if _, err := ctx.Commands().CreateEntity(); err != nil {
			return err
		}
		return boom
	}))

	err := m.Run(context.Background())
	require.ErrorIs(t, err, boom)

	// Property: the buffer of a failed system is discarded, the others are played back.
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, uint64(1), m.Runs())
}

func TestSystemManager_SharedAccess(t *testing.T) {
	t.Parallel()
	m, tt := newTestSystemManager(t)

	// Both systems write order without synchronization; declaring a shared member serializes them.
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		require.NoError(t, m.RegisterSystem(name, nil, func(*SystemContext) error {
			order = append(order, name)
			return nil
		}, WithAccess(tt.health.Member())))
	}

	for range 3 {
		order = order[:0]
		require.NoError(t, m.Run(context.Background()))
		// Property: systems sharing a member run in registration order.
		assert.Equal(t, []string{"first", "second", "third"}, order)
	}
}

func TestSystemManager_Timings(t *testing.T) {
	t.Parallel()
	m, _ := newTestSystemManager(t)

	require.NoError(t, m.RegisterSystem("a", nil, nopSystem))
	require.NoError(t, m.RegisterSystem("b", nil, nopSystem, WithHook(PostUpdate)))

	ch, stop := m.Timings()
	defer stop()

	require.NoError(t, m.Run(context.Background()))

	select {
	case batch := <-ch:
		require.Len(t, batch.Runs, 1)
		run := batch.Runs[0]
		assert.Equal(t, uint64(0), run.Run)
		require.Len(t, run.Spans, 2)
		assert.Equal(t, "a", run.Spans[0].System)
		assert.Equal(t, uint8(Update), run.Spans[0].Hook)
		assert.Equal(t, "b", run.Spans[1].System)
	default:
		t.Fatal("no batch after a completed run")
	}
}

func TestSystemHook_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pre_update", PreUpdate.String())
	assert.Equal(t, "update", Update.String())
	assert.Equal(t, "post_update", PostUpdate.String())
	assert.Equal(t, "init", Init.String())
	assert.Equal(t, "unknown", SystemHook(7).String())
}
