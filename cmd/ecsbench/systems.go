package main

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync/atomic"

	"github.com/argus-labs/ecstore/pkg/ecs"
	"github.com/rotisserie/eris"
)

type Position struct{ X, Y float64 }

func (Position) Name() string { return "position" }

type Velocity struct{ X, Y float64 }

func (Velocity) Name() string { return "velocity" }

type Health struct{ HP int }

func (Health) Name() string { return "health" }

type Team uint8

func (Team) Name() string { return "team" }

type Frozen struct{}

func (Frozen) Name() string { return "frozen" }

type benchTypes struct {
	position ecs.ComponentType[Position]
	velocity ecs.ComponentType[Velocity]
	health   ecs.ComponentType[Health]
	team     ecs.ComponentType[Team]
	frozen   ecs.TagType
}

func registerTypes(reg *ecs.Registry) (benchTypes, error) {
	var t benchTypes
	var errs [5]error
	t.position, errs[0] = ecs.RegisterComponent[Position](reg)
	t.velocity, errs[1] = ecs.RegisterComponent[Velocity](reg)
	t.health, errs[2] = ecs.RegisterComponent[Health](reg)
	t.team, errs[3] = ecs.RegisterIndexedComponent[Team](reg)
	t.frozen, errs[4] = ecs.RegisterTag[Frozen](reg)
	for _, err := range errs {
		if err != nil {
			return t, eris.Wrap(err, "failed to register types")
		}
	}
	return t, nil
}

const teams = 4

//nolint:gochecknoglobals // fixed list
var systemNames = []string{"spawn", "movement", "decay", "freeze", "respawn", "census"}

func registerSystems(m *ecs.SystemManager, t benchTypes, cfg benchConfig) error {
	reg := m.Store().Registry()
	movers := reg.Signature(t.position.Member(), t.velocity.Member())
	living := reg.Signature(t.health.Member())
	everyone := reg.Signature(t.position.Member(), t.velocity.Member(), t.health.Member(), t.team.Member())

	// Replacements for entities deleted during the current run. Written by decay, read by respawn,
	// which runs in a later hook.
	var died atomic.Int64

	spawn := func(ctx *ecs.SystemContext, n int) error {
		prng := rand.New(rand.NewPCG(ctx.Run(), uint64(n))) //nolint:gosec // deterministic load
		cb := ctx.Commands()
		for i := range n {
			target, err := cb.CreateEntityWith(everyone)
			if err != nil {
				return err
			}
			err = errors.Join(
				ecs.BufferSetComponent(cb, target, Position{X: prng.Float64() * 100, Y: prng.Float64() * 100}),
				ecs.BufferSetComponent(cb, target, Velocity{X: prng.NormFloat64(), Y: prng.NormFloat64()}),
				ecs.BufferSetComponent(cb, target, Health{HP: 100}),
				ecs.BufferSetComponent(cb, target, Team(i%teams)),
			)
			if err != nil {
				return eris.Wrap(err, "failed to buffer spawn")
			}
		}
		return nil
	}

	systems := []struct {
		name string
		sig  *ecs.Signature
		fn   ecs.System
		opts []ecs.SystemOption
	}{
		{
			name: "spawn",
			sig:  everyone,
			fn:   func(ctx *ecs.SystemContext) error { return spawn(ctx, cfg.Entities) },
			opts: []ecs.SystemOption{ecs.WithHook(ecs.Init)},
		},
		{
			name: "movement",
			sig:  movers,
			fn: func(ctx *ecs.SystemContext) error {
				return ctx.Query().ParallelChunks(ctx.Context(), 0, func(_ context.Context, chunk ecs.Chunk) error {
					ps, vs := ecs.Column(chunk, t.position), ecs.Column(chunk, t.velocity)
					for i := range ps {
						ps[i].X += vs[i].X
						ps[i].Y += vs[i].Y
					}
					return nil
				})
			},
			opts: []ecs.SystemOption{ecs.WithExcludedTags(t.frozen.Member())},
		},
		{
			name: "decay",
			sig:  living,
			fn: func(ctx *ecs.SystemContext) error {
				cb := ctx.Commands()
				return ctx.Query().ParallelChunks(ctx.Context(), 0, func(_ context.Context, chunk ecs.Chunk) error {
					hs := ecs.Column(chunk, t.health)
					for i, id := range chunk.Entities() {
						hs[i].HP -= cfg.Decay
						if hs[i].HP > 0 {
							continue
						}
						if err := cb.DeleteEntity(ecs.Existing(id)); err != nil {
							return err
						}
						died.Add(1)
					}
					return nil
				})
			},
		},
		{
			name: "freeze",
			sig:  movers,
			fn: func(ctx *ecs.SystemContext) error {
				// Every tenth run, freeze the first mover of the query. Frozen movers stop moving.
				if ctx.Run()%10 != 0 {
					return nil
				}
				id, ok := ctx.Query().First()
				if !ok {
					return nil
				}
				return ecs.BufferAddTag[Frozen](ctx.Commands(), ecs.Existing(id))
			},
			opts: []ecs.SystemOption{ecs.WithHook(ecs.PreUpdate), ecs.WithAccess(t.frozen.Member())},
		},
		{
			name: "respawn",
			sig:  everyone,
			fn: func(ctx *ecs.SystemContext) error {
				return spawn(ctx, int(died.Swap(0)))
			},
			opts: []ecs.SystemOption{ecs.WithHook(ecs.PostUpdate)},
		},
		{
			name: "census",
			sig:  living,
			fn: func(ctx *ecs.SystemContext) error {
				for team := range Team(teams) {
					members, err := ecs.Lookup(ctx.Store(), team)
					if err != nil {
						return err
					}
					ctx.Logger().Debug().Uint8("team", uint8(team)).Int("members", len(members)).Msg("census")
				}
				return nil
			},
			opts: []ecs.SystemOption{ecs.WithHook(ecs.PostUpdate), ecs.WithAccess(t.team.Member())},
		},
	}

	for _, sys := range systems {
		if err := m.RegisterSystem(sys.name, sys.sig, sys.fn, sys.opts...); err != nil {
			return eris.Wrapf(err, "failed to register system %s", sys.name)
		}
	}
	return nil
}
