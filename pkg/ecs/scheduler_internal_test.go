package ecs

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/argus-labs/ecstore/pkg/testutils"
	"github.com/kelindar/bitmap"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -------------------------------------------------------------------------------------------------
// Model-based fuzzing the scheduler
// -------------------------------------------------------------------------------------------------
// Random systems with random access sets are scheduled several times. A shared logical clock stamps
// when every system starts and ends, so ordering is checked without relying on wall time.
// -------------------------------------------------------------------------------------------------

func TestScheduler_ModelFuzz(t *testing.T) {
	t.Parallel()
	prng := testutils.NewRand(t)

	const (
		systemsMax = 24
		membersMax = 12
		runs       = 4
	)

	for range 20 {
		n := prng.IntN(systemsMax) + 1
		var clock atomic.Int64
		starts := make([]int64, n)
		ends := make([]int64, n)
		counts := make([]atomic.Int32, n)

		sched := newSystemScheduler()
		for i := range n {
			var access bitmap.Bitmap
			for range prng.IntN(4) {
				access.Set(uint32(prng.IntN(membersMax))) //nolint:gosec // small
			}
			sched.register(scheduledSystem{
				name:   "system",
				access: access,
				run: func(context.Context) error {
					starts[i] = clock.Add(1)
					counts[i].Add(1)
					ends[i] = clock.Add(1)
					return nil
				},
			})
		}
		sched.build()

		for run := 1; run <= runs; run++ {
			require.NoError(t, sched.Run(context.Background()))

			for i := range n {
				// Property: every system runs exactly once per run.
				require.Equal(t, int32(run), counts[i].Load(), "system %d", i)
			}
			for a := range n {
				for b := a + 1; b < n; b++ {
					if !intersects(sched.systems[a].access, sched.systems[b].access) {
						continue
					}
					// Property: systems sharing access run in registration order.
					assert.Less(t, ends[a], starts[b], "system %d must finish before %d starts", a, b)
				}
			}
		}
	}
}

func TestScheduler_Errors(t *testing.T) {
	t.Parallel()

	var ran atomic.Int32
	shared := func(keys ...uint32) bitmap.Bitmap {
		var b bitmap.Bitmap
		for _, k := range keys {
			b.Set(k)
		}
		return b
	}

	errA := eris.New("a failed")
	errC := eris.New("c failed")
	sched := newSystemScheduler()
	sched.register(scheduledSystem{name: "a", access: shared(1), run: func(context.Context) error {
		ran.Add(1)
		return errA
	}})
	sched.register(scheduledSystem{name: "b", access: shared(1, 2), run: func(context.Context) error {
		ran.Add(1)
		return nil
	}})
	sched.register(scheduledSystem{name: "c", access: shared(2), run: func(context.Context) error {
		ran.Add(1)
		return errC
	}})
	sched.build()

	// Property: a failing system does not stop its dependents, and every error is reported.
	err := sched.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errC)
	assert.Equal(t, int32(3), ran.Load())

	require.Error(t, sched.Run(context.Background()))
	assert.Equal(t, int32(6), ran.Load())
}

func TestScheduler_Empty(t *testing.T) {
	t.Parallel()

	sched := newSystemScheduler()
	sched.build()
	require.NoError(t, sched.Run(context.Background()))
}

func TestAccessKey(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, accessKey(Member{ID: 3}), accessKey(Member{ID: 3, Tag: true}))
	assert.Equal(t, uint32(6), accessKey(Member{ID: 3}))
	assert.Equal(t, uint32(7), accessKey(Member{ID: 3, Tag: true}))
}
