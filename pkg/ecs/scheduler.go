package ecs

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/kelindar/bitmap"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// scheduledSystem is a system as seen by the scheduler.
type scheduledSystem struct {
	name   string
	access bitmap.Bitmap // Members the system reads or writes, see accessKey
	run    func(context.Context) error
}

// accessKey maps a member to a single bit so components and tags share one access bitmap.
func accessKey(m Member) uint32 {
	if m.Tag {
		return m.ID<<1 | 1
	}
	return m.ID << 1
}

// systemScheduler runs the systems of one hook. Two systems that access a common member run in
// registration order; systems with disjoint access run concurrently.
type systemScheduler struct {
	systems    []scheduledSystem
	roots      []int         // Systems without predecessors
	dependents map[int][]int // System -> systems that must wait for it
	active     uint8         // Which indegree buffer the next run consumes

	// Remaining predecessor counts. The run consuming one buffer refills the other, so neither
	// needs resetting between runs.
	indegree0 []atomic.Int32
	indegree1 []atomic.Int32
}

func newSystemScheduler() systemScheduler {
	return systemScheduler{dependents: make(map[int][]int)}
}

func (s *systemScheduler) register(sys scheduledSystem) {
	s.systems = append(s.systems, sys)
}

// build computes the dependency graph. Must be called after the last register and before Run.
func (s *systemScheduler) build() {
	indegree := make([]int, len(s.systems))
	s.dependents = make(map[int][]int, len(s.systems))

	for a := range s.systems {
		for b := a + 1; b < len(s.systems); b++ {
			if !intersects(s.systems[a].access, s.systems[b].access) {
				continue
			}
			s.dependents[a] = append(s.dependents[a], b)
			indegree[b]++
		}
	}

	s.indegree0 = make([]atomic.Int32, len(s.systems))
	s.indegree1 = make([]atomic.Int32, len(s.systems))
	s.active = 0
	s.roots = s.roots[:0]
	for i, n := range indegree {
		s.indegree0[i].Store(int32(n)) //nolint:gosec // bounded by the number of systems
		if n == 0 {
			s.roots = append(s.roots, i)
		}
	}
}

func intersects(a, b bitmap.Bitmap) bool {
	found := false
	a.Range(func(x uint32) {
		if !found && b.Contains(x) {
			found = true
		}
	})
	return found
}

// Run executes every system once. All systems run even when some fail; the errors are joined.
func (s *systemScheduler) Run(ctx context.Context) error {
	if len(s.systems) == 0 {
		return nil
	}

	current, next := s.swapIndegrees()
	ready := make(chan int, len(s.systems))
	for _, id := range s.roots {
		ready <- id
	}

	g := new(errgroup.Group)
	errCh := make(chan error, len(s.systems))
	for range s.systems {
		id := <-ready
		g.Go(func() error {
			// Dependents are released before returning so a failure never strands them.
			err := s.systems[id].run(ctx)
			for _, dep := range s.dependents[id] {
				next[dep].Add(1)
				if current[dep].Add(-1) == 0 {
					ready <- dep
				}
			}
			if err != nil {
				errCh <- eris.Wrapf(err, "system %s failed", s.systems[id].name)
			}
			return nil
		})
	}
	_ = g.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return eris.Wrap(errors.Join(errs...), "system returned an error")
	}
	return nil
}

func (s *systemScheduler) swapIndegrees() ([]atomic.Int32, []atomic.Int32) {
	first := s.active == 0
	s.active = 1 - s.active
	if first {
		return s.indegree0, s.indegree1
	}
	return s.indegree1, s.indegree0
}
