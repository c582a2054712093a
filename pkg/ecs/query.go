package ecs

import (
	"context"
	"iter"
	"runtime"

	"github.com/argus-labs/ecstore/pkg/ecs/filter"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// Query selects the entities whose signature contains every required member, none of the excluded
// members and, when set, satisfies a component filter. The matching archetype list is cached and
// extended only with archetypes created since the last refresh.
type Query struct {
	store    *Store
	required *Signature
	excluded []Member
	filter   filter.ComponentFilter

	archetypes []*archetype
	scanned    int    // Number of store archetypes already tested
	generation uint64 // Store generation the cache was built at
}

// NewQuery creates a query over the archetypes that contain required and none of excludedTags. A
// nil required signature matches every archetype.
func NewQuery(s *Store, required *Signature, excludedTags ...Member) *Query {
	if required == nil {
		required = s.reg.EmptySignature()
	}
	return &Query{store: s, required: required, excluded: excludedTags}
}

// NewFilterQuery creates a query whose match rule is f.
func NewFilterQuery(s *Store, f filter.ComponentFilter) *Query {
	return &Query{store: s, required: s.reg.EmptySignature(), filter: f}
}

// Required returns the signature every matched entity contains.
func (q *Query) Required() *Signature {
	return q.required
}

func (q *Query) matches(sig *Signature) bool {
	if !sig.ContainsAll(q.required) {
		return false
	}
	for _, m := range q.excluded {
		if sig.Has(m) {
			return false
		}
	}
	return q.filter == nil || q.filter.MatchesSignature(sig)
}

// refresh tests the archetypes created since the previous call.
func (q *Query) refresh() {
	if q.generation == q.store.generation && q.scanned == len(q.store.archetypes) {
		return
	}
	for _, arch := range q.store.archetypes[q.scanned:] {
		if q.matches(arch.sig) {
			q.archetypes = append(q.archetypes, arch)
		}
	}
	q.scanned = len(q.store.archetypes)
	q.generation = q.store.generation
}

// Chunks yields one chunk per non-empty matching archetype. Entities deleted while the iteration is
// running keep their ids out of reuse until it ends.
func (q *Query) Chunks() iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		q.refresh()
		archs := q.archetypes

		q.store.beginIteration()
		defer q.store.endIteration()

		for _, arch := range archs {
			if arch.len() == 0 {
				continue
			}
			if !yield(Chunk{arch: arch}) {
				return
			}
		}
	}
}

// Entities yields every matching entity id.
func (q *Query) Entities() iter.Seq[EntityID] {
	return func(yield func(EntityID) bool) {
		for chunk := range q.Chunks() {
			for _, id := range chunk.Entities() {
				if !yield(id) {
					return
				}
			}
		}
	}
}

// Count returns the number of matching entities.
func (q *Query) Count() int {
	q.refresh()
	n := 0
	for _, arch := range q.archetypes {
		n += arch.len()
	}
	return n
}

// First returns the first matching entity.
func (q *Query) First() (EntityID, bool) {
	for id := range q.Entities() {
		return id, true
	}
	return 0, false
}

// ParallelChunks calls fn for every non-empty matching chunk on up to limit goroutines. A limit of
// 0 uses the store's configured limit, or GOMAXPROCS when that is 0 too. fn may read and write the
// columns of its own chunk but must not change the store structurally. The first error cancels ctx
// and is returned.
func (q *Query) ParallelChunks(ctx context.Context, limit int, fn func(context.Context, Chunk) error) error {
	if limit <= 0 {
		limit = q.store.opts.ParallelChunkLimit
	}
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	q.refresh()
	q.store.beginIteration()
	defer q.store.endIteration()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, arch := range q.archetypes {
		if arch.len() == 0 {
			continue
		}
		chunk := Chunk{arch: arch}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(ctx, chunk)
		})
	}
	return g.Wait()
}

// Where narrows the query with a boolean expression over the entity's component values. Components
// are bound by name and the entity id is bound to _id, e.g. `health.HP > 10 && _id != 3`.
func (q *Query) Where(expression string) (*Selection, error) {
	program, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, eris.Wrap(err, "failed to parse where clause")
	}
	return &Selection{query: q, program: program}, nil
}

// -------------------------------------------------------------------------------------------------
// Chunk
// -------------------------------------------------------------------------------------------------

// Chunk is the contiguous storage of one archetype. Its slices alias store memory and are only
// valid until the next structural change.
type Chunk struct {
	arch *archetype
}

// Entities returns the ids of the chunk, parallel to every column.
func (c Chunk) Entities() []EntityID {
	return c.arch.entities
}

func (c Chunk) Len() int {
	return c.arch.len()
}

func (c Chunk) Signature() *Signature {
	return c.arch.sig
}

// Column returns the column of T in the chunk. Row i belongs to chunk.Entities()[i]. Returns nil
// when the chunk does not hold T.
func Column[T Component](c Chunk, ct ComponentType[T]) []T {
	if !c.arch.sig.HasComponent(ct.ID()) {
		return nil
	}
	return typedColumn[T](c.arch, ct.ID()).components
}

// -------------------------------------------------------------------------------------------------
// Selection
// -------------------------------------------------------------------------------------------------

// Selection is a query narrowed by a where expression.
type Selection struct {
	query   *Query
	program *vm.Program
}

// Each calls fn for every entity that satisfies the expression until fn returns false.
func (sel *Selection) Each(fn func(EntityID) bool) error {
	reg := sel.query.store.reg
	for chunk := range sel.query.Chunks() {
		arch := chunk.arch
		for row, id := range arch.entities {
			env := make(map[string]any, len(arch.columns)+1)
			// expr can't compare EntityID with plain integer literals.
			env["_id"] = uint32(id)
			for i, cid := range arch.sig.components {
				env[reg.component(cid).Name] = arch.columns[i].getAbstract(row)
			}

			ok, err := matchesExpression(sel.program, env)
			if err != nil {
				return eris.Wrapf(err, "entity %d", id)
			}
			if ok && !fn(id) {
				return nil
			}
		}
	}
	return nil
}

// Entities returns the matching entity ids.
func (sel *Selection) Entities() ([]EntityID, error) {
	var ids []EntityID
	err := sel.Each(func(id EntityID) bool {
		ids = append(ids, id)
		return true
	})
	return ids, err
}

// Count returns the number of matching entities.
func (sel *Selection) Count() (int, error) {
	n := 0
	err := sel.Each(func(EntityID) bool {
		n++
		return true
	})
	return n, err
}

func matchesExpression(program *vm.Program, env map[string]any) (bool, error) {
	output, err := expr.Run(program, env)
	if err != nil {
		return false, eris.Wrap(err, "failed to run where clause")
	}
	// The program is compiled without an environment, so the result type is only known here.
	matched, ok := output.(bool)
	if !ok {
		return false, eris.New("where clause did not evaluate to a bool")
	}
	return matched, nil
}
