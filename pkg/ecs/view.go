package ecs

// Views bind a set of component types once and hand out pointers into the columns, so the loop
// body reads and writes components without lookups. Writes through the pointers are not seen by
// indexes or observers; use SetComponent for indexed components.

// View1 iterates the entities holding A.
type View1[A Component] struct {
	query *Query
	a     ComponentType[A]
}

// NewView1 creates a view over the entities holding A and none of excludedTags.
func NewView1[A Component](s *Store, a ComponentType[A], excludedTags ...Member) *View1[A] {
	sig := s.reg.Signature(a.Member())
	return &View1[A]{query: NewQuery(s, sig, excludedTags...), a: a}
}

// Query returns the query backing the view.
func (v *View1[A]) Query() *Query {
	return v.query
}

// Each calls fn for every entity until it returns false.
func (v *View1[A]) Each(fn func(EntityID, *A) bool) {
	for chunk := range v.query.Chunks() {
		as := Column(chunk, v.a)
		for i, id := range chunk.Entities() {
			if !fn(id, &as[i]) {
				return
			}
		}
	}
}

// View2 iterates the entities holding A and B.
type View2[A, B Component] struct {
	query *Query
	a     ComponentType[A]
	b     ComponentType[B]
}

func NewView2[A, B Component](
	s *Store, a ComponentType[A], b ComponentType[B], excludedTags ...Member,
) *View2[A, B] {
	sig := s.reg.Signature(a.Member(), b.Member())
	return &View2[A, B]{query: NewQuery(s, sig, excludedTags...), a: a, b: b}
}

func (v *View2[A, B]) Query() *Query {
	return v.query
}

func (v *View2[A, B]) Each(fn func(EntityID, *A, *B) bool) {
	for chunk := range v.query.Chunks() {
		as, bs := Column(chunk, v.a), Column(chunk, v.b)
		for i, id := range chunk.Entities() {
			if !fn(id, &as[i], &bs[i]) {
				return
			}
		}
	}
}

// View3 iterates the entities holding A, B and C.
type View3[A, B, C Component] struct {
	query *Query
	a     ComponentType[A]
	b     ComponentType[B]
	c     ComponentType[C]
}

func NewView3[A, B, C Component](
	s *Store, a ComponentType[A], b ComponentType[B], c ComponentType[C], excludedTags ...Member,
) *View3[A, B, C] {
	sig := s.reg.Signature(a.Member(), b.Member(), c.Member())
	return &View3[A, B, C]{query: NewQuery(s, sig, excludedTags...), a: a, b: b, c: c}
}

func (v *View3[A, B, C]) Query() *Query {
	return v.query
}

func (v *View3[A, B, C]) Each(fn func(EntityID, *A, *B, *C) bool) {
	for chunk := range v.query.Chunks() {
		as, bs, cs := Column(chunk, v.a), Column(chunk, v.b), Column(chunk, v.c)
		for i, id := range chunk.Entities() {
			if !fn(id, &as[i], &bs[i], &cs[i]) {
				return
			}
		}
	}
}
