package ecs

import (
	"slices"
	"testing"

	"github.com/argus-labs/ecstore/pkg/testutils"
	"github.com/stretchr/testify/assert"
)

// -------------------------------------------------------------------------------------------------
// Exhaustive interning
// -------------------------------------------------------------------------------------------------
// Every subset of a small member pool, in every order and with duplicates, must intern to the same
// pointer as its canonical form.
// -------------------------------------------------------------------------------------------------

func TestSignature_InternExhaustive(t *testing.T) {
	t.Parallel()
	reg, tt := newTestRegistry(t)

	pool := []Member{tt.position.Member(), tt.health.Member(), tt.team.Member(), tt.frozen.Member()}

	g := testutils.NewGen()
	for !g.Done() {
		subset := testutils.Subset(g, pool)
		canonical := reg.Signature(subset...)

		members := slices.Clone(subset)
		testutils.Permute(g, members)
		if len(members) > 0 && g.Bool() {
			members = append(members, members[0])
		}

		got := reg.Signature(members...)

		// Property: order and duplicates do not matter.
		assert.Same(t, canonical, got, "signature of %v", members)

		// Property: membership matches the subset exactly.
		assert.Equal(t, len(subset), got.Len())
		for _, m := range pool {
			assert.Equal(t, slices.Contains(subset, m), got.Has(m), "member %v", m)
		}
	}

	// Property: one signature per subset.
	assert.Equal(t, 1<<len(pool), reg.SignatureCount())
}

func TestSignature_Empty(t *testing.T) {
	t.Parallel()
	reg, _ := newTestRegistry(t)

	empty := reg.EmptySignature()
	assert.Equal(t, uint32(0), empty.ID())
	assert.Same(t, empty, reg.Signature())
	assert.Zero(t, empty.Len())
	assert.Equal(t, "{}", empty.String())
}

func TestSignature_WithWithout(t *testing.T) {
	t.Parallel()
	reg, tt := newTestRegistry(t)

	pos := reg.Signature(tt.position.Member())
	posHealth := reg.Signature(tt.position.Member(), tt.health.Member())

	assert.Same(t, posHealth, pos.With(tt.health.Member()))
	assert.Same(t, pos, posHealth.Without(tt.health.Member()))

	// Property: adding a present member or removing an absent one returns the receiver.
	assert.Same(t, pos, pos.With(tt.position.Member()))
	assert.Same(t, pos, pos.Without(tt.velocity.Member()))

	// Property: edges are cached, so repeated moves create no new signatures.
	count := reg.SignatureCount()
	for range 3 {
		frozen := posHealth.With(tt.frozen.Member())
		assert.Same(t, posHealth, frozen.Without(tt.frozen.Member()))
		assert.True(t, frozen.HasTag(tt.frozen.ID()))
	}
	assert.Equal(t, count+1, reg.SignatureCount())
}

func TestSignature_ContainsAll(t *testing.T) {
	t.Parallel()
	reg, tt := newTestRegistry(t)

	a, b, c := tt.position.Member(), tt.velocity.Member(), tt.health.Member()
	tag := tt.frozen.Member()

	tests := []struct {
		name  string
		sig   []Member
		other []Member
		want  bool
	}{
		{name: "equal", sig: []Member{a, b}, other: []Member{b, a}, want: true},
		{name: "superset", sig: []Member{a, b, c}, other: []Member{a, c}, want: true},
		{name: "subset", sig: []Member{a}, other: []Member{a, b}, want: false},
		{name: "disjoint", sig: []Member{a}, other: []Member{b}, want: false},
		{name: "empty other", sig: []Member{a}, other: nil, want: true},
		{name: "tag required", sig: []Member{a}, other: []Member{a, tag}, want: false},
		{name: "tag present", sig: []Member{a, tag}, other: []Member{tag}, want: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, reg.Signature(tc.sig...).ContainsAll(reg.Signature(tc.other...)))
		})
	}
}

func TestSignature_String(t *testing.T) {
	t.Parallel()
	reg, tt := newTestRegistry(t)

	sig := reg.Signature(tt.health.Member(), tt.player.Member(), tt.position.Member(), tt.frozen.Member())
	assert.Equal(t, "{c0,c2|t0,t1}", sig.String())
}
