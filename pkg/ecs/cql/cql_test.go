package cql_test

import (
	"testing"

	"github.com/argus-labs/ecstore/pkg/ecs/cql"
	"github.com/argus-labs/ecstore/pkg/ecs/filter"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var members = map[string]filter.Member{
	"position": filter.Component(0),
	"velocity": filter.Component(1),
	"health":   filter.Component(2),
	"frozen":   filter.TagMember(0),
}

func resolve(name string) (filter.Member, error) {
	m, ok := members[name]
	if !ok {
		return filter.Member{}, eris.New("not registered")
	}
	return m, nil
}

type signature struct {
	components []uint32
	tags       []uint32
}

func (s signature) HasComponent(id uint32) bool {
	for _, c := range s.components {
		if c == id {
			return true
		}
	}
	return false
}

func (s signature) HasTag(id uint32) bool {
	for _, c := range s.tags {
		if c == id {
			return true
		}
	}
	return false
}

func (s signature) ComponentCount() int { return len(s.components) }
func (s signature) TagCount() int       { return len(s.tags) }

func TestParse(t *testing.T) {
	t.Parallel()

	moving := signature{components: []uint32{0, 1}}
	frozenMoving := signature{components: []uint32{0, 1}, tags: []uint32{0}}
	static := signature{components: []uint32{0, 2}}

	tests := []struct {
		query string
		sig   signature
		want  bool
	}{
		{query: "ALL()", sig: static, want: true},
		{query: "CONTAINS(position)", sig: moving, want: true},
		{query: "CONTAINS(position, velocity)", sig: static, want: false},
		{query: "EXACT(velocity, position)", sig: moving, want: true},
		{query: "EXACT(position)", sig: moving, want: false},
		{query: "CONTAINS(velocity) & !CONTAINS(frozen)", sig: moving, want: true},
		{query: "CONTAINS(velocity) & !CONTAINS(frozen)", sig: frozenMoving, want: false},
		{query: "CONTAINS(health) | CONTAINS(frozen)", sig: frozenMoving, want: true},
		{query: "!(CONTAINS(health) | CONTAINS(frozen))", sig: moving, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			t.Parallel()
			f, err := cql.Parse(tt.query, resolve)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.MatchesSignature(tt.sig))
		})
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
	}{
		{name: "unknown name", query: "CONTAINS(mana)"},
		{name: "empty call", query: "CONTAINS()"},
		{name: "dangling operator", query: "CONTAINS(position) &"},
		{name: "garbage", query: "position"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := cql.Parse(tt.query, resolve)
			assert.Error(t, err)
		})
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	out, err := cql.Format("CONTAINS(position,velocity)&!EXACT(health)")
	require.NoError(t, err)
	assert.Equal(t, "CONTAINS(position, velocity) & !EXACT(health)", out)
}
