package testutils

import "github.com/argus-labs/ecstore/pkg/assert"

const genMaxDepth = 32

// Gen enumerates every sequence of bounded choices a test body makes. Wrap the body in
// `for !g.Done() { ... }` and draw choices from g; each pass sees a different combination until all
// of them were produced. Choices must be drawn in the same order on every pass.
//
// Done advances the last choice that is below its bound and resets every later choice, which walks
// the choice tree depth first. See https://matklad.github.io/2021/11/07/generate-all-the-things.html.
type Gen struct {
	started bool
	choices [genMaxDepth]genChoice
	pos     int // Choices drawn in the current pass
	depth   int // Choices recorded so far
}

type genChoice struct {
	value uint32
	bound uint32 // Inclusive
}

// NewGen creates a generator positioned before the first combination.
func NewGen() *Gen {
	return &Gen{}
}

// Done reports whether every combination was produced. It moves to the next combination otherwise.
func (g *Gen) Done() bool {
	if !g.started {
		g.started = true
		return false
	}
	for i := g.depth - 1; i >= 0; i-- {
		if g.choices[i].value < g.choices[i].bound {
			g.choices[i].value++
			g.depth = i + 1
			g.pos = 0
			return false
		}
	}
	return true
}

func (g *Gen) next(bound uint32) uint32 {
	assert.That(g.pos < genMaxDepth, "gen: more than %d choices in one pass", genMaxDepth)
	if g.pos == g.depth {
		g.choices[g.pos] = genChoice{}
		g.depth++
	}
	c := &g.choices[g.pos]
	c.bound = bound
	g.pos++
	return c.value
}

// Intn returns a value in [0, bound].
func (g *Gen) Intn(bound int) int {
	assert.That(bound >= 0, "gen: negative bound %d", bound)
	return int(g.next(uint32(bound))) //nolint:gosec // bounds are small in tests
}

// Index returns a valid index into a slice of the given length.
func (g *Gen) Index(length int) int {
	assert.That(length > 0, "gen: index into an empty slice")
	return g.Intn(length - 1)
}

// Bool returns both booleans across passes.
func (g *Gen) Bool() bool {
	return g.Intn(1) == 1
}

// Permute reorders s in place. Across passes every permutation of s is produced.
func Permute[T any](g *Gen, s []T) {
	for i := 0; i+1 < len(s); i++ {
		j := i + g.Intn(len(s)-1-i)
		s[i], s[j] = s[j], s[i]
	}
}

// Subset returns the elements of s selected by one choice each. Across passes every subset of s is
// produced, preserving the order of s.
func Subset[T any](g *Gen, s []T) []T {
	var out []T
	for _, v := range s {
		if g.Bool() {
			out = append(out, v)
		}
	}
	return out
}
