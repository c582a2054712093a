package ecs

import "github.com/argus-labs/ecstore/pkg/assert"

// sparseSet maps small integer keys to non-negative ints. Missing keys hold sparseTombstone. It
// backs lookups keyed by registry index where a map would be slower.
type sparseSet []int

const sparseTombstone = -1

// newSparseSet creates a sparse set with room for keys below capacity.
func newSparseSet(capacity int) sparseSet {
	s := make(sparseSet, capacity)
	for i := range s {
		s[i] = sparseTombstone
	}
	return s
}

// get returns the value for a key and whether it exists.
func (s sparseSet) get(key uint32) (int, bool) {
	if int(key) >= len(s) {
		return 0, false
	}
	value := s[key]
	if value == sparseTombstone {
		return 0, false
	}
	return value, true
}

// set stores a value for a key, growing the backing slice by doubling if needed.
func (s *sparseSet) set(key uint32, value int) {
	assert.That(value >= 0, "sparse set values must be non-negative")

	if int(key) >= len(*s) {
		oldLen := len(*s)
		grown := make(sparseSet, max(oldLen*2, int(key)+1))
		copy(grown, *s)
		for i := oldLen; i < len(grown); i++ {
			grown[i] = sparseTombstone
		}
		*s = grown
	}
	(*s)[key] = value
}

// remove clears a key. Returns true if the key existed.
func (s sparseSet) remove(key uint32) bool {
	if int(key) >= len(s) || s[key] == sparseTombstone {
		return false
	}
	s[key] = sparseTombstone
	return true
}
