package ecs

import (
	"github.com/argus-labs/ecstore/pkg/assert"
)

// columnFactory creates an empty column with room for capacity rows.
type columnFactory func(capacity int) abstractColumn

// abstractColumn is the type-erased view of a column used by structural moves, where the store
// does not know the concrete component type.
type abstractColumn interface {
	len() int
	extend()
	remove(row int)
	getAbstract(row int) any
	setAbstract(row int, value any)
	// copyTo copies the value at row into dst at dstRow. dst must hold the same component type.
	copyTo(row int, dst abstractColumn, dstRow int)
}

var _ abstractColumn = &column[Component]{}

// column stores one component type for every entity of an archetype. Its length always matches the
// archetype's entity slice.
type column[T Component] struct {
	components []T
}

func newColumn[T Component](capacity int) *column[T] {
	return &column[T]{components: make([]T, 0, max(capacity, 1))}
}

func newColumnFactory[T Component]() columnFactory {
	return func(capacity int) abstractColumn {
		return newColumn[T](capacity)
	}
}

func (c *column[T]) len() int {
	return len(c.components)
}

// extend appends a zero value row. The backing array doubles when full and is never shrunk.
func (c *column[T]) extend() {
	if len(c.components) == cap(c.components) {
		grown := make([]T, len(c.components), max(cap(c.components)*2, 1))
		copy(grown, c.components)
		c.components = grown
	}
	var zero T
	c.components = append(c.components, zero)
}

// set writes a row. Prefer it over setAbstract since it avoids boxing the value.
func (c *column[T]) set(row int, value T) {
	assert.That(row < len(c.components), "column row %d out of range %d", row, len(c.components))
	c.components[row] = value
}

// get reads a row. Prefer it over getAbstract since it avoids boxing the value.
func (c *column[T]) get(row int) T {
	assert.That(row < len(c.components), "column row %d out of range %d", row, len(c.components))
	return c.components[row]
}

// ptr returns a pointer into the backing array. It is invalidated by the next extend.
func (c *column[T]) ptr(row int) *T {
	assert.That(row < len(c.components), "column row %d out of range %d", row, len(c.components))
	return &c.components[row]
}

func (c *column[T]) getAbstract(row int) any {
	return c.get(row)
}

func (c *column[T]) setAbstract(row int, value any) {
	concrete, ok := value.(T)
	assert.That(ok, "column expects %T, got %T", concrete, value)
	c.set(row, concrete)
}

func (c *column[T]) copyTo(row int, dst abstractColumn, dstRow int) {
	target, ok := dst.(*column[T])
	assert.That(ok, "copying %T into a column of another type", c)
	target.components[dstRow] = c.components[row]
}

// remove swaps the last row into row and shortens the slice by one. The vacated tail is zeroed so
// any references held by the value can be collected.
func (c *column[T]) remove(row int) {
	assert.That(row < len(c.components), "column row %d out of range %d", row, len(c.components))

	last := len(c.components) - 1
	c.components[row] = c.components[last]

	var zero T
	c.components[last] = zero
	c.components = c.components[:last]
}
