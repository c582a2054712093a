// Package filter provides composable predicates over archetype signatures. Filters never look at
// component values, only at which component and tag kinds an archetype carries, so a filter is
// evaluated once per archetype rather than once per entity.
package filter

// Member identifies one component or tag kind by its registry index.
type Member struct {
	ID  uint32
	Tag bool
}

// Component returns the member for a component kind index.
func Component(id uint32) Member { return Member{ID: id} }

// TagMember returns the member for a tag kind index.
func TagMember(id uint32) Member { return Member{ID: id, Tag: true} }

// Signature is the read-only view of an archetype signature that filters match against.
type Signature interface {
	HasComponent(id uint32) bool
	HasTag(id uint32) bool
	ComponentCount() int
	TagCount() int
}

// ComponentFilter matches archetype signatures.
type ComponentFilter interface {
	// MatchesSignature returns true if archetypes with the signature should be included.
	MatchesSignature(sig Signature) bool
}

func has(sig Signature, m Member) bool {
	if m.Tag {
		return sig.HasTag(m.ID)
	}
	return sig.HasComponent(m.ID)
}
