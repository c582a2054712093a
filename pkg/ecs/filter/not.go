package filter

type not struct {
	filter ComponentFilter
}

// Not inverts a filter.
func Not(filter ComponentFilter) ComponentFilter {
	return &not{filter: filter}
}

func (f *not) MatchesSignature(sig Signature) bool {
	return !f.filter.MatchesSignature(sig)
}
