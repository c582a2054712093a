package filter

type and struct {
	filters []ComponentFilter
}

// And matches when every filter matches. An empty And matches everything.
func And(filters ...ComponentFilter) ComponentFilter {
	return &and{filters: filters}
}

func (f *and) MatchesSignature(sig Signature) bool {
	for _, filter := range f.filters {
		if !filter.MatchesSignature(sig) {
			return false
		}
	}
	return true
}
