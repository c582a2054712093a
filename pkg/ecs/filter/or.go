package filter

type or struct {
	filters []ComponentFilter
}

// Or matches when at least one filter matches.
func Or(filters ...ComponentFilter) ComponentFilter {
	return &or{filters: filters}
}

func (f *or) MatchesSignature(sig Signature) bool {
	for _, filter := range f.filters {
		if filter.MatchesSignature(sig) {
			return true
		}
	}
	return false
}
