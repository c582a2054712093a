package filter

type exact struct {
	members    []Member
	components int
	tags       int
}

// Exact matches signatures made of exactly the given members. Duplicate members are counted once.
func Exact(members ...Member) ComponentFilter {
	f := &exact{}
	seen := make(map[Member]struct{}, len(members))
	for _, m := range members {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		f.members = append(f.members, m)
		if m.Tag {
			f.tags++
		} else {
			f.components++
		}
	}
	return f
}

func (f *exact) MatchesSignature(sig Signature) bool {
	if sig.ComponentCount() != f.components || sig.TagCount() != f.tags {
		return false
	}
	for _, m := range f.members {
		if !has(sig, m) {
			return false
		}
	}
	return true
}
