package filter

type contains struct {
	members []Member
}

// Contains matches signatures that carry every given member, and possibly others.
func Contains(members ...Member) ComponentFilter {
	return &contains{members: members}
}

func (f *contains) MatchesSignature(sig Signature) bool {
	for _, m := range f.members {
		if !has(sig, m) {
			return false
		}
	}
	return true
}
