package domains

import "sort"

// ExceptionSet is an immutable set of domains that are never tracked.
// Replace the whole value to change it.
type ExceptionSet struct {
	members map[string]struct{}
}

func NewExceptionSet(list []string) ExceptionSet {
	normalized := NormalizeList(list)
	members := make(map[string]struct{}, len(normalized))
	for _, domain := range normalized {
		members[domain] = struct{}{}
	}
	return ExceptionSet{members: members}
}

func (s ExceptionSet) Contains(domain string) bool {
	if len(s.members) == 0 {
		return false
	}
	_, ok := s.members[domain]
	return ok
}

func (s ExceptionSet) Len() int {
	return len(s.members)
}

// List returns the members sorted alphabetically.
func (s ExceptionSet) List() []string {
	out := make([]string, 0, len(s.members))
	for domain := range s.members {
		out = append(out, domain)
	}
	sort.Strings(out)
	return out
}
