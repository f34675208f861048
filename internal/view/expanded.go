package view

import "sort"

// ExpandedSet is the set of ticket ids whose details are shown.
type ExpandedSet struct {
	ids map[int64]struct{}
}

// NewExpandedSet returns an empty set.
func NewExpandedSet() *ExpandedSet {
	return &ExpandedSet{ids: make(map[int64]struct{})}
}

// Toggle adds id when absent and removes it when present. It reports whether
// id is expanded afterwards.
func (s *ExpandedSet) Toggle(id int64) bool {
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Has reports whether id is expanded.
func (s *ExpandedSet) Has(id int64) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of expanded ids.
func (s *ExpandedSet) Len() int { return len(s.ids) }

// IDs returns the expanded ids in ascending order.
func (s *ExpandedSet) IDs() []int64 {
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
