package collector

// MatchIDSet is an insertion-ordered set of match IDs. Repeat appearances
// across players collapse to one entry.
type MatchIDSet struct {
	ids   []string
	index map[string]struct{}
}

func NewMatchIDSet() *MatchIDSet {
	return &MatchIDSet{index: make(map[string]struct{})}
}

// Add inserts id and reports whether it was new.
func (s *MatchIDSet) Add(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.ids = append(s.ids, id)
	return true
}

func (s *MatchIDSet) Contains(id string) bool {
	_, ok := s.index[id]
	return ok
}

func (s *MatchIDSet) Len() int {
	return len(s.ids)
}

// IDs returns the members in first-seen order.
func (s *MatchIDSet) IDs() []string {
	return append([]string(nil), s.ids...)
}
