package graph

// pageLike parent types. A FRAME directly under one of these is a root frame.
var pageLike = map[string]bool{"": true, "DOCUMENT": true, "CANVAS": true, "PAGE": true, "SECTION": true}

// IsRootFrame reports whether r is a FRAME whose parent is absent, unknown
// to the store, or page-like.
func (s *Store) IsRootFrame(r Record) bool {
	if r.Type() != "FRAME" {
		return false
	}
	parent := r.ParentID()
	if parent == "" {
		return true
	}
	p, err := s.Get(parent)
	if err != nil {
		return true
	}
	return pageLike[p.Type()]
}

// RootFrames returns the ids of every root frame in insertion order.
func (s *Store) RootFrames() []string {
	var out []string
	for _, r := range s.Records() {
		if s.IsRootFrame(r) {
			out = append(out, r.ID())
		}
	}
	return out
}
