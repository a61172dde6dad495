package graph

import (
	"errors"
	"sync"
)

var ErrNotFound = errors.New("node not found")

// Record is one reconciled node. It stays an open map so that overlays
// never drop fields the typed schema does not know about.
type Record map[string]any

func (r Record) ID() string       { return r.str("id") }
func (r Record) Name() string     { return r.str("name") }
func (r Record) Type() string     { return r.str("type") }
func (r Record) ParentID() string { return r.str("parentId") }

func (r Record) str(key string) string {
	s, _ := r[key].(string)
	return s
}

// Float returns a numeric field.
func (r Record) Float(key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// List returns an array field.
func (r Record) List(key string) []any {
	v, _ := r[key].([]any)
	return v
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Store holds reconciled records keyed by id, plus the parent->children
// adjacency derived from parentId back-references.
type Store struct {
	mu       sync.RWMutex
	nodes    map[string]Record
	order    []string            // first-insertion order
	children map[string][]string // parent id -> child ids, insertion order
}

func NewStore() *Store {
	return &Store{
		nodes:    make(map[string]Record),
		children: make(map[string][]string),
	}
}

// Put inserts or replaces the record with the same id. Records without an
// id are ignored.
func (s *Store) Put(r Record) {
	id := r.ID()
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.nodes[id]
	if !exists {
		s.order = append(s.order, id)
	} else if prev.ParentID() != r.ParentID() {
		s.unlink(prev.ParentID(), id)
	}
	s.nodes[id] = r
	if p := r.ParentID(); p != "" && (!exists || prev.ParentID() != p) {
		s.children[p] = append(s.children[p], id)
	}
}

// unlink must be called with s.mu held.
func (s *Store) unlink(parent, id string) {
	if parent == "" {
		return
	}
	kids := s.children[parent]
	for i, c := range kids {
		if c == id {
			s.children[parent] = append(kids[:i:i], kids[i+1:]...)
			return
		}
	}
}

// Get returns the record for id.
func (s *Store) Get(id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

// Has reports whether id is stored.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[id]
	return ok
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// IDs returns ids in first-insertion order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Records returns all records in first-insertion order.
func (s *Store) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.nodes[id])
	}
	return out
}

// ListChildren returns the direct children of id.
func (s *Store) ListChildren(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.children[id]...)
}

// Adjacency returns parent->children for every parent in ids that has
// children.
func (s *Store) Adjacency(ids []string) map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]string)
	for _, id := range ids {
		if kids := s.children[id]; len(kids) > 0 {
			out[id] = append([]string(nil), kids...)
		}
	}
	return out
}

// Subtree returns root and every node reachable from it through the
// adjacency, breadth first. Ids already in claimed are not entered, and
// every visited id is added to claimed, so a node lands in at most one
// subtree and cycles terminate. claimed may be nil.
func (s *Store) Subtree(root string, claimed *IDSet) []string {
	if claimed == nil {
		claimed = NewIDSet()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.nodes[root]; !ok {
		return nil
	}
	if !claimed.Add(root) {
		return nil
	}
	out := []string{root}
	for i := 0; i < len(out); i++ {
		for _, c := range s.children[out[i]] {
			if _, ok := s.nodes[c]; !ok {
				continue
			}
			if claimed.Add(c) {
				out = append(out, c)
			}
		}
	}
	return out
}
