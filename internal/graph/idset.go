package graph

import (
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// IDSet is a grow-only set of node ids. Ids are interned to uint32 and
// membership lives in a roaring bitmap, so large sessions stay compact.
type IDSet struct {
	mu       sync.RWMutex
	bm       *roaring.Bitmap
	internID map[string]uint32 // node id -> internal bitmap id
	idNames  []string          // reverse: internal id -> node id
}

func NewIDSet() *IDSet {
	return &IDSet{
		bm:       roaring.New(),
		internID: make(map[string]uint32),
	}
}

// Add inserts id and reports whether it was not already present.
func (s *IDSet) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bm.CheckedAdd(s.intern(id))
}

// AddAll inserts ids and returns how many were new.
func (s *IDSet) AddAll(ids []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, id := range ids {
		if s.bm.CheckedAdd(s.intern(id)) {
			added++
		}
	}
	return added
}

// Contains reports membership.
func (s *IDSet) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.internID[id]
	return ok && s.bm.Contains(n)
}

// Len returns the number of members.
func (s *IDSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(s.bm.GetCardinality())
}

// IDs returns the members in insertion order.
func (s *IDSet) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, s.bm.GetCardinality())
	it := s.bm.Iterator()
	for it.HasNext() {
		out = append(out, s.idNames[it.Next()])
	}
	return out
}

// intern must be called with s.mu held for writing.
func (s *IDSet) intern(id string) uint32 {
	if n, ok := s.internID[id]; ok {
		return n
	}
	n := uint32(len(s.idNames))
	s.internID[id] = n
	s.idNames = append(s.idNames, id)
	return n
}
