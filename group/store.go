package group

import "sync"

// Store is a slot arena of groups with a per-stage hash index.
//
// Removing a group leaves a tombstone in its slot which the next Add
// reuses, so slot numbers of the remaining groups never move. Blocking is
// safe to call from any recording thread while other goroutines edit the
// store.
type Store struct {
	mu    sync.RWMutex
	slots []*Group
	free  []int
	byID  map[ID]int
	index [StageCount]map[uint32][]int

	editing ID
}

// NewStore creates an empty store.
func NewStore() *Store {
	s := &Store{byID: make(map[ID]int)}
	for i := range s.index {
		s.index[i] = make(map[uint32][]int)
	}
	return s
}

// Add inserts g and returns its slot.
func (s *Store) Add(g *Group) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slot, ok := s.byID[g.ID()]; ok {
		return slot
	}

	var slot int
	if n := len(s.free); n > 0 {
		slot = s.free[n-1]
		s.free = s.free[:n-1]
		s.slots[slot] = g
	} else {
		slot = len(s.slots)
		s.slots = append(s.slots, g)
	}
	s.byID[g.ID()] = slot
	s.indexGroup(slot, g)
	return slot
}

// Remove tombstones the group with id. It reports whether the group was
// present.
func (s *Store) Remove(id ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.byID[id]
	if !ok {
		return false
	}
	s.slots[slot] = nil
	s.free = append(s.free, slot)
	delete(s.byID, id)
	if s.editing == id {
		s.editing = 0
	}
	s.rebuild()
	return true
}

// Get returns the group with id.
func (s *Store) Get(id ID) (*Group, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return s.slots[slot], true
}

// All returns the live groups in slot order.
func (s *Store) All() []*Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Group, 0, len(s.byID))
	for _, g := range s.slots {
		if g != nil {
			out = append(out, g)
		}
	}
	return out
}

// Len returns the number of live groups.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Blocking appends to dst the active groups that list h for stage.
func (s *Store) Blocking(dst []*Group, stage Stage, h uint32) []*Group {
	if stage >= StageCount {
		return dst
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, slot := range s.index[stage][h] {
		if g := s.slots[slot]; g != nil && g.IsActive() {
			dst = append(dst, g)
		}
	}
	return dst
}

// Update runs fn on the group with id under the store's write lock and
// reindexes its hashes. It reports whether the group was found.
func (s *Store) Update(id ID, fn func(*Group)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.byID[id]
	if !ok {
		return false
	}
	fn(s.slots[slot])
	s.rebuild()
	return true
}

// RebuildIndex recomputes the hash index from the groups' current hash
// sets.
func (s *Store) RebuildIndex() {
	s.mu.Lock()
	s.rebuild()
	s.mu.Unlock()
}

func (s *Store) rebuild() {
	for i := range s.index {
		clear(s.index[i])
	}
	for slot, g := range s.slots {
		if g != nil {
			s.indexGroup(slot, g)
		}
	}
}

func (s *Store) indexGroup(slot int, g *Group) {
	for stage := range s.index {
		for h := range g.Hashes[stage] {
			s.index[stage][h] = append(s.index[stage][h], slot)
		}
	}
}

// SetEditing marks the group with id as the one under edit. A zero id ends
// editing.
func (s *Store) SetEditing(id ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.byID[s.editing]; ok {
		s.slots[prev].editing.Store(false)
	}
	s.editing = 0
	if slot, ok := s.byID[id]; ok {
		s.slots[slot].editing.Store(true)
		s.editing = id
	}
}

// Editing returns the group under edit.
func (s *Store) Editing() (*Group, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.byID[s.editing]
	if !ok {
		return nil, false
	}
	return s.slots[slot], true
}
