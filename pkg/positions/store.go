// Package positions holds the shared node id -> 3D coordinate map.
//
// The store has three clients: the layout engine replaces the whole map when a graph
// is laid out, drag interactions overwrite single entries, and the camera only reads.
// Writes to a single key go through a claimed Writer so that at most one actor owns a
// node's position at a time.
package positions

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrKeyClaimed is returned when a node's position is already owned by another writer.
var ErrKeyClaimed = errors.New("position already claimed")

// Store maps node ids to positions. Entries are never removed once set.
type Store struct {
	mu        sync.RWMutex
	positions map[string]r3.Vec
	owners    map[string]string // node id -> owner of the active writer
	version   uint64
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		positions: make(map[string]r3.Vec),
		owners:    make(map[string]string),
	}
}

// Replace swaps in a new position map wholesale.
func (s *Store) Replace(positions map[string]r3.Vec) {
	next := make(map[string]r3.Vec, len(positions))
	for id, p := range positions {
		next[id] = p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = next
	s.version++
}

// Get returns the position of a node
func (s *Store) Get(id string) (r3.Vec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[id]
	return p, ok
}

// Snapshot returns a copy of every position
func (s *Store) Snapshot() map[string]r3.Vec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]r3.Vec, len(s.positions))
	for id, p := range s.positions {
		out[id] = p
	}
	return out
}

// IDs returns the stored node ids, sorted
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.positions))
	for id := range s.positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of stored positions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positions)
}

// Version increases on every change; consumers compare it to detect updates.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Claim grants owner exclusive write access to one node's position until Release.
func (s *Store) Claim(id, owner string) (*Writer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, claimed := s.owners[id]; claimed {
		return nil, fmt.Errorf("%w: %s held by %s", ErrKeyClaimed, id, current)
	}
	s.owners[id] = owner
	return &Writer{store: s, id: id, owner: owner}, nil
}

// Owner returns the owner of the active writer for a node, if any
func (s *Store) Owner(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.owners[id]
	return owner, ok
}

// Writer is an exclusive handle on one node's position
type Writer struct {
	store    *Store
	id       string
	owner    string
	released bool
}

// ID returns the node id the writer owns
func (w *Writer) ID() string {
	return w.id
}

// Set writes the position. Returns false once the writer has been released.
func (w *Writer) Set(p r3.Vec) bool {
	s := w.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.released || s.owners[w.id] != w.owner {
		return false
	}
	s.positions[w.id] = p
	s.version++
	return true
}

// Release gives up ownership. Safe to call more than once.
func (w *Writer) Release() {
	s := w.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.released {
		return
	}
	w.released = true
	if s.owners[w.id] == w.owner {
		delete(s.owners, w.id)
	}
}
