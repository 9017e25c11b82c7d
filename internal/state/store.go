package state

import (
	"sync"

	"github.com/dirsync/server/internal/snapshot"
)

// Store holds the single authoritative snapshot of the watched directory.
// Exactly one snapshot is current at any instant; each submission replaces it
// wholesale and the stored value is never mutated in place.
type Store struct {
	mu         sync.RWMutex
	current    snapshot.Snapshot
	generation uint64
}

// NewStore seeds the store with an initial snapshot, which may be empty.
func NewStore(initial snapshot.Snapshot) *Store {
	return &Store{current: initial}
}

// Submit replaces the current snapshot with next and returns the delta
// against the snapshot it replaced. Read, diff and replace happen under one
// lock, so concurrent submissions serialize: the second of two racing
// submissions is diffed against the first's result. Divergent concurrent
// views are not merged; last writer wins.
func (s *Store) Submit(next snapshot.Snapshot) snapshot.Delta {
	s.mu.Lock()
	defer s.mu.Unlock()
	delta := snapshot.Diff(s.current, next)
	s.current = next
	s.generation++
	return delta
}

// Current returns the snapshot that is current right now. Snapshot values are
// immutable, so the caller cannot affect the store through the return value.
func (s *Store) Current() snapshot.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Generation returns the number of submissions accepted so far.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}
