// Package store holds the session's append-only collection of photo
// embeddings, indexed 0..N-1 by insertion order.
package store

import (
	"fmt"

	"github.com/framefinder/visim/internal/domain"
)

// Entry is one (identifier, vector) pair at a fixed sequence index.
type Entry struct {
	ID     string
	Vector domain.Vector
}

// Store is an append-only ordered collection of embeddings. The session owns
// the vectors exclusively; the LSH index refers to them by sequence index
// only. The store itself is not synchronized: the owning session serializes
// writers and excludes them against readers.
type Store struct {
	entries []Entry
	byID    map[string]int
	dim     int
}

// New creates an empty store. Dimensionality is established by the first
// append, since it is not known until the network produces its first vector.
func New() *Store {
	return &Store{byID: make(map[string]int)}
}

// Append adds an (identifier, vector) pair and returns its sequence index.
// The first append fixes the store's dimensionality; any later vector of a
// different length fails with ErrDimensionMismatch and leaves the store
// untouched. Duplicate identifiers get their own sequence index, but ID
// lookups keep resolving to the first insertion.
func (s *Store) Append(id string, vector domain.Vector) (int, error) {
	if len(vector) == 0 {
		return 0, fmt.Errorf("empty vector for %q: %w", id, domain.ErrDimensionMismatch)
	}
	if s.dim == 0 {
		s.dim = len(vector)
	} else if len(vector) != s.dim {
		return 0, domain.NewDimensionMismatch(s.dim, len(vector))
	}

	seq := len(s.entries)
	s.entries = append(s.entries, Entry{ID: id, Vector: vector})
	if _, exists := s.byID[id]; !exists {
		s.byID[id] = seq
	}
	return seq, nil
}

// Get returns the entry at the given sequence index.
func (s *Store) Get(seq int) (Entry, error) {
	if seq < 0 || seq >= len(s.entries) {
		return Entry{}, fmt.Errorf("sequence index %d out of range [0, %d): %w",
			seq, len(s.entries), domain.ErrPhotoNotFound)
	}
	return s.entries[seq], nil
}

// Lookup returns the sequence index of the first entry with the given
// identifier.
func (s *Store) Lookup(id string) (int, bool) {
	seq, ok := s.byID[id]
	return seq, ok
}

// Size returns the number of stored entries.
func (s *Store) Size() int { return len(s.entries) }

// Dim returns the established dimensionality, 0 while the store is empty.
func (s *Store) Dim() int { return s.dim }
