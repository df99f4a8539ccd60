// Package session owns one indexing session: the append-only vector store
// and the LSH index built over it. The session replaces ambient globals with
// an explicit object whose lifecycle is open, insert/query, close.
package session

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/framefinder/visim/internal/domain"
	"github.com/framefinder/visim/internal/index/lsh"
	"github.com/framefinder/visim/internal/metrics"
	"github.com/framefinder/visim/internal/store"
	"github.com/framefinder/visim/internal/usecase/query"
)

// Params configures the LSH index a session builds on first insertion.
type Params struct {
	NumHashTables      int
	HashSize           int
	Seed               int64 // 0 = random hyperplanes per session
	ExhaustiveFallback bool
}

// Session is the single logical writer over the store and index. Insertions
// take the write lock; queries take the read lock, so they run concurrently
// with each other but never observe a half-updated bucket.
//
// The index is built lazily on the first successful insertion, because the
// embedding dimensionality is unknown until the network produces a vector.
type Session struct {
	mu     sync.RWMutex
	store  *store.Store
	index  *lsh.Index
	ranker *query.Service
	params Params
	logger *zap.Logger
	closed bool
}

// Open creates a session. Index parameters are validated here so a
// misconfiguration fails at startup, not at first insertion.
func Open(params Params, logger *zap.Logger) (*Session, error) {
	if params.NumHashTables <= 0 {
		return nil, fmt.Errorf("numHashTables must be > 0, got %d: %w",
			params.NumHashTables, domain.ErrConfiguration)
	}
	if params.HashSize <= 0 {
		return nil, fmt.Errorf("hashSize must be > 0, got %d: %w",
			params.HashSize, domain.ErrConfiguration)
	}
	return &Session{
		store:  store.New(),
		params: params,
		logger: logger,
	}, nil
}

// Insert appends an (identifier, vector) pair to the store and the index,
// returning the assigned sequence index. The first insertion fixes the
// session's dimensionality and instantiates the LSH index.
func (s *Session) Insert(id string, vector domain.Vector) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, domain.ErrSessionClosed
	}

	if s.index == nil {
		opts := []lsh.Option{
			lsh.WithNumTables(s.params.NumHashTables),
			lsh.WithHashSize(s.params.HashSize),
		}
		if s.params.Seed != 0 {
			opts = append(opts, lsh.WithSeed(s.params.Seed))
		}
		ix, err := lsh.New(len(vector), opts...)
		if err != nil {
			return 0, fmt.Errorf("build index: %w", err)
		}
		s.index = ix
		s.ranker = query.New(ix, s.store, s.params.ExhaustiveFallback)
		s.logger.Info("LSH index built",
			zap.Int("dimensionality", len(vector)),
			zap.Int("num_hash_tables", s.params.NumHashTables),
			zap.Int("hash_size", s.params.HashSize),
		)
	}

	seq, err := s.store.Append(id, vector)
	if err != nil {
		return 0, fmt.Errorf("append %q: %w", id, err)
	}
	// Dimensionality already validated by the append, so the index insert
	// can only fail on a mismatch the store would have caught first.
	if err := s.index.Add(vector, seq); err != nil {
		return 0, fmt.Errorf("index %q: %w", id, err)
	}

	metrics.IndexedVectors.Set(float64(s.store.Size()))
	return seq, nil
}

// InsertResults appends every successful extraction result in order and
// returns the identifiers that were indexed. Failed results are skipped,
// keeping the identifier-to-vector pairing of the survivors intact.
func (s *Session) InsertResults(results []domain.ExtractionResult) ([]string, error) {
	inserted := make([]string, 0, len(results))
	for _, res := range results {
		if !res.OK() {
			continue
		}
		if _, err := s.Insert(res.ID(), res.Vector()); err != nil {
			return inserted, err
		}
		inserted = append(inserted, res.ID())
	}
	return inserted, nil
}

// Query returns up to k indexed photos ordered by ascending distance to the
// query vector. A session with no insertions yet returns an empty list.
func (s *Session) Query(vector domain.Vector, k int) ([]query.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, domain.ErrSessionClosed
	}
	if s.index == nil {
		// "No similar images" is an answer, not a failure.
		return []query.Match{}, nil
	}
	return s.ranker.Query(vector, k)
}

// QueryByID answers "photos similar to this already-indexed photo", using
// its stored vector and excluding the photo itself from the results.
func (s *Session) QueryByID(id string, k int) ([]query.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, domain.ErrSessionClosed
	}
	if s.index == nil {
		return nil, fmt.Errorf("no photos indexed: %w", domain.ErrPhotoNotFound)
	}

	seq, ok := s.store.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%q: %w", id, domain.ErrPhotoNotFound)
	}
	entry, err := s.store.Get(seq)
	if err != nil {
		return nil, err
	}

	// Ask for one extra match so dropping the photo itself still yields k.
	matches, err := s.ranker.Query(entry.Vector, k+1)
	if err != nil {
		return nil, err
	}
	out := make([]query.Match, 0, k)
	for _, m := range matches {
		if m.Seq == seq {
			continue
		}
		out = append(out, m)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Ready reports whether the index has been built (at least one insertion).
func (s *Session) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index != nil
}

// Size returns the number of indexed photos.
func (s *Session) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Size()
}

// Dim returns the session's dimensionality, 0 before the first insertion.
func (s *Session) Dim() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Dim()
}

// Close tears the session down. Store and index are in-memory only and are
// discarded; further operations fail with ErrSessionClosed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.logger.Info("session closed", zap.Int("indexed_photos", s.store.Size()))
}
