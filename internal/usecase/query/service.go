// Package query re-ranks LSH candidates by exact Euclidean distance to
// produce an ordered top-k result list.
package query

import (
	"fmt"
	"sort"
	"time"

	"github.com/framefinder/visim/internal/domain"
	"github.com/framefinder/visim/internal/index/lsh"
	"github.com/framefinder/visim/internal/metrics"
	"github.com/framefinder/visim/internal/store"
)

// Match is one re-ranked result: a stored photo and its exact distance to
// the query vector.
type Match struct {
	Seq      int
	ID       string
	Distance float64
}

// Service answers top-k similarity queries against a store and its LSH
// index. Read-only: the owning session may run queries concurrently with
// each other but never with an in-progress insertion.
type Service struct {
	index              *lsh.Index
	vectors            *store.Store
	exhaustiveFallback bool
}

// New creates a query service. When exhaustiveFallback is set and the
// candidate set is smaller than k, the service re-ranks the whole store
// instead of under-returning; approximate search may otherwise legitimately
// return fewer than k results.
func New(index *lsh.Index, vectors *store.Store, exhaustiveFallback bool) *Service {
	return &Service{index: index, vectors: vectors, exhaustiveFallback: exhaustiveFallback}
}

// Query returns up to k stored photos ordered by ascending Euclidean
// distance to the query vector, ties broken by ascending sequence index. An
// empty store or an empty candidate set yields an empty slice, not an error.
func (s *Service) Query(vector domain.Vector, k int) ([]Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be > 0, got %d: %w", k, domain.ErrConfiguration)
	}
	if s.vectors.Size() == 0 {
		return []Match{}, nil
	}
	if len(vector) != s.vectors.Dim() {
		return nil, domain.NewDimensionMismatch(s.vectors.Dim(), len(vector))
	}

	start := time.Now()

	candidates, err := s.index.Candidates(vector)
	if err != nil {
		return nil, fmt.Errorf("lsh candidates: %w", err)
	}
	metrics.QueryCandidates.Observe(float64(len(candidates)))

	if s.exhaustiveFallback && len(candidates) < k {
		candidates = candidates[:0]
		for seq := 0; seq < s.vectors.Size(); seq++ {
			candidates = append(candidates, seq)
		}
	}

	matches := make([]Match, 0, len(candidates))
	for _, seq := range candidates {
		entry, err := s.vectors.Get(seq)
		if err != nil {
			// A candidate the store does not know about means the index and
			// store went out of sync; surface it rather than skip it.
			return nil, fmt.Errorf("candidate %d: %w", seq, err)
		}
		matches = append(matches, Match{
			Seq:      seq,
			ID:       entry.ID,
			Distance: domain.Euclidean(vector, entry.Vector),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Seq < matches[j].Seq
	})

	if len(matches) > k {
		matches = matches[:k]
	}

	metrics.QueryDuration.Observe(time.Since(start).Seconds())
	return matches, nil
}
