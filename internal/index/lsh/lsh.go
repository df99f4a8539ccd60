// Package lsh implements an approximate nearest-neighbor index over random
// hyperplane projections (locality-sensitive hashing). Vectors with small
// angular distance collide in the same bucket with higher probability than
// dissimilar ones; exact ordering comes from the caller's re-ranking step,
// not from the hash.
package lsh

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/framefinder/visim/internal/domain"
)

// Defaults observed to balance recall and candidate-set size for photo
// embeddings in the thousand-to-tens-of-thousands range.
const (
	DefaultNumTables = 5
	DefaultHashSize  = 10
)

// Option configures index construction.
type Option func(*config)

type config struct {
	numTables int
	hashSize  int
	seed      int64
	seeded    bool
}

// WithNumTables sets the number of independent hash tables.
func WithNumTables(n int) Option {
	return func(c *config) { c.numTables = n }
}

// WithHashSize sets the number of hyperplanes (hash bits) per table.
func WithHashSize(n int) Option {
	return func(c *config) { c.hashSize = n }
}

// WithSeed fixes the hyperplane RNG seed for reproducible bucket assignment.
func WithSeed(seed int64) Option {
	return func(c *config) { c.seed = seed; c.seeded = true }
}

type table struct {
	// planes holds hashSize hyperplane normals of length dim, generated once
	// at construction and never mutated afterwards.
	planes  []domain.Vector
	buckets map[string][]int
}

// Index is a set of independent hash tables over random hyperplane
// projections. It stores sequence indexes into the session's vector store,
// never the vectors themselves. Not synchronized: the owning session
// serializes writers and excludes them against readers.
type Index struct {
	dim       int
	numTables int
	hashSize  int
	tables    []table
	seen      map[int]struct{}
}

// New creates an index for vectors of the given dimensionality. Hyperplane
// components are drawn uniformly from [-1, 1] and fixed for the index's
// lifetime; two indexes built with different seeds will generally disagree on
// bucket membership for the same vectors, which is fine because correctness
// comes from re-ranking.
func New(dim int, opts ...Option) (*Index, error) {
	cfg := config{numTables: DefaultNumTables, hashSize: DefaultHashSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	if dim <= 0 {
		return nil, fmt.Errorf("dimensionality must be > 0, got %d: %w", dim, domain.ErrConfiguration)
	}
	if cfg.numTables <= 0 {
		return nil, fmt.Errorf("numHashTables must be > 0, got %d: %w", cfg.numTables, domain.ErrConfiguration)
	}
	if cfg.hashSize <= 0 {
		return nil, fmt.Errorf("hashSize must be > 0, got %d: %w", cfg.hashSize, domain.ErrConfiguration)
	}

	var rng *rand.Rand
	if cfg.seeded {
		rng = rand.New(rand.NewSource(cfg.seed))
	} else {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	ix := &Index{
		dim:       dim,
		numTables: cfg.numTables,
		hashSize:  cfg.hashSize,
		tables:    make([]table, cfg.numTables),
		seen:      make(map[int]struct{}),
	}
	for t := range ix.tables {
		planes := make([]domain.Vector, cfg.hashSize)
		for p := range planes {
			plane := make(domain.Vector, dim)
			for i := range plane {
				plane[i] = rng.Float32()*2 - 1
			}
			planes[p] = plane
		}
		ix.tables[t] = table{planes: planes, buckets: make(map[string][]int)}
	}
	return ix, nil
}

// Add inserts a sequence index into the matching bucket of every table.
// Re-inserting an already present sequence index is a no-op, so a caller
// retrying after a partial failure cannot double-populate buckets.
func (ix *Index) Add(vector domain.Vector, seq int) error {
	if len(vector) != ix.dim {
		return domain.NewDimensionMismatch(ix.dim, len(vector))
	}
	if _, dup := ix.seen[seq]; dup {
		return nil
	}
	ix.seen[seq] = struct{}{}

	for t := range ix.tables {
		key := ix.hashKey(t, vector)
		ix.tables[t].buckets[key] = append(ix.tables[t].buckets[key], seq)
	}
	return nil
}

// Candidates returns the union of sequence indexes found in the query's
// bucket across all tables, sorted ascending. A missing bucket contributes
// nothing; an index with no insertions yields an empty set.
func (ix *Index) Candidates(vector domain.Vector) ([]int, error) {
	if len(vector) != ix.dim {
		return nil, domain.NewDimensionMismatch(ix.dim, len(vector))
	}

	union := make(map[int]struct{})
	for t := range ix.tables {
		key := ix.hashKey(t, vector)
		for _, seq := range ix.tables[t].buckets[key] {
			union[seq] = struct{}{}
		}
	}

	out := make([]int, 0, len(union))
	for seq := range union {
		out = append(out, seq)
	}
	sort.Ints(out)
	return out, nil
}

// hashKey concatenates the sign bits of the dot products against table t's
// hyperplanes, in hyperplane order. The bit is '1' when the dot product is
// >= 0: a vector lying exactly on a hyperplane hashes to the positive side,
// so the zero dot product counts as a match, not a miss.
func (ix *Index) hashKey(t int, vector domain.Vector) string {
	var b strings.Builder
	b.Grow(ix.hashSize)
	for _, plane := range ix.tables[t].planes {
		if domain.Dot(plane, vector) >= 0 {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// Dim returns the dimensionality the index was built for.
func (ix *Index) Dim() int { return ix.dim }

// NumTables returns the number of hash tables.
func (ix *Index) NumTables() int { return ix.numTables }

// HashSize returns the number of hash bits per table.
func (ix *Index) HashSize() int { return ix.hashSize }

// Size returns the number of distinct sequence indexes inserted.
func (ix *Index) Size() int { return len(ix.seen) }
