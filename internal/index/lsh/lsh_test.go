package lsh

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/framefinder/visim/internal/domain"
)

func TestNew_RejectsInvalidParameters(t *testing.T) {
	tests := []struct {
		name string
		dim  int
		opts []Option
	}{
		{"zero dim", 0, nil},
		{"negative dim", -3, nil},
		{"zero tables", 16, []Option{WithNumTables(0)}},
		{"negative tables", 16, []Option{WithNumTables(-1)}},
		{"zero hash size", 16, []Option{WithHashSize(0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.dim, tt.opts...); !errors.Is(err, domain.ErrConfiguration) {
				t.Errorf("New() err = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestHashKey_Deterministic(t *testing.T) {
	ix, err := New(8, WithSeed(42))
	if err != nil {
		t.Fatal(err)
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		vec := make(domain.Vector, 8)
		for j := range vec {
			vec[j] = rng.Float32()*2 - 1
		}
		for tab := 0; tab < ix.NumTables(); tab++ {
			first := ix.hashKey(tab, vec)
			second := ix.hashKey(tab, vec)
			if first != second {
				t.Fatalf("table %d: hash not deterministic: %q vs %q", tab, first, second)
			}
			if len(first) != ix.HashSize() {
				t.Fatalf("table %d: key length %d, want %d", tab, len(first), ix.HashSize())
			}
		}
	}
}

func TestAdd_SelfCandidacy(t *testing.T) {
	// Any inserted vector must find its own sequence index among the
	// candidates: the query hashes identically to the insertion.
	ix, err := New(16, WithSeed(1), WithNumTables(5), WithHashSize(10))
	if err != nil {
		t.Fatal(err)
	}

	rng := rand.New(rand.NewSource(99))
	vectors := make([]domain.Vector, 50)
	for i := range vectors {
		vec := make(domain.Vector, 16)
		for j := range vec {
			vec[j] = rng.Float32()*2 - 1
		}
		vectors[i] = vec
		if err := ix.Add(vec, i); err != nil {
			t.Fatalf("Add(%d): %v", i, err)
		}
	}

	for i, vec := range vectors {
		cands, err := ix.Candidates(vec)
		if err != nil {
			t.Fatalf("Candidates(%d): %v", i, err)
		}
		if !containsInt(cands, i) {
			t.Errorf("candidates for vector %d do not contain its own index: %v", i, cands)
		}
	}
}

func TestAdd_DimensionMismatch(t *testing.T) {
	ix, err := New(4, WithSeed(3))
	if err != nil {
		t.Fatal(err)
	}

	if err := ix.Add(domain.Vector{1, 2, 3}, 0); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("Add with wrong dim: err = %v, want ErrDimensionMismatch", err)
	}
	if _, err := ix.Candidates(domain.Vector{1, 2, 3, 4, 5}); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("Candidates with wrong dim: err = %v, want ErrDimensionMismatch", err)
	}
}

func TestAdd_ReinsertionIsNoOp(t *testing.T) {
	ix, err := New(4, WithSeed(5), WithNumTables(1), WithHashSize(2))
	if err != nil {
		t.Fatal(err)
	}

	vec := domain.Vector{0.5, -0.5, 0.25, 1}
	if err := ix.Add(vec, 7); err != nil {
		t.Fatal(err)
	}
	if err := ix.Add(vec, 7); err != nil {
		t.Fatal(err)
	}

	cands, err := ix.Candidates(vec)
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, seq := range cands {
		if seq == 7 {
			count++
		}
	}
	if count != 1 {
		t.Errorf("sequence index 7 appears %d times in candidates, want 1", count)
	}
	if ix.Size() != 1 {
		t.Errorf("Size() = %d after re-insertion, want 1", ix.Size())
	}
}

func TestCandidates_EmptyIndex(t *testing.T) {
	ix, err := New(4, WithSeed(11))
	if err != nil {
		t.Fatal(err)
	}
	cands, err := ix.Candidates(domain.Vector{1, 0, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 0 {
		t.Errorf("Candidates on empty index = %v, want empty", cands)
	}
}

// TestFixedHyperplane_TieConvention pins the >= 0 tie rule with a single
// hand-built hyperplane: an orthogonal vector (dot product exactly zero)
// hashes to the '1' bucket alongside the parallel vectors.
func TestFixedHyperplane_TieConvention(t *testing.T) {
	ix := &Index{
		dim:       4,
		numTables: 1,
		hashSize:  1,
		tables: []table{{
			planes:  []domain.Vector{{1, 0, 0, 0}},
			buckets: make(map[string][]int),
		}},
		seen: make(map[int]struct{}),
	}

	vectors := []domain.Vector{
		{1, 0, 0, 0},    // seq 0: dot 1 -> "1"
		{0, 1, 0, 0},    // seq 1: dot 0 -> "1" by the >= 0 convention
		{1, 0, 0, 0.01}, // seq 2: dot 1 -> "1"
		{-1, 0, 0, 0},   // seq 3: dot -1 -> "0"
	}
	for i, vec := range vectors {
		if err := ix.Add(vec, i); err != nil {
			t.Fatalf("Add(%d): %v", i, err)
		}
	}

	if got := ix.hashKey(0, domain.Vector{0, 1, 0, 0}); got != "1" {
		t.Errorf("orthogonal vector hashed to %q, want \"1\" (>= 0 ties to positive side)", got)
	}

	cands, err := ix.Candidates(domain.Vector{1, 0, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	want := []int{0, 1, 2}
	if len(cands) != len(want) {
		t.Fatalf("Candidates = %v, want %v", cands, want)
	}
	for i := range want {
		if cands[i] != want[i] {
			t.Fatalf("Candidates = %v, want %v", cands, want)
		}
	}
}

func TestNew_SeedControlsBuckets(t *testing.T) {
	a, err := New(8, WithSeed(21))
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(8, WithSeed(21))
	if err != nil {
		t.Fatal(err)
	}

	vec := domain.Vector{0.1, -0.9, 0.3, 0.7, -0.2, 0.5, -0.6, 0.8}
	for tab := 0; tab < a.NumTables(); tab++ {
		if a.hashKey(tab, vec) != b.hashKey(tab, vec) {
			t.Fatalf("same seed produced different hyperplanes in table %d", tab)
		}
	}
}

func containsInt(xs []int, want int) bool {
	for _, x := range xs {
		if x == want {
			return true
		}
	}
	return false
}
