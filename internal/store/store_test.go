package store

import (
	"errors"
	"testing"

	"github.com/framefinder/visim/internal/domain"
)

func TestAppend_AssignsSequentialIndexes(t *testing.T) {
	s := New()

	for i, id := range []string{"ph://a", "ph://b", "ph://c"} {
		seq, err := s.Append(id, domain.Vector{float32(i), 0, 0, 0})
		if err != nil {
			t.Fatalf("Append(%q): %v", id, err)
		}
		if seq != i {
			t.Errorf("Append(%q) = seq %d, want %d", id, seq, i)
		}
	}

	if s.Size() != 3 {
		t.Errorf("Size() = %d, want 3", s.Size())
	}
	if s.Dim() != 4 {
		t.Errorf("Dim() = %d, want 4", s.Dim())
	}

	entry, err := s.Get(1)
	if err != nil {
		t.Fatalf("Get(1): %v", err)
	}
	if entry.ID != "ph://b" {
		t.Errorf("Get(1).ID = %q, want %q", entry.ID, "ph://b")
	}
}

func TestAppend_DimensionMismatchLeavesStoreUnchanged(t *testing.T) {
	s := New()
	if _, err := s.Append("ph://a", domain.Vector{1, 2, 3, 4}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	_, err := s.Append("ph://b", domain.Vector{1, 2, 3, 4, 5})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("Append with wrong dim: err = %v, want ErrDimensionMismatch", err)
	}

	var mismatch *domain.DimensionMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("error %v does not carry dimension details", err)
	}
	if mismatch.Want != 4 || mismatch.Got != 5 {
		t.Errorf("mismatch = want %d got %d, expected want 4 got 5", mismatch.Want, mismatch.Got)
	}

	if s.Size() != 1 {
		t.Errorf("Size() = %d after failed append, want 1", s.Size())
	}
	if _, ok := s.Lookup("ph://b"); ok {
		t.Error("failed append registered an ID lookup")
	}
}

func TestAppend_EmptyVectorRejected(t *testing.T) {
	s := New()
	if _, err := s.Append("ph://a", nil); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("Append(nil vector): err = %v, want ErrDimensionMismatch", err)
	}
	if s.Size() != 0 {
		t.Errorf("Size() = %d, want 0", s.Size())
	}
}

func TestGet_OutOfRange(t *testing.T) {
	s := New()
	if _, err := s.Get(0); !errors.Is(err, domain.ErrPhotoNotFound) {
		t.Errorf("Get(0) on empty store: err = %v, want ErrPhotoNotFound", err)
	}
	if _, err := s.Get(-1); !errors.Is(err, domain.ErrPhotoNotFound) {
		t.Errorf("Get(-1): err = %v, want ErrPhotoNotFound", err)
	}
}

func TestLookup_DuplicateIDKeepsFirstInsertion(t *testing.T) {
	s := New()
	first, _ := s.Append("ph://a", domain.Vector{1, 0})
	if _, err := s.Append("ph://a", domain.Vector{0, 1}); err != nil {
		t.Fatalf("Append duplicate: %v", err)
	}

	seq, ok := s.Lookup("ph://a")
	if !ok {
		t.Fatal("Lookup missed an inserted ID")
	}
	if seq != first {
		t.Errorf("Lookup = %d, want first insertion %d", seq, first)
	}
}
