package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrPreprocess signals that an image could not be decoded or resized.
	// Per-item: the batch runner skips the item and continues.
	ErrPreprocess = errors.New("image preprocess failed")
	// ErrInference signals that the embedding network call failed.
	// Per-item: the batch runner skips the item and continues.
	ErrInference = errors.New("embedding inference failed")
	// ErrDimensionMismatch signals a vector whose length disagrees with the
	// dimensionality established by the store or index.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrConfiguration signals invalid construction parameters.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrIndexNotReady signals a query against a session with no indexed photos.
	ErrIndexNotReady = errors.New("index not ready")
	// ErrPhotoNotFound signals a lookup for an identifier the session never indexed.
	ErrPhotoNotFound = errors.New("photo not found")
	// ErrSessionClosed signals an operation on a closed session.
	ErrSessionClosed = errors.New("session closed")
)

// DimensionMismatchError wraps ErrDimensionMismatch with both dimensionalities.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: store has dimensionality %d, vector has %d",
		ErrDimensionMismatch.Error(), e.Want, e.Got)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// NewDimensionMismatch creates a dimension mismatch error.
func NewDimensionMismatch(want, got int) error {
	return &DimensionMismatchError{Want: want, Got: got}
}
