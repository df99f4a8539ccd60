package domain

import "math"

// Vector is a fixed-length embedding produced by the pretrained network.
// The dimensionality is decided by the network and is constant for a session.
type Vector []float32

// Dim returns the vector dimensionality.
func (v Vector) Dim() int { return len(v) }

// Clone returns an independent copy of the vector.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Euclidean computes the L2 distance between two vectors of equal length.
// Callers validate dimensionality before comparing; mismatched lengths are a
// programming error and panic via the index expression.
func Euclidean(a, b Vector) float64 {
	var sum float64
	for i := range a {
		diff := float64(a[i] - b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// Dot computes the inner product of two vectors of equal length.
func Dot(a, b Vector) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
