package domain

import "context"

// Extractor is the shared contract between layers: it turns one encoded image
// into one embedding vector. Implementations wrap preprocessing failures with
// ErrPreprocess and network failures with ErrInference.
//
// The same Extractor instance must serve both the indexing path and the query
// path: mismatched normalization between the two silently corrupts distances.
type Extractor interface {
	ExtractOne(ctx context.Context, data []byte) (Vector, error)
}

// TensorEmbedder is the opaque embedding call: a normalized pixel tensor in,
// a fixed-length vector out. The callee does not take ownership of the tensor.
type TensorEmbedder interface {
	Embed(ctx context.Context, t *Tensor) (Vector, error)
}

// HealthChecker verifies embedding backend availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
