package health

import "context"

// CachePinger reports reachability of the embedding cache backend.
type CachePinger interface {
	Ping(ctx context.Context) error
}

// ExtractorChecker reports reachability of the embedding backend.
type ExtractorChecker interface {
	HealthCheck(ctx context.Context) error
}

// IndexReporter exposes the indexing session's current state.
type IndexReporter interface {
	Ready() bool
	Size() int
}
