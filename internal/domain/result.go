package domain

// PhotoRecord pairs a stable photo identifier (its source URI) with its
// position in the vector store. Records are created when extraction succeeds
// and never mutated afterwards.
type PhotoRecord struct {
	ID  string
	Seq int
}

// ExtractionResult is the outcome of extracting one item in a batch. The
// originating identifier always travels with the vector so that callers never
// have to infer the pairing positionally from a shorter success list.
type ExtractionResult struct {
	id     string
	vector Vector
	err    error
}

// NewExtractionOK creates a successful extraction result.
func NewExtractionOK(id string, vector Vector) ExtractionResult {
	return ExtractionResult{id: id, vector: vector}
}

// NewExtractionError creates a failed extraction result.
func NewExtractionError(id string, err error) ExtractionResult {
	return ExtractionResult{id: id, err: err}
}

// ID returns the originating identifier.
func (r ExtractionResult) ID() string { return r.id }

// Vector returns the embedding, nil when the item failed.
func (r ExtractionResult) Vector() Vector { return r.vector }

// Err returns the per-item error, nil on success.
func (r ExtractionResult) Err() error { return r.err }

// OK reports whether extraction succeeded for this item.
func (r ExtractionResult) OK() bool { return r.err == nil }
