package visim

import "github.com/framefinder/visim/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrPreprocess        = domain.ErrPreprocess
	ErrInference         = domain.ErrInference
	ErrDimensionMismatch = domain.ErrDimensionMismatch
	ErrConfiguration     = domain.ErrConfiguration
	ErrIndexNotReady     = domain.ErrIndexNotReady
	ErrPhotoNotFound     = domain.ErrPhotoNotFound
	ErrSessionClosed     = domain.ErrSessionClosed
)
