// Package extract turns encoded photos into embedding vectors through the
// local preprocessing pipeline and the configured embedding backend.
package extract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/framefinder/visim/internal/domain"
	"github.com/framefinder/visim/internal/imaging"
	"github.com/framefinder/visim/internal/metrics"
)

// Service implements domain.Extractor: decode, resize+normalize into a
// pooled tensor, run inference, release the tensor. All transient buffers
// are scoped to the single call and released on every exit path.
type Service struct {
	pre      *imaging.Preprocessor
	embedder domain.TensorEmbedder
	backend  string
	logger   *zap.Logger
}

// New creates an extraction service over the given embedding backend.
// backend is the metrics label ("onnx", "openai", ...).
func New(pre *imaging.Preprocessor, embedder domain.TensorEmbedder, backend string, logger *zap.Logger) *Service {
	return &Service{pre: pre, embedder: embedder, backend: backend, logger: logger}
}

// ExtractOne decodes an encoded image and extracts its embedding.
func (s *Service) ExtractOne(ctx context.Context, data []byte) (domain.Vector, error) {
	img, err := s.pre.Decode(data)
	if err != nil {
		metrics.ExtractionRequestsTotal.WithLabelValues(s.backend, "error").Inc()
		metrics.ExtractionErrorsTotal.WithLabelValues(s.backend, "preprocess").Inc()
		return nil, err
	}
	return s.ExtractImage(ctx, img)
}

// ExtractImage extracts the embedding of an already-decoded image handle.
func (s *Service) ExtractImage(ctx context.Context, img image.Image) (domain.Vector, error) {
	start := time.Now()

	tensor := s.pre.ToTensor(img)
	defer tensor.Release()

	vec, err := s.embedder.Embed(ctx, tensor)

	duration := time.Since(start)

	if err != nil {
		metrics.ExtractionRequestsTotal.WithLabelValues(s.backend, "error").Inc()
		metrics.ExtractionErrorsTotal.WithLabelValues(s.backend, errorType(err)).Inc()
		if !errors.Is(err, domain.ErrInference) && !errors.Is(err, domain.ErrPreprocess) {
			err = fmt.Errorf("%v: %w", err, domain.ErrInference)
		}
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vec) == 0 {
		metrics.ExtractionRequestsTotal.WithLabelValues(s.backend, "error").Inc()
		metrics.ExtractionErrorsTotal.WithLabelValues(s.backend, "empty_vector").Inc()
		return nil, fmt.Errorf("backend returned an empty vector: %w", domain.ErrInference)
	}

	metrics.ExtractionRequestsTotal.WithLabelValues(s.backend, "success").Inc()
	metrics.ExtractionDuration.WithLabelValues(s.backend).Observe(duration.Seconds())

	s.logger.Debug("extracted embedding",
		zap.String("backend", s.backend),
		zap.Int("dim", len(vec)),
		zap.Duration("duration", duration),
	)
	return vec, nil
}

func errorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrPreprocess):
		return "preprocess"
	case errors.Is(err, domain.ErrInference):
		return "inference"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}
