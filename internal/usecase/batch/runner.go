// Package batch drives the extractor over a list of photos with bounded
// concurrency per chunk and strictly sequential chunks.
package batch

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/framefinder/visim/internal/domain"
	"github.com/framefinder/visim/internal/metrics"
)

// Loader resolves a photo identifier to its encoded bytes. Load failures are
// per-item preprocess failures, not batch failures.
type Loader func(ctx context.Context, id string) ([]byte, error)

// ProgressFunc receives the fraction of attempted items in [0, 1] after each
// chunk. Fractions are monotonically non-decreasing and reach exactly 1.0
// once every item has been attempted, failed or not.
type ProgressFunc func(fraction float64)

// Runner extracts embeddings for batches of photos. Within one chunk up to
// Concurrency extractions run concurrently; chunks never overlap, so an
// external caller can stop the batch at any chunk boundary by canceling the
// context.
type Runner struct {
	extractor   domain.Extractor
	loader      Loader
	concurrency int
	logger      *zap.Logger
}

// New creates a batch runner. Concurrency must be > 0.
func New(extractor domain.Extractor, loader Loader, concurrency int, logger *zap.Logger) (*Runner, error) {
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be > 0, got %d: %w", concurrency, domain.ErrConfiguration)
	}
	return &Runner{
		extractor:   extractor,
		loader:      loader,
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

// Run processes ids in input order and returns one ExtractionResult per id,
// in the same order. A failed item is logged, reported in its result, and
// never aborts the batch. If the context is canceled, Run stops issuing new
// chunks and returns the results attempted so far together with the context
// error.
func (r *Runner) Run(ctx context.Context, ids []string, onProgress ProgressFunc) ([]domain.ExtractionResult, error) {
	results := make([]domain.ExtractionResult, 0, len(ids))
	total := len(ids)
	if total == 0 {
		if onProgress != nil {
			onProgress(1)
		}
		return results, nil
	}

	for start := 0; start < total; start += r.concurrency {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("batch stopped after %d of %d items: %w", start, total, err)
		}

		end := start + r.concurrency
		if end > total {
			end = total
		}
		chunk := ids[start:end]

		// Reassemble in input order, not completion order, so downstream
		// insertion assigns reproducible sequence indexes.
		chunkResults := make([]domain.ExtractionResult, len(chunk))
		var wg sync.WaitGroup
		for i, id := range chunk {
			wg.Add(1)
			go func(i int, id string) {
				defer wg.Done()
				chunkResults[i] = r.extractOne(ctx, id)
			}(i, id)
		}
		wg.Wait()

		for _, res := range chunkResults {
			if res.OK() {
				metrics.BatchItemsTotal.WithLabelValues("ok").Inc()
			} else {
				metrics.BatchItemsTotal.WithLabelValues("error").Inc()
				r.logger.Warn("batch item failed",
					zap.String("id", res.ID()),
					zap.Error(res.Err()),
				)
			}
		}
		results = append(results, chunkResults...)

		// No extraction intermediates may survive a chunk boundary. Tensors
		// return to their pool on release; decode scratch goes here.
		runtime.GC()

		if onProgress != nil {
			// Attempted count, not success count: progress stays monotonic
			// through failures and ends at exactly 1.0.
			onProgress(float64(end) / float64(total))
		}
	}

	return results, nil
}

func (r *Runner) extractOne(ctx context.Context, id string) domain.ExtractionResult {
	data, err := r.loader(ctx, id)
	if err != nil {
		return domain.NewExtractionError(id, fmt.Errorf("load %q: %v: %w", id, err, domain.ErrPreprocess))
	}

	vec, err := r.extractor.ExtractOne(ctx, data)
	if err != nil {
		return domain.NewExtractionError(id, err)
	}
	return domain.NewExtractionOK(id, vec)
}

// Successes filters a result list down to the successful (identifier, vector)
// pairs, preserving input order.
func Successes(results []domain.ExtractionResult) []domain.ExtractionResult {
	ok := make([]domain.ExtractionResult, 0, len(results))
	for _, res := range results {
		if res.OK() {
			ok = append(ok, res)
		}
	}
	return ok
}
