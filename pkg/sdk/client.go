package visim

import (
	"context"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/framefinder/visim/internal/domain"
	batchuc "github.com/framefinder/visim/internal/usecase/batch"
	"github.com/framefinder/visim/internal/usecase/session"
)

const (
	defaultNumHashTables = 5
	defaultHashSize      = 10
	defaultConcurrency   = 8
)

// Client is the visim SDK entry point. It owns one indexing session and is
// safe for concurrent use.
type Client struct {
	sess        *session.Session
	extractor   domain.Extractor
	concurrency int
	logger      *zap.Logger
}

// Match is one similarity result: an indexed photo URI and its Euclidean
// distance from the query, smaller is more similar.
type Match struct {
	URI      string
	Distance float64
}

// IndexReport summarizes one batch indexing run. A failed photo appears in
// Failed with its cause; the rest were embedded and indexed.
type IndexReport struct {
	Attempted int
	Indexed   int
	Failed    map[string]error
}

// ProgressFunc receives the fraction of attempted photos in [0, 1] after
// each internal chunk.
type ProgressFunc func(fraction float64)

// New creates a Client. An extractor is required; everything else defaults.
func New(opts ...Option) (*Client, error) {
	cfg := clientConfig{
		numHashTables: defaultNumHashTables,
		hashSize:      defaultHashSize,
		concurrency:   defaultConcurrency,
	}
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	if cfg.extractor == nil {
		return nil, fmt.Errorf("an extractor is required, see WithExtractor: %w", domain.ErrConfiguration)
	}
	if cfg.concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be > 0, got %d: %w", cfg.concurrency, domain.ErrConfiguration)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	sess, err := session.Open(session.Params{
		NumHashTables:      cfg.numHashTables,
		HashSize:           cfg.hashSize,
		Seed:               cfg.seed,
		ExhaustiveFallback: cfg.exhaustiveFallback,
	}, cfg.logger)
	if err != nil {
		return nil, err
	}

	return &Client{
		sess:        sess,
		extractor:   cfg.extractor,
		concurrency: cfg.concurrency,
		logger:      cfg.logger,
	}, nil
}

// IndexImages embeds and indexes a set of photos given as URI to encoded
// image bytes. URIs are processed in sorted order, so sequence indexes are
// reproducible for a fixed input set. onProgress can be nil.
func (c *Client) IndexImages(
	ctx context.Context, images map[string][]byte, onProgress ProgressFunc,
) (IndexReport, error) {
	loader := func(_ context.Context, uri string) ([]byte, error) {
		data, ok := images[uri]
		if !ok {
			return nil, fmt.Errorf("no image bytes for %q", uri)
		}
		return data, nil
	}
	return c.index(ctx, sortedKeys(images), loader, onProgress)
}

// IndexFiles embeds and indexes photos from disk, given as URI to file path.
func (c *Client) IndexFiles(
	ctx context.Context, files map[string]string, onProgress ProgressFunc,
) (IndexReport, error) {
	loader := func(_ context.Context, uri string) ([]byte, error) {
		return os.ReadFile(files[uri])
	}
	return c.index(ctx, sortedKeys(files), loader, onProgress)
}

func (c *Client) index(
	ctx context.Context, uris []string, loader batchuc.Loader, onProgress ProgressFunc,
) (IndexReport, error) {
	report := IndexReport{Failed: make(map[string]error)}

	runner, err := batchuc.New(c.extractor, loader, c.concurrency, c.logger)
	if err != nil {
		return report, err
	}

	var progress batchuc.ProgressFunc
	if onProgress != nil {
		progress = func(fraction float64) { onProgress(fraction) }
	}

	results, runErr := runner.Run(ctx, uris, progress)
	report.Attempted = len(results)

	for _, res := range results {
		if !res.OK() {
			report.Failed[res.ID()] = res.Err()
			continue
		}
		if _, err := c.sess.Insert(res.ID(), res.Vector()); err != nil {
			report.Failed[res.ID()] = err
			continue
		}
		report.Indexed++
	}

	return report, runErr
}

// Search embeds the query image and returns up to k indexed photos ordered
// by ascending distance.
func (c *Client) Search(ctx context.Context, image []byte, k int) ([]Match, error) {
	if !c.sess.Ready() {
		return nil, fmt.Errorf("no photos indexed yet: %w", domain.ErrIndexNotReady)
	}

	vector, err := c.extractor.ExtractOne(ctx, image)
	if err != nil {
		return nil, err
	}

	matches, err := c.sess.Query(vector, k)
	if err != nil {
		return nil, err
	}

	out := make([]Match, len(matches))
	for i, m := range matches {
		out[i] = Match{URI: m.ID, Distance: m.Distance}
	}
	return out, nil
}

// QueryByURI returns up to k photos similar to an already-indexed photo,
// excluding the photo itself.
func (c *Client) QueryByURI(uri string, k int) ([]Match, error) {
	matches, err := c.sess.QueryByID(uri, k)
	if err != nil {
		return nil, err
	}

	out := make([]Match, len(matches))
	for i, m := range matches {
		out[i] = Match{URI: m.ID, Distance: m.Distance}
	}
	return out, nil
}

// Ready reports whether at least one photo has been indexed.
func (c *Client) Ready() bool { return c.sess.Ready() }

// Size returns the number of indexed photos.
func (c *Client) Size() int { return c.sess.Size() }

// Dim returns the embedding dimensionality, 0 before the first indexing.
func (c *Client) Dim() int { return c.sess.Dim() }

// Close tears the session down. The client is unusable afterwards.
func (c *Client) Close() { c.sess.Close() }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
