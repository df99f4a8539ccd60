package visim

import (
	"go.uber.org/zap"

	"github.com/framefinder/visim/internal/domain"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	extractor domain.Extractor

	numHashTables      int
	hashSize           int
	seed               int64
	exhaustiveFallback bool

	concurrency int

	logger *zap.Logger
}

// WithExtractor sets the embedding extraction backend. Required.
func WithExtractor(e domain.Extractor) Option {
	return optionFunc(func(c *clientConfig) {
		c.extractor = e
	})
}

// WithIndexParams sets the number of LSH hash tables and the bits per hash.
// Defaults: 5 tables, 10 bits.
func WithIndexParams(numHashTables, hashSize int) Option {
	return optionFunc(func(c *clientConfig) {
		c.numHashTables = numHashTables
		c.hashSize = hashSize
	})
}

// WithSeed fixes the hyperplane seed for reproducible indexes.
// Default: random hyperplanes per client.
func WithSeed(seed int64) Option {
	return optionFunc(func(c *clientConfig) {
		c.seed = seed
	})
}

// WithExhaustiveFallback enables a full scan when the LSH candidate set is
// smaller than the requested k. Trades query latency for recall.
func WithExhaustiveFallback() Option {
	return optionFunc(func(c *clientConfig) {
		c.exhaustiveFallback = true
	})
}

// WithConcurrency sets how many images are extracted in parallel during
// batch indexing. Default: 8.
func WithConcurrency(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.concurrency = n
	})
}

// WithLogger enables structured logging for client operations.
// Default: logging disabled.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}
