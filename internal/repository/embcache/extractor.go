// Package embcache caches extracted embeddings in a key-value store, keyed
// by the SHA-256 of the encoded image bytes. Re-uploading the same photo, or
// querying with an image that was previously indexed, skips the network.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/framefinder/visim/internal/db"
	"github.com/framefinder/visim/internal/domain"
)

// store is the consumer interface for the embedding cache.
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedExtractor is a caching decorator around a domain.Extractor.
// Cache failures are logged and degrade to the inner extractor; they never
// fail an extraction.
type CachedExtractor struct {
	inner      domain.Extractor
	store      store
	keyPrefix  string
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator. cacheTotal is a counter vec with label
// "result" ("hit"/"miss"), passed explicitly.
func New(
	inner domain.Extractor,
	s store,
	keyPrefix string,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedExtractor {
	return &CachedExtractor{
		inner:      inner,
		store:      s,
		keyPrefix:  keyPrefix,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// ExtractOne returns a cached embedding or calls the inner extractor.
func (c *CachedExtractor) ExtractOne(ctx context.Context, data []byte) (domain.Vector, error) {
	key := c.cacheKey(data)

	if vec, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		return vec, nil
	}

	c.incCache("miss")

	vec, err := c.inner.ExtractOne(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	c.putToCache(ctx, key, vec)
	return vec, nil
}

func (c *CachedExtractor) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (c *CachedExtractor) cacheKey(data []byte) string {
	h := sha256.Sum256(data)
	return c.keyPrefix + "emb_cache:" + hex.EncodeToString(h[:])
}

func (c *CachedExtractor) getFromCache(ctx context.Context, key string) (domain.Vector, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	return vec, true
}

func (c *CachedExtractor) putToCache(ctx context.Context, key string, vec domain.Vector) {
	if err := c.store.SetWithTTL(ctx, key, vectorToCacheBytes(vec), c.ttl); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func vectorToCacheBytes(v domain.Vector) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) (domain.Vector, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make(domain.Vector, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
