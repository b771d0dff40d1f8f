// Package cache implements the three-tier cache: permanent embedding
// vectors (vec:), short-lived topK result lists (topk:), and
// medium-lived post metadata (meta:), all backed by Redis with an
// in-process LRU shadow cache in front of the embedding tier.
package cache

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mhassan72/semantic-retrieval-core/pkg/errorkind"
	"github.com/mhassan72/semantic-retrieval-core/pkg/model"
	"github.com/mhassan72/semantic-retrieval-core/pkg/observability"
)

const (
	topKTTL   = 60 * time.Second
	metaTTL   = 24 * time.Hour
	vecPrefix = "vec:"
	topPrefix = "topk:"
	metaPref  = "meta:"
)

// Cache is the three-tier cache contract from spec §4.B.
type Cache interface {
	GetTopK(ctx context.Context, fingerprint uint64) ([]model.Result, bool, error)
	PutTopK(ctx context.Context, fingerprint uint64, results []model.Result) error
	GetEmbedding(ctx context.Context, postID string) ([]float32, bool, error)
	PutEmbedding(ctx context.Context, postID string, embedding []float32) error
	GetMetadata(ctx context.Context, postID string) (model.Metadata, bool, error)
	PutMetadata(ctx context.Context, postID string, meta model.Metadata) error
	InvalidatePost(ctx context.Context, postID string) error
	VectorSearch(ctx context.Context, queryVector []float32, n int) ([]model.Candidate, error)
	Health(ctx context.Context) error
	Stats() Stats
}

// Stats exposes per-namespace hit/miss counters, read-only from outside.
type Stats struct {
	VecHits, VecMisses   int64
	TopKHits, TopKMisses int64
	MetaHits, MetaMisses int64
}

// RedisCache implements Cache over go-redis, with an LRU shadow in front
// of the embedding tier to absorb repeated lookups without a round trip.
type RedisCache struct {
	client *redis.Client
	lru    *lru.Cache[string, []float32]

	logger  observability.Logger
	metrics observability.MetricsClient

	mu    sync.Mutex
	stats Stats
}

// New constructs a RedisCache. lruSize bounds the in-process embedding
// shadow cache; pass 0 to disable it.
func New(client *redis.Client, lruSize int, logger observability.Logger, metrics observability.MetricsClient) (*RedisCache, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}

	c := &RedisCache{client: client, logger: logger, metrics: metrics}
	if lruSize > 0 {
		shadow, err := lru.New[string, []float32](lruSize)
		if err != nil {
			return nil, errorkind.Wrap(err, errorkind.Config, "new_cache")
		}
		c.lru = shadow
	}
	return c, nil
}

// GetTopK retrieves the cached result list for a query fingerprint. A
// miss (key absent or expired) is reported via the bool, not an error.
func (c *RedisCache) GetTopK(ctx context.Context, fingerprint uint64) ([]model.Result, bool, error) {
	key := topKKey(fingerprint)
	raw, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		c.recordMiss(&c.stats.TopKMisses, "topk")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errorkind.Wrap(err, errorkind.CacheTransport, "get_topk")
	}

	var cached []model.CachedResult
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		c.logger.Warn("topk cache entry failed to deserialize, treating as miss", map[string]interface{}{"key": key})
		c.recordMiss(&c.stats.TopKMisses, "topk")
		return nil, false, nil
	}

	results := make([]model.Result, len(cached))
	for i, cr := range cached {
		results[i] = cr.Result
	}
	c.recordHit(&c.stats.TopKHits, "topk")
	return results, true, nil
}

// PutTopK writes (fire-and-forget, at-most-once) the result list under the
// fingerprint key with a 60s TTL.
func (c *RedisCache) PutTopK(ctx context.Context, fingerprint uint64, results []model.Result) error {
	now := time.Now()
	cached := make([]model.CachedResult, len(results))
	for i, r := range results {
		cached[i] = model.CachedResult{Result: r, InsertedAt: now}
	}

	payload, err := json.Marshal(cached)
	if err != nil {
		return errorkind.Wrap(err, errorkind.CacheSerialization, "put_topk")
	}
	if err := c.client.Set(ctx, topKKey(fingerprint), payload, topKTTL).Err(); err != nil {
		return errorkind.Wrap(err, errorkind.CacheTransport, "put_topk")
	}
	return nil
}

// GetEmbedding retrieves a permanently-resident embedding vector, checking
// the LRU shadow cache before Redis.
func (c *RedisCache) GetEmbedding(ctx context.Context, postID string) ([]float32, bool, error) {
	if c.lru != nil {
		if v, ok := c.lru.Get(postID); ok {
			c.recordHit(&c.stats.VecHits, "vec")
			return v, true, nil
		}
	}

	raw, err := c.client.Get(ctx, vecKey(postID)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.recordMiss(&c.stats.VecMisses, "vec")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errorkind.Wrap(err, errorkind.CacheTransport, "get_embedding")
	}

	vec, err := decodeVector(raw)
	if err != nil {
		c.logger.Warn("embedding cache entry failed to deserialize, treating as miss", map[string]interface{}{"post_id": postID})
		c.recordMiss(&c.stats.VecMisses, "vec")
		return nil, false, nil
	}
	if c.lru != nil {
		c.lru.Add(postID, vec)
	}
	c.recordHit(&c.stats.VecHits, "vec")
	return vec, true, nil
}

// PutEmbedding writes the embedding as a little-endian binary32 buffer
// with no expiration, subject to LRU eviction pressure upstream.
func (c *RedisCache) PutEmbedding(ctx context.Context, postID string, embedding []float32) error {
	if c.lru != nil {
		c.lru.Add(postID, embedding)
	}
	if err := c.client.Set(ctx, vecKey(postID), encodeVector(embedding), 0).Err(); err != nil {
		return errorkind.Wrap(err, errorkind.CacheTransport, "put_embedding")
	}
	return nil
}

// GetMetadata retrieves cached public metadata for a post.
func (c *RedisCache) GetMetadata(ctx context.Context, postID string) (model.Metadata, bool, error) {
	raw, err := c.client.Get(ctx, metaKey(postID)).Result()
	if errors.Is(err, redis.Nil) {
		c.recordMiss(&c.stats.MetaMisses, "meta")
		return model.Metadata{}, false, nil
	}
	if err != nil {
		return model.Metadata{}, false, errorkind.Wrap(err, errorkind.CacheTransport, "get_metadata")
	}

	var meta model.Metadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		c.logger.Warn("metadata cache entry failed to deserialize, treating as miss", map[string]interface{}{"post_id": postID})
		c.recordMiss(&c.stats.MetaMisses, "meta")
		return model.Metadata{}, false, nil
	}
	c.recordHit(&c.stats.MetaHits, "meta")
	return meta, true, nil
}

// PutMetadata writes post metadata with a 24h TTL.
func (c *RedisCache) PutMetadata(ctx context.Context, postID string, meta model.Metadata) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return errorkind.Wrap(err, errorkind.CacheSerialization, "put_metadata")
	}
	if err := c.client.Set(ctx, metaKey(postID), payload, metaTTL).Err(); err != nil {
		return errorkind.Wrap(err, errorkind.CacheTransport, "put_metadata")
	}
	return nil
}

// InvalidatePost atomically unlinks vec:id and meta:id using Redis UNLINK
// (non-blocking deletion), and evicts the LRU shadow entry.
func (c *RedisCache) InvalidatePost(ctx context.Context, postID string) error {
	if c.lru != nil {
		c.lru.Remove(postID)
	}
	if err := c.client.Unlink(ctx, vecKey(postID), metaKey(postID)).Err(); err != nil {
		return errorkind.Wrap(err, errorkind.CacheTransport, "invalidate_post")
	}
	c.metrics.IncrementCounter("cache_gdpr_invalidations_total", 1, nil)
	return nil
}

// VectorSearch returns an empty list: no approximate vector-index
// subsystem is configured for this cache tier, and spec §4.B requires
// that absence surface as an empty result rather than an error.
func (c *RedisCache) VectorSearch(ctx context.Context, queryVector []float32, n int) ([]model.Candidate, error) {
	return []model.Candidate{}, nil
}

// Health pings the Redis connection.
func (c *RedisCache) Health(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return errorkind.Wrap(err, errorkind.CacheTransport, "health")
	}
	return nil
}

// Stats returns a snapshot of the per-namespace hit/miss counters.
func (c *RedisCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *RedisCache) recordHit(counter *int64, namespace string) {
	c.mu.Lock()
	*counter++
	c.mu.Unlock()
	c.metrics.IncrementCounter("cache_hits_total", 1, map[string]string{"namespace": namespace})
}

func (c *RedisCache) recordMiss(counter *int64, namespace string) {
	c.mu.Lock()
	*counter++
	c.mu.Unlock()
	c.metrics.IncrementCounter("cache_misses_total", 1, map[string]string{"namespace": namespace})
}

func topKKey(fingerprint uint64) string { return fmt.Sprintf("%s%d", topPrefix, fingerprint) }
func vecKey(postID string) string       { return vecPrefix + postID }
func metaKey(postID string) string      { return metaPref + postID }

func encodeVector(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, errorkind.New(errorkind.CacheSerialization, "decode_vector", "buffer length not a multiple of 4")
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}
