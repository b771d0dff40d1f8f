package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhassan72/semantic-retrieval-core/pkg/model"
)

func setupTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c, err := New(client, 64, nil, nil)
	require.NoError(t, err)

	return c, mr, func() {
		_ = client.Close()
		mr.Close()
	}
}

func TestGetTopKMissReturnsFalseNotError(t *testing.T) {
	c, _, closeFn := setupTestCache(t)
	defer closeFn()

	results, ok, err := c.GetTopK(context.Background(), 12345)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, results)
}

func TestPutTopKThenGetTopKRoundTrips(t *testing.T) {
	c, _, closeFn := setupTestCache(t)
	defer closeFn()

	results := []model.Result{{PostID: "p1", Title: "t1", Score: 0.9}}
	require.NoError(t, c.PutTopK(context.Background(), 1, results))

	got, ok, err := c.GetTopK(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, results, got)
}

// TestPutTopKIdempotence is property #8: put_topk(f, R); put_topk(f, R)
// leaves the cache observably identical.
func TestPutTopKIdempotence(t *testing.T) {
	c, _, closeFn := setupTestCache(t)
	defer closeFn()

	results := []model.Result{{PostID: "p1", Score: 0.5}}
	require.NoError(t, c.PutTopK(context.Background(), 7, results))
	require.NoError(t, c.PutTopK(context.Background(), 7, results))

	got, ok, err := c.GetTopK(context.Background(), 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, results, got)
}

func TestTopKExpiresAfterTTL(t *testing.T) {
	c, mr, closeFn := setupTestCache(t)
	defer closeFn()

	require.NoError(t, c.PutTopK(context.Background(), 1, []model.Result{{PostID: "p1"}}))
	mr.FastForward(topKTTL + time.Second)

	_, ok, err := c.GetTopK(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEmbeddingRoundTripThroughRedis(t *testing.T) {
	c, _, closeFn := setupTestCache(t)
	defer closeFn()

	embedding := []float32{0.1, 0.2, -0.3, 0.4}
	require.NoError(t, c.PutEmbedding(context.Background(), "p1", embedding))

	// Force a fresh RedisCache without the warm LRU to exercise the Redis path.
	fresh, _ := New(c.client, 0, nil, nil)
	got, ok, err := fresh.GetEmbedding(context.Background(), "p1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, len(embedding))
	for i := range embedding {
		assert.InDelta(t, embedding[i], got[i], 1e-6)
	}
}

func TestEmbeddingLRUShadowAvoidsRedisRoundTrip(t *testing.T) {
	c, mr, closeFn := setupTestCache(t)
	defer closeFn()

	embedding := []float32{0.5, 0.25}
	require.NoError(t, c.PutEmbedding(context.Background(), "p1", embedding))
	mr.Close() // Redis is now unreachable; the LRU shadow must still serve it.

	got, ok, err := c.GetEmbedding(context.Background(), "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, embedding, got)
}

func TestMetadataRoundTrip(t *testing.T) {
	c, _, closeFn := setupTestCache(t)
	defer closeFn()

	meta := model.Metadata{Author: "jane", URL: "https://x", Language: "en", Frozen: false}
	require.NoError(t, c.PutMetadata(context.Background(), "p1", meta))

	got, ok, err := c.GetMetadata(context.Background(), "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, meta.Author, got.Author)
	assert.Equal(t, meta.URL, got.URL)
}

// TestInvalidatePostScenario is scenario S6's cache half: content of length
// 800 is truncated elsewhere, and invalidate_post("p1") followed by
// get_embedding("p1") and get_metadata("p1") both return None (miss).
func TestInvalidatePostScenario(t *testing.T) {
	c, _, closeFn := setupTestCache(t)
	defer closeFn()
	ctx := context.Background()

	require.NoError(t, c.PutEmbedding(ctx, "p1", []float32{0.1}))
	require.NoError(t, c.PutMetadata(ctx, "p1", model.Metadata{Author: "jane"}))

	require.NoError(t, c.InvalidatePost(ctx, "p1"))

	_, embOk, err := c.GetEmbedding(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, embOk)

	_, metaOk, err := c.GetMetadata(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, metaOk)
}

// TestInvalidatePostIdempotent is part of property #8: invalidate_post is
// idempotent.
func TestInvalidatePostIdempotent(t *testing.T) {
	c, _, closeFn := setupTestCache(t)
	defer closeFn()
	ctx := context.Background()

	require.NoError(t, c.PutEmbedding(ctx, "p1", []float32{0.1}))
	require.NoError(t, c.InvalidatePost(ctx, "p1"))
	require.NoError(t, c.InvalidatePost(ctx, "p1"))

	_, ok, err := c.GetEmbedding(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVectorSearchWithNoIndexReturnsEmptyNotError(t *testing.T) {
	c, _, closeFn := setupTestCache(t)
	defer closeFn()

	candidates, err := c.VectorSearch(context.Background(), []float32{0.1, 0.2}, 5)
	assert.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestHealthPingsRedis(t *testing.T) {
	c, _, closeFn := setupTestCache(t)
	defer closeFn()

	assert.NoError(t, c.Health(context.Background()))
}

func TestStatsTracksHitsAndMisses(t *testing.T) {
	c, _, closeFn := setupTestCache(t)
	defer closeFn()
	ctx := context.Background()

	_, _, _ = c.GetTopK(ctx, 1)
	require.NoError(t, c.PutTopK(ctx, 1, []model.Result{{PostID: "p1"}}))
	_, _, _ = c.GetTopK(ctx, 1)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.TopKMisses)
	assert.Equal(t, int64(1), stats.TopKHits)
}

func TestDeserializationFailureSurfacesAsMiss(t *testing.T) {
	c, mr, closeFn := setupTestCache(t)
	defer closeFn()

	require.NoError(t, mr.Set(topKKey(99), "not json"))

	results, ok, err := c.GetTopK(context.Background(), 99)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, results)
}

func TestEncodeDecodeVectorRoundTrip(t *testing.T) {
	original := []float32{1.5, -2.25, 0.0, 3.75}
	buf := encodeVector(original)
	assert.Equal(t, len(original)*4, len(buf))

	decoded, err := decodeVector(buf)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecodeVectorRejectsMisalignedBuffer(t *testing.T) {
	_, err := decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
