package search

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhassan72/semantic-retrieval-core/pkg/breaker"
	cachepkg "github.com/mhassan72/semantic-retrieval-core/pkg/cache"
	durablepkg "github.com/mhassan72/semantic-retrieval-core/pkg/durable"
	"github.com/mhassan72/semantic-retrieval-core/pkg/errorkind"
	"github.com/mhassan72/semantic-retrieval-core/pkg/fallback"
	"github.com/mhassan72/semantic-retrieval-core/pkg/model"
	"github.com/mhassan72/semantic-retrieval-core/pkg/normalize"
	"github.com/mhassan72/semantic-retrieval-core/pkg/rerank"
	"github.com/mhassan72/semantic-retrieval-core/pkg/rerankservice"
	"github.com/mhassan72/semantic-retrieval-core/pkg/retry"
)

// fakeCache is an in-memory stand-in for cache.Cache.
type fakeCache struct {
	topK       map[uint64][]model.Result
	embeddings map[string][]float32
	metadata   map[string]model.Metadata
	searchFn   func(ctx context.Context, queryVector []float32, n int) ([]model.Candidate, error)
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		topK:       make(map[uint64][]model.Result),
		embeddings: make(map[string][]float32),
		metadata:   make(map[string]model.Metadata),
	}
}

func (f *fakeCache) GetTopK(ctx context.Context, fingerprint uint64) ([]model.Result, bool, error) {
	r, ok := f.topK[fingerprint]
	return r, ok, nil
}
func (f *fakeCache) PutTopK(ctx context.Context, fingerprint uint64, results []model.Result) error {
	f.topK[fingerprint] = results
	return nil
}
func (f *fakeCache) GetEmbedding(ctx context.Context, postID string) ([]float32, bool, error) {
	v, ok := f.embeddings[postID]
	return v, ok, nil
}
func (f *fakeCache) PutEmbedding(ctx context.Context, postID string, embedding []float32) error {
	f.embeddings[postID] = embedding
	return nil
}
func (f *fakeCache) GetMetadata(ctx context.Context, postID string) (model.Metadata, bool, error) {
	m, ok := f.metadata[postID]
	return m, ok, nil
}
func (f *fakeCache) PutMetadata(ctx context.Context, postID string, meta model.Metadata) error {
	f.metadata[postID] = meta
	return nil
}
func (f *fakeCache) InvalidatePost(ctx context.Context, postID string) error {
	delete(f.embeddings, postID)
	delete(f.metadata, postID)
	return nil
}
func (f *fakeCache) VectorSearch(ctx context.Context, queryVector []float32, n int) ([]model.Candidate, error) {
	if f.searchFn != nil {
		return f.searchFn(ctx, queryVector, n)
	}
	return []model.Candidate{}, nil
}
func (f *fakeCache) Health(ctx context.Context) error { return nil }
func (f *fakeCache) Stats() cachepkg.Stats            { return cachepkg.Stats{} }

// fakeDurable is an in-memory stand-in for durable.Store.
type fakeDurable struct {
	posts     map[string]model.Post
	searchFn  func(ctx context.Context, queryVector []float32, n int) ([]model.Candidate, error)
	healthErr error
	batchErr  error
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{posts: make(map[string]model.Post)}
}

func (d *fakeDurable) VectorSearch(ctx context.Context, queryVector []float32, n int) ([]model.Candidate, error) {
	if d.searchFn != nil {
		return d.searchFn(ctx, queryVector, n)
	}
	return []model.Candidate{}, nil
}
func (d *fakeDurable) GetByID(ctx context.Context, postID string) (model.Post, error) {
	p, ok := d.posts[postID]
	if !ok {
		return model.Post{}, errorkind.New(errorkind.DurableTransport, "get_by_id", "not found")
	}
	return p, nil
}
func (d *fakeDurable) GetByIDs(ctx context.Context, postIDs []string) ([]model.Post, error) {
	if d.batchErr != nil {
		return nil, d.batchErr
	}
	out := make([]model.Post, 0, len(postIDs))
	for _, id := range postIDs {
		if p, ok := d.posts[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}
func (d *fakeDurable) Upsert(ctx context.Context, post model.Post) error { return nil }
func (d *fakeDurable) UpdateEmbedding(ctx context.Context, postID string, embedding []float32) error {
	return nil
}
func (d *fakeDurable) Delete(ctx context.Context, postID string) error { return nil }
func (d *fakeDurable) Stats(ctx context.Context) (durablepkg.Stats, error) {
	return durablepkg.Stats{}, nil
}
func (d *fakeDurable) Health(ctx context.Context) error { return d.healthErr }

type fakeEmbedder struct{ vec []float32 }

func (e fakeEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	if e.vec != nil {
		return e.vec, nil
	}
	return []float32{0.1, 0.2}, nil
}
func (e fakeEmbedder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}

func newOrchestrator(t *testing.T, c *fakeCache, d *fakeDurable) (*Orchestrator, *fallback.Coordinator) {
	t.Helper()
	fb := fallback.New(c, d, breaker.NewManager(breaker.Config{}, nil, nil), retry.None{}, fallback.Config{}, nil, nil)
	rs := rerankservice.New(rerank.NewDeterministicReranker(), rerankservice.Config{}, nil, nil)
	return New(c, d, fakeEmbedder{}, fb, rs, nil, nil), fb
}

func strp(s string) *string { return &s }
func boolp(b bool) *bool    { return &b }

// TestSearchCacheHit is scenario S1: a topK cache hit for "machine
// learning" is returned, order preserved, without invoking the embedder.
func TestSearchCacheHit(t *testing.T) {
	c := newFakeCache()
	d := newFakeDurable()
	orch, _ := newOrchestrator(t, c, d)

	want := []model.Result{
		{PostID: "p1", Title: "A", Score: 0.9},
		{PostID: "p2", Title: "B", Score: 0.8},
		{PostID: "p3", Title: "C", Score: 0.7},
	}
	fp := fingerprintFor(t, "machine learning", 3, nil, model.Filters{})
	c.topK[fp] = want

	resp, err := orch.Search(context.Background(), model.Request{Query: "Machine   Learning", K: 3, Rerank: false})
	require.NoError(t, err)
	assert.Equal(t, want, resp.Results)
}

// TestSearchFiltersExcludeNonMatchingLanguage is scenario S5.
func TestSearchFiltersExcludeNonMatchingLanguage(t *testing.T) {
	c := newFakeCache()
	d := newFakeDurable()
	d.posts["p1"] = model.Post{ExternalID: "p1", Title: "English post", Content: "hello world", Language: "en"}
	d.posts["p2"] = model.Post{ExternalID: "p2", Title: "French post", Content: "bonjour", Language: "fr"}
	d.searchFn = func(ctx context.Context, qv []float32, n int) ([]model.Candidate, error) {
		return []model.Candidate{
			{PostID: "p1", Score: 0.9, Provenance: model.ProvenanceDurable},
			{PostID: "p2", Score: 0.8, Provenance: model.ProvenanceDurable},
		}, nil
	}

	orch, _ := newOrchestrator(t, c, d)
	resp, err := orch.Search(context.Background(), model.Request{
		Query: "post", K: 5, Filters: model.Filters{Language: strp("en")},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "p1", resp.Results[0].PostID)
}

// TestSearchMinScoreExcludesLowScoring checks the min_score drop rule.
func TestSearchMinScoreExcludesLowScoring(t *testing.T) {
	c := newFakeCache()
	d := newFakeDurable()
	d.posts["p1"] = model.Post{ExternalID: "p1", Title: "High", Content: "x"}
	d.posts["p2"] = model.Post{ExternalID: "p2", Title: "Low", Content: "y"}
	d.searchFn = func(ctx context.Context, qv []float32, n int) ([]model.Candidate, error) {
		return []model.Candidate{
			{PostID: "p1", Score: 0.9},
			{PostID: "p2", Score: 0.1},
		}, nil
	}

	minScore := float32(0.5)
	orch, _ := newOrchestrator(t, c, d)
	resp, err := orch.Search(context.Background(), model.Request{Query: "x", K: 5, MinScore: &minScore})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "p1", resp.Results[0].PostID)
}

// TestSearchGDPRSnippetTruncationAndInvalidation is scenario S6: a
// 1000-byte post's snippet is truncated to the GDPR bound, and
// invalidate_post removes it from the cache's visibility for later reads.
func TestSearchGDPRSnippetTruncationAndInvalidation(t *testing.T) {
	c := newFakeCache()
	d := newFakeDurable()
	longContent := strings.Repeat("word ", 200) // 1000 bytes, well over 300
	d.posts["p1"] = model.Post{ExternalID: "p1", Title: "Long", Content: longContent}
	d.searchFn = func(ctx context.Context, qv []float32, n int) ([]model.Candidate, error) {
		return []model.Candidate{{PostID: "p1", Score: 0.9}}, nil
	}

	orch, _ := newOrchestrator(t, c, d)
	resp, err := orch.Search(context.Background(), model.Request{Query: "word", K: 1})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.LessOrEqual(t, len(resp.Results[0].Snippet), model.SnippetLimit)
	assert.NoError(t, model.ValidateResponse(resp))

	require.NoError(t, c.PutMetadata(context.Background(), "p1", model.Metadata{Author: "jane"}))
	require.NoError(t, c.InvalidatePost(context.Background(), "p1"))
	_, ok, _ := c.GetMetadata(context.Background(), "p1")
	assert.False(t, ok)
}

// TestSearchFallbackToDurableOnlyWhenCacheBreakerOpen is scenario S3.
func TestSearchFallbackToDurableOnlyWhenCacheBreakerOpen(t *testing.T) {
	c := newFakeCache()
	d := newFakeDurable()
	d.posts["p1"] = model.Post{ExternalID: "p1", Title: "T", Content: "c"}
	d.searchFn = func(ctx context.Context, qv []float32, n int) ([]model.Candidate, error) {
		return []model.Candidate{{PostID: "p1", Score: 0.5}}, nil
	}

	mgr := breaker.NewManager(breaker.Config{}, nil, nil)
	cacheBreaker := mgr.Get("cache")
	for i := 0; i < 10; i++ {
		cacheBreaker.RecordFailure()
	}
	fb := fallback.New(c, d, mgr, retry.None{}, fallback.Config{}, nil, nil)
	rs := rerankservice.New(rerank.NewDeterministicReranker(), rerankservice.Config{}, nil, nil)
	orch := New(c, d, fakeEmbedder{}, fb, rs, nil, nil)

	resp, err := orch.Search(context.Background(), model.Request{Query: "word", K: 1})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "p1", resp.Results[0].PostID)
}

func TestSearchRejectsInvalidK(t *testing.T) {
	orch, _ := newOrchestrator(t, newFakeCache(), newFakeDurable())
	_, err := orch.Search(context.Background(), model.Request{Query: "x", K: 0})
	assert.Error(t, err)
}

func TestSearchRejectsInvalidQuery(t *testing.T) {
	orch, _ := newOrchestrator(t, newFakeCache(), newFakeDurable())
	_, err := orch.Search(context.Background(), model.Request{Query: "   ", K: 1})
	assert.Error(t, err)
}

func TestSearchMetadataOnlyHydrationUsesPlaceholderSnippet(t *testing.T) {
	c := newFakeCache()
	d := newFakeDurable()
	d.batchErr = errorkind.New(errorkind.DurableTransport, "get_by_ids", "down")
	c.metadata["p1"] = model.Metadata{Author: "jane", Language: "en"}
	d.searchFn = func(ctx context.Context, qv []float32, n int) ([]model.Candidate, error) {
		return []model.Candidate{{PostID: "p1", Score: 0.9}}, nil
	}

	orch, _ := newOrchestrator(t, c, d)
	resp, err := orch.Search(context.Background(), model.Request{Query: "word", K: 1})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, metadataOnlySnippet, resp.Results[0].Snippet)
}

func fingerprintFor(t *testing.T, query string, k int, minScore *float32, filters model.Filters) uint64 {
	t.Helper()
	return normalize.FingerprintWith(query, k, minScore, filterMap(filters))
}
