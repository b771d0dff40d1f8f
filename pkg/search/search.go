// Package search implements the Search Orchestrator: the end-to-end
// semantic_search pipeline composing the normalizer, cache, fallback
// coordinator (durable + cache fan-out), embedder, reranking service,
// and the GDPR snippet/response rules into a single request path.
package search

import (
	"context"

	"github.com/mhassan72/semantic-retrieval-core/pkg/cache"
	"github.com/mhassan72/semantic-retrieval-core/pkg/durable"
	"github.com/mhassan72/semantic-retrieval-core/pkg/embedder"
	"github.com/mhassan72/semantic-retrieval-core/pkg/errorkind"
	"github.com/mhassan72/semantic-retrieval-core/pkg/fallback"
	"github.com/mhassan72/semantic-retrieval-core/pkg/model"
	"github.com/mhassan72/semantic-retrieval-core/pkg/normalize"
	"github.com/mhassan72/semantic-retrieval-core/pkg/observability"
	"github.com/mhassan72/semantic-retrieval-core/pkg/rerankservice"
)

// metadataOnlySnippet is substituted for the full GDPR-truncated snippet
// when a post could only be hydrated from cached metadata (no title or
// content available in that path).
const metadataOnlySnippet = "[content unavailable]"

// Orchestrator implements semantic_search, owning references to every
// other component it composes but never a back-reference from them.
type Orchestrator struct {
	cache     cache.Cache
	durable   durable.Store
	embedder  embedder.Embedder
	fallback  *fallback.Coordinator
	rerankSvc *rerankservice.Service

	logger  observability.Logger
	metrics observability.MetricsClient
}

// New constructs an Orchestrator over its component dependencies.
func New(
	c cache.Cache,
	d durable.Store,
	e embedder.Embedder,
	fb *fallback.Coordinator,
	rs *rerankservice.Service,
	logger observability.Logger,
	metrics observability.MetricsClient,
) *Orchestrator {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	return &Orchestrator{cache: c, durable: d, embedder: e, fallback: fb, rerankSvc: rs, logger: logger, metrics: metrics}
}

// Search runs the eleven-step retrieval pipeline of spec §4.J.
func (o *Orchestrator) Search(ctx context.Context, req model.Request) (model.Response, error) {
	// 1. Validate.
	if err := normalize.Validate(req.Query); err != nil {
		return model.Response{}, err
	}
	if req.K < 1 || req.K > 50 {
		return model.Response{}, errorkind.New(errorkind.InvalidRequest, "search", "k must be in 1..=50")
	}
	if req.MinScore != nil && (*req.MinScore < 0 || *req.MinScore > 1) {
		return model.Response{}, errorkind.New(errorkind.InvalidRequest, "search", "min_score must be in [0,1]")
	}

	// 2. Fingerprint and topK cache probe.
	fingerprint := normalize.FingerprintWith(req.Query, int(req.K), req.MinScore, filterMap(req.Filters))
	if cached, ok, err := o.cache.GetTopK(ctx, fingerprint); err == nil && ok {
		return model.Response{Results: truncateResults(cached, int(req.K))}, nil
	}

	// 3. Query embedding.
	queryVector, err := o.embedder.Encode(ctx, req.Query)
	if err != nil {
		return model.Response{}, errorkind.Wrap(err, errorkind.Model, "search")
	}

	// 4. Retrieve 2k candidates via the Fallback Coordinator.
	mode, candidates, err := o.fallback.Retrieve(ctx, queryVector, int(req.K)*2)
	if err != nil {
		return model.Response{}, err
	}

	// 5. Empty candidates short-circuits to an empty response.
	if len(candidates) == 0 {
		return model.Response{Results: []model.Result{}}, nil
	}

	// 6. Hydrate posts.
	posts, metadataOnly := o.hydrate(ctx, candidates)

	// 7-9. Build results, apply filters, apply min_score.
	results := make([]model.Result, 0, len(candidates))
	for _, c := range candidates {
		post, ok := posts[c.PostID]
		if !ok {
			continue
		}
		if !req.Filters.Match(post) {
			continue
		}
		if req.MinScore != nil && c.Score < *req.MinScore {
			continue
		}

		snippet := metadataOnlySnippet
		if !metadataOnly[c.PostID] {
			snippet = model.Truncate(post.Content, model.SnippetLimit)
		}

		results = append(results, model.Result{
			PostID:  c.PostID,
			Title:   post.Title,
			Snippet: snippet,
			Score:   c.Score,
			Meta:    model.PublicMetadata(post),
		})
	}

	// 10. Rerank iff requested and the mode allows it.
	if req.Rerank && mode != fallback.Degraded && o.rerankSvc != nil {
		reranked, _, err := o.rerankSvc.RerankResults(ctx, req.Query, results, true)
		if err == nil {
			results = reranked
		}
		// On reranker failure the pre-rerank list is kept (graceful).
	}

	// 11. Truncate to k, best-effort cache write, return.
	if len(results) > int(req.K) {
		results = results[:req.K]
	}

	if err := o.cache.PutTopK(ctx, fingerprint, results); err != nil {
		o.logger.Warn("topk cache write failed", map[string]interface{}{"error": err.Error()})
	}

	return model.Response{Results: results}, nil
}

// hydrate resolves candidate ids to posts: batch durable fetch first,
// metadata-cache backfill for ids the batch missed, then a per-id
// durable fetch for anything still missing (opportunistically refreshing
// the metadata cache on success). Ids that cannot be resolved any way
// are logged and skipped. metadataOnly marks ids resolved only via the
// cache's metadata tier, where title/content are unavailable.
func (o *Orchestrator) hydrate(ctx context.Context, candidates []model.Candidate) (map[string]model.Post, map[string]bool) {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.PostID
	}

	posts := make(map[string]model.Post, len(ids))
	metadataOnly := make(map[string]bool, len(ids))

	if batch, err := o.durable.GetByIDs(ctx, ids); err == nil {
		for _, p := range batch {
			posts[p.ExternalID] = p
		}
	} else {
		o.logger.Warn("durable batch hydrate failed, backfilling from metadata cache", map[string]interface{}{"error": err.Error()})
	}

	for _, id := range ids {
		if _, ok := posts[id]; ok {
			continue
		}
		meta, ok, err := o.cache.GetMetadata(ctx, id)
		if err != nil || !ok {
			continue
		}
		posts[id] = model.Post{
			ExternalID:  id,
			Author:      meta.Author,
			URL:         meta.URL,
			PublishedAt: meta.Date,
			Language:    meta.Language,
			Frozen:      meta.Frozen,
		}
		metadataOnly[id] = true
	}

	for _, id := range ids {
		if _, ok := posts[id]; ok {
			continue
		}
		post, err := o.durable.GetByID(ctx, id)
		if err != nil {
			o.logger.Warn("unable to resolve post, skipping", map[string]interface{}{"post_id": id, "error": err.Error()})
			continue
		}
		posts[id] = post
		if err := o.cache.PutMetadata(ctx, id, model.PublicMetadata(post)); err != nil {
			o.logger.Warn("opportunistic metadata cache write failed", map[string]interface{}{"post_id": id, "error": err.Error()})
		}
	}

	return posts, metadataOnly
}

func filterMap(f model.Filters) map[string]string {
	out := make(map[string]string, 2)
	if f.Language != nil {
		out["language"] = *f.Language
	}
	if f.Frozen != nil {
		if *f.Frozen {
			out["frozen"] = "true"
		} else {
			out["frozen"] = "false"
		}
	}
	return out
}

func truncateResults(results []model.Result, k int) []model.Result {
	if len(results) > k {
		return results[:k]
	}
	return results
}
