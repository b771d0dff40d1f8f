// Package rerank implements the Reranker component: scoring a single
// (query, document) pair and reordering a batch of documents by that
// score. Mirrors the Embedder split between a production, model-backed
// implementation and a deterministic one used in tests and offline demos.
package rerank

import (
	"context"
	"sort"
	"strings"

	"github.com/mhassan72/semantic-retrieval-core/pkg/errorkind"
)

// Scored pairs an original input index with its relevance score.
type Scored struct {
	Index int
	Score float32
}

// Reranker scores a (query, document) pair and reorders a batch of
// documents by descending relevance to the query.
type Reranker interface {
	Score(ctx context.Context, query, document string) (float32, error)
	Rerank(ctx context.Context, query string, documents []string) ([]Scored, error)
}

// rerank is the shared ordering logic for both implementations: score
// every document, then sort descending, preserving input order on ties.
// Empty query or any empty document is a Model error; an empty document
// list yields an empty, non-nil result.
func rerank(ctx context.Context, r Reranker, query string, documents []string) ([]Scored, error) {
	if len(documents) == 0 {
		return []Scored{}, nil
	}
	if strings.TrimSpace(query) == "" {
		return nil, errorkind.New(errorkind.Model, "rerank", "query is empty")
	}

	out := make([]Scored, len(documents))
	for i, doc := range documents {
		score, err := r.Score(ctx, query, doc)
		if err != nil {
			return nil, err
		}
		out[i] = Scored{Index: i, Score: score}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out, nil
}
