package rerank

import (
	"context"
	"strings"

	"github.com/mhassan72/semantic-retrieval-core/pkg/errorkind"
)

// DeterministicReranker scores (query, document) pairs by normalized
// token overlap — deterministic and bounded to [0,1]. It needs no model
// access and is used for tests and offline demos.
type DeterministicReranker struct{}

// NewDeterministicReranker creates a DeterministicReranker.
func NewDeterministicReranker() *DeterministicReranker {
	return &DeterministicReranker{}
}

// Score returns the Jaccard overlap between the lowercased token sets of
// query and document, i.e. |tokens(query) ∩ tokens(document)| /
// |tokens(query) ∪ tokens(document)|.
func (d *DeterministicReranker) Score(ctx context.Context, query, document string) (float32, error) {
	if strings.TrimSpace(query) == "" || strings.TrimSpace(document) == "" {
		return 0, errorkind.New(errorkind.Model, "score", "query and document must be non-empty")
	}

	q := tokenSet(query)
	doc := tokenSet(document)
	if len(q) == 0 || len(doc) == 0 {
		return 0, nil
	}

	intersection := 0
	union := make(map[string]struct{}, len(q)+len(doc))
	for t := range q {
		union[t] = struct{}{}
		if _, ok := doc[t]; ok {
			intersection++
		}
	}
	for t := range doc {
		union[t] = struct{}{}
	}

	return float32(intersection) / float32(len(union)), nil
}

// Rerank scores every document against the query and returns them
// ordered by descending score, input order preserved on ties.
func (d *DeterministicReranker) Rerank(ctx context.Context, query string, documents []string) ([]Scored, error) {
	return rerank(ctx, d, query, documents)
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
