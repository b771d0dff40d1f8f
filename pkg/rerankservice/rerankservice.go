// Package rerankservice implements the Reranking Service: a bounded,
// timed, gracefully-degrading stage wrapping pkg/rerank. It partitions
// results into a reranked head and an untouched tail so a slow or
// failing reranker never changes how many results a request gets back.
package rerankservice

import (
	"context"
	"sort"
	"time"

	"github.com/mhassan72/semantic-retrieval-core/pkg/errorkind"
	"github.com/mhassan72/semantic-retrieval-core/pkg/model"
	"github.com/mhassan72/semantic-retrieval-core/pkg/observability"
	"github.com/mhassan72/semantic-retrieval-core/pkg/rerank"
)

// Config tunes the bounded-rerank contract.
type Config struct {
	MaxToRerank         int
	Timeout             time.Duration
	GracefulDegradation bool
}

func (c Config) withDefaults() Config {
	if c.MaxToRerank <= 0 {
		c.MaxToRerank = 50
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	return c
}

// Service wraps a Reranker with the bounded/timed/graceful contract of
// spec §4.I.
type Service struct {
	reranker rerank.Reranker
	config   Config
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// New constructs a Service.
func New(reranker rerank.Reranker, config Config, logger observability.Logger, metrics observability.MetricsClient) *Service {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	return &Service{reranker: reranker, config: config.withDefaults(), logger: logger, metrics: metrics}
}

// RerankResults reorders the top MaxToRerank results by reranker score,
// leaving the tail untouched and in its original order. If enabled is
// false, the input is returned unchanged. On reranker timeout or model
// error, graceful degradation (if configured) returns the input
// unchanged along with a warning Event instead of propagating the error.
//
// Invariant: len(output) == len(results) always; the reranker never
// drops or adds items.
func (s *Service) RerankResults(ctx context.Context, query string, results []model.Result, enabled bool) ([]model.Result, []observability.Event, error) {
	if !enabled || len(results) == 0 {
		return results, nil, nil
	}

	head := results
	tail := []model.Result{}
	if len(results) > s.config.MaxToRerank {
		head = results[:s.config.MaxToRerank]
		tail = results[s.config.MaxToRerank:]
	}

	documents := make([]string, len(head))
	for i, r := range head {
		documents[i] = r.Title + " " + r.Snippet
	}

	rerankCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	scored, err := s.reranker.Rerank(rerankCtx, query, documents)
	s.metrics.RecordDuration("rerank_duration", time.Since(start), nil)

	if err != nil {
		if !s.config.GracefulDegradation {
			return nil, nil, err
		}
		s.logger.Warn("reranking degraded gracefully", map[string]interface{}{"error": err.Error()})
		s.metrics.IncrementCounter("rerank_graceful_degradations_total", 1, nil)
		event := observability.Event{
			Severity: observability.SeverityWarn,
			Message:  "reranking failed, returning pre-rerank results",
			Fields:   map[string]interface{}{"error": err.Error(), "kind": errorkind.KindOf(err).String()},
		}
		return results, []observability.Event{event}, nil
	}

	reranked := make([]model.Result, len(head))
	for i, sc := range scored {
		r := head[sc.Index]
		r.Score = sc.Score
		reranked[i] = r
	}
	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})

	out := make([]model.Result, 0, len(results))
	out = append(out, reranked...)
	out = append(out, tail...)
	return out, nil, nil
}
