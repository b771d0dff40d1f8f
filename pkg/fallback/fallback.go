// Package fallback implements the Fallback Coordinator: mode selection
// between the cache and durable retrieval backends, concurrent two-arm
// fan-out, and score-preserving candidate merge/dedup. It exclusively
// owns the Circuit Breaker and Retry Executor for the retrieval stage;
// neither the cache nor the durable store wraps itself in either.
package fallback

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mhassan72/semantic-retrieval-core/pkg/breaker"
	"github.com/mhassan72/semantic-retrieval-core/pkg/errorkind"
	"github.com/mhassan72/semantic-retrieval-core/pkg/model"
	"github.com/mhassan72/semantic-retrieval-core/pkg/observability"
	"github.com/mhassan72/semantic-retrieval-core/pkg/retry"
)

// Mode is the retrieval mode selected for a single request.
type Mode int

const (
	Full Mode = iota
	DurableOnly
	CacheOnly
	Degraded
)

func (m Mode) String() string {
	switch m {
	case Full:
		return "full"
	case DurableOnly:
		return "durable_only"
	case CacheOnly:
		return "cache_only"
	case Degraded:
		return "degraded"
	default:
		return "unknown"
	}
}

const (
	cacheBreakerName   = "cache"
	durableBreakerName = "durable"
)

// VectorSearcher is the subset of the Cache/Durable Store contracts the
// coordinator needs from every backend: a vector similarity search. The
// health probe is the separate HealthChecker interface.
type VectorSearcher interface {
	VectorSearch(ctx context.Context, queryVector []float32, n int) ([]model.Candidate, error)
}

// HealthChecker is implemented by backends the coordinator health-probes
// before routing to them.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Config tunes per-backend deadlines and the post-merge candidate cap.
type Config struct {
	CacheDeadline   time.Duration
	DurableDeadline time.Duration
	MaxCandidates   int
	ForceDegraded   bool
}

func (c Config) withDefaults() Config {
	if c.CacheDeadline <= 0 {
		c.CacheDeadline = 400 * time.Millisecond
	}
	if c.DurableDeadline <= 0 {
		c.DurableDeadline = 500 * time.Millisecond
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = 130
	}
	return c
}

// Coordinator selects a retrieval mode and executes the fan-out.
type Coordinator struct {
	cache   VectorSearcher
	durable interface {
		VectorSearcher
		HealthChecker
	}
	breakers *breaker.Manager
	retry    retry.Executor
	config   Config
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// New constructs a Coordinator over the given cache and durable backends.
func New(
	cache VectorSearcher,
	durable interface {
		VectorSearcher
		HealthChecker
	},
	breakers *breaker.Manager,
	retryExecutor retry.Executor,
	config Config,
	logger observability.Logger,
	metrics observability.MetricsClient,
) *Coordinator {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	return &Coordinator{
		cache:    cache,
		durable:  durable,
		breakers: breakers,
		retry:    retryExecutor,
		config:   config.withDefaults(),
		logger:   logger,
		metrics:  metrics,
	}
}

// SelectMode applies the spec's mode-selection rule: an open cache
// breaker forces DurableOnly; else a failing durable health probe forces
// CacheOnly; else Full (or Degraded, if forced by the policy switch).
func (c *Coordinator) SelectMode(ctx context.Context) Mode {
	if c.breakers.Get(cacheBreakerName).State() == breaker.Open {
		return DurableOnly
	}
	if err := c.durable.Health(ctx); err != nil {
		return CacheOnly
	}
	if c.config.ForceDegraded {
		return Degraded
	}
	return Full
}

// Retrieve selects a mode, executes the corresponding fan-out, and
// returns the merged, deduplicated, capped candidate list.
func (c *Coordinator) Retrieve(ctx context.Context, queryVector []float32, n int) (Mode, []model.Candidate, error) {
	mode := c.SelectMode(ctx)

	var candidates []model.Candidate
	var err error

	switch mode {
	case DurableOnly:
		candidates, err = c.callDurable(ctx, queryVector, n)
	case CacheOnly:
		candidates, err = c.callCache(ctx, queryVector, n)
	default: // Full, Degraded
		candidates, err = c.full(ctx, queryVector, n)
	}
	if err != nil {
		return mode, nil, err
	}

	return mode, mergeDedup(candidates, c.config.MaxCandidates), nil
}

// full launches the cache and durable arms concurrently, each under its
// own deadline, recording the outcome against that backend's breaker.
// Partial success is permitted: only if both arms fail does Retrieve
// return an error.
func (c *Coordinator) full(ctx context.Context, queryVector []float32, n int) ([]model.Candidate, error) {
	g, gctx := errgroup.WithContext(ctx)

	var cacheResult, durableResult []model.Candidate
	var cacheErr, durableErr error

	g.Go(func() error {
		cacheResult, cacheErr = c.callCache(gctx, queryVector, n)
		return nil // arm failures never abort the sibling arm
	})
	g.Go(func() error {
		durableResult, durableErr = c.callDurable(gctx, queryVector, n)
		return nil
	})
	_ = g.Wait()

	if cacheErr != nil && durableErr != nil {
		return nil, errorkind.New(errorkind.Internal, "fallback_retrieve", "no retrieval sources available")
	}

	out := make([]model.Candidate, 0, len(cacheResult)+len(durableResult))
	out = append(out, cacheResult...)
	out = append(out, durableResult...)
	return out, nil
}

func (c *Coordinator) callCache(ctx context.Context, queryVector []float32, n int) ([]model.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.CacheDeadline)
	defer cancel()

	b := c.breakers.Get(cacheBreakerName)
	if !b.Allow() {
		return nil, breaker.ErrOpen
	}

	var result []model.Candidate
	err := c.retry.Execute(ctx, func(ctx context.Context) error {
		var innerErr error
		result, innerErr = c.cache.VectorSearch(ctx, queryVector, n)
		return innerErr
	})
	if err != nil {
		b.RecordFailure()
		return nil, err
	}
	b.RecordSuccess()
	return result, nil
}

func (c *Coordinator) callDurable(ctx context.Context, queryVector []float32, n int) ([]model.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.DurableDeadline)
	defer cancel()

	b := c.breakers.Get(durableBreakerName)
	if !b.Allow() {
		return nil, breaker.ErrOpen
	}

	var result []model.Candidate
	err := c.retry.Execute(ctx, func(ctx context.Context) error {
		var innerErr error
		result, innerErr = c.durable.VectorSearch(ctx, queryVector, n)
		return innerErr
	})
	if err != nil {
		b.RecordFailure()
		return nil, err
	}
	b.RecordSuccess()
	return result, nil
}

// mergeDedup keys candidates by post id, retains the highest score per
// key (first-seen wins ties), sorts descending, and truncates to max.
func mergeDedup(candidates []model.Candidate, max int) []model.Candidate {
	best := make(map[string]model.Candidate, len(candidates))
	order := make([]string, 0, len(candidates))

	for _, cand := range candidates {
		existing, ok := best[cand.PostID]
		if !ok {
			best[cand.PostID] = cand
			order = append(order, cand.PostID)
			continue
		}
		if cand.Score > existing.Score {
			best[cand.PostID] = cand
		}
	}

	merged := make([]model.Candidate, 0, len(order))
	for _, id := range order {
		merged = append(merged, best[id])
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})

	if max > 0 && len(merged) > max {
		merged = merged[:max]
	}
	return merged
}
