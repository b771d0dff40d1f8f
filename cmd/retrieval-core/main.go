// Command retrieval-core wires together the cache, durable store,
// embedder, reranker, circuit breakers, retry executor, fallback
// coordinator, reranking service, and orchestrator, then runs one
// sample search end to end. It demonstrates the full request path
// without requiring live AWS credentials: the deterministic embedder
// and reranker stand in for their Bedrock-backed counterparts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq"

	"github.com/mhassan72/semantic-retrieval-core/pkg/breaker"
	"github.com/mhassan72/semantic-retrieval-core/pkg/cache"
	"github.com/mhassan72/semantic-retrieval-core/pkg/config"
	"github.com/mhassan72/semantic-retrieval-core/pkg/durable"
	"github.com/mhassan72/semantic-retrieval-core/pkg/embedder"
	"github.com/mhassan72/semantic-retrieval-core/pkg/fallback"
	"github.com/mhassan72/semantic-retrieval-core/pkg/model"
	"github.com/mhassan72/semantic-retrieval-core/pkg/observability"
	"github.com/mhassan72/semantic-retrieval-core/pkg/rerank"
	"github.com/mhassan72/semantic-retrieval-core/pkg/rerankservice"
	"github.com/mhassan72/semantic-retrieval-core/pkg/retry"
	"github.com/mhassan72/semantic-retrieval-core/pkg/search"
)

var (
	configPath = flag.String("config", "config.yaml", "path to the retrieval core config file")
	query      = flag.String("query", "machine learning", "sample query to run against the pipeline")
	k          = flag.Uint("k", 5, "number of results to request")
)

func main() {
	flag.Parse()

	logger := observability.NewStandardLogger("retrieval-core")
	metrics := observability.NewPrometheusMetricsClient("retrieval_core")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Cache.URL, PoolSize: cfg.Cache.PoolSize})
	redisCache, err := cache.New(redisClient, cfg.Cache.LRUSize, logger.WithPrefix("cache"), metrics)
	if err != nil {
		log.Fatalf("failed to construct cache: %v", err)
	}

	db, err := sqlx.Connect("postgres", cfg.Durable.URL)
	if err != nil {
		log.Fatalf("failed to connect to durable store: %v", err)
	}
	db.SetMaxOpenConns(cfg.Durable.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Durable.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Durable.ConnMaxLifetime)
	durableStore := durable.New(db, logger.WithPrefix("durable"), metrics)

	embed := embedder.NewDeterministicEmbedder(cfg.Embedder.Dimension)
	reranker := rerank.NewDeterministicReranker()

	breakerManager := breaker.NewManager(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Window:           cfg.Breaker.Window,
		ResetTimeout:     cfg.Breaker.ResetTimeout,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
	}, logger.WithPrefix("breaker"), metrics)

	retryExecutor := retry.ExponentialBackoff{
		Base:       cfg.Retry.BaseDelay,
		Cap:        cfg.Retry.CapDelay,
		Jitter:     cfg.Retry.Jitter,
		MaxRetries: cfg.Retry.MaxRetries,
	}

	coordinator := fallback.New(redisCache, durableStore, breakerManager, retryExecutor, fallback.Config{
		CacheDeadline:   cfg.Fallback.CacheDeadline,
		DurableDeadline: cfg.Fallback.DurableDeadline,
		MaxCandidates:   cfg.Fallback.MaxCandidates,
	}, logger.WithPrefix("fallback"), metrics)

	rerankSvc := rerankservice.New(reranker, rerankservice.Config{
		MaxToRerank:         cfg.RerankService.MaxToRerank,
		Timeout:             cfg.RerankService.Timeout,
		GracefulDegradation: cfg.RerankService.GracefulDegradation,
	}, logger.WithPrefix("rerank_service"), metrics)

	orchestrator := search.New(redisCache, durableStore, embed, coordinator, rerankSvc, logger.WithPrefix("search"), metrics)

	resp, err := orchestrator.Search(ctx, model.Request{
		Query:  *query,
		K:      uint32(*k),
		Rerank: true,
	})
	if err != nil {
		log.Fatalf("search failed: %v", err)
	}

	fmt.Printf("query=%q returned %d result(s):\n", *query, len(resp.Results))
	for i, r := range resp.Results {
		fmt.Printf("  %d. [%.4f] %s - %s\n", i+1, r.Score, r.PostID, r.Title)
	}
}
