// Package fingermatch is the concurrent matcher service: it fronts the
// match engine with a worker pool, a bounded LRU result cache keyed by
// fingerprint digest, and latency/throughput telemetry.
package fingermatch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/arcspan/fingermatch/internal/cache"
	"github.com/arcspan/fingermatch/internal/engine"
	"github.com/arcspan/fingermatch/internal/extractor"
	"github.com/arcspan/fingermatch/internal/model"
	"github.com/arcspan/fingermatch/internal/store"
	"github.com/arcspan/fingermatch/internal/workerpool"
	"github.com/arcspan/fingermatch/pkg/logger"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

const (
	counterTotalRequests     = "total_requests"
	counterSuccessfulMatches = "successful_matches"
	counterCacheHits         = "cache_hits"
	counterCacheMisses       = "cache_misses"
	counterMatchErrors       = "match_errors"

	latencyOpService = "service_match"

	// cacheKeyPrefixLen truncates a fingerprint digest down to a fixed-width
	// cache key.
	cacheKeyPrefixLen = 64
)

// Service is the concurrent matcher façade: Match/MatchAsync/MatchBatch,
// GetStats, ClearCache.
type Service struct {
	cfg    *Config
	engine *engine.Engine
	pool   *workerpool.Pool
	cache  *cache.Cache
	log    logger.Interface

	totalRequests     atomic.Int64
	successfulMatches atomic.Int64
	cacheHits         atomic.Int64
	cacheMisses       atomic.Int64
}

// New builds a Service from the given options. A Store must be supplied
// via WithStore — the service has no default storage backend.
func New(opts ...Option) (*Service, error) {
	cfg := buildConfig(opts...)
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: no Store configured", ErrInvalidInput)
	}

	effectiveCacheSize := cfg.CacheSize
	if !cfg.EnableCaching {
		effectiveCacheSize = 0
	}

	svc := &Service{
		cfg:    cfg,
		engine: engine.New(cfg.Store),
		pool:   workerpool.New(cfg.NumThreads, cfg.NumThreads*4),
		cache:  cache.New(effectiveCacheSize),
		log:    cfg.Logger,
	}
	svc.log.Infof("service started with %d workers, cache_size=%s", cfg.NumThreads, humanize.Comma(int64(effectiveCacheSize)))
	return svc, nil
}

// Match runs synchronously on the caller's goroutine.
func (s *Service) Match(ctx context.Context, req Request) Response {
	return s.handle(ctx, req)
}

// MatchAsync submits req to the worker pool and returns a future-like
// handle for its Response.
func (s *Service) MatchAsync(ctx context.Context, req Request) (*workerpool.Future[Response], error) {
	return workerpool.Submit(s.pool, ctx, func() (Response, error) {
		return s.handle(ctx, req), nil
	})
}

// MatchBatch submits every request to the pool, then awaits all of them
// in input order.
func (s *Service) MatchBatch(ctx context.Context, reqs []Request) ([]Response, error) {
	futures := make([]*workerpool.Future[Response], len(reqs))
	for i, req := range reqs {
		f, err := workerpool.Submit(s.pool, ctx, func() (Response, error) {
			return s.handle(ctx, req), nil
		})
		if err != nil {
			return nil, err
		}
		futures[i] = f
	}

	responses := make([]Response, len(reqs))
	for i, f := range futures {
		resp, err := f.Get(ctx)
		if err != nil {
			return nil, err
		}
		responses[i] = resp
	}
	return responses, nil
}

// handle runs the per-request pipeline: stamp an id, check the cache,
// query the engine on a miss, cache non-empty results, and record
// latency regardless of outcome.
func (s *Service) handle(ctx context.Context, req Request) Response {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	s.totalRequests.Add(1)
	s.cfg.Metrics.IncrCounter(counterTotalRequests, 1)

	if err := validate(req); err != nil {
		return s.fail(requestID, start, err)
	}

	key := cacheKey(req.Fingerprint)

	if s.cfg.EnableCaching {
		if cached, ok := s.cache.Lookup(key); ok {
			s.cacheHits.Add(1)
			s.cfg.Metrics.IncrCounter(counterCacheHits, 1)
			return s.succeed(requestID, start, cached)
		}
		s.cacheMisses.Add(1)
		s.cfg.Metrics.IncrCounter(counterCacheMisses, 1)
	}

	minSimilarity := req.MinSimilarity
	if minSimilarity <= 0 {
		minSimilarity = s.cfg.DefaultMinSimilarity
	}
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = s.cfg.DefaultMaxResults
	}

	matches, err := s.engine.Query(ctx, req.Fingerprint, minSimilarity, maxResults)
	if err != nil {
		return s.fail(requestID, start, fmt.Errorf("%w: %v", ErrInternal, err))
	}

	if s.cfg.EnableCaching && len(matches) > 0 {
		s.cache.Insert(key, matches)
	}

	s.successfulMatches.Add(1)
	s.cfg.Metrics.IncrCounter(counterSuccessfulMatches, 1)
	return s.succeed(requestID, start, matches)
}

func validate(req Request) error {
	if req.MinSimilarity < 0 || req.MinSimilarity > 1 {
		return fmt.Errorf("%w: min_similarity %f out of [0,1]", ErrInvalidInput, req.MinSimilarity)
	}
	if req.MaxResults > MaxResultsLimit {
		return fmt.Errorf("%w: max_results %d exceeds limit %d", ErrInvalidInput, req.MaxResults, MaxResultsLimit)
	}
	return nil
}

func (s *Service) succeed(requestID string, start time.Time, matches []model.MatchResult) Response {
	elapsed := time.Since(start)
	s.recordLatency(elapsed)
	return Response{
		RequestID:        requestID,
		Matches:          matches,
		ProcessingTimeUs: elapsed.Microseconds(),
		Success:          true,
	}
}

func (s *Service) fail(requestID string, start time.Time, err error) Response {
	s.cfg.Metrics.IncrCounter(counterMatchErrors, 1)
	elapsed := time.Since(start)
	s.recordLatency(elapsed)
	return Response{
		RequestID:        requestID,
		ProcessingTimeUs: elapsed.Microseconds(),
		Success:          false,
		ErrorMessage:     err.Error(),
	}
}

func (s *Service) recordLatency(elapsed time.Duration) {
	s.cfg.Metrics.RecordLatency(latencyOpService, float64(elapsed.Microseconds()))
}

// cacheKey computes a cache key: the fingerprint's digest truncated to
// the first 64 hex characters.
func cacheKey(fp model.Fingerprint) string {
	digest := extractor.Digest(fp)
	if len(digest) > cacheKeyPrefixLen {
		return digest[:cacheKeyPrefixLen]
	}
	return digest
}

// GetStats returns the aggregated service statistics.
func (s *Service) GetStats() Stats {
	snap := s.cfg.Metrics.LatencySnapshot(latencyOpService)
	return Stats{
		TotalRequests:     s.totalRequests.Load(),
		SuccessfulMatches: s.successfulMatches.Load(),
		CacheHits:         s.cacheHits.Load(),
		CacheMisses:       s.cacheMisses.Load(),
		AvgLatencyUs:      snap.Mean,
		P95LatencyUs:      snap.P95,
		P99LatencyUs:      snap.P99,
	}
}

// ClearCache empties the result cache.
func (s *Service) ClearCache() {
	s.cache.Clear()
}

// Close drains the worker pool, clears the cache, and releases the store,
// in that order.
func (s *Service) Close() error {
	s.pool.Shutdown()
	s.cache.Clear()
	return s.cfg.Store.Close()
}

// StoreAdapter exposes the configured Store directly, for callers (like
// cmd/server) that need to ingest content without going through Match.
func (s *Service) StoreAdapter() store.Store {
	return s.cfg.Store
}
