// Package aggregator fans out to every configured source and merges the
// results into one feed ordered newest first.
package aggregator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"disaster-alerts-go/internal/metrics"
	"disaster-alerts-go/internal/models"
	"disaster-alerts-go/internal/sources"
)

const DefaultFetchTimeout = 12 * time.Second

// Result is the aggregation response body.
type Result struct {
	Alerts []models.NormalizedAlert `json:"alerts"`
	Cached bool                     `json:"cached"`
}

type Aggregator struct {
	sources []sources.Source
	cache   *Cache
	timeout time.Duration
	metrics *metrics.Metrics

	// refresh serializes upstream fan-outs so concurrent stale readers
	// trigger a single fetch.
	refresh sync.Mutex
}

func New(srcs []sources.Source, cache *Cache, timeout time.Duration, m *metrics.Metrics) *Aggregator {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Aggregator{sources: srcs, cache: cache, timeout: timeout, metrics: m}
}

// Aggregate serves the cached feed while fresh, otherwise refreshes it.
func (a *Aggregator) Aggregate(ctx context.Context, p sources.Params) (Result, error) {
	if alerts, ok := a.cache.Fresh(); ok {
		a.metrics.CacheHit()
		return Result{Alerts: alerts, Cached: true}, nil
	}

	a.refresh.Lock()
	defer a.refresh.Unlock()

	// another request may have refreshed while we waited
	if alerts, ok := a.cache.Fresh(); ok {
		a.metrics.CacheHit()
		return Result{Alerts: alerts, Cached: true}, nil
	}
	a.metrics.CacheMiss()
	return a.fetchLocked(ctx, p)
}

// Refresh bypasses the cache, fetches every source and stores the result.
func (a *Aggregator) Refresh(ctx context.Context, p sources.Params) (Result, error) {
	a.refresh.Lock()
	defer a.refresh.Unlock()
	return a.fetchLocked(ctx, p)
}

func (a *Aggregator) fetchLocked(ctx context.Context, p sources.Params) (Result, error) {
	alerts := a.fetchAll(ctx, p)
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("aggregate alerts: %w", err)
	}

	a.cache.Store(alerts)
	return Result{Alerts: alerts, Cached: false}, nil
}

// fetchAll runs every source concurrently. A failing source contributes
// nothing.
func (a *Aggregator) fetchAll(ctx context.Context, p sources.Params) []models.NormalizedAlert {
	results := make([][]models.NormalizedAlert, len(a.sources))

	var wg sync.WaitGroup
	for i, src := range a.sources {
		i, src := i, src
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = a.fetchOne(ctx, src, p)
		}()
	}
	wg.Wait()

	var merged []models.NormalizedAlert
	for _, r := range results {
		merged = append(merged, r...)
	}
	if merged == nil {
		merged = []models.NormalizedAlert{}
	}
	SortByPublished(merged)
	return merged
}

func (a *Aggregator) fetchOne(ctx context.Context, src sources.Source, p sources.Params) (alerts []models.NormalizedAlert) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			alerts = nil
		}
		if err != nil {
			log.Printf("Failed to fetch %s alerts: %v", src.Name(), err)
		}
		a.metrics.ObserveFetch(src.Name(), time.Since(start), len(alerts), err)
	}()

	alerts, err = src.Fetch(ctx, p)
	if err != nil {
		alerts = nil
	}
	return alerts
}

// SortByPublished orders alerts newest first. Alerts without a publish time
// sort last.
func SortByPublished(alerts []models.NormalizedAlert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].PublishedMillis() > alerts[j].PublishedMillis()
	})
}
