// Package cache holds per-(symbol, timeframe) indicator snapshots with
// tier-specific freshness windows. Invalidation is purely time-based:
// the dominant cost driver is exchange API rate limits, not memory, so
// there is no LRU and no capacity bound.
package cache

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"quantgate/internal/domain"
	"quantgate/internal/metrics"
)

// Freshness windows per timeframe tier. Higher timeframes change less
// often and tolerate longer TTLs.
var freshnessWindows = map[string]time.Duration{
	"1d":  3600 * time.Second,
	"4h":  900 * time.Second,
	"1h":  300 * time.Second,
	"15m": 180 * time.Second,
	"5m":  60 * time.Second,
	"1m":  30 * time.Second,
}

// defaultFreshnessWindow applies to unrecognized timeframes.
const defaultFreshnessWindow = 60 * time.Second

// FreshnessWindow returns the TTL for a timeframe tier.
func FreshnessWindow(timeframe string) time.Duration {
	if w, ok := freshnessWindows[timeframe]; ok {
		return w
	}
	return defaultFreshnessWindow
}

type entry struct {
	snapshot   domain.IndicatorSnapshot
	capturedAt time.Time
}

// IndicatorCache owns cached indicator snapshots keyed by the composite
// (symbol, timeframe) key. Entries move absent -> fresh -> stale ->
// absent; a stale entry is deleted by the read that discovers it, never
// proactively. Safe for concurrent use: the lookup-or-evict sequence and
// stores serialize on one lock, so a stale entry cannot survive a racing
// store.
type IndicatorCache struct {
	mu      sync.Mutex
	entries map[string]map[string]entry // symbol -> timeframe -> entry

	now     func() time.Time
	metrics *metrics.Registry
	log     zerolog.Logger
}

// New creates an empty cache. reg may be nil.
func New(reg *metrics.Registry) *IndicatorCache {
	return &IndicatorCache{
		entries: make(map[string]map[string]entry),
		now:     time.Now,
		metrics: reg,
		log:     log.With().Str("component", "indicator_cache").Logger(),
	}
}

// Lookup returns the cached snapshot for (symbol, timeframe) if it is
// within its tier's freshness window. A stale entry is evicted before
// reporting the miss; the eviction also removes the per-symbol map when
// it empties. Eviction is destructive: a subsequent Lookup will not
// re-find the entry even if the clock is rewound.
func (c *IndicatorCache) Lookup(symbol, timeframe string) (domain.IndicatorSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byTF, ok := c.entries[symbol]
	if !ok {
		c.metrics.RecordCacheMiss(timeframe, "absent")
		return nil, false
	}
	e, ok := byTF[timeframe]
	if !ok {
		c.metrics.RecordCacheMiss(timeframe, "absent")
		return nil, false
	}

	window := FreshnessWindow(timeframe)
	if elapsed := c.now().Sub(e.capturedAt); elapsed < window {
		c.log.Debug().Str("symbol", symbol).Str("timeframe", timeframe).
			Dur("age", elapsed).Msg("using cached indicators")
		c.metrics.RecordCacheHit(timeframe)
		return e.snapshot, true
	}

	// Stale: evict now rather than waiting for a sweep.
	delete(byTF, timeframe)
	if len(byTF) == 0 {
		delete(c.entries, symbol)
	}
	c.log.Debug().Str("symbol", symbol).Str("timeframe", timeframe).
		Msg("evicted stale cache entry")
	c.metrics.RecordCacheEviction(timeframe)
	c.metrics.RecordCacheMiss(timeframe, "expired")
	return nil, false
}

// Store inserts or fully replaces the entry for (symbol, timeframe),
// stamping it with the current time. Partial updates do not exist; the
// snapshot is immutable once stored.
func (c *IndicatorCache) Store(symbol, timeframe string, snapshot domain.IndicatorSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byTF, ok := c.entries[symbol]
	if !ok {
		byTF = make(map[string]entry)
		c.entries[symbol] = byTF
	}
	byTF[timeframe] = entry{snapshot: snapshot, capturedAt: c.now()}
	c.log.Debug().Str("symbol", symbol).Str("timeframe", timeframe).
		Msg("updated indicator cache")
}

// IsExpired reports whether a Lookup for (symbol, timeframe) would miss.
// It shares Lookup's eviction side effect.
func (c *IndicatorCache) IsExpired(symbol, timeframe string) bool {
	_, ok := c.Lookup(symbol, timeframe)
	return !ok
}

// Len returns the number of live entries across all symbols.
func (c *IndicatorCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, byTF := range c.entries {
		n += len(byTF)
	}
	return n
}
