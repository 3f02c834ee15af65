package insights

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vehicle-insights/internal/models"
)

// DefaultCacheTTL is how long a cached report stays valid.
const DefaultCacheTTL = 15 * time.Minute

// Cache holds previously generated reports.
type Cache interface {
	// Get returns the report cached under fingerprint if it is still
	// fresh.
	Get(fingerprint string) (*models.Insights, bool)

	// Put replaces the cached report.
	Put(fingerprint string, report *models.Insights)

	// Last returns the most recent report regardless of fingerprint or
	// age. Used to serve something when a refresh fails.
	Last() (*models.Insights, bool)
}

// cacheEntry is the single slot held by MemoryCache.
type cacheEntry struct {
	report      *models.Insights
	fingerprint string
	createdAt   time.Time
}

func (e *cacheEntry) isValid(now time.Time, ttl time.Duration) bool {
	if e == nil || e.report == nil {
		return false
	}
	return now.Sub(e.createdAt) < ttl
}

// MemoryCache is a one-entry cache. Each Put overwrites the previous
// entry; concurrent writers race and the last one wins.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.RWMutex
	entry *cacheEntry
}

// NewMemoryCache returns a MemoryCache. A nil now uses time.Now and a
// non-positive ttl uses DefaultCacheTTL.
func NewMemoryCache(ttl time.Duration, now func() time.Time) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{ttl: ttl, now: now}
}

// Get implements Cache.
func (c *MemoryCache) Get(fingerprint string) (*models.Insights, bool) {
	c.mu.RLock()
	entry := c.entry
	c.mu.RUnlock()

	if entry == nil || entry.fingerprint != fingerprint {
		return nil, false
	}
	if !entry.isValid(c.now(), c.ttl) {
		return nil, false
	}
	return entry.report, true
}

// Put implements Cache.
func (c *MemoryCache) Put(fingerprint string, report *models.Insights) {
	c.mu.Lock()
	c.entry = &cacheEntry{
		report:      report,
		fingerprint: fingerprint,
		createdAt:   c.now(),
	}
	c.mu.Unlock()
}

// Last implements Cache.
func (c *MemoryCache) Last() (*models.Insights, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.entry == nil || c.entry.report == nil {
		return nil, false
	}
	return c.entry.report, true
}

// HistoryStore persists generated reports.
type HistoryStore interface {
	SaveInsights(ctx context.Context, fingerprint string, report *models.Insights) error
	LatestInsights(ctx context.Context) (*models.InsightsRecord, error)
}

// PersistentCache writes every Put through to a HistoryStore and lets
// Last fall back to the newest stored report when memory is empty, so a
// restarted server can still serve something.
type PersistentCache struct {
	mem   Cache
	store HistoryStore
	log   *slog.Logger
}

// NewPersistentCache wraps mem with store.
func NewPersistentCache(mem Cache, store HistoryStore, log *slog.Logger) *PersistentCache {
	if log == nil {
		log = slog.Default()
	}
	return &PersistentCache{
		mem:   mem,
		store: store,
		log:   log.With("component", "insights-cache"),
	}
}

// Get implements Cache. Only the in-memory slot answers lookups.
func (c *PersistentCache) Get(fingerprint string) (*models.Insights, bool) {
	return c.mem.Get(fingerprint)
}

// Put implements Cache.
func (c *PersistentCache) Put(fingerprint string, report *models.Insights) {
	c.mem.Put(fingerprint, report)

	if err := c.store.SaveInsights(context.Background(), fingerprint, report); err != nil {
		c.log.Warn("Failed to persist insights",
			"fingerprint", fingerprint, "error", err,
		)
	}
}

// Last implements Cache.
func (c *PersistentCache) Last() (*models.Insights, bool) {
	if report, ok := c.mem.Last(); ok {
		return report, true
	}

	rec, err := c.store.LatestInsights(context.Background())
	if err != nil || rec == nil {
		return nil, false
	}
	report := rec.Insights
	return &report, true
}
