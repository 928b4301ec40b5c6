// Package cache implements the typed cache manager of §4.G: per-CacheType
// TTL and key namespacing on top of the Redis store, write-through
// invalidation by prefix, hit/miss/eviction stats for the performance
// monitor, and a singleflight guard against cache-stampede on popular keys.
package cache

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	redisstore "github.com/achievement-engine/engine/internal/infrastructure/persistence/redis"
	"github.com/achievement-engine/engine/internal/observability"
)

// CacheType identifies a class of cached data, each with its own TTL and key
// prefix.
type CacheType int

const (
	// CacheTypeCategory caches individual category reads.
	CacheTypeCategory CacheType = iota
	// CacheTypeAchievement caches individual achievement reads.
	CacheTypeAchievement
	// CacheTypeProgress caches per-user progress snapshots.
	CacheTypeProgress
	// CacheTypeAward caches per-user award listings.
	CacheTypeAward
)

func (t CacheType) prefix() string {
	switch t {
	case CacheTypeCategory:
		return redisstore.PrefixCategory
	case CacheTypeAchievement:
		return redisstore.PrefixAchievement
	case CacheTypeProgress:
		return redisstore.PrefixProgress
	case CacheTypeAward:
		return redisstore.PrefixAward
	default:
		return "unknown:"
	}
}

func (t CacheType) ttl() time.Duration {
	switch t {
	case CacheTypeCategory, CacheTypeAchievement:
		return redisstore.TTLCatalogCache
	case CacheTypeProgress:
		return redisstore.TTLProgressCache
	case CacheTypeAward:
		return redisstore.TTLAwardCache
	default:
		return redisstore.TTLProgressCache
	}
}

func (t CacheType) label() string {
	switch t {
	case CacheTypeCategory:
		return "category"
	case CacheTypeAchievement:
		return "achievement"
	case CacheTypeProgress:
		return "progress"
	case CacheTypeAward:
		return "award"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// Manager is the typed cache manager described in §4.G. Reads that miss
// fall back to storage via Fetch's loader and repopulate; invalidation is
// write-through, called by repositories immediately after a successful
// commit, with no negative caching of deletes.
type Manager struct {
	store   *redisstore.Cache
	group   singleflight.Group
	hits    int64
	misses  int64
	evict   int64
	monitor *observability.Monitor
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithMonitor feeds every cache read and cache-miss storage load through the
// performance monitor, so §4.I's regression detector sees real cache/storage
// latencies instead of an empty snapshot.
func WithMonitor(monitor *observability.Monitor) ManagerOption {
	return func(m *Manager) { m.monitor = monitor }
}

// NewManager wraps a Redis-backed store with typed TTL and stats.
func NewManager(store *redisstore.Cache, opts ...ManagerOption) *Manager {
	m := &Manager{store: store}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get reads a cached value, reporting a hit or miss in the running stats.
// Returns redisstore.ErrCacheMiss on miss, same as the underlying store. A
// miss is not a failed read for the purposes of the performance monitor: the
// round trip to Redis still completed, it just came back empty.
func (m *Manager) Get(ctx context.Context, cacheType CacheType, key string, dest interface{}) error {
	start := time.Now()
	err := m.store.Get(ctx, cacheType.prefix()+key, dest)
	m.monitor.Record(observability.OperationCacheRead, time.Since(start), err == nil || err == redisstore.ErrCacheMiss)

	if err != nil {
		if err == redisstore.ErrCacheMiss {
			atomic.AddInt64(&m.misses, 1)
			observability.RecordCacheResult(cacheType.label(), "miss")
		}
		return err
	}
	atomic.AddInt64(&m.hits, 1)
	observability.RecordCacheResult(cacheType.label(), "hit")
	return nil
}

// Set writes a value under its type's TTL.
func (m *Manager) Set(ctx context.Context, cacheType CacheType, key string, value interface{}) error {
	return m.store.Set(ctx, cacheType.prefix()+key, value, cacheType.ttl())
}

// Invalidate deletes every key matching prefix within a CacheType's
// namespace. Repositories call this immediately after a successful commit;
// there is no negative caching, so a reader that misses right after simply
// falls back to storage.
func (m *Manager) Invalidate(ctx context.Context, cacheType CacheType, prefix string) error {
	atomic.AddInt64(&m.evict, 1)
	observability.RecordCacheResult(cacheType.label(), "eviction")
	return m.store.DeleteByPattern(ctx, cacheType.prefix()+prefix+"*")
}

// Loader fetches the authoritative value for key when the cache misses.
type Loader func(ctx context.Context) (interface{}, error)

// Fetch is a read-through helper: on cache hit it unmarshals into dest; on
// miss it calls loader, exactly once across concurrent callers sharing the
// same (cacheType, key) via singleflight, repopulates the cache, and copies
// the loaded value into dest via JSON round-trip.
func (m *Manager) Fetch(ctx context.Context, cacheType CacheType, key string, dest interface{}, loader Loader) error {
	if err := m.Get(ctx, cacheType, key, dest); err == nil {
		return nil
	} else if err != redisstore.ErrCacheMiss {
		return err
	}

	sfKey := cacheType.prefix() + key
	_, sfErr, _ := m.group.Do(sfKey, func() (interface{}, error) {
		var loaded interface{}
		loadErr := m.monitor.Track(observability.OperationStorageRead, func() error {
			var err error
			loaded, err = loader(ctx)
			return err
		})
		if loadErr != nil {
			return nil, loadErr
		}
		return nil, m.Set(ctx, cacheType, key, loaded)
	})
	if sfErr != nil {
		return sfErr
	}

	return m.store.Get(ctx, sfKey, dest)
}

// Stats returns a snapshot of hit/miss/eviction counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Hits:      atomic.LoadInt64(&m.hits),
		Misses:    atomic.LoadInt64(&m.misses),
		Evictions: atomic.LoadInt64(&m.evict),
	}
}
