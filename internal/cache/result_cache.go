// Package cache provides an injectable, capacity-bounded LRU cache of
// propagation results.
//
// Entries are keyed by satellite, element-set epoch and fingerprint,
// instant, frame and model. Results are deterministic for a given key, so
// entries never go stale: when a satellite's element set is replaced the new
// epoch or fingerprint yields new keys and the old entries age out of the
// LRU. Concurrent misses for the same key are coalesced so at most one caller
// computes.
package cache

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
	"unsafe"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/fpaludi/SatelliteTraker/internal/metrics"
	"github.com/fpaludi/SatelliteTraker/internal/transform"
)

// DefaultCapacity is used when Config.Capacity is not positive.
const DefaultCapacity = 100_000

// Config holds cache configuration.
type Config struct {
	Capacity int // maximum number of entries (default: 100000)
}

// Key identifies one propagation result. Elements fingerprints the full
// element set, so two sets sharing a catalog number and epoch never share
// entries.
type Key struct {
	CatalogNumber int
	Epoch         int64 // element-set epoch, unix nanoseconds
	Elements      uint64
	At            int64 // sample instant, unix nanoseconds
	Frame         transform.Frame
	Model         string
}

// NewKey builds a key from time values.
func NewKey(catalogNumber int, epoch time.Time, elements uint64, at time.Time, frame transform.Frame, model string) Key {
	return Key{
		CatalogNumber: catalogNumber,
		Epoch:         epoch.UnixNano(),
		Elements:      elements,
		At:            at.UnixNano(),
		Frame:         frame,
		Model:         model,
	}
}

func (k Key) String() string {
	return fmt.Sprintf("%05d/%d/%016x/%d/%s/%s", k.CatalogNumber, k.Epoch, k.Elements, k.At, k.Frame, k.Model)
}

// Value is a cached result. Geodetic is set for Earth-fixed entries.
type Value struct {
	State    transform.StateVector
	Geodetic transform.GeodeticPoint
}

// ResultCache is an LRU cache of propagation results. Safe for concurrent use
// by multiple goroutines; the zero value is not usable, construct with New.
type ResultCache struct {
	entries  *lru.Cache[Key, Value]
	capacity int

	group  singleflight.Group
	logger *slog.Logger

	// Counters (lock-free).
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New creates a result cache.
func New(config Config, logger *slog.Logger) *ResultCache {
	if config.Capacity <= 0 {
		config.Capacity = DefaultCapacity
	}

	c := &ResultCache{capacity: config.Capacity, logger: logger}
	// NewWithEvict only fails for a non-positive size.
	c.entries, _ = lru.NewWithEvict(config.Capacity, func(Key, Value) {
		c.evictions.Add(1)
		metrics.AddCacheEvictions(1)
	})
	logger.Info("result cache initialized", "capacity", config.Capacity)
	return c
}

// Get returns a copy of the cached value for key.
func (c *ResultCache) Get(key Key) (Value, bool) {
	if v, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		metrics.IncCacheHits()
		return v, true
	}
	c.misses.Add(1)
	metrics.IncCacheMisses()
	return Value{}, false
}

// Put stores value under key, evicting the least recently used entry when
// the cache is full. Storing an existing key overwrites it.
func (c *ResultCache) Put(key Key, value Value) {
	c.entries.Add(key, value)
	metrics.SetCacheEntries(c.entries.Len())
}

// GetOrCompute returns the cached value for key, or calls compute and stores
// its result. Concurrent callers missing on the same key share one call and
// observe the same value. Errors are returned to every waiting caller and
// are not cached.
func (c *ResultCache) GetOrCompute(key Key, compute func() (Value, error)) (Value, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	res, err, shared := c.group.Do(key.String(), func() (any, error) {
		// A caller that missed just before another finished computing
		// finds the value here instead of computing it again.
		if v, ok := c.entries.Peek(key); ok {
			return v, nil
		}

		v, err := compute()
		if err != nil {
			return nil, err
		}
		c.Put(key, v)
		return v, nil
	})
	if err != nil {
		return Value{}, err
	}
	if shared {
		c.logger.Debug("cache miss coalesced", "key", key.String())
	}
	return res.(Value), nil
}

// Len returns the number of cached entries.
func (c *ResultCache) Len() int {
	return c.entries.Len()
}

// Stats returns current cache statistics.
func (c *ResultCache) Stats() Stats {
	n := c.Len()
	return Stats{
		Entries:   n,
		Capacity:  c.capacity,
		SizeBytes: estimateSizeBytes(n),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// Stats holds cache statistics for the stats endpoint.
type Stats struct {
	Entries   int   `json:"entries"`
	Capacity  int   `json:"capacity"`
	SizeBytes int64 `json:"size_bytes"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// estimateSizeBytes returns a rough estimate of the cache memory footprint.
func estimateSizeBytes(entries int) int64 {
	// Key and value in the list element plus its links, and the map slot
	// (key + pointer).
	per := int64(unsafe.Sizeof(Key{})+unsafe.Sizeof(Value{})) + 32 + int64(unsafe.Sizeof(Key{})) + 8
	return int64(entries) * per
}
