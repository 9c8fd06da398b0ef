// Package offlinecache implements the TTL-bounded cache with stale fallback
// that keeps adapter payloads and model-metrics views available across
// upstream failures. The in-process variant is a single-writer map guarded
// by a mutex, with a min-heap tracking expirations for O(log n) sweeps.
package offlinecache

import (
	"container/heap"
	"path"
	"sync"
	"sync/atomic"
	"time"
)

// Stats reports cumulative cache activity.
type Stats struct {
	Hits    int64
	Misses  int64
	Sets    int64
	HitRate float64
}

// Config controls capacity and sweep cadence.
type Config struct {
	MaxSize         int
	DefaultTTL      time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig mirrors the defaults used across the rest of the pack.
func DefaultConfig() Config {
	return Config{MaxSize: 1000, DefaultTTL: 10 * time.Minute, CleanupInterval: time.Minute}
}

type entry struct {
	value     []byte
	createdAt int64 // unix nano
	expiresAt int64 // unix nano, 0 = never
}

type expEntry struct {
	key       string
	expiresAt int64
	index     int
}

type expHeap []*expEntry

func (h expHeap) Len() int            { return len(h) }
func (h expHeap) Less(i, j int) bool  { return h[i].expiresAt < h[j].expiresAt }
func (h expHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *expHeap) Push(x any)         { e := x.(*expEntry); e.index = len(*h); *h = append(*h, e) }
func (h *expHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Cache is the in-process TTL-bounded cache, keyed per source tag by
// convention (callers prefix keys as "<sourceTag>:<key>").
type Cache struct {
	mu sync.Mutex

	data map[string]*entry
	exp  expHeap

	lastGood map[string][]byte // most recent value ever set per key, for retrieve_stale

	maxSize    int
	defaultTTL time.Duration

	ticker *time.Ticker
	stop   chan struct{}

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

// New constructs a cache and starts its background sweep goroutine.
func New(cfg Config) *Cache {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1000
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 10 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	c := &Cache{
		data:       make(map[string]*entry),
		lastGood:   make(map[string][]byte),
		maxSize:    cfg.MaxSize,
		defaultTTL: cfg.defaultTTL(),
		ticker:     time.NewTicker(cfg.CleanupInterval),
		stop:       make(chan struct{}),
	}
	heap.Init(&c.exp)
	go c.sweepLoop()
	return c
}

func (cfg Config) defaultTTL() time.Duration { return cfg.DefaultTTL }

func (c *Cache) sweepLoop() {
	for {
		select {
		case <-c.ticker.C:
			c.sweepExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) sweepExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UnixNano()
	for c.exp.Len() > 0 {
		top := c.exp[0]
		cur, ok := c.data[top.key]
		if !ok || cur.expiresAt != top.expiresAt {
			heap.Pop(&c.exp)
			continue
		}
		if top.expiresAt != 0 && top.expiresAt <= now {
			heap.Pop(&c.exp)
			delete(c.data, top.key)
		} else {
			break
		}
	}
}

// evictOldestLocked drops entries oldest-first by creation timestamp once
// the cache is at capacity. Caller must hold c.mu.
func (c *Cache) evictOldestLocked() {
	for len(c.data) >= c.maxSize {
		var oldestKey string
		var oldestAt int64 = -1
		for k, e := range c.data {
			if oldestAt == -1 || e.createdAt < oldestAt {
				oldestAt = e.createdAt
				oldestKey = k
			}
		}
		if oldestKey == "" {
			return
		}
		delete(c.data, oldestKey)
	}
}

// Get returns the value for key, or (nil, false) if absent or expired.
// Expired entries are removed opportunistically.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if e.expiresAt != 0 && e.expiresAt <= time.Now().UnixNano() {
		delete(c.data, key)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true
}

// Exists performs the same expiry check as Get without copying the value.
func (c *Cache) Exists(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Set stores value under key with the given TTL (0 or negative = use the
// default TTL; SetInfinite stores a value with no expiration).
func (c *Cache) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.setWithExpiry(key, value, time.Now().Add(ttl).UnixNano())
}

// SetInfinite stores value with no expiration.
func (c *Cache) SetInfinite(key string, value []byte) {
	c.setWithExpiry(key, value, 0)
}

func (c *Cache) setWithExpiry(key string, value []byte, expiresAt int64) {
	cp := make([]byte, len(value))
	copy(cp, value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[key]; !exists && len(c.data) >= c.maxSize {
		c.evictOldestLocked()
	}

	now := time.Now().UnixNano()
	c.data[key] = &entry{value: cp, createdAt: now, expiresAt: expiresAt}
	heap.Push(&c.exp, &expEntry{key: key, expiresAt: expiresAt})
	c.lastGood[key] = cp
	c.sets.Add(1)
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Clear removes all keys matching a glob pattern (path.Match semantics); an
// empty pattern clears everything.
func (c *Cache) Clear(pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pattern == "" {
		c.data = make(map[string]*entry)
		return
	}
	for k := range c.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(c.data, k)
		}
	}
}

// GetMany retrieves multiple keys at once, omitting absent/expired ones.
func (c *Cache) GetMany(keys []string) map[string][]byte {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := c.Get(k); ok {
			out[k] = v
		}
	}
	return out
}

// SetMany stores multiple key/value pairs under a single TTL.
func (c *Cache) SetMany(values map[string][]byte, ttl time.Duration) {
	for k, v := range values {
		c.Set(k, v, ttl)
	}
}

// Increment atomically adds delta to the integer stored at key (parsed and
// re-serialized as a decimal string) and returns the new value. Absent keys
// start from 0. The entry's TTL is preserved if it already existed.
func (c *Cache) Increment(key string, delta int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var cur int64
	var expiresAt int64
	if e, ok := c.data[key]; ok {
		cur = decodeInt(e.value)
		expiresAt = e.expiresAt
	}
	cur += delta
	v := encodeInt(cur)
	now := time.Now().UnixNano()
	if e, ok := c.data[key]; ok {
		e.value = v
	} else {
		if len(c.data) >= c.maxSize {
			c.evictOldestLocked()
		}
		c.data[key] = &entry{value: v, createdAt: now, expiresAt: expiresAt}
		heap.Push(&c.exp, &expEntry{key: key, expiresAt: expiresAt})
	}
	c.lastGood[key] = v
	return cur
}

func encodeInt(v int64) []byte {
	neg := v < 0
	if neg {
		v = -v
	}
	if v == 0 {
		if neg {
			return []byte("-0")
		}
		return []byte("0")
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return buf[i:]
}

func decodeInt(b []byte) int64 {
	var v int64
	neg := false
	for i, c := range b {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			return 0
		}
		v = v*10 + int64(c-'0')
	}
	if neg {
		v = -v
	}
	return v
}

// GetOrCompute returns the cached value for key, or computes it via factory,
// stores it with ttl, and returns it on a miss.
func (c *Cache) GetOrCompute(key string, ttl time.Duration, factory func() ([]byte, error)) ([]byte, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := factory()
	if err != nil {
		return nil, err
	}
	c.Set(key, v, ttl)
	return v, nil
}

// RetrieveStale bypasses the TTL check and returns the last-known payload
// ever set for key, even if since expired or deleted by eviction — used
// only when a live fetch fails so selection can proceed on degraded data.
func (c *Cache) RetrieveStale(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lastGood[key]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true
}

// Stats reports cumulative hit/miss/set counters.
func (c *Cache) Stats() Stats {
	hits, misses, sets := c.hits.Load(), c.misses.Load(), c.sets.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{Hits: hits, Misses: misses, Sets: sets, HitRate: rate}
}

// Len returns the number of live entries (including ones not yet swept).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Close stops the background sweep goroutine.
func (c *Cache) Close() error {
	c.ticker.Stop()
	close(c.stop)
	return nil
}
