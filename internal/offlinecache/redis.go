package offlinecache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisConfig configures the shared cache variant. A non-empty ClusterAddrs
// selects a cluster client, otherwise a single-node client on Addr is used;
// sentinel is not supported.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	ClusterAddrs   []string
	Namespace      string
	DefaultTTL     time.Duration
	DialTimeout    time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PoolSize       int
	InvalidateChan string
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:           "localhost:6379",
		Namespace:      "gatewaymux:bench",
		DefaultTTL:     time.Hour,
		DialTimeout:    5 * time.Second,
		ReadTimeout:    3 * time.Second,
		WriteTimeout:   3 * time.Second,
		PoolSize:       10,
		InvalidateChan: "gatewaymux:cache:invalidate",
	}
}

// SharedCache is the distributed variant: key-prefix namespacing, best-effort
// connectivity (errors are swallowed into misses so adapter fetches can fall
// back to retrieve_stale instead of failing the request), a pub/sub channel
// for invalidation, and SETNX-based advisory locks for stampede prevention.
type SharedCache struct {
	client    goredis.UniversalClient
	namespace string
	ttl       time.Duration
	subChan   string

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

func NewSharedCache(cfg RedisConfig) (*SharedCache, error) {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
	var client goredis.UniversalClient
	if len(cfg.ClusterAddrs) > 0 {
		client = goredis.NewClusterClient(&goredis.ClusterOptions{
			Addrs: cfg.ClusterAddrs, Password: cfg.Password,
			DialTimeout: cfg.DialTimeout, ReadTimeout: cfg.ReadTimeout, WriteTimeout: cfg.WriteTimeout,
			PoolSize: cfg.PoolSize,
		})
	} else {
		client = goredis.NewClient(&goredis.Options{
			Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB,
			DialTimeout: cfg.DialTimeout, ReadTimeout: cfg.ReadTimeout, WriteTimeout: cfg.WriteTimeout,
			PoolSize: cfg.PoolSize,
		})
	}
	return &SharedCache{client: client, namespace: cfg.Namespace, ttl: cfg.DefaultTTL, subChan: cfg.InvalidateChan}, nil
}

func (c *SharedCache) key(k string) string { return fmt.Sprintf("%s:%s", c.namespace, k) }

func (c *SharedCache) Get(ctx context.Context, key string) ([]byte, bool) {
	v, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return v, true
}

func (c *SharedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return err
	}
	c.sets.Add(1)
	return nil
}

func (c *SharedCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

// Clear removes every key matching pattern under this cache's namespace.
// An empty pattern clears the whole namespace.
func (c *SharedCache) Clear(ctx context.Context, pattern string) error {
	if pattern == "" {
		pattern = "*"
	}
	full := c.key(pattern)
	iter := c.client.Scan(ctx, 0, full, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Increment atomically adds delta to the counter at key.
func (c *SharedCache) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	return c.client.IncrBy(ctx, c.key(key), delta).Result()
}

// PublishInvalidation notifies other processes sharing this cache that key
// changed, so their local (in-process) tier can drop its copy.
func (c *SharedCache) PublishInvalidation(ctx context.Context, key string) error {
	return c.client.Publish(ctx, c.subChan, key).Err()
}

// Subscribe returns a channel of invalidated keys published by other
// processes. Callers should range over it in a goroutine until ctx is done.
func (c *SharedCache) Subscribe(ctx context.Context) <-chan string {
	sub := c.client.Subscribe(ctx, c.subChan)
	out := make(chan string)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				out <- msg.Payload
			}
		}
	}()
	return out
}

// AcquireLock takes an advisory, TTL-bounded lock to prevent cache-stampede
// recomputation of the same key across processes. It returns false without
// error when another holder already has the lock.
func (c *SharedCache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, c.key("lock:"+key), "1", ttl).Result()
}

func (c *SharedCache) ReleaseLock(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key("lock:"+key)).Err()
}

func (c *SharedCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *SharedCache) Close() error {
	return c.client.Close()
}

func (c *SharedCache) Stats() Stats {
	hits, misses, sets := c.hits.Load(), c.misses.Load(), c.sets.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{Hits: hits, Misses: misses, Sets: sets, HitRate: rate}
}
