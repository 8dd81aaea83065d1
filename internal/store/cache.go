package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ParthMishra20/pokedex/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache fronts hot read views (catalog, listings, per-owner collections) and
// carries the ledger's pub/sub fan-out. Redis when reachable; otherwise an
// in-process map plus an in-memory pubsub hub so dev setups need no
// infrastructure.
type Cache struct {
	client    *redis.Client
	mem       *memCache
	pubsubHub *PubSubHub

	// viewMu serializes view writes against invalidation; viewVersion is
	// bumped on every invalidation so a recompute that started before a
	// ledger mutation cannot re-park its stale result afterwards.
	viewMu      sync.Mutex
	viewVersion uint64

	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

func NewCache(addr string, logger *zap.SugaredLogger, metrics *metrics.Metrics) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     "",
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		if logger != nil {
			logger.Warnw("Redis unavailable; using in-memory cache with in-process pubsub", "error", err)
		}
		return &Cache{
			mem:       newMemCache(),
			pubsubHub: NewPubSubHub(),
			logger:    logger,
			metrics:   metrics,
		}, nil
	}

	return &Cache{
		client:  client,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Cache key prefixes
const (
	KeyCatalog     = "pdx:catalog:species"
	KeyUnsoldItems = "pdx:market:unsold"
	KeyOwnerAssets = "pdx:owner:assets"
	KeyOwnerItems  = "pdx:owner:items"
	KeySellerItems = "pdx:seller:items"
)

var ErrCacheMiss = fmt.Errorf("cache miss")

func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	var data []byte

	if c.client != nil {
		val, err := c.client.Get(ctx, key).Result()
		if err != nil {
			if err == redis.Nil {
				if c.metrics != nil {
					c.metrics.RecordCacheMiss(ctx, key)
				}
				return ErrCacheMiss
			}
			if c.logger != nil {
				c.logger.Errorw("Cache get error", "key", key, "error", err)
			}
			return fmt.Errorf("cache get error: %w", err)
		}
		data = []byte(val)
	} else {
		val, ok := c.mem.get(key)
		if !ok {
			if c.metrics != nil {
				c.metrics.RecordCacheMiss(ctx, key)
			}
			return ErrCacheMiss
		}
		data = val
	}

	if c.metrics != nil {
		c.metrics.RecordCacheHit(ctx, key)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}
	return nil
}

func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	if c.client != nil {
		if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
			if c.logger != nil {
				c.logger.Errorw("Cache set error", "key", key, "error", err)
			}
			return fmt.Errorf("cache set error: %w", err)
		}
		return nil
	}
	c.mem.set(key, data, ttl)
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if c.client != nil {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			if c.logger != nil {
				c.logger.Errorw("Cache delete error", "keys", keys, "error", err)
			}
			return fmt.Errorf("cache delete error: %w", err)
		}
		return nil
	}
	c.mem.del(keys...)
	return nil
}

// Specialized cache methods

func (c *Cache) GetCatalog(ctx context.Context, dest interface{}) error {
	return c.Get(ctx, KeyCatalog, dest)
}

func (c *Cache) SetCatalog(ctx context.Context, value interface{}) error {
	// The catalog is static for the life of the process.
	return c.Set(ctx, KeyCatalog, value, time.Hour)
}

func (c *Cache) GetUnsoldItems(ctx context.Context, dest interface{}) error {
	return c.Get(ctx, KeyUnsoldItems, dest)
}

// SetUnsoldItems writes the unsold view computed against the given version;
// the write is silently discarded if an invalidation happened since.
func (c *Cache) SetUnsoldItems(ctx context.Context, value interface{}, version uint64) error {
	return c.setViewIfCurrent(ctx, KeyUnsoldItems, value, 2*time.Second, version)
}

func (c *Cache) GetOwnerAssets(ctx context.Context, owner string, dest interface{}) error {
	return c.Get(ctx, fmt.Sprintf("%s:%s", KeyOwnerAssets, owner), dest)
}

func (c *Cache) SetOwnerAssets(ctx context.Context, owner string, value interface{}, version uint64) error {
	return c.setViewIfCurrent(ctx, fmt.Sprintf("%s:%s", KeyOwnerAssets, owner), value, 2*time.Second, version)
}

// ViewVersion returns the token a caller must capture before recomputing a
// view and hand back to the Set call.
func (c *Cache) ViewVersion() uint64 {
	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	return c.viewVersion
}

func (c *Cache) setViewIfCurrent(ctx context.Context, key string, value interface{}, ttl time.Duration, version uint64) error {
	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	if c.viewVersion != version {
		return nil
	}
	return c.Set(ctx, key, value, ttl)
}

// InvalidateViews drops every derived view touched by a ledger mutation and
// fences out in-flight recomputes that read pre-mutation state.
func (c *Cache) InvalidateViews(ctx context.Context, identities ...string) {
	keys := []string{KeyUnsoldItems}
	for _, id := range identities {
		keys = append(keys,
			fmt.Sprintf("%s:%s", KeyOwnerAssets, id),
			fmt.Sprintf("%s:%s", KeyOwnerItems, id),
			fmt.Sprintf("%s:%s", KeySellerItems, id),
		)
	}
	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	c.viewVersion++
	if err := c.Delete(ctx, keys...); err != nil && c.logger != nil {
		c.logger.Warnw("View invalidation failed", "keys", keys, "error", err)
	}
}

// Pub/Sub

func (c *Cache) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("pubsub marshal error: %w", err)
	}

	if c.client != nil {
		if err := c.client.Publish(ctx, channel, data).Err(); err != nil {
			if c.logger != nil {
				c.logger.Errorw("Publish error", "channel", channel, "error", err)
			}
			return fmt.Errorf("pubsub publish error: %w", err)
		}
		return nil
	}

	if c.pubsubHub != nil {
		c.pubsubHub.Publish(channel, string(data))
	}
	return nil
}

func (c *Cache) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	if c.client != nil {
		return c.client.Subscribe(ctx, channels...)
	}
	return nil
}

// SubscribeInMemory subscribes through the in-process hub when Redis is down.
func (c *Cache) SubscribeInMemory(ctx context.Context, channels ...string) *MemPubSub {
	if c.pubsubHub != nil {
		return c.pubsubHub.Subscribe(ctx, channels...)
	}
	return nil
}

func (c *Cache) IsInMemoryMode() bool {
	return c.client == nil
}

func (c *Cache) Ping(ctx context.Context) error {
	if c.client != nil {
		return c.client.Ping(ctx).Err()
	}
	return nil
}

func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// memCache is the fallback byte store with per-key expiry.
type memCache struct {
	mu      sync.RWMutex
	entries map[string]memEntry
}

type memEntry struct {
	data      []byte
	expiresAt time.Time
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]memEntry)}
}

func (m *memCache) get(key string) ([]byte, bool) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false
	}
	return entry.data, true
}

func (m *memCache) set(key string, data []byte, ttl time.Duration) {
	entry := memEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
}

func (m *memCache) del(keys ...string) {
	m.mu.Lock()
	for _, key := range keys {
		delete(m.entries, key)
	}
	m.mu.Unlock()
}
