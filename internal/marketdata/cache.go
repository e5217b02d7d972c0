package marketdata

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "equity-scanner/internal/errors"
	"equity-scanner/internal/models"
)

// Cache stores bar series by key. Get returns an error wrapping ErrCacheMiss
// when the key is absent or expired.
type Cache interface {
	Get(ctx context.Context, key string) ([]models.Candle, error)
	Set(ctx context.Context, key string, candles []models.Candle) error
}

// CacheKey builds the cache key for a symbol's series on a given day.
// Keys roll over daily so a cached series never outlives its trading day.
func CacheKey(symbol string, lookbackDays int, day time.Time) string {
	return fmt.Sprintf("ohlcv:%s:%d:%s", models.NormalizeSymbol(symbol), lookbackDays, day.Format("2006-01-02"))
}

type memoryEntry struct {
	key       string
	candles   []models.Candle
	expiresAt time.Time
}

// MemoryCache is a size-bounded in-process cache with per-entry TTL.
// The least recently used entry is evicted when the cache is full.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	order   *list.List
	items   map[string]*list.Element
	now     func() time.Time
}

// NewMemoryCache creates a memory cache. A maxSize of 0 means unbounded.
func NewMemoryCache(ttl time.Duration, maxSize int) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		maxSize: maxSize,
		order:   list.New(),
		items:   make(map[string]*list.Element),
		now:     time.Now,
	}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) ([]models.Candle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, apperrors.ErrCacheMiss
	}
	entry := el.Value.(*memoryEntry)
	if c.ttl > 0 && c.now().After(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.items, key)
		return nil, apperrors.ErrCacheMiss
	}
	c.order.MoveToFront(el)

	out := make([]models.Candle, len(entry.candles))
	copy(out, entry.candles)
	return out, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key string, candles []models.Candle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]models.Candle, len(candles))
	copy(stored, candles)
	entry := &memoryEntry{key: key, candles: stored, expiresAt: c.now().Add(c.ttl)}

	if el, ok := c.items[key]; ok {
		el.Value = entry
		c.order.MoveToFront(el)
		return nil
	}
	c.items[key] = c.order.PushFront(entry)

	for c.maxSize > 0 && c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*memoryEntry).key)
	}
	return nil
}

// Len returns the number of cached entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// RedisConfig configures the Redis cache backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// RedisCache stores bar series as JSON in Redis with a TTL.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisCacheWithClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "equity-scanner"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) wrapKey(key string) string {
	return c.prefix + ":" + key
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) ([]models.Candle, error) {
	data, err := c.client.Get(ctx, c.wrapKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var candles []models.Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return nil, fmt.Errorf("redis decode %s: %w", key, err)
	}
	return candles, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, candles []models.Candle) error {
	data, err := json.Marshal(candles)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.wrapKey(key), data, c.ttl).Err()
}

// Ping checks the Redis connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
