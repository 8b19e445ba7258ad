package exercise

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"exbuddy/internal/common/metrics"
	"exbuddy/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	directoryKey    = "exercise:directory"
	searchKeyPrefix = "exercise:search:"
)

// Cache is a Redis cache-aside for public exercise results.
type Cache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{redis: client, ttl: ttl}
}

// SearchKey is case-insensitive in the query.
func SearchKey(query string) string {
	return searchKeyPrefix + strings.ToLower(strings.TrimSpace(query))
}

// Directory returns (nil, false, nil) on a miss.
func (c *Cache) Directory(ctx context.Context) ([]models.Exercise, bool, error) {
	return c.get(ctx, "directory", directoryKey)
}

func (c *Cache) SetDirectory(ctx context.Context, entries []models.Exercise) error {
	return c.set(ctx, directoryKey, entries)
}

func (c *Cache) Search(ctx context.Context, query string) ([]models.Exercise, bool, error) {
	return c.get(ctx, "search", SearchKey(query))
}

func (c *Cache) SetSearch(ctx context.Context, query string, entries []models.Exercise) error {
	return c.set(ctx, SearchKey(query), entries)
}

func (c *Cache) get(ctx context.Context, kind, key string) ([]models.Exercise, bool, error) {
	val, err := c.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		metrics.SearchCacheLookups.WithLabelValues(kind, "miss").Inc()
		return nil, false, nil
	}
	if err != nil {
		metrics.SearchCacheLookups.WithLabelValues(kind, "error").Inc()
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}

	var out []models.Exercise
	if err := json.Unmarshal([]byte(val), &out); err != nil {
		metrics.SearchCacheLookups.WithLabelValues(kind, "error").Inc()
		return nil, false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	metrics.SearchCacheLookups.WithLabelValues(kind, "hit").Inc()
	return out, true, nil
}

func (c *Cache) set(ctx context.Context, key string, entries []models.Exercise) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Flush drops every cached exercise result and returns how many keys went.
func (c *Cache) Flush(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, "exercise:*", 100).Result()
		if err != nil {
			return removed, fmt.Errorf("cache scan: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.redis.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("cache delete: %w", err)
			}
			removed += int(n)
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}
