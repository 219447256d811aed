package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/buildcore/erp-core/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

// ReportCache stores computed reports in Redis. Every collection has a
// version counter under "<prefix>ver:<collection>"; writes bump it, and
// report keys embed the versions of the collections they read, so a write
// makes older entries unreachable without deleting them. Entries expire
// after the TTL.
type ReportCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewReportCache creates a Redis-backed report cache. Prefix may be empty.
func NewReportCache(client *redis.Client, prefix string, ttl time.Duration) *ReportCache {
	if prefix == "" {
		prefix = "erp:report:"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ReportCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *ReportCache) versionKey(collection string) string {
	return c.prefix + "ver:" + collection
}

// Key builds the cache key for a report over the given collections at their
// current versions.
func (c *ReportCache) Key(ctx context.Context, report string, collections ...string) (string, error) {
	if len(collections) == 0 {
		return c.prefix + report, nil
	}
	keys := make([]string, len(collections))
	for i, col := range collections {
		keys[i] = c.versionKey(col)
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return "", fmt.Errorf("report cache versions: %w", err)
	}
	var b strings.Builder
	b.WriteString(c.prefix)
	b.WriteString(report)
	for i, v := range vals {
		ver, _ := v.(string)
		if ver == "" {
			ver = "0"
		}
		fmt.Fprintf(&b, ":%s@%s", collections[i], ver)
	}
	return b.String(), nil
}

// Get decodes a cached entry into dst. It reports false on a miss.
func (c *ReportCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.ReportCache.WithLabelValues("miss").Inc()
		return false, nil
	}
	if err != nil {
		metrics.ReportCache.WithLabelValues("error").Inc()
		return false, fmt.Errorf("report cache get: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		metrics.ReportCache.WithLabelValues("error").Inc()
		_ = c.client.Del(ctx, key).Err()
		return false, fmt.Errorf("report cache decode: %w", err)
	}
	metrics.ReportCache.WithLabelValues("hit").Inc()
	return true, nil
}

// Set stores v as JSON under key with the cache TTL.
func (c *ReportCache) Set(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("report cache encode: %w", err)
	}
	if err := c.client.Set(ctx, key, b, c.ttl).Err(); err != nil {
		return fmt.Errorf("report cache set: %w", err)
	}
	return nil
}

// Invalidate bumps the version of a collection.
func (c *ReportCache) Invalidate(ctx context.Context, collection string) error {
	if err := c.client.Incr(ctx, c.versionKey(collection)).Err(); err != nil {
		return fmt.Errorf("report cache invalidate %s: %w", collection, err)
	}
	return nil
}
