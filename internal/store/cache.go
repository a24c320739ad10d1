package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"erp-nlquery/internal/common/logger"
	"erp-nlquery/internal/common/metrics"
	"erp-nlquery/internal/models"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "nlquery:result:"

// CachedExecutor serves repeated plans from Redis. Cache trouble never fails
// a query; it only costs a trip to the database.
type CachedExecutor struct {
	next   Querier
	redis  redis.Cmdable
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedExecutor(next Querier, rdb redis.Cmdable, ttl time.Duration, log logger.Logger) *CachedExecutor {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedExecutor{
		next:   next,
		redis:  rdb,
		ttl:    ttl,
		logger: logger.Component(log, "result-cache"),
	}
}

// CacheKey derives the Redis key for a template and its arguments.
func CacheKey(template string, args []interface{}) (string, error) {
	encodedArgs, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encode args: %w", err)
	}
	sum := sha256.New()
	sum.Write([]byte(template))
	sum.Write([]byte{0})
	sum.Write(encodedArgs)
	return cacheKeyPrefix + hex.EncodeToString(sum.Sum(nil)), nil
}

func (c *CachedExecutor) Execute(ctx context.Context, template string, args []interface{}) (*models.ResultSet, error) {
	key, err := CacheKey(template, args)
	if err != nil {
		c.logger.Warn("cache key unavailable", map[string]interface{}{"error": err})
		return c.next.Execute(ctx, template, args)
	}

	if cached, ok := c.lookup(ctx, key); ok {
		return cached, nil
	}

	result, err := c.next.Execute(ctx, template, args)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(result)
	if err == nil {
		err = c.redis.Set(ctx, key, payload, c.ttl).Err()
	}
	if err != nil {
		c.logger.Warn("failed to cache result", map[string]interface{}{"error": err})
	}
	return result, nil
}

func (c *CachedExecutor) lookup(ctx context.Context, key string) (*models.ResultSet, bool) {
	payload, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	case err != nil:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("cache lookup failed", map[string]interface{}{"error": err})
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var result models.ResultSet
	if err := dec.Decode(&result); err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("discarding undecodable cache entry", map[string]interface{}{"error": err})
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return &result, true
}
