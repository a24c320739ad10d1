// Package ratelimit enforces per-user request quotas over a minute and an
// hour window.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"erp-nlquery/internal/common/config"
	"erp-nlquery/internal/common/logger"
)

// ErrBackendUnavailable accompanies an allowed result when the counter store
// failed. Requests are let through in that case.
var ErrBackendUnavailable = errors.New("RATE_LIMIT_BACKEND_UNAVAILABLE")

const keyPrefix = "nlquery:ratelimit:"

type Limiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
}

// New returns a Redis limiter when a client is given, otherwise an
// in-process one.
func New(rdb redis.Cmdable, cfg config.RateLimitConfig, log logger.Logger) Limiter {
	if rdb != nil {
		return NewRedisLimiter(rdb, cfg, log)
	}
	return NewLocalLimiter(cfg, log)
}

type window struct {
	name   string
	limit  int
	length time.Duration
}

func windows(cfg config.RateLimitConfig) []window {
	return []window{
		{name: "m", limit: cfg.PerMinute, length: time.Minute},
		{name: "h", limit: cfg.PerHour, length: time.Hour},
	}
}

// RedisLimiter keeps fixed-window counters in Redis so every replica shares
// the same quota.
type RedisLimiter struct {
	rdb     redis.Cmdable
	windows []window
	now     func() time.Time
	logger  logger.Logger
}

func NewRedisLimiter(rdb redis.Cmdable, cfg config.RateLimitConfig, log logger.Logger) *RedisLimiter {
	return &RedisLimiter{
		rdb:     rdb,
		windows: windows(cfg),
		now:     time.Now,
		logger:  logger.Component(log, "ratelimit-redis"),
	}
}

// WindowKey names the counter for userID in the window containing now.
func WindowKey(userID, name string, length time.Duration, now time.Time) string {
	bucket := now.Unix() / int64(length/time.Second)
	return fmt.Sprintf("%s%s:%s:%d", keyPrefix, userID, name, bucket)
}

func (l *RedisLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	now := l.now()
	for _, w := range l.windows {
		if w.limit <= 0 {
			continue
		}
		key := WindowKey(userID, w.name, w.length, now)

		count, err := l.rdb.Incr(ctx, key).Result()
		if err != nil {
			l.logger.Warn("rate limit check failed, allowing request", map[string]interface{}{
				"error":  err,
				"userId": userID,
			})
			return true, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		if count == 1 {
			if err := l.rdb.Expire(ctx, key, w.length).Err(); err != nil {
				l.logger.Warn("failed to set rate limit window expiry", map[string]interface{}{
					"error": err,
					"key":   key,
				})
			}
		}
		if count > int64(w.limit) {
			l.logger.Info("rate limit exceeded", map[string]interface{}{
				"userId": userID,
				"window": w.name,
				"count":  count,
			})
			return false, nil
		}
	}
	return true, nil
}

type userLimiters struct {
	perWindow []*rate.Limiter
}

// LocalLimiter holds token buckets per user in an expiring LRU. Quotas are
// per process.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *userLimiters]
	windows  []window
	now      func() time.Time
	logger   logger.Logger
}

func NewLocalLimiter(cfg config.RateLimitConfig, log logger.Logger) *LocalLimiter {
	return &LocalLimiter{
		limiters: expirable.NewLRU[string, *userLimiters](
			1000,
			nil,
			time.Hour,
		),
		windows: windows(cfg),
		now:     time.Now,
		logger:  logger.Component(log, "ratelimit-local"),
	}
}

func (l *LocalLimiter) Allow(_ context.Context, userID string) (bool, error) {
	ul := l.limitersFor(userID)

	now := l.now()
	for i, w := range l.windows {
		lim := ul.perWindow[i]
		if lim == nil {
			continue
		}
		if !lim.AllowN(now, 1) {
			l.logger.Info("rate limit exceeded", map[string]interface{}{
				"userId": userID,
				"window": w.name,
			})
			return false, nil
		}
	}
	return true, nil
}

// limitersFor returns the user's buckets, creating them at most once.
func (l *LocalLimiter) limitersFor(userID string) *userLimiters {
	l.mu.Lock()
	defer l.mu.Unlock()
	ul, ok := l.limiters.Get(userID)
	if !ok {
		ul = l.newUserLimiters()
		l.limiters.Add(userID, ul)
	}
	return ul
}

func (l *LocalLimiter) newUserLimiters() *userLimiters {
	ul := &userLimiters{perWindow: make([]*rate.Limiter, len(l.windows))}
	for i, w := range l.windows {
		if w.limit <= 0 {
			continue
		}
		ul.perWindow[i] = rate.NewLimiter(rate.Every(w.length/time.Duration(w.limit)), w.limit)
	}
	return ul
}
