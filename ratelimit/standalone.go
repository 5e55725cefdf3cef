package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ceyewan/flake/clog"
)

// bucket 包装 rate.Limiter 并记录最后访问时间
type bucket struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // UnixNano
}

type standaloneLimiter struct {
	cfg       StandaloneConfig
	logger    clog.Logger
	metrics   *limiterMetrics
	buckets   sync.Map // map[string]*bucket
	stopCh    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

func newStandalone(cfg StandaloneConfig, logger clog.Logger, m *limiterMetrics) *standaloneLimiter {
	l := &standaloneLimiter{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.cleanup()

	logger.Info("standalone rate limiter created",
		clog.Duration("cleanup_interval", cfg.CleanupInterval),
		clog.Duration("idle_timeout", cfg.IdleTimeout))
	return l
}

func (l *standaloneLimiter) Allow(ctx context.Context, key string, limit Limit) (bool, error) {
	return l.AllowN(ctx, key, limit, 1)
}

func (l *standaloneLimiter) AllowN(ctx context.Context, key string, limit Limit, n int) (bool, error) {
	if l.closed.Load() {
		return false, ErrClosed
	}
	if err := checkRequest(key, limit, n); err != nil {
		return false, err
	}

	now := time.Now()
	b := l.bucket(key, limit)
	allowed := b.limiter.AllowN(now, n)
	b.lastSeen.Store(now.UnixNano())

	l.metrics.record(ctx, allowed)
	l.logger.Debug("rate limit check",
		clog.String("key", key),
		clog.Bool("allowed", allowed),
		clog.Int("requested", n))
	return allowed, nil
}

// bucket 同一 key 的不同规则使用独立的令牌桶
func (l *standaloneLimiter) bucket(key string, limit Limit) *bucket {
	cacheKey := fmt.Sprintf("%s:%v:%d", key, limit.Rate, limit.Burst)
	if v, ok := l.buckets.Load(cacheKey); ok {
		return v.(*bucket)
	}
	b := &bucket{limiter: rate.NewLimiter(rate.Limit(limit.Rate), limit.Burst)}
	b.lastSeen.Store(time.Now().UnixNano())
	actual, _ := l.buckets.LoadOrStore(cacheKey, b)
	return actual.(*bucket)
}

func (l *standaloneLimiter) cleanup() {
	defer close(l.done)

	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := l.evictIdle(time.Now()); n > 0 {
				l.logger.Debug("cleaned up idle buckets", clog.Int("count", n))
			}
		case <-l.stopCh:
			return
		}
	}
}

func (l *standaloneLimiter) evictIdle(now time.Time) int {
	count := 0
	l.buckets.Range(func(key, value any) bool {
		idle := now.Sub(time.Unix(0, value.(*bucket).lastSeen.Load()))
		if idle > l.cfg.IdleTimeout {
			l.buckets.Delete(key)
			count++
		}
		return true
	})
	return count
}

func (l *standaloneLimiter) Close() error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.stopCh)
		<-l.done
	})
	return nil
}
