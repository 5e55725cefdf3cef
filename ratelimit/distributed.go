package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/flake/clog"
	"github.com/ceyewan/flake/connector"
	"github.com/ceyewan/flake/xerrors"
)

// 基于时间戳的令牌桶（GCRA）
// KEYS[1] 桶 key；ARGV: rate, burst, now(秒), requested
// 返回 {allowed, remaining}
var tokenBucketScript = redis.NewScript(`
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local interval = 1 / rate
local fill_time = capacity * interval

local tat = tonumber(redis.call("GET", KEYS[1]))
if tat == nil then
  tat = now
end

local next_tat = math.max(tat, now) + requested * interval
local allow_at_most = now + fill_time

if next_tat <= allow_at_most then
  redis.call("SET", KEYS[1], tostring(next_tat), "EX", math.ceil(fill_time * 2))
  return {1, math.floor((allow_at_most - next_tat) / interval)}
end
return {0, math.floor((allow_at_most - math.max(tat, now)) / interval)}
`)

type distributedLimiter struct {
	conn    connector.RedisConnector
	prefix  string
	logger  clog.Logger
	metrics *limiterMetrics
}

func newDistributed(cfg DistributedConfig, conn connector.RedisConnector, logger clog.Logger, m *limiterMetrics) *distributedLimiter {
	logger.Info("distributed rate limiter created", clog.String("prefix", cfg.Prefix))
	return &distributedLimiter{conn: conn, prefix: cfg.Prefix, logger: logger, metrics: m}
}

func (l *distributedLimiter) Allow(ctx context.Context, key string, limit Limit) (bool, error) {
	return l.AllowN(ctx, key, limit, 1)
}

func (l *distributedLimiter) AllowN(ctx context.Context, key string, limit Limit, n int) (bool, error) {
	if err := checkRequest(key, limit, n); err != nil {
		return false, err
	}

	now := float64(time.Now().UnixNano()) / 1e9
	res, err := tokenBucketScript.Run(ctx, l.conn.GetClient(), []string{l.prefix + key},
		limit.Rate, limit.Burst, now, n).Int64Slice()
	if err != nil {
		l.metrics.failed(ctx)
		l.logger.Error("rate limit script failed", clog.String("key", key), clog.Error(err))
		return false, xerrors.Wrap(err, "ratelimit: run token bucket script")
	}
	if len(res) != 2 {
		l.metrics.failed(ctx)
		return false, fmt.Errorf("ratelimit: unexpected script result %v", res)
	}

	allowed := res[0] == 1
	l.metrics.record(ctx, allowed)
	l.logger.Debug("rate limit check",
		clog.String("key", key),
		clog.Bool("allowed", allowed),
		clog.Int64("remaining", res[1]),
		clog.Int("requested", n))
	return allowed, nil
}

// Close 连接由 Connector 的所有者关闭
func (l *distributedLimiter) Close() error {
	return nil
}
