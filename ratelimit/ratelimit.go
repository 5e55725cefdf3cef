// Package ratelimit 为 ID 发放接口提供令牌桶限流，支持单机和分布式两种模式。
//
//   - 单机模式：基于 golang.org/x/time/rate，按 key 维护独立令牌桶
//   - 分布式模式：基于 Redis + Lua，多个 flake-server 实例共享配额
//
// 批量发号按个数消耗令牌：
//
//	limiter, _ := ratelimit.NewStandalone(nil, ratelimit.WithLogger(logger))
//	defer limiter.Close()
//
//	allowed, _ := limiter.AllowN(ctx, c.ClientIP(), ratelimit.Limit{Rate: 10000, Burst: 1000}, count)
//	if !allowed {
//	    return "rate limit exceeded"
//	}
package ratelimit

import (
	"context"
	"time"

	"github.com/ceyewan/flake/clog"
	"github.com/ceyewan/flake/connector"
	"github.com/ceyewan/flake/metrics"
	"github.com/ceyewan/flake/xerrors"
)

// Limit 令牌桶规则
type Limit struct {
	Rate  float64 // 每秒生成的令牌数
	Burst int     // 桶容量，也是单次 AllowN 的上限
}

func (l Limit) valid() bool {
	return l.Rate > 0 && l.Burst > 0
}

// Limiter 限流器
type Limiter interface {
	// Allow 尝试获取 1 个令牌，不阻塞
	Allow(ctx context.Context, key string, limit Limit) (bool, error)

	// AllowN 尝试获取 n 个令牌，不阻塞
	AllowN(ctx context.Context, key string, limit Limit, n int) (bool, error)

	// Close 释放资源，可重复调用
	Close() error
}

// StandaloneConfig 单机限流配置
type StandaloneConfig struct {
	// CleanupInterval 清理空闲令牌桶的间隔（默认：1 分钟）
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`

	// IdleTimeout 令牌桶空闲多久后被清理（默认：5 分钟）
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

func (c *StandaloneConfig) setDefaults() {
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Minute
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
}

// DistributedConfig 分布式限流配置
type DistributedConfig struct {
	// Prefix Redis key 前缀（默认："flake:ratelimit:"）
	Prefix string `mapstructure:"prefix"`
}

func (c *DistributedConfig) setDefaults() {
	if c.Prefix == "" {
		c.Prefix = "flake:ratelimit:"
	}
}

// NewStandalone 创建单机限流器，cfg 为 nil 时使用默认值
func NewStandalone(cfg *StandaloneConfig, opts ...Option) (Limiter, error) {
	c := StandaloneConfig{}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()

	o := applyOptions(opts)
	m, err := newLimiterMetrics(o.meter, ModeStandalone)
	if err != nil {
		return nil, err
	}
	return newStandalone(c, o.logger, m), nil
}

// NewDistributed 创建基于 Redis 的分布式限流器
func NewDistributed(redisConn connector.RedisConnector, cfg *DistributedConfig, opts ...Option) (Limiter, error) {
	if redisConn == nil {
		return nil, xerrors.WithCode(ErrConnectorNil, "redis_connector_required")
	}

	c := DistributedConfig{}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()

	o := applyOptions(opts)
	m, err := newLimiterMetrics(o.meter, ModeDistributed)
	if err != nil {
		return nil, err
	}
	return newDistributed(c, redisConn, o.logger, m), nil
}

type options struct {
	logger clog.Logger
	meter  metrics.Meter
}

// Option 组件初始化选项函数
type Option func(*options)

// WithLogger 设置 Logger
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMeter 设置 Meter
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

func applyOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = clog.Discard()
	}
	if o.meter == nil {
		o.meter = metrics.Discard()
	}
	o.logger = o.logger.With(clog.String("component", "ratelimit"))
	return o
}
