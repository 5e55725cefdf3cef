package idgen

import (
	"net"
	"os"

	"github.com/ceyewan/flake/clog"
	"github.com/ceyewan/flake/metrics"
)

// Option 组件初始化选项函数
type Option func(*Options)

// Options 组件初始化选项配置
type Options struct {
	Logger clog.Logger
	Meter  metrics.Meter
	Clock  Clock

	// Strategies 非空时完全替换默认的 worker id 策略链
	Strategies []Strategy
	// LeaseStrategies 插入在 composite 与 ip 之间的租约策略
	LeaseStrategies []Strategy

	Retry RetryPolicy

	// 主机信息来源，默认取自 os 与 net
	LookupEnv      func(string) (string, bool)
	InterfaceAddrs func() ([]net.Addr, error)
	Hostname       func() (string, error)
}

// WithLogger 设置 Logger
func WithLogger(logger clog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithMeter 设置 Meter
func WithMeter(meter metrics.Meter) Option {
	return func(o *Options) {
		o.Meter = meter
	}
}

// WithClock 替换时钟，测试中配合 testkit.ManualClock 使用
func WithClock(clock Clock) Option {
	return func(o *Options) {
		o.Clock = clock
	}
}

// WithLeaseStrategy 启用基于 Redis / Etcd 的 worker id 租约
//
//	idgen.New(ctx, settings, idgen.WithLeaseStrategy(
//	    idgen.RedisLeaseStrategy(redisConn, idgen.LeaseConfig{}, logger),
//	))
func WithLeaseStrategy(strategies ...Strategy) Option {
	return func(o *Options) {
		o.LeaseStrategies = append(o.LeaseStrategies, strategies...)
	}
}

// WithStrategies 用自定义策略链替换默认链
func WithStrategies(strategies ...Strategy) Option {
	return func(o *Options) {
		o.Strategies = strategies
	}
}

// WithRetryPolicy 设置 NextIDWithRetry 的重试策略
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(o *Options) {
		o.Retry = policy
	}
}

// WithLookupEnv 替换环境变量读取函数
func WithLookupEnv(lookup func(string) (string, bool)) Option {
	return func(o *Options) {
		o.LookupEnv = lookup
	}
}

// WithHostInfo 替换网卡地址与主机名来源
func WithHostInfo(addrs func() ([]net.Addr, error), hostname func() (string, error)) Option {
	return func(o *Options) {
		if addrs != nil {
			o.InterfaceAddrs = addrs
		}
		if hostname != nil {
			o.Hostname = hostname
		}
	}
}

func applyOptions(opts []Option) *Options {
	o := &Options{
		Logger:         clog.Discard(),
		Meter:          metrics.Discard(),
		Clock:          SystemClock(),
		Retry:          DefaultRetryPolicy(),
		LookupEnv:      os.LookupEnv,
		InterfaceAddrs: net.InterfaceAddrs,
		Hostname:       os.Hostname,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.Logger == nil {
		o.Logger = clog.Discard()
	}
	if o.Meter == nil {
		o.Meter = metrics.Discard()
	}
	if o.Clock == nil {
		o.Clock = SystemClock()
	}
	o.Logger = o.Logger.With(clog.String("component", "idgen"))
	return o
}
