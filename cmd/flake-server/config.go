package main

import (
	"time"

	"github.com/ceyewan/flake/clog"
	"github.com/ceyewan/flake/connector"
	"github.com/ceyewan/flake/metrics"
	"github.com/ceyewan/flake/ratelimit"
	"github.com/ceyewan/flake/trace"
)

// AppConfig flake-server 的配置，与 snowflake.toml 中的同名小节对应
//
//	[server]
//	addr = ":8080"
//	shutdown_timeout = "5s"
//
//	[server.batch]
//	max_count = 1000
//	rate = 10000
//	burst = 2000
//
//	[redis]          # 可选，设置后启用 Redis 租约与分布式限流
//	addr = "127.0.0.1:6379"
//
//	[etcd]           # 可选，设置后启用 Etcd 租约
//	endpoints = ["127.0.0.1:2379"]
//
//	[trace]          # 默认不导出
//	enabled = true
//	endpoint = "127.0.0.1:4317"
type AppConfig struct {
	Server  ServerConfig               `mapstructure:"server"`
	Log     clog.Config                `mapstructure:"log"`
	Metrics metrics.Config             `mapstructure:"metrics"`
	Redis   *connector.RedisConfig     `mapstructure:"redis"`
	Etcd    *connector.EtcdConfig      `mapstructure:"etcd"`
	Lease   LeaseConfig                `mapstructure:"lease"`
	Limiter ratelimit.StandaloneConfig `mapstructure:"limiter"`
	Trace   trace.Config               `mapstructure:"trace"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Batch           BatchConfig   `mapstructure:"batch"`
}

// BatchConfig 批量发号接口的上限与配额（按 ID 个数计）
type BatchConfig struct {
	MaxCount int     `mapstructure:"max_count"`
	Rate     float64 `mapstructure:"rate"`
	Burst    int     `mapstructure:"burst"`
}

// LeaseConfig worker id 租约参数
type LeaseConfig struct {
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
			Batch: BatchConfig{
				MaxCount: 1000,
				Rate:     10000,
				Burst:    2000,
			},
		},
		Log: clog.Config{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: metrics.Config{
			Enabled:     true,
			ServiceName: "flake-server",
			Path:        "/metrics",
		},
		Trace: *trace.DefaultConfig("flake-server"),
	}
}

func (c BatchConfig) limit() ratelimit.Limit {
	burst := c.Burst
	if burst < c.MaxCount {
		burst = c.MaxCount
	}
	return ratelimit.Limit{Rate: c.Rate, Burst: burst}
}
