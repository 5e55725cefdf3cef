// Package testkit 为 flake 各组件的测试提供公共依赖：
// 日志、指标、可控时钟，以及基于 miniredis / testcontainers 的连接器。
package testkit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ceyewan/flake/clog"
	"github.com/ceyewan/flake/metrics"
)

// Kit 包含通用的测试依赖
type Kit struct {
	Ctx    context.Context
	Logger clog.Logger
	Meter  metrics.Meter
	Clock  *ManualClock
}

// NewKit 返回一个包含默认依赖的测试工具包，时钟从 start 开始
func NewKit(t *testing.T, start time.Time) *Kit {
	t.Helper()
	meter := NewMeter()
	t.Cleanup(func() { _ = meter.Shutdown(context.Background()) })
	return &Kit{
		Ctx:    t.Context(),
		Logger: NewLogger(),
		Meter:  meter,
		Clock:  NewManualClock(start),
	}
}

// NewLogger 返回一个用于测试的 logger
// 只输出 Warn 及以上，避免淹没测试输出
func NewLogger() clog.Logger {
	cfg := clog.NewDevDefaultConfig("flake-test")
	cfg.Level = "warn"
	logger, err := clog.New(cfg)
	if err != nil {
		return clog.Discard()
	}
	return logger
}

// NewMeter 返回一个用于测试的 meter，使用独立的 Prometheus 注册表
func NewMeter() metrics.Meter {
	meter, err := metrics.New(metrics.NewDevDefaultConfig("flake-test"))
	if err != nil {
		return metrics.Discard()
	}
	return meter
}

// NewContext 返回一个带有超时的测试上下文
func NewContext(t *testing.T, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(t.Context(), timeout)
}

// NewID 返回一个唯一的测试 ID (UUID v4 前 8 位)
// 用于生成唯一的 key 前缀，避免测试间数据冲突
func NewID() string {
	return uuid.New().String()[0:8]
}
