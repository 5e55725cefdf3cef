package ratelimit

import (
	"context"

	"github.com/ceyewan/flake/metrics"
)

// Metrics 指标常量定义
const (
	// MetricAllowed 允许通过的请求数 (Counter)
	MetricAllowed = "ratelimit_allowed_total"

	// MetricDenied 被拒绝的请求数 (Counter)
	MetricDenied = "ratelimit_denied_total"

	// MetricErrors 限流器错误数 (Counter)
	MetricErrors = "ratelimit_errors_total"

	// LabelMode 模式标签 (standalone/distributed)
	LabelMode = "mode"
)

const (
	ModeStandalone  = "standalone"
	ModeDistributed = "distributed"
)

type limiterMetrics struct {
	allowed metrics.Counter
	denied  metrics.Counter
	errors  metrics.Counter
	mode    metrics.Label
}

func newLimiterMetrics(meter metrics.Meter, mode string) (*limiterMetrics, error) {
	allowed, err := meter.Counter(MetricAllowed, "允许通过的请求数")
	if err != nil {
		return nil, err
	}
	denied, err := meter.Counter(MetricDenied, "被拒绝的请求数")
	if err != nil {
		return nil, err
	}
	errs, err := meter.Counter(MetricErrors, "限流器错误数")
	if err != nil {
		return nil, err
	}
	return &limiterMetrics{allowed: allowed, denied: denied, errors: errs, mode: metrics.L(LabelMode, mode)}, nil
}

func (m *limiterMetrics) record(ctx context.Context, allowed bool) {
	if allowed {
		m.allowed.Inc(ctx, m.mode)
		return
	}
	m.denied.Inc(ctx, m.mode)
}

func (m *limiterMetrics) failed(ctx context.Context) {
	m.errors.Inc(ctx, m.mode)
}
