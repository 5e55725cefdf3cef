package idgen

import (
	"context"
	"time"

	"github.com/avast/retry-go/v5"

	"github.com/ceyewan/flake/clog"
)

// RetryPolicy NextIDWithRetry 的重试预算
type RetryPolicy struct {
	// Attempts 总尝试次数，包含首次
	Attempts uint
	// Delay 两次尝试之间的固定间隔
	Delay time.Duration
}

// DefaultRetryPolicy 5 次尝试，间隔 10ms
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 5, Delay: 10 * time.Millisecond}
}

// NextIDWithRetry 遇到 ErrClockBackward 时按重试策略重试，其余错误立即返回
func (g *Generator) NextIDWithRetry(ctx context.Context) (uint64, error) {
	p := g.retry
	if p.Attempts == 0 {
		p.Attempts = 1
	}
	return retry.NewWithData[uint64](
		retry.Context(ctx),
		retry.Attempts(p.Attempts),
		retry.Delay(p.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(IsClockBackward),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			g.logger.Debug("retrying after clock backward", clog.Int("attempt", int(n)+1), clog.Error(err))
		}),
	).Do(g.NextID)
}
