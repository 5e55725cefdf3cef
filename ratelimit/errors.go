package ratelimit

import "github.com/ceyewan/flake/xerrors"

var (
	// ErrConnectorNil 连接器为空
	ErrConnectorNil = xerrors.New("ratelimit: connector is nil")

	// ErrKeyEmpty 限流键为空
	ErrKeyEmpty = xerrors.New("ratelimit: key is empty")

	// ErrInvalidLimit 限流规则或请求令牌数无效
	ErrInvalidLimit = xerrors.New("ratelimit: invalid limit")

	// ErrClosed 限流器已关闭
	ErrClosed = xerrors.New("ratelimit: limiter closed")
)

func checkRequest(key string, limit Limit, n int) error {
	if key == "" {
		return ErrKeyEmpty
	}
	if !limit.valid() {
		return xerrors.Wrapf(ErrInvalidLimit, "rate=%v burst=%d", limit.Rate, limit.Burst)
	}
	if n <= 0 {
		return xerrors.Wrapf(ErrInvalidLimit, "n=%d must be positive", n)
	}
	return nil
}
