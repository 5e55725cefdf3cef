package allocator

import "github.com/ceyewan/flake/xerrors"

var (
	// ErrSkip 来源不存在
	ErrSkip = xerrors.New("idgen: strategy has no source")

	// ErrInvalidConfig 参数非法，不降级
	ErrInvalidConfig = xerrors.New("idgen: invalid config")

	// ErrResolution 查询失败，可降级到下一个来源
	ErrResolution = xerrors.New("idgen: worker id resolution failed")

	// ErrWorkerIDExhausted 租约空间已满
	ErrWorkerIDExhausted = xerrors.New("idgen: no worker id available")

	// ErrLeaseExpired 租约续期失败
	ErrLeaseExpired = xerrors.New("idgen: worker id lease expired")
)

func invalid(code, format string, args ...any) error {
	return xerrors.WithCode(xerrors.Wrapf(ErrInvalidConfig, format, args...), code)
}
