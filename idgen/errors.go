package idgen

import (
	"github.com/ceyewan/flake/internal/idgen/allocator"
	"github.com/ceyewan/flake/xerrors"
)

var (
	// ErrClockBackward 时钟回拨超过容忍范围，调用方可稍后重试
	ErrClockBackward = xerrors.New("idgen: clock moved backwards")

	// ErrTimestampOverflow 41 位时间戳已用尽
	ErrTimestampOverflow = xerrors.New("idgen: timestamp overflows 41 bits")

	// ErrInvalidConfig 位宽、worker id 或配置项非法
	ErrInvalidConfig = allocator.ErrInvalidConfig

	// ErrResolution 所有 worker id 来源均失败
	ErrResolution = allocator.ErrResolution

	// ErrSkip 策略没有可用来源，自定义 Strategy 返回它表示跳过
	ErrSkip = allocator.ErrSkip

	// ErrWorkerIDExhausted 租约空间已满
	ErrWorkerIDExhausted = allocator.ErrWorkerIDExhausted

	// ErrLeaseExpired worker id 租约丢失，生成器停止发号
	ErrLeaseExpired = allocator.ErrLeaseExpired
)

// IsClockBackward 判断是否为可重试的时钟回拨错误
func IsClockBackward(err error) bool {
	return xerrors.Is(err, ErrClockBackward)
}

// IsConfigError 判断是否为需要人工介入的配置错误
func IsConfigError(err error) bool {
	return xerrors.Is(err, ErrInvalidConfig)
}

func invalidConfig(code, format string, args ...any) error {
	return xerrors.WithCode(xerrors.Wrapf(ErrInvalidConfig, format, args...), code)
}
