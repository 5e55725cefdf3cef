package config

import "github.com/ceyewan/flake/xerrors"

var (
	// ErrValidationFailed 必填配置缺失
	ErrValidationFailed = xerrors.New("config: validation failed")
	// ErrClosed 加载器已关闭
	ErrClosed = xerrors.New("config: loader closed")
)

// IsValidationError 判断错误是否为配置校验失败
func IsValidationError(err error) bool {
	return xerrors.Is(err, ErrValidationFailed)
}
