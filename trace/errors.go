package trace

import "github.com/ceyewan/flake/xerrors"

// ErrInvalidConfig 追踪配置非法
var ErrInvalidConfig = xerrors.New("trace: invalid config")

func wrapInvalid(format string, args ...any) error {
	return xerrors.Wrapf(ErrInvalidConfig, format, args...)
}
