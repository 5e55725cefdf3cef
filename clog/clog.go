// Package clog 为 flake 提供基于 slog 的结构化日志组件。
//
// 特性：
//   - 抽象 Logger 接口，不向调用方暴露 slog
//   - 层级命名空间，便于区分 idgen / server / stress 等来源
//   - 函数式选项：命名空间、Context 字段提取
//   - 支持 json 与 console 两种格式，以及运行时调整级别
//
// 基本使用：
//
//	logger, _ := clog.New(&clog.Config{Level: "info", Format: "json"})
//	logger.Info("worker id resolved", clog.Int64("worker_id", 69))
//
// 组件内部约定派生子 Logger：
//
//	logger = logger.With(clog.String("component", "idgen"))
package clog

import "fmt"

// New 创建一个新的 Logger 实例
//
// config 为 nil 时使用开发环境默认配置。
func New(config *Config, opts ...Option) (Logger, error) {
	if config == nil {
		config = NewDevDefaultConfig("flake")
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return newLogger(config, applyOptions(opts...))
}

// Default 返回输出到 stderr 的 info 级别 console Logger，创建失败时退化为 Discard。
func Default() Logger {
	logger, err := New(&Config{Level: "info", Format: "console", Output: "stderr"})
	if err != nil {
		return Discard()
	}
	return logger
}
