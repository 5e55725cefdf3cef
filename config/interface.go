// Package config 为 flake 提供统一的配置加载能力，基于 Viper 实现。
//
// 特性：
//   - 多源加载：配置文件（toml/yaml/json）、.env 文件、环境变量
//   - 优先级：环境变量 > .env > 环境特定配置 > 基础配置
//   - 搜索路径按顺序查找，先找到的文件生效
//   - 热更新：基于 fsnotify 监听配置文件，按 key 推送变更事件
//
// 基本使用：
//
//	loader, err := config.Load(ctx, &config.Config{
//		Name:      "snowflake",
//		Paths:     []string{".", "/etc"},
//		FileType:  "toml",
//		EnvPrefix: "SNOWFLAKE",
//	})
//	if err != nil {
//		return err
//	}
//	defer loader.Close()
//
//	bits := loader.Get("sequence_bits")
//
//	ch, _ := loader.Watch(ctx, "sequence_bits")
//	for event := range ch {
//		fmt.Printf("配置变化: %s = %v\n", event.Key, event.Value)
//	}
package config

import (
	"context"
	"time"
)

// Loader 定义配置加载器的核心行为
type Loader interface {
	// Load 加载配置，只应调用一次
	Load(ctx context.Context) error

	// Get 获取原始配置值，不存在时返回 nil
	Get(key string) any

	// IsSet 判断配置文件或环境变量中是否设置了 key
	IsSet(key string) bool

	// Unmarshal 将整个配置反序列化到结构体
	Unmarshal(v any) error

	// UnmarshalKey 将指定 Key 的配置反序列化到结构体
	UnmarshalKey(key string, v any) error

	// Watch 监听 key 的变化，ctx 取消或 Close 后通道关闭
	Watch(ctx context.Context, key string) (<-chan Event, error)

	// Validate 检查必填 key 是否都已设置
	Validate() error

	// ConfigFileUsed 返回实际加载的配置文件路径，未找到时为空
	ConfigFileUsed() string

	// Close 停止文件监听并关闭所有 Watch 通道
	Close() error
}

// Event 配置变更事件
type Event struct {
	Key       string // 配置 key
	Value     any    // 新值
	OldValue  any    // 旧值
	Source    string // "file"
	Timestamp time.Time
}
