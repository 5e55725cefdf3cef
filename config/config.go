package config

import (
	"context"
	"strings"
	"time"
)

// Config 加载器配置
type Config struct {
	Name         string   // 配置文件名称（不含扩展名），默认 "snowflake"
	Paths        []string // 配置文件搜索路径，默认 [".", "/etc"]
	FileType     string   // 配置文件类型，默认 "toml"
	EnvPrefix    string   // 环境变量前缀，默认 "SNOWFLAKE"
	RequiredKeys []string // Validate 要求必须存在的 key

	// Debounce 文件变更后的合并窗口，默认 100ms
	Debounce time.Duration
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "snowflake"
	}
	if c.Paths == nil {
		c.Paths = []string{".", "/etc"}
	}
	if c.FileType == "" {
		c.FileType = "toml"
	}
	if c.EnvPrefix == "" {
		c.EnvPrefix = "SNOWFLAKE"
	}
	c.EnvPrefix = strings.ToUpper(c.EnvPrefix)
	if c.Debounce <= 0 {
		c.Debounce = 100 * time.Millisecond
	}
}

// New 创建配置加载器，cfg 为 nil 时使用默认配置
func New(cfg *Config, opts ...Option) (Loader, error) {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()
	return newLoader(&c, opts...), nil
}

// Load 创建并加载配置
func Load(ctx context.Context, cfg *Config, opts ...Option) (Loader, error) {
	l, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := l.Load(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// MustLoad 类似 Load，但出错时 panic，仅用于初始化阶段
func MustLoad(cfg *Config, opts ...Option) Loader {
	l, err := Load(context.Background(), cfg, opts...)
	if err != nil {
		panic(err)
	}
	return l
}
