package metrics

import (
	"strings"

	"github.com/ceyewan/flake/xerrors"
)

// Config 指标配置
//
//	[metrics]
//	enabled = true
//	service_name = "flake"
//	version = "v0.1.0"
//	port = 9090        # 大于 0 时启动独立的抓取服务
//	path = "/metrics"
type Config struct {
	// Enabled 为 false 时 New 返回 noop Meter
	Enabled bool `mapstructure:"enabled"`
	// ServiceName 写入 OTel Resource 的 service.name
	ServiceName string `mapstructure:"service_name"`
	Version     string `mapstructure:"version"`
	Port        int    `mapstructure:"port"`
	Path        string `mapstructure:"path"`
}

// NewDevDefaultConfig 开发环境默认配置：启用，不单独监听端口
func NewDevDefaultConfig(serviceName string) *Config {
	return &Config{
		Enabled:     true,
		ServiceName: serviceName,
		Version:     "dev",
		Path:        "/metrics",
	}
}

func (c *Config) setDefaults() {
	if strings.TrimSpace(c.ServiceName) == "" {
		c.ServiceName = "flake"
	}
	if c.Path == "" {
		c.Path = "/metrics"
	}
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return xerrors.Wrapf(ErrInvalidConfig, "port %d out of range", c.Port)
	}
	if !strings.HasPrefix(c.Path, "/") {
		return xerrors.Wrapf(ErrInvalidConfig, "path %q must start with /", c.Path)
	}
	return nil
}

// ErrInvalidConfig 配置非法
var ErrInvalidConfig = xerrors.New("metrics: invalid config")
