package trace

// Config 链路追踪配置，对应 snowflake.toml 的 [trace] 小节
//
// Enabled 为 false 时不导出任何数据，只生成 TraceID。
type Config struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	Sampler     float64 `mapstructure:"sampler"`
	Batcher     string  `mapstructure:"batcher"`
	Insecure    bool    `mapstructure:"insecure"`
}

// DefaultConfig 返回默认配置（关闭导出）
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Endpoint:    "localhost:4317",
		Sampler:     1.0,
		Batcher:     "batch",
		Insecure:    true,
	}
}

func (c *Config) validate() error {
	if c == nil {
		return wrapInvalid("config is required")
	}
	if c.ServiceName == "" {
		return wrapInvalid("service_name is required")
	}
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return wrapInvalid("endpoint is required")
	}
	if c.Sampler < 0 || c.Sampler > 1 {
		return wrapInvalid("sampler must be between 0 and 1, got %v", c.Sampler)
	}
	if c.Batcher != "" && c.Batcher != "batch" && c.Batcher != "simple" {
		return wrapInvalid("batcher must be \"batch\" or \"simple\", got %q", c.Batcher)
	}
	return nil
}
