package idgen

import (
	"math"
	"time"
)

// 位宽约束：时间戳固定 41 位，worker 与序列号共用剩余的 22 位
const (
	TimestampBits = 41
	MaxFieldBits  = 64 - 1 - TimestampBits
)

// MaxBackwardLimitMs 回拨容忍上限，保证等待预算 (drift + MaxBackwardMs) 换算为 time.Duration 不溢出
const MaxBackwardLimitMs = math.MaxInt64 / int64(time.Millisecond) / 2

// Config 生成器参数，应用后不可修改，只能通过 Configure 整体替换
type Config struct {
	// WorkerIDBits worker id 位宽，默认 8
	WorkerIDBits uint8 `mapstructure:"worker_id_bits"`
	// SequenceBits 毫秒内序列号位宽，默认 12
	SequenceBits uint8 `mapstructure:"sequence_bits"`
	// MaxBackwardMs 可等待的最大时钟回拨，超出返回 ErrClockBackward，默认 10
	MaxBackwardMs int64 `mapstructure:"max_backward_ms"`
	// WorkerID 已解析的 worker id
	WorkerID uint64 `mapstructure:"-"`
}

// DefaultConfig 返回 41/8/12 布局、10ms 回拨容忍的默认配置
func DefaultConfig() Config {
	return Config{
		WorkerIDBits:  8,
		SequenceBits:  12,
		MaxBackwardMs: 10,
	}
}

// Validate 校验位宽与 worker id 范围
func (c Config) Validate() error {
	if c.WorkerIDBits < 1 {
		return invalidConfig("worker_id_bits_invalid", "worker_id_bits must be >= 1")
	}
	if c.SequenceBits < 1 {
		return invalidConfig("sequence_bits_invalid", "sequence_bits must be >= 1")
	}
	if int(c.WorkerIDBits)+int(c.SequenceBits) > MaxFieldBits {
		return invalidConfig("bits_overflow", "worker_id_bits(%d) + sequence_bits(%d) must be <= %d",
			c.WorkerIDBits, c.SequenceBits, MaxFieldBits)
	}
	if c.MaxBackwardMs < 0 {
		return invalidConfig("max_backward_negative", "max_backward_ms %d must be >= 0", c.MaxBackwardMs)
	}
	if c.MaxBackwardMs > MaxBackwardLimitMs {
		return invalidConfig("max_backward_too_large", "max_backward_ms %d must be <= %d", c.MaxBackwardMs, MaxBackwardLimitMs)
	}
	if c.WorkerID > c.Layout().WorkerMask() {
		return invalidConfig("worker_id_out_of_range", "worker_id %d exceeds %d", c.WorkerID, c.Layout().WorkerMask())
	}
	return nil
}

// Layout 返回该配置对应的位布局
func (c Config) Layout() Layout {
	return Layout{WorkerIDBits: c.WorkerIDBits, SequenceBits: c.SequenceBits}
}
