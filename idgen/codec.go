package idgen

import (
	"fmt"
	"time"
)

// EpochMs 自定义纪元 2025-03-08T00:00:00Z 的 Unix 毫秒
const EpochMs int64 = 1741392000000

// Epoch 时间戳字段的起点
var Epoch = time.UnixMilli(EpochMs).UTC()

// TimestampMask 41 位时间戳掩码
const TimestampMask uint64 = 1<<TimestampBits - 1

// Layout 64 位 ID 的位布局，从高到低：
//
//	[1 位保留 0][41 位纪元毫秒][WorkerIDBits 位 worker][SequenceBits 位序列号]
type Layout struct {
	WorkerIDBits uint8
	SequenceBits uint8
}

func (l Layout) TimestampShift() uint8 { return l.WorkerIDBits + l.SequenceBits }
func (l Layout) WorkerShift() uint8    { return l.SequenceBits }
func (l Layout) SequenceMask() uint64  { return 1<<l.SequenceBits - 1 }
func (l Layout) WorkerMask() uint64    { return 1<<l.WorkerIDBits - 1 }

// Encode 打包三个字段，任一字段越界都是调用方的编程错误，直接 panic
func (l Layout) Encode(timestampMs int64, workerID, sequence uint64) uint64 {
	if timestampMs < 0 || uint64(timestampMs) > TimestampMask {
		panic(fmt.Sprintf("idgen: timestamp %d out of 41-bit range", timestampMs))
	}
	if workerID > l.WorkerMask() {
		panic(fmt.Sprintf("idgen: worker id %d exceeds %d bits", workerID, l.WorkerIDBits))
	}
	if sequence > l.SequenceMask() {
		panic(fmt.Sprintf("idgen: sequence %d exceeds %d bits", sequence, l.SequenceBits))
	}
	return uint64(timestampMs)<<l.TimestampShift() | workerID<<l.WorkerShift() | sequence
}

// Decode 拆解 ID，仅用于诊断
func (l Layout) Decode(id uint64) Components {
	return Components{
		ID:          id,
		TimestampMs: int64(id >> l.TimestampShift() & TimestampMask),
		WorkerID:    id >> l.WorkerShift() & l.WorkerMask(),
		Sequence:    id & l.SequenceMask(),
	}
}

// Components 拆解后的 ID 字段
type Components struct {
	ID          uint64 `json:"id,string"`
	TimestampMs int64  `json:"timestamp_ms"` // 相对 Epoch 的毫秒
	WorkerID    uint64 `json:"worker_id"`
	Sequence    uint64 `json:"sequence"`
}

// Time 返回 ID 的生成时刻
func (c Components) Time() time.Time {
	return time.UnixMilli(EpochMs + c.TimestampMs).UTC()
}

// Encode 按 cfg 的布局打包
func Encode(timestampMs int64, workerID, sequence uint64, cfg Config) uint64 {
	return cfg.Layout().Encode(timestampMs, workerID, sequence)
}

// Decode 按 cfg 的布局拆解
func Decode(id uint64, cfg Config) Components {
	return cfg.Layout().Decode(id)
}
