// Package allocator 实现 worker id 的各类来源：环境变量、数据中心/机器号、
// 本机 IP、主机名以及基于 Redis / Etcd 的租约。
//
// 每种来源实现 Strategy，由 idgen 的 Resolver 按优先级串联。
package allocator

import (
	"context"
)

// Strategy 一种 worker id 来源
//
// Allocate 的错误约定：
//   - ErrSkip：来源不存在，尝试下一个
//   - 包装 ErrResolution：查询失败但可以降级
//   - 其他错误（通常包装 ErrInvalidConfig）：立即失败
type Strategy interface {
	Name() string
	Allocate(ctx context.Context, bits uint8) (Allocation, error)
}

// Allocation 一次成功的分配
type Allocation struct {
	WorkerID uint64

	// Release 释放租约，静态来源为 nil
	Release func(ctx context.Context) error

	// Lost 租约续期失败时收到 ErrLeaseExpired，Release 后关闭；静态来源为 nil
	Lost <-chan error
}

// MaxWorkerID 返回 bits 位可表示的最大 worker id
func MaxWorkerID(bits uint8) uint64 {
	return uint64(1)<<bits - 1
}
