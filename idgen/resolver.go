package idgen

import (
	"context"
	"net"
	"sync"

	"github.com/ceyewan/flake/clog"
	"github.com/ceyewan/flake/connector"
	"github.com/ceyewan/flake/internal/idgen/allocator"
	"github.com/ceyewan/flake/xerrors"
)

// EnvWorkerID 直接指定 worker id 的环境变量
const EnvWorkerID = allocator.EnvWorkerID

type (
	// Strategy 一种 worker id 来源，错误约定见 allocator.Strategy
	Strategy = allocator.Strategy
	// Allocation 一次成功的分配
	Allocation = allocator.Allocation
	// LeaseConfig 租约策略参数
	LeaseConfig = allocator.LeaseConfig
)

// EnvStrategy 读取 SNOWFLAKE_WORKER_ID，lookup 为 nil 时使用 os.LookupEnv
func EnvStrategy(lookup func(string) (string, bool)) Strategy {
	return allocator.Env(lookup)
}

// CompositeStrategy 由数据中心号与机器号拼出 worker id，两者都为 nil 时跳过
func CompositeStrategy(datacenterID, machineID *int64, datacenterBits uint8) Strategy {
	return allocator.Composite(datacenterID, machineID, datacenterBits)
}

// IPStrategy 取本机 IP 的末两个字节
func IPStrategy(addrs func() ([]net.Addr, error)) Strategy {
	return allocator.IP(addrs)
}

// HostnameStrategy 对主机名做 FNV-1a 哈希
func HostnameStrategy(hostname func() (string, error)) Strategy {
	return allocator.Hostname(hostname)
}

// RedisLeaseStrategy 基于 Redis SET NX EX 的租约，conn 为 nil 时跳过
func RedisLeaseStrategy(conn connector.RedisConnector, cfg LeaseConfig, logger clog.Logger) Strategy {
	return allocator.RedisLease(conn, cfg, logger)
}

// EtcdLeaseStrategy 基于 Etcd 租约与 CAS 事务，conn 为 nil 时跳过
func EtcdLeaseStrategy(conn connector.EtcdConnector, cfg LeaseConfig, logger clog.Logger) Strategy {
	return allocator.EtcdLease(conn, cfg, logger)
}

// Resolution 解析结果
type Resolution struct {
	WorkerID uint64
	// Strategy 胜出的策略名称
	Strategy string

	release func(ctx context.Context) error
	lost    <-chan error
}

// Release 释放租约，静态来源为空操作，可重复调用
func (r Resolution) Release(ctx context.Context) error {
	if r.release == nil {
		return nil
	}
	return r.release(ctx)
}

// Lost 租约丢失通知，静态来源返回 nil
func (r Resolution) Lost() <-chan error {
	return r.lost
}

func newResolution(name string, a Allocation) Resolution {
	res := Resolution{WorkerID: a.WorkerID, Strategy: name, lost: a.Lost}
	if a.Release != nil {
		var (
			once sync.Once
			err  error
		)
		res.release = func(ctx context.Context) error {
			once.Do(func() { err = a.Release(ctx) })
			return err
		}
	}
	return res
}

// Resolver 按优先级依次尝试各策略，只在初始化时调用一次
type Resolver struct {
	bits       uint8
	strategies []Strategy
	logger     clog.Logger
}

// NewResolver 创建解析器，bits 为 worker id 位宽
func NewResolver(bits uint8, strategies []Strategy, opts ...Option) *Resolver {
	return newResolver(bits, strategies, applyOptions(opts))
}

func newResolver(bits uint8, strategies []Strategy, o *Options) *Resolver {
	return &Resolver{bits: bits, strategies: strategies, logger: o.Logger}
}

// Resolve 返回第一个成功策略的结果
//
//   - ErrSkip：跳过
//   - 包装 ErrResolution：记录后继续
//   - 其他错误：立即返回
//
// 全部失败时返回合并后的错误，仍可用 ErrResolution 判断。
func (r *Resolver) Resolve(ctx context.Context) (Resolution, error) {
	var failures []error
	for _, s := range r.strategies {
		if err := ctx.Err(); err != nil {
			return Resolution{}, err
		}

		a, err := s.Allocate(ctx, r.bits)
		switch {
		case err == nil:
			if a.WorkerID > allocator.MaxWorkerID(r.bits) {
				if a.Release != nil {
					_ = a.Release(ctx)
				}
				return Resolution{}, invalidConfig("worker_id_out_of_range",
					"strategy %s returned worker id %d exceeding %d bits", s.Name(), a.WorkerID, r.bits)
			}
			r.logger.Info("worker id resolved",
				clog.String("strategy", s.Name()),
				clog.Uint64("worker_id", a.WorkerID),
			)
			return newResolution(s.Name(), a), nil
		case xerrors.Is(err, ErrSkip):
			r.logger.Debug("worker id strategy skipped", clog.String("strategy", s.Name()))
		case xerrors.Is(err, ErrResolution):
			r.logger.Warn("worker id strategy failed, falling back",
				clog.String("strategy", s.Name()),
				clog.Error(err),
			)
			failures = append(failures, xerrors.Wrap(err, s.Name()))
		default:
			return Resolution{}, xerrors.Wrapf(err, "strategy %s", s.Name())
		}
	}

	if len(failures) == 0 {
		return Resolution{}, xerrors.Wrap(ErrResolution, "no strategy produced a worker id")
	}
	return Resolution{}, xerrors.Wrapf(xerrors.Combine(failures...), "all %d strategies failed", len(failures))
}
