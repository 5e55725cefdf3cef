package allocator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ceyewan/flake/clog"
	"github.com/ceyewan/flake/connector"
	"github.com/ceyewan/flake/xerrors"
)

// LeaseConfig 租约分配配置
type LeaseConfig struct {
	KeyPrefix string        // 默认 "flake:worker"
	TTL       time.Duration // 默认 30s，按 TTL/3 续期
	MaxID     uint64        // 可分配上限（不含），0 表示 2^bits
}

func (c LeaseConfig) withDefaults() LeaseConfig {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "flake:worker"
	}
	if c.TTL < time.Second {
		c.TTL = 30 * time.Second
	}
	return c
}

func (c LeaseConfig) maxID(bits uint8) uint64 {
	limit := MaxWorkerID(bits) + 1
	if c.MaxID == 0 || c.MaxID > limit {
		return limit
	}
	return c.MaxID
}

// keeper 管理续期 goroutine 的生命周期
type keeper struct {
	lost     chan error
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newKeeper() *keeper {
	return &keeper{
		lost: make(chan error, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (k *keeper) fail(err error) {
	select {
	case k.lost <- err:
	default:
	}
}

func (k *keeper) signal() {
	k.stopOnce.Do(func() { close(k.stop) })
}

// shutdown 停止续期并等待 goroutine 退出
func (k *keeper) shutdown() {
	k.signal()
	<-k.done
}

// ============================================================================
// Redis
// ============================================================================

// 从 offset 开始环形扫描，SET NX EX 抢占第一个空闲 id
const redisAllocateScript = `
local prefix = KEYS[1]
local owner = ARGV[1]
local ttl = tonumber(ARGV[2])
local max_id = tonumber(ARGV[3])
local offset = tonumber(ARGV[4])

for i = 0, max_id - 1 do
	local id = (offset + i) % max_id
	if redis.call("SET", prefix .. ":" .. id, owner, "NX", "EX", ttl) then
		return id
	end
end
return -1
`

// 仅当持有者匹配时续期 / 删除
const (
	redisRenewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("EXPIRE", KEYS[1], ARGV[2])
end
return 0
`
	redisReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`
)

type redisLease struct {
	conn   connector.RedisConnector
	cfg    LeaseConfig
	logger clog.Logger
}

// RedisLease 基于 Redis 的租约分配
func RedisLease(conn connector.RedisConnector, cfg LeaseConfig, logger clog.Logger) Strategy {
	if logger == nil {
		logger = clog.Discard()
	}
	return &redisLease{conn: conn, cfg: cfg.withDefaults(), logger: logger}
}

func (s *redisLease) Name() string { return "redis" }

func (s *redisLease) Allocate(ctx context.Context, bits uint8) (Allocation, error) {
	if s.conn == nil {
		return Allocation{}, ErrSkip
	}
	client := s.conn.GetClient()
	owner := uuid.NewString()
	maxID := s.cfg.maxID(bits)
	ttlSec := int64(s.cfg.TTL / time.Second)

	res, err := client.Eval(ctx, redisAllocateScript, []string{s.cfg.KeyPrefix},
		owner, ttlSec, maxID, rand.Uint64N(maxID)).Int64()
	if err != nil {
		return Allocation{}, xerrors.Wrapf(ErrResolution, "redis lease: %v", err)
	}
	if res < 0 {
		return Allocation{}, fmt.Errorf("%w: %w", ErrResolution, ErrWorkerIDExhausted)
	}

	key := fmt.Sprintf("%s:%d", s.cfg.KeyPrefix, res)
	s.logger.Info("worker id leased", clog.Int64("worker_id", res), clog.String("key", key), clog.String("store", "redis"))

	k := newKeeper()
	go s.keepAlive(client, k, key, owner)

	return Allocation{
		WorkerID: uint64(res),
		Lost:     k.lost,
		Release: func(ctx context.Context) error {
			k.shutdown()
			if err := client.Eval(ctx, redisReleaseScript, []string{key}, owner).Err(); err != nil {
				return xerrors.Wrapf(err, "release %s", key)
			}
			s.logger.Info("worker id released", clog.Int64("worker_id", res), clog.String("key", key))
			return nil
		},
	}, nil
}

func (s *redisLease) keepAlive(client *redis.Client, k *keeper, key, owner string) {
	defer close(k.done)
	defer close(k.lost)

	ticker := time.NewTicker(s.cfg.TTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-k.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TTL/3)
			n, err := client.Eval(ctx, redisRenewScript, []string{key}, owner, int64(s.cfg.TTL/time.Second)).Int64()
			cancel()
			if err == nil && n == 1 {
				continue
			}
			if err == nil {
				err = fmt.Errorf("key %s no longer owned", key)
			}
			s.logger.Error("worker id lease renewal failed", clog.Error(err), clog.String("key", key))
			k.fail(xerrors.Wrap(ErrLeaseExpired, err.Error()))
			return
		}
	}
}

// ============================================================================
// Etcd
// ============================================================================

type etcdLease struct {
	conn   connector.EtcdConnector
	cfg    LeaseConfig
	logger clog.Logger
}

// EtcdLease 基于 Etcd 租约与 CAS 事务的分配
func EtcdLease(conn connector.EtcdConnector, cfg LeaseConfig, logger clog.Logger) Strategy {
	if logger == nil {
		logger = clog.Discard()
	}
	return &etcdLease{conn: conn, cfg: cfg.withDefaults(), logger: logger}
}

func (s *etcdLease) Name() string { return "etcd" }

func (s *etcdLease) Allocate(ctx context.Context, bits uint8) (Allocation, error) {
	if s.conn == nil {
		return Allocation{}, ErrSkip
	}
	client := s.conn.GetClient()

	lease, err := client.Grant(ctx, int64(s.cfg.TTL/time.Second))
	if err != nil {
		return Allocation{}, xerrors.Wrapf(ErrResolution, "etcd grant: %v", err)
	}
	revoke := func() {
		if _, err := client.Revoke(context.Background(), lease.ID); err != nil {
			s.logger.Warn("etcd revoke lease failed", clog.Error(err))
		}
	}

	owner := uuid.NewString()
	maxID := s.cfg.maxID(bits)
	offset := rand.Uint64N(maxID)

	for i := uint64(0); i < maxID; i++ {
		id := (offset + i) % maxID
		key := fmt.Sprintf("%s/%d", s.cfg.KeyPrefix, id)

		resp, err := client.Txn(ctx).
			If(clientv3.Compare(clientv3.ModRevision(key), "=", 0)).
			Then(clientv3.OpPut(key, owner, clientv3.WithLease(lease.ID))).
			Commit()
		if err != nil {
			revoke()
			return Allocation{}, xerrors.Wrapf(ErrResolution, "etcd txn: %v", err)
		}
		if !resp.Succeeded {
			continue
		}

		// KeepAlive 的生命周期绑定到 kaCtx，Release 时取消
		kaCtx, cancel := context.WithCancel(context.Background())
		kaCh, err := client.KeepAlive(kaCtx, lease.ID)
		if err != nil {
			cancel()
			revoke()
			return Allocation{}, xerrors.Wrapf(ErrResolution, "etcd keepalive: %v", err)
		}

		s.logger.Info("worker id leased", clog.Uint64("worker_id", id), clog.String("key", key),
			clog.Int64("lease_id", int64(lease.ID)), clog.String("store", "etcd"))

		k := newKeeper()
		go s.keepAlive(kaCh, k, key)

		return Allocation{
			WorkerID: id,
			Lost:     k.lost,
			Release: func(ctx context.Context) error {
				k.signal()
				cancel()
				<-k.done
				if _, err := client.Revoke(ctx, lease.ID); err != nil {
					return xerrors.Wrapf(err, "revoke lease for %s", key)
				}
				s.logger.Info("worker id released", clog.Uint64("worker_id", id), clog.String("key", key))
				return nil
			},
		}, nil
	}

	revoke()
	return Allocation{}, fmt.Errorf("%w: %w", ErrResolution, ErrWorkerIDExhausted)
}

func (s *etcdLease) keepAlive(kaCh <-chan *clientv3.LeaseKeepAliveResponse, k *keeper, key string) {
	defer close(k.done)
	defer close(k.lost)

	for {
		select {
		case <-k.stop:
			return
		case resp, ok := <-kaCh:
			if ok && resp != nil {
				continue
			}
			// Release 时通道同样会关闭，此时不算失败
			select {
			case <-k.stop:
				return
			default:
			}
			s.logger.Error("worker id lease keepalive stopped", clog.String("key", key))
			k.fail(xerrors.Wrapf(ErrLeaseExpired, "keepalive channel closed for %s", key))
			return
		}
	}
}
