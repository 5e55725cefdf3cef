package allocator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/flake/testkit"
)

func TestRedisLeaseAllocateAndRelease(t *testing.T) {
	mr, conn := testkit.NewRedis(t)
	ctx := context.Background()
	s := RedisLease(conn, LeaseConfig{KeyPrefix: "test:worker", MaxID: 2}, nil)
	assert.Equal(t, "redis", s.Name())

	a, err := s.Allocate(ctx, 8)
	require.NoError(t, err)
	b, err := s.Allocate(ctx, 8)
	require.NoError(t, err)
	assert.NotEqual(t, a.WorkerID, b.WorkerID)
	assert.Less(t, a.WorkerID, uint64(2))
	assert.Less(t, b.WorkerID, uint64(2))
	assert.True(t, mr.Exists(fmt.Sprintf("test:worker:%d", a.WorkerID)))

	_, err = s.Allocate(ctx, 8)
	assert.ErrorIs(t, err, ErrResolution)
	assert.ErrorIs(t, err, ErrWorkerIDExhausted)

	require.NoError(t, a.Release(ctx))
	assert.False(t, mr.Exists(fmt.Sprintf("test:worker:%d", a.WorkerID)))
	_, ok := <-a.Lost
	assert.False(t, ok, "lost channel closes on release")

	c, err := s.Allocate(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, a.WorkerID, c.WorkerID)

	require.NoError(t, b.Release(ctx))
	require.NoError(t, c.Release(ctx))
}

func TestRedisLeaseRespectsBits(t *testing.T) {
	_, conn := testkit.NewRedis(t)
	ctx := context.Background()
	s := RedisLease(conn, LeaseConfig{}, nil)

	seen := map[uint64]bool{}
	var allocs []Allocation
	for i := 0; i < 4; i++ {
		a, err := s.Allocate(ctx, 2)
		require.NoError(t, err)
		assert.False(t, seen[a.WorkerID])
		seen[a.WorkerID] = true
		allocs = append(allocs, a)
	}
	_, err := s.Allocate(ctx, 2)
	assert.ErrorIs(t, err, ErrWorkerIDExhausted)

	for _, a := range allocs {
		require.NoError(t, a.Release(ctx))
	}
}

func TestRedisLeaseLost(t *testing.T) {
	mr, conn := testkit.NewRedis(t)
	ctx := context.Background()
	s := RedisLease(conn, LeaseConfig{KeyPrefix: "test:worker", TTL: time.Second}, nil)

	a, err := s.Allocate(ctx, 8)
	require.NoError(t, err)
	defer a.Release(ctx)

	// 被其他进程抢走
	mr.Set(fmt.Sprintf("test:worker:%d", a.WorkerID), "someone-else")

	select {
	case err := <-a.Lost:
		assert.ErrorIs(t, err, ErrLeaseExpired)
	case <-time.After(3 * time.Second):
		t.Fatal("lease loss not reported")
	}
}

func TestRedisLeaseUnavailable(t *testing.T) {
	mr, conn := testkit.NewRedis(t)
	mr.Close()

	_, err := RedisLease(conn, LeaseConfig{}, nil).Allocate(context.Background(), 8)
	assert.ErrorIs(t, err, ErrResolution)
}

func TestLeaseNilConnectorSkips(t *testing.T) {
	_, err := RedisLease(nil, LeaseConfig{}, nil).Allocate(context.Background(), 8)
	assert.ErrorIs(t, err, ErrSkip)
	_, err = EtcdLease(nil, LeaseConfig{}, nil).Allocate(context.Background(), 8)
	assert.ErrorIs(t, err, ErrSkip)
}

func TestLeaseConfigDefaults(t *testing.T) {
	c := LeaseConfig{}.withDefaults()
	assert.Equal(t, "flake:worker", c.KeyPrefix)
	assert.Equal(t, 30*time.Second, c.TTL)
	assert.Equal(t, uint64(256), c.maxID(8))
	assert.Equal(t, uint64(10), LeaseConfig{MaxID: 10}.maxID(8))
	assert.Equal(t, uint64(4), LeaseConfig{MaxID: 10}.maxID(2))
}

func TestEtcdLeaseIntegration(t *testing.T) {
	conn := testkit.NewEtcd(t)
	ctx := context.Background()
	prefix := "flake/test/" + testkit.NewID()
	s := EtcdLease(conn, LeaseConfig{KeyPrefix: prefix, TTL: 5 * time.Second, MaxID: 2}, testkit.NewLogger())
	assert.Equal(t, "etcd", s.Name())

	a, err := s.Allocate(ctx, 8)
	require.NoError(t, err)
	b, err := s.Allocate(ctx, 8)
	require.NoError(t, err)
	assert.NotEqual(t, a.WorkerID, b.WorkerID)

	_, err = s.Allocate(ctx, 8)
	assert.ErrorIs(t, err, ErrWorkerIDExhausted)

	require.NoError(t, a.Release(ctx))
	_, ok := <-a.Lost
	assert.False(t, ok, "lost channel closes on release")

	resp, err := conn.GetClient().Get(ctx, fmt.Sprintf("%s/%d", prefix, a.WorkerID))
	require.NoError(t, err)
	assert.Zero(t, resp.Count)

	c, err := s.Allocate(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, a.WorkerID, c.WorkerID)

	require.NoError(t, b.Release(ctx))
	require.NoError(t, c.Release(ctx))
}
