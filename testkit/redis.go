package testkit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/ceyewan/flake/connector"
)

// NewRedis 启动内存 Redis 并返回已连接的连接器，测试结束时自动清理
func NewRedis(t *testing.T) (*miniredis.Miniredis, connector.RedisConnector) {
	t.Helper()
	mr := miniredis.RunT(t)

	conn, err := connector.NewRedis(&connector.RedisConfig{
		Name:        "test-redis",
		Addr:        mr.Addr(),
		DialTimeout: time.Second,
	}, connector.WithLogger(NewLogger()))
	if err != nil {
		t.Fatalf("failed to create redis connector: %v", err)
	}
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return mr, conn
}
