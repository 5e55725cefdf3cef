package testkit

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcetcd "github.com/testcontainers/testcontainers-go/modules/etcd"

	"github.com/ceyewan/flake/connector"
)

// EtcdImage 集成测试使用的 etcd 镜像
const EtcdImage = "quay.io/coreos/etcd:v3.5.9"

// EnvEtcdEndpoints 设置后直接使用外部 etcd，逗号分隔
const EnvEtcdEndpoints = "FLAKE_ETCD_ENDPOINTS"

// NewEtcd 返回已连接的 etcd 连接器
//
// 优先使用 FLAKE_ETCD_ENDPOINTS 指定的 etcd，否则启动容器；
// -short 模式或 Docker 不可用时跳过测试。
func NewEtcd(t *testing.T) connector.EtcdConnector {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping etcd container test in short mode")
	}

	ctx := context.Background()
	endpoints := strings.Split(os.Getenv(EnvEtcdEndpoints), ",")
	if endpoints[0] == "" {
		endpoints = []string{startEtcd(ctx, t)}
	}

	conn, err := connector.NewEtcd(&connector.EtcdConfig{
		Name:        "test-etcd",
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	}, connector.WithLogger(NewLogger()))
	if err != nil {
		t.Fatalf("failed to create etcd connector: %v", err)
	}
	if err := conn.Connect(ctx); err != nil {
		t.Fatalf("failed to connect to etcd: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func startEtcd(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tcetcd.Run(ctx, EtcdImage)
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Skipf("etcd container unavailable: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("etcd container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "2379")
	if err != nil {
		t.Fatalf("etcd container port: %v", err)
	}
	return fmt.Sprintf("%s:%s", host, port.Port())
}
