package connector

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ceyewan/flake/clog"
	"github.com/ceyewan/flake/metrics"
)

func TestRedisConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *RedisConfig
		wantErr bool
	}{
		{name: "nil config", cfg: nil, wantErr: true},
		{name: "missing addr", cfg: &RedisConfig{}, wantErr: true},
		{name: "negative db", cfg: &RedisConfig{Addr: "127.0.0.1:6379", DB: -1}, wantErr: true},
		{name: "valid", cfg: &RedisConfig{Addr: "127.0.0.1:6379"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := NewRedis(tt.cfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "default", conn.Name())
			assert.False(t, conn.IsHealthy())
			require.NoError(t, conn.Close())
		})
	}
}

func TestRedisConnector(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	meter, err := metrics.New(metrics.NewDevDefaultConfig("connector-test"))
	require.NoError(t, err)
	defer func() { _ = meter.Shutdown(ctx) }()

	conn, err := NewRedis(&RedisConfig{Name: "lease", Addr: mr.Addr()},
		WithLogger(clog.Discard()), WithMeter(meter))
	require.NoError(t, err)

	require.NoError(t, conn.Connect(ctx))
	assert.True(t, conn.IsHealthy())
	assert.Equal(t, "lease", conn.Name())

	require.NoError(t, conn.GetClient().Set(ctx, "k", "v", time.Minute).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	require.NoError(t, conn.HealthCheck(ctx))

	mr.Close()
	assert.Error(t, conn.HealthCheck(ctx))
	assert.False(t, conn.IsHealthy())

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.ErrorIs(t, conn.Connect(ctx), ErrAlreadyClosed)
}

func TestRedisTracing(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer func() { _ = tp.Shutdown(ctx) }()

	conn, err := NewRedis(&RedisConfig{Addr: mr.Addr()}, WithTracerProvider(tp))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.GetClient().Set(ctx, "flake:worker:1", "owner", time.Minute).Err())

	var names []string
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "set")
}

func TestRedisConnectFailure(t *testing.T) {
	conn, err := NewRedis(&RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	require.NoError(t, err)
	defer conn.Close()

	err = conn.Connect(context.Background())
	assert.ErrorIs(t, err, ErrConnection)
	assert.False(t, conn.IsHealthy())
}

func TestEtcdConfig(t *testing.T) {
	_, err := NewEtcd(nil)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = NewEtcd(&EtcdConfig{})
	assert.ErrorIs(t, err, ErrConfig)

	conn, err := NewEtcd(&EtcdConfig{Endpoints: []string{"127.0.0.1:1"}, DialTimeout: 100 * time.Millisecond})
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "default", conn.Name())
	assert.NotNil(t, conn.GetClient())
}
