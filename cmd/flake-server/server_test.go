package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ceyewan/flake/idgen"
	"github.com/ceyewan/flake/metrics"
	"github.com/ceyewan/flake/ratelimit"
	"github.com/ceyewan/flake/testkit"
	"github.com/ceyewan/flake/trace"
)

func newTestServer(t *testing.T, gen *idgen.Generator, res idgen.Resolution, batch BatchConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	meter := testkit.NewMeter()
	t.Cleanup(func() { _ = meter.Shutdown(context.Background()) })

	limiter, err := ratelimit.NewStandalone(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = limiter.Close() })

	httpMetrics, err := metrics.NewHTTPServerMetrics(meter, metrics.DefaultHTTPServerMetricsConfig("flake-server"))
	require.NoError(t, err)

	s := &server{
		gen:        gen,
		resolution: res,
		limiter:    limiter,
		meter:      meter,
		httpMetric: httpMetrics,
		batch:      batch,
		service:    "flake-server",
		logger:     testkit.NewLogger(),
	}
	return s.router()
}

func newGenerator(t *testing.T, opts ...idgen.Option) *idgen.Generator {
	t.Helper()
	cfg := idgen.DefaultConfig()
	cfg.WorkerID = 69
	gen, err := idgen.NewGenerator(cfg, opts...)
	require.NoError(t, err)
	return gen
}

func get(t *testing.T, h http.Handler, target string, out any) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func TestNextIDEndpoint(t *testing.T) {
	gen := newGenerator(t)
	r := newTestServer(t, gen, idgen.Resolution{WorkerID: 69, Strategy: "env"}, defaultAppConfig().Server.Batch)

	var first, second idResponse
	require.Equal(t, http.StatusOK, get(t, r, "/api/id", &first).Code)
	require.Equal(t, http.StatusOK, get(t, r, "/api/id", &second).Code)
	assert.Greater(t, second.ID, first.ID)
	assert.Equal(t, uint64(69), gen.Decode(first.ID).WorkerID)
}

func TestNextIDsEndpoint(t *testing.T) {
	r := newTestServer(t, newGenerator(t), idgen.Resolution{}, defaultAppConfig().Server.Batch)

	var resp idsResponse
	rec := get(t, r, "/api/ids?count=5", &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, resp.IDs, 5)

	var prev uint64
	for _, raw := range resp.IDs {
		id, err := strconv.ParseUint(raw, 10, 64)
		require.NoError(t, err)
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestNextIDsRejectsBadCount(t *testing.T) {
	r := newTestServer(t, newGenerator(t), idgen.Resolution{}, defaultAppConfig().Server.Batch)

	for _, q := range []string{"0", "-3", "1001", "many"} {
		rec := get(t, r, "/api/ids?count="+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestNextIDsRateLimited(t *testing.T) {
	batch := BatchConfig{MaxCount: 10, Rate: 0.001, Burst: 10}
	r := newTestServer(t, newGenerator(t), idgen.Resolution{}, batch)

	require.Equal(t, http.StatusOK, get(t, r, "/api/ids?count=10", nil).Code)
	rec := get(t, r, "/api/ids?count=1", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestDecodeEndpoint(t *testing.T) {
	r := newTestServer(t, newGenerator(t), idgen.Resolution{}, defaultAppConfig().Server.Batch)
	id := idgen.Encode(1000, 69, 7, idgen.DefaultConfig())

	var resp decodeResponse
	rec := get(t, r, fmt.Sprintf("/api/ids/%d", id), &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, resp.ID)
	assert.Equal(t, int64(1000), resp.TimestampMs)
	assert.Equal(t, uint64(69), resp.WorkerID)
	assert.Equal(t, uint64(7), resp.Sequence)
	assert.True(t, idgen.Epoch.Add(time.Second).Equal(resp.Time))

	assert.Equal(t, http.StatusBadRequest, get(t, r, "/api/ids/abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, get(t, r, "/api/ids/-1", nil).Code)
}

func TestClockBackwardReturns503(t *testing.T) {
	clock := testkit.NewManualClock(idgen.Epoch.Add(time.Hour))
	gen := newGenerator(t,
		idgen.WithClock(clock),
		idgen.WithRetryPolicy(idgen.RetryPolicy{Attempts: 2, Delay: time.Millisecond}),
	)
	r := newTestServer(t, gen, idgen.Resolution{}, defaultAppConfig().Server.Batch)

	require.Equal(t, http.StatusOK, get(t, r, "/api/id", nil).Code)
	clock.Advance(-time.Second)

	rec := get(t, r, "/api/id", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestServer(t, newGenerator(t), idgen.Resolution{WorkerID: 69, Strategy: "composite"}, defaultAppConfig().Server.Batch)

	var resp healthResponse
	require.Equal(t, http.StatusOK, get(t, r, "/api/health", &resp).Code)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, uint64(69), resp.WorkerID)
	assert.Equal(t, "composite", resp.Strategy)
}

func TestHealthReportsLostLease(t *testing.T) {
	mr, conn := testkit.NewRedis(t)
	prefix := "flake:server:" + testkit.NewID()

	t.Setenv(idgen.EnvWorkerID, "")
	gen, res, err := idgen.New(context.Background(), idgen.DefaultSettings(),
		idgen.WithLeaseStrategy(idgen.RedisLeaseStrategy(conn, idgen.LeaseConfig{KeyPrefix: prefix, TTL: time.Second}, nil)),
	)
	require.NoError(t, err)
	defer res.Release(context.Background())

	r := newTestServer(t, gen, res, defaultAppConfig().Server.Batch)
	require.Equal(t, http.StatusOK, get(t, r, "/api/health", nil).Code)

	mr.Set(fmt.Sprintf("%s:%d", prefix, res.WorkerID), "someone-else")
	require.Eventually(t, func() bool {
		return get(t, r, "/api/health", nil).Code == http.StatusServiceUnavailable
	}, 5*time.Second, 50*time.Millisecond)

	assert.Equal(t, http.StatusServiceUnavailable, get(t, r, "/api/id", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestServer(t, newGenerator(t), idgen.Resolution{}, defaultAppConfig().Server.Batch)
	get(t, r, "/api/id", nil)
	get(t, r, "/api/ids?count=4", nil)
	get(t, r, "/api/health", nil)

	rec := get(t, r, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "http_server_requests_total")
	assert.Contains(t, body, `route="/api/id"`)
	assert.Regexp(t, `http_server_ids_issued_total\{[^}]*route="/api/ids"[^}]*\} 4`, body)
	assert.NotContains(t, body, `route="/api/health"`)
}

func TestBatchLimitCoversMaxCount(t *testing.T) {
	l := BatchConfig{MaxCount: 1000, Rate: 10, Burst: 100}.limit()
	assert.Equal(t, 1000, l.Burst)
	assert.Equal(t, float64(10), l.Rate)
}

func TestNextIDsTraced(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	r := newTestServer(t, newGenerator(t), idgen.Resolution{}, defaultAppConfig().Server.Batch)

	var resp idsResponse
	require.Equal(t, http.StatusOK, get(t, r, "/api/ids?count=3", &resp).Code)
	require.Len(t, resp.IDs, 3)
	require.Equal(t, http.StatusOK, get(t, r, "/api/health", nil).Code)

	// 健康检查不产生 span，批量发号产生服务端 span 与一个发号子 span
	spans := rec.Ended()
	require.Len(t, spans, 2)
	issue := spans[0]
	assert.Equal(t, trace.SpanNameIssue, issue.Name())
	assert.Contains(t, issue.Attributes(), attribute.Int(trace.AttrIDCount, 3))
	assert.Contains(t, issue.Attributes(), attribute.Int64(trace.AttrWorkerID, 69))
	assert.Equal(t, spans[1].SpanContext().SpanID(), issue.Parent().SpanID())
}
