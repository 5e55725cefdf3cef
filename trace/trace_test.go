package trace

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useRecorder 将全局 TracerProvider 换成内存记录器，测试结束后恢复
func useRecorder(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return rec, tp
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "disabled ignores endpoint", mutate: func(c *Config) { c.Endpoint = "" }},
		{name: "missing service name", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: true},
		{name: "enabled without endpoint", mutate: func(c *Config) { c.Enabled, c.Endpoint = true, "" }, wantErr: true},
		{name: "sampler too large", mutate: func(c *Config) { c.Enabled, c.Sampler = true, 1.5 }, wantErr: true},
		{name: "unknown batcher", mutate: func(c *Config) { c.Enabled, c.Batcher = true, "async" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("flake-server")
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}

	var nilCfg *Config
	assert.ErrorIs(t, nilCfg.validate(), ErrInvalidConfig)
}

func TestInitDisabled(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	shutdown, err := Init(DefaultConfig("flake-server"))
	require.NoError(t, err)

	// 不导出也能生成有效的 TraceID
	_, span := Tracer().Start(context.Background(), "standalone")
	assert.True(t, span.SpanContext().TraceID().IsValid())
	span.End()

	assert.NoError(t, shutdown(context.Background()))
}

func TestInitInvalid(t *testing.T) {
	cfg := DefaultConfig("flake-server")
	cfg.Enabled = true
	cfg.Sampler = -1
	_, err := Init(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec, tp := useRecorder(t)

	r := gin.New()
	r.Use(GinMiddleware("flake-server", otelgin.WithTracerProvider(tp)))
	r.GET("/api/id", func(c *gin.Context) {
		_, span := StartIssue(c.Request.Context(), 1, 69)
		End(span, nil)
		c.Status(http.StatusOK)
	})
	r.GET("/api/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/api/health", "/metrics"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Empty(t, rec.Ended(), "health and metrics requests are not traced")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/id", nil))
	require.Equal(t, http.StatusOK, w.Code)

	spans := rec.Ended()
	require.Len(t, spans, 2)
	issue, server := spans[0], spans[1]
	assert.Equal(t, SpanNameIssue, issue.Name())
	assert.Equal(t, server.SpanContext().SpanID(), issue.Parent().SpanID())
	assert.Equal(t, server.SpanContext().TraceID(), issue.SpanContext().TraceID())
}

func TestStartIssueRecordsError(t *testing.T) {
	rec, _ := useRecorder(t)

	_, span := StartIssue(context.Background(), 3, 7)
	End(span, errors.New("clock moved backwards"))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.Int(AttrIDCount, 3))
	assert.Contains(t, spans[0].Attributes(), attribute.Int64(AttrWorkerID, 7))
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}
