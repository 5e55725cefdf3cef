package trace

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// untracedPaths 探活与抓取指标的请求不产生 span
var untracedPaths = map[string]struct{}{
	"/metrics":    {},
	"/api/health": {},
}

// GinMiddleware 返回 Gin 跟踪中间件，跳过 /metrics 与 /api/health
func GinMiddleware(serviceName string, opts ...otelgin.Option) gin.HandlerFunc {
	opts = append([]otelgin.Option{otelgin.WithFilter(traced)}, opts...)
	return otelgin.Middleware(serviceName, opts...)
}

func traced(r *http.Request) bool {
	_, skip := untracedPaths[r.URL.Path]
	return !skip
}
