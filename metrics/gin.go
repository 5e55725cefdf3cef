package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
)

// issuedKey 处理函数写入本次返回 ID 个数的 gin.Context 键
const issuedKey = "metrics.ids_issued"

// SetIssued 记录本次请求成功返回的 ID 个数，由 GinHTTPMiddleware 汇总
func SetIssued(c *gin.Context, n int) {
	c.Set(issuedKey, n)
}

// GinHTTPMiddleware 返回 Gin 中间件，记录 HTTP RED 指标与按路由发放的 ID 数
//
// 配置中 SkipRoutes 列出的路由（默认 /metrics 与 /api/health）不记录。
func GinHTTPMiddleware(httpMetrics *HTTPServerMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpMetrics == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			// 未命中路由时统一收敛，避免将原始 URL Path 作为标签导致高基数
			route = UnknownRoute
		}
		if httpMetrics.Skips(route) {
			return
		}

		ctx := c.Request.Context()
		httpMetrics.Observe(ctx, c.Request.Method, route, c.Writer.Status(), time.Since(start))
		httpMetrics.ObserveIssued(ctx, route, c.GetInt(issuedKey))
	}
}
