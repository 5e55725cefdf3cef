package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GinMiddleware 创建 Gin 限流中间件，每个请求消耗 cost(c) 个令牌
//
// keyFunc 为 nil 时使用客户端 IP；cost 为 nil 时每个请求消耗 1 个令牌。
// cost 返回值 <= 0 或超过 Burst 时交给 handler 做参数校验。
// 限流器出错时放行，发号接口的可用性优先。
//
//	r.GET("/api/ids", ratelimit.GinMiddleware(limiter, limit, nil, func(c *gin.Context) int {
//	    n, _ := strconv.Atoi(c.Query("count"))
//	    return n
//	}), handler)
func GinMiddleware(
	limiter Limiter,
	limit Limit,
	keyFunc func(*gin.Context) string,
	cost func(*gin.Context) int,
) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = func(c *gin.Context) string {
			return c.ClientIP()
		}
	}
	if cost == nil {
		cost = func(*gin.Context) int { return 1 }
	}
	limitHeader := strconv.FormatFloat(limit.Rate, 'f', -1, 64) + ";burst=" + strconv.Itoa(limit.Burst)

	return func(c *gin.Context) {
		key := keyFunc(c)
		n := cost(c)
		if key == "" || !limit.valid() || n <= 0 || n > limit.Burst {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", limitHeader)

		allowed, err := limiter.AllowN(c.Request.Context(), key, limit, n)
		if err != nil {
			c.Next()
			return
		}

		if !allowed {
			c.Header("X-RateLimit-Remaining", "0")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}
