package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/repolens/backend/internal/infrastructure/log"
)

// RequestLogging 请求级结构化日志中间件
// 每个请求记录方法、路径、状态码与耗时；健康检查太频繁，不记录
func RequestLogging() gin.HandlerFunc {
	logger := log.NewModuleLogger("http", "access")
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		if c.Writer.Status() >= 500 {
			logger.Error("request completed", attrs...)
		} else {
			logger.Info("request completed", attrs...)
		}
	}
}
