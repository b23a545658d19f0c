package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"OpsDiagnosis/internal/models"
	"OpsDiagnosis/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequestLogger 创建一个记录每个 HTTP 请求的 Gin 中间件。
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.WithRequest(models.RequestInfo{
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			RemoteAddr: c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		}).WithPayload(map[string]interface{}{
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
		}).Info("HTTP请求处理完成")
	}
}

// APIKeyAuth 创建一个 Gin 中间件，对请求头中的共享密钥做比对。
// 密钥不匹配时在任务创建之前就拒绝请求，不产生任何副作用。
func APIKeyAuth(expectedKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader("X-API-Key")
		if provided == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "请求未包含 X-API-Key 请求头"})
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(expectedKey)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "无效的API密钥"})
			c.Abort()
			return
		}
		c.Next()
	}
}
