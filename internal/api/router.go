package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册诊断服务的全部路由。
// 服务信息与健康检查公开访问，其余路由都在共享密钥认证之后。
func RegisterRoutes(router *gin.Engine, a *API, apiKey string) {
	router.GET("/", a.RootHandler)
	router.GET("/health", a.HealthHandler)

	authed := router.Group("/")
	authed.Use(APIKeyAuth(apiKey))
	{
		authed.POST("/diagnose/async", a.DiagnoseAsyncHandler)
		authed.GET("/tasks/:task_id", a.GetTaskStatusHandler)
		authed.GET("/sessions", a.ListSessionsHandler)
		authed.GET("/sessions/:session_id", a.GetSessionInfoHandler)
		authed.DELETE("/sessions/:session_id", a.DeleteSessionHandler)
	}
}
