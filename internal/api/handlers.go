package api

import (
	"context"
	"net/http"
	"time"

	"OpsDiagnosis/internal/models"
	"OpsDiagnosis/internal/session"
	"OpsDiagnosis/internal/taskqueue"
	"OpsDiagnosis/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TaskPublisher 定义了提交接口依赖的任务发布契约。
type TaskPublisher interface {
	Publish(ctx context.Context, task models.DiagnosisTask) error
}

// HealthChecker 检查单个外部组件的连通性。
type HealthChecker func(ctx context.Context) error

// DiagnosisRequest 是异步诊断接口的请求体。
type DiagnosisRequest struct {
	Message   string `json:"message" binding:"required"` // 用户输入的诊断问题
	SessionID string `json:"session_id"`                 // 会话ID（可选）
}

// API 提供诊断服务的全部 HTTP 处理函数。
type API struct {
	publisher   TaskPublisher
	status      *taskqueue.StatusStore
	sessions    session.Store
	redisCheck  HealthChecker
	kafkaCheck  HealthChecker
	serviceInfo gin.H
	logger      *logger.Logger
}

// NewAPI 创建一个新的 API 处理器。
func NewAPI(publisher TaskPublisher, status *taskqueue.StatusStore, sessions session.Store,
	redisCheck, kafkaCheck HealthChecker, logger *logger.Logger) *API {
	return &API{
		publisher:  publisher,
		status:     status,
		sessions:   sessions,
		redisCheck: redisCheck,
		kafkaCheck: kafkaCheck,
		serviceInfo: gin.H{
			"message": "运维智能诊断助手 API v2.0 正在运行",
			"version": "2.0.0",
			"features": []string{
				"异步诊断任务处理",
				"Redis会话持久化",
				"任务状态查询",
				"API密钥认证",
			},
			"endpoints": gin.H{
				"health":         "/health",
				"diagnose_async": "/diagnose/async (POST)",
				"task_status":    "/tasks/{task_id} (GET)",
				"session_info":   "/sessions/{session_id} (GET)",
				"sessions":       "/sessions (GET)",
			},
		},
		logger: logger,
	}
}

// RootHandler 返回服务信息。
func (a *API) RootHandler(c *gin.Context) {
	c.JSON(http.StatusOK, a.serviceInfo)
}

// HealthHandler 报告 Redis 与 Kafka 的连通性。
func (a *API) HealthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	redisStatus := "connected"
	kafkaStatus := "connected"
	healthy := true

	if err := a.redisCheck(ctx); err != nil {
		redisStatus = "disconnected"
		healthy = false
	}
	if err := a.kafkaCheck(ctx); err != nil {
		kafkaStatus = "disconnected"
		healthy = false
	}

	code := http.StatusOK
	status := "healthy"
	if !healthy {
		code = http.StatusServiceUnavailable
		status = "unhealthy"
	}

	c.JSON(code, gin.H{
		"status":    status,
		"service":   "ops-diagnosis-assistant-v2",
		"timestamp": time.Now().Unix(),
		"redis":     redisStatus,
		"kafka":     kafkaStatus,
	})
}

// DiagnoseAsyncHandler 接收用户问题，创建任务并投递到队列，立即返回任务 ID。
func (a *API) DiagnoseAsyncHandler(c *gin.Context) {
	var req DiagnosisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求参数: " + err.Error()})
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	task := models.DiagnosisTask{
		TaskID:    uuid.New().String(),
		SessionID: sessionID,
		Message:   req.Message,
	}

	ctx := c.Request.Context()
	if err := a.status.Create(ctx, task.TaskID); err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("登记任务状态失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "诊断任务提交失败"})
		return
	}

	if err := a.publisher.Publish(ctx, task); err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("投递诊断任务失败")
		_ = a.status.SetFailure(ctx, task.TaskID, "任务投递到队列失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "诊断任务提交失败"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"task_id":    task.TaskID,
		"session_id": sessionID,
		"status":     string(models.TaskStatusPending),
		"message":    "诊断任务已提交，请使用task_id查询状态",
	})
}

// GetTaskStatusHandler 查询任务状态。
// 未知的任务 ID 按 PENDING 返回，与队列后端对未登记任务的语义一致。
func (a *API) GetTaskStatusHandler(c *gin.Context) {
	taskID := c.Param("task_id")

	state, err := a.status.Get(c.Request.Context(), taskID)
	if err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("查询任务状态失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询任务状态失败"})
		return
	}
	if state == nil {
		state = &models.TaskState{TaskID: taskID, Status: models.TaskStatusPending}
	}

	c.JSON(http.StatusOK, state)
}

// GetSessionInfoHandler 获取会话信息，返回最近 10 条历史消息。
func (a *API) GetSessionInfoHandler(c *gin.Context) {
	sessionID := c.Param("session_id")

	sess, err := a.sessions.Load(c.Request.Context(), sessionID)
	if err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("获取会话信息失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取会话信息失败"})
		return
	}
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return
	}

	history := sess.History
	if len(history) > 10 {
		history = history[len(history)-10:]
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":      sess.ID,
		"diagnosis_stage": string(sess.Stage),
		"message_count":   len(sess.History) / 2, // 用户和助手交替
		"history":         history,
	})
}

// ListSessionsHandler 列出所有活跃会话（仅用于诊断）。
func (a *API) ListSessionsHandler(c *gin.Context) {
	sessions, err := a.sessions.ListAll(c.Request.Context())
	if err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("获取会话列表失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取会话列表失败"})
		return
	}

	sessionList := make([]gin.H, 0, len(sessions))
	for id, sess := range sessions {
		sessionList = append(sessionList, gin.H{
			"session_id":      id,
			"diagnosis_stage": string(sess.Stage),
			"message_count":   len(sess.History) / 2,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"active_sessions": len(sessionList),
		"sessions":        sessionList,
	})
}

// DeleteSessionHandler 删除会话。
func (a *API) DeleteSessionHandler(c *gin.Context) {
	sessionID := c.Param("session_id")

	deleted, err := a.sessions.Delete(c.Request.Context(), sessionID)
	if err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("删除会话失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除会话失败"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "会话 " + sessionID + " 已删除"})
}
