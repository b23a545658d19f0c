package executor

import (
	"context"
	"errors"
	"fmt"

	"OpsDiagnosis/internal/models"
	"OpsDiagnosis/internal/session"
	"OpsDiagnosis/internal/taskqueue"
	"OpsDiagnosis/internal/workflow"
	"OpsDiagnosis/pkg/logger"

	"github.com/google/uuid"
)

// 进度检查点。计数单调递增，文案仅作状态提示，不构成严格的节点屏障。
const progressTotal = 5

var progressStatus = [progressTotal]string{
	"正在初始化诊断会话...",
	"正在分析症状信息...",
	"正在检索相关知识库...",
	"正在分析根本原因...",
	"生成最终解决方案...",
}

// Executor 执行单个诊断任务：加载或创建会话，驱动一步工作流，
// 持久化会话并写入任务结果。
//
// 任务投递语义是 at-least-once：同一 (message, session-id) 的重复执行
// 只会用等价或更新的内容覆盖会话与任务状态，不产生其它外部可见副作用。
type Executor struct {
	engine   *workflow.Engine
	sessions session.Store
	status   *taskqueue.StatusStore
	logger   *logger.Logger
}

// New 创建一个新的 Executor。
func New(engine *workflow.Engine, sessions session.Store, status *taskqueue.StatusStore, logger *logger.Logger) *Executor {
	return &Executor{
		engine:   engine,
		sessions: sessions,
		status:   status,
		logger:   logger,
	}
}

// Handle 实现 taskqueue.TaskHandler。
// 成功时在内部写入 SUCCESS 终态；返回的错误由 worker 转换为 FAILURE。
// 失败时不保证会话反映部分进度（尽力而为，无事务回滚）。
func (e *Executor) Handle(ctx context.Context, task models.DiagnosisTask) error {
	e.reportProgress(ctx, task, 1)

	// 解析会话：存在则加载（损坏按不存在处理），否则创建新会话。
	sessionID := task.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	sess, err := e.sessions.Load(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("加载会话失败: %w", err)
	}
	if sess == nil {
		sess = models.NewSession(sessionID)
	}

	e.reportProgress(ctx, task, 2)

	// 每个任务恰好驱动一步工作流。
	updated, err := e.engine.Step(ctx, sess, task.Message)
	if err != nil {
		return fmt.Errorf("工作流执行失败: %w", err)
	}

	e.reportProgress(ctx, task, 3)
	e.reportProgress(ctx, task, 4)

	// 覆盖持久化更新后的会话。
	if err := e.sessions.Save(ctx, updated); err != nil {
		return fmt.Errorf("保存会话失败: %w", err)
	}

	e.reportProgress(ctx, task, 5)

	result := models.TaskResult{
		Response:       updated.Response,
		SessionID:      updated.ID,
		DiagnosisStage: updated.Stage,
	}
	if err := e.status.SetSuccess(ctx, task.TaskID, result); err != nil {
		if errors.Is(err, taskqueue.ErrTerminalState) {
			// 重复投递场景：任务已被先前的执行标记为终态。
			e.logger.WithPayload(map[string]interface{}{"task_id": task.TaskID}).
				Warn("任务已处于终态，跳过结果写入")
			return nil
		}
		return fmt.Errorf("写入任务结果失败: %w", err)
	}

	e.logger.WithPayload(map[string]interface{}{
		"task_id":    task.TaskID,
		"session_id": updated.ID,
		"stage":      string(updated.Stage),
	}).Info("诊断任务完成")

	return nil
}

// reportProgress 上报一个进度检查点。进度只是状态提示，
// 上报失败降级为日志警告，不影响任务执行。
func (e *Executor) reportProgress(ctx context.Context, task models.DiagnosisTask, step int) {
	progress := models.TaskProgress{
		Current:   step,
		Total:     progressTotal,
		Status:    progressStatus[step-1],
		SessionID: task.SessionID,
	}
	if err := e.status.SetProgress(ctx, task.TaskID, progress); err != nil && !errors.Is(err, taskqueue.ErrTerminalState) {
		e.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
			"task_id": task.TaskID,
			"step":    step,
		}).Warn("上报任务进度失败")
	}
}
