package workflow

import (
	"context"

	"OpsDiagnosis/internal/models"
	"OpsDiagnosis/pkg/logger"
)

// Engine 是诊断工作流引擎：一张以会话阶段为状态的有向图，
// 带条件分支和两条回环边（澄清回环、确认后回环）。
//
// Step 是可重入的：每个任务调用恰好执行一次，从会话当前阶段进入，
// 顺序执行节点，直到需要用户回复（澄清提问或确认询问）或对话结束。
// 阶段只沿图中定义的回环边回退，绝不随意回退。
type Engine struct {
	caps   Capabilities
	logger *logger.Logger
}

// NewEngine 创建一个新的工作流引擎。
func NewEngine(caps Capabilities, logger *logger.Logger) *Engine {
	return &Engine{caps: caps, logger: logger}
}

// Step 在会话上推进一步工作流，返回更新后的新会话（输入会话不被修改）。
// 节点级失败在节点内部降级处理；这里只有上下文取消会作为错误向上传播。
func (e *Engine) Step(ctx context.Context, sess *models.Session, input string) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	work := sess.Clone()
	work.Response = ""
	work.AppendMessage(models.RoleUser, input)

	e.logger.WithPayload(map[string]interface{}{
		"session_id": work.ID,
		"stage":      string(work.Stage),
	}).Debug("工作流开始执行")

	switch work.Stage {
	case models.StageWelcome:
		work = welcomeNode(work)
		// 首轮回复以欢迎语开头，后续节点的输出接在其后。
		greeting := work.Response
		work = e.runDiagnosisPath(ctx, work, input)
		if greeting != "" && work.Response != "" {
			work.Response = greeting + "\n\n" + work.Response
		} else if greeting != "" {
			work.Response = greeting
		}

	case models.StageConfirmation:
		work = e.routeConfirmation(ctx, work, input)

	default:
		// symptom_collection / information_collection 及分析中间态
		// 都从症状收集重新进入，合并本轮补充的信息。
		work = e.runDiagnosisPath(ctx, work, input)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 节点契约：任何调用都不允许留下空回复。
	if work.Response == "" {
		work.Response = genericResponseText
	}
	work.AppendMessage(models.RoleAssistant, work.Response)

	e.logger.WithPayload(map[string]interface{}{
		"session_id": work.ID,
		"stage":      string(work.Stage),
	}).Debug("工作流执行结束")

	return work, nil
}

// runDiagnosisPath 执行主诊断路径：
// 症状收集 → (信息不足时澄清提问并停下) → 知识检索 → 根因分析 → 方案生成 → 确认询问。
func (e *Engine) runDiagnosisPath(ctx context.Context, sess *models.Session, input string) *models.Session {
	sess = collectSymptomsNode(ctx, sess, input, e.caps)

	decision := RouteAfterSymptomCollection(sess)
	e.logger.WithPayload(map[string]interface{}{
		"session_id": sess.ID,
		"decision":   decision.String(),
	}).Debug("症状收集后路由")

	if decision == RouteNeedsInfo {
		var asked bool
		sess, asked = askClarifyingQuestionsNode(ctx, sess, e.caps)
		if asked {
			return sess
		}
		// 没有缺失项则继续向下分析。
	}

	sess = retrieveKnowledgeNode(ctx, sess, input, e.caps)
	sess = analyzeRootCauseNode(ctx, sess, e.caps)
	sess = generateSolutionNode(ctx, sess, e.caps)
	sess = confirmResolutionNode(ctx, sess, e.caps)
	return sess
}

// routeConfirmation 处理确认阶段的用户回复。
func (e *Engine) routeConfirmation(ctx context.Context, sess *models.Session, input string) *models.Session {
	decision := RouteAfterConfirmation(input)
	e.logger.WithPayload(map[string]interface{}{
		"session_id": sess.ID,
		"decision":   decision.String(),
	}).Debug("确认后路由")

	switch decision {
	case RouteSolved:
		sess.Solved = true
		sess.Response = solvedText
		return sess

	case RouteNeedsMoreHelp:
		// 回环边：确认 → 症状收集，带着用户的补充描述继续诊断。
		sess.Stage = models.StageSymptomCollection
		return e.runDiagnosisPath(ctx, sess, input)

	default:
		// 新问题：回到欢迎节点重新开始诊断。
		// 历史与已确认症状按会话不变量保留，问题分类重新判定。
		sess.Stage = models.StageWelcome
		sess.ProblemType = "unknown"
		sess = welcomeNode(sess)
		return e.runDiagnosisPath(ctx, sess, input)
	}
}
