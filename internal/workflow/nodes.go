package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"OpsDiagnosis/internal/knowledge"
	"OpsDiagnosis/internal/models"
)

// 节点都是纯函数：接收当前会话、最新用户输入和外部能力，返回更新后的会话。
// 外部能力的失败在节点边界被捕获并降级为安全默认值，绝不中断工作流。

// welcomeNode 初始化对话。只有会话的第一轮才输出欢迎语。
func welcomeNode(sess *models.Session) *models.Session {
	if len(sess.History) <= 1 {
		sess.Response = welcomeText
	}
	sess.Stage = models.StageSymptomCollection
	return sess
}

// collectSymptomsNode 让 LLM 对用户输入做非结构化分类，
// 提取症状、错误信息、时间模式、影响范围和问题类型。
// 提取失败时降级为 problem_type="unknown"，已收集的字段不会丢失。
func collectSymptomsNode(ctx context.Context, sess *models.Session, input string, caps Capabilities) *models.Session {
	sess.Stage = models.StageSymptomCollection

	raw, err := caps.LLM.Generate(ctx, symptomAnalysisPrompt(input))
	if err != nil {
		sess.ProblemType = "unknown"
		return sess
	}

	var analysis SymptomAnalysis
	if err := json.Unmarshal(extractJSON(raw), &analysis); err != nil {
		sess.ProblemType = "unknown"
		return sess
	}

	sess.AddSymptoms(analysis.Symptoms)
	sess.MergeInfo(map[string]interface{}{
		"error_messages": analysis.ErrorMessages,
		"time_pattern":   analysis.TimePattern,
		"impact_scope":   analysis.ImpactScope,
	})
	if analysis.ProblemType != "" {
		sess.ProblemType = analysis.ProblemType
	} else {
		sess.ProblemType = "unknown"
	}

	return sess
}

// askClarifyingQuestionsNode 询问第一个缺失的必填信息，每轮只问一项。
// 返回值 asked 表示是否真的提出了问题；没有缺失项时引擎直接进入知识检索。
func askClarifyingQuestionsNode(ctx context.Context, sess *models.Session, caps Capabilities) (*models.Session, bool) {
	missing := MissingFields(sess.ProblemType, sess.CollectedInfo)
	if len(missing) == 0 {
		return sess, false
	}

	sess.Stage = models.StageInformationCollection

	question, err := caps.LLM.Generate(ctx, clarifyingQuestionPrompt(sess.ProblemType, sess.CollectedInfo, missing[0]))
	if err != nil || strings.TrimSpace(question) == "" {
		question = fallbackClarifyText
	}
	sess.Response = question
	return sess, true
}

// retrieveKnowledgeNode 以已确认症状加本轮输入为查询词检索历史故障案例。
// 检索失败或结果为空时使用固定的"未找到相关案例"文本。
func retrieveKnowledgeNode(ctx context.Context, sess *models.Session, input string, caps Capabilities) *models.Session {
	sess.Stage = models.StageKnowledgeRetrieval

	query := strings.TrimSpace(strings.Join(sess.ConfirmedSymptoms, " ") + " " + input)
	cases, err := caps.Retriever.Search(ctx, query, caps.TopK)
	if err != nil {
		sess.RetrievedKnowledge = knowledge.NoKnowledgeFound
		return sess
	}
	sess.RetrievedKnowledge = knowledge.FormatKnowledge(cases)
	return sess
}

// analyzeRootCauseNode 结合症状、已收集信息和检索到的案例分析根本原因。
func analyzeRootCauseNode(ctx context.Context, sess *models.Session, caps Capabilities) *models.Session {
	sess.Stage = models.StageRootCauseAnalysis

	rootCause := fallbackRootCauseText
	raw, err := caps.LLM.Generate(ctx, rootCausePrompt(sess))
	if err == nil {
		var result RootCauseResult
		if jsonErr := json.Unmarshal(extractJSON(raw), &result); jsonErr == nil && result.RootCause != "" {
			rootCause = result.RootCause
		}
	}
	sess.CollectedInfo["root_cause_analysis"] = rootCause
	return sess
}

// generateSolutionNode 基于根因分析生成解决方案。
func generateSolutionNode(ctx context.Context, sess *models.Session, caps Capabilities) *models.Session {
	sess.Stage = models.StageSolutionGeneration

	solution, err := caps.LLM.Generate(ctx, solutionPrompt(sess))
	if err != nil || strings.TrimSpace(solution) == "" {
		solution = fallbackSolutionText
	}
	sess.Solution = solution
	sess.Response = solution
	return sess
}

// confirmResolutionNode 在方案之后向用户询问问题是否解决。
func confirmResolutionNode(ctx context.Context, sess *models.Session, caps Capabilities) *models.Session {
	sess.Stage = models.StageConfirmation

	question, err := caps.LLM.Generate(ctx, confirmationPrompt())
	if err != nil || strings.TrimSpace(question) == "" {
		question = fallbackConfirmationText
	}
	sess.Response = fmt.Sprintf("%s\n\n%s", sess.Solution, question)
	return sess
}

// extractJSON 从模型输出中宽容地截取 JSON 对象：
// 取第一个 '{' 到最后一个 '}' 之间的内容，容忍代码块标记等前后缀。
func extractJSON(raw string) []byte {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return []byte(raw)
	}
	return []byte(raw[start : end+1])
}
