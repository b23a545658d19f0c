package workflow

import (
	"encoding/json"
	"fmt"

	"OpsDiagnosis/internal/models"
)

// 面向用户的固定文案。节点调用外部能力失败时降级为这些文本，
// 保证每次调用都能产生尽力而为的回复。
const (
	welcomeText = `您好！我是运维智能诊断助手。我可以帮助您诊断服务器故障问题。
请详细描述您遇到的问题，例如：
- 具体的错误信息
- 问题发生的时间
- 影响的系统范围
- 您已经尝试过的解决方法`

	fallbackClarifyText      = "请提供更多关于这个问题的详细信息。"
	fallbackRootCauseText    = "无法确定具体根本原因"
	fallbackSolutionText     = "无法生成具体的解决方案。"
	fallbackConfirmationText = "问题是否已经解决？如果需要进一步帮助，请告诉我。"
	solvedText               = "很高兴问题已经解决！如果以后遇到新的运维问题，随时可以找我。"
	genericResponseText      = "抱歉，我暂时无法理解您的问题，请再描述一下具体的故障现象。"
)

// requiredInfoTemplates 定义了每种问题类型在进入根因分析前需要收集的关键信息，
// 按重要程度排序。澄清节点每轮只询问第一个缺失项。
var requiredInfoTemplates = map[string][]string{
	"cpu_high":      {"发生时间", "影响范围", "具体错误信息", "最近系统变更"},
	"memory_issue":  {"OOM发生时间", "内存使用趋势", "Java堆配置", "应用日志"},
	"disk_issue":    {"磁盘使用率", "增长最快的目录", "日志文件大小", "清理历史"},
	"network_issue": {"延迟具体数值", "影响的服务", "网络拓扑", "ISP信息"},
	"general":       {"错误信息", "发生时间", "影响范围", "最近变更"},
}

// RequiredFields 返回指定问题类型的必填信息列表，未知类型回落到通用模板。
func RequiredFields(problemType string) []string {
	if fields, ok := requiredInfoTemplates[problemType]; ok {
		return fields
	}
	return requiredInfoTemplates["general"]
}

// MissingFields 返回尚未收集到的必填信息，保持模板中的顺序。
func MissingFields(problemType string, collected map[string]interface{}) []string {
	var missing []string
	for _, field := range RequiredFields(problemType) {
		v, ok := collected[field]
		if !ok || isBlank(v) {
			missing = append(missing, field)
		}
	}
	return missing
}

func isBlank(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []string:
		return len(t) == 0
	case []interface{}:
		return len(t) == 0
	}
	return false
}

// SymptomAnalysis 是症状提取节点期望 LLM 返回的结构。
type SymptomAnalysis struct {
	Symptoms      []string `json:"symptoms"`       // 主要症状（如CPU高、内存不足、磁盘满等）
	ErrorMessages []string `json:"error_messages"` // 错误信息或日志内容
	TimePattern   string   `json:"time_pattern"`   // 问题发生的时间和频率
	ImpactScope   string   `json:"impact_scope"`   // 影响的范围
	ProblemType   string   `json:"problem_type"`   // 推测的问题类型
}

// RootCauseResult 是根因分析节点期望 LLM 返回的结构。
type RootCauseResult struct {
	AffectedComponents []string `json:"affected_components"` // 受影响组件
	VerificationSteps  []string `json:"verification_steps"`  // 验证步骤
	RootCause          string   `json:"root_cause"`          // 根本原因分析
}

func symptomAnalysisPrompt(userInput string) string {
	return fmt.Sprintf(`请分析以下用户描述的运维问题，提取关键症状和信息。

只返回一个 JSON 对象，不要附加任何解释，结构如下：
{"symptoms": ["主要症状"], "error_messages": ["错误信息或日志内容"], "time_pattern": "问题发生的时间和频率", "impact_scope": "影响的范围", "problem_type": "问题类型"}

problem_type 必须是以下之一: cpu_high, memory_issue, disk_issue, network_issue, general

用户描述: %s

错误信息示例:
- 用户说"CPU很高" → error_messages: ["CPU使用率超过90%%", "系统负载异常"]
- 用户说"内存不足" → error_messages: ["内存使用率98%%", "OOM错误风险"]
- 用户说"磁盘满了" → error_messages: ["磁盘使用率95%%", "空间不足警告"]`, userInput)
}

func clarifyingQuestionPrompt(problemType string, collected map[string]interface{}, missingField string) string {
	collectedJSON, _ := json.Marshal(collected)
	return fmt.Sprintf(`基于以下诊断情况，请生成一个专业但友好的问题来询问用户：

问题类型: %s
已收集信息: %s
还需要的信息: %s

请生成一个具体的问题来询问关于"%s"的信息，只返回问题本身。`,
		problemType, collectedJSON, missingField, missingField)
}

func rootCausePrompt(sess *models.Session) string {
	infoJSON, _ := json.Marshal(sess.CollectedInfo)
	return fmt.Sprintf(`作为资深运维工程师，请分析以下故障的根本原因。

只返回一个 JSON 对象，不要附加任何解释，结构如下：
{"affected_components": ["受影响组件"], "verification_steps": ["验证步骤"], "root_cause": "根本原因分析"}

症状总结: %v
收集到的信息: %s
相关知识库案例: %s`, sess.ConfirmedSymptoms, infoJSON, sess.RetrievedKnowledge)
}

func solutionPrompt(sess *models.Session) string {
	return fmt.Sprintf(`基于以下分析，生成具体的解决方案：

问题类型: %s
根本原因: %s
相关案例: %s

请提供：
1. 具体的解决步骤
2. 需要执行的命令
3. 风险提示和回滚方案
4. 预防措施

用清晰的中文回复，包含具体的命令和操作步骤。`,
		sess.ProblemType, sess.RootCauseAnalysis(), sess.RetrievedKnowledge)
}

func confirmationPrompt() string {
	return `请询问用户问题是否已经解决，或者是否需要进一步的帮助。请用友好的语气询问，只返回询问本身。`
}
