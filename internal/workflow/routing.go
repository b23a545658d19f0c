package workflow

import (
	"strings"

	"OpsDiagnosis/internal/models"
)

// SymptomRoute 是症状收集节点之后的路由决策。
type SymptomRoute int

const (
	// RouteNeedsInfo 表示信息不足，需要向用户追问。
	RouteNeedsInfo SymptomRoute = iota
	// RouteHasEnoughInfo 表示信息充分，可以进入知识检索。
	RouteHasEnoughInfo
)

func (r SymptomRoute) String() string {
	switch r {
	case RouteNeedsInfo:
		return "needs_info"
	case RouteHasEnoughInfo:
		return "has_enough_info"
	}
	return "unknown"
}

// ConfirmationRoute 是确认节点之后的路由决策。
type ConfirmationRoute int

const (
	// RouteNewProblem 是默认分支：输入不匹配任何关键词集合，按新问题处理。
	RouteNewProblem ConfirmationRoute = iota
	// RouteSolved 表示用户确认问题已解决。
	RouteSolved
	// RouteNeedsMoreHelp 表示问题仍未解决，回到症状收集。
	RouteNeedsMoreHelp
)

func (r ConfirmationRoute) String() string {
	switch r {
	case RouteSolved:
		return "solved"
	case RouteNeedsMoreHelp:
		return "needs_more_help"
	case RouteNewProblem:
		return "new_problem"
	}
	return "unknown"
}

// 确认关键词集合。中文来自原始话术，英文补充常见表达。
var (
	closingKeywords      = []string{"解决", "好了", "可以了", "谢谢", "resolved", "solved", "done", "thanks"}
	continuationKeywords = []string{"没有", "还不行", "另外", "还有", "no", "still", "also", "another"}
)

// RouteAfterSymptomCollection 决定症状收集之后的走向。
// 启发式规则：至少一个已确认症状且收集到错误信息时即可进入检索。
// 相同的会话状态总是产生相同的决策。
func RouteAfterSymptomCollection(sess *models.Session) SymptomRoute {
	if len(sess.ConfirmedSymptoms) >= 1 && hasErrorMessages(sess.CollectedInfo) {
		return RouteHasEnoughInfo
	}
	return RouteNeedsInfo
}

func hasErrorMessages(collected map[string]interface{}) bool {
	switch v := collected["error_messages"].(type) {
	case []string:
		return len(v) > 0
	case []interface{}:
		// JSON 反序列化后的列表形态
		return len(v) > 0
	case string:
		return v != ""
	}
	return false
}

// RouteAfterConfirmation 对确认阶段的用户输入做大小写不敏感的子串匹配。
// 结束关键词优先于继续关键词；都不匹配时按新问题处理。
func RouteAfterConfirmation(input string) ConfirmationRoute {
	lowered := strings.ToLower(input)
	for _, kw := range closingKeywords {
		if strings.Contains(lowered, kw) {
			return RouteSolved
		}
	}
	for _, kw := range continuationKeywords {
		if strings.Contains(lowered, kw) {
			return RouteNeedsMoreHelp
		}
	}
	return RouteNewProblem
}
