package models

// DiagnosisStage 定义了诊断会话所处的阶段
type DiagnosisStage string

const (
	StageWelcome               DiagnosisStage = "welcome"
	StageSymptomCollection     DiagnosisStage = "symptom_collection"
	StageInformationCollection DiagnosisStage = "information_collection"
	StageKnowledgeRetrieval    DiagnosisStage = "knowledge_retrieval"
	StageRootCauseAnalysis     DiagnosisStage = "root_cause_analysis"
	StageSolutionGeneration    DiagnosisStage = "solution_generation"
	StageConfirmation          DiagnosisStage = "confirmation"
)

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 是会话历史中的一条消息。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session 代表一个持久化的诊断会话。
// 它在每次任务调用之间穿越进程边界，因此必须保持完全可序列化。
type Session struct {
	ID                 string                 `json:"session_id"`
	Stage              DiagnosisStage         `json:"diagnosis_stage"`
	History            []Message              `json:"history"`
	ConfirmedSymptoms  []string               `json:"confirmed_symptoms"`
	CollectedInfo      map[string]interface{} `json:"collected_info"`
	ProblemType        string                 `json:"problem_type"`
	RetrievedKnowledge string                 `json:"retrieved_knowledge"`
	Solution           string                 `json:"solution"`

	// Response 是本轮产生的面向用户的回复，随会话一起持久化，
	// 但每次工作流执行都会重新生成。
	Response string `json:"response"`

	// Solved 标记用户已确认问题解决，由调用方决定是否结束会话。
	Solved bool `json:"solved"`
}

// NewSession 创建一个处于初始阶段的空会话。
func NewSession(id string) *Session {
	return &Session{
		ID:                id,
		Stage:             StageWelcome,
		History:           []Message{},
		ConfirmedSymptoms: []string{},
		CollectedInfo:     map[string]interface{}{},
		ProblemType:       "unknown",
	}
}

// AppendMessage 向会话历史追加一条消息。历史记录只增不减。
func (s *Session) AppendMessage(role, content string) {
	s.History = append(s.History, Message{Role: role, Content: content})
}

// AddSymptoms 将新症状合并进已确认症状集合，保持顺序并去重。
func (s *Session) AddSymptoms(symptoms []string) {
	seen := make(map[string]struct{}, len(s.ConfirmedSymptoms))
	for _, v := range s.ConfirmedSymptoms {
		seen[v] = struct{}{}
	}
	for _, v := range symptoms {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		s.ConfirmedSymptoms = append(s.ConfirmedSymptoms, v)
	}
}

// MergeInfo 将新收集到的字段合并进 collected_info，空值不会覆盖已有内容。
func (s *Session) MergeInfo(info map[string]interface{}) {
	if s.CollectedInfo == nil {
		s.CollectedInfo = map[string]interface{}{}
	}
	for k, v := range info {
		if isEmptyValue(v) {
			continue
		}
		s.CollectedInfo[k] = v
	}
}

// RootCauseAnalysis 返回根因分析结论。结论随诊断推进写入 collected_info，
// 以保持持久化的会话模式不变。
func (s *Session) RootCauseAnalysis() string {
	if v, ok := s.CollectedInfo["root_cause_analysis"].(string); ok {
		return v
	}
	return ""
}

// Clone 返回会话的深拷贝，供工作流引擎在其上安全地构造新会话。
func (s *Session) Clone() *Session {
	clone := *s
	clone.History = append([]Message(nil), s.History...)
	clone.ConfirmedSymptoms = append([]string(nil), s.ConfirmedSymptoms...)
	clone.CollectedInfo = make(map[string]interface{}, len(s.CollectedInfo))
	for k, v := range s.CollectedInfo {
		clone.CollectedInfo[k] = v
	}
	return &clone
}

func isEmptyValue(v interface{}) bool {
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
