package models

// TaskStatus 定义了诊断任务的几种可能状态
type TaskStatus string

const (
	TaskStatusPending  TaskStatus = "PENDING"
	TaskStatusProgress TaskStatus = "PROGRESS"
	TaskStatusSuccess  TaskStatus = "SUCCESS"
	TaskStatusFailure  TaskStatus = "FAILURE"
)

// Terminal 报告该状态是否为终态。终态之后不允许任何状态迁移。
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusSuccess || s == TaskStatusFailure
}

// DiagnosisTask 是投递到任务队列中的消息体。
type DiagnosisTask struct {
	TaskID    string `json:"task_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// TaskProgress 描述任务执行到的检查点，仅作为状态提示，不构成严格的节点屏障。
type TaskProgress struct {
	Current   int    `json:"current"`
	Total     int    `json:"total"`
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

// TaskResult 是任务成功时的扁平结果载荷。
type TaskResult struct {
	Response       string         `json:"response"`
	SessionID      string         `json:"session_id"`
	DiagnosisStage DiagnosisStage `json:"diagnosis_stage"`
}

// TaskState 是任务在结果后端中的完整状态记录。
// Result 与 Error 互斥，分别对应 SUCCESS 与 FAILURE 终态。
type TaskState struct {
	TaskID   string        `json:"task_id"`
	Status   TaskStatus    `json:"status"`
	Progress *TaskProgress `json:"progress,omitempty"`
	Result   *TaskResult   `json:"result,omitempty"`
	Error    string        `json:"error,omitempty"`
}
