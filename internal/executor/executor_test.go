package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"OpsDiagnosis/internal/models"
	"OpsDiagnosis/internal/taskqueue"
	"OpsDiagnosis/internal/workflow"
	"OpsDiagnosis/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

type scriptedLLM struct{}

func (scriptedLLM) Generate(ctx context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "请分析以下用户描述的运维问题"):
		return `{"symptoms": ["磁盘满"], "error_messages": ["磁盘使用率95%"], "time_pattern": "持续一周", "impact_scope": "日志服务", "problem_type": "disk_issue"}`, nil
	case strings.Contains(prompt, "作为资深运维工程师"):
		return `{"affected_components": ["日志目录"], "verification_steps": ["du -sh"], "root_cause": "日志未轮转撑满磁盘"}`, nil
	case strings.Contains(prompt, "生成具体的解决方案"):
		return "配置 logrotate 并清理历史日志", nil
	case strings.Contains(prompt, "是否已经解决"):
		return "请问问题是否已经解决？", nil
	}
	return "", errors.New("未识别的提示词")
}

type emptyRetriever struct{}

func (emptyRetriever) Search(ctx context.Context, query string, topK int) ([]models.FaultCase, error) {
	return nil, nil
}

// memStore 是仅用于测试的内存会话仓储。
type memStore struct {
	sessions map[string]*models.Session
	failSave bool
}

func newMemStore() *memStore {
	return &memStore{sessions: map[string]*models.Session{}}
}

func (m *memStore) Save(ctx context.Context, sess *models.Session) error {
	if m.failSave {
		return errors.New("存储不可用")
	}
	m.sessions[sess.ID] = sess
	return nil
}

func (m *memStore) Load(ctx context.Context, id string) (*models.Session, error) {
	return m.sessions[id], nil
}

func (m *memStore) Delete(ctx context.Context, id string) (bool, error) {
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	return ok, nil
}

func (m *memStore) Exists(ctx context.Context, id string) (bool, error) {
	_, ok := m.sessions[id]
	return ok, nil
}

func (m *memStore) ListAll(ctx context.Context) (map[string]*models.Session, error) {
	return m.sessions, nil
}

func newTestExecutor(t *testing.T, store *memStore) (*Executor, *taskqueue.StatusStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	log := logger.New("executor-test", "", "")
	status := taskqueue.NewStatusStore(client, 24*time.Hour, log)

	caps := workflow.Capabilities{LLM: scriptedLLM{}, Retriever: emptyRetriever{}, TopK: 3}
	engine := workflow.NewEngine(caps, log)
	return New(engine, store, status, log), status
}

func TestHandleCreatesSessionAndSucceeds(t *testing.T) {
	store := newMemStore()
	exec, status := newTestExecutor(t, store)
	ctx := context.Background()

	task := models.DiagnosisTask{TaskID: "t1", Message: "磁盘满了，服务写不进日志"}
	if err := status.Create(ctx, task.TaskID); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := exec.Handle(ctx, task); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	state, err := status.Get(ctx, task.TaskID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if state.Status != models.TaskStatusSuccess {
		t.Fatalf("status = %s, want SUCCESS", state.Status)
	}
	if state.Result == nil || state.Result.Response == "" {
		t.Fatalf("missing result payload: %+v", state)
	}
	if state.Result.SessionID == "" {
		t.Error("a session id must be assigned when the task carries none")
	}
	if state.Result.DiagnosisStage != models.StageConfirmation {
		t.Errorf("result stage = %s, want confirmation", state.Result.DiagnosisStage)
	}

	// 会话被持久化，后续任务可以恢复。
	saved := store.sessions[state.Result.SessionID]
	if saved == nil {
		t.Fatal("session was not persisted")
	}
	if saved.ProblemType != "disk_issue" {
		t.Errorf("persisted session problem type = %s", saved.ProblemType)
	}
}

func TestHandleResumesExistingSession(t *testing.T) {
	store := newMemStore()
	exec, status := newTestExecutor(t, store)
	ctx := context.Background()

	prior := models.NewSession("s-existing")
	prior.Stage = models.StageConfirmation
	prior.Solution = "配置 logrotate"
	store.sessions[prior.ID] = prior

	task := models.DiagnosisTask{TaskID: "t2", SessionID: "s-existing", Message: "谢谢，问题解决了"}
	if err := status.Create(ctx, task.TaskID); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := exec.Handle(ctx, task); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	saved := store.sessions["s-existing"]
	if saved == nil || !saved.Solved {
		t.Errorf("expected the resumed session to be marked solved: %+v", saved)
	}
	state, _ := status.Get(ctx, task.TaskID)
	if state.Result == nil || state.Result.SessionID != "s-existing" {
		t.Errorf("result must reference the existing session: %+v", state)
	}
}

func TestHandleSaveFailure(t *testing.T) {
	store := newMemStore()
	store.failSave = true
	exec, status := newTestExecutor(t, store)
	ctx := context.Background()

	task := models.DiagnosisTask{TaskID: "t3", Message: "磁盘满了"}
	if err := status.Create(ctx, task.TaskID); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := exec.Handle(ctx, task); err == nil {
		t.Fatal("expected an error when the session cannot be persisted")
	}

	// 失败由 worker 转换为 FAILURE，执行器自己不写终态。
	state, _ := status.Get(ctx, task.TaskID)
	if state.Status.Terminal() {
		t.Errorf("executor must not write a terminal state on failure, got %s", state.Status)
	}
}

func TestHandleRedelivery(t *testing.T) {
	store := newMemStore()
	exec, status := newTestExecutor(t, store)
	ctx := context.Background()

	task := models.DiagnosisTask{TaskID: "t4", SessionID: "s-redeliver", Message: "磁盘满了"}
	if err := status.Create(ctx, task.TaskID); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := exec.Handle(ctx, task); err != nil {
		t.Fatalf("first Handle: %v", err)
	}

	// at-least-once 语义：重复投递不报错，终态保持第一次的结果。
	if err := exec.Handle(ctx, task); err != nil {
		t.Fatalf("redelivered Handle: %v", err)
	}
	state, _ := status.Get(ctx, task.TaskID)
	if state.Status != models.TaskStatusSuccess {
		t.Errorf("status after redelivery = %s, want SUCCESS", state.Status)
	}
}
