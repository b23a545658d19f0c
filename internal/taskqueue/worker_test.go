package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"OpsDiagnosis/internal/models"
	"OpsDiagnosis/internal/session"
	"OpsDiagnosis/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

type recordingHandler struct {
	tasks []models.DiagnosisTask
	fn    func(ctx context.Context, task models.DiagnosisTask) error
}

func (h *recordingHandler) Handle(ctx context.Context, task models.DiagnosisTask) error {
	h.tasks = append(h.tasks, task)
	if h.fn != nil {
		return h.fn(ctx, task)
	}
	return nil
}

func newTestPool(t *testing.T, handler TaskHandler, hardLimit time.Duration) (*WorkerPool, *StatusStore, *session.Lock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	log := logger.New("worker-test", "", "")

	status := NewStatusStore(client, 24*time.Hour, log)
	locks := session.NewLock(client, time.Minute)
	pool := NewWorkerPool(WorkerPoolConfig{
		Topic:       "diagnosis.tasks",
		GroupID:     "diagnosis-worker-group",
		WorkerCount: 1,
		HardLimit:   hardLimit,
	}, handler, status, locks, log)
	return pool, status, locks
}

func taskMessage(t *testing.T, task models.DiagnosisTask) kafka.Message {
	t.Helper()
	data, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}
	return kafka.Message{Key: []byte(task.SessionID), Value: data}
}

func TestProcessMessageInvokesHandler(t *testing.T) {
	handler := &recordingHandler{}
	pool, status, locks := newTestPool(t, handler, time.Minute)
	ctx := context.Background()

	task := models.DiagnosisTask{TaskID: "t1", SessionID: "s1", Message: "CPU很高"}
	_ = status.Create(ctx, task.TaskID)

	pool.processMessage(ctx, taskMessage(t, task))

	if len(handler.tasks) != 1 || handler.tasks[0].TaskID != "t1" || handler.tasks[0].Message != "CPU很高" {
		t.Fatalf("handler did not receive the decoded task: %+v", handler.tasks)
	}
	// 成功路径不由 worker 写终态。
	state, _ := status.Get(ctx, "t1")
	if state.Status == models.TaskStatusFailure {
		t.Errorf("successful task must not be marked FAILURE: %+v", state)
	}
	// 处理结束后会话锁已释放。
	if _, err := locks.Acquire(ctx, "s1"); err != nil {
		t.Errorf("session lock was not released: %v", err)
	}
}

func TestProcessMessageHandlerError(t *testing.T) {
	handler := &recordingHandler{fn: func(ctx context.Context, task models.DiagnosisTask) error {
		return errors.New("存储不可用")
	}}
	pool, status, _ := newTestPool(t, handler, time.Minute)
	ctx := context.Background()

	task := models.DiagnosisTask{TaskID: "t2", SessionID: "s2", Message: "磁盘满了"}
	_ = status.Create(ctx, task.TaskID)

	pool.processMessage(ctx, taskMessage(t, task))

	state, _ := status.Get(ctx, "t2")
	if state.Status != models.TaskStatusFailure {
		t.Fatalf("status = %s, want FAILURE", state.Status)
	}
	if !strings.Contains(state.Error, "存储不可用") {
		t.Errorf("failure reason lost: %q", state.Error)
	}
}

func TestProcessMessageHardTimeout(t *testing.T) {
	handler := &recordingHandler{fn: func(ctx context.Context, task models.DiagnosisTask) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	pool, status, _ := newTestPool(t, handler, 50*time.Millisecond)
	ctx := context.Background()

	task := models.DiagnosisTask{TaskID: "t3", SessionID: "s3", Message: "内存不足"}
	_ = status.Create(ctx, task.TaskID)

	pool.processMessage(ctx, taskMessage(t, task))

	state, _ := status.Get(ctx, "t3")
	if state.Status != models.TaskStatusFailure {
		t.Fatalf("status = %s, want FAILURE", state.Status)
	}
	if !strings.Contains(state.Error, "任务超时") {
		t.Errorf("timeout must produce a dedicated failure reason, got %q", state.Error)
	}
}

func TestProcessMessageSessionBusy(t *testing.T) {
	handler := &recordingHandler{}
	pool, status, locks := newTestPool(t, handler, time.Minute)
	ctx := context.Background()

	// 模拟另一个 worker 正持有该会话的锁。
	if _, err := locks.Acquire(ctx, "s4"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	task := models.DiagnosisTask{TaskID: "t4", SessionID: "s4", Message: "网络很慢"}
	_ = status.Create(ctx, task.TaskID)

	pool.processMessage(ctx, taskMessage(t, task))

	if len(handler.tasks) != 0 {
		t.Error("handler must not run while the session is locked")
	}
	state, _ := status.Get(ctx, "t4")
	if state.Status != models.TaskStatusFailure || !strings.Contains(state.Error, "会话正在被其他任务处理") {
		t.Errorf("unexpected state for a busy session: %+v", state)
	}
}

func TestProcessMessageDropsBadPayload(t *testing.T) {
	handler := &recordingHandler{}
	pool, _, _ := newTestPool(t, handler, time.Minute)

	pool.processMessage(context.Background(), kafka.Message{Value: []byte("{not json")})

	if len(handler.tasks) != 0 {
		t.Error("unparseable messages must be dropped without invoking the handler")
	}
}

func TestWorkerPoolConfigDefaults(t *testing.T) {
	pool, _, _ := newTestPool(t, &recordingHandler{}, 0)

	if pool.cfg.WorkerCount != 1 {
		t.Errorf("WorkerCount = %d, want 1", pool.cfg.WorkerCount)
	}
	if pool.cfg.HardLimit != 300*time.Second {
		t.Errorf("HardLimit = %s, want 300s", pool.cfg.HardLimit)
	}
	if pool.cfg.SoftLimit != 240*time.Second {
		t.Errorf("SoftLimit = %s, want 240s", pool.cfg.SoftLimit)
	}
}
