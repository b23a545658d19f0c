package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"OpsDiagnosis/internal/models"
	"OpsDiagnosis/pkg/logger"

	"github.com/go-redis/redis/v8"
)

const taskKeyPrefix = "diagnosis_task:"

// ErrTerminalState 表示任务已处于终态，拒绝任何后续状态迁移。
var ErrTerminalState = errors.New("任务已处于终态，状态不可再变更")

// StatusStore 是基于 Redis 的任务状态后端。
// 状态迁移是单调的：PENDING → PROGRESS* → (SUCCESS | FAILURE)，
// 终态写入后所有后续写入都会被拒绝。
type StatusStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewStatusStore 创建一个新的 StatusStore。ttl 控制任务状态的保留时间。
func NewStatusStore(client *redis.Client, ttl time.Duration, logger *logger.Logger) *StatusStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &StatusStore{client: client, ttl: ttl, logger: logger}
}

func taskKey(taskID string) string {
	return taskKeyPrefix + taskID
}

// Create 在任务提交时登记 PENDING 状态。
func (s *StatusStore) Create(ctx context.Context, taskID string) error {
	return s.update(ctx, &models.TaskState{
		TaskID: taskID,
		Status: models.TaskStatusPending,
	})
}

// SetProgress 更新任务进度检查点。任务已终态时返回 ErrTerminalState。
func (s *StatusStore) SetProgress(ctx context.Context, taskID string, progress models.TaskProgress) error {
	return s.update(ctx, &models.TaskState{
		TaskID:   taskID,
		Status:   models.TaskStatusProgress,
		Progress: &progress,
	})
}

// SetSuccess 将任务置为 SUCCESS 终态并记录扁平结果载荷。
func (s *StatusStore) SetSuccess(ctx context.Context, taskID string, result models.TaskResult) error {
	return s.update(ctx, &models.TaskState{
		TaskID: taskID,
		Status: models.TaskStatusSuccess,
		Result: &result,
	})
}

// SetFailure 将任务置为 FAILURE 终态并记录错误文本。
func (s *StatusStore) SetFailure(ctx context.Context, taskID string, errText string) error {
	return s.update(ctx, &models.TaskState{
		TaskID: taskID,
		Status: models.TaskStatusFailure,
		Error:  errText,
	})
}

// Get 返回任务状态；任务不存在或已过期时返回 nil。
func (s *StatusStore) Get(ctx context.Context, taskID string) (*models.TaskState, error) {
	data, err := s.client.Get(ctx, taskKey(taskID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取任务状态失败: %w", err)
	}

	var state models.TaskState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("任务状态解析失败: %w", err)
	}
	return &state, nil
}

// update 通过 WATCH 乐观事务写入任务状态：读到终态立即拒绝写入，
// 并发写入者之间的冲突由事务失败加重试解决，终态因此不可能被覆盖。
func (s *StatusStore) update(ctx context.Context, state *models.TaskState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("任务状态序列化失败: %w", err)
	}
	key := taskKey(state.TaskID)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			var current models.TaskState
			if jsonErr := json.Unmarshal(data, &current); jsonErr == nil && current.Status.Terminal() {
				return ErrTerminalState
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < 3; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil && !errors.Is(err, ErrTerminalState) {
			return fmt.Errorf("写入任务状态失败: %w", err)
		}
		return err
	}
	return fmt.Errorf("写入任务状态失败: %w", redis.TxFailedErr)
}
