package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"OpsDiagnosis/internal/models"
	"OpsDiagnosis/internal/session"
	"OpsDiagnosis/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// TaskHandler 是 worker 对单个任务的处理契约。
// 实现负责上报进度并在成功时写入 SUCCESS 终态；
// 返回的错误由 worker 转换为 FAILURE 终态。
type TaskHandler interface {
	Handle(ctx context.Context, task models.DiagnosisTask) error
}

// WorkerPoolConfig 是 worker 池的运行参数。
type WorkerPoolConfig struct {
	Brokers     []string
	Topic       string
	GroupID     string
	WorkerCount int
	// HardLimit 是单个任务的硬超时：超过后任务被强制终止并标记 FAILURE。
	HardLimit time.Duration
	// SoftLimit 是硬超时前的协作式警告点，只记录日志不终止任务。
	SoftLimit time.Duration
}

// WorkerPool 消费任务主题并驱动任务执行。
// 每个 worker 一次只处理一个任务，多个 worker 跨任务并行。
type WorkerPool struct {
	cfg     WorkerPoolConfig
	handler TaskHandler
	status  *StatusStore
	locks   *session.Lock
	logger  *logger.Logger

	readers []*kafka.Reader
	wg      sync.WaitGroup
}

// NewWorkerPool 创建一个新的 WorkerPool。
func NewWorkerPool(cfg WorkerPoolConfig, handler TaskHandler, status *StatusStore, locks *session.Lock, logger *logger.Logger) *WorkerPool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.HardLimit <= 0 {
		cfg.HardLimit = 300 * time.Second
	}
	if cfg.SoftLimit <= 0 || cfg.SoftLimit >= cfg.HardLimit {
		cfg.SoftLimit = cfg.HardLimit * 4 / 5
	}
	return &WorkerPool{
		cfg:     cfg,
		handler: handler,
		status:  status,
		locks:   locks,
		logger:  logger,
	}
}

// Start 启动全部 worker。每个 worker 持有同一消费组内的独立 reader。
func (w *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < w.cfg.WorkerCount; i++ {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  w.cfg.Brokers,
			GroupID:  w.cfg.GroupID,
			Topic:    w.cfg.Topic,
			MinBytes: 1,
			MaxBytes: 10e6, // 10MB
		})
		w.readers = append(w.readers, reader)

		w.wg.Add(1)
		go w.run(ctx, i, reader)
	}
}

func (w *WorkerPool) run(ctx context.Context, workerID int, reader *kafka.Reader) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			w.logger.WithPayload(map[string]interface{}{"worker": workerID}).Info("Stopping diagnosis worker...")
			return
		default:
			msg, err := reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() == nil {
					w.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error fetching message from Kafka")
				}
				continue
			}

			w.processMessage(ctx, msg)

			// at-least-once：处理完成后才提交位点。
			if err := reader.CommitMessages(ctx, msg); err != nil {
				w.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to commit Kafka message")
			}
		}
	}
}

// processMessage 处理一条任务消息：取会话锁、带超时执行、落终态。
// 任何失败都转换为任务 FAILURE，绝不让 worker 进程崩溃。
func (w *WorkerPool) processMessage(ctx context.Context, msg kafka.Message) {
	var task models.DiagnosisTask
	if err := json.Unmarshal(msg.Value, &task); err != nil {
		w.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
			"partition": msg.Partition,
			"offset":    msg.Offset,
		}).Error("丢弃无法解析的任务消息")
		return
	}

	taskLogger := w.logger.WithPayload(map[string]interface{}{
		"task_id":    task.TaskID,
		"session_id": task.SessionID,
	})

	// 会话级互斥：队列本身不保证同会话任务串行，这里显式加锁。
	token, err := w.locks.Acquire(ctx, task.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionBusy) {
			w.failTask(ctx, task.TaskID, "会话正在被其他任务处理，请稍后重试")
			return
		}
		w.failTask(ctx, task.TaskID, fmt.Sprintf("获取会话锁失败: %v", err))
		return
	}
	defer func() {
		if err := w.locks.Release(context.Background(), task.SessionID, token); err != nil {
			taskLogger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("释放会话锁失败")
		}
	}()

	// 硬超时：强制终止任务执行。
	taskCtx, cancel := context.WithTimeout(ctx, w.cfg.HardLimit)
	defer cancel()

	// 软超时：只发出警告，不打断执行。
	softTimer := time.AfterFunc(w.cfg.SoftLimit, func() {
		taskLogger.WithPayload(map[string]interface{}{
			"soft_limit": w.cfg.SoftLimit.String(),
		}).Warn("任务执行超过软超时，接近强制终止")
	})
	defer softTimer.Stop()

	if err := w.handler.Handle(taskCtx, task); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			w.failTask(ctx, task.TaskID, fmt.Sprintf("任务超时：执行超过硬性时间限制 %s", w.cfg.HardLimit))
			return
		}
		w.failTask(ctx, task.TaskID, fmt.Sprintf("任务失败: %v", err))
	}
}

func (w *WorkerPool) failTask(ctx context.Context, taskID, reason string) {
	if err := w.status.SetFailure(ctx, taskID, reason); err != nil && !errors.Is(err, ErrTerminalState) {
		w.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
			"task_id": taskID,
		}).Error("写入任务失败状态时出错")
	}
}

// Close 关闭全部 reader 并等待 worker 退出。
func (w *WorkerPool) Close() error {
	var errs []error
	for _, reader := range w.readers {
		if err := reader.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	w.wg.Wait()
	if len(errs) > 0 {
		return fmt.Errorf("关闭 worker 池时发生多个错误: %v", errs)
	}
	return nil
}
