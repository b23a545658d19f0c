package taskqueue

import (
	"context"
	"encoding/json"

	"OpsDiagnosis/internal/models"
	"OpsDiagnosis/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// Publisher 负责将诊断任务发布到 Kafka。
// 它复用进程级单例的 writer（生命周期由单例管理），主题在每条消息上指定。
// 消息 key 使用会话 ID 配合 Hash balancer，使同一会话的任务
// 始终进入同一分区，由同一个 worker 顺序消费。
type Publisher struct {
	writer *kafka.Writer
	topic  string
	logger *logger.Logger
}

// NewPublisher 创建一个新的 Publisher。writer 不应绑定固定主题。
func NewPublisher(writer *kafka.Writer, topic string, logger *logger.Logger) *Publisher {
	return &Publisher{
		writer: writer,
		topic:  topic,
		logger: logger,
	}
}

func (p *Publisher) message(task models.DiagnosisTask) (kafka.Message, error) {
	value, err := json.Marshal(task)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Topic: p.topic,
		Key:   []byte(task.SessionID),
		Value: value,
	}, nil
}

// Publish 发布一个诊断任务。
func (p *Publisher) Publish(ctx context.Context, task models.DiagnosisTask) error {
	msg, err := p.message(task)
	if err != nil {
		p.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to marshal task for Kafka")
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
			"task_id":    task.TaskID,
			"session_id": task.SessionID,
		}).Error("Failed to write task to Kafka")
		return err
	}
	return nil
}
