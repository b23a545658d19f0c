package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"OpsDiagnosis/internal/models"
	"OpsDiagnosis/pkg/logger"

	"github.com/go-redis/redis/v8"
)

const sessionKeyPrefix = "diagnosis_session:"

// Store 定义了会话仓储接口。任何 worker 都通过它恢复任意会话，
// 会话状态绝不保存在进程内。
type Store interface {
	// Save 持久化会话并重置过期时间，同 ID 并发写入遵循最后写入者获胜。
	Save(ctx context.Context, sess *models.Session) error
	// Load 返回会话；不存在、已过期或载荷损坏时返回 nil。
	// 成功读取会滑动刷新过期时间。
	Load(ctx context.Context, id string) (*models.Session, error)
	// Delete 删除会话，返回是否确实存在。
	Delete(ctx context.Context, id string) (bool, error)
	// Exists 检查会话是否存在。
	Exists(ctx context.Context, id string) (bool, error)
	// ListAll 返回全部会话（仅用于诊断）。
	ListAll(ctx context.Context) (map[string]*models.Session, error)
}

// RedisStore 是基于 Redis 的会话仓储实现。
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewRedisStore 创建一个新的 RedisStore。ttl 为非正值时默认 3600 秒。
func NewRedisStore(client *redis.Client, ttl time.Duration, logger *logger.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = 3600 * time.Second
	}
	return &RedisStore{client: client, ttl: ttl, logger: logger}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

// Save 将会话序列化为 JSON 写入 Redis，并重置过期时间。
func (s *RedisStore) Save(ctx context.Context, sess *models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("会话序列化失败: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(sess.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("会话保存失败: %w", err)
	}
	return nil
}

// Load 从 Redis 加载会话。损坏的载荷按会话不存在处理（记录警告后丢弃），
// 调用方会为其创建新会话而不是向上抛错。
func (s *RedisStore) Load(ctx context.Context, id string) (*models.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("会话加载失败: %w", err)
	}

	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		s.logger.WithError(models.ErrorInfo{Message: err.Error(), Type: "corrupt_session"}).
			WithPayload(map[string]interface{}{"session_id": id}).
			Warn("会话载荷损坏，按不存在处理")
		return nil, nil
	}

	// 滑动过期：每次成功读取都刷新过期窗口。
	if err := s.client.Expire(ctx, sessionKey(id), s.ttl).Err(); err != nil {
		s.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("刷新会话过期时间失败")
	}

	return &sess, nil
}

// Delete 删除会话。
func (s *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Del(ctx, sessionKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("会话删除失败: %w", err)
	}
	return n > 0, nil
}

// Exists 检查会话是否存在。
func (s *RedisStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, sessionKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("会话检查失败: %w", err)
	}
	return n > 0, nil
}

// ListAll 扫描并返回全部会话，仅用于诊断接口。
func (s *RedisStore) ListAll(ctx context.Context) (map[string]*models.Session, error) {
	sessions := make(map[string]*models.Session)

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, sessionKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("扫描会话失败: %w", err)
		}
		for _, key := range keys {
			id := strings.TrimPrefix(key, sessionKeyPrefix)
			sess, err := s.Load(ctx, id)
			if err != nil {
				return nil, err
			}
			if sess != nil {
				sessions[id] = sess
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return sessions, nil
}
