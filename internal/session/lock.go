package session

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const lockKeyPrefix = "diagnosis_session_lock:"

// 仅当持有者的 token 匹配时才释放锁，避免释放他人持有的锁。
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// ErrSessionBusy 表示会话已被另一个 worker 占用。
var ErrSessionBusy = fmt.Errorf("会话正在被其他任务处理")

// Lock 是会话级互斥锁。任务队列不保证同一会话的任务串行投递，
// worker 在执行前必须先取得该会话的锁，否则放弃本次执行。
type Lock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLock 创建一个新的会话锁管理器。ttl 应不小于任务的硬超时，
// 以保证持锁 worker 崩溃后锁最终会自动过期。
func NewLock(client *redis.Client, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	return &Lock{client: client, ttl: ttl}
}

// Acquire 尝试获取指定会话的锁。成功时返回释放用的 token，
// 会话已被占用时返回 ErrSessionBusy。
func (l *Lock) Acquire(ctx context.Context, sessionID string) (string, error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, lockKeyPrefix+sessionID, token, l.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("获取会话锁失败: %w", err)
	}
	if !ok {
		return "", ErrSessionBusy
	}
	return token, nil
}

// Release 释放指定会话的锁。token 不匹配时不做任何操作。
func (l *Lock) Release(ctx context.Context, sessionID, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{lockKeyPrefix + sessionID}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("释放会话锁失败: %w", err)
	}
	return nil
}
