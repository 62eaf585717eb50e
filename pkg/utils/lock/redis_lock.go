package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DistributedLock 定义分布式锁接口
type DistributedLock interface {
	// Acquire 尝试获取锁 (不阻塞)
	// 返回: (持有令牌, 是否成功, error)，释放时需要带上令牌
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error)

	// Release 释放锁，只有令牌匹配时才删除
	Release(ctx context.Context, key, token string) error
}

// releaseScript 校验 value 属于自己再删除
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock 基于 Redis SET NX PX 的实现
type RedisLock struct {
	client *redis.Client
	prefix string
}

func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{client: client, prefix: "lock:"}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *RedisLock) Release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, l.client, []string{l.prefix + key}, token).Err()
}

// ErrLockTimeout 在 ctx 结束前没能拿到锁
var ErrLockTimeout = errors.New("lock: timed out waiting for key")

// RedisMutex 在 DistributedLock 之上提供阻塞式 Lock，多实例部署时用于账户串行化
type RedisMutex struct {
	lock  DistributedLock
	ttl   time.Duration
	retry time.Duration
}

// NewRedisMutex ttl 必须覆盖一次完整的 "取 nonce -> 等待回执" 周期
func NewRedisMutex(lock DistributedLock, ttl time.Duration) *RedisMutex {
	return &RedisMutex{lock: lock, ttl: ttl, retry: 50 * time.Millisecond}
}

func (m *RedisMutex) Lock(ctx context.Context, key string) (func(), error) {
	ticker := time.NewTicker(m.retry)
	defer ticker.Stop()

	for {
		token, ok, err := m.lock.Acquire(ctx, key, m.ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// 调用方的 ctx 可能已经取消，释放使用独立的短超时
				releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				_ = m.lock.Release(releaseCtx, key, token)
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrLockTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}
