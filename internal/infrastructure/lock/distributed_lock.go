package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// 分布式锁
// ============================================================================
//
// 加锁：SET key value NX EX timeout
//   - NX: 只有 key 不存在时才设置（互斥）
//   - EX: 过期时间（持有者崩溃时自动释放）
//   - value: 持有者标识，释放时校验，避免删掉别人的锁
//
// 释放：Lua 脚本里先比较 value 再 DEL，保证原子性
//
// 数据库层面已经有条件更新兜底（库存 >= 0、状态 CAS），
// 这里的锁只是把同一张进货单/同一本书上的并发请求串行化，减少无谓的事务冲突。
// ============================================================================

var ErrLockFailed = errors.New("获取分布式锁失败")

const unlockScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// Locker 按 key 加互斥锁，返回的 release 必须调用
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// DistributedLock 一把具体的锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 非阻塞
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

func (l *DistributedLock) Unlock(ctx context.Context) error {
	return l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Err()
}

// RedisLocker 基于 Redis 的 Locker
type RedisLocker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: 100 * time.Millisecond,
		maxRetries:    30,
	}
}

func (r *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l := NewDistributedLock(r.client, key, uuid.NewString(), r.ttl)
	if err := l.Lock(ctx, r.retryInterval, r.maxRetries); err != nil {
		if errors.Is(err, ErrLockFailed) {
			return nil, fmt.Errorf("%w: %s", err, key)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrLockFailed, key, err)
	}
	return func() {
		// 请求的 ctx 可能已经取消，释放锁用独立的 ctx
		unlockCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = l.Unlock(unlockCtx)
	}, nil
}

// NoopLocker 未启用 Redis 时使用，并发安全完全依赖数据库
type NoopLocker struct{}

func (NoopLocker) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

// PurchaseLockKey 进货单维度的锁（付款/退货/取消）
func PurchaseLockKey(orderID int64) string {
	return fmt.Sprintf("bookstore:lock:purchase:%d", orderID)
}

// BookLockKey 图书维度的锁（销售/手工调整库存）
func BookLockKey(bookID int64) string {
	return fmt.Sprintf("bookstore:lock:book:%d", bookID)
}
