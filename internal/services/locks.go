package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Locker serializes work per key. Lock blocks until the key is held or ctx is
// done and returns the release function.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// LockManager manages per-key locks inside one process so that verifications
// for the same payer run one at a time while different payers proceed in parallel.
// An entry lives while someone holds or waits for its key.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

// NewLockManager creates a new lock manager
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]*keyLock)}
}

// Lock acquires the lock for key
func (lm *LockManager) Lock(ctx context.Context, key string) (func(), error) {
	lm.mu.Lock()
	l, ok := lm.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		lm.locks[key] = l
	}
	l.refs++
	lm.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		lm.unref(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			lm.unref(key, l)
		})
	}, nil
}

func (lm *LockManager) unref(key string, l *keyLock) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(lm.locks, key)
	}
}

// size reports how many keys are held or awaited
func (lm *LockManager) size() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.locks)
}

var ErrLockTimeout = errors.New("timed out waiting for lock")

// RedisLocker holds keys with SET NX so every instance sharing the Redis sees the same lock
type RedisLocker struct {
	cache *RedisCache
	ttl   time.Duration
	wait  time.Duration
}

// NewRedisLocker returns a locker whose keys expire after ttl and which gives up after wait
func NewRedisLocker(cache *RedisCache, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{cache: cache, ttl: ttl, wait: wait}
}

// Lock polls SET NX until it wins the key
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	lockKey := "hostel:lock:" + key
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.cache.SetNX(ctx, lockKey, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}

	return func() {
		// A new context so the lock is released even when the request was cancelled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.cache.ReleaseLock(releaseCtx, lockKey, token)
	}, nil
}
