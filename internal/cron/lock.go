package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/maskball-tickets/pkg/instance"
)

// defaultLockTTL outlives a slow reaper batch but frees the lock quickly if the holder dies.
const defaultLockTTL = 5 * time.Minute

// Lock coordinates exclusive cron runs.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// renewable locks can be kept alive between jobs of a long cycle.
type renewable interface {
	Extend(ctx context.Context) (bool, error)
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
	CompareAndExpire(ctx context.Context, key, expected string, ttl time.Duration) (bool, error)
}

// RedisLock elects one cron worker across replicas. The stored token is
// "<instance>:<uuid>" so an operator can see which replica holds it, and release and
// extension only act while the token still matches.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration

	mu    sync.Mutex
	token string
}

func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := instance.GetID() + ":" + uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if ok {
		l.mu.Lock()
		l.token = token
		l.mu.Unlock()
	}
	return ok, nil
}

// Owner is the token written by the last successful Acquire, or "" when not held.
func (l *RedisLock) Owner() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.token
}

// Extend pushes the expiry out by another TTL. False means the lock expired and someone
// else may hold it now.
func (l *RedisLock) Extend(ctx context.Context) (bool, error) {
	token := l.Owner()
	if token == "" {
		return false, nil
	}
	ok, err := l.store.CompareAndExpire(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("extend %s: %w", l.key, err)
	}
	if !ok {
		l.forget(token)
	}
	return ok, nil
}

// Release frees the lock if this instance still holds it; a lock that already expired is
// left to its new holder.
func (l *RedisLock) Release(ctx context.Context) error {
	token := l.Owner()
	if token == "" {
		return nil
	}
	if _, err := l.store.CompareAndDelete(ctx, l.key, token); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	l.forget(token)
	return nil
}

func (l *RedisLock) forget(token string) {
	l.mu.Lock()
	if l.token == token {
		l.token = ""
	}
	l.mu.Unlock()
}

// LocalLock serializes cycles inside one process. It is used when no Redis is configured,
// which limits the worker to a single replica.
type LocalLock struct {
	mu   sync.Mutex
	held bool
}

func (l *LocalLock) Acquire(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *LocalLock) Release(context.Context) error {
	l.mu.Lock()
	l.held = false
	l.mu.Unlock()
	return nil
}
