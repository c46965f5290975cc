// Package lock provides short-lived named locks used to serialize work that
// spans more than one row, such as issuing the next invoice number of a day.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"cafepos/backend/internal/domain"
)

// Release frees a lock obtained from a Locker. It is safe to call once.
type Release func()

type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Release, error)
}

// Local serializes holders of the same key inside one process. A key's slot
// lives only while someone holds or waits for it.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

func (l *Local) Obtain(ctx context.Context, key string, _ time.Duration) (Release, error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, s)
		return nil, fmt.Errorf("obtain lock %s: %w", key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.drop(key, s)
		})
	}, nil
}

func (l *Local) drop(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// Redis is a Locker backed by redislock, shared by every server instance that
// talks to the same Redis.
type Redis struct {
	client  *redislock.Client
	retry   redislock.RetryStrategy
	logger  zerolog.Logger
	timeout time.Duration
}

func NewRedis(rdb *redis.Client, logger zerolog.Logger) *Redis {
	return &Redis{
		client:  redislock.New(rdb),
		retry:   redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 100),
		logger:  logger.With().Str("component", "lock").Logger(),
		timeout: 2 * time.Second,
	}
}

func (r *Redis) Obtain(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	held, err := r.client.Obtain(ctx, "cafepos:"+key, ttl, &redislock.Options{RetryStrategy: r.retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, domain.Conflict("lock is busy", key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := held.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			r.logger.Warn().Err(err).Str("key", key).Msg("failed to release lock")
		}
	}, nil
}
