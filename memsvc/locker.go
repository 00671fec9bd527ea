package memsvc

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// locker guards against two compression jobs racing on the same buffer key.
// The in-process map is enough for a single simulate process; a Redis
// backend lets several simulate processes share one store (pgstore)
// without double-compressing the same buffer.
type locker interface {
	tryLock(ctx context.Context, key string) (bool, error)
	unlock(ctx context.Context, key string)
}

// memLocker is the default in-process locker: a map guarded by a mutex.
type memLocker struct {
	mu       sync.Mutex
	inFlight map[string]bool
}

func newMemLocker() *memLocker {
	return &memLocker{inFlight: make(map[string]bool)}
}

func (l *memLocker) tryLock(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight[key] {
		return false, nil
	}
	l.inFlight[key] = true
	return true, nil
}

func (l *memLocker) unlock(ctx context.Context, key string) {
	l.mu.Lock()
	delete(l.inFlight, key)
	l.mu.Unlock()
}

// redisLocker uses SETNX with an expiry as a distributed mutex: a job that
// crashes mid-compression releases its lock automatically after leaseTTL
// rather than wedging the key forever.
type redisLocker struct {
	client   *redis.Client
	leaseTTL time.Duration
}

func newRedisLocker(addr string, leaseTTL time.Duration) *redisLocker {
	if leaseTTL <= 0 {
		leaseTTL = 2 * time.Minute
	}
	return &redisLocker{
		client:   redis.NewClient(&redis.Options{Addr: addr}),
		leaseTTL: leaseTTL,
	}
}

func (l *redisLocker) tryLock(ctx context.Context, key string) (bool, error) {
	ok, err := l.client.SetNX(ctx, "memsvc:lock:"+key, "1", l.leaseTTL).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (l *redisLocker) unlock(ctx context.Context, key string) {
	l.client.Del(ctx, "memsvc:lock:"+key)
}
