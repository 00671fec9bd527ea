package memsvc

import (
	"context"
	"testing"
)

func TestMemLockerRejectsSecondAcquire(t *testing.T) {
	l := newMemLocker()
	ctx := context.Background()

	ok, err := l.tryLock(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("first tryLock = %v, %v, want true, nil", ok, err)
	}
	ok, err = l.tryLock(ctx, "k")
	if err != nil || ok {
		t.Fatalf("second tryLock = %v, %v, want false, nil", ok, err)
	}

	l.unlock(ctx, "k")
	ok, err = l.tryLock(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("tryLock after unlock = %v, %v, want true, nil", ok, err)
	}
}

func TestNewSelectsLockerFromConfig(t *testing.T) {
	svc := New(nil, nil, Config{}, nil)
	if _, ok := svc.lock.(*memLocker); !ok {
		t.Fatalf("default Config should select memLocker, got %T", svc.lock)
	}

	svc = New(nil, nil, Config{DistributedLockBackend: "redis", RedisAddr: "localhost:6379"}, nil)
	if _, ok := svc.lock.(*redisLocker); !ok {
		t.Fatalf("redis Config should select redisLocker, got %T", svc.lock)
	}
}
