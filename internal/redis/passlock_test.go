package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := &Client{rdb: rdb, logger: zap.NewNop()}

	return client, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestPassLock_AcquireAndRelease(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	lock := NewPassLock(client, zap.NewNop())
	ctx := context.Background()

	acquired, release, err := lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acquired {
		t.Fatal("expected to acquire the lock")
	}

	// a second caller is shut out while the lock is held
	second, _, err := lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second {
		t.Fatal("second acquisition should fail while held")
	}

	release()

	third, _, err := lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !third {
		t.Fatal("lock should be acquirable after release")
	}
}

func TestPassLock_ExpiresByTTL(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	lock := NewPassLock(client, zap.NewNop())
	ctx := context.Background()

	acquired, _, err := lock.Acquire(ctx)
	if err != nil || !acquired {
		t.Fatalf("initial acquire failed: acquired=%v err=%v", acquired, err)
	}

	// a crashed holder never calls release; the TTL must free the lock
	mr.FastForward(passLockTTL)

	acquired, _, err = lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acquired {
		t.Fatal("lock should expire after its TTL")
	}
}

func TestPassLock_RedisDown(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	mr.Close()

	lock := NewPassLock(client, zap.NewNop())
	if _, _, err := lock.Acquire(context.Background()); err == nil {
		t.Fatal("expected an error when redis is unreachable")
	}
}
