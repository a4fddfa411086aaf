package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	passLockKey = "scheduler:pass-lock"

	// passLockTTL outlives any sane pass budget so a crashed holder
	// cannot wedge scheduling for long.
	passLockTTL = 2 * time.Minute
)

// PassLock serializes overlapping dispatch-pass triggers. The lock is
// best-effort: losing it only means two passes may overlap, which the
// store's guarded updates reduce to an occasional duplicate send.
type PassLock struct {
	client *Client
	logger *zap.Logger
}

// NewPassLock creates a pass lock backed by the given client.
func NewPassLock(client *Client, logger *zap.Logger) *PassLock {
	return &PassLock{
		client: client,
		logger: logger,
	}
}

// Acquire attempts to take the lock with SET NX. It returns whether the
// lock was obtained and a release function (a no-op when it was not).
func (l *PassLock) Acquire(ctx context.Context) (bool, func(), error) {
	ok, err := l.client.rdb.SetNX(ctx, passLockKey, time.Now().UTC().Format(time.RFC3339), passLockTTL).Result()
	if err != nil {
		return false, func() {}, fmt.Errorf("acquire pass lock: %w", err)
	}
	if !ok {
		l.logger.Info("pass lock held by another invocation")
		return false, func() {}, nil
	}

	release := func() {
		if err := l.client.rdb.Del(context.Background(), passLockKey).Err(); err != nil {
			l.logger.Warn("failed to release pass lock, TTL will expire it",
				zap.Error(err),
			)
		}
	}

	return true, release, nil
}
