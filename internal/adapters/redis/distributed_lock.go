package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/amyangfei/redlock-go/v3/redlock"
	"go.uber.org/zap"

	"github.com/selivandex/trader-core/pkg/logger"
)

const (
	lockRetryMin = 20 * time.Millisecond
	lockRetryMax = 500 * time.Millisecond
)

// GuardLock is a Redlock mutex around one guard's state
type GuardLock struct {
	lockManager *redlock.RedLock
	guardID     string
	lockName    string
	ttl         time.Duration
}

// NewGuardLock creates new distributed guard lock
func NewGuardLock(lockManager *redlock.RedLock, guardID string, ttl time.Duration) *GuardLock {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &GuardLock{
		lockManager: lockManager,
		guardID:     guardID,
		lockName:    LockName(guardID),
		ttl:         ttl,
	}
}

// LockName returns the Redis key of a guard lock
func LockName(guardID string) string {
	return fmt.Sprintf("risk_guard:lock:%s", guardID)
}

// Lock blocks until the lock is acquired, ctx is done or the TTL elapses
func (l *GuardLock) Lock(ctx context.Context) error {
	deadline := time.Now().Add(l.ttl)
	wait := lockRetryMin

	for {
		expiry, err := l.lockManager.Lock(ctx, l.lockName, l.ttl)
		if err == nil && expiry > 0 {
			logger.Debug("risk guard lock acquired",
				zap.String("guard", l.guardID),
				zap.Duration("expiry", expiry),
			)
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for lock %s: %v", l.lockName, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		wait *= 2
		if wait > lockRetryMax {
			wait = lockRetryMax
		}
	}
}

// Unlock releases the lock; an already expired lock is not an error
func (l *GuardLock) Unlock(ctx context.Context) error {
	if err := l.lockManager.UnLock(ctx, l.lockName); err != nil {
		logger.Warn("failed to release risk guard lock (may have already expired)",
			zap.String("guard", l.guardID),
			zap.String("lock_name", l.lockName),
			zap.Error(err),
		)
	}
	return nil
}
