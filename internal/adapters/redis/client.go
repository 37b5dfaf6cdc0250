package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/amyangfei/redlock-go/v3/redlock"
	redis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/selivandex/trader-core/internal/adapters/config"
	"github.com/selivandex/trader-core/pkg/logger"
)

// Client wraps RedLock manager for distributed locking + standard Redis for state
type Client struct {
	lockManager *redlock.RedLock
	cache       *redis.Client
	redisAddrs  []string
	lockTTL     time.Duration
}

// New creates new Redis client with RedLock support
func New(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	// Single instance; list more addresses for a fault-tolerant quorum
	redisAddrs := []string{fmt.Sprintf("tcp://%s", cfg.Addr())}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	lockManager, err := redlock.NewRedLock(ctx, redisAddrs)
	if err != nil {
		return nil, fmt.Errorf("failed to create redlock manager: %w", err)
	}

	logger.Info("redis redlock manager initialized",
		zap.Strings("addresses", redisAddrs),
	)

	cacheClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	if err := cacheClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis client initialized",
		zap.String("address", cfg.Addr()),
		zap.Int("db", cfg.DB),
	)

	return &Client{
		lockManager: lockManager,
		redisAddrs:  redisAddrs,
		cache:       cacheClient,
		lockTTL:     cfg.LockTTL,
	}, nil
}

// GuardLock returns a distributed lock serializing one risk guard across processes
func (c *Client) GuardLock(guardID string) *GuardLock {
	return NewGuardLock(c.lockManager, guardID, c.lockTTL)
}

// StateStore returns a risk guard state store keyed by guard id
func (c *Client) StateStore(guardID string) *StateStore {
	return NewStateStore(c.cache, guardID)
}

// Close closes redis connections
func (c *Client) Close() error {
	if c.cache != nil {
		logger.Info("closing redis client")
		if err := c.cache.Close(); err != nil {
			return fmt.Errorf("failed to close redis: %w", err)
		}
	}
	return nil
}

// Health checks redis health
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	testLock := "health:check"
	expiry, err := c.lockManager.Lock(ctx, testLock, 1*time.Second)
	if err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	if expiry <= 0 {
		return fmt.Errorf("redis health check failed: invalid expiry")
	}

	_ = c.lockManager.UnLock(ctx, testLock)

	return c.cache.Ping(ctx).Err()
}
