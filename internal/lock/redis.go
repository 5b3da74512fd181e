package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNotOwner блокировку успел перехватить другой владелец (истёк ttl)
var ErrNotOwner = errors.New("lock is not owned by this client")

// Удаление ключа только при совпадении значения, одной командой
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

func NewRedisLocker(client *redis.Client, prefix string, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, string, error) {
	value := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, l.prefix+key, value, ttl).Result()
	if err != nil {
		return false, "", fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if !acquired {
		l.logger.Debug("Lock is held by another instance", zap.String("key", key))
		return false, "", nil
	}

	l.logger.Debug("Lock acquired",
		zap.String("key", key),
		zap.String("value", value),
		zap.Duration("ttl", ttl),
	)
	return true, value, nil
}

func (l *RedisLocker) Unlock(ctx context.Context, key, value string) error {
	deleted, err := unlockScript.Run(ctx, l.client, []string{l.prefix + key}, value).Int()
	if err != nil {
		return fmt.Errorf("redis unlock %s: %w", key, err)
	}
	if deleted == 0 {
		return ErrNotOwner
	}

	l.logger.Debug("Lock released", zap.String("key", key))
	return nil
}
