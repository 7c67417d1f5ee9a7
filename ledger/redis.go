package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLedger stores entries as "<prefix>:<channel>:<key>" with a TTL so they
// age out once the ad platform's own dedup window has passed.
type RedisLedger struct {
	client  redis.UniversalClient
	prefix  string
	channel Channel
	ttl     time.Duration
}

func NewRedisLedger(client redis.UniversalClient, prefix string, channel Channel, ttl time.Duration) *RedisLedger {
	if prefix == "" {
		prefix = "conv"
	}
	return &RedisLedger{client: client, prefix: prefix, channel: channel, ttl: ttl}
}

func (l *RedisLedger) redisKey(key string) string {
	return fmt.Sprintf("%s:%s:%s", l.prefix, l.channel, key)
}

func (l *RedisLedger) HasFired(ctx context.Context, key string) (bool, error) {
	if l.client == nil {
		return false, ErrNilBackend
	}
	n, err := l.client.Exists(ctx, l.redisKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis ledger exists: %w", err)
	}
	return n > 0, nil
}

func (l *RedisLedger) MarkFired(ctx context.Context, key string) error {
	if l.client == nil {
		return ErrNilBackend
	}
	if err := l.client.Set(ctx, l.redisKey(key), time.Now().UTC().Format(time.RFC3339), l.ttl).Err(); err != nil {
		return fmt.Errorf("redis ledger set: %w", err)
	}
	return nil
}

func (l *RedisLedger) Claim(ctx context.Context, key string) (bool, error) {
	if l.client == nil {
		return false, ErrNilBackend
	}
	ok, err := l.client.SetNX(ctx, l.redisKey(key), time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis ledger setnx: %w", err)
	}
	return ok, nil
}

func (l *RedisLedger) Release(ctx context.Context, key string) error {
	if l.client == nil {
		return ErrNilBackend
	}
	if err := l.client.Del(ctx, l.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis ledger del: %w", err)
	}
	return nil
}
