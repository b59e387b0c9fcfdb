package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// UnreadCache caches per-user unread totals. A cache is optional: the
// Service treats every cache miss or cache failure as "ask the Store".
type UnreadCache interface {
	GetUnread(ctx context.Context, userID string) (count int64, ok bool, err error)
	SetUnread(ctx context.Context, userID string, count int64) error
	InvalidateUnread(ctx context.Context, userID string) error
}

const (
	unreadKeyPrefix  = "souk:unread"
	defaultUnreadTTL = 5 * time.Minute
)

// RedisUnreadCache caches unread totals in Redis.
type RedisUnreadCache struct {
	cli *redis.Client
	ttl time.Duration
}

// ConnectRedisUnreadCache connects to the Redis server and pings it to
// ensure the connection is working.
func ConnectRedisUnreadCache(ctx context.Context, addr string, ttl time.Duration) (*RedisUnreadCache, error) {
	cli := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultUnreadTTL
	}
	return &RedisUnreadCache{cli: cli, ttl: ttl}, nil
}

// Close releases the underlying Redis client.
func (c *RedisUnreadCache) Close() error {
	if c == nil || c.cli == nil {
		return nil
	}
	return c.cli.Close()
}

func unreadKey(userID string) string {
	return fmt.Sprintf("%s:%s", unreadKeyPrefix, userID)
}

// GetUnread returns the cached unread total for a user, if present.
func (c *RedisUnreadCache) GetUnread(ctx context.Context, userID string) (int64, bool, error) {
	if c == nil || c.cli == nil {
		return 0, false, nil
	}
	n, err := c.cli.Get(ctx, unreadKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get: %w", err)
	}
	return n, true, nil
}

// SetUnread stores the unread total for a user with the configured TTL.
func (c *RedisUnreadCache) SetUnread(ctx context.Context, userID string, count int64) error {
	if c == nil || c.cli == nil {
		return nil
	}
	if err := c.cli.Set(ctx, unreadKey(userID), count, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// InvalidateUnread drops the cached unread total for a user.
func (c *RedisUnreadCache) InvalidateUnread(ctx context.Context, userID string) error {
	if c == nil || c.cli == nil {
		return nil
	}
	if err := c.cli.Del(ctx, unreadKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
