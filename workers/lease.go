package workers

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker grants short-lived exclusive leases so only one replica runs the
// sweep at a time.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type RedisLocker struct {
	client *redis.Client
	owner  string
}

func NewRedisLocker(client *redis.Client, owner string) *RedisLocker {
	return &RedisLocker{
		client: client,
		owner:  owner,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, l.owner, ttl).Result()
}

// Release only deletes the lease this instance holds. The GET/DEL pair is
// not atomic; the TTL bounds the damage if the lease changes hands between
// the two calls.
func (l *RedisLocker) Release(ctx context.Context, key string) error {
	owner, err := l.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if owner != l.owner {
		return nil
	}
	return l.client.Del(ctx, key).Err()
}
