package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// LoginLimiter tracks failed logins per e-mail and locks the account out
// once too many accumulate.
type LoginLimiter interface {
	Locked(ctx context.Context, email string) (bool, error)
	RecordFailure(ctx context.Context, email string) (locked bool, err error)
	Reset(ctx context.Context, email string) error
}

// Counter is the slice of a key/value cache the limiter needs.
type Counter interface {
	Exists(ctx context.Context, key string) (bool, error)
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Lockout implements LoginLimiter on top of a Counter.
type Lockout struct {
	store       Counter
	maxAttempts int
	duration    time.Duration
}

func NewLockout(store Counter, maxAttempts int, duration time.Duration) *Lockout {
	return &Lockout{store: store, maxAttempts: maxAttempts, duration: duration}
}

func attemptsKey(email string) string { return "login_attempts:" + strings.ToLower(email) }
func lockoutKey(email string) string  { return "lockout:" + strings.ToLower(email) }

func (l *Lockout) Locked(ctx context.Context, email string) (bool, error) {
	return l.store.Exists(ctx, lockoutKey(email))
}

func (l *Lockout) RecordFailure(ctx context.Context, email string) (bool, error) {
	n, err := l.store.Incr(ctx, attemptsKey(email), l.duration)
	if err != nil {
		return false, err
	}
	if n < int64(l.maxAttempts) {
		return false, nil
	}
	if err := l.store.Set(ctx, lockoutKey(email), "locked", l.duration); err != nil {
		return false, err
	}
	return true, l.store.Del(ctx, attemptsKey(email))
}

func (l *Lockout) Reset(ctx context.Context, email string) error {
	return l.store.Del(ctx, attemptsKey(email), lockoutKey(email))
}

// RedisCounter is a Counter backed by go-redis.
type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

// NewRedisClient connects and pings addr.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func (c *RedisCounter) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	return n > 0, err
}

// Incr bumps key and starts its TTL on first use so stale counters expire.
func (c *RedisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := c.client.Expire(ctx, key, ttl).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (c *RedisCounter) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCounter) Del(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// NopLimiter never locks anyone out. Used when Redis is not configured.
type NopLimiter struct{}

func (NopLimiter) Locked(context.Context, string) (bool, error)        { return false, nil }
func (NopLimiter) RecordFailure(context.Context, string) (bool, error) { return false, nil }
func (NopLimiter) Reset(context.Context, string) error                 { return nil }
