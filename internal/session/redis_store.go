// Package session provides the Redis-backed edit lease that keeps a plan
// single-writer. Whoever holds a project's lease may mutate it; everyone
// else reads until the lease expires or is released.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLeaseHeld is returned when another editor already holds the lease.
var ErrLeaseHeld = errors.New("edit lease held by another editor")

// ErrLeaseNotHeld is returned when renewing or releasing a lease the
// caller does not hold.
var ErrLeaseNotHeld = errors.New("edit lease not held")

// Lease records who holds the edit lock on a project.
type Lease struct {
	Editor     string    `json:"editor"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// RedisStore implements edit lease storage using Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient wraps an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisStore{
		client: client,
		prefix: "lease:",
		ttl:    ttl,
	}
}

func (s *RedisStore) key(projectID string) string {
	return s.prefix + projectID
}

// Acquire takes the edit lease for a project. Re-acquiring a lease the
// editor already holds just refreshes its TTL.
func (s *RedisStore) Acquire(ctx context.Context, projectID, editor string) (Lease, error) {
	lease := Lease{Editor: editor, AcquiredAt: time.Now().UTC()}
	data, err := json.Marshal(lease)
	if err != nil {
		return Lease{}, fmt.Errorf("marshal lease: %w", err)
	}

	key := s.key(projectID)
	ok, err := s.client.SetNX(ctx, key, data, s.ttl).Result()
	if err != nil {
		return Lease{}, fmt.Errorf("acquire lease: %w", err)
	}
	if ok {
		return lease, nil
	}

	current, held, err := s.Holder(ctx, projectID)
	if err != nil {
		return Lease{}, err
	}
	if held && current.Editor == editor {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return Lease{}, fmt.Errorf("refresh lease ttl: %w", err)
		}
		return current, nil
	}
	if !held {
		// Holder expired between SetNX and Holder; retry once.
		ok, err := s.client.SetNX(ctx, key, data, s.ttl).Result()
		if err != nil {
			return Lease{}, fmt.Errorf("acquire lease: %w", err)
		}
		if ok {
			return lease, nil
		}
	}
	return current, ErrLeaseHeld
}

// Renew extends the TTL of a lease the editor holds.
func (s *RedisStore) Renew(ctx context.Context, projectID, editor string) error {
	current, held, err := s.Holder(ctx, projectID)
	if err != nil {
		return err
	}
	if !held || current.Editor != editor {
		return ErrLeaseNotHeld
	}
	if err := s.client.Expire(ctx, s.key(projectID), s.ttl).Err(); err != nil {
		return fmt.Errorf("renew lease: %w", err)
	}
	return nil
}

// Release drops the lease if the editor holds it. Releasing a lease that
// already expired is not an error.
func (s *RedisStore) Release(ctx context.Context, projectID, editor string) error {
	current, held, err := s.Holder(ctx, projectID)
	if err != nil {
		return err
	}
	if !held {
		return nil
	}
	if current.Editor != editor {
		return ErrLeaseNotHeld
	}
	if err := s.client.Del(ctx, s.key(projectID)).Err(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// Holder reports the current lease, if any.
func (s *RedisStore) Holder(ctx context.Context, projectID string) (Lease, bool, error) {
	data, err := s.client.Get(ctx, s.key(projectID)).Result()
	if err == redis.Nil {
		return Lease{}, false, nil
	}
	if err != nil {
		return Lease{}, false, fmt.Errorf("lookup lease: %w", err)
	}
	var lease Lease
	if err := json.Unmarshal([]byte(data), &lease); err != nil {
		return Lease{}, false, fmt.Errorf("unmarshal lease: %w", err)
	}
	return lease, true, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
