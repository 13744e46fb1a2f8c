package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "sportai:session:"
	// redisBackstop bounds how long a key outlives its session when no server runs Purge.
	redisBackstop = 24 * time.Hour
)

// RedisStore shares sessions between server processes.
// Expired sessions are removed by Purge so each one can be audited. The key TTL is
// only a backstop; validity is still decided by Validator.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, timeout time.Duration) *RedisStore {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RedisStore{client: client, ttl: timeout + redisBackstop}
}

// OpenRedisStore parses a redis:// URL and pings the server.
func OpenRedisStore(ctx context.Context, url string, timeout time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("session: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("session: ping redis: %w", err)
	}
	return NewRedisStore(client, timeout), nil
}

func (r *RedisStore) Put(ctx context.Context, s State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisKeyPrefix+s.SessionID, data, r.ttl).Err()
}

func (r *RedisStore) Get(ctx context.Context, id string) (State, error) {
	data, err := r.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{}, ErrNotFound
		}
		return State{}, err
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("session: decode %s: %w", id, err)
	}
	return s, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, redisKeyPrefix+id).Err()
}

func (r *RedisStore) Count(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, redisKeyPrefix+"*", 100).Result()
		if err != nil {
			return 0, err
		}
		total += len(keys)
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}

func (r *RedisStore) Purge(ctx context.Context, loginBefore time.Time) ([]State, error) {
	var (
		cursor uint64
		gone   []State
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, redisKeyPrefix+"*", 100).Result()
		if err != nil {
			return gone, err
		}
		for _, key := range keys {
			data, err := r.client.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return gone, err
			}
			var s State
			if err := json.Unmarshal(data, &s); err != nil || !s.LoginTime.Before(loginBefore) {
				continue
			}
			// Another process may purge the same key; only the one that deletes it reports it.
			n, err := r.client.Del(ctx, key).Result()
			if err != nil {
				return gone, err
			}
			if n == 1 {
				gone = append(gone, s)
			}
		}
		if next == 0 {
			return gone, nil
		}
		cursor = next
	}
}

// Close releases the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
