package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

// RedisStore is the production Store, backed by go-redis/v9 the way
// the teacher's (file-absent from the retrieval pack, but declared in
// its go.mod and referenced as "vstats/internal/cloud/redis") client
// package is: package-level helpers over one shared *redis.Client.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials a Redis client. It does not ping -- the first
// real operation carries the retry-once policy spec §7 describes for
// store faults.
func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// withRetry implements spec §7's store-fault policy: "retried once
// with a fresh connection; on second failure the operation is
// abandoned for this tick". A fresh connection is simply the next
// pooled connection go-redis hands out on retry -- the pool itself
// already discards a connection that errored, so a retry naturally
// gets a different one.
func withRetry(ctx context.Context, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(0), 1), ctx)
	return backoff.Retry(op, b)
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var val []byte
	found := true
	err := withRetry(ctx, func() error {
		v, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		val = v
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("store: get %s: %w", key, err)
	}
	return val, found, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	err := withRetry(ctx, func() error {
		return s.client.Set(ctx, key, value, 0).Err()
	})
	if err != nil {
		return fmt.Errorf("store: set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	var ok bool
	err := withRetry(ctx, func() error {
		v, err := s.client.SetNX(ctx, key, value, ttl).Result()
		ok = v
		return err
	})
	if err != nil {
		return false, fmt.Errorf("store: setnx %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	err := withRetry(ctx, func() error {
		return s.client.Del(ctx, keys...).Err()
	})
	if err != nil {
		return fmt.Errorf("store: delete %v: %w", keys, err)
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	var n int64
	err := withRetry(ctx, func() error {
		v, err := s.client.Exists(ctx, key).Result()
		n = v
		return err
	})
	if err != nil {
		return false, fmt.Errorf("store: exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	err := withRetry(ctx, func() error {
		return s.client.SAdd(ctx, key, args...).Err()
	})
	if err != nil {
		return fmt.Errorf("store: sadd %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	var out []string
	err := withRetry(ctx, func() error {
		v, err := s.client.SMembers(ctx, key).Result()
		out = v
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store: smembers %s: %w", key, err)
	}
	return out, nil
}

func (s *RedisStore) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	err := withRetry(ctx, func() error {
		return s.client.SRem(ctx, key, args...).Err()
	})
	if err != nil {
		return fmt.Errorf("store: srem %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Rename(ctx context.Context, oldKey, newKey string) error {
	err := withRetry(ctx, func() error {
		err := s.client.Rename(ctx, oldKey, newKey).Err()
		if err != nil && errors.Is(err, redis.Nil) {
			return nil
		}
		// go-redis surfaces a missing source key as a plain error
		// whose message is "ERR no such key"; RENAME of a key that
		// was never populated (first manager cycle) is expected, not
		// a fault.
		if err != nil && isNoSuchKey(err) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("store: rename %s -> %s: %w", oldKey, newKey, err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	return err != nil && err.Error() == "ERR no such key"
}

func (s *RedisStore) SUnionStore(ctx context.Context, dest string, keys ...string) error {
	err := withRetry(ctx, func() error {
		return s.client.SUnionStore(ctx, dest, keys...).Err()
	})
	if err != nil {
		return fmt.Errorf("store: sunionstore %s: %w", dest, err)
	}
	return nil
}

func (s *RedisStore) HSet(ctx context.Context, key, field, value string) error {
	err := withRetry(ctx, func() error {
		return s.client.HSet(ctx, key, field, value).Err()
	})
	if err != nil {
		return fmt.Errorf("store: hset %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	var out map[string]string
	err := withRetry(ctx, func() error {
		v, err := s.client.HGetAll(ctx, key).Result()
		out = v
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store: hgetall %s: %w", key, err)
	}
	return out, nil
}

func (s *RedisStore) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	err := withRetry(ctx, func() error {
		return s.client.HDel(ctx, key, fields...).Err()
	})
	if err != nil {
		return fmt.Errorf("store: hdel %s: %w", key, err)
	}
	return nil
}
