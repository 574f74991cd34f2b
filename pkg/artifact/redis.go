package artifact

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	emerrors "github.com/matzehuels/emerl/pkg/errors"
)

// RedisStore stores artifacts as Redis string values under a key prefix.
// Transient network failures are retried with [RetryWithBackoff].
type RedisStore struct {
	client *redis.Client
	prefix string
}

// OpenRedis connects to the server at url (redis://host:port/db) and
// verifies the connection with PING.
func OpenRedis(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, emerrors.Wrap(emerrors.ErrCodeInvalidInput, err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, emerrors.Wrap(emerrors.ErrCodeStorage, err, "connect to redis")
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(key string) (string, error) {
	if err := emerrors.ValidateKey(key); err != nil {
		return "", err
	}
	return s.prefix + key, nil
}

// Get reads key. A redis.Nil reply is a miss.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	k, err := s.key(key)
	if err != nil {
		return nil, false, err
	}
	var data []byte
	found := true
	err = RetryWithBackoff(ctx, func() error {
		v, err := s.client.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			found = false
			return nil
		}
		data = v
		return retryableNetErr(err)
	})
	if err != nil {
		return nil, false, storageErr("read", key, err)
	}
	if !found {
		return nil, false, nil
	}
	return data, true, nil
}

// Put sets key without expiration.
func (s *RedisStore) Put(ctx context.Context, key string, data []byte) error {
	k, err := s.key(key)
	if err != nil {
		return err
	}
	err = RetryWithBackoff(ctx, func() error {
		return retryableNetErr(s.client.Set(ctx, k, data, 0).Err())
	})
	return storageErr("write", key, err)
}

// Has uses EXISTS.
func (s *RedisStore) Has(ctx context.Context, key string) (bool, error) {
	k, err := s.key(key)
	if err != nil {
		return false, err
	}
	var n int64
	err = RetryWithBackoff(ctx, func() error {
		var err error
		n, err = s.client.Exists(ctx, k).Result()
		return retryableNetErr(err)
	})
	if err != nil {
		return false, storageErr("stat", key, err)
	}
	return n > 0, nil
}

// Delete uses DEL.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	k, err := s.key(key)
	if err != nil {
		return err
	}
	err = RetryWithBackoff(ctx, func() error {
		return retryableNetErr(s.client.Del(ctx, k).Err())
	})
	return storageErr("delete", key, err)
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
