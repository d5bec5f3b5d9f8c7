package modelcache

import (
	"context"
	"fmt"
	"time"

	"github.com/jmcgover/ngrambot/internal/ngram"
	apperrors "github.com/jmcgover/ngrambot/pkg/errors"
	pkgredis "github.com/jmcgover/ngrambot/pkg/redis"
)

const redisKeyPrefix = "ngram:model:"

// RedisStore keeps entries in Redis under "ngram:model:<key>".
type RedisStore struct {
	client *pkgredis.Client
	ttl    time.Duration
}

// NewRedisStore creates a RedisStore. A zero ttl keeps entries until they are
// overwritten or purged.
func NewRedisStore(client *pkgredis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, key string) (*ngram.Model, error) {
	data, err := s.client.GetBytes(ctx, redisKeyPrefix+key)
	if err != nil {
		if pkgredis.IsNilError(err) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrCacheMiss, key)
		}
		return nil, fmt.Errorf("reading model cache %s from redis: %w", key, err)
	}
	m, err := decodeEntry(data)
	if err != nil {
		return nil, fmt.Errorf("decoding model cache %s: %w", key, err)
	}
	return m, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, m *ngram.Model) error {
	data, err := encodeEntry(m)
	if err != nil {
		return fmt.Errorf("encoding model cache entry: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, data, s.ttl); err != nil {
		return fmt.Errorf("writing model cache %s to redis: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key); err != nil {
		return fmt.Errorf("deleting model cache %s from redis: %w", key, err)
	}
	return nil
}

// Purge deletes every cached model and returns how many were removed.
func (s *RedisStore) Purge(ctx context.Context) (int64, error) {
	deleted, err := s.client.FlushByPattern(ctx, redisKeyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("purging model cache: %w", err)
	}
	return deleted, nil
}

// Ping is used by the readiness check.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
