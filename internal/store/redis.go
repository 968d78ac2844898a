package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/pagelens/pkg/browser"
)

// RedisStore keeps one JSON value per tab under "<prefix>:record:<targetID>".
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to url and pings it, retrying with backoff while
// the server comes up. A zero ttl keeps records until they are replaced or
// deleted.
func NewRedisStore(ctx context.Context, url, prefix string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	attempts, err := withRetry(ctx, defaultRetryConfig(), func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis after %d attempts: %w", attempts, err)
	}
	return newRedisStore(client, prefix, ttl), nil
}

func newRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "pagelens"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(targetID string) string {
	return s.prefix + ":record:" + targetID
}

func (s *RedisStore) Save(ctx context.Context, rec *browser.RefRecord) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(rec.TargetID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save record for tab %s: %w", rec.TargetID, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, targetID string) (*browser.RefRecord, error) {
	data, err := s.client.Get(ctx, s.key(targetID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w for tab %s", ErrNotFound, targetID)
	}
	if err != nil {
		return nil, fmt.Errorf("load record for tab %s: %w", targetID, err)
	}
	return decodeRecord(targetID, data)
}

func (s *RedisStore) Delete(ctx context.Context, targetID string) error {
	if err := s.client.Del(ctx, s.key(targetID)).Err(); err != nil {
		return fmt.Errorf("delete record for tab %s: %w", targetID, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
