package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one JSON value per thread under a key prefix. A non-zero
// TTL lets Redis expire idle threads on its own.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// RedisOptions configures RedisStore.
type RedisOptions struct {
	Prefix string
	TTL    time.Duration
}

// NewRedisStore creates a store over client.
func NewRedisStore(client redis.UniversalClient, opts RedisOptions) *RedisStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "cairn:checkpoint:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: opts.TTL}
}

func (s *RedisStore) key(threadID string) string {
	return s.prefix + threadID
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	data, err := s.client.Get(ctx, s.key(threadID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(OpLoad, threadID, err)
	}
	cp, err := decode(data)
	if err != nil {
		return nil, wrap(OpLoad, threadID, fmt.Errorf("decode: %w", err))
	}
	return cp, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return wrap(OpSave, threadOf(cp), err)
	}
	data, err := encode(cp)
	if err != nil {
		return wrap(OpSave, cp.ThreadID, fmt.Errorf("encode: %w", err))
	}
	return wrap(OpSave, cp.ThreadID, s.client.Set(ctx, s.key(cp.ThreadID), data, s.ttl).Err())
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, threadID string) error {
	n, err := s.client.Del(ctx, s.key(threadID)).Result()
	if err != nil {
		return wrap(OpDelete, threadID, err)
	}
	if n == 0 {
		return wrap(OpDelete, threadID, ErrNotFound)
	}
	return nil
}

// List implements Store. It walks the keyspace with SCAN.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, wrap(OpList, "", err)
	}
	sort.Strings(ids)
	return ids, nil
}
