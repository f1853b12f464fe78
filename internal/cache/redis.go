// ABOUTME: Redis-backed task cache store for multi-instance deployments
// ABOUTME: Supports pattern invalidation via SCAN+DEL, unlike the generic memory store

package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowctl/engine/pkg/types"
)

// RedisStore is a Store backed by a Redis client, keyed the same way as
// MemoryStore. The backing store is given a max absolute expiration of
// staleTtl (§4.5): the Redis key TTL is set to StaleTTL so stale-but-usable
// entries remain retrievable until then.
type RedisStore struct {
	client *redis.Client
	logger types.Logger
}

// NewRedisStore wraps an existing redis.Client.
func NewRedisStore(client *redis.Client, logger types.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger}
}

type wireEntry struct {
	Result       *types.TaskExecutionResult `json:"result"`
	CreatedAtUtc time.Time                  `json:"createdAtUtc"`
	TTL          time.Duration              `json:"ttl"`
	StaleTTL     time.Duration              `json:"staleTtl"`
}

func (s *RedisStore) Get(ctx context.Context, key string) (*types.TaskExecutionResult, bool, error) {
	meta, err := s.GetWithMetadata(ctx, key)
	if err != nil || meta.Entry == nil || meta.IsStale {
		return nil, false, err
	}
	return meta.Entry.Result, true, nil
}

func (s *RedisStore) GetWithMetadata(ctx context.Context, key string) (Metadata, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return Metadata{}, nil
	}
	if err != nil {
		return Metadata{}, err
	}

	var we wireEntry
	if err := json.Unmarshal(raw, &we); err != nil {
		return Metadata{}, err
	}
	entry := Entry{Result: we.Result, CreatedAtUtc: we.CreatedAtUtc, TTL: we.TTL, StaleTTL: we.StaleTTL}

	now := time.Now()
	if entry.IsBeyondStaleTTL(now) {
		return Metadata{IsBeyondStaleTTL: true}, nil
	}
	return Metadata{Entry: &entry, IsStale: entry.IsStale(now)}, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, entry Entry) error {
	if entry.CreatedAtUtc.IsZero() {
		entry.CreatedAtUtc = time.Now()
	}
	we := wireEntry{Result: entry.Result, CreatedAtUtc: entry.CreatedAtUtc, TTL: entry.TTL, StaleTTL: entry.StaleTTL}
	raw, err := json.Marshal(we)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, raw, entry.StaleTTL).Err()
}

func (s *RedisStore) Invalidate(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// InvalidatePattern deletes every key matching pattern via SCAN+DEL,
// supported here unlike the generic in-memory store (§9).
func (s *RedisStore) InvalidatePattern(ctx context.Context, pattern string) error {
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}
