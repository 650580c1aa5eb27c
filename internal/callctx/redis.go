package callctx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists call context with a TTL so entries clean themselves
// up; nothing ever deletes them explicitly.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func key(callID string) string { return "callctx:" + callID }

func (s *RedisStore) Put(ctx context.Context, callID string, cc Context) error {
	if callID == "" {
		return fmt.Errorf("callctx: call id is required")
	}
	payload, err := json.Marshal(cc)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key(callID), payload, s.ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, callID string) (Context, bool, error) {
	if callID == "" {
		return Context{}, false, nil
	}
	raw, err := s.rdb.Get(ctx, key(callID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Context{}, false, nil
		}
		return Context{}, false, err
	}
	var cc Context
	if err := json.Unmarshal(raw, &cc); err != nil {
		return Context{}, false, err
	}
	return cc, true, nil
}
