package relay

import (
	"context"
	"time"

	"callnote-relay/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper claims delivery ids in Redis with a TTL window.
type RedisDeduper struct {
	RDB *redis.Client
	TTL time.Duration
}

const dedupeKeyPrefix = "webhook:delivery:"

func (d RedisDeduper) Claim(ctx context.Context, deliveryID string) (bool, error) {
	ttl := d.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return utils.ClaimOnce(ctx, d.RDB, dedupeKeyPrefix+deliveryID, ttl)
}

func (d RedisDeduper) Release(ctx context.Context, deliveryID string) error {
	return utils.ReleaseClaim(ctx, d.RDB, dedupeKeyPrefix+deliveryID)
}
