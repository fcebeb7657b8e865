package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store remembers which stream messages a consumer group has already
// processed. Keys expire so a replayed topic older than the TTL falls
// through to the consumer's own upsert idempotency.
type Store struct {
	rdb   *redis.Client
	group string
	ttl   time.Duration
}

func NewStore(rdb *redis.Client, group string, ttl time.Duration) *Store {
	return &Store{rdb: rdb, group: group, ttl: ttl}
}

func (s *Store) Key(topic string, partition int, offset int64) string {
	return fmt.Sprintf("idem:%s:%s:%d:%d", s.group, topic, partition, offset)
}

// Seen marks the key and reports whether it was already marked.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// Forget unmarks a key so a message whose processing failed is not
// mistaken for a duplicate on redelivery.
func (s *Store) Forget(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
