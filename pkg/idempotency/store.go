package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store reserves client supplied Idempotency-Key values in Redis.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Key(scope string) string {
	return fmt.Sprintf("idem:%s", scope)
}

// Reserve stores value under key unless the key is taken, in which case the
// earlier value is returned with reserved=false.
func (s *Store) Reserve(ctx context.Context, key, value string) (string, bool, error) {
	k := s.Key(key)
	ok, err := s.rdb.SetNX(ctx, k, value, s.ttl).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return value, true, nil
	}

	existing, err := s.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return s.Reserve(ctx, key, value)
	}
	if err != nil {
		return "", false, err
	}
	return existing, false, nil
}

func (s *Store) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.Key(key)).Err()
}
