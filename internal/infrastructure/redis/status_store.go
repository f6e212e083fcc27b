package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

const DefaultStatusKey = "storefront:open"

// StatusStore persists the storefront open flag as "1" or "0".
type StatusStore struct {
	rdb goredis.UniversalClient
	key string
}

func NewStatusStore(rdb goredis.UniversalClient, key string) *StatusStore {
	if key == "" {
		key = DefaultStatusKey
	}
	return &StatusStore{rdb: rdb, key: key}
}

func (s *StatusStore) Load(ctx context.Context) (bool, bool, error) {
	v, err := s.rdb.Get(ctx, s.key).Result()
	if errors.Is(err, goredis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("redis status: load: %w", err)
	}
	return v == "1", true, nil
}

func (s *StatusStore) Save(ctx context.Context, open bool) error {
	v := "0"
	if open {
		v = "1"
	}
	if err := s.rdb.Set(ctx, s.key, v, 0).Err(); err != nil {
		return fmt.Errorf("redis status: save: %w", err)
	}
	return nil
}
