package modelcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// RedisStore is a Redis-backed alternative to Store, for gateway
// deployments that share a model-list cache across multiple instances.
// Values are JSON-encoded; callers must pass JSON-marshalable values and
// provide a pointer destination type to Decode into on Get.
type RedisStore struct {
	client *redis.Client
	group  singleflight.Group
}

// NewRedisStore wraps an existing *redis.Client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get decodes the JSON value stored under key into dest. It reports
// (false, nil) on a cache miss and (false, err) on a Redis or decode error.
func (s *RedisStore) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set JSON-encodes value and stores it under key with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, raw, ttl).Err()
}

// Delete removes key, if present.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// GetOrLoad is the Redis-backed analogue of Store.GetOrLoad: dest receives
// the cached or freshly-loaded value, decoded from JSON. load's return
// value is JSON-marshaled for both the cache and dest.
func (s *RedisStore) GetOrLoad(ctx context.Context, key string, ttl time.Duration, dest interface{}, load func() (interface{}, error)) error {
	if hit, err := s.Get(ctx, key, dest); err != nil {
		return err
	} else if hit {
		return nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		var probe json.RawMessage
		if hit, err := s.Get(ctx, key, &probe); err == nil && hit {
			return probe, nil
		}
		v, err := load()
		if err != nil {
			return nil, err
		}
		if err := s.Set(ctx, key, v, ttl); err != nil {
			return nil, err
		}
		return v, nil
	})
	if err != nil {
		return err
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
