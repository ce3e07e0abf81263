// Package catalog keeps the product reference lists offered when orders
// are keyed in: brands, categories and the models known for each brand.
package catalog

import (
	"context"
	"sort"

	"github.com/redis/go-redis/v9"
)

const (
	brandsKey     = "catalog:brands"
	categoriesKey = "catalog:categories"
)

func modelsKey(brandFold string) string {
	return "catalog:brand:" + brandFold + ":models"
}

// RedisStore keeps each list as a hash from folded name to display name, so
// "acme" and "ACME" land on one entry.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps a redis client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) list(ctx context.Context, key string) ([]string, error) {
	values, err := s.client.HVals(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(values)
	return values, nil
}

func (s *RedisStore) add(ctx context.Context, key, fold, name string) (bool, error) {
	return s.client.HSetNX(ctx, key, fold, name).Result()
}

func (s *RedisStore) remove(ctx context.Context, key, fold string) (bool, error) {
	n, err := s.client.HDel(ctx, key, fold).Result()
	return n > 0, err
}

func (s *RedisStore) exists(ctx context.Context, key, fold string) (bool, error) {
	return s.client.HExists(ctx, key, fold).Result()
}

// seed fills key with defaults when it does not exist yet.
func (s *RedisStore) seed(ctx context.Context, key string, entries map[string]string) error {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil || n > 0 || len(entries) == 0 {
		return err
	}
	values := make([]any, 0, len(entries)*2)
	for fold, name := range entries {
		values = append(values, fold, name)
	}
	return s.client.HSet(ctx, key, values...).Err()
}

// removeBrand drops the brand and its model list together.
func (s *RedisStore) removeBrand(ctx context.Context, fold string) (bool, error) {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.HDel(ctx, brandsKey, fold)
		pipe.Del(ctx, modelsKey(fold))
		return nil
	})
	if err != nil {
		return false, err
	}
	return del.Val() > 0, nil
}
