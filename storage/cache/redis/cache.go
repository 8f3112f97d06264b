package rediscache

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/progress"
)

const keyPrefix = "maendeleo:course-units:"

// StructureCache shares course unit totals between API instances.
type StructureCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ progress.StructureCache = (*StructureCache)(nil) // interface compliance check

func NewClient(conf core.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     conf.Address,
		Password: conf.Password,
		DB:       conf.DB,
	})
}

func NewStructureCache(client redis.UniversalClient, ttl time.Duration) *StructureCache {
	return &StructureCache{client: client, ttl: ttl}
}

func cacheKey(courseID string) string { return keyPrefix + courseID }

func (c *StructureCache) Get(ctx context.Context, courseIDs []string) (map[string]int, error) {
	found := make(map[string]int, len(courseIDs))
	if len(courseIDs) == 0 {
		return found, nil
	}

	keys := make([]string, len(courseIDs))
	for i, id := range courseIDs {
		keys[i] = cacheKey(id)
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, core.NewStoreError("reading course structure cache", err)
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue // missing
		}
		total, err := strconv.Atoi(s)
		if err != nil {
			continue
		}
		found[courseIDs[i]] = total
	}
	return found, nil
}

func (c *StructureCache) Set(ctx context.Context, totals map[string]int) error {
	if len(totals) == 0 {
		return nil
	}

	pipe := c.client.TxPipeline()
	for id, total := range totals {
		pipe.Set(ctx, cacheKey(id), total, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return core.NewStoreError("filling course structure cache", err)
	}
	return nil
}

// Invalidate deletes the given courses, or every cached course when none is given.
func (c *StructureCache) Invalidate(ctx context.Context, courseIDs ...string) error {
	keys := make([]string, 0, len(courseIDs))
	for _, id := range courseIDs {
		keys = append(keys, cacheKey(id))
	}

	if len(keys) == 0 {
		iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return core.NewStoreError("scanning course structure cache", err)
		}
		if len(keys) == 0 {
			return nil
		}
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return core.NewStoreError("invalidating course structure cache", errors.WithStack(err))
	}
	return nil
}
