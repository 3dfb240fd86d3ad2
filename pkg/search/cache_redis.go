package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores session results in Redis lists so that every bot replica
// sees the same pages.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl, prefix: "inline_query"}
}

func (c *RedisCache) listKey(session int64, kind Kind) string {
	return fmt.Sprintf("%s:%d:%s", c.prefix, session, kind)
}

func (c *RedisCache) sealKey(session int64, kind Kind) string {
	return c.listKey(session, kind) + ":sealed"
}

func (c *RedisCache) Page(ctx context.Context, session int64, kind Kind, offset, limit int) ([]Result, bool, error) {
	items, err := c.load(ctx, session, kind)
	if err != nil {
		return nil, false, err
	}
	sealed, err := c.sealed(ctx, session, kind)
	if err != nil {
		return nil, false, err
	}
	page, ok := slicePage(items, sealed, offset, limit)
	return page, ok, nil
}

// extendRetries bounds how often Extend retries after a concurrent writer
// changed the list between the length check and the push.
const extendRetries = 5

func (c *RedisCache) Extend(ctx context.Context, session int64, kind Kind, offset int, items []Result) error {
	key := c.listKey(session, kind)
	extend := func(tx *redis.Tx) error {
		have, err := tx.LLen(ctx, key).Result()
		if err != nil {
			return err
		}

		fresh := newItems(int(have), offset, items)
		if len(fresh) == 0 {
			return nil
		}

		values := make([]interface{}, 0, len(fresh))
		for _, r := range fresh {
			payload, err := json.Marshal(r)
			if err != nil {
				return err
			}
			values = append(values, string(payload))
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, key, values...)
			pipe.Expire(ctx, key, c.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < extendRetries; i++ {
		err := c.client.Watch(ctx, extend, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("extend %s: %w", key, redis.TxFailedErr)
}

func (c *RedisCache) Seal(ctx context.Context, session int64, kind Kind, total int) error {
	have, err := c.client.LLen(ctx, c.listKey(session, kind)).Result()
	if err != nil {
		return err
	}
	if int(have) != total {
		return nil
	}
	return c.client.Set(ctx, c.sealKey(session, kind), strconv.Itoa(total), c.ttl).Err()
}

func (c *RedisCache) MatchedIDs(ctx context.Context, session int64) (map[string]struct{}, bool, error) {
	sealed, err := c.sealed(ctx, session, KindStrict)
	if err != nil || !sealed {
		return nil, false, err
	}
	items, err := c.load(ctx, session, KindStrict)
	if err != nil {
		return nil, false, err
	}
	ids := make(map[string]struct{}, len(items))
	for _, r := range items {
		ids[r.StickerID] = struct{}{}
	}
	return ids, true, nil
}

func (c *RedisCache) load(ctx context.Context, session int64, kind Kind) ([]Result, error) {
	raw, err := c.client.LRange(ctx, c.listKey(session, kind), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	items := make([]Result, 0, len(raw))
	for _, payload := range raw {
		var r Result
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, nil
}

func (c *RedisCache) sealed(ctx context.Context, session int64, kind Kind) (bool, error) {
	err := c.client.Get(ctx, c.sealKey(session, kind)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	return err == nil, err
}
