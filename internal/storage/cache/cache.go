// Package cache keeps hot encounter snapshots in Redis so a resumed
// encounter does not need a database round trip.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cory-johannsen/skirmish/internal/config"
	skerr "github.com/cory-johannsen/skirmish/internal/errors"
)

const (
	snapshotKeyPrefix = "skirmish:encounter:"
	indexKey          = "skirmish:encounters"
)

// SnapshotCache stores encounter exports as JSON strings.
type SnapshotCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewClient opens a Redis client from cfg and checks that it answers.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewSnapshotCache wraps client. A zero ttl keeps entries until deleted.
//
// Precondition: client must be non-nil.
func NewSnapshotCache(client redis.UniversalClient, ttl time.Duration) *SnapshotCache {
	if client == nil {
		panic("cache: redis client is required")
	}
	return &SnapshotCache{client: client, ttl: ttl}
}

func snapshotKey(id string) string { return snapshotKeyPrefix + id }

// Save stores data as the snapshot of encounter id and indexes the id.
func (c *SnapshotCache) Save(ctx context.Context, id string, data map[string]any) error {
	if id == "" {
		return skerr.InvalidArgumentf("snapshot needs an encounter id")
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("cache: encoding snapshot %s: %w", id, err)
	}
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, snapshotKey(id), b, c.ttl)
	pipe.SAdd(ctx, indexKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: saving snapshot %s: %w", id, err)
	}
	return nil
}

// Load returns the cached snapshot of encounter id and refreshes its TTL.
//
// Postcondition: Returns a NotFound error when nothing is cached.
func (c *SnapshotCache) Load(ctx context.Context, id string) (map[string]any, error) {
	b, err := c.client.Get(ctx, snapshotKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, skerr.NotFoundf("no cached snapshot for encounter %q", id)
		}
		return nil, fmt.Errorf("cache: loading snapshot %s: %w", id, err)
	}
	var data map[string]any
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("cache: decoding snapshot %s: %w", id, err)
	}
	if c.ttl > 0 {
		c.client.Expire(ctx, snapshotKey(id), c.ttl)
	}
	return data, nil
}

// Delete drops the snapshot of encounter id. Deleting a missing entry is
// not an error.
func (c *SnapshotCache) Delete(ctx context.Context, id string) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, snapshotKey(id))
	pipe.SRem(ctx, indexKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: deleting snapshot %s: %w", id, err)
	}
	return nil
}

// IDs lists the indexed encounter ids in lexical order. Ids whose
// snapshot expired may still be listed until the next Delete.
func (c *SnapshotCache) IDs(ctx context.Context) ([]string, error) {
	ids, err := c.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("cache: listing snapshots: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}
