package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"care-connect-be/internal/entity"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const versionKeyPrefix = "conn:ver:"

const (
	fieldFrom      = "from"
	fieldTo        = "to"
	fieldUpdatedAt = "updated_at"
)

// VersionCache keeps the pair and latest updated_at of each connection in a
// redis hash, so a poll can be authorized and answered without the store.
type VersionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewVersionCache returns a cache that degrades to a no-op when rdb is nil.
func NewVersionCache(rdb *redis.Client, ttl time.Duration) *VersionCache {
	return &VersionCache{rdb: rdb, ttl: ttl}
}

func versionKey(id uuid.UUID) string {
	return versionKeyPrefix + id.String()
}

// Get reports a miss as ok=false with a nil error. A partial or corrupt hash is a miss.
func (c *VersionCache) Get(ctx context.Context, id uuid.UUID) (*entity.ConnectionVersion, bool, error) {
	if c == nil || c.rdb == nil {
		return nil, false, nil
	}
	fields, err := c.rdb.HGetAll(ctx, versionKey(id)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("version cache get %s: %w", id, err)
	}
	v, ok := decodeVersion(id, fields)
	return v, ok, nil
}

func decodeVersion(id uuid.UUID, fields map[string]string) (*entity.ConnectionVersion, bool) {
	from, err := uuid.Parse(fields[fieldFrom])
	if err != nil {
		return nil, false
	}
	to, err := uuid.Parse(fields[fieldTo])
	if err != nil {
		return nil, false
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, fields[fieldUpdatedAt])
	if err != nil {
		return nil, false
	}
	return &entity.ConnectionVersion{Id: id, FromProfileId: from, ToProfileId: to, UpdatedAt: updatedAt.UTC()}, true
}

// Set only moves the cached version forward, so a slow writer cannot roll it back.
func (c *VersionCache) Set(ctx context.Context, v entity.ConnectionVersion) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	key := versionKey(v.Id)

	err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, fieldUpdatedAt).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			if prev, perr := time.Parse(time.RFC3339Nano, current); perr == nil && !v.UpdatedAt.After(prev) {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				fieldFrom, v.FromProfileId.String(),
				fieldTo, v.ToProfileId.String(),
				fieldUpdatedAt, v.UpdatedAt.UTC().Format(time.RFC3339Nano),
			)
			pipe.Expire(ctx, key, c.ttl)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("version cache set %s: %w", v.Id, err)
	}
	return nil
}

// Invalidate drops the entry so the next read falls through to the store.
func (c *VersionCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	if err := c.rdb.Del(ctx, versionKey(id)).Err(); err != nil {
		return fmt.Errorf("version cache invalidate %s: %w", id, err)
	}
	return nil
}
