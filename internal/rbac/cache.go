package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL bounds how long an effective permission set stays cached.
const DefaultCacheTTL = 5 * time.Minute

// PermissionCache stores effective permission sets keyed by the repository
// generation they were computed under. Sets stored under an older generation
// are never read again and expire with their TTL.
type PermissionCache interface {
	Load(ctx context.Context, gen, userID int64) (PermissionSet, bool, error)
	Store(ctx context.Context, gen, userID int64, set PermissionSet) error
}

// RedisCache implements PermissionCache on redis.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache constructs RedisCache. ttl <= 0 selects DefaultCacheTTL.
func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, prefix: "rbac:perm", ttl: ttl}
}

func (c *RedisCache) entryKey(gen, userID int64) string {
	return fmt.Sprintf("%s:%d:%d", c.prefix, gen, userID)
}

// Load returns the set cached for userID under gen.
func (c *RedisCache) Load(ctx context.Context, gen, userID int64) (PermissionSet, bool, error) {
	raw, err := c.client.Get(ctx, c.entryKey(gen, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return PermissionSet{}, false, nil
	}
	if err != nil {
		return PermissionSet{}, false, err
	}
	var set PermissionSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return PermissionSet{}, false, fmt.Errorf("rbac: decode cached permissions: %w", err)
	}
	return set, true, nil
}

// Store caches set for userID under gen.
func (c *RedisCache) Store(ctx context.Context, gen, userID int64, set PermissionSet) error {
	raw, err := json.Marshal(set)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.entryKey(gen, userID), raw, c.ttl).Err()
}
