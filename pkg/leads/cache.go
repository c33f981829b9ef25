package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/followup/pkg/models"
	redis "github.com/redis/go-redis/v9"
)

const (
	DefaultCacheTTL = 15 * time.Minute
	cacheKeyPrefix  = "followup:lead:"
)

// Cache is the key/value store behind CachedDirectory.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisCache adapts a go-redis client to Cache.
type RedisCache struct {
	client redis.UniversalClient
}

func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// NewRedisClient parses a redis:// URL and verifies the server answers.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}

		return "", false, err
	}

	return value, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// CachedDirectory is a read-through cache in front of another Directory.
// Cache failures are logged and fall through to the backing directory.
type CachedDirectory struct {
	next   Directory
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedDirectory(next Directory, cache Cache, ttl time.Duration, logger *slog.Logger) *CachedDirectory {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	return &CachedDirectory{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With("module", "lead_cache"),
	}
}

func (d *CachedDirectory) GetLead(ctx context.Context, id string) (*models.Lead, error) {
	key := cacheKeyPrefix + id

	value, found, err := d.cache.Get(ctx, key)
	if err != nil {
		d.logger.WarnContext(ctx, "lead cache read failed", "lead_id", id, "error", err)
	}

	if found {
		var lead models.Lead

		err = json.Unmarshal([]byte(value), &lead)
		if err == nil {
			return &lead, nil
		}

		d.logger.WarnContext(ctx, "discarding corrupt cached lead", "lead_id", id, "error", err)
	}

	lead, err := d.next.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(lead)
	if err == nil {
		err = d.cache.Set(ctx, key, string(body), d.ttl)
	}

	if err != nil {
		d.logger.WarnContext(ctx, "lead cache write failed", "lead_id", id, "error", err)
	}

	return lead, nil
}

func (d *CachedDirectory) SaveLead(ctx context.Context, lead *models.Lead) error {
	err := d.next.SaveLead(ctx, lead)
	if err != nil {
		return err
	}

	err = d.cache.Delete(ctx, cacheKeyPrefix+lead.ID)
	if err != nil {
		d.logger.WarnContext(ctx, "lead cache invalidation failed", "lead_id", lead.ID, "error", err)
	}

	return nil
}
