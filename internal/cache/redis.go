package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// InitRedis initializes Redis connection
func InitRedis(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// RedisCache shares conversions between processes. Each direction is one hash
// (field = normalized key, value = JSON Entry) and each rule owns a set listing
// its "direction|key" members so it can be invalidated without a scan. Entries
// never expire; the hashes grow with the number of distinct resolved urls.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
	logger *logrus.Entry
}

// RedisConfig holds RedisCache settings
type RedisConfig struct {
	Client *redis.Client
	Prefix string
	Logger *logrus.Entry
}

// NewRedisCache creates a Redis backed cache
func NewRedisCache(cfg RedisConfig) *RedisCache {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "niceurl"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RedisCache{
		rdb:    cfg.Client,
		prefix: prefix,
		logger: logger.WithField("component", "redis-cache"),
	}
}

func (c *RedisCache) hashKey(dir Direction) string {
	return fmt.Sprintf("%s:%s", c.prefix, dir)
}

func (c *RedisCache) ruleKey(ruleID int) string {
	return fmt.Sprintf("%s:rule:%d", c.prefix, ruleID)
}

// Get implements Cache. Redis errors are logged and reported as a miss.
func (c *RedisCache) Get(ctx context.Context, dir Direction, key string) (Entry, bool) {
	raw, err := c.rdb.HGet(ctx, c.hashKey(dir), key).Result()
	if err == redis.Nil {
		return Entry{}, false
	}
	if err != nil {
		c.logger.WithError(err).Warn("redis cache get failed")
		return Entry{}, false
	}

	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("corrupt cache entry")
		return Entry{}, false
	}
	return e, true
}

// Set implements Cache
func (c *RedisCache) Set(ctx context.Context, dir Direction, key string, e Entry) {
	data, err := json.Marshal(e)
	if err != nil {
		c.logger.WithError(err).Warn("failed to marshal cache entry")
		return
	}

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, c.hashKey(dir), key, data)
		pipe.SAdd(ctx, c.ruleKey(e.RuleID), entryKey(dir, key))
		return nil
	})
	if err != nil {
		c.logger.WithError(err).Warn("redis cache set failed")
	}
}

// InvalidateRule implements Cache. Members whose hash value now belongs to
// another rule are left alone.
func (c *RedisCache) InvalidateRule(ctx context.Context, ruleID int) (int, error) {
	ruleKey := c.ruleKey(ruleID)
	members, err := c.rdb.SMembers(ctx, ruleKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read rule index: %w", err)
	}

	removed := 0
	for _, member := range members {
		dir, key, ok := strings.Cut(member, "|")
		if !ok {
			continue
		}
		hk := c.hashKey(Direction(dir))
		e, found := c.Get(ctx, Direction(dir), key)
		if !found || e.RuleID != ruleID {
			continue
		}
		n, err := c.rdb.HDel(ctx, hk, key).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to delete cache entry: %w", err)
		}
		removed += int(n)
	}

	if err := c.rdb.Del(ctx, ruleKey).Err(); err != nil {
		return removed, fmt.Errorf("failed to delete rule index: %w", err)
	}
	return removed, nil
}
