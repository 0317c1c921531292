package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/screener-back/pkg/config"
	"github.com/screener-back/pkg/models"
)

const latestKeyPrefix = "snapshot:latest:"

// setLatestScript replaces the cached snapshot only when the incoming one is
// not older. KEYS[1] latest key; ARGV ts millis, payload, ttl millis.
var setLatestScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'ts')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'ts', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// RedisClient caches the latest snapshot of every symbol
type RedisClient struct {
	client *redis.Client
	logger *logrus.Entry
	ttl    time.Duration
}

// NewRedisClient creates a new Redis client
func NewRedisClient(cfg *config.RedisConfig, logger *logrus.Logger) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  4 * time.Second,
		IdleTimeout:  5 * time.Minute,
		MaxRetries:   2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return NewRedisClientFromClient(client, cfg.SnapshotTTL, logger), nil
}

// NewRedisClientFromClient wraps an existing go-redis client
func NewRedisClientFromClient(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisClient {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisClient{
		client: client,
		logger: logger.WithField("component", "redis"),
		ttl:    ttl,
	}
}

// Close closes the Redis connection
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// Health checks Redis health
func (rc *RedisClient) Health(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

func latestKey(symbolID int64) string {
	return latestKeyPrefix + strconv.FormatInt(symbolID, 10)
}

// SetLatestSnapshot stores a symbol's newest snapshot. A snapshot older than
// the cached one is ignored, so a late writer never rolls the cache back.
func (rc *RedisClient) SetLatestSnapshot(ctx context.Context, snap *models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	stored, err := setLatestScript.Run(ctx, rc.client,
		[]string{latestKey(snap.SymbolID)},
		snap.Timestamp.UnixMilli(), data, rc.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to cache snapshot: %w", err)
	}
	if stored == 0 {
		rc.logger.WithFields(logrus.Fields{
			"symbol": snap.Symbol,
			"ts":     snap.Timestamp,
		}).Debug("Cached snapshot is newer, skipping")
	}
	return nil
}

// InvalidateLatestSnapshot drops a symbol's cached snapshot so readers go to
// the database until the next successful write
func (rc *RedisClient) InvalidateLatestSnapshot(ctx context.Context, symbolID int64) error {
	if err := rc.client.Del(ctx, latestKey(symbolID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate snapshot: %w", err)
	}
	return nil
}

// GetLatestSnapshot returns the cached snapshot of a symbol; nil on miss
func (rc *RedisClient) GetLatestSnapshot(ctx context.Context, symbolID int64) (*models.Snapshot, error) {
	data, err := rc.client.HGet(ctx, latestKey(symbolID), "data").Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}
