package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/config"
	"github.com/kapu/outreach-pipeline-go/pkg/errors"
)

type CacheService struct {
	client *redis.Client
	logger *zap.Logger
}

func NewCacheService(cfg config.RedisConfig, logger *zap.Logger) (*CacheService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.NewCacheError("failed to connect to Redis", "ping", "", err)
	}

	logger.Info("Redis connected",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		zap.Int("db", cfg.DB),
	)

	return NewCacheServiceFromClient(client, logger), nil
}

// NewCacheServiceFromClient wraps an existing client.
func NewCacheServiceFromClient(client *redis.Client, logger *zap.Logger) *CacheService {
	return &CacheService{client: client, logger: logger}
}

// Get decodes the JSON value at key into dest. A missing key reports found=false.
func (c *CacheService) Get(ctx context.Context, key string, dest any) (bool, error) {
	value, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.logger.Error("Cache get failed", zap.String("key", key), zap.Error(err))
		return false, errors.NewCacheError("get failed", "get", key, err)
	}

	if err := json.Unmarshal([]byte(value), dest); err != nil {
		c.logger.Error("Cache unmarshal failed", zap.String("key", key), zap.Error(err))
		return false, errors.NewCacheError("unmarshal failed", "get", key, err)
	}
	return true, nil
}

func (c *CacheService) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return errors.NewCacheError("marshal failed", "set", key, err)
	}

	if err := c.client.Set(ctx, key, jsonData, ttl).Err(); err != nil {
		c.logger.Error("Cache set failed", zap.String("key", key), zap.Error(err))
		return errors.NewCacheError("set failed", "set", key, err)
	}
	return nil
}

func (c *CacheService) Del(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Error("Cache delete failed", zap.String("key", key), zap.Error(err))
		return errors.NewCacheError("delete failed", "del", key, err)
	}
	return nil
}

// Publish sends a JSON payload on a pub/sub channel.
func (c *CacheService) Publish(ctx context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.NewCacheError("marshal failed", "publish", channel, err)
	}
	if err := c.client.Publish(ctx, channel, data).Err(); err != nil {
		c.logger.Error("Cache publish failed", zap.String("channel", channel), zap.Error(err))
		return errors.NewCacheError("publish failed", "publish", channel, err)
	}
	return nil
}

// Subscribe returns a pub/sub handle; the caller closes it.
func (c *CacheService) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.client.Subscribe(ctx, channels...)
}

func (c *CacheService) Close() error {
	if err := c.client.Close(); err != nil {
		c.logger.Error("Failed to close Redis connection", zap.Error(err))
		return err
	}
	c.logger.Info("Redis disconnected")
	return nil
}

func (c *CacheService) IsConnected(ctx context.Context) bool {
	return c.client.Ping(ctx).Err() == nil
}

func (c *CacheService) GetRedisClient() *redis.Client {
	return c.client
}
