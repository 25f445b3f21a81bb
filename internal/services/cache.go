package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// CacheService provides Redis-backed caching for strategy-generation responses.
// The calculator's own result cache lives in Postgres; this layer only spares
// the AI service from re-answering an identical prompt.
type CacheService struct {
	client *redis.Client
	logger *logrus.Logger
	ctx    context.Context
}

const (
	// StrategyResponseTTL bounds how long an identical prompt reuses a prior
	// AI answer. Candidate sets churn with the competition calendar, so a day
	// is plenty.
	StrategyResponseTTL = 24 * time.Hour
)

// NewCacheService creates a new cache service instance
func NewCacheService(redisClient *redis.Client, logger *logrus.Logger) *CacheService {
	return &CacheService{
		client: redisClient,
		logger: logger,
		ctx:    context.Background(),
	}
}

// buildCacheKey constructs consistent cache keys for this service
func (c *CacheService) buildCacheKey(elements ...string) string {
	return fmt.Sprintf("g-ranking:%s", strings.Join(elements, ":"))
}

// Set stores a value in cache with TTL
func (c *CacheService) Set(key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	err = c.client.Set(c.ctx, key, data, ttl).Err()
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Error("Failed to set cache value")
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"key": key,
		"ttl": ttl.String(),
	}).Debug("Cached value successfully")

	return nil
}

// Get retrieves a value from cache
func (c *CacheService) Get(key string, dest interface{}) error {
	data, err := c.client.Get(c.ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return fmt.Errorf("cache miss")
		}
		c.logger.WithError(err).WithField("key", key).Error("Failed to get cache value")
		return err
	}

	err = json.Unmarshal([]byte(data), dest)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Error("Failed to unmarshal cache value")
		return err
	}

	c.logger.WithField("key", key).Debug("Cache hit")
	return nil
}

// Delete removes a value from cache
func (c *CacheService) Delete(key string) error {
	err := c.client.Del(c.ctx, key).Err()
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Error("Failed to delete cache value")
		return err
	}

	c.logger.WithField("key", key).Debug("Deleted cache value")
	return nil
}

// SetStrategyResponse caches a strategy-generation response keyed by prompt hash
func (c *CacheService) SetStrategyResponse(promptHash string, response interface{}) error {
	key := c.buildCacheKey("strategy", "response", promptHash)
	return c.Set(key, response, StrategyResponseTTL)
}

// GetStrategyResponse attempts to load a cached strategy response
func (c *CacheService) GetStrategyResponse(promptHash string, dest interface{}) error {
	key := c.buildCacheKey("strategy", "response", promptHash)
	return c.Get(key, dest)
}

// InvalidateStrategyResponse drops a cached strategy response so a forced
// recalculation reaches the AI service again.
func (c *CacheService) InvalidateStrategyResponse(promptHash string) error {
	key := c.buildCacheKey("strategy", "response", promptHash)
	return c.Delete(key)
}

// Health check method
func (c *CacheService) IsHealthy() bool {
	err := c.client.Ping(c.ctx).Err()
	return err == nil
}
