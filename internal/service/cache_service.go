package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gotrip-be/internal/domain"
	"gotrip-be/pkg/redis"
)

// CacheService provides cache-aside access to approval and group snapshots.
// All methods degrade to their database fallback when Redis is not configured.
type CacheService struct {
	redis  *redis.Client
	logger *zap.Logger
}

// NewCacheService creates a new cache service
func NewCacheService(redisClient *redis.Client, logger *zap.Logger) *CacheService {
	return &CacheService{
		redis:  redisClient,
		logger: logger,
	}
}

// GetApprovalStatusWithCache retrieves the approval status with cache-aside pattern
func (c *CacheService) GetApprovalStatusWithCache(ctx context.Context, groupID string, dbFallback func(ctx context.Context, groupID string) (*domain.ApprovalStatus, error)) (*domain.ApprovalStatus, error) {
	if c.redis == nil {
		return dbFallback(ctx, groupID)
	}

	cacheKey := c.redis.KeyBuilder.KeyApprovalStatus(groupID)

	// Try cache first
	cachedData, err := c.redis.Get(ctx, cacheKey)
	if err == nil && cachedData != "" {
		var status domain.ApprovalStatus
		if marshalErr := json.Unmarshal([]byte(cachedData), &status); marshalErr == nil {
			c.logger.Debug("Approval status cache hit", zap.String("group_id", groupID))
			return &status, nil
		} else {
			// Log cache corruption but continue to database
			c.logger.Warn("Approval status cache corrupted, falling back to database",
				zap.String("group_id", groupID),
				zap.Error(marshalErr))
		}
	} else if err != nil && err != goredis.Nil {
		// Log cache error but continue to database
		c.logger.Warn("Approval status cache error, falling back to database",
			zap.String("group_id", groupID),
			zap.Error(err))
	}

	// Cache miss or error - get from database
	c.logger.Debug("Approval status cache miss", zap.String("group_id", groupID))
	status, err := dbFallback(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("database fallback failed: %w", err)
	}

	// Cache the result asynchronously (fire and forget)
	if status != nil {
		go c.cacheStatusAsync(groupID, status)
	}

	return status, nil
}

// CacheApprovalStatus refreshes the cached approval snapshot asynchronously
func (c *CacheService) CacheApprovalStatus(status *domain.ApprovalStatus) {
	if c.redis == nil || status == nil {
		return
	}
	go c.cacheStatusAsync(status.GroupID, status)
}

// GetMemberCountWithCache retrieves a group's member count with caching
func (c *CacheService) GetMemberCountWithCache(ctx context.Context, groupID string, dbFallback func(ctx context.Context, groupID string) (int, error)) (int, error) {
	if c.redis == nil {
		return dbFallback(ctx, groupID)
	}

	cacheKey := c.redis.KeyBuilder.KeyMemberCount(groupID)
	val, err := c.redis.GetWithFallback(ctx, cacheKey, redis.TTLMemberCount, func() (interface{}, error) {
		count, err := dbFallback(ctx, groupID)
		if err != nil {
			return nil, err
		}
		return strconv.Itoa(count), nil
	})
	if err != nil {
		return 0, fmt.Errorf("database fallback failed: %w", err)
	}

	count, convErr := strconv.Atoi(val)
	if convErr != nil {
		// Corrupted counter, fall back to the database directly
		c.logger.Warn("Member count cache corrupted, falling back to database",
			zap.String("group_id", groupID),
			zap.Error(convErr))
		return dbFallback(ctx, groupID)
	}

	return count, nil
}

// GetGroupDetailWithCache retrieves a group's roster with cache-aside pattern
func (c *CacheService) GetGroupDetailWithCache(ctx context.Context, groupID string, dbFallback func(ctx context.Context, groupID string) (*domain.GroupDetail, error)) (*domain.GroupDetail, error) {
	if c.redis == nil {
		return dbFallback(ctx, groupID)
	}

	cacheKey := c.redis.KeyBuilder.KeyGroupDetail(groupID)

	cachedData, err := c.redis.Get(ctx, cacheKey)
	if err == nil && cachedData != "" {
		var detail domain.GroupDetail
		if marshalErr := json.Unmarshal([]byte(cachedData), &detail); marshalErr == nil {
			c.logger.Debug("Group detail cache hit", zap.String("group_id", groupID))
			return &detail, nil
		} else {
			c.logger.Warn("Group detail cache corrupted, falling back to database",
				zap.String("group_id", groupID),
				zap.Error(marshalErr))
		}
	} else if err != nil && err != goredis.Nil {
		c.logger.Warn("Group detail cache error, falling back to database",
			zap.String("group_id", groupID),
			zap.Error(err))
	}

	c.logger.Debug("Group detail cache miss", zap.String("group_id", groupID))
	detail, err := dbFallback(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("database fallback failed: %w", err)
	}

	if detail != nil {
		go c.cacheGroupDetailAsync(groupID, detail)
	}

	return detail, nil
}

// InvalidateApprovalCaches drops the cached approval snapshot after a vote
// or unlock changes the vote set
func (c *CacheService) InvalidateApprovalCaches(groupID string) {
	if c.redis == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		keysToDelete := []string{
			c.redis.KeyBuilder.KeyApprovalStatus(groupID),
		}

		if err := c.redis.Delete(ctx, keysToDelete...); err != nil {
			c.logger.Error("Failed to invalidate approval cache keys",
				zap.Strings("keys", keysToDelete),
				zap.Error(err))
		}

		c.logger.Debug("Approval caches invalidated", zap.String("group_id", groupID))
	}()
}

// InvalidateGroupCaches drops every cached snapshot for a group after a
// membership change, which shifts the member count under the approval status
func (c *CacheService) InvalidateGroupCaches(groupID string) {
	if c.redis == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		keysToDelete := []string{
			c.redis.KeyBuilder.KeyApprovalStatus(groupID),
			c.redis.KeyBuilder.KeyMemberCount(groupID),
			c.redis.KeyBuilder.KeyGroupDetail(groupID),
		}

		if err := c.redis.Delete(ctx, keysToDelete...); err != nil {
			c.logger.Error("Failed to invalidate group cache keys",
				zap.Strings("keys", keysToDelete),
				zap.Error(err))
		}

		c.logger.Debug("Group caches invalidated", zap.String("group_id", groupID))
	}()
}

// HealthCheck performs a health check on the cache system
func (c *CacheService) HealthCheck(ctx context.Context) error {
	if c.redis == nil {
		// Cache disabled is a valid configuration, not a failure
		return nil
	}

	start := time.Now()
	err := c.redis.Health(ctx)
	duration := time.Since(start)

	if err != nil {
		c.logger.Error("Cache health check failed",
			zap.Duration("duration", duration),
			zap.Error(err))
		return err
	}

	c.logger.Debug("Cache health check passed", zap.Duration("duration", duration))
	return nil
}

// cacheStatusAsync caches an approval snapshot asynchronously
func (c *CacheService) cacheStatusAsync(groupID string, status *domain.ApprovalStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cacheKey := c.redis.KeyBuilder.KeyApprovalStatus(groupID)
	statusData, err := json.Marshal(status)
	if err != nil {
		c.logger.Error("Failed to marshal approval status for caching",
			zap.String("group_id", groupID),
			zap.Error(err))
		return
	}

	if err := c.redis.Set(ctx, cacheKey, string(statusData), redis.TTLApprovalStatus); err != nil {
		c.logger.Error("Failed to cache approval status",
			zap.String("group_id", groupID),
			zap.Error(err))
	} else {
		c.logger.Debug("Approval status cached successfully", zap.String("group_id", groupID))
	}
}

// cacheGroupDetailAsync caches a group roster asynchronously
func (c *CacheService) cacheGroupDetailAsync(groupID string, detail *domain.GroupDetail) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cacheKey := c.redis.KeyBuilder.KeyGroupDetail(groupID)
	detailData, err := json.Marshal(detail)
	if err != nil {
		c.logger.Error("Failed to marshal group detail for caching",
			zap.String("group_id", groupID),
			zap.Error(err))
		return
	}

	if err := c.redis.Set(ctx, cacheKey, string(detailData), redis.TTLGroupDetail); err != nil {
		c.logger.Error("Failed to cache group detail",
			zap.String("group_id", groupID),
			zap.Error(err))
	} else {
		c.logger.Debug("Group detail cached successfully", zap.String("group_id", groupID))
	}
}
