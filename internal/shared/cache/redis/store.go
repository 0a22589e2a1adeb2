// Package redis Redis 缓存实现
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"memoria/internal/shared/cache"
	"memoria/internal/shared/model"
)

// Store Redis 缓存存储
type Store struct {
	client *redis.Client
}

// NewStoreFromClient 从现有 Redis 客户端创建缓存实例
func NewStoreFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close 客户端由 infra 统一关闭
func (s *Store) Close() error {
	return nil
}

// Client 返回底层 Redis 客户端
func (s *Store) Client() *redis.Client {
	return s.client
}

// ============================================================================
// StatsCache
// ============================================================================

// GetStats 读取统计缓存
func (s *Store) GetStats(ctx context.Context, yearID string) (*model.ProfileStats, error) {
	data, err := s.client.Get(ctx, cache.KeyStats+yearID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	var stats model.ProfileStats
	if err := json.Unmarshal(data, &stats); err != nil {
		// 格式不兼容的旧缓存视为未命中
		log.Printf("[Redis/Cache] Discarding undecodable stats for %s: %v", yearID, err)
		return nil, nil
	}
	return &stats, nil
}

// SetStats 写入统计缓存
func (s *Store) SetStats(ctx context.Context, stats *model.ProfileStats, ttl time.Duration) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	return s.client.Set(ctx, cache.KeyStats+stats.YearID, data, ttl).Err()
}

// InvalidateStats 删除统计缓存
func (s *Store) InvalidateStats(ctx context.Context, yearID string) error {
	return s.client.Del(ctx, cache.KeyStats+yearID).Err()
}

// ============================================================================
// WelcomeTracker
// ============================================================================

// MarkWelcomed SETNX 标记，永不过期
func (s *Store) MarkWelcomed(ctx context.Context, email string) (bool, error) {
	key := cache.KeyAdminWelcomed + strings.ToLower(email)
	ok, err := s.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark welcomed: %w", err)
	}
	return ok, nil
}

// 确保 Store 实现了 Cache 接口
var _ cache.Cache = (*Store)(nil)
