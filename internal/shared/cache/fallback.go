// Package cache 无 Redis 时的实现
package cache

import (
	"context"
	"time"

	"memoria/internal/shared/model"
	"memoria/internal/shared/storage"
)

// ============================================================================
// StoreCache - 不缓存统计，欢迎标记写入 admin_sessions
// ============================================================================

// StoreCache 在没有 Redis 时使用的 Cache 实现
type StoreCache struct {
	sessions storage.AdminSessionStore
}

// NewStoreCache 创建 StoreCache 实例
func NewStoreCache(sessions storage.AdminSessionStore) *StoreCache {
	return &StoreCache{sessions: sessions}
}

// Close 关闭缓存
func (c *StoreCache) Close() error {
	return nil
}

// StatsCache 方法：始终未命中

func (c *StoreCache) GetStats(ctx context.Context, yearID string) (*model.ProfileStats, error) {
	return nil, nil
}
func (c *StoreCache) SetStats(ctx context.Context, stats *model.ProfileStats, ttl time.Duration) error {
	return nil
}
func (c *StoreCache) InvalidateStats(ctx context.Context, yearID string) error {
	return nil
}

// MarkWelcomed 委托给持久化存储
func (c *StoreCache) MarkWelcomed(ctx context.Context, email string) (bool, error) {
	return c.sessions.MarkAdminWelcomed(ctx, email)
}

// 确保 StoreCache 实现了 Cache 接口
var _ Cache = (*StoreCache)(nil)
