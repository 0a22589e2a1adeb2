// Package cache 缓存层抽象接口
//
// 提供仪表盘统计缓存和管理员欢迎标记，当前由 Redis 实现；
// 未配置 Redis 时统计缓存退化为不缓存，欢迎标记落到持久化存储。
package cache

import (
	"context"
	"time"

	"memoria/internal/shared/model"
)

// ============================================================================
// 缓存接口定义
// ============================================================================

// StatsCache 学年档案统计缓存
type StatsCache interface {
	// GetStats 未命中时返回 (nil, nil)
	GetStats(ctx context.Context, yearID string) (*model.ProfileStats, error)
	SetStats(ctx context.Context, stats *model.ProfileStats, ttl time.Duration) error
	InvalidateStats(ctx context.Context, yearID string) error
}

// WelcomeTracker 管理员欢迎通知去重
type WelcomeTracker interface {
	// MarkWelcomed 首次标记返回 true，已标记返回 false
	MarkWelcomed(ctx context.Context, email string) (bool, error)
}

// ============================================================================
// 组合接口
// ============================================================================

// Cache 缓存组合接口
type Cache interface {
	StatsCache
	WelcomeTracker
	Close() error
}
