// Package cache 缓存层类型定义
package cache

import "time"

// ============================================================================
// Key 前缀和常量
// ============================================================================

const (
	// KeyStats 学年档案统计缓存（后接 yearID）
	KeyStats = "memoria:stats:"

	// KeyAdminWelcomed 管理员欢迎通知标记（后接 email）
	KeyAdminWelcomed = "memoria:admin_welcomed:"

	// StatsTTL 统计缓存有效期
	StatsTTL = 5 * time.Minute
)
