// Package eventbus 事件总线类型定义
package eventbus

import (
	"time"
)

// ============================================================================
// 失效事件
// ============================================================================

// Key 失效键，客户端据此刷新对应的数据视图
type Key string

const (
	// KeySchoolYearUpdated 学年增删改或切换激活学年
	KeySchoolYearUpdated Key = "school_year_updated"
	// KeyYearbookProfileChanged 档案创建、修改、审核或删除
	KeyYearbookProfileChanged Key = "yearbook_profile_changed"
	// KeyStrandUpdated 课程、方向、班级变化
	KeyStrandUpdated Key = "strand_updated"
)

// Keys 所有已知失效键
var Keys = []Key{KeySchoolYearUpdated, KeyYearbookProfileChanged, KeyStrandUpdated}

// Valid 是否为已知失效键
func (k Key) Valid() bool {
	for _, v := range Keys {
		if k == v {
			return true
		}
	}
	return false
}

// Invalidation 失效事件
type Invalidation struct {
	Type       string    `json:"type"` // 固定为 "invalidate"
	Key        Key       `json:"key"`
	YearID     string    `json:"yearId,omitempty"`
	Department string    `json:"department,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewInvalidation 创建失效事件
func NewInvalidation(key Key, yearID, department string) *Invalidation {
	return &Invalidation{
		Type:       "invalidate",
		Key:        key,
		YearID:     yearID,
		Department: department,
		Timestamp:  time.Now().UTC(),
	}
}

// ============================================================================
// Key 前缀和常量
// ============================================================================

const (
	// ChannelInvalidations Redis Pub/Sub 频道
	ChannelInvalidations = "memoria:invalidations"

	// SubscriberBuffer 每个订阅者的缓冲区大小，满时丢弃
	SubscriberBuffer = 64
)
