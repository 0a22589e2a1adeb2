package model

import "time"

// NotificationAudienceAll 面向所有管理员的通知
const NotificationAudienceAll = "all"

// NotificationPriority 通知优先级
type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "low"
	NotificationPriorityMedium NotificationPriority = "medium"
	NotificationPriorityHigh   NotificationPriority = "high"
)

// Valid 是否为已知优先级
func (p NotificationPriority) Valid() bool {
	switch p {
	case NotificationPriorityLow, NotificationPriorityMedium, NotificationPriorityHigh:
		return true
	}
	return false
}

// 通知类型
const (
	NotificationTypeInfo    = "info"
	NotificationTypeSuccess = "success"
	NotificationTypeWarning = "warning"
	NotificationTypeError   = "error"
)

// 通知分类
const (
	NotificationCategorySystem     = "system"
	NotificationCategorySubmission = "submission"
	NotificationCategoryModeration = "moderation"
	NotificationCategoryWelcome    = "welcome"
	NotificationCategoryReport     = "report"
)

// Notification 通知
//
// 只追加；除删除外唯一的变更是 Read 标记。
type Notification struct {
	ID        string               `json:"id" bson:"_id" db:"id"`
	UserID    string               `json:"userId" bson:"user_id" db:"user_id"` // 用户 ID 或 "all"
	Type      string               `json:"type" bson:"type" db:"type"`
	Title     string               `json:"title" bson:"title" db:"title"`
	Message   string               `json:"message" bson:"message" db:"message"`
	Timestamp time.Time            `json:"timestamp" bson:"timestamp" db:"timestamp"`
	Read      bool                 `json:"read" bson:"read" db:"read"`
	Priority  NotificationPriority `json:"priority" bson:"priority" db:"priority"`
	Category  string               `json:"category" bson:"category" db:"category"`
	ActionURL string               `json:"actionUrl,omitempty" bson:"action_url,omitempty" db:"action_url"`
	Metadata  map[string]string    `json:"metadata,omitempty" bson:"metadata,omitempty" db:"metadata"`
}

// AdminSession 管理员欢迎通知记录
type AdminSession struct {
	Email      string    `json:"email" bson:"_id" db:"email"`
	WelcomedAt time.Time `json:"welcomedAt" bson:"welcomed_at" db:"welcomed_at"`
}
