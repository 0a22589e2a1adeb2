// Package queue 消息队列类型定义
package queue

import (
	"time"
)

// ============================================================================
// 消息类型
// ============================================================================

// MailMessage 待发送的邮件
type MailMessage struct {
	ID        string // Stream 消息 ID，入队时为空
	To        string
	Subject   string
	Text      string
	HTML      string
	CreatedAt time.Time
}

// ============================================================================
// Key 前缀和常量
// ============================================================================

const (
	// KeyMailOutbox 邮件发件箱 Stream
	KeyMailOutbox = "memoria:mail:outbox"

	// MailOutboxMaxLen Stream 最大长度（近似裁剪）
	MailOutboxMaxLen = 10000

	// 消费者组
	MailerConsumerGroup = "mailers"
)
