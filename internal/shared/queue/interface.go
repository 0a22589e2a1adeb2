// Package queue 消息队列抽象接口
//
// 提供邮件发件箱的投递与消费能力，当前由 Redis Streams 实现。
// 消费者组保证多实例部署时每封邮件只被一个实例发送，
// 未确认的消息空闲超时后由 ClaimStaleMail 重新认领发送。
package queue

import (
	"context"
	"time"
)

// ============================================================================
// 队列接口定义
// ============================================================================

// MailQueue 邮件发件箱
type MailQueue interface {
	// EnqueueMail 投递邮件，返回消息 ID
	EnqueueMail(ctx context.Context, msg *MailMessage) (string, error)
	CreateMailConsumerGroup(ctx context.Context) error
	ConsumeMail(ctx context.Context, consumerID string, count int64, blockTimeout time.Duration) ([]*MailMessage, error)
	AckMail(ctx context.Context, messageID string) error
	// ClaimStaleMail 认领未确认超过 minIdle 的邮件（发送失败或消费者宕机），用于重新投递
	ClaimStaleMail(ctx context.Context, consumerID string, minIdle time.Duration, count int64) ([]*MailMessage, error)
	GetMailQueueLength(ctx context.Context) (int64, error)
	GetMailPendingCount(ctx context.Context) (int64, error)
}

// ============================================================================
// 组合接口
// ============================================================================

// Queue 消息队列组合接口
type Queue interface {
	MailQueue
	Close() error
}
