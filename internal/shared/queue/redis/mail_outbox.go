// Package redis MailQueue 操作
package redis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"memoria/internal/shared/queue"
)

// Store Redis Streams 队列
type Store struct {
	client *redis.Client
}

// NewStoreFromClient 从现有 Redis 客户端创建队列实例
func NewStoreFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close 客户端由 infra 统一关闭
func (s *Store) Close() error {
	return nil
}

// EnqueueMail 投递邮件到发件箱
func (s *Store) EnqueueMail(ctx context.Context, msg *queue.MailMessage) (string, error) {
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	args := &redis.XAddArgs{
		Stream: queue.KeyMailOutbox,
		MaxLen: queue.MailOutboxMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"to":         msg.To,
			"subject":    msg.Subject,
			"text":       msg.Text,
			"html":       msg.HTML,
			"created_at": createdAt.Format(time.RFC3339Nano),
		},
	}

	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to enqueue mail: %w", err)
	}
	log.Printf("[Redis/Queue] Enqueued mail: to=%s msg_id=%s", msg.To, id)
	return id, nil
}

// CreateMailConsumerGroup 创建邮件消费者组
func (s *Store) CreateMailConsumerGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, queue.KeyMailOutbox, queue.MailerConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// ConsumeMail 消费发件箱中的邮件
func (s *Store) ConsumeMail(ctx context.Context, consumerID string, count int64, blockTimeout time.Duration) ([]*queue.MailMessage, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    queue.MailerConsumerGroup,
		Consumer: consumerID,
		Streams:  []string{queue.KeyMailOutbox, ">"},
		Count:    count,
		Block:    blockTimeout,
	}).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var messages []*queue.MailMessage
	for _, stream := range streams {
		messages = append(messages, decodeMail(stream.Messages)...)
	}
	return messages, nil
}

// ClaimStaleMail 通过 XAUTOCLAIM 把空闲超时的 pending 邮件转给当前消费者
func (s *Store) ClaimStaleMail(ctx context.Context, consumerID string, minIdle time.Duration, count int64) ([]*queue.MailMessage, error) {
	msgs, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   queue.KeyMailOutbox,
		Group:    queue.MailerConsumerGroup,
		Consumer: consumerID,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return decodeMail(msgs), nil
}

func decodeMail(msgs []redis.XMessage) []*queue.MailMessage {
	out := make([]*queue.MailMessage, 0, len(msgs))
	for _, msg := range msgs {
		m := &queue.MailMessage{ID: msg.ID}
		m.To, _ = msg.Values["to"].(string)
		m.Subject, _ = msg.Values["subject"].(string)
		m.Text, _ = msg.Values["text"].(string)
		m.HTML, _ = msg.Values["html"].(string)
		if createdAt, ok := msg.Values["created_at"].(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
				m.CreatedAt = t
			}
		}
		out = append(out, m)
	}
	return out
}

// AckMail 确认邮件已发送
func (s *Store) AckMail(ctx context.Context, messageID string) error {
	return s.client.XAck(ctx, queue.KeyMailOutbox, queue.MailerConsumerGroup, messageID).Err()
}

// GetMailQueueLength 获取发件箱长度
func (s *Store) GetMailQueueLength(ctx context.Context) (int64, error) {
	return s.client.XLen(ctx, queue.KeyMailOutbox).Result()
}

// GetMailPendingCount 获取未确认邮件数量
func (s *Store) GetMailPendingCount(ctx context.Context) (int64, error) {
	pending, err := s.client.XPending(ctx, queue.KeyMailOutbox, queue.MailerConsumerGroup).Result()
	if err != nil {
		return 0, err
	}
	return pending.Count, nil
}

var _ queue.Queue = (*Store)(nil)
