// Package redis 基于 Redis Pub/Sub 的失效事件总线
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"memoria/internal/shared/eventbus"
)

// Store Redis 事件总线
type Store struct {
	client *redis.Client
}

// NewStoreFromClient 从现有 Redis 客户端创建事件总线
func NewStoreFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Publish 发布失效事件
func (s *Store) Publish(ctx context.Context, event *eventbus.Invalidation) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation: %w", err)
	}
	if err := s.client.Publish(ctx, eventbus.ChannelInvalidations, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	log.Printf("[Redis/EventBus] Published invalidation: key=%s year=%s", event.Key, event.YearID)
	return nil
}

// Subscribe 订阅失效事件
func (s *Store) Subscribe(ctx context.Context) (<-chan *eventbus.Invalidation, error) {
	pubsub := s.client.Subscribe(ctx, eventbus.ChannelInvalidations)
	// 等待订阅确认，保证返回后发布的事件不会丢失
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe invalidations: %w", err)
	}

	ch := make(chan *eventbus.Invalidation, eventbus.SubscriberBuffer)
	go func() {
		defer close(ch)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev eventbus.Invalidation
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Printf("[Redis/EventBus] Dropping malformed invalidation: %v", err)
					continue
				}
				select {
				case ch <- &ev:
				default:
				}
			}
		}
	}()
	return ch, nil
}

// Close 客户端由 infra 统一关闭
func (s *Store) Close() error {
	return nil
}

var _ eventbus.InvalidationBus = (*Store)(nil)
