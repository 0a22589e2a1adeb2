// Package eventbus 事件总线抽象接口
//
// 提供失效事件的发布/订阅能力。单实例部署使用进程内实现，
// 多实例部署由 Redis Pub/Sub 在实例间广播。
package eventbus

import (
	"context"
)

// ============================================================================
// 事件总线接口定义
// ============================================================================

// InvalidationBus 失效事件总线
type InvalidationBus interface {
	// Publish 发布失效事件，发布失败不影响已提交的写操作
	Publish(ctx context.Context, event *Invalidation) error

	// Subscribe 订阅失效事件，ctx 结束时关闭返回的 channel
	Subscribe(ctx context.Context) (<-chan *Invalidation, error)

	Close() error
}
