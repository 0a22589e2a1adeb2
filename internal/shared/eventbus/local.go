// Package eventbus 进程内实现
package eventbus

import (
	"context"
	"sync"
)

// ============================================================================
// LocalBus - 进程内的 InvalidationBus 实现
// ============================================================================

// LocalBus 把事件扇出给当前进程内的所有订阅者
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[chan *Invalidation]struct{}
	closed bool
}

// NewLocalBus 创建 LocalBus 实例
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[chan *Invalidation]struct{})}
}

// Publish 非阻塞投递，订阅者缓冲区满时丢弃该订阅者的这条事件
func (b *LocalBus) Publish(ctx context.Context, event *Invalidation) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe 订阅事件
func (b *LocalBus) Subscribe(ctx context.Context) (<-chan *Invalidation, error) {
	ch := make(chan *Invalidation, SubscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, nil
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(ch)
	}()
	return ch, nil
}

func (b *LocalBus) remove(ch chan *Invalidation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Close 关闭所有订阅
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	b.closed = true
	return nil
}

// 确保 LocalBus 实现了 InvalidationBus 接口
var _ InvalidationBus = (*LocalBus)(nil)
