package eventbus

import (
	"context"
	"log"
)

// Notify 发布失效事件，bus 为 nil 时忽略
//
// 调用方在写操作提交之后调用，发布失败只记录日志。
func Notify(ctx context.Context, bus InvalidationBus, key Key, yearID, department string) {
	if bus == nil {
		return
	}
	if err := bus.Publish(ctx, NewInvalidation(key, yearID, department)); err != nil {
		log.Printf("[EventBus] Publish %s failed: year=%s error=%v", key, yearID, err)
	}
}
