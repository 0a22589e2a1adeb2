// Package infra Redis 基础设施初始化
package infra

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"memoria/internal/shared/cache"
	cacheredis "memoria/internal/shared/cache/redis"
	"memoria/internal/shared/eventbus"
	eventbusredis "memoria/internal/shared/eventbus/redis"
	"memoria/internal/shared/queue"
	queueredis "memoria/internal/shared/queue/redis"
)

// RedisInfra Redis 基础设施
//
// 一个客户端同时服务缓存、失效事件和邮件发件箱
type RedisInfra struct {
	// 组件（显式命名避免冲突）
	cacheStore    *cacheredis.Store
	eventBusStore *eventbusredis.Store
	queueStore    *queueredis.Store

	// 底层连接
	client *redis.Client
}

// NewRedisInfra 从 URL 创建 Redis 基础设施
func NewRedisInfra(redisURL string) (*RedisInfra, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("[Redis/Infra] Connected to %s", opts.Addr)

	return NewRedisInfraFromClient(client), nil
}

// NewRedisInfraFromClient 从现有客户端创建 Redis 基础设施
func NewRedisInfraFromClient(client *redis.Client) *RedisInfra {
	return &RedisInfra{
		client:        client,
		cacheStore:    cacheredis.NewStoreFromClient(client),
		eventBusStore: eventbusredis.NewStoreFromClient(client),
		queueStore:    queueredis.NewStoreFromClient(client),
	}
}

// Cache 返回缓存组件接口
func (r *RedisInfra) Cache() cache.Cache {
	return r.cacheStore
}

// Bus 返回失效事件总线
func (r *RedisInfra) Bus() eventbus.InvalidationBus {
	return r.eventBusStore
}

// Queue 返回邮件发件箱
func (r *RedisInfra) Queue() queue.Queue {
	return r.queueStore
}

// Client 返回底层 Redis 客户端
func (r *RedisInfra) Client() *redis.Client {
	return r.client
}

// Close 关闭 Redis 连接
func (r *RedisInfra) Close() error {
	return r.client.Close()
}
