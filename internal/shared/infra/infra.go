// Package infra 基础设施聚合层
//
// 提供统一的基础设施初始化和依赖注入，包括：
//   - Storage：持久化存储（MongoDB 默认，SQLite/PostgreSQL 可选）
//   - Cache：统计缓存 + 管理员欢迎标记（Redis，未配置时回落到持久化存储）
//   - Bus：失效事件总线（Redis Pub/Sub，未配置时为进程内总线）
//   - Queue：邮件发件箱（Redis Streams，未配置时为 nil）
package infra

import (
	"context"
	"fmt"
	"log"

	"memoria/internal/config"
	"memoria/internal/shared/cache"
	"memoria/internal/shared/eventbus"
	"memoria/internal/shared/queue"
	"memoria/internal/shared/storage"
	"memoria/internal/shared/storage/dbutil"
	"memoria/internal/shared/storage/driver/postgres"
	"memoria/internal/shared/storage/driver/sqlite"
	"memoria/internal/shared/storage/mongostore"
)

// Infrastructure 基础设施聚合结构
type Infrastructure struct {
	// Storage 持久化存储
	Storage storage.PersistentStore

	// Cache 统计缓存与欢迎标记
	Cache cache.Cache

	// Bus 失效事件总线
	Bus eventbus.InvalidationBus

	// Queue 邮件发件箱（只有配置 Redis 时非 nil）
	Queue queue.Queue

	redis *RedisInfra
}

// Open 按配置初始化全部基础设施
func Open(cfg *config.Config) (*Infrastructure, error) {
	store, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}

	i := &Infrastructure{Storage: store}
	if cfg.RedisURL == "" {
		log.Printf("[Infra] Redis not configured, using in-process bus and store-backed cache")
		i.Cache = cache.NewStoreCache(store)
		i.Bus = eventbus.NewLocalBus()
		return i, nil
	}

	r, err := NewRedisInfra(cfg.RedisURL)
	if err != nil {
		store.Close()
		return nil, err
	}
	i.redis = r
	i.Cache = r.Cache()
	i.Bus = r.Bus()
	i.Queue = r.Queue()
	return i, nil
}

// OpenStore 按配置打开持久化存储
func OpenStore(cfg *config.Config) (storage.PersistentStore, error) {
	switch cfg.DatabaseDriver {
	case string(dbutil.DriverMongoDB), "":
		return mongostore.NewStore(cfg.DatabaseURL, cfg.DatabaseDBName, cfg.DatabaseTransactions)
	case string(dbutil.DriverSQLite):
		db, err := sqlite.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return openRepository(db, sqlite.NewDialect())
	case string(dbutil.DriverPostgres):
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return openRepository(db, postgres.NewDialect())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
}

// Ping 检查存储（以及 Redis）连通性
func (i *Infrastructure) Ping(ctx context.Context) error {
	if err := i.Storage.Ping(ctx); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if i.redis != nil {
		if err := i.redis.Client().Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close 关闭所有基础设施连接
func (i *Infrastructure) Close() error {
	var lastErr error

	if i.Bus != nil {
		if err := i.Bus.Close(); err != nil {
			lastErr = err
		}
	}

	if i.Cache != nil {
		if err := i.Cache.Close(); err != nil {
			lastErr = err
		}
	}

	if i.Queue != nil {
		if err := i.Queue.Close(); err != nil {
			lastErr = err
		}
	}

	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			lastErr = err
		}
	}

	if i.Storage != nil {
		if err := i.Storage.Close(); err != nil {
			lastErr = err
		}
	}

	return lastErr
}
