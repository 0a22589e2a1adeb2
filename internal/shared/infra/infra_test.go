package infra

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoria/internal/config"
	"memoria/internal/shared/cache"
	"memoria/internal/shared/eventbus"
	"memoria/internal/shared/storage/repository"
)

func TestOpen_SQLiteWithoutRedis(t *testing.T) {
	cfg := &config.Config{DatabaseDriver: "sqlite", DatabaseURL: ":memory:"}

	i, err := Open(cfg)
	require.NoError(t, err)
	defer i.Close()

	assert.IsType(t, &repository.Store{}, i.Storage)
	assert.IsType(t, &cache.StoreCache{}, i.Cache)
	assert.IsType(t, &eventbus.LocalBus{}, i.Bus)
	assert.Nil(t, i.Queue)
	require.NoError(t, i.Ping(context.Background()))

	// 无 Redis 时欢迎标记落到 admin_sessions
	first, err := i.Cache.MarkWelcomed(context.Background(), "admin@memoria.test")
	require.NoError(t, err)
	assert.True(t, first)
	again, err := i.Cache.MarkWelcomed(context.Background(), "admin@memoria.test")
	require.NoError(t, err)
	assert.False(t, again)
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, err := OpenStore(&config.Config{DatabaseDriver: "cassandra"})
	assert.Error(t, err)
}

func TestNewRedisInfra_BadURL(t *testing.T) {
	_, err := NewRedisInfra("not-a-redis-url")
	assert.Error(t, err)
}
