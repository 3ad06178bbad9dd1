// redis.go - кеш снимка статистики в Redis
//
// Назначение:
// Хранит сериализованный StatsSnapshot между пересчетами, чтобы
// GET /signals/stats не читал всю таблицу signals на каждый запрос.
//
// Функции:
// - ParseOptions / Connect: подключение по REDIS_URL (host:port или redis://)
// - RedisStatsCache: Get/Set/Delete по ключу, промах = found=false
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultAddr адрес Redis, если REDIS_URL пуст
const DefaultAddr = "localhost:6379"

var (
	newRedisClient = func(opts *redis.Options) *redis.Client {
		return redis.NewClient(opts)
	}
	pingRedis = func(ctx context.Context, client *redis.Client) error {
		return client.Ping(ctx).Err()
	}
)

// ParseOptions разбирает REDIS_URL: redis://, rediss:// или просто host:port
func ParseOptions(addr string) (*redis.Options, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		addr = DefaultAddr
	}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: addr}, nil
}

// Connect создает клиента и проверяет соединение через PING
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	opts, err := ParseOptions(addr)
	if err != nil {
		return nil, err
	}
	client := newRedisClient(opts)
	if err := pingRedis(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", opts.Addr, err)
	}
	return client, nil
}

// kv - подмножество redis.Cmdable, которое использует кеш
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStatsCache кеш снимка статистики
type RedisStatsCache struct {
	client kv
}

// NewRedisStatsCache создает кеш поверх клиента (*redis.Client, *redis.ClusterClient)
func NewRedisStatsCache(client redis.Cmdable) *RedisStatsCache {
	return &RedisStatsCache{client: client}
}

// Get возвращает данные по ключу; отсутствие ключа не ошибка
func (c *RedisStatsCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Set сохраняет данные с TTL (0 - без истечения)
func (c *RedisStatsCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Delete удаляет ключ
func (c *RedisStatsCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
