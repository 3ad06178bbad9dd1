package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKV хранит значения в map и возвращает готовые результаты команд
type fakeKV struct {
	data   map[string]string
	ttl    map[string]time.Duration
	getErr error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (f *fakeKV) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.data[key] = string(value.([]byte))
	f.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeKV) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

// ============ RedisStatsCache Tests ============

func TestRedisStatsCache_RoundTrip(t *testing.T) {
	kv := newFakeKV()
	c := &RedisStatsCache{client: kv}
	ctx := context.Background()

	_, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found, "missing key is a miss, not an error")

	require.NoError(t, c.Set(ctx, "k", []byte(`{"totalSignals":3}`), time.Minute))
	assert.Equal(t, time.Minute, kv.ttl["k"])

	data, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"totalSignals":3}`, string(data))

	require.NoError(t, c.Delete(ctx, "k"))
	_, found, _ = c.Get(ctx, "k")
	assert.False(t, found)
}

func TestRedisStatsCache_GetError(t *testing.T) {
	kv := newFakeKV()
	kv.getErr = errors.New("connection refused")
	c := &RedisStatsCache{client: kv}

	_, found, err := c.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.False(t, found)
}

// ============ Connect Tests ============

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name     string
		addr     string
		wantAddr string
		wantDB   int
		wantErr  bool
	}{
		{"default", "", DefaultAddr, 0, false},
		{"host port", "redis:9999", "redis:9999", 0, false},
		{"url with db", "redis://cache.local:6380/2", "cache.local:6380", 2, false},
		{"bad url", "redis://host:6379/notadb", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := ParseOptions(tt.addr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAddr, opts.Addr)
			assert.Equal(t, tt.wantDB, opts.DB)
		})
	}
}

func TestConnect(t *testing.T) {
	origNewClient := newRedisClient
	origPing := pingRedis
	t.Cleanup(func() {
		newRedisClient = origNewClient
		pingRedis = origPing
	})

	var capturedAddr string
	newRedisClient = func(opts *redis.Options) *redis.Client {
		capturedAddr = opts.Addr
		return redis.NewClient(opts)
	}
	pingRedis = func(ctx context.Context, client *redis.Client) error { return nil }

	client, err := Connect(context.Background(), "redis:9999")
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, "redis:9999", capturedAddr)

	pingRedis = func(ctx context.Context, client *redis.Client) error { return errors.New("refused") }
	_, err = Connect(context.Background(), "redis:9999")
	assert.Error(t, err)
}
