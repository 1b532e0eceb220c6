package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/meschain/marketsync/internal/infrastructure/config"
)

func TestMemoryDedupeStore_Claim(t *testing.T) {
	s := NewMemoryDedupeStore(time.Hour)
	defer s.Close()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := s.Claim(ctx, "trendyol:e1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Claim(ctx, "trendyol:e1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second delivery inside the ttl")

	ok, _ = s.Claim(ctx, "n11:e1", time.Minute)
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Minute)
	ok, _ = s.Claim(ctx, "trendyol:e1", time.Minute)
	assert.True(t, ok, "claim expires with its ttl")

	require.NoError(t, s.Release(ctx, "trendyol:e1"))
	ok, _ = s.Claim(ctx, "trendyol:e1", time.Minute)
	assert.True(t, ok, "released claim can be taken again")
}

func TestMemoryDedupeStore_Sweep(t *testing.T) {
	s := NewMemoryDedupeStore(time.Hour)
	defer s.Close()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_, _ = s.Claim(context.Background(), "a", time.Second)
	_, _ = s.Claim(context.Background(), "b", time.Hour)
	now = now.Add(time.Minute)
	s.sweep()
	assert.Equal(t, 1, s.Len())
}

func TestMemoryDedupeStore_ConcurrentClaimsWinOnce(t *testing.T) {
	s := NewMemoryDedupeStore(time.Hour)
	defer s.Close()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Claim(context.Background(), "same", time.Minute)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestMemoryDedupeStore_CloseTwice(t *testing.T) {
	s := NewMemoryDedupeStore(0)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

type setNXFunc struct {
	redis.Cmdable
	fn  func(key string, ttl time.Duration) (bool, error)
	del func(keys ...string) error
}

func (f setNXFunc) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if err := f.del(keys...); err != nil {
		cmd.SetErr(err)
		return cmd
	}
	cmd.SetVal(int64(len(keys)))
	return cmd
}

func (f setNXFunc) SetNX(ctx context.Context, key string, _ interface{}, ttl time.Duration) *redis.BoolCmd {
	ok, err := f.fn(key, ttl)
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(ok)
	cmd.SetErr(err)
	return cmd
}

func TestRedisDedupeStore_Claim(t *testing.T) {
	var gotKey string
	var gotTTL time.Duration
	s := NewRedisDedupeStore(setNXFunc{fn: func(key string, ttl time.Duration) (bool, error) {
		gotKey, gotTTL = key, ttl
		return true, nil
	}}, "")

	ok, err := s.Claim(context.Background(), "hepsiburada:e9", 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, DefaultKeyPrefix+"hepsiburada:e9", gotKey)
	assert.Equal(t, 10*time.Minute, gotTTL)
}

func TestRedisDedupeStore_Release(t *testing.T) {
	var deleted []string
	s := NewRedisDedupeStore(setNXFunc{del: func(keys ...string) error {
		deleted = append(deleted, keys...)
		return nil
	}}, "test:")

	require.NoError(t, s.Release(context.Background(), "trendyol:e1"))
	assert.Equal(t, []string{"test:trendyol:e1"}, deleted)

	failing := NewRedisDedupeStore(setNXFunc{del: func(...string) error { return errors.New("timeout") }}, "")
	assert.ErrorContains(t, failing.Release(context.Background(), "k"), "timeout")
}

func TestRedisDedupeStore_ClaimError(t *testing.T) {
	s := NewRedisDedupeStore(setNXFunc{fn: func(string, time.Duration) (bool, error) {
		return false, errors.New("connection reset")
	}}, "test:")

	ok, err := s.Claim(context.Background(), "k", time.Minute)
	assert.False(t, ok)
	assert.ErrorContains(t, err, "connection reset")
}

func TestDedupeStoreFactory(t *testing.T) {
	t.Run("no redis host uses memory", func(t *testing.T) {
		store, closer, err := NewDedupeStoreFactory(config.RedisConfig{}).Create(context.Background())
		require.NoError(t, err)
		defer closer.Close()
		assert.IsType(t, &MemoryDedupeStore{}, store)
	})

	t.Run("unreachable redis falls back", func(t *testing.T) {
		f := NewDedupeStoreFactory(config.RedisConfig{Host: "127.0.0.1", Port: 1}, WithLogger(zaptest.NewLogger(t)))
		store, closer, err := f.Create(context.Background())
		require.NoError(t, err)
		defer closer.Close()
		assert.IsType(t, &MemoryDedupeStore{}, store)
	})

	t.Run("fallback disabled", func(t *testing.T) {
		f := NewDedupeStoreFactory(config.RedisConfig{Host: "127.0.0.1", Port: 1}, WithInMemoryFallback(false))
		_, _, err := f.Create(context.Background())
		assert.Error(t, err)
	})

	t.Run("memory stores have no redis client", func(t *testing.T) {
		stores, err := NewDedupeStoreFactory(config.RedisConfig{}).Open(context.Background())
		require.NoError(t, err)
		assert.Nil(t, stores.Redis)
		assert.NoError(t, stores.Close())
	})
}
