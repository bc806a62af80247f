package redis

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := NewClient("redis://"+mr.Addr(), "", zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{name: "Invalid scheme", url: "invalid://url"},
		{name: "Empty URL", url: ""},
		{name: "Unreachable server", url: "redis://127.0.0.1:1/0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.url, "", nil)
			assert.Error(t, err)
			assert.Nil(t, client)
		})
	}
}

func TestClient_Get(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("user_stats:present", "value1"))

	tests := []struct {
		name          string
		key           string
		expectedValue string
		expectNil     bool
	}{
		{name: "Existing key", key: "user_stats:present", expectedValue: "value1"},
		{name: "Missing key", key: "user_stats:absent", expectNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, err := client.Get(ctx, tt.key)
			if tt.expectNil {
				assert.ErrorIs(t, err, ErrNil)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedValue, value)
		})
	}
}

func TestClient_Set(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	key := client.KeyBuilder.KeyActivity("u1", 1700000000000)
	require.NoError(t, client.Set(ctx, key, `{"action":"video_complete"}`, TTLActivity))

	val, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, `{"action":"video_complete"}`, val)
	assert.Equal(t, TTLActivity, mr.TTL(key))
}

func TestClient_HashWithTTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	key := client.KeyBuilder.KeyUserStats("u1")
	genKey := client.KeyBuilder.KeyUserStatsGen("u1")

	ok, err := client.HSetIfGeneration(ctx, genKey, 0, key, "7d", "snapshot-7d", TTLUserStats)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = client.HSetIfGeneration(ctx, genKey, 0, key, "1d", []byte("snapshot-1d"), TTLUserStats)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := client.HGet(ctx, key, "7d")
	require.NoError(t, err)
	assert.Equal(t, "snapshot-7d", got)
	got, err = client.HGet(ctx, key, "1d")
	require.NoError(t, err)
	assert.Equal(t, "snapshot-1d", got)

	_, err = client.HGet(ctx, key, "30d")
	assert.ErrorIs(t, err, ErrNil)

	ttl, err := client.TTL(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, TTLUserStats, ttl)

	mr.FastForward(TTLUserStats + time.Second)
	_, err = client.HGet(ctx, key, "7d")
	assert.ErrorIs(t, err, ErrNil)
}

func TestClient_Generation(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	key := client.KeyBuilder.KeyUserStats("u1")
	genKey := client.KeyBuilder.KeyUserStatsGen("u1")

	gen, err := client.Generation(ctx, genKey)
	require.NoError(t, err)
	assert.Equal(t, int64(0), gen)

	ok, err := client.HSetIfGeneration(ctx, genKey, gen, key, "7d", "before", TTLUserStats)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, client.BumpGeneration(ctx, genKey, TTLUserStatsGen, key))
	assert.False(t, mr.Exists(key), "bump deletes the guarded keys")
	assert.Equal(t, TTLUserStatsGen, mr.TTL(genKey))

	next, err := client.Generation(ctx, genKey)
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)

	ok, err = client.HSetIfGeneration(ctx, genKey, gen, key, "7d", "stale", TTLUserStats)
	require.NoError(t, err)
	assert.False(t, ok, "write guarded by an old generation is dropped")
	assert.False(t, mr.Exists(key))

	ok, err = client.HSetIfGeneration(ctx, genKey, next, key, "7d", "fresh", TTLUserStats)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fresh", mr.HGet(key, "7d"))
}

func TestClient_GenerationErrors(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	mr.SetError("LOADING")

	_, err := client.Generation(ctx, "user_stats_gen:u1")
	assert.Error(t, err)
	assert.Error(t, client.BumpGeneration(ctx, "user_stats_gen:u1", TTLUserStatsGen, "user_stats:u1"))
	_, err = client.HSetIfGeneration(ctx, "user_stats_gen:u1", 0, "user_stats:u1", "7d", "x", TTLUserStats)
	assert.Error(t, err)
}

func TestClient_ScanKeysAndMGet(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()

	kb := client.KeyBuilder
	for i, ms := range []int64{1000, 2000, 3000} {
		require.NoError(t, client.Set(ctx, kb.KeyActivity("u1", ms), i, TTLActivity))
	}
	require.NoError(t, client.Set(ctx, kb.KeyActivity("u2", 1000), "other", TTLActivity))

	keys, err := client.ScanKeys(ctx, kb.KeyActivityPattern("u1"))
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"activity:u1:1000", "activity:u1:2000", "activity:u1:3000"}, keys)

	vals, err := client.MGet(ctx, append(keys, "activity:u1:9999")...)
	require.NoError(t, err)
	require.Len(t, vals, 4)
	assert.Equal(t, "0", vals[0])
	assert.Nil(t, vals[3])

	empty, err := client.MGet(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestClient_Health(t *testing.T) {
	mr, client := setupTestRedis(t)

	assert.NoError(t, client.Health(context.Background()))

	mr.Close()
	assert.Error(t, client.Health(context.Background()))
}

func TestPrefixForLog(t *testing.T) {
	assert.Equal(t, "user_stats:u1", prefixForLog("user_stats:u1"))
	long := prefixForLog("activity:some-very-long-user-identifier:1700000000000")
	assert.Equal(t, "activity:some-very-long-…", long)
}
