package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute, time.Minute)

	var got record
	assert.ErrorIs(t, c.Get(ctx, "k", &got), ErrCacheMiss)

	in := record{Status: 201, Body: []byte(`{"success":true}`)}
	require.NoError(t, c.Set(ctx, "k", in, time.Minute))
	// 修改原值不影响缓存
	in.Body[0] = 'x'

	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, 201, got.Status)
	assert.Equal(t, `{"success":true}`, string(got.Body))

	require.NoError(t, c.Delete(ctx, "k"))
	assert.ErrorIs(t, c.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute, time.Minute)

	require.NoError(t, c.Set(ctx, "k", record{Status: 200}, 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	var got record
	assert.ErrorIs(t, c.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestMultiLevelCacheBackfill(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryCache(time.Minute, time.Minute)
	remote := NewMemoryCache(time.Minute, time.Minute)
	m := NewMultiLevelCache(local, remote)

	// 只存在于 L2
	require.NoError(t, remote.Set(ctx, "k", record{Status: 500}, time.Minute))

	var got record
	require.NoError(t, m.Get(ctx, "k", &got))
	assert.Equal(t, 500, got.Status)

	var fromL1 record
	require.NoError(t, local.Get(ctx, "k", &fromL1))
	assert.Equal(t, 500, fromL1.Status)

	require.NoError(t, m.Delete(ctx, "k"))
	assert.ErrorIs(t, m.Get(ctx, "k", &got), ErrCacheMiss)
	assert.ErrorIs(t, remote.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestMultiLevelCacheSetWritesBoth(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryCache(time.Minute, time.Minute)
	remote := NewMemoryCache(time.Minute, time.Minute)
	m := NewMultiLevelCache(local, remote)

	require.NoError(t, m.Set(ctx, "k", record{Status: 200}, time.Minute))

	var got record
	assert.NoError(t, local.Get(ctx, "k", &got))
	assert.NoError(t, remote.Get(ctx, "k", &got))
}
