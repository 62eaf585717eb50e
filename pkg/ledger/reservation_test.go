package ledger

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseReservationStore(t *testing.T, s ReservationStore) {
	ctx := context.Background()
	a := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	b := common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")

	_, ok, err := s.Get(ctx, a)
	require.NoError(t, err)
	assert.False(t, ok)

	want := Reservation{
		Account: a,
		To:      b,
		Nonce:   7,
		TxHash:  common.HexToHash("0x01"),
		Method:  "addProduct",
		Since:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.Put(ctx, want))
	require.NoError(t, s.Put(ctx, Reservation{Account: b, Nonce: 1}))

	got, ok, err := s.Get(ctx, a)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Nonce, got.Nonce)
	assert.Equal(t, want.TxHash, got.TxHash)
	assert.Equal(t, want.To, got.To)
	assert.True(t, want.Since.Equal(got.Since))

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	got, ok, err = s.Delete(ctx, a)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(7), got.Nonce)

	_, ok, err = s.Delete(ctx, a)
	require.NoError(t, err)
	assert.False(t, ok, "second delete finds nothing")

	_, _, err = s.Delete(ctx, b)
	require.NoError(t, err)
}

func TestMemoryReservations(t *testing.T) {
	exerciseReservationStore(t, NewMemoryReservations())
}

// 需要真实 Redis: LEDGER_TEST_REDIS_ADDR=localhost:6379
func TestRedisReservations(t *testing.T) {
	addr := os.Getenv("LEDGER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LEDGER_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	key := "ledger:reservations:test:" + time.Now().Format("150405.000000")
	defer client.Del(context.Background(), key)

	exerciseReservationStore(t, NewRedisReservations(client, key))
}
