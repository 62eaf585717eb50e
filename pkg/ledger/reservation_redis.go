package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

// takeScript 读出并删除一个字段，避免两个实例同时释放同一个保留值
var takeScript = redis.NewScript(`
local v = redis.call("HGET", KEYS[1], ARGV[1])
if v then
	redis.call("HDEL", KEYS[1], ARGV[1])
end
return v
`)

// RedisReservations 以 Redis Hash 保存保留 nonce (field = 小写账户地址)，供多实例共享
type RedisReservations struct {
	client redis.Cmdable
	key    string
}

func NewRedisReservations(client redis.Cmdable, key string) *RedisReservations {
	if key == "" {
		key = "ledger:reservations"
	}
	return &RedisReservations{client: client, key: key}
}

func reservationField(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func (s *RedisReservations) Get(ctx context.Context, addr common.Address) (Reservation, bool, error) {
	raw, err := s.client.HGet(ctx, s.key, reservationField(addr)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Reservation{}, false, nil
	}
	if err != nil {
		return Reservation{}, false, err
	}
	var r Reservation
	if err := json.Unmarshal(raw, &r); err != nil {
		return Reservation{}, false, err
	}
	return r, true, nil
}

func (s *RedisReservations) Put(ctx context.Context, r Reservation) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, s.key, reservationField(r.Account), raw).Err()
}

func (s *RedisReservations) Delete(ctx context.Context, addr common.Address) (Reservation, bool, error) {
	raw, err := takeScript.Run(ctx, s.client, []string{s.key}, reservationField(addr)).Text()
	if errors.Is(err, redis.Nil) {
		return Reservation{}, false, nil
	}
	if err != nil {
		return Reservation{}, false, err
	}
	var r Reservation
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Reservation{}, false, err
	}
	return r, true, nil
}

func (s *RedisReservations) List(ctx context.Context) ([]Reservation, error) {
	all, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Reservation, 0, len(all))
	for _, raw := range all {
		var r Reservation
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
