// Package kvstore implements the L2 warm key/value adapter: the
// durable medium for the write buffer queue, sync queue, dead-letter
// queue, and warm cache copies.
package kvstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/deliveryhero/asya/olympus/internal/olympuserr"
)

// Store is the L2 contract: get/set/del/lpush/hgetall, plus lrange and
// hset.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
	LPush(ctx context.Context, list string, value []byte) error
	LRange(ctx context.Context, list string, start, stop int64) ([][]byte, error)
	HGetAll(ctx context.Context, prefix string) (map[string][]byte, error)
	HSet(ctx context.Context, hash, field string, value []byte) error
}

// RedisStore backs Store with go-redis/v9.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an already-configured *redis.Client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classify("kvstore.Get", err)
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return classify("kvstore.Set", err)
	}
	return nil
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return classify("kvstore.Del", err)
	}
	return nil
}

func (s *RedisStore) LPush(ctx context.Context, list string, value []byte) error {
	if err := s.client.LPush(ctx, list, value).Err(); err != nil {
		return classify("kvstore.LPush", err)
	}
	return nil
}

func (s *RedisStore) LRange(ctx context.Context, list string, start, stop int64) ([][]byte, error) {
	vals, err := s.client.LRange(ctx, list, start, stop).Result()
	if err != nil {
		return nil, classify("kvstore.LRange", err)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (s *RedisStore) HGetAll(ctx context.Context, prefix string) (map[string][]byte, error) {
	res, err := s.client.HGetAll(ctx, prefix).Result()
	if err != nil {
		return nil, classify("kvstore.HGetAll", err)
	}
	out := make(map[string][]byte, len(res))
	for k, v := range res {
		out[k] = []byte(v)
	}
	return out, nil
}

func (s *RedisStore) HSet(ctx context.Context, hash, field string, value []byte) error {
	if err := s.client.HSet(ctx, hash, field, value).Err(); err != nil {
		return classify("kvstore.HSet", err)
	}
	return nil
}

// classify maps a go-redis error onto olympuserr kinds: context
// deadline/cancellation becomes Timeout, a failed transaction
// Conflict, a network error StoreTransient, anything else StoreFatal.
// No error is reported as a separate "store unavailable" kind.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return olympuserr.Wrap(olympuserr.Timeout, op, "deadline exceeded", err)
	case errors.Is(err, redis.TxFailedErr):
		return olympuserr.Wrap(olympuserr.Conflict, op, "transaction failed", err)
	default:
		// Network/connection errors are transient and worth retrying;
		// anything else (bad argument, wrong type) is fatal.
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) {
			return olympuserr.Wrap(olympuserr.StoreTransient, op, "network error", err)
		}
		return olympuserr.Wrap(olympuserr.StoreFatal, op, "redis command failed", err)
	}
}
