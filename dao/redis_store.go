package dao

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/go-redis/redis/v8"
	"golang.org/x/xerrors"

	"github.com/rqzrqh/stackflow_hub/common"
)

type RedisStore struct {
	rds *redis.Client
}

func NewRedisStore(rds *redis.Client) *RedisStore {
	return &RedisStore{
		rds: rds,
	}
}

func (s *RedisStore) Key(p1 string, p2 string, asset common.Asset) string {
	return BuildChannelKey(p1, p2, asset)
}

func (s *RedisStore) get(ctx context.Context, c redis.Cmdable, key string) ([]byte, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return raw, err
}

func (s *RedisStore) Get(ctx context.Context, key string) (*common.Channel, error) {
	raw, err := s.get(ctx, s.rds, key)
	if err != nil || raw == nil {
		return nil, err
	}
	var ch common.Channel
	if err := json.Unmarshal(raw, &ch); err != nil {
		return nil, xerrors.Errorf("decode %s: %w", key, err)
	}
	return &ch, nil
}

func (s *RedisStore) Set(ctx context.Context, ch *common.Channel) error {
	raw, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	_, err = s.rds.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, ch.ID, raw, 0)
		pipe.SAdd(ctx, BuildChannelListKey(ch.Principal1), ch.ID)
		pipe.SAdd(ctx, BuildChannelListKey(ch.Principal2), ch.ID)
		return nil
	})
	return err
}

func (s *RedisStore) Keys(ctx context.Context, principal string) ([]string, error) {
	keys, err := s.rds.SMembers(ctx, BuildChannelListKey(principal)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *RedisStore) Signature(ctx context.Context, key string) (*common.SignatureRecord, error) {
	return s.record(ctx, BuildSignatureKey(key))
}

func (s *RedisStore) Pending(ctx context.Context, key string) (*common.SignatureRecord, error) {
	return s.record(ctx, BuildPendingKey(key))
}

func (s *RedisStore) record(ctx context.Context, key string) (*common.SignatureRecord, error) {
	raw, err := s.get(ctx, s.rds, key)
	if err != nil || raw == nil {
		return nil, err
	}
	var rec common.SignatureRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, xerrors.Errorf("decode %s: %w", key, err)
	}
	return &rec, nil
}

// Update uses WATCH on every involved key and a MULTI/EXEC for the writes.
func (s *RedisStore) Update(ctx context.Context, keys []string, fn UpdateFunc) error {
	err := s.rds.Watch(ctx, func(tx *redis.Tx) error {
		buf := newTxnBuffer(keys, func(key string) ([]byte, error) {
			return s.get(ctx, tx, key)
		})
		if err := fn(buf); err != nil {
			return err
		}
		if buf.empty() {
			return nil
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, w := range buf.pending() {
				if w.value == nil {
					pipe.Del(ctx, w.key)
				} else {
					pipe.Set(ctx, w.key, w.value, 0)
				}
			}
			for _, ix := range buf.indexes {
				pipe.SAdd(ctx, BuildChannelListKey(ix.principal), ix.key)
			}
			return nil
		})
		return err
	}, watchKeys(keys)...)

	if err == redis.TxFailedErr {
		return ErrTxConflict
	}
	return err
}
