package dao

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/rqzrqh/stackflow_hub/common"
)

const (
	alice = "SP2ZNGJ85ENDY6QRHQ5P2D4FXKGZWCKTB2T0Z55KS"
	bob   = "SP3619DGWH08262BJAG0NPFHZQDPN4TKMXHC0ZQDN"
	carol = "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7"
)

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rds := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rds.Close() })
	return NewRedisStore(rds)
}

func forEachStore(t *testing.T, test func(t *testing.T, s ChannelStore)) {
	t.Run("memory", func(t *testing.T) { test(t, NewMemoryStore()) })
	t.Run("redis", func(t *testing.T) { test(t, newRedisStore(t)) })
}

func newChannel(s ChannelStore, a, b string) *common.Channel {
	key := s.Key(a, b, common.NativeAsset)
	p1, p2 := alice, bob
	if a == carol || b == carol {
		p1, p2 = carol, alice
	}
	return &common.Channel{
		ID:         key,
		Principal1: p1,
		Principal2: p2,
		Balance1:   common.NewUint128(1000),
		Balance2:   common.NewUint128(500),
		Nonce:      common.NewUint128(5),
		State:      common.StateOpen,
	}
}

func TestKeyIsOrderIndependent(t *testing.T) {
	require.Equal(t, BuildChannelKey(alice, bob, common.NativeAsset), BuildChannelKey(bob, alice, common.NativeAsset))
	require.Equal(t, "channels:"+alice+":"+bob+":null", BuildChannelKey(bob, alice, common.NativeAsset))

	token := common.Asset(alice + ".charisma-token")
	require.Equal(t, "channels:"+alice+":"+bob+":"+string(token), BuildChannelKey(alice, bob, token))
	require.NotEqual(t, BuildChannelKey(alice, bob, token), BuildChannelKey(alice, bob, common.NativeAsset))
}

func TestGetSetAndIndex(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ChannelStore) {
		ctx := context.Background()

		ch := newChannel(s, alice, bob)
		got, err := s.Get(ctx, ch.ID)
		require.NoError(t, err)
		require.Nil(t, got)

		require.NoError(t, s.Set(ctx, ch))
		got, err = s.Get(ctx, ch.ID)
		require.NoError(t, err)
		require.Equal(t, ch, got)

		// mutating the returned record leaves the store alone
		got.Nonce = common.NewUint128(99)
		again, err := s.Get(ctx, ch.ID)
		require.NoError(t, err)
		require.Equal(t, "5", again.Nonce.String())

		keys, err := s.Keys(ctx, bob)
		require.NoError(t, err)
		require.Equal(t, []string{ch.ID}, keys)

		keys, err = s.Keys(ctx, carol)
		require.NoError(t, err)
		require.Empty(t, keys)
	})
}

func TestUpdateCommitsAllKeys(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ChannelStore) {
		ctx := context.Background()
		ab := newChannel(s, alice, bob)
		ca := newChannel(s, carol, alice)
		require.NoError(t, s.Set(ctx, ab))
		require.NoError(t, s.Set(ctx, ca))

		err := s.Update(ctx, []string{ab.ID, ca.ID}, func(tx Txn) error {
			for _, key := range []string{ab.ID, ca.ID} {
				ch, err := tx.Get(key)
				if err != nil {
					return err
				}
				ch.Nonce = common.NewUint128(6)
				if err := tx.Put(ch); err != nil {
					return err
				}
				if err := tx.PutPending(&common.SignatureRecord{Channel: key, Nonce: ch.Nonce, DependsOn: "other"}); err != nil {
					return err
				}
			}

			// reads observe buffered writes
			ch, err := tx.Get(ab.ID)
			if err != nil {
				return err
			}
			require.Equal(t, "6", ch.Nonce.String())
			return nil
		})
		require.NoError(t, err)

		for _, key := range []string{ab.ID, ca.ID} {
			ch, err := s.Get(ctx, key)
			require.NoError(t, err)
			require.Equal(t, "6", ch.Nonce.String())

			rec, err := s.Pending(ctx, key)
			require.NoError(t, err)
			require.Equal(t, "other", rec.DependsOn)
		}

		err = s.Update(ctx, []string{ab.ID}, func(tx Txn) error {
			if err := tx.PutSignature(&common.SignatureRecord{Channel: ab.ID, Nonce: common.NewUint128(6)}); err != nil {
				return err
			}
			return tx.DeletePending(ab.ID)
		})
		require.NoError(t, err)

		rec, err := s.Pending(ctx, ab.ID)
		require.NoError(t, err)
		require.Nil(t, rec)
		rec, err = s.Signature(ctx, ab.ID)
		require.NoError(t, err)
		require.Equal(t, "6", rec.Nonce.String())
	})
}

func TestUpdateConflict(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ChannelStore) {
		ctx := context.Background()
		ch := newChannel(s, alice, bob)
		require.NoError(t, s.Set(ctx, ch))

		err := s.Update(ctx, []string{ch.ID}, func(tx Txn) error {
			cur, err := tx.Get(ch.ID)
			if err != nil {
				return err
			}

			racing := cur.Clone()
			racing.Nonce = common.NewUint128(6)
			if err := s.Set(ctx, racing); err != nil {
				return err
			}

			cur.Nonce = common.NewUint128(7)
			return tx.Put(cur)
		})
		require.ErrorIs(t, err, ErrTxConflict)

		got, err := s.Get(ctx, ch.ID)
		require.NoError(t, err)
		require.Equal(t, "6", got.Nonce.String())
	})
}

func TestUpdateRejectsUnlockedKeys(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ChannelStore) {
		ctx := context.Background()
		ab := newChannel(s, alice, bob)
		ca := newChannel(s, carol, alice)

		err := s.Update(ctx, []string{ab.ID}, func(tx Txn) error {
			if err := tx.Put(ab); err != nil {
				return err
			}
			return tx.Put(ca)
		})
		require.Error(t, err)

		// nothing from the failed transaction is visible
		got, err := s.Get(ctx, ab.ID)
		require.NoError(t, err)
		require.Nil(t, got)
	})
}
