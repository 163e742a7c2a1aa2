package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"golang.org/x/xerrors"

	"github.com/rqzrqh/stackflow_hub/common"
	"github.com/rqzrqh/stackflow_hub/dao"
	"github.com/rqzrqh/stackflow_hub/stacks"
)

const (
	owner    = "SP2ZNGJ85ENDY6QRHQ5P2D4FXKGZWCKTB2T0Z55KS"
	alice    = "SP3619DGWH08262BJAG0NPFHZQDPN4TKMXHC0ZQDN"
	bob      = "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7"
	contract = "SP2ZNGJ85ENDY6QRHQ5P2D4FXKGZWCKTB2T0Z55KS.stackflow-0-2-2"
)

type fixture struct {
	store *dao.MemoryStore
	log   *dao.MemoryLog
	rec   *Reconciler
}

func newFixture() *fixture {
	store := dao.NewMemoryStore()
	l := dao.NewMemoryLog()
	cfg := &common.Config{Network: common.Mainnet, Owner: owner, Contract: contract}
	return &fixture{
		store: store,
		log:   l,
		rec:   NewReconciler(cfg, store, l, l),
	}
}

func n(v uint64) common.Uint128 {
	return common.NewUint128(v)
}

// event builds an event between the owner and alice with the owner's and
// alice's balances given in that order.
func event(kind Kind, block uint64, ownerBal, aliceBal, nonce uint64, sender string) *Event {
	p1, p2, swapped := stacks.SortPair(owner, alice)
	b1, b2 := n(ownerBal), n(aliceBal)
	if swapped {
		b1, b2 = b2, b1
	}
	return &Event{
		Kind:       kind,
		Seq:        common.EventSeq{Block: block, Tx: 1},
		Contract:   contract,
		TxID:       "0xtx",
		ChannelKey: ChannelKey{Principal1: p1, Principal2: p2},
		Channel:    ChannelState{Balance1: b1, Balance2: b2, Nonce: n(nonce), ExpiresAt: n(4000)},
		Sender:     sender,
	}
}

func (f *fixture) channel(t *testing.T) *common.Channel {
	ch, err := f.store.Get(context.Background(), f.store.Key(owner, alice, common.NativeAsset))
	require.NoError(t, err)
	require.NotNil(t, ch)
	return ch
}

func balanceOf(ch *common.Channel, p string) string {
	return ch.BalanceAt(ch.SlotOf(p)).String()
}

func TestFundChannelCreatesAndIndexes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	out, err := f.rec.Apply(ctx, event(KindFundChannel, 10, 0, 1000, 0, alice))
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, out)

	ch := f.channel(t)
	require.Equal(t, common.StateOpen, ch.State)
	require.Equal(t, "1000", balanceOf(ch, alice))
	require.Equal(t, "4000", ch.ExpiresAt.String())

	for _, p := range []string{owner, alice} {
		keys, err := f.store.Keys(ctx, p)
		require.NoError(t, err)
		require.Equal(t, []string{ch.ID}, keys)
	}

	// replays are harmless
	out, err = f.rec.Apply(ctx, event(KindFundChannel, 10, 0, 5, 0, alice))
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, out)
	require.Equal(t, "1000", balanceOf(f.channel(t), alice))
}

func TestIgnoredEvents(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	ev := event(KindFundChannel, 10, 0, 1000, 0, alice)
	ev.Contract = "SP3619DGWH08262BJAG0NPFHZQDPN4TKMXHC0ZQDN.imposter"
	out, err := f.rec.Apply(ctx, ev)
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, out)

	ev = event(KindFundChannel, 10, 0, 1000, 0, alice)
	ev.ChannelKey = ChannelKey{Principal1: alice, Principal2: bob}
	out, err = f.rec.Apply(ctx, ev)
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, out)

	keys, err := f.store.Keys(ctx, alice)
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestDepositEventOverridesBalances(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.rec.Apply(ctx, event(KindFundChannel, 10, 0, 1000, 0, alice))
	require.NoError(t, err)

	dep := event(KindDeposit, 11, 0, 1500, 1, alice)
	dep.MySignature = "0xaaaa"
	dep.TheirSignature = "0xbbbb"
	_, err = f.rec.Apply(ctx, dep)
	require.NoError(t, err)

	ch := f.channel(t)
	require.Equal(t, "1500", balanceOf(ch, alice))
	require.Equal(t, "1", ch.Nonce.String())

	rec, err := f.store.Signature(ctx, ch.ID)
	require.NoError(t, err)
	require.Equal(t, "bbbb", rec.OwnerSignature)
	require.Equal(t, "aaaa", rec.OtherSignature)
	require.Equal(t, common.ActionDeposit, rec.Action)
	require.Equal(t, alice, rec.Actor)

	// a later block carrying an older nonce leaves balances alone
	_, err = f.rec.Apply(ctx, event(KindWithdraw, 12, 0, 100, 0, alice))
	require.NoError(t, err)
	ch = f.channel(t)
	require.Equal(t, "1500", balanceOf(ch, alice))
	require.Equal(t, uint64(12), ch.EventSeq.Block)
}

func TestLifecycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	steps := []struct {
		kind  Kind
		state common.State
	}{
		{KindFundChannel, common.StateOpen},
		{KindCloseChannel, common.StateClosing},
		{KindFinalize, common.StateClosed},
		{KindFundChannel, common.StateOpen},
	}
	for i, s := range steps {
		_, err := f.rec.Apply(ctx, event(s.kind, uint64(20+i), 10, 20, 3, alice))
		require.NoError(t, err)
		require.Equal(t, s.state, f.channel(t).State, s.kind)
	}
}

func TestEventsForUnknownChannelsCreateRecords(t *testing.T) {
	f := newFixture()
	_, err := f.rec.Apply(context.Background(), event(KindCloseChannel, 5, 300, 700, 9, alice))
	require.NoError(t, err)

	ch := f.channel(t)
	require.Equal(t, common.StateClosing, ch.State)
	require.Equal(t, "9", ch.Nonce.String())
	require.Equal(t, "300", balanceOf(ch, owner))
}

func seedSignature(t *testing.T, f *fixture, ownerBal, aliceBal, nonce uint64) {
	key := f.store.Key(owner, alice, common.NativeAsset)
	p1, _, _ := stacks.SortPair(owner, alice)
	b1, b2 := n(ownerBal), n(aliceBal)
	if p1 != owner {
		b1, b2 = b2, b1
	}
	err := f.store.Update(context.Background(), []string{key}, func(tx dao.Txn) error {
		return tx.PutSignature(&common.SignatureRecord{
			Channel:        key,
			Balance1:       b1,
			Balance2:       b2,
			Nonce:          n(nonce),
			Action:         common.ActionTransfer,
			Actor:          alice,
			OwnerSignature: "01",
			OtherSignature: "02",
		})
	})
	require.NoError(t, err)
}

func TestForceCloseWithStaleStateIsDisputed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.rec.Apply(ctx, event(KindFundChannel, 10, 0, 1000, 0, alice))
	require.NoError(t, err)
	// off-chain alice paid the owner 400 at nonce 5
	seedSignature(t, f, 400, 600, 5)

	// alice force-closes with the funding state
	force := event(KindForceClose, 30, 0, 1000, 0, alice)
	out, err := f.rec.Apply(ctx, force)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, out)
	require.Equal(t, common.StateDisputed, f.channel(t).State)

	disputes := f.log.Disputes()
	require.Len(t, disputes, 1)
	require.Equal(t, "5", disputes[0].Nonce.String())
	require.Equal(t, alice, disputes[0].Sender)
	require.Equal(t, "01", disputes[0].OwnerSignature)

	// redelivery queues nothing new
	out, err = f.rec.Apply(ctx, force)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, out)
	require.Len(t, f.log.Disputes(), 1)

	_, err = f.rec.Apply(ctx, event(KindDisputeClosure, 31, 400, 600, 5, owner))
	require.NoError(t, err)
	ch := f.channel(t)
	require.Equal(t, common.StateClosed, ch.State)
	require.Equal(t, "400", balanceOf(ch, owner))
}

func TestForceCancelWithoutAdvantageIsNotDisputed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.rec.Apply(ctx, event(KindFundChannel, 10, 500, 500, 0, alice))
	require.NoError(t, err)
	// the owner paid alice at nonce 3, so the older state favours the owner
	seedSignature(t, f, 400, 600, 3)

	_, err = f.rec.Apply(ctx, event(KindForceCancel, 11, 500, 500, 0, alice))
	require.NoError(t, err)
	require.Empty(t, f.log.Disputes())

	// nor when the owner force-closes
	f2 := newFixture()
	_, err = f2.rec.Apply(ctx, event(KindFundChannel, 10, 0, 1000, 0, alice))
	require.NoError(t, err)
	seedSignature(t, f2, 400, 600, 5)
	_, err = f2.rec.Apply(ctx, event(KindForceClose, 11, 0, 1000, 0, owner))
	require.NoError(t, err)
	require.Empty(t, f2.log.Disputes())
	require.Equal(t, common.StateDisputed, f2.channel(t).State)
}

type failingStore struct {
	dao.ChannelStore
	fail bool
}

func (s *failingStore) Update(ctx context.Context, keys []string, fn dao.UpdateFunc) error {
	if s.fail {
		return xerrors.New("store unavailable")
	}
	return s.ChannelStore.Update(ctx, keys, fn)
}

type failingLetters struct {
	*dao.MemoryLog
}

func (failingLetters) PutDeadLetter(ctx context.Context, dl *common.DeadLetter) error {
	return xerrors.New("database unavailable")
}

func TestFailedEventsAreDeadLetteredAndRetried(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{ChannelStore: dao.NewMemoryStore(), fail: true}
	l := dao.NewMemoryLog()
	cfg := &common.Config{Network: common.Mainnet, Owner: owner, Contract: contract}
	r := NewReconciler(cfg, store, l, l)

	rep, err := r.Ingest(ctx, []*Event{event(KindFundChannel, 10, 0, 1000, 0, alice)})
	require.NoError(t, err)
	require.Equal(t, 1, rep.DeadLettered)

	w := NewRetryWorker(ctx, r, l, 0)
	resolved, err := w.RetryOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, resolved)

	pending, err := l.PendingDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, 1, pending[0].Attempts)

	store.fail = false
	resolved, err = w.RetryOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, resolved)

	ch, err := store.Get(ctx, store.Key(owner, alice, common.NativeAsset))
	require.NoError(t, err)
	require.Equal(t, common.StateOpen, ch.State)

	pending, err = l.PendingDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestIngestFailsWhenDeadLetterCannotBeWritten(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{ChannelStore: dao.NewMemoryStore(), fail: true}
	l := dao.NewMemoryLog()
	cfg := &common.Config{Network: common.Mainnet, Owner: owner}
	r := NewReconciler(cfg, store, failingLetters{l}, l)

	_, err := r.Ingest(ctx, []*Event{event(KindFundChannel, 10, 0, 1000, 0, alice)})
	require.Error(t, err)
}

type slowLetters struct {
	*dao.MemoryLog
	entered  chan struct{}
	finished *atomic.Bool
}

func (s *slowLetters) PendingDeadLetters(ctx context.Context, limit int) ([]*common.DeadLetter, error) {
	if s.finished.Load() {
		return nil, nil
	}
	close(s.entered)
	time.Sleep(50 * time.Millisecond)
	s.finished.Store(true)
	return nil, nil
}

func TestRetryWorkerStopWaitsForBatch(t *testing.T) {
	l := &slowLetters{MemoryLog: dao.NewMemoryLog(), entered: make(chan struct{}), finished: atomic.NewBool(false)}
	r := NewReconciler(&common.Config{Network: common.Mainnet, Owner: owner}, dao.NewMemoryStore(), l, l)

	w := NewRetryWorker(context.Background(), r, l, time.Millisecond)
	w.Start()
	<-l.entered
	w.Stop()
	require.True(t, l.finished.Load())
}
