package dao

import (
	"context"
	"encoding/json"
	"sort"

	"golang.org/x/xerrors"

	"github.com/rqzrqh/stackflow_hub/common"
)

// ErrTxConflict is returned by Update when a watched key changed before the
// transaction could commit. Nothing was written.
var ErrTxConflict = xerrors.New("channel store: transaction conflict")

// Txn is the view an Update callback works on. Reads observe the writes
// buffered earlier in the same transaction.
type Txn interface {
	Get(key string) (*common.Channel, error)
	Signature(key string) (*common.SignatureRecord, error)
	Pending(key string) (*common.SignatureRecord, error)

	Put(ch *common.Channel) error
	PutSignature(rec *common.SignatureRecord) error
	PutPending(rec *common.SignatureRecord) error
	DeletePending(key string) error
}

type UpdateFunc func(tx Txn) error

type ChannelStore interface {
	Key(p1 string, p2 string, asset common.Asset) string
	// Get returns nil, nil for an unknown key.
	Get(ctx context.Context, key string) (*common.Channel, error)
	Set(ctx context.Context, ch *common.Channel) error
	// Keys lists the channel keys a principal takes part in, sorted.
	Keys(ctx context.Context, principal string) ([]string, error)
	Signature(ctx context.Context, key string) (*common.SignatureRecord, error)
	Pending(ctx context.Context, key string) (*common.SignatureRecord, error)
	// Update runs fn and commits its writes atomically, provided none of the
	// channel keys (and their signature and pending records) changed since
	// the transaction started.
	Update(ctx context.Context, keys []string, fn UpdateFunc) error
}

func watchKeys(keys []string) []string {
	out := make([]string, 0, len(keys)*3)
	for _, k := range keys {
		out = append(out, k, BuildSignatureKey(k), BuildPendingKey(k))
	}
	return out
}

type readFunc func(key string) ([]byte, error)

type indexEntry struct {
	principal string
	key       string
}

type write struct {
	key   string
	value []byte // nil deletes
}

type txnBuffer struct {
	read    readFunc
	locked  map[string]bool
	writes  map[string]*write
	order   []string
	indexes []indexEntry
}

func newTxnBuffer(keys []string, read readFunc) *txnBuffer {
	locked := make(map[string]bool, len(keys))
	for _, k := range keys {
		locked[k] = true
	}
	return &txnBuffer{
		read:   read,
		locked: locked,
		writes: make(map[string]*write),
	}
}

func (b *txnBuffer) load(key string, v interface{}) (bool, error) {
	var raw []byte
	if w, ok := b.writes[key]; ok {
		raw = w.value
	} else {
		var err error
		if raw, err = b.read(key); err != nil {
			return false, err
		}
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, xerrors.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (b *txnBuffer) Get(key string) (*common.Channel, error) {
	var ch common.Channel
	ok, err := b.load(key, &ch)
	if !ok || err != nil {
		return nil, err
	}
	return &ch, nil
}

func (b *txnBuffer) Signature(key string) (*common.SignatureRecord, error) {
	return b.record(BuildSignatureKey(key))
}

func (b *txnBuffer) Pending(key string) (*common.SignatureRecord, error) {
	return b.record(BuildPendingKey(key))
}

func (b *txnBuffer) record(key string) (*common.SignatureRecord, error) {
	var rec common.SignatureRecord
	ok, err := b.load(key, &rec)
	if !ok || err != nil {
		return nil, err
	}
	return &rec, nil
}

func (b *txnBuffer) check(channelKey string) error {
	if !b.locked[channelKey] {
		return xerrors.Errorf("channel %s is not part of the transaction", channelKey)
	}
	return nil
}

func (b *txnBuffer) stage(key string, v interface{}) error {
	var raw []byte
	if v != nil {
		var err error
		if raw, err = json.Marshal(v); err != nil {
			return err
		}
	}
	if _, ok := b.writes[key]; !ok {
		b.order = append(b.order, key)
	}
	b.writes[key] = &write{key: key, value: raw}
	return nil
}

func (b *txnBuffer) Put(ch *common.Channel) error {
	if err := b.check(ch.ID); err != nil {
		return err
	}
	if err := b.stage(ch.ID, ch); err != nil {
		return err
	}
	b.indexes = append(b.indexes,
		indexEntry{principal: ch.Principal1, key: ch.ID},
		indexEntry{principal: ch.Principal2, key: ch.ID},
	)
	return nil
}

func (b *txnBuffer) PutSignature(rec *common.SignatureRecord) error {
	if err := b.check(rec.Channel); err != nil {
		return err
	}
	return b.stage(BuildSignatureKey(rec.Channel), rec)
}

func (b *txnBuffer) PutPending(rec *common.SignatureRecord) error {
	if err := b.check(rec.Channel); err != nil {
		return err
	}
	return b.stage(BuildPendingKey(rec.Channel), rec)
}

func (b *txnBuffer) DeletePending(key string) error {
	if err := b.check(key); err != nil {
		return err
	}
	return b.stage(BuildPendingKey(key), nil)
}

func (b *txnBuffer) empty() bool {
	return len(b.order) == 0
}

func (b *txnBuffer) pending() []*write {
	out := make([]*write, 0, len(b.order))
	for _, k := range b.order {
		out = append(out, b.writes[k])
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
