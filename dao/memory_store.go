package dao

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rqzrqh/stackflow_hub/common"
)

// MemoryStore keeps records as encoded JSON so callers never share memory
// with the store. Each key carries a version used for the commit check.
type MemoryStore struct {
	lk       sync.Mutex
	values   map[string][]byte
	versions map[string]uint64
	index    map[string]map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:   make(map[string][]byte),
		versions: make(map[string]uint64),
		index:    make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) Key(p1 string, p2 string, asset common.Asset) string {
	return BuildChannelKey(p1, p2, asset)
}

func (s *MemoryStore) read(key string) ([]byte, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.values[key], nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*common.Channel, error) {
	return newTxnBuffer(nil, s.read).Get(key)
}

func (s *MemoryStore) Set(ctx context.Context, ch *common.Channel) error {
	raw, err := json.Marshal(ch)
	if err != nil {
		return err
	}

	s.lk.Lock()
	defer s.lk.Unlock()

	s.putLocked(ch.ID, raw)
	s.indexLocked(ch.Principal1, ch.ID)
	s.indexLocked(ch.Principal2, ch.ID)
	return nil
}

func (s *MemoryStore) Keys(ctx context.Context, principal string) ([]string, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	return sortedKeys(s.index[principal]), nil
}

func (s *MemoryStore) Signature(ctx context.Context, key string) (*common.SignatureRecord, error) {
	return newTxnBuffer(nil, s.read).Signature(key)
}

func (s *MemoryStore) Pending(ctx context.Context, key string) (*common.SignatureRecord, error) {
	return newTxnBuffer(nil, s.read).Pending(key)
}

func (s *MemoryStore) Update(ctx context.Context, keys []string, fn UpdateFunc) error {
	watched := watchKeys(keys)

	s.lk.Lock()
	start := make(map[string]uint64, len(watched))
	for _, k := range watched {
		start[k] = s.versions[k]
	}
	s.lk.Unlock()

	buf := newTxnBuffer(keys, s.read)
	if err := fn(buf); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.lk.Lock()
	defer s.lk.Unlock()

	for _, k := range watched {
		if s.versions[k] != start[k] {
			return ErrTxConflict
		}
	}

	for _, w := range buf.pending() {
		s.putLocked(w.key, w.value)
	}
	for _, ix := range buf.indexes {
		s.indexLocked(ix.principal, ix.key)
	}
	return nil
}

func (s *MemoryStore) putLocked(key string, raw []byte) {
	if raw == nil {
		delete(s.values, key)
	} else {
		s.values[key] = raw
	}
	s.versions[key]++
}

func (s *MemoryStore) indexLocked(principal string, key string) {
	set, ok := s.index[principal]
	if !ok {
		set = make(map[string]struct{})
		s.index[principal] = set
	}
	set[key] = struct{}{}
}
