package dao

import (
	"context"
	"sort"
	"sync"

	"github.com/rqzrqh/stackflow_hub/common"
)

type LoggedSignature struct {
	Channel *common.Channel
	Record  common.SignatureRecord
	Pending bool
}

// MemoryLog is the in-process stand-in for Dao.
type MemoryLog struct {
	lk          sync.Mutex
	signatures  []LoggedSignature
	deadLetters map[string]*common.DeadLetter
	resolved    map[string]bool
	disputes    map[string]*common.DisputeRequest
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		deadLetters: make(map[string]*common.DeadLetter),
		resolved:    make(map[string]bool),
		disputes:    make(map[string]*common.DisputeRequest),
	}
}

func (m *MemoryLog) RecordSignature(ctx context.Context, ch *common.Channel, rec *common.SignatureRecord, pending bool) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.signatures = append(m.signatures, LoggedSignature{Channel: ch.Clone(), Record: *rec, Pending: pending})
	return nil
}

func (m *MemoryLog) Signatures() []LoggedSignature {
	m.lk.Lock()
	defer m.lk.Unlock()
	return append([]LoggedSignature(nil), m.signatures...)
}

func (m *MemoryLog) PutDeadLetter(ctx context.Context, dl *common.DeadLetter) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	c := *dl
	m.deadLetters[dl.ID] = &c
	return nil
}

func (m *MemoryLog) PendingDeadLetters(ctx context.Context, limit int) ([]*common.DeadLetter, error) {
	m.lk.Lock()
	defer m.lk.Unlock()

	var out []*common.DeadLetter
	for id, dl := range m.deadLetters {
		if m.resolved[id] {
			continue
		}
		c := *dl
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryLog) ResolveDeadLetter(ctx context.Context, id string) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.resolved[id] = true
	return nil
}

func (m *MemoryLog) FailDeadLetter(ctx context.Context, id string, reason string) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	if dl, ok := m.deadLetters[id]; ok {
		dl.Attempts++
		dl.Reason = reason
	}
	return nil
}

func (m *MemoryLog) SubmitDispute(ctx context.Context, req *common.DisputeRequest) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	k := req.Channel + "/" + req.EventTx
	if _, ok := m.disputes[k]; !ok {
		c := *req
		m.disputes[k] = &c
	}
	return nil
}

func (m *MemoryLog) Disputes() []*common.DisputeRequest {
	m.lk.Lock()
	defer m.lk.Unlock()
	out := make([]*common.DisputeRequest, 0, len(m.disputes))
	for _, d := range m.disputes {
		c := *d
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventTx < out[j].EventTx })
	return out
}
