package dao

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rqzrqh/stackflow_hub/common"
)

func TestMemoryLogDeadLetters(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLog()

	now := time.Now()
	require.NoError(t, m.PutDeadLetter(ctx, &common.DeadLetter{ID: "b", Kind: "deposit", CreatedAt: now.Add(time.Second)}))
	require.NoError(t, m.PutDeadLetter(ctx, &common.DeadLetter{ID: "a", Kind: "withdraw", CreatedAt: now}))

	pending, err := m.PendingDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "a", pending[0].ID)

	require.NoError(t, m.FailDeadLetter(ctx, "a", "still broken"))
	require.NoError(t, m.ResolveDeadLetter(ctx, "b"))

	pending, err = m.PendingDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, 1, pending[0].Attempts)
	require.Equal(t, "still broken", pending[0].Reason)
}

func TestMemoryLogDisputesOncePerTx(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLog()

	req := &common.DisputeRequest{Channel: "channels:x", EventTx: "0x01", Nonce: common.NewUint128(3)}
	require.NoError(t, m.SubmitDispute(ctx, req))
	require.NoError(t, m.SubmitDispute(ctx, req))
	require.NoError(t, m.SubmitDispute(ctx, &common.DisputeRequest{Channel: "channels:x", EventTx: "0x02"}))

	require.Len(t, m.Disputes(), 2)
}
