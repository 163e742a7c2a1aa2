package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opencensus.io/stats/view"
)

func TestRecordRequest(t *testing.T) {
	require.NoError(t, Register())

	ctx := context.Background()
	RecordRequest(ctx, "deposit", "200", time.Now())
	RecordRequest(ctx, "deposit", "409", time.Now())
	RecordEvent(ctx, "fund-channel", "applied")
	RecordDeadLetter(ctx, "deposit")

	rows, err := view.RetrieveData(RequestsView.Name)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 2)

	rows, err = view.RetrieveData(DeadLettersView.Name)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.EqualValues(t, 1, rows[0].Data.(*view.CountData).Value)
}
