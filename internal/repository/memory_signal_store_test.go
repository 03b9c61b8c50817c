package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
)

func pending(id, symbol string) models.PendingSignal {
	return models.PendingSignal{
		CandidateSignal: models.CandidateSignal{Symbol: symbol, Direction: models.Long, QualityScore: 90},
		ID:              id,
		AdmittedAt:      time.Unix(1700000000, 0).UTC(),
	}
}

func TestMemorySignalStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySignalStore(10)

	require.NoError(t, s.SaveCandidate(ctx, pending("a", "AAAUSDT")))
	require.NoError(t, s.SaveCandidate(ctx, pending("b", "BBBUSDT")))

	p := pending("a", "AAAUSDT")
	p.Attempts = 3
	require.NoError(t, s.SaveCandidate(ctx, p))

	list, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, 3, list[0].Attempts)

	require.NoError(t, s.SaveConfirmed(ctx, models.ConfirmedSignal{Signal: p, Reasons: []string{"breakout_confirmed"}}))
	require.NoError(t, s.SaveRejected(ctx, models.RejectedSignal{Signal: pending("b", "BBBUSDT"), Status: models.StatusExpired}))

	list, err = s.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	conf, err := s.ListConfirmed(ctx, 0)
	require.NoError(t, err)
	require.Len(t, conf, 1)
	assert.Equal(t, "a", conf[0].Signal.ID)

	rej, err := s.ListRejected(ctx, 5)
	require.NoError(t, err)
	require.Len(t, rej, 1)
	assert.Equal(t, models.StatusExpired, rej[0].Status)
}

func TestMemorySignalStoreBoundedNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySignalStore(3)
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		require.NoError(t, s.SaveConfirmed(ctx, models.ConfirmedSignal{Signal: pending(id, "X")}))
	}

	all, err := s.ListConfirmed(ctx, 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, c := range all {
		ids = append(ids, c.Signal.ID)
	}
	assert.Equal(t, []string{"5", "4", "3"}, ids)

	two, err := s.ListConfirmed(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestLimitClause(t *testing.T) {
	assert.Equal(t, "", limitClause(0))
	assert.Equal(t, " LIMIT 20", limitClause(20))
}

func TestSignalSchemaTables(t *testing.T) {
	stmts := SignalSchema()
	require.Len(t, stmts, 3)
	for i, table := range []string{"signals_pending", "signals_confirmed", "signals_rejected"} {
		assert.Contains(t, stmts[i], "CREATE TABLE IF NOT EXISTS "+table)
		assert.Contains(t, stmts[i], "ReplacingMergeTree")
	}
}
