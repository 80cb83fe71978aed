package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/playoffchallenge/backend/internal/events"
	"github.com/playoffchallenge/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubSettlement returns a fixed settlement per contest, or err.
type stubSettlement struct {
	records map[uuid.UUID]*models.SettlementRecord
	err     error
	calls   int
}

func (s *stubSettlement) ComputeSettlement(_ context.Context, contestID uuid.UUID) (*models.SettlementRecord, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.records[contestID], nil
}

func settlementFor(contestID uuid.UUID, winners []models.Winner) *models.SettlementRecord {
	res := models.SettlementResults{}
	for i, w := range winners {
		res.Rankings = append(res.Rankings, models.Ranking{UserID: w.UserID, Rank: i + 1})
		res.Payouts = append(res.Payouts, models.SettlementPayout{UserID: w.UserID, AmountCents: w.AmountCents})
	}
	return &models.SettlementRecord{ID: uuid.New(), ContestInstanceID: contestID, Results: res}
}

func TestDispatchSettlesAndSchedulesPayouts(t *testing.T) {
	f := newPayoutFixture(3, 50)
	lifecycle := newLifecycle(f.db)
	c := contestIn(f.db, models.ContestStatusLive)

	_, err := lifecycle.Settle(context.Background(), c.ID, admin())
	require.NoError(t, err)

	stub := &stubSettlement{records: map[uuid.UUID]*models.SettlementRecord{
		c.ID: settlementFor(c.ID, f.winners(500, 300)),
	}}
	pub := &recordingPublisher{}
	d := NewOutboxDispatcher(f.db, memOutbox{f.db}, stub, f.orchestrator, pub, 20, 5, zap.NewNop())

	res, err := d.DispatchPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dispatched)
	assert.Zero(t, res.Failed)

	jobs := f.db.allJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, c.ID, jobs[0].ContestID)
	assert.Equal(t, 2, jobs[0].TotalPayouts)

	evs := f.db.outboxEvents()
	require.Len(t, evs, 1)
	assert.NotNil(t, evs[0].DispatchedAt)
	assert.Equal(t, []string{
		events.EventContestCompleted,
		events.EventSettlementCreated,
		events.EventPayoutJobScheduled,
	}, pub.types())

	again, err := d.DispatchPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again.Dispatched)
	assert.Equal(t, 1, stub.calls)
}

func TestDispatchFailureRollsBackAndRecordsError(t *testing.T) {
	f := newPayoutFixture(3, 50)
	lifecycle := newLifecycle(f.db)
	c := contestIn(f.db, models.ContestStatusLive)
	_, err := lifecycle.Settle(context.Background(), c.ID, admin())
	require.NoError(t, err)

	stub := &stubSettlement{err: errors.New("scores not final")}
	pub := &recordingPublisher{}
	d := NewOutboxDispatcher(f.db, memOutbox{f.db}, stub, f.orchestrator, pub, 20, 5, zap.NewNop())

	res, err := d.DispatchPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, stub.calls, "a failed event is not retried within one drain")

	evs := f.db.outboxEvents()
	require.Len(t, evs, 1)
	assert.Nil(t, evs[0].DispatchedAt)
	assert.Equal(t, 1, evs[0].Attempts)
	require.NotNil(t, evs[0].LastError)
	assert.Contains(t, *evs[0].LastError, "scores not final")
	assert.Empty(t, f.db.allJobs())
	assert.Empty(t, pub.types())

	stub.err = nil
	stub.records = map[uuid.UUID]*models.SettlementRecord{c.ID: settlementFor(c.ID, f.winners(100))}
	res, err = d.DispatchPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dispatched)
	assert.Len(t, f.db.allJobs(), 1)
}

func TestDispatchSettlementWithoutPayouts(t *testing.T) {
	f := newPayoutFixture(3, 50)
	lifecycle := newLifecycle(f.db)
	c := contestIn(f.db, models.ContestStatusLive)
	_, err := lifecycle.Settle(context.Background(), c.ID, admin())
	require.NoError(t, err)

	stub := &stubSettlement{records: map[uuid.UUID]*models.SettlementRecord{c.ID: settlementFor(c.ID, nil)}}
	d := NewOutboxDispatcher(f.db, memOutbox{f.db}, stub, f.orchestrator, nil, 20, 5, zap.NewNop())

	res, err := d.DispatchPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dispatched)
	assert.Empty(t, f.db.allJobs())
}

func TestDispatchStopsClaimingAfterMaxAttempts(t *testing.T) {
	f := newPayoutFixture(3, 50)
	lifecycle := newLifecycle(f.db)
	c := contestIn(f.db, models.ContestStatusLive)
	_, err := lifecycle.Settle(context.Background(), c.ID, admin())
	require.NoError(t, err)

	stub := &stubSettlement{err: errors.New("payout structure sums to 120%")}
	d := NewOutboxDispatcher(f.db, memOutbox{f.db}, stub, f.orchestrator, nil, 20, 2, zap.NewNop())

	first, err := d.DispatchPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Failed)
	assert.Zero(t, first.Parked)

	second, err := d.DispatchPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.Failed)
	assert.Equal(t, 1, second.Parked)

	third, err := d.DispatchPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, third.Failed)
	assert.Zero(t, third.Dispatched)
	assert.Equal(t, 2, stub.calls)

	evs := f.db.outboxEvents()
	require.Len(t, evs, 1)
	assert.Nil(t, evs[0].DispatchedAt)
	assert.Equal(t, 2, evs[0].Attempts)
	require.NotNil(t, evs[0].LastError)
	assert.Contains(t, *evs[0].LastError, "120%")
}
