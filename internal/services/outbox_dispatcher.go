package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/playoffchallenge/backend/internal/events"
	"github.com/playoffchallenge/backend/internal/models"
	"github.com/playoffchallenge/backend/internal/repositories"
	"go.uber.org/zap"
)

// DispatchResult summarizes one outbox drain.
type DispatchResult struct {
	Dispatched int
	Failed     int
	// Parked counts failures that used up the event's last attempt.
	Parked int
}

// OutboxDispatcher drains event_outbox. A contest_completed event settles
// the contest and schedules its payouts in the same transaction that marks
// the event dispatched.
type OutboxDispatcher struct {
	tx          Transactor
	outbox      OutboxStore
	settlement  SettlementComputer
	payouts     *PayoutOrchestrationService
	publisher   events.Publisher
	batchSize   int
	maxAttempts int
	log         *zap.Logger
}

func NewOutboxDispatcher(
	tx Transactor,
	outbox OutboxStore,
	settlement SettlementComputer,
	payouts *PayoutOrchestrationService,
	publisher events.Publisher,
	batchSize, maxAttempts int,
	log *zap.Logger,
) *OutboxDispatcher {
	if batchSize <= 0 {
		batchSize = 20
	}
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &OutboxDispatcher{
		tx:          tx,
		outbox:      outbox,
		settlement:  settlement,
		payouts:     payouts,
		publisher:   publisher,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// DispatchPending handles up to batchSize events, each in its own
// transaction. A failed event is rolled back, marked with its error and left
// for the next drain. After maxAttempts failures the event is no longer
// claimed and stays in event_outbox with its last error.
func (d *OutboxDispatcher) DispatchPending(ctx context.Context) (DispatchResult, error) {
	var res DispatchResult
	var afterID int64

	for i := 0; i < d.batchSize; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var event *models.OutboxEvent
		var published []events.Event
		err := d.tx.WithinTx(ctx, func(ctx context.Context) error {
			e, err := d.outbox.ClaimNext(ctx, afterID, d.maxAttempts)
			if err != nil {
				return err
			}
			event = e
			published, err = d.handle(ctx, e)
			if err != nil {
				return err
			}
			return d.outbox.MarkDispatched(ctx, e.ID)
		})
		if event == nil {
			if err == nil || errors.Is(err, repositories.ErrNotFound) {
				return res, nil
			}
			return res, fmt.Errorf("claim outbox event: %w", err)
		}
		afterID = event.ID

		if err != nil {
			res.Failed++
			fields := []zap.Field{
				zap.Int64("event_id", event.ID),
				zap.String("type", event.EventType),
				zap.Int("attempt", event.Attempts+1),
				zap.Error(err),
			}
			if event.Attempts+1 >= d.maxAttempts {
				res.Parked++
				d.log.Error("outbox event gave up after max attempts", fields...)
			} else {
				d.log.Warn("outbox event failed", fields...)
			}
			if markErr := d.outbox.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
				d.log.Error("failed to record outbox failure", zap.Int64("event_id", event.ID), zap.Error(markErr))
			}
			continue
		}

		res.Dispatched++
		for _, ev := range published {
			if err := d.publisher.Publish(ctx, events.StreamContest, ev); err != nil {
				d.log.Warn("failed to publish event", zap.String("type", ev.Type), zap.Error(err))
			}
		}
	}
	return res, nil
}

// handle runs the side effects of one event and returns what to publish
// after commit.
func (d *OutboxDispatcher) handle(ctx context.Context, e *models.OutboxEvent) ([]events.Event, error) {
	switch e.EventType {
	case models.EventContestCompleted:
		contestID := e.AggregateID
		out := []events.Event{{
			Type:    events.EventContestCompleted,
			Payload: map[string]any{"contest_id": contestID.String()},
		}}

		rec, err := d.settlement.ComputeSettlement(ctx, contestID)
		if err != nil {
			return nil, fmt.Errorf("settle contest %s: %w", contestID, err)
		}
		out = append(out, events.Event{
			Type: events.EventSettlementCreated,
			Payload: map[string]any{
				"contest_id":    contestID.String(),
				"settlement_id": rec.ID.String(),
				"results_hash":  rec.ResultsHash,
			},
		})

		job, created, err := d.payouts.ScheduleSettlement(ctx, rec)
		if err != nil {
			return nil, fmt.Errorf("schedule payouts for contest %s: %w", contestID, err)
		}
		if job != nil && created {
			out = append(out, events.Event{
				Type: events.EventPayoutJobScheduled,
				Payload: map[string]any{
					"contest_id":    contestID.String(),
					"payout_job_id": job.ID.String(),
					"total_payouts": job.TotalPayouts,
				},
			})
		}
		return out, nil
	default:
		d.log.Warn("unknown outbox event type, dropping", zap.Int64("event_id", e.ID), zap.String("type", e.EventType))
		return nil, nil
	}
}
