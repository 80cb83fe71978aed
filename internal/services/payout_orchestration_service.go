package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/playoffchallenge/backend/internal/apperr"
	"github.com/playoffchallenge/backend/internal/models"
	"go.uber.org/zap"
)

type PayoutOrchestrationService struct {
	tx          Transactor
	jobs        PayoutJobStore
	transfers   PayoutTransferStore
	maxAttempts int
	log         *zap.Logger
}

func NewPayoutOrchestrationService(
	tx Transactor,
	jobs PayoutJobStore,
	transfers PayoutTransferStore,
	maxAttempts int,
	log *zap.Logger,
) *PayoutOrchestrationService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &PayoutOrchestrationService{
		tx:          tx,
		jobs:        jobs,
		transfers:   transfers,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// SchedulePayoutForSettlement creates the payout job for a settlement and one
// transfer per winner. If the settlement already has a job, that job is
// returned unchanged and created is false.
func (s *PayoutOrchestrationService) SchedulePayoutForSettlement(ctx context.Context, settlementID, contestID uuid.UUID, winners []models.Winner) (*models.PayoutJob, bool, error) {
	if err := validateWinners(settlementID, contestID, winners); err != nil {
		return nil, false, err
	}

	var job *models.PayoutJob
	var created bool
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		// 1. Job, unique per settlement
		j := &models.PayoutJob{
			SettlementID: settlementID,
			ContestID:    contestID,
			Status:       models.PayoutJobStatusPending,
			TotalPayouts: len(winners),
		}
		inserted, err := s.jobs.InsertIgnoreConflict(ctx, j)
		if err != nil {
			return fmt.Errorf("insert payout job: %w", err)
		}
		if !inserted {
			existing, err := s.jobs.GetBySettlementID(ctx, settlementID)
			if err != nil {
				return fmt.Errorf("load existing payout job: %w", err)
			}
			if existing.ContestID != contestID {
				return apperr.Conflict(apperr.CodePayoutConflict,
					"settlement %s already scheduled for contest %s", settlementID, existing.ContestID)
			}
			job = existing
			return nil
		}

		// 2. Transfers, unique per (contest, user)
		for _, w := range winners {
			t := &models.PayoutTransfer{
				PayoutJobID:    j.ID,
				ContestID:      contestID,
				UserID:         w.UserID,
				AmountCents:    w.AmountCents,
				Status:         models.TransferStatusPending,
				MaxAttempts:    s.maxAttempts,
				IdempotencyKey: models.TransferIdempotencyKey(contestID, w.UserID),
			}
			ok, err := s.transfers.InsertIgnoreConflict(ctx, t)
			if err != nil {
				return fmt.Errorf("insert payout transfer: %w", err)
			}
			if !ok {
				// A transfer for this user exists under another job; the new
				// job could never reach its total.
				return apperr.Conflict(apperr.CodePayoutConflict,
					"contest %s already has a payout transfer for user %s", contestID, w.UserID)
			}
		}

		job = j
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		s.log.Info("payout job scheduled",
			zap.String("job_id", job.ID.String()),
			zap.String("settlement_id", settlementID.String()),
			zap.String("contest_id", contestID.String()),
			zap.Int("transfers", len(winners)),
		)
	} else {
		s.log.Info("payout job already scheduled",
			zap.String("job_id", job.ID.String()),
			zap.String("settlement_id", settlementID.String()),
		)
	}
	return job, created, nil
}

// ScheduleSettlement schedules payouts for a stored settlement. A settlement
// with no paid places schedules nothing and returns a nil job.
func (s *PayoutOrchestrationService) ScheduleSettlement(ctx context.Context, rec *models.SettlementRecord) (*models.PayoutJob, bool, error) {
	winners := rec.Results.Winners()
	if len(winners) == 0 {
		s.log.Info("settlement has no payouts", zap.String("settlement_id", rec.ID.String()))
		return nil, false, nil
	}
	return s.SchedulePayoutForSettlement(ctx, rec.ID, rec.ContestInstanceID, winners)
}

func validateWinners(settlementID, contestID uuid.UUID, winners []models.Winner) error {
	var errs []error
	if settlementID == uuid.Nil {
		errs = append(errs, errors.New("settlement_id is required"))
	}
	if contestID == uuid.Nil {
		errs = append(errs, errors.New("contest_id is required"))
	}
	if len(winners) == 0 {
		errs = append(errs, errors.New("winners must not be empty"))
	}
	seen := make(map[uuid.UUID]struct{}, len(winners))
	for i, w := range winners {
		if w.UserID == uuid.Nil {
			errs = append(errs, fmt.Errorf("winners[%d]: user_id is required", i))
			continue
		}
		if w.AmountCents <= 0 {
			errs = append(errs, fmt.Errorf("winners[%d]: amount_cents must be > 0", i))
		}
		if _, dup := seen[w.UserID]; dup {
			errs = append(errs, fmt.Errorf("winners[%d]: duplicate user %s", i, w.UserID))
		}
		seen[w.UserID] = struct{}{}
	}
	if len(errs) > 0 {
		return apperr.Validation("%s", errors.Join(errs...).Error())
	}
	return nil
}
