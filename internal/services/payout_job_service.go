package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/playoffchallenge/backend/internal/apperr"
	"github.com/playoffchallenge/backend/internal/models"
	"github.com/playoffchallenge/backend/internal/repositories"
	"go.uber.org/zap"
)

// JobResult summarizes one ProcessJob pass.
type JobResult struct {
	JobID      uuid.UUID
	Attempted  int
	Completed  int
	Retryable  int
	Failed     int
	NotClaimed int
	Errors     int
	Status     string
}

// BatchResult summarizes one ProcessPendingJobs pass.
type BatchResult struct {
	Jobs          int
	JobsCompleted int
	Attempted     int
	// TransferErrors counts transfers whose attempt errored and rolled back.
	// They stay claimable for the next pass.
	TransferErrors int
	Errors         []error
}

type PayoutJobService struct {
	tx                Transactor
	jobs              PayoutJobStore
	transfers         PayoutTransferStore
	ledger            LedgerStore
	executor          *PayoutExecutionService
	transferBatchSize int
	jobBatchSize      int
	log               *zap.Logger
}

func NewPayoutJobService(
	tx Transactor,
	jobs PayoutJobStore,
	transfers PayoutTransferStore,
	ledger LedgerStore,
	executor *PayoutExecutionService,
	transferBatchSize, jobBatchSize int,
	log *zap.Logger,
) *PayoutJobService {
	if transferBatchSize <= 0 {
		transferBatchSize = 50
	}
	if jobBatchSize <= 0 {
		jobBatchSize = 10
	}
	return &PayoutJobService{
		tx:                tx,
		jobs:              jobs,
		transfers:         transfers,
		ledger:            ledger,
		executor:          executor,
		transferBatchSize: transferBatchSize,
		jobBatchSize:      jobBatchSize,
		log:               log,
	}
}

// ProcessJob drains the job's claimable transfers once, in batches. A
// transfer that fails transiently waits for the next pass. The job completes
// when every transfer is terminal; calling it on a complete job is a no-op.
func (s *PayoutJobService) ProcessJob(ctx context.Context, jobID uuid.UUID) (JobResult, error) {
	res := JobResult{JobID: jobID}

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return res, apperr.NotFound(apperr.CodeJobNotFound, "payout job %s not found", jobID)
		}
		return res, err
	}
	if job.Status == models.PayoutJobStatusComplete {
		res.Status = job.Status
		return res, nil
	}

	if err := s.jobs.MarkProcessing(ctx, jobID); err != nil {
		return res, fmt.Errorf("mark job processing: %w", err)
	}
	res.Status = models.PayoutJobStatusProcessing

	var cursor *repositories.TransferCursor
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ids, next, err := s.transfers.ListClaimableIDs(ctx, jobID, cursor, s.transferBatchSize)
		if err != nil {
			return res, fmt.Errorf("list claimable transfers: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			r, err := s.executor.ExecuteTransfer(ctx, id)
			if err != nil {
				res.Errors++
				s.log.Warn("payout transfer attempt errored",
					zap.String("job_id", jobID.String()),
					zap.String("transfer_id", id.String()),
					zap.Error(err),
				)
				continue
			}
			if !r.Claimed {
				res.NotClaimed++
				continue
			}
			res.Attempted++
			switch r.Status {
			case models.TransferStatusCompleted:
				res.Completed++
			case models.TransferStatusRetryable:
				res.Retryable++
			case models.TransferStatusFailedTerminal:
				res.Failed++
			}
		}

		status, err := s.refresh(ctx, jobID)
		if err != nil {
			return res, err
		}
		res.Status = status

		if len(ids) < s.transferBatchSize {
			return res, nil
		}
		cursor = next
	}

	status, err := s.refresh(ctx, jobID)
	if err != nil {
		return res, err
	}
	res.Status = status
	return res, nil
}

// refresh recomputes the job counters from its transfers and completes the
// job once they add up to total_payouts.
func (s *PayoutJobService) refresh(ctx context.Context, jobID uuid.UUID) (string, error) {
	var status string
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		completed, failed, err := s.transfers.CountTerminal(ctx, jobID)
		if err != nil {
			return fmt.Errorf("count terminal transfers: %w", err)
		}
		if err := s.jobs.UpdateCounts(ctx, jobID, completed, failed); err != nil {
			return fmt.Errorf("update job counts: %w", err)
		}
		done, err := s.jobs.MarkComplete(ctx, jobID)
		if err != nil {
			return fmt.Errorf("complete job: %w", err)
		}
		job, err := s.jobs.GetByID(ctx, jobID)
		if err != nil {
			return err
		}
		status = job.Status
		if done {
			s.log.Info("payout job complete",
				zap.String("job_id", jobID.String()),
				zap.Int("completed", completed),
				zap.Int("failed", failed),
			)
		}
		return nil
	})
	return status, err
}

// ProcessPendingJobs runs ProcessJob over a batch of incomplete jobs. Errors
// are collected per job and never stop the batch.
func (s *PayoutJobService) ProcessPendingJobs(ctx context.Context) (BatchResult, error) {
	var res BatchResult
	jobs, err := s.jobs.ListIncomplete(ctx, s.jobBatchSize)
	if err != nil {
		return res, fmt.Errorf("list incomplete jobs: %w", err)
	}
	for _, job := range jobs {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Jobs++
		r, err := s.ProcessJob(ctx, job.ID)
		res.Attempted += r.Attempted
		res.TransferErrors += r.Errors
		if err != nil {
			s.log.Error("payout job failed", zap.String("job_id", job.ID.String()), zap.Error(err))
			res.Errors = append(res.Errors, fmt.Errorf("job %s: %w", job.ID, err))
			continue
		}
		if r.Status == models.PayoutJobStatusComplete {
			res.JobsCompleted++
		}
	}
	return res, nil
}

// GetJob returns a job and its transfers.
func (s *PayoutJobService) GetJob(ctx context.Context, jobID uuid.UUID) (*models.PayoutJob, []models.PayoutTransfer, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil, apperr.NotFound(apperr.CodeJobNotFound, "payout job %s not found", jobID)
		}
		return nil, nil, err
	}
	transfers, err := s.transfers.ListByJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	return job, transfers, nil
}

// TransferLedger returns a transfer and its ledger trail.
func (s *PayoutJobService) TransferLedger(ctx context.Context, transferID uuid.UUID) (*models.PayoutTransfer, []models.LedgerEntry, error) {
	t, err := s.transfers.GetByID(ctx, transferID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil, apperr.NotFound(apperr.CodeTransferNotFound, "payout transfer %s not found", transferID)
		}
		return nil, nil, err
	}
	entries, err := s.ledger.ListByTransfer(ctx, transferID)
	if err != nil {
		return nil, nil, err
	}
	return t, entries, nil
}
