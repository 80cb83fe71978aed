package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/playoffchallenge/backend/internal/models"
	"github.com/playoffchallenge/backend/internal/repositories"
	"github.com/playoffchallenge/backend/internal/stripeadapter"
	"go.uber.org/zap"
)

// ExecutionResult describes one ExecuteTransfer call. Claimed is false when
// the transfer was not eligible and nothing was written.
type ExecutionResult struct {
	TransferID     uuid.UUID
	Claimed        bool
	Status         string
	AttemptNumber  int
	Classification stripeadapter.Classification
	Reason         string
}

type PayoutExecutionService struct {
	tx        Transactor
	transfers PayoutTransferStore
	ledger    LedgerStore
	accounts  PayoutAccountStore
	provider  TransferProvider
	log       *zap.Logger
}

func NewPayoutExecutionService(
	tx Transactor,
	transfers PayoutTransferStore,
	ledger LedgerStore,
	accounts PayoutAccountStore,
	provider TransferProvider,
	log *zap.Logger,
) *PayoutExecutionService {
	return &PayoutExecutionService{
		tx:        tx,
		transfers: transfers,
		ledger:    ledger,
		accounts:  accounts,
		provider:  provider,
		log:       log,
	}
}

// ExecuteTransfer makes one attempt at one transfer. The claim, the attempt
// counter, the outcome and its ledger entry commit together; any error rolls
// all of it back and leaves the transfer claimable.
func (s *PayoutExecutionService) ExecuteTransfer(ctx context.Context, transferID uuid.UUID) (ExecutionResult, error) {
	res := ExecutionResult{TransferID: transferID}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		// 1. Claim
		t, err := s.transfers.ClaimForUpdate(ctx, transferID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("claim transfer: %w", err)
		}

		// 2. Consume an attempt
		if err := s.transfers.MarkProcessing(ctx, t); err != nil {
			return fmt.Errorf("mark processing: %w", err)
		}

		// 3. Call the provider
		outcome, err := s.send(ctx, t)
		if err != nil {
			return err
		}

		// 4-6. Record the outcome
		entry := &models.LedgerEntry{
			PayoutTransferID: t.ID,
			ContestID:        t.ContestID,
			UserID:           t.UserID,
			AmountCents:      t.AmountCents,
			AttemptNumber:    t.AttemptCount,
			IdempotencyKey:   models.LedgerIdempotencyKey(t.ID, t.AttemptCount),
			Metadata: map[string]any{
				"transfer_idempotency_key": t.IdempotencyKey,
				"max_attempts":             t.MaxAttempts,
			},
		}
		switch {
		case outcome.Success:
			if err := s.transfers.MarkCompleted(ctx, t, outcome.TransferID); err != nil {
				return fmt.Errorf("mark completed: %w", err)
			}
			entry.EntryType = models.LedgerPayoutCompleted
			entry.StripeTransferID = &outcome.TransferID
		case outcome.Classification == stripeadapter.Transient && t.AttemptCount < t.MaxAttempts:
			if err := s.transfers.MarkRetryable(ctx, t, outcome.Reason); err != nil {
				return fmt.Errorf("mark retryable: %w", err)
			}
			entry.EntryType = models.LedgerPayoutFailedRetryable
			entry.FailureReason = &outcome.Reason
		default:
			reason := outcome.Reason
			if outcome.Classification == stripeadapter.Transient {
				reason = "attempts_exhausted: " + reason
			}
			if err := s.transfers.MarkFailedTerminal(ctx, t, reason); err != nil {
				return fmt.Errorf("mark failed: %w", err)
			}
			entry.EntryType = models.LedgerPayoutFailedTerminal
			entry.FailureReason = &reason
		}
		if !outcome.Success {
			entry.Metadata["classification"] = string(outcome.Classification)
			if outcome.HTTPStatus != 0 {
				entry.Metadata["http_status"] = outcome.HTTPStatus
			}
		}

		// 7. Ledger
		inserted, err := s.ledger.Insert(ctx, entry)
		if err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}
		if !inserted {
			s.log.Warn("ledger entry already present",
				zap.String("transfer_id", t.ID.String()),
				zap.Int("attempt", t.AttemptCount),
			)
		}

		res.Claimed = true
		res.Status = t.Status
		res.AttemptNumber = t.AttemptCount
		res.Classification = outcome.Classification
		res.Reason = outcome.Reason
		return nil
	})
	if err != nil {
		s.log.Error("transfer execution rolled back", zap.String("transfer_id", transferID.String()), zap.Error(err))
		return ExecutionResult{TransferID: transferID}, err
	}

	if res.Claimed {
		s.log.Info("transfer attempted",
			zap.String("transfer_id", transferID.String()),
			zap.Int("attempt", res.AttemptNumber),
			zap.String("status", res.Status),
			zap.String("reason", res.Reason),
		)
	}
	return res, nil
}

// send resolves the destination and calls the provider. A user without a
// payout account is a permanent failure, not an error.
func (s *PayoutExecutionService) send(ctx context.Context, t *models.PayoutTransfer) (stripeadapter.TransferResult, error) {
	acct, err := s.accounts.GetByUserID(ctx, t.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return stripeadapter.TransferResult{
				Classification: stripeadapter.Permanent,
				Reason:         "no payout account for user",
			}, nil
		}
		return stripeadapter.TransferResult{}, fmt.Errorf("load payout account: %w", err)
	}

	return s.provider.CreateTransfer(ctx, stripeadapter.TransferRequest{
		TransferID:     t.ID,
		ContestID:      t.ContestID,
		UserID:         t.UserID,
		AmountCents:    t.AmountCents,
		Destination:    acct.StripeAccountID,
		IdempotencyKey: t.IdempotencyKey,
	}), nil
}
