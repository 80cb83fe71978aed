// Package settlement freezes the final rankings and payouts of a completed
// contest into a settlement record.
package settlement

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

// ErrSettlementDiverged matches a recomputation whose results differ from the
// record already stored for the contest.
var ErrSettlementDiverged = &apperr.Error{Kind: apperr.KindConflict, Code: apperr.CodeSettlementDiverged}

type transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type contestReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contest, error)
}

type scoreReader interface {
	ListByContest(ctx context.Context, contestID uuid.UUID) ([]models.ContestScore, error)
}

type recordStore interface {
	InsertIgnoreConflict(ctx context.Context, s *models.SettlementRecord) (bool, error)
	GetByContestID(ctx context.Context, contestID uuid.UUID) (*models.SettlementRecord, error)
}

type Engine struct {
	tx       transactor
	contests contestReader
	scores   scoreReader
	records  recordStore
	log      *zap.Logger
}

func NewEngine(tx transactor, contests contestReader, scores scoreReader, records recordStore, log *zap.Logger) *Engine {
	return &Engine{tx: tx, contests: contests, scores: scores, records: records, log: log}
}

// ComputeSettlement settles one COMPLETE contest. Calling it again returns
// the stored record when the recomputed hash matches it and fails with
// ErrSettlementDiverged when it does not.
func (e *Engine) ComputeSettlement(ctx context.Context, contestID uuid.UUID) (*models.SettlementRecord, error) {
	var rec *models.SettlementRecord
	err := e.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := e.contests.GetByID(ctx, contestID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return apperr.NotFound(apperr.CodeContestNotFound, "contest %s not found", contestID)
			}
			return err
		}
		if c.Status != models.ContestStatusComplete {
			return apperr.InvalidTransition(apperr.CodeInvalidStatus, "contest %s is %s, not COMPLETE", contestID, c.Status)
		}

		scores, err := e.scores.ListByContest(ctx, contestID)
		if err != nil {
			return fmt.Errorf("load scores: %w", err)
		}
		results, err := Compute(scores, c.PayoutStructure, c.PrizePoolCents)
		if err != nil {
			return apperr.Validation("contest %s: %s", contestID, err.Error())
		}
		hash, err := results.Hash()
		if err != nil {
			return err
		}

		candidate := &models.SettlementRecord{
			ContestInstanceID: contestID,
			Results:           results,
			ResultsHash:       hash,
			TotalPoolCents:    c.PrizePoolCents,
		}
		created, err := e.records.InsertIgnoreConflict(ctx, candidate)
		if err != nil {
			return fmt.Errorf("insert settlement: %w", err)
		}
		if created {
			e.log.Info("contest settled",
				zap.String("contest_id", contestID.String()),
				zap.String("settlement_id", candidate.ID.String()),
				zap.String("results_hash", hash),
				zap.Int("payouts", len(results.Payouts)),
			)
			rec = candidate
			return nil
		}

		existing, err := e.records.GetByContestID(ctx, contestID)
		if err != nil {
			return fmt.Errorf("load settlement: %w", err)
		}
		if existing.ResultsHash != hash {
			e.log.Error("settlement diverged",
				zap.String("contest_id", contestID.String()),
				zap.String("stored_hash", existing.ResultsHash),
				zap.String("computed_hash", hash),
			)
			return apperr.Conflict(apperr.CodeSettlementDiverged,
				"contest %s: stored results %s differ from recomputed %s", contestID, existing.ResultsHash, hash)
		}
		rec = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}
