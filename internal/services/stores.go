package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/playoffchallenge/backend/internal/models"
	"github.com/playoffchallenge/backend/internal/repositories"
	"github.com/playoffchallenge/backend/internal/stripeadapter"
)

// Transactor runs fn in a database transaction carried on ctx. It is
// satisfied by *db.TxManager.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type ContestStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contest, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Contest, error)
	CompareAndSetStatus(ctx context.Context, c *models.Contest, to models.ContestStatus, now time.Time) (bool, error)
	UpdateTimes(ctx context.Context, c *models.Contest, t models.ContestTimes) (bool, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

type ContestAuditStore interface {
	Insert(ctx context.Context, a *models.ContestAudit) error
	ListByContest(ctx context.Context, contestID uuid.UUID, limit, offset int) ([]models.ContestAudit, error)
}

type OutboxStore interface {
	Enqueue(ctx context.Context, e *models.OutboxEvent) error
	ClaimNext(ctx context.Context, afterID int64, maxAttempts int) (*models.OutboxEvent, error)
	MarkDispatched(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

type PayoutJobStore interface {
	InsertIgnoreConflict(ctx context.Context, j *models.PayoutJob) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.PayoutJob, error)
	GetBySettlementID(ctx context.Context, settlementID uuid.UUID) (*models.PayoutJob, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	UpdateCounts(ctx context.Context, id uuid.UUID, completed, failed int) error
	MarkComplete(ctx context.Context, id uuid.UUID) (bool, error)
	ListIncomplete(ctx context.Context, limit int) ([]models.PayoutJob, error)
}

type PayoutTransferStore interface {
	InsertIgnoreConflict(ctx context.Context, t *models.PayoutTransfer) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.PayoutTransfer, error)
	ClaimForUpdate(ctx context.Context, id uuid.UUID) (*models.PayoutTransfer, error)
	MarkProcessing(ctx context.Context, t *models.PayoutTransfer) error
	MarkCompleted(ctx context.Context, t *models.PayoutTransfer, stripeTransferID string) error
	MarkRetryable(ctx context.Context, t *models.PayoutTransfer, reason string) error
	MarkFailedTerminal(ctx context.Context, t *models.PayoutTransfer, reason string) error
	ListClaimableIDs(ctx context.Context, jobID uuid.UUID, after *repositories.TransferCursor, limit int) ([]uuid.UUID, *repositories.TransferCursor, error)
	CountTerminal(ctx context.Context, jobID uuid.UUID) (completed, failed int, err error)
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.PayoutTransfer, error)
}

type LedgerStore interface {
	Insert(ctx context.Context, e *models.LedgerEntry) (bool, error)
	ListByTransfer(ctx context.Context, transferID uuid.UUID) ([]models.LedgerEntry, error)
}

type PayoutAccountStore interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.PayoutAccount, error)
}

// TransferProvider sends money to a connected account. It is satisfied by
// *stripeadapter.Adapter.
type TransferProvider interface {
	CreateTransfer(ctx context.Context, req stripeadapter.TransferRequest) stripeadapter.TransferResult
}

// SettlementComputer produces the frozen settlement of a completed contest.
type SettlementComputer interface {
	ComputeSettlement(ctx context.Context, contestID uuid.UUID) (*models.SettlementRecord, error)
}
