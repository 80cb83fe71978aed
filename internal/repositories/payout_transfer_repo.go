package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/playoffchallenge/backend/internal/db"
	"github.com/playoffchallenge/backend/internal/models"
)

type PayoutTransferRepo struct {
	pool *pgxpool.Pool
}

func NewPayoutTransferRepo(pool *pgxpool.Pool) *PayoutTransferRepo {
	return &PayoutTransferRepo{pool: pool}
}

// TransferCursor is a keyset position within one job's transfers.
type TransferCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

const transferColumns = `
	id, payout_job_id, contest_id, user_id, amount_cents, status, attempt_count, max_attempts,
	stripe_transfer_id, idempotency_key, failure_reason, created_at, updated_at`

func scanTransfer(row pgx.Row) (*models.PayoutTransfer, error) {
	var t models.PayoutTransfer
	err := row.Scan(&t.ID, &t.PayoutJobID, &t.ContestID, &t.UserID, &t.AmountCents, &t.Status, &t.AttemptCount, &t.MaxAttempts,
		&t.StripeTransferID, &t.IdempotencyKey, &t.FailureReason, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, handleNotFound(err)
	}
	return &t, nil
}

// InsertIgnoreConflict creates the transfer unless one already exists for
// the same (contest, user).
func (r *PayoutTransferRepo) InsertIgnoreConflict(ctx context.Context, t *models.PayoutTransfer) (bool, error) {
	if t.Status == "" {
		t.Status = models.TransferStatusPending
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO payout_transfers (payout_job_id, contest_id, user_id, amount_cents, status, max_attempts, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (contest_id, user_id) DO NOTHING
		RETURNING id, attempt_count, created_at, updated_at
	`, t.PayoutJobID, t.ContestID, t.UserID, t.AmountCents, t.Status, t.MaxAttempts, t.IdempotencyKey,
	).Scan(&t.ID, &t.AttemptCount, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *PayoutTransferRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PayoutTransfer, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+transferColumns+` FROM payout_transfers WHERE id = $1`, id)
	return scanTransfer(row)
}

// ClaimForUpdate locks the transfer if it can still be attempted. It returns
// ErrNotFound when the row is missing, terminal, already sent or out of
// attempts.
func (r *PayoutTransferRepo) ClaimForUpdate(ctx context.Context, id uuid.UUID) (*models.PayoutTransfer, error) {
	if !db.InTx(ctx) {
		return nil, fmt.Errorf("ClaimForUpdate requires a transaction")
	}
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+transferColumns+` FROM payout_transfers
		WHERE id = $1
		  AND status IN ('pending', 'retryable')
		  AND stripe_transfer_id IS NULL
		  AND attempt_count < max_attempts
		FOR UPDATE
	`, id)
	return scanTransfer(row)
}

// MarkProcessing consumes one attempt.
func (r *PayoutTransferRepo) MarkProcessing(ctx context.Context, t *models.PayoutTransfer) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE payout_transfers
		SET status = 'processing', attempt_count = attempt_count + 1, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'retryable') AND attempt_count < max_attempts
		RETURNING attempt_count, updated_at
	`, t.ID).Scan(&t.AttemptCount, &t.UpdatedAt)
	if err != nil {
		return handleNotFound(err)
	}
	t.Status = models.TransferStatusProcessing
	return nil
}

func (r *PayoutTransferRepo) MarkCompleted(ctx context.Context, t *models.PayoutTransfer, stripeTransferID string) error {
	return r.finish(ctx, t, models.TransferStatusCompleted, &stripeTransferID, nil)
}

func (r *PayoutTransferRepo) MarkRetryable(ctx context.Context, t *models.PayoutTransfer, reason string) error {
	return r.finish(ctx, t, models.TransferStatusRetryable, nil, &reason)
}

func (r *PayoutTransferRepo) MarkFailedTerminal(ctx context.Context, t *models.PayoutTransfer, reason string) error {
	return r.finish(ctx, t, models.TransferStatusFailedTerminal, nil, &reason)
}

func (r *PayoutTransferRepo) finish(ctx context.Context, t *models.PayoutTransfer, status string, stripeID, reason *string) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE payout_transfers
		SET status = $1, stripe_transfer_id = COALESCE($2, stripe_transfer_id), failure_reason = $3, updated_at = now()
		WHERE id = $4 AND status = 'processing'
		RETURNING updated_at
	`, status, stripeID, reason, t.ID).Scan(&t.UpdatedAt)
	if err != nil {
		return handleNotFound(err)
	}
	t.Status = status
	if stripeID != nil {
		t.StripeTransferID = stripeID
	}
	t.FailureReason = reason
	return nil
}

// ListClaimableIDs pages through a job's claimable transfers in
// (created_at, id) order, strictly after the cursor when one is given.
func (r *PayoutTransferRepo) ListClaimableIDs(ctx context.Context, jobID uuid.UUID, after *TransferCursor, limit int) ([]uuid.UUID, *TransferCursor, error) {
	if limit <= 0 {
		limit = 50
	}
	args := []any{jobID, limit}
	keyset := ""
	if after != nil {
		keyset = "AND (created_at, id) > ($3, $4)"
		args = append(args, after.CreatedAt, after.ID)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, created_at FROM payout_transfers
		WHERE payout_job_id = $1
		  AND status IN ('pending', 'retryable')
		  AND stripe_transfer_id IS NULL
		  AND attempt_count < max_attempts
		  `+keyset+`
		ORDER BY created_at, id
		LIMIT $2
	`, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	var last *TransferCursor
	for rows.Next() {
		var c TransferCursor
		if err := rows.Scan(&c.ID, &c.CreatedAt); err != nil {
			return nil, nil, err
		}
		ids = append(ids, c.ID)
		last = &c
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return ids, last, nil
}

// CountTerminal returns how many of the job's transfers are completed and
// how many failed terminally.
func (r *PayoutTransferRepo) CountTerminal(ctx context.Context, jobID uuid.UUID) (completed, failed int, err error) {
	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'completed'),
		       COUNT(*) FILTER (WHERE status = 'failed_terminal')
		FROM payout_transfers WHERE payout_job_id = $1
	`, jobID).Scan(&completed, &failed)
	return completed, failed, err
}

func (r *PayoutTransferRepo) ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.PayoutTransfer, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+transferColumns+` FROM payout_transfers
		WHERE payout_job_id = $1
		ORDER BY created_at, id
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []models.PayoutTransfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, *t)
	}
	return transfers, rows.Err()
}
