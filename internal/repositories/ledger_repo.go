package repositories

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/playoffchallenge/backend/internal/db"
	"github.com/playoffchallenge/backend/internal/models"
)

type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// Insert appends an entry. A second insert with the same idempotency key is
// ignored and reports inserted=false.
func (r *LedgerRepo) Insert(ctx context.Context, e *models.LedgerEntry) (bool, error) {
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metaBytes, err := json.Marshal(metadata)
	if err != nil {
		return false, err
	}
	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO ledger (payout_transfer_id, contest_id, user_id, entry_type, amount_cents, attempt_number,
		                    stripe_transfer_id, failure_reason, idempotency_key, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id, created_at
	`, e.PayoutTransferID, e.ContestID, e.UserID, e.EntryType, e.AmountCents, e.AttemptNumber,
		e.StripeTransferID, e.FailureReason, e.IdempotencyKey, metaBytes,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

const ledgerColumns = `
	id, payout_transfer_id, contest_id, user_id, entry_type, amount_cents, attempt_number,
	stripe_transfer_id, failure_reason, idempotency_key, metadata, created_at`

func (r *LedgerRepo) ListByTransfer(ctx context.Context, transferID uuid.UUID) ([]models.LedgerEntry, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+ledgerColumns+` FROM ledger
		WHERE payout_transfer_id = $1
		ORDER BY attempt_number, created_at
	`, transferID)
	if err != nil {
		return nil, err
	}
	return scanLedger(rows)
}

func (r *LedgerRepo) ListByContest(ctx context.Context, contestID uuid.UUID) ([]models.LedgerEntry, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+ledgerColumns+` FROM ledger
		WHERE contest_id = $1
		ORDER BY created_at, id
	`, contestID)
	if err != nil {
		return nil, err
	}
	return scanLedger(rows)
}

func scanLedger(rows pgx.Rows) ([]models.LedgerEntry, error) {
	defer rows.Close()
	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		var meta []byte
		if err := rows.Scan(&e.ID, &e.PayoutTransferID, &e.ContestID, &e.UserID, &e.EntryType, &e.AmountCents, &e.AttemptNumber,
			&e.StripeTransferID, &e.FailureReason, &e.IdempotencyKey, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(meta, &e.Metadata)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
