package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/playoffchallenge/backend/internal/db"
	"github.com/playoffchallenge/backend/internal/models"
)

type PayoutJobRepo struct {
	pool *pgxpool.Pool
}

func NewPayoutJobRepo(pool *pgxpool.Pool) *PayoutJobRepo {
	return &PayoutJobRepo{pool: pool}
}

const jobColumns = `
	id, settlement_id, contest_id, status, total_payouts, completed_count, failed_count,
	started_at, completed_at, created_at, updated_at`

func scanJob(row pgx.Row) (*models.PayoutJob, error) {
	var j models.PayoutJob
	err := row.Scan(&j.ID, &j.SettlementID, &j.ContestID, &j.Status, &j.TotalPayouts, &j.CompletedCount, &j.FailedCount,
		&j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, handleNotFound(err)
	}
	return &j, nil
}

// InsertIgnoreConflict creates the job for a settlement. When a job already
// exists for it, nothing is written and created is false.
func (r *PayoutJobRepo) InsertIgnoreConflict(ctx context.Context, j *models.PayoutJob) (bool, error) {
	if j.Status == "" {
		j.Status = models.PayoutJobStatusPending
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO payout_jobs (settlement_id, contest_id, status, total_payouts)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (settlement_id) DO NOTHING
		RETURNING id, created_at, updated_at
	`, j.SettlementID, j.ContestID, j.Status, j.TotalPayouts).Scan(&j.ID, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *PayoutJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PayoutJob, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+jobColumns+` FROM payout_jobs WHERE id = $1`, id)
	return scanJob(row)
}

func (r *PayoutJobRepo) GetBySettlementID(ctx context.Context, settlementID uuid.UUID) (*models.PayoutJob, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+jobColumns+` FROM payout_jobs WHERE settlement_id = $1`, settlementID)
	return scanJob(row)
}

// MarkProcessing moves a pending job to processing. Other statuses are left
// alone.
func (r *PayoutJobRepo) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE payout_jobs SET status = 'processing', started_at = COALESCE(started_at, now()), updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id)
	return err
}

func (r *PayoutJobRepo) UpdateCounts(ctx context.Context, id uuid.UUID, completed, failed int) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE payout_jobs SET completed_count = $1, failed_count = $2, updated_at = now()
		WHERE id = $3
	`, completed, failed, id)
	return err
}

// MarkComplete finishes the job once every transfer is terminal. It reports
// whether this call made the change.
func (r *PayoutJobRepo) MarkComplete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE payout_jobs SET status = 'complete', completed_at = now(), updated_at = now()
		WHERE id = $1 AND status <> 'complete' AND completed_count + failed_count = total_payouts
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PayoutJobRepo) ListIncomplete(ctx context.Context, limit int) ([]models.PayoutJob, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+jobColumns+` FROM payout_jobs
		WHERE status <> 'complete'
		ORDER BY created_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.PayoutJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}
