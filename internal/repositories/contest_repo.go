package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/playoffchallenge/backend/internal/db"
	"github.com/playoffchallenge/backend/internal/models"
)

type ContestRepo struct {
	pool *pgxpool.Pool
}

func NewContestRepo(pool *pgxpool.Pool) *ContestRepo {
	return &ContestRepo{pool: pool}
}

const contestColumns = `
	id, template_id, organizer_id, status, lock_time, start_time, end_time, settle_time,
	prize_pool_cents, payout_structure, version, created_at, updated_at`

func scanContest(row pgx.Row) (*models.Contest, error) {
	var c models.Contest
	var status string
	var structure []byte
	err := row.Scan(&c.ID, &c.TemplateID, &c.OrganizerID, &status, &c.LockTime, &c.StartTime, &c.EndTime, &c.SettleTime,
		&c.PrizePoolCents, &structure, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, handleNotFound(err)
	}
	c.Status = models.ContestStatus(status)
	if len(structure) > 0 {
		if err := json.Unmarshal(structure, &c.PayoutStructure); err != nil {
			return nil, fmt.Errorf("decode payout_structure: %w", err)
		}
	}
	return &c, nil
}

func (r *ContestRepo) Create(ctx context.Context, c *models.Contest) error {
	structure, err := json.Marshal(c.PayoutStructure)
	if err != nil {
		return err
	}
	if c.Status == "" {
		c.Status = models.ContestStatusScheduled
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO contest_instances (template_id, organizer_id, status, lock_time, start_time, end_time,
		                               prize_pool_cents, payout_structure)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, version, created_at, updated_at
	`, c.TemplateID, c.OrganizerID, string(c.Status), c.LockTime, c.StartTime, c.EndTime, c.PrizePoolCents, structure,
	).Scan(&c.ID, &c.Version, &c.CreatedAt, &c.UpdatedAt)
}

func (r *ContestRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Contest, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+contestColumns+` FROM contest_instances WHERE id = $1`, id)
	return scanContest(row)
}

// GetForUpdate locks the contest row for the rest of the transaction.
func (r *ContestRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Contest, error) {
	if !db.InTx(ctx) {
		return nil, fmt.Errorf("GetForUpdate requires a transaction")
	}
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+contestColumns+` FROM contest_instances WHERE id = $1 FOR UPDATE`, id)
	return scanContest(row)
}

// CompareAndSetStatus moves c to status `to` only if the row still has c's
// status and version. On success c is updated in place; false means another
// writer got there first. settle_time is stamped once, on entry to COMPLETE.
func (r *ContestRepo) CompareAndSetStatus(ctx context.Context, c *models.Contest, to models.ContestStatus, now time.Time) (bool, error) {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE contest_instances
		SET status = $1,
		    version = version + 1,
		    settle_time = CASE WHEN $1 = 'COMPLETE' THEN COALESCE(settle_time, $2) ELSE settle_time END,
		    updated_at = $2
		WHERE id = $3 AND status = $4 AND version = $5
		RETURNING version, settle_time, updated_at
	`, string(to), now, c.ID, string(c.Status), c.Version).Scan(&c.Version, &c.SettleTime, &c.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, err
	}
	c.Status = to
	return true, nil
}

// UpdateTimes rewrites the schedule of a SCHEDULED contest under the same
// compare-and-set rule as status changes.
func (r *ContestRepo) UpdateTimes(ctx context.Context, c *models.Contest, t models.ContestTimes) (bool, error) {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE contest_instances
		SET lock_time = $1, start_time = $2, end_time = $3, version = version + 1, updated_at = now()
		WHERE id = $4 AND status = 'SCHEDULED' AND version = $5
		RETURNING version, updated_at
	`, t.LockTime, t.StartTime, t.EndTime, c.ID, c.Version).Scan(&c.Version, &c.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, err
	}
	c.LockTime, c.StartTime, c.EndTime = t.LockTime, t.StartTime, t.EndTime
	return true, nil
}

// ListDue returns contests whose time-driven transition is due at now.
func (r *ContestRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id FROM contest_instances
		WHERE (status IN ('SCHEDULED', 'LOCKED') AND start_time <= $1)
		   OR (status = 'LIVE' AND end_time <= $1)
		ORDER BY updated_at, id
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
