package repositories

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/playoffchallenge/backend/internal/db"
	"github.com/playoffchallenge/backend/internal/models"
)

type ContestAuditRepo struct {
	pool *pgxpool.Pool
}

func NewContestAuditRepo(pool *pgxpool.Pool) *ContestAuditRepo {
	return &ContestAuditRepo{pool: pool}
}

func (r *ContestAuditRepo) Insert(ctx context.Context, a *models.ContestAudit) error {
	payload := a.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO admin_contest_audit (contest_instance_id, admin_user_id, action, from_status, to_status, reason, result, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, a.ContestInstanceID, a.AdminUserID, string(a.Action), string(a.FromStatus), string(a.ToStatus), a.Reason, a.Result, payloadBytes,
	).Scan(&a.ID, &a.CreatedAt)
}

func (r *ContestAuditRepo) ListByContest(ctx context.Context, contestID uuid.UUID, limit, offset int) ([]models.ContestAudit, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, contest_instance_id, admin_user_id, action, from_status, to_status, reason, result, payload, created_at
		FROM admin_contest_audit WHERE contest_instance_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3
	`, contestID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.ContestAudit
	for rows.Next() {
		var l models.ContestAudit
		var action, from, to string
		var payload []byte
		if err := rows.Scan(&l.ID, &l.ContestInstanceID, &l.AdminUserID, &action, &from, &to, &l.Reason, &l.Result, &payload, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Action = models.ContestAction(action)
		l.FromStatus = models.ContestStatus(from)
		l.ToStatus = models.ContestStatus(to)
		_ = json.Unmarshal(payload, &l.Payload)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
