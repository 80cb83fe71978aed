package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/playoffchallenge/backend/internal/db"
	"github.com/playoffchallenge/backend/internal/models"
)

type OutboxRepo struct {
	pool *pgxpool.Pool
}

func NewOutboxRepo(pool *pgxpool.Pool) *OutboxRepo {
	return &OutboxRepo{pool: pool}
}

// Enqueue writes an event in the caller's transaction.
func (r *OutboxRepo) Enqueue(ctx context.Context, e *models.OutboxEvent) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO event_outbox (event_type, aggregate_id, payload)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, e.EventType, e.AggregateID, payload).Scan(&e.ID, &e.CreatedAt)
}

// ClaimNext locks the oldest undispatched event with an id above afterID and
// fewer than maxAttempts failed attempts. Rows locked by another worker are
// skipped. ErrNotFound means the queue is drained.
func (r *OutboxRepo) ClaimNext(ctx context.Context, afterID int64, maxAttempts int) (*models.OutboxEvent, error) {
	if !db.InTx(ctx) {
		return nil, fmt.Errorf("ClaimNext requires a transaction")
	}
	var e models.OutboxEvent
	var payload []byte
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, event_type, aggregate_id, payload, attempts, last_error, created_at
		FROM event_outbox
		WHERE dispatched_at IS NULL AND id > $1 AND attempts < $2
		ORDER BY id
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, afterID, maxAttempts).Scan(&e.ID, &e.EventType, &e.AggregateID, &payload, &e.Attempts, &e.LastError, &e.CreatedAt)
	if err != nil {
		return nil, handleNotFound(err)
	}
	if err := json.Unmarshal(payload, &e.Payload); err != nil {
		return nil, fmt.Errorf("outbox event %d: decode payload: %w", e.ID, err)
	}
	return &e, nil
}

func (r *OutboxRepo) MarkDispatched(ctx context.Context, id int64) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE event_outbox SET dispatched_at = now(), attempts = attempts + 1, last_error = NULL WHERE id = $1
	`, id)
	return err
}

func (r *OutboxRepo) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE event_outbox SET attempts = attempts + 1, last_error = $1 WHERE id = $2
	`, reason, id)
	return err
}
