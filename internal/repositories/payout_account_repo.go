package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/playoffchallenge/backend/internal/db"
	"github.com/playoffchallenge/backend/internal/models"
)

type PayoutAccountRepo struct {
	pool *pgxpool.Pool
}

func NewPayoutAccountRepo(pool *pgxpool.Pool) *PayoutAccountRepo {
	return &PayoutAccountRepo{pool: pool}
}

func (r *PayoutAccountRepo) Upsert(ctx context.Context, a *models.PayoutAccount) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO user_payout_accounts (user_id, stripe_account_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET stripe_account_id = EXCLUDED.stripe_account_id, updated_at = now()
	`, a.UserID, a.StripeAccountID)
	return err
}

func (r *PayoutAccountRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.PayoutAccount, error) {
	var a models.PayoutAccount
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT user_id, stripe_account_id FROM user_payout_accounts WHERE user_id = $1
	`, userID).Scan(&a.UserID, &a.StripeAccountID)
	if err != nil {
		return nil, handleNotFound(err)
	}
	return &a, nil
}
