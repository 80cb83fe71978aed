package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/playoffchallenge/backend/internal/db"
	"github.com/playoffchallenge/backend/internal/models"
	"github.com/shopspring/decimal"
)

type SettlementRepo struct {
	pool *pgxpool.Pool
}

func NewSettlementRepo(pool *pgxpool.Pool) *SettlementRepo {
	return &SettlementRepo{pool: pool}
}

// InsertIgnoreConflict stores a settlement unless the contest already has
// one. created is false when the existing row was kept.
func (r *SettlementRepo) InsertIgnoreConflict(ctx context.Context, s *models.SettlementRecord) (bool, error) {
	results, err := s.Results.Canonical()
	if err != nil {
		return false, err
	}
	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO settlement_records (contest_instance_id, results, results_hash, total_pool_cents)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (contest_instance_id) DO NOTHING
		RETURNING id, created_at
	`, s.ContestInstanceID, results, s.ResultsHash, s.TotalPoolCents).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *SettlementRepo) GetByContestID(ctx context.Context, contestID uuid.UUID) (*models.SettlementRecord, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, contest_instance_id, results, results_hash, total_pool_cents, created_at
		FROM settlement_records WHERE contest_instance_id = $1
	`, contestID)
	return scanSettlement(row)
}

func (r *SettlementRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.SettlementRecord, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, contest_instance_id, results, results_hash, total_pool_cents, created_at
		FROM settlement_records WHERE id = $1
	`, id)
	return scanSettlement(row)
}

// scanSettlement decodes the stored results and rejects rows whose payload
// no longer matches their hash.
func scanSettlement(row pgx.Row) (*models.SettlementRecord, error) {
	var s models.SettlementRecord
	var raw []byte
	if err := row.Scan(&s.ID, &s.ContestInstanceID, &raw, &s.ResultsHash, &s.TotalPoolCents, &s.CreatedAt); err != nil {
		return nil, handleNotFound(err)
	}
	if err := json.Unmarshal(raw, &s.Results); err != nil {
		return nil, fmt.Errorf("settlement %s: decode results: %w", s.ID, err)
	}
	if err := s.Results.Validate(); err != nil {
		return nil, fmt.Errorf("settlement %s: %w", s.ID, err)
	}
	hash, err := s.Results.Hash()
	if err != nil {
		return nil, err
	}
	if hash != s.ResultsHash {
		return nil, fmt.Errorf("settlement %s: stored hash %s does not match results %s", s.ID, s.ResultsHash, hash)
	}
	return &s, nil
}

type ScoreRepo struct {
	pool *pgxpool.Pool
}

func NewScoreRepo(pool *pgxpool.Pool) *ScoreRepo {
	return &ScoreRepo{pool: pool}
}

// ListByContest returns the final scores of one contest. Scores are read as
// text so no precision is lost on the way to decimal.
func (r *ScoreRepo) ListByContest(ctx context.Context, contestID uuid.UUID) ([]models.ContestScore, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT user_id, score::text FROM contest_scores WHERE contest_instance_id = $1
	`, contestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []models.ContestScore
	for rows.Next() {
		var s models.ContestScore
		var raw string
		if err := rows.Scan(&s.UserID, &raw); err != nil {
			return nil, err
		}
		s.Score, err = decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("score for user %s: %w", s.UserID, err)
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}
