package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Ranking struct {
	UserID uuid.UUID       `json:"user_id"`
	Score  decimal.Decimal `json:"score"`
	Rank   int             `json:"rank"`
}

type SettlementPayout struct {
	UserID      uuid.UUID `json:"user_id"`
	AmountCents int64     `json:"amount_cents"`
}

// SettlementResults is the frozen results payload of a settlement. Field
// order and slice order are part of its hash.
type SettlementResults struct {
	Rankings []Ranking          `json:"rankings"`
	Payouts  []SettlementPayout `json:"payouts"`
}

// Canonical returns the byte encoding the results hash is computed over.
func (r SettlementResults) Canonical() ([]byte, error) {
	if r.Rankings == nil {
		r.Rankings = []Ranking{}
	}
	if r.Payouts == nil {
		r.Payouts = []SettlementPayout{}
	}
	return json.Marshal(r)
}

func (r SettlementResults) Hash() (string, error) {
	b, err := r.Canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Validate checks the structural invariants of a results payload.
func (r SettlementResults) Validate() error {
	seen := make(map[uuid.UUID]struct{}, len(r.Rankings))
	for i, rk := range r.Rankings {
		if rk.UserID == uuid.Nil {
			return fmt.Errorf("rankings[%d]: user_id is required", i)
		}
		if rk.Rank < 1 {
			return fmt.Errorf("rankings[%d]: rank must be >= 1", i)
		}
		if _, dup := seen[rk.UserID]; dup {
			return fmt.Errorf("rankings[%d]: duplicate user %s", i, rk.UserID)
		}
		seen[rk.UserID] = struct{}{}
	}
	for i, p := range r.Payouts {
		if _, ok := seen[p.UserID]; !ok {
			return fmt.Errorf("payouts[%d]: user %s is not ranked", i, p.UserID)
		}
		if p.AmountCents <= 0 {
			return fmt.Errorf("payouts[%d]: amount_cents must be > 0", i)
		}
	}
	return nil
}

// Winners converts the payouts into payout scheduling input.
func (r SettlementResults) Winners() []Winner {
	out := make([]Winner, 0, len(r.Payouts))
	for _, p := range r.Payouts {
		out = append(out, Winner{UserID: p.UserID, AmountCents: p.AmountCents})
	}
	return out
}

type SettlementRecord struct {
	ID                uuid.UUID         `json:"id"`
	ContestInstanceID uuid.UUID         `json:"contest_instance_id"`
	Results           SettlementResults `json:"results"`
	ResultsHash       string            `json:"results_hash"`
	TotalPoolCents    int64             `json:"total_pool_cents"`
	CreatedAt         time.Time         `json:"created_at"`
}

// ContestScore is a final score row produced by stat ingestion.
type ContestScore struct {
	UserID uuid.UUID
	Score  decimal.Decimal
}
