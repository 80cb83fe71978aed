package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Payout job statuses
const (
	PayoutJobStatusPending    = "pending"
	PayoutJobStatusProcessing = "processing"
	PayoutJobStatusComplete   = "complete"
)

// Payout transfer statuses
const (
	TransferStatusPending        = "pending"
	TransferStatusProcessing     = "processing"
	TransferStatusRetryable      = "retryable"
	TransferStatusCompleted      = "completed"
	TransferStatusFailedTerminal = "failed_terminal"
)

type PayoutJob struct {
	ID             uuid.UUID  `json:"id"`
	SettlementID   uuid.UUID  `json:"settlement_id"`
	ContestID      uuid.UUID  `json:"contest_id"`
	Status         string     `json:"status"`
	TotalPayouts   int        `json:"total_payouts"`
	CompletedCount int        `json:"completed_count"`
	FailedCount    int        `json:"failed_count"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Finished reports whether every transfer has reached a terminal status.
func (j *PayoutJob) Finished() bool {
	return j.CompletedCount+j.FailedCount >= j.TotalPayouts
}

type PayoutTransfer struct {
	ID               uuid.UUID `json:"id"`
	PayoutJobID      uuid.UUID `json:"payout_job_id"`
	ContestID        uuid.UUID `json:"contest_id"`
	UserID           uuid.UUID `json:"user_id"`
	AmountCents      int64     `json:"amount_cents"`
	Status           string    `json:"status"`
	AttemptCount     int       `json:"attempt_count"`
	MaxAttempts      int       `json:"max_attempts"`
	StripeTransferID *string   `json:"stripe_transfer_id,omitempty"`
	IdempotencyKey   string    `json:"idempotency_key"`
	FailureReason    *string   `json:"failure_reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (t *PayoutTransfer) IsTerminal() bool {
	return t.Status == TransferStatusCompleted || t.Status == TransferStatusFailedTerminal
}

// Claimable mirrors the claim predicate used by the transfer store.
func (t *PayoutTransfer) Claimable() bool {
	return (t.Status == TransferStatusPending || t.Status == TransferStatusRetryable) &&
		t.StripeTransferID == nil &&
		t.AttemptCount < t.MaxAttempts
}

// Winner is one paid entry handed to payout scheduling.
type Winner struct {
	UserID      uuid.UUID `json:"user_id"`
	AmountCents int64     `json:"amount_cents"`
}

// TransferIdempotencyKey is derived from transfer identity only, so every
// retry of the same payout reuses it at the provider.
func TransferIdempotencyKey(contestID, userID uuid.UUID) string {
	return fmt.Sprintf("payout:%s:%s", contestID, userID)
}

// PayoutAccount maps a user to their connected Stripe account.
type PayoutAccount struct {
	UserID          uuid.UUID `json:"user_id"`
	StripeAccountID string    `json:"stripe_account_id"`
}
