package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Ledger entry types
const (
	LedgerPayoutCompleted       = "payout_completed"
	LedgerPayoutFailedRetryable = "payout_failed_retryable"
	LedgerPayoutFailedTerminal  = "payout_failed_terminal"
)

// LedgerEntry records one outcome of one transfer attempt. Append-only.
type LedgerEntry struct {
	ID               uuid.UUID      `json:"id"`
	PayoutTransferID uuid.UUID      `json:"payout_transfer_id"`
	ContestID        uuid.UUID      `json:"contest_id"`
	UserID           uuid.UUID      `json:"user_id"`
	EntryType        string         `json:"entry_type"`
	AmountCents      int64          `json:"amount_cents"`
	AttemptNumber    int            `json:"attempt_number"`
	StripeTransferID *string        `json:"stripe_transfer_id,omitempty"`
	FailureReason    *string        `json:"failure_reason,omitempty"`
	IdempotencyKey   string         `json:"idempotency_key"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

func LedgerIdempotencyKey(transferID uuid.UUID, attempt int) string {
	return fmt.Sprintf("ledger:%s:%d", transferID, attempt)
}
