package dto

import "github.com/playoffchallenge/backend/internal/models"

type ErrorResponse struct {
	Error     string         `json:"error"`
	ErrorCode string         `json:"error_code"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

type TransitionResponse struct {
	Success bool            `json:"success"`
	Contest *models.Contest `json:"contest"`
	Noop    bool            `json:"noop"`
	Changed bool            `json:"changed"`
}

type ContestResponse struct {
	Contest *models.Contest `json:"contest"`
}

type AuditResponse struct {
	Audit []models.ContestAudit `json:"audit"`
}

type PayoutJobResponse struct {
	Job       *models.PayoutJob       `json:"job"`
	Transfers []models.PayoutTransfer `json:"transfers"`
}

type TransferLedgerResponse struct {
	Transfer *models.PayoutTransfer `json:"transfer"`
	Ledger   []models.LedgerEntry   `json:"ledger"`
}
