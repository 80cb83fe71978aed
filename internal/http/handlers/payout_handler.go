package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/playoffchallenge/backend/internal/http/dto"
	"github.com/playoffchallenge/backend/internal/models"
	"go.uber.org/zap"
)

// PayoutReader is satisfied by *services.PayoutJobService.
type PayoutReader interface {
	GetJob(ctx context.Context, jobID uuid.UUID) (*models.PayoutJob, []models.PayoutTransfer, error)
	TransferLedger(ctx context.Context, transferID uuid.UUID) (*models.PayoutTransfer, []models.LedgerEntry, error)
}

type PayoutHandler struct {
	payouts PayoutReader
	log     *zap.Logger
}

func NewPayoutHandler(payouts PayoutReader, log *zap.Logger) *PayoutHandler {
	return &PayoutHandler{payouts: payouts, log: log}
}

func (h *PayoutHandler) GetJob(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid payout job id")
	}
	job, transfers, err := h.payouts.GetJob(c.Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	if transfers == nil {
		transfers = []models.PayoutTransfer{}
	}
	return c.JSON(dto.PayoutJobResponse{Job: job, Transfers: transfers})
}

func (h *PayoutHandler) GetTransferLedger(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid payout transfer id")
	}
	transfer, entries, err := h.payouts.TransferLedger(c.Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	return c.JSON(dto.TransferLedgerResponse{Transfer: transfer, Ledger: entries})
}
